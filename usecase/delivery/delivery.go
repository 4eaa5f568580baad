// Package delivery reconciles asynchronous outcome reports from the sink with
// the queue, the audit log and the task counters.
package delivery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taskchase/backend/domain"
	"github.com/taskchase/backend/repository"
)

type UseCase struct {
	tasks  repository.TaskRepository
	queue  repository.QueueRepository
	logs   repository.DeliveryLogRepository
	dedupe repository.CallbackDeduper
	logger *zap.Logger
}

func New(
	tasks repository.TaskRepository,
	queue repository.QueueRepository,
	logs repository.DeliveryLogRepository,
	dedupe repository.CallbackDeduper,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		tasks:  tasks,
		queue:  queue,
		logs:   logs,
		dedupe: dedupe,
		logger: logger,
	}
}

// DispatchSucceeded records a confirmed delivery: entry goes to sent, a log
// row is appended and the task's chaser counter is bumped atomically at the
// store. Duplicate callbacks for the same entry are no-ops.
func (uc *UseCase) DispatchSucceeded(ctx context.Context, queueID string, sentAt *time.Time, executionID string) error {
	entry, err := uc.queue.GetByID(ctx, queueID)
	if err != nil {
		return err
	}
	if entry.IsTerminal() {
		uc.logger.Debug("ignoring callback for terminal entry", zap.String("queue_id", queueID))
		return nil
	}

	when := time.Now()
	if sentAt != nil {
		when = *sentAt
	}

	if err := uc.queue.MarkSent(ctx, queueID, when); err != nil {
		return err
	}

	// Claimed only after the state write: a transient store failure above
	// returns an error with the key unclaimed, so the sink's retry still
	// lands instead of being suppressed against a non-terminal entry.
	if !uc.claim(ctx, queueID, domain.DeliverySent) {
		return nil
	}

	uc.appendLog(ctx, &domain.DeliveryLog{
		TaskID:      entry.TaskID,
		QueueID:     entry.ID,
		Status:      domain.DeliverySent,
		Recipient:   entry.Recipient,
		Subject:     entry.Subject,
		Body:        entry.Body,
		ExecutionID: executionID,
	})

	if err := uc.tasks.IncrementChaserCount(ctx, entry.TaskID, when); err != nil {
		// The queue entry already reflects the send; the counter is secondary.
		uc.logger.Error("chaser counter update failed",
			zap.String("task_id", entry.TaskID),
			zap.Error(err))
	}

	uc.logger.Info("chaser delivered",
		zap.String("queue_id", queueID),
		zap.String("task_id", entry.TaskID),
		zap.Int("tier", int(entry.Tier)))
	return nil
}

// DispatchFailed records a failed delivery: entry goes to failed (terminal)
// and a log row with the error text is appended. Task counters are untouched.
func (uc *UseCase) DispatchFailed(ctx context.Context, queueID, errMessage string) error {
	entry, err := uc.queue.GetByID(ctx, queueID)
	if err != nil {
		return err
	}
	if entry.IsTerminal() {
		uc.logger.Debug("ignoring callback for terminal entry", zap.String("queue_id", queueID))
		return nil
	}
	if err := uc.queue.MarkFailed(ctx, queueID); err != nil {
		return err
	}

	if !uc.claim(ctx, queueID, domain.DeliveryFailed) {
		return nil
	}

	body := entry.Body
	if errMessage != "" {
		body = fmt.Sprintf("%s\n\nDelivery error: %s", body, errMessage)
	}
	uc.appendLog(ctx, &domain.DeliveryLog{
		TaskID:    entry.TaskID,
		QueueID:   entry.ID,
		Status:    domain.DeliveryFailed,
		Recipient: entry.Recipient,
		Subject:   entry.Subject,
		Body:      body,
	})

	uc.logger.Warn("chaser delivery failed",
		zap.String("queue_id", queueID),
		zap.String("task_id", entry.TaskID),
		zap.String("error", errMessage))
	return nil
}

// CalendarConflict stores the result of an external conflict check.
func (uc *UseCase) CalendarConflict(ctx context.Context, taskID string, hasConflict bool, conflictWith string, conflictEnd *time.Time) error {
	return uc.tasks.SetConflict(ctx, taskID, hasConflict, conflictWith, conflictEnd)
}

// CalendarCreated stores the external calendar event reference.
func (uc *UseCase) CalendarCreated(ctx context.Context, taskID, eventID string) error {
	if eventID == "" {
		return domain.NewError(domain.ErrCodeInvalid, "event id is required")
	}
	return uc.tasks.SetCalendarEvent(ctx, taskID, eventID)
}

// claim marks the (entry, outcome) pair as seen. Dedupe is best-effort: a
// dedupe store error lets the callback through rather than dropping it,
// because the terminal-state check above already prevents double writes.
func (uc *UseCase) claim(ctx context.Context, queueID, outcome string) bool {
	if uc.dedupe == nil {
		return true
	}
	ok, err := uc.dedupe.Claim(ctx, queueID+":"+outcome)
	if err != nil {
		uc.logger.Warn("callback dedupe check failed", zap.Error(err))
		return true
	}
	if !ok {
		uc.logger.Debug("duplicate callback suppressed",
			zap.String("queue_id", queueID),
			zap.String("outcome", outcome))
	}
	return ok
}

func (uc *UseCase) appendLog(ctx context.Context, log *domain.DeliveryLog) {
	if _, err := uc.logs.Insert(ctx, log); err != nil {
		uc.logger.Error("delivery log insert failed",
			zap.String("queue_id", log.QueueID),
			zap.Error(err))
	}
}
