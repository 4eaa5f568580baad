package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/taskchase/backend/domain"
	"github.com/taskchase/backend/internal/infrastructure/sink"
	"github.com/taskchase/backend/repository"
)

// SinkDispatcher abstracts the sink client so the dispatcher can be tested
// against a fake.
type SinkDispatcher interface {
	Dispatch(ctx context.Context, payload sink.Payload) error
}

// DispatcherConfig controls the dispatch cycle cadence and batch shape.
type DispatcherConfig struct {
	Interval     time.Duration
	BatchSize    int
	SinkTimeout  time.Duration
	StartupDelay time.Duration
	DashboardURL string
}

// Dispatcher runs the periodic dispatch cycle: select due pending chasers,
// hand them to the sink, and advance their state.
type Dispatcher struct {
	queue  repository.QueueRepository
	sink   SinkDispatcher
	logger *zap.Logger
	cron   *cron.Cron
	cfg    DispatcherConfig

	running atomic.Bool
	stopCh  chan struct{}
}

func NewDispatcher(queue repository.QueueRepository, sinkClient SinkDispatcher, logger *zap.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 10 * time.Second
	}
	if cfg.StartupDelay <= 0 {
		cfg.StartupDelay = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		queue:  queue,
		sink:   sinkClient,
		logger: logger,
		cfg:    cfg,
		cron:   cron.New(cron.WithSeconds()),
		stopCh: make(chan struct{}),
	}

	if _, err := d.cron.AddFunc(everySchedule(cfg.Interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := d.RunCycle(ctx); err != nil {
			d.logger.Error("dispatch cycle failed", zap.Error(err))
		}
	}); err != nil {
		logger.Error("failed to register dispatch schedule", zap.Error(err))
	}

	return d
}

// everySchedule renders the cron descriptor for an interval. Duration.String
// keeps sub-minute and fractional intervals intact, where a seconds cast
// would truncate them.
func everySchedule(interval time.Duration) string {
	return "@every " + interval.String()
}

// Start launches the cron schedule plus one early cycle so a fresh process
// does not sit idle for a full interval before its first check.
func (d *Dispatcher) Start() {
	if d == nil || d.cron == nil {
		return
	}
	d.cron.Start()

	go func() {
		select {
		case <-time.After(d.cfg.StartupDelay):
		case <-d.stopCh:
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Interval)
		defer cancel()
		if err := d.RunCycle(ctx); err != nil {
			d.logger.Error("startup dispatch cycle failed", zap.Error(err))
		}
	}()

	d.logger.Info("dispatcher started", zap.Duration("interval", d.cfg.Interval))
}

// Stop gracefully stops the scheduler, waiting for a running cycle.
func (d *Dispatcher) Stop(ctx context.Context) {
	if d == nil || d.cron == nil {
		return
	}
	close(d.stopCh)
	stopCtx := d.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	d.logger.Info("dispatcher stopped")
}

// RunCycle executes one dispatch cycle. Cycles never overlap: if one is
// still running when the next tick fires, the tick is skipped.
func (d *Dispatcher) RunCycle(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		d.logger.Warn("dispatch cycle still running, skipping tick")
		return nil
	}
	defer d.running.Store(false)

	now := time.Now()
	due, err := d.queue.DueEntries(ctx, d.cfg.BatchSize, now)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	d.logger.Debug("dispatch cycle selected entries", zap.Int("count", len(due)))

	for _, item := range due {
		d.dispatchOne(ctx, item)
	}
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, item domain.DueEntry) {
	entry := item.Entry
	task := item.Task

	// Safety net for the race where the task completed after this entry was
	// selected but before its explicit cancellation landed.
	if task.IsCompleted() {
		if err := d.queue.MarkCancelled(ctx, entry.ID); err != nil {
			d.logger.Error("failed to cancel entry for completed task",
				zap.String("queue_id", entry.ID),
				zap.Error(err))
		}
		return
	}

	now := time.Now()
	payload := d.buildPayload(&entry, &task, now)

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.SinkTimeout)
	err := d.sink.Dispatch(callCtx, payload)
	cancel()

	if err != nil {
		// Entry stays pending and is retried next cycle.
		d.logger.Warn("dispatch attempt failed",
			zap.String("queue_id", entry.ID),
			zap.String("task_id", task.ID),
			zap.Int("tier", int(entry.Tier)),
			zap.Error(err))
		if touchErr := d.queue.TouchAttempt(ctx, entry.ID, now); touchErr != nil {
			d.logger.Error("failed to record dispatch attempt",
				zap.String("queue_id", entry.ID),
				zap.Error(touchErr))
		}
		return
	}

	if err := d.queue.MarkTriggered(ctx, entry.ID, now); err != nil {
		d.logger.Error("failed to mark entry triggered",
			zap.String("queue_id", entry.ID),
			zap.Error(err))
		return
	}

	d.logger.Info("chaser dispatched",
		zap.String("queue_id", entry.ID),
		zap.String("task_id", task.ID),
		zap.Int("tier", int(entry.Tier)))
}

func (d *Dispatcher) buildPayload(entry *domain.QueueEntry, task *domain.Task, now time.Time) sink.Payload {
	// Content is rendered fresh so a rescheduled task gets accurate wording.
	content := domain.RenderContent(entry.Tier, task, now)

	actionType := sink.ActionNotify
	if task.CalendarEventID == "" {
		actionType = sink.ActionCreate
	}

	payload := sink.Payload{
		QueueID:         entry.ID,
		TaskID:          task.ID,
		ActionType:      actionType,
		Tier:            int(entry.Tier),
		AssigneeName:    task.AssigneeName,
		AssigneeEmail:   task.AssigneeEmail,
		AssigneePhone:   task.AssigneePhone,
		SlackChannel:    task.SlackChannel,
		Content:         content,
		TaskTitle:       task.Title,
		TaskPriority:    task.Priority,
		TaskDueDate:     task.DueDate.Format(time.RFC3339),
		CalendarEventID: task.CalendarEventID,
	}
	if d.cfg.DashboardURL != "" {
		payload.TaskLink = fmt.Sprintf("%s/tasks/%s", d.cfg.DashboardURL, task.ID)
	}
	return payload
}
