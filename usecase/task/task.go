package task

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskchase/backend/domain"
	"github.com/taskchase/backend/repository"
	"github.com/taskchase/backend/usecase"
	"github.com/taskchase/backend/usecase/chaser"
)

type UseCase struct {
	tasks    repository.TaskRepository
	queue    repository.QueueRepository
	logs     repository.DeliveryLogRepository
	calendar usecase.CalendarNotifier
	logger   *zap.Logger
}

func New(
	tasks repository.TaskRepository,
	queue repository.QueueRepository,
	logs repository.DeliveryLogRepository,
	calendar usecase.CalendarNotifier,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		tasks:    tasks,
		queue:    queue,
		logs:     logs,
		calendar: calendar,
		logger:   logger,
	}
}

// CreateTask validates and stores a task, schedules its chasers, and fires a
// best-effort calendar-create toward the sink.
func (uc *UseCase) CreateTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if err := validate(task); err != nil {
		return nil, err
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.Status = domain.TaskStatusPending

	created, err := uc.tasks.Create(ctx, task)
	if err != nil {
		return nil, err
	}

	entries := chaser.Plan(created, time.Now())
	if _, err := uc.queue.InsertBatch(ctx, entries); err != nil {
		// The task row is the dominant record; a failed schedule insert is
		// surfaced so the caller can retry creation.
		return nil, domain.WrapError(domain.ErrCodeInternal, "failed to schedule chasers", err)
	}
	uc.logger.Info("chasers scheduled",
		zap.String("task_id", created.ID),
		zap.Int("entries", len(entries)))

	uc.notifyCalendar(ctx, "create", created, uc.calendarCreate)

	return created, nil
}

func (uc *UseCase) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return uc.tasks.GetByID(ctx, id)
}

func (uc *UseCase) ListTasks(ctx context.Context, filter repository.TaskFilter) ([]domain.Task, error) {
	return uc.tasks.List(ctx, filter)
}

// UpdateTask updates mutable task fields. Changing the due date here follows
// Reschedule semantics: existing queue entries are left untouched.
func (uc *UseCase) UpdateTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if err := validate(task); err != nil {
		return nil, err
	}
	if err := uc.tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Complete marks the task completed and cancels its pending chasers. It is
// idempotent: completing twice is a no-op the second time. Entries already
// triggered stay in flight; their eventual callbacks still land.
func (uc *UseCase) Complete(ctx context.Context, id string) (*domain.Task, int, error) {
	task, err := uc.tasks.MarkCompleted(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	cancelled, err := uc.queue.CancelPendingForTask(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if cancelled > 0 {
		uc.logger.Info("pending chasers cancelled",
			zap.String("task_id", id),
			zap.Int("count", cancelled))
	}

	if task.CalendarEventID != "" {
		uc.notifyCalendar(ctx, "delete", task, uc.calendarDelete)
	}

	return task, cancelled, nil
}

// Reschedule moves the due date. Existing queue entries are deliberately left
// as scheduled; the dispatcher renders wording from the current due date, so
// stale instants still produce accurate messages.
func (uc *UseCase) Reschedule(ctx context.Context, id string, newDue time.Time) (*domain.Task, error) {
	task, err := uc.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if newDue.IsZero() {
		return nil, domain.NewError(domain.ErrCodeInvalid, "due date is required")
	}

	task.DueDate = newDue
	if err := uc.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	if task.CalendarEventID != "" {
		uc.notifyCalendar(ctx, "update", task, uc.calendarUpdate)
	}

	return task, nil
}

// Nudge inserts a manually triggered chaser scheduled immediately.
func (uc *UseCase) Nudge(ctx context.Context, id string) (*domain.QueueEntry, error) {
	task, err := uc.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.IsCompleted() {
		return nil, domain.NewError(domain.ErrCodeInvalid, "cannot nudge a completed task")
	}

	content := domain.RenderContent(domain.TierNudge, task, time.Now())
	entries := []domain.QueueEntry{{
		ID:          uuid.NewString(),
		TaskID:      task.ID,
		ScheduledAt: time.Now(),
		Status:      domain.QueueStatusPending,
		Recipient:   task.AssigneeEmail,
		Subject:     content.EmailSubject,
		Body:        content.EmailBody,
		Tier:        domain.TierNudge,
	}}
	inserted, err := uc.queue.InsertBatch(ctx, entries)
	if err != nil {
		return nil, err
	}
	return &inserted[0], nil
}

// QueueEntries lists the task's chaser queue, earliest first.
func (uc *UseCase) QueueEntries(ctx context.Context, id string) ([]domain.QueueEntry, error) {
	if _, err := uc.tasks.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return uc.queue.ListByTask(ctx, id)
}

// DeliveryLogs lists the task's delivery audit trail.
func (uc *UseCase) DeliveryLogs(ctx context.Context, id string) ([]domain.DeliveryLog, error) {
	if _, err := uc.tasks.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return uc.logs.ListByTask(ctx, id)
}

type calendarOp func(ctx context.Context, task *domain.Task) error

func (uc *UseCase) calendarCreate(ctx context.Context, task *domain.Task) error {
	return uc.calendar.CalendarCreate(ctx, task)
}

func (uc *UseCase) calendarUpdate(ctx context.Context, task *domain.Task) error {
	return uc.calendar.CalendarUpdate(ctx, task)
}

func (uc *UseCase) calendarDelete(ctx context.Context, task *domain.Task) error {
	return uc.calendar.CalendarDelete(ctx, task)
}

func (uc *UseCase) notifyCalendar(ctx context.Context, op string, task *domain.Task, fn calendarOp) {
	if uc.calendar == nil {
		return
	}
	if err := fn(ctx, task); err != nil {
		uc.logger.Warn("calendar notification failed",
			zap.String("operation", op),
			zap.String("task_id", task.ID),
			zap.Error(err))
	}
}

func validate(task *domain.Task) error {
	if task == nil {
		return domain.ErrInvalidPayload
	}
	if strings.TrimSpace(task.Title) == "" {
		return domain.NewError(domain.ErrCodeInvalid, "title is required")
	}
	if !strings.Contains(task.AssigneeEmail, "@") {
		return domain.NewError(domain.ErrCodeInvalid, "assignee email is required")
	}
	if task.DueDate.IsZero() {
		return domain.NewError(domain.ErrCodeInvalid, "due date is required")
	}
	if task.Priority == "" {
		task.Priority = domain.PriorityMedium
	}
	if !domain.ValidPriority(task.Priority) {
		return domain.NewError(domain.ErrCodeInvalid, "priority must be low, medium or high")
	}
	return nil
}
