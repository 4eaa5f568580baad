package services

import (
	"context"
	"time"

	"github.com/taskchase/backend/domain"
	"github.com/taskchase/backend/internal/infrastructure/sink"
	"github.com/taskchase/backend/usecase"
)

// CalendarBridge adapts the outbox processor to the CalendarNotifier port the
// task use case depends on.
type CalendarBridge struct {
	processor *OutboxProcessor
}

func NewCalendarBridge(processor *OutboxProcessor) *CalendarBridge {
	return &CalendarBridge{processor: processor}
}

func (b *CalendarBridge) CalendarCreate(ctx context.Context, task *domain.Task) error {
	return b.send(ctx, sink.ActionCreate, task)
}

func (b *CalendarBridge) CalendarUpdate(ctx context.Context, task *domain.Task) error {
	return b.send(ctx, sink.ActionUpdate, task)
}

func (b *CalendarBridge) CalendarDelete(ctx context.Context, task *domain.Task) error {
	return b.send(ctx, sink.ActionDelete, task)
}

func (b *CalendarBridge) send(ctx context.Context, action string, task *domain.Task) error {
	if b.processor == nil || task == nil {
		return domain.ErrInvalidPayload
	}
	payload := sink.Payload{
		TaskID:          task.ID,
		ActionType:      action,
		AssigneeEmail:   task.AssigneeEmail,
		TaskTitle:       task.Title,
		TaskPriority:    task.Priority,
		TaskDueDate:     task.DueDate.Format(time.RFC3339),
		CalendarEventID: task.CalendarEventID,
	}
	return b.processor.Send(ctx, payload)
}

var _ usecase.CalendarNotifier = (*CalendarBridge)(nil)
