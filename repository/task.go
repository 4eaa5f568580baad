package repository

import (
	"context"
	"time"

	"github.com/taskchase/backend/domain"
)

type TaskFilter struct {
	Status   string
	Priority string
	Limit    int
	Offset   int
}

type TaskRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]domain.Task, error)
	Create(ctx context.Context, task *domain.Task) (*domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error

	// MarkCompleted flips the task to completed. Completing an already
	// completed task is a no-op, not an error.
	MarkCompleted(ctx context.Context, id string) (*domain.Task, error)

	// IncrementChaserCount bumps total_chasers_sent by one and records the
	// send instant. The increment must be atomic at the store layer.
	IncrementChaserCount(ctx context.Context, id string, sentAt time.Time) error

	// SetCalendarEvent records the external calendar event reference.
	SetCalendarEvent(ctx context.Context, id, eventID string) error

	// SetConflict records the result of an external conflict check.
	SetConflict(ctx context.Context, id string, hasConflict bool, conflictWith string, conflictEnd *time.Time) error
}
