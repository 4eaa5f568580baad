package repository

import (
	"context"
	"time"

	"github.com/taskchase/backend/domain"
)

type QueueRepository interface {
	GetByID(ctx context.Context, id string) (*domain.QueueEntry, error)
	ListByTask(ctx context.Context, taskID string) ([]domain.QueueEntry, error)
	InsertBatch(ctx context.Context, entries []domain.QueueEntry) ([]domain.QueueEntry, error)

	// DueEntries returns up to limit pending entries with scheduled_at <= now,
	// joined with their owning task, in ascending scheduled_at order.
	DueEntries(ctx context.Context, limit int, now time.Time) ([]domain.DueEntry, error)

	// MarkTriggered moves a pending entry to triggered and stamps the attempt.
	MarkTriggered(ctx context.Context, id string, attemptAt time.Time) error

	// TouchAttempt records a failed dispatch attempt; the entry stays pending.
	TouchAttempt(ctx context.Context, id string, attemptAt time.Time) error

	// MarkSent finalizes an entry after a success callback.
	MarkSent(ctx context.Context, id string, sentAt time.Time) error

	// MarkFailed finalizes an entry after a failure callback.
	MarkFailed(ctx context.Context, id string) error

	// MarkCancelled cancels a single entry.
	MarkCancelled(ctx context.Context, id string) error

	// CancelPendingForTask cancels every pending entry of the task and
	// returns how many were affected. Triggered entries are left alone.
	CancelPendingForTask(ctx context.Context, taskID string) (int, error)
}

type DeliveryLogRepository interface {
	Insert(ctx context.Context, log *domain.DeliveryLog) (*domain.DeliveryLog, error)
	ListByTask(ctx context.Context, taskID string) ([]domain.DeliveryLog, error)
}

// CallbackDeduper marks an inbound callback as seen. Claim returns true the
// first time a key is presented and false on duplicates.
type CallbackDeduper interface {
	Claim(ctx context.Context, key string) (bool, error)
}
