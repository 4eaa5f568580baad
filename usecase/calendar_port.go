package usecase

import (
	"context"

	"github.com/taskchase/backend/domain"
)

// CalendarNotifier abstracts the best-effort calendar operations forwarded to
// the sink. Implementations must never block the primary operation; failures
// are buffered or logged, not returned to the caller's caller.
type CalendarNotifier interface {
	CalendarCreate(ctx context.Context, task *domain.Task) error
	CalendarUpdate(ctx context.Context, task *domain.Task) error
	CalendarDelete(ctx context.Context, task *domain.Task) error
}
