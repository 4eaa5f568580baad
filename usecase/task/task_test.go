package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskchase/backend/domain"
	"github.com/taskchase/backend/repository/memory"
)

// fakeCalendar records calendar operations and can simulate sink failures.
type fakeCalendar struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeCalendar) CalendarCreate(_ context.Context, task *domain.Task) error {
	return f.record("create:" + task.ID)
}

func (f *fakeCalendar) CalendarUpdate(_ context.Context, task *domain.Task) error {
	return f.record("update:" + task.ID)
}

func (f *fakeCalendar) CalendarDelete(_ context.Context, task *domain.Task) error {
	return f.record("delete:" + task.ID)
}

func (f *fakeCalendar) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, call)
	return nil
}

type fixture struct {
	uc       *UseCase
	tasks    *memory.TaskRepository
	queue    *memory.QueueRepository
	logs     *memory.DeliveryLogRepository
	calendar *fakeCalendar
}

func newFixture() *fixture {
	tasks := memory.NewTaskRepository()
	queue := memory.NewQueueRepository(tasks)
	logs := memory.NewDeliveryLogRepository()
	calendar := &fakeCalendar{}
	return &fixture{
		uc:       New(tasks, queue, logs, calendar, zap.NewNop()),
		tasks:    tasks,
		queue:    queue,
		logs:     logs,
		calendar: calendar,
	}
}

// brokenQueue rejects every schedule insert.
type brokenQueue struct {
	*memory.QueueRepository
}

func (q *brokenQueue) InsertBatch(context.Context, []domain.QueueEntry) ([]domain.QueueEntry, error) {
	return nil, errors.New("insert failed")
}

func validTask(due time.Time) *domain.Task {
	return &domain.Task{
		Title:         "Prepare demo",
		AssigneeEmail: "kim@example.com",
		DueDate:       due,
		Priority:      domain.PriorityHigh,
	}
}

func TestCreateTask(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the task and its escalation schedule", func(t *testing.T) {
		f := newFixture()

		created, err := f.uc.CreateTask(ctx, validTask(time.Now().Add(30*time.Hour)))
		require.NoError(t, err)
		require.Equal(t, domain.TaskStatusPending, created.Status)

		entries, err := f.queue.ListByTask(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, entries, 4)
		for _, e := range entries {
			require.Equal(t, domain.QueueStatusPending, e.Status)
		}

		require.Equal(t, []string{"create:" + created.ID}, f.calendar.calls)
	})

	t.Run("imminent due date yields the single fallback chaser", func(t *testing.T) {
		f := newFixture()

		created, err := f.uc.CreateTask(ctx, validTask(time.Now().Add(20*time.Minute)))
		require.NoError(t, err)

		entries, err := f.queue.ListByTask(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, domain.TierCritical, entries[0].Tier)
	})

	t.Run("calendar failure does not block creation", func(t *testing.T) {
		f := newFixture()
		f.calendar.err = errors.New("sink unreachable")

		created, err := f.uc.CreateTask(ctx, validTask(time.Now().Add(8*time.Hour)))
		require.NoError(t, err)

		_, err = f.tasks.GetByID(ctx, created.ID)
		require.NoError(t, err)
	})

	t.Run("failed schedule insert surfaces an internal error", func(t *testing.T) {
		tasks := memory.NewTaskRepository()
		queue := &brokenQueue{QueueRepository: memory.NewQueueRepository(tasks)}
		uc := New(tasks, queue, memory.NewDeliveryLogRepository(), &fakeCalendar{}, zap.NewNop())

		_, err := uc.CreateTask(ctx, validTask(time.Now().Add(30*time.Hour)))
		require.True(t, domain.IsDomainError(err, domain.ErrCodeInternal))
		require.ErrorContains(t, err, "insert failed")
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		f := newFixture()

		cases := map[string]*domain.Task{
			"missing title": {AssigneeEmail: "a@b.c", DueDate: time.Now().Add(time.Hour)},
			"missing email": {Title: "x", DueDate: time.Now().Add(time.Hour)},
			"missing due":   {Title: "x", AssigneeEmail: "a@b.c"},
			"bad priority":  {Title: "x", AssigneeEmail: "a@b.c", DueDate: time.Now().Add(time.Hour), Priority: "asap"},
		}
		for name, task := range cases {
			_, err := f.uc.CreateTask(ctx, task)
			require.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid), "%s: got %v", name, err)
		}
	})
}

func TestComplete(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels pending chasers and leaves triggered ones alone", func(t *testing.T) {
		f := newFixture()
		created, err := f.uc.CreateTask(ctx, validTask(time.Now().Add(30*time.Hour)))
		require.NoError(t, err)

		_, err = f.queue.InsertBatch(ctx, []domain.QueueEntry{{
			ID:          "in-flight",
			TaskID:      created.ID,
			ScheduledAt: time.Now(),
			Status:      domain.QueueStatusTriggered,
			Recipient:   created.AssigneeEmail,
		}})
		require.NoError(t, err)

		task, cancelled, err := f.uc.Complete(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, domain.TaskStatusCompleted, task.Status)
		require.Equal(t, 4, cancelled)

		entries, err := f.queue.ListByTask(ctx, created.ID)
		require.NoError(t, err)
		for _, e := range entries {
			if e.ID == "in-flight" {
				require.Equal(t, domain.QueueStatusTriggered, e.Status)
				continue
			}
			require.Equal(t, domain.QueueStatusCancelled, e.Status)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		f := newFixture()
		created, err := f.uc.CreateTask(ctx, validTask(time.Now().Add(30*time.Hour)))
		require.NoError(t, err)

		_, first, err := f.uc.Complete(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, 4, first)

		task, second, err := f.uc.Complete(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, 0, second)
		require.Equal(t, domain.TaskStatusCompleted, task.Status)
	})

	t.Run("unknown task reports not found", func(t *testing.T) {
		f := newFixture()
		_, _, err := f.uc.Complete(ctx, "nope")
		require.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
	})
}

func TestReschedule(t *testing.T) {
	ctx := context.Background()

	t.Run("moves the due date without touching the schedule", func(t *testing.T) {
		f := newFixture()
		created, err := f.uc.CreateTask(ctx, validTask(time.Now().Add(30*time.Hour)))
		require.NoError(t, err)

		before, err := f.queue.ListByTask(ctx, created.ID)
		require.NoError(t, err)

		newDue := time.Now().Add(72 * time.Hour)
		task, err := f.uc.Reschedule(ctx, created.ID, newDue)
		require.NoError(t, err)
		require.True(t, task.DueDate.Equal(newDue))

		after, err := f.queue.ListByTask(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, after, len(before))
		for i := range before {
			require.Equal(t, before[i].ID, after[i].ID)
			require.Equal(t, before[i].ScheduledAt, after[i].ScheduledAt)
			require.Equal(t, before[i].Status, after[i].Status)
		}
	})
}

func TestNudge(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts an immediate tier-zero chaser", func(t *testing.T) {
		f := newFixture()
		created, err := f.uc.CreateTask(ctx, validTask(time.Now().Add(30*time.Hour)))
		require.NoError(t, err)

		entry, err := f.uc.Nudge(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, domain.TierNudge, entry.Tier)
		require.Equal(t, domain.QueueStatusPending, entry.Status)
		require.WithinDuration(t, time.Now(), entry.ScheduledAt, 5*time.Second)
	})

	t.Run("refuses completed tasks", func(t *testing.T) {
		f := newFixture()
		created, err := f.uc.CreateTask(ctx, validTask(time.Now().Add(30*time.Hour)))
		require.NoError(t, err)
		_, _, err = f.uc.Complete(ctx, created.ID)
		require.NoError(t, err)

		_, err = f.uc.Nudge(ctx, created.ID)
		require.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	})
}
