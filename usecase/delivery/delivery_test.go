package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskchase/backend/domain"
	"github.com/taskchase/backend/repository/memory"
)

type fixture struct {
	uc    *UseCase
	tasks *memory.TaskRepository
	queue *memory.QueueRepository
	logs  *memory.DeliveryLogRepository
}

func newFixture() *fixture {
	tasks := memory.NewTaskRepository()
	queue := memory.NewQueueRepository(tasks)
	logs := memory.NewDeliveryLogRepository()
	return &fixture{
		uc:    New(tasks, queue, logs, memory.NewCallbackDeduper(), nil),
		tasks: tasks,
		queue: queue,
		logs:  logs,
	}
}

// failOnceQueue rejects the first MarkSent to simulate a store hiccup mid-callback.
type failOnceQueue struct {
	*memory.QueueRepository
	failures int
}

func (q *failOnceQueue) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	if q.failures > 0 {
		q.failures--
		return errors.New("store unavailable")
	}
	return q.QueueRepository.MarkSent(ctx, id, sentAt)
}

func (f *fixture) seed(t *testing.T, taskID, queueID string, status string) {
	t.Helper()
	ctx := context.Background()

	if _, err := f.tasks.GetByID(ctx, taskID); err != nil {
		_, err = f.tasks.Create(ctx, &domain.Task{
			ID:            taskID,
			Title:         "Ship release notes",
			AssigneeEmail: "dev@example.com",
			DueDate:       time.Now().Add(2 * time.Hour),
			Priority:      domain.PriorityMedium,
			Status:        domain.TaskStatusPending,
		})
		require.NoError(t, err)
	}

	_, err := f.queue.InsertBatch(ctx, []domain.QueueEntry{{
		ID:          queueID,
		TaskID:      taskID,
		ScheduledAt: time.Now().Add(-time.Minute),
		Status:      status,
		Recipient:   "dev@example.com",
		Subject:     "Reminder: Ship release notes",
		Body:        "Please ship the release notes.",
		Tier:        domain.TierReminder,
	}})
	require.NoError(t, err)
}

func TestDispatchSucceeded(t *testing.T) {
	ctx := context.Background()

	t.Run("marks sent, appends a log and bumps the counter", func(t *testing.T) {
		f := newFixture()
		f.seed(t, "t1", "q1", domain.QueueStatusTriggered)

		sentAt := time.Now().Add(-10 * time.Second)
		require.NoError(t, f.uc.DispatchSucceeded(ctx, "q1", &sentAt, "exec-9"))

		entry, err := f.queue.GetByID(ctx, "q1")
		require.NoError(t, err)
		require.Equal(t, domain.QueueStatusSent, entry.Status)
		require.NotNil(t, entry.SentAt)
		require.True(t, entry.SentAt.Equal(sentAt))

		logs, err := f.logs.ListByTask(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, logs, 1)
		require.Equal(t, domain.DeliverySent, logs[0].Status)
		require.Equal(t, "exec-9", logs[0].ExecutionID)

		task, err := f.tasks.GetByID(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, 1, task.TotalChasersSent)
		require.NotNil(t, task.LastChaserSentAt)
	})

	t.Run("counters stay per task", func(t *testing.T) {
		f := newFixture()
		f.seed(t, "t1", "q1", domain.QueueStatusTriggered)
		f.seed(t, "t2", "q2", domain.QueueStatusTriggered)

		require.NoError(t, f.uc.DispatchSucceeded(ctx, "q1", nil, ""))

		t1, err := f.tasks.GetByID(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, 1, t1.TotalChasersSent)

		t2, err := f.tasks.GetByID(ctx, "t2")
		require.NoError(t, err)
		require.Equal(t, 0, t2.TotalChasersSent)
	})

	t.Run("duplicate callback is a no-op", func(t *testing.T) {
		f := newFixture()
		f.seed(t, "t1", "q1", domain.QueueStatusTriggered)

		require.NoError(t, f.uc.DispatchSucceeded(ctx, "q1", nil, ""))
		require.NoError(t, f.uc.DispatchSucceeded(ctx, "q1", nil, ""))

		task, err := f.tasks.GetByID(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, 1, task.TotalChasersSent)

		logs, err := f.logs.ListByTask(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, logs, 1)
	})

	t.Run("transient store failure keeps the retry deliverable", func(t *testing.T) {
		tasks := memory.NewTaskRepository()
		queue := &failOnceQueue{QueueRepository: memory.NewQueueRepository(tasks), failures: 1}
		logs := memory.NewDeliveryLogRepository()
		f := &fixture{
			uc:    New(tasks, queue, logs, memory.NewCallbackDeduper(), nil),
			tasks: tasks,
			queue: queue.QueueRepository,
			logs:  logs,
		}
		f.seed(t, "t1", "q1", domain.QueueStatusTriggered)

		require.Error(t, f.uc.DispatchSucceeded(ctx, "q1", nil, ""))
		require.NoError(t, f.uc.DispatchSucceeded(ctx, "q1", nil, ""))

		entry, err := f.queue.GetByID(ctx, "q1")
		require.NoError(t, err)
		require.Equal(t, domain.QueueStatusSent, entry.Status)

		logs2, err := f.logs.ListByTask(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, logs2, 1)

		task, err := f.tasks.GetByID(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, 1, task.TotalChasersSent)
	})

	t.Run("unknown queue id reports not found", func(t *testing.T) {
		f := newFixture()
		err := f.uc.DispatchSucceeded(ctx, "missing", nil, "")
		require.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
	})

	t.Run("missing dedupe store still processes the callback", func(t *testing.T) {
		tasks := memory.NewTaskRepository()
		queue := memory.NewQueueRepository(tasks)
		logs := memory.NewDeliveryLogRepository()
		f := &fixture{uc: New(tasks, queue, logs, nil, nil), tasks: tasks, queue: queue, logs: logs}
		f.seed(t, "t1", "q1", domain.QueueStatusTriggered)

		require.NoError(t, f.uc.DispatchSucceeded(ctx, "q1", nil, ""))

		entry, err := queue.GetByID(ctx, "q1")
		require.NoError(t, err)
		require.Equal(t, domain.QueueStatusSent, entry.Status)
	})
}

func TestDispatchFailed(t *testing.T) {
	ctx := context.Background()

	t.Run("marks failed with an error log and untouched counters", func(t *testing.T) {
		f := newFixture()
		f.seed(t, "t1", "q1", domain.QueueStatusTriggered)

		require.NoError(t, f.uc.DispatchFailed(ctx, "q1", "mailbox full"))

		entry, err := f.queue.GetByID(ctx, "q1")
		require.NoError(t, err)
		require.Equal(t, domain.QueueStatusFailed, entry.Status)

		logs, err := f.logs.ListByTask(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, logs, 1)
		require.Equal(t, domain.DeliveryFailed, logs[0].Status)
		require.Contains(t, logs[0].Body, "Delivery error: mailbox full")

		task, err := f.tasks.GetByID(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, 0, task.TotalChasersSent)
	})

	t.Run("failure after a sent callback is ignored", func(t *testing.T) {
		f := newFixture()
		f.seed(t, "t1", "q1", domain.QueueStatusTriggered)

		require.NoError(t, f.uc.DispatchSucceeded(ctx, "q1", nil, ""))
		require.NoError(t, f.uc.DispatchFailed(ctx, "q1", "late failure"))

		entry, err := f.queue.GetByID(ctx, "q1")
		require.NoError(t, err)
		require.Equal(t, domain.QueueStatusSent, entry.Status)

		logs, err := f.logs.ListByTask(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, logs, 1)
	})
}

func TestCalendarCallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("created stores the event reference", func(t *testing.T) {
		f := newFixture()
		f.seed(t, "t1", "q1", domain.QueueStatusPending)

		require.NoError(t, f.uc.CalendarCreated(ctx, "t1", "evt-42"))

		task, err := f.tasks.GetByID(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, "evt-42", task.CalendarEventID)
	})

	t.Run("created without an event id is rejected", func(t *testing.T) {
		f := newFixture()
		err := f.uc.CalendarCreated(ctx, "t1", "")
		require.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	})

	t.Run("conflict stores and clears the flag", func(t *testing.T) {
		f := newFixture()
		f.seed(t, "t1", "q1", domain.QueueStatusPending)

		end := time.Now().Add(time.Hour)
		require.NoError(t, f.uc.CalendarConflict(ctx, "t1", true, "standup", &end))
		task, err := f.tasks.GetByID(ctx, "t1")
		require.NoError(t, err)
		require.True(t, task.HasConflict)
		require.Equal(t, "standup", task.ConflictWith)

		require.NoError(t, f.uc.CalendarConflict(ctx, "t1", false, "", nil))
		task, err = f.tasks.GetByID(ctx, "t1")
		require.NoError(t, err)
		require.False(t, task.HasConflict)
	})
}
