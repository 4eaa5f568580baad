package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskchase/backend/domain"
	"github.com/taskchase/backend/repository"
)

func seedTask(t *testing.T, tasks *TaskRepository, id string, status string) {
	t.Helper()
	_, err := tasks.Create(context.Background(), &domain.Task{
		ID:            id,
		Title:         "Task " + id,
		AssigneeEmail: id + "@example.com",
		DueDate:       time.Now().Add(24 * time.Hour),
		Priority:      domain.PriorityMedium,
		Status:        status,
	})
	require.NoError(t, err)
}

func TestTaskRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("list filters by status and priority", func(t *testing.T) {
		tasks := NewTaskRepository()
		seedTask(t, tasks, "a", domain.TaskStatusPending)
		seedTask(t, tasks, "b", domain.TaskStatusCompleted)
		seedTask(t, tasks, "c", domain.TaskStatusPending)

		pending, err := tasks.List(ctx, repository.TaskFilter{Status: domain.TaskStatusPending})
		require.NoError(t, err)
		require.Len(t, pending, 2)

		all, err := tasks.List(ctx, repository.TaskFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
	})

	t.Run("mark completed is idempotent", func(t *testing.T) {
		tasks := NewTaskRepository()
		seedTask(t, tasks, "a", domain.TaskStatusPending)

		first, err := tasks.MarkCompleted(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, domain.TaskStatusCompleted, first.Status)

		second, err := tasks.MarkCompleted(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, domain.TaskStatusCompleted, second.Status)
	})

	t.Run("increment bumps the counter and stamp", func(t *testing.T) {
		tasks := NewTaskRepository()
		seedTask(t, tasks, "a", domain.TaskStatusPending)

		at := time.Now()
		require.NoError(t, tasks.IncrementChaserCount(ctx, "a", at))
		require.NoError(t, tasks.IncrementChaserCount(ctx, "a", at.Add(time.Minute)))

		task, err := tasks.GetByID(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, 2, task.TotalChasersSent)
		require.True(t, task.LastChaserSentAt.Equal(at.Add(time.Minute)))
	})

	t.Run("unknown ids report not found", func(t *testing.T) {
		tasks := NewTaskRepository()
		_, err := tasks.GetByID(ctx, "ghost")
		require.ErrorIs(t, err, domain.ErrTaskNotFound)
		_, err = tasks.MarkCompleted(ctx, "ghost")
		require.ErrorIs(t, err, domain.ErrTaskNotFound)
	})
}

func TestQueueRepository(t *testing.T) {
	ctx := context.Background()

	insert := func(t *testing.T, queue *QueueRepository, id, taskID string, at time.Time, status string) {
		t.Helper()
		_, err := queue.InsertBatch(ctx, []domain.QueueEntry{{
			ID:          id,
			TaskID:      taskID,
			ScheduledAt: at,
			Status:      status,
			Recipient:   "x@example.com",
		}})
		require.NoError(t, err)
	}

	t.Run("due entries come back earliest first and capped", func(t *testing.T) {
		tasks := NewTaskRepository()
		queue := NewQueueRepository(tasks)
		seedTask(t, tasks, "a", domain.TaskStatusPending)

		now := time.Now()
		insert(t, queue, "late", "a", now.Add(-time.Minute), domain.QueueStatusPending)
		insert(t, queue, "early", "a", now.Add(-time.Hour), domain.QueueStatusPending)
		insert(t, queue, "future", "a", now.Add(time.Hour), domain.QueueStatusPending)
		insert(t, queue, "done", "a", now.Add(-2*time.Hour), domain.QueueStatusSent)

		due, err := queue.DueEntries(ctx, 5, now)
		require.NoError(t, err)
		require.Len(t, due, 2)
		require.Equal(t, "early", due[0].Entry.ID)
		require.Equal(t, "late", due[1].Entry.ID)

		capped, err := queue.DueEntries(ctx, 1, now)
		require.NoError(t, err)
		require.Len(t, capped, 1)
		require.Equal(t, "early", capped[0].Entry.ID)
	})

	t.Run("orphaned entries are skipped", func(t *testing.T) {
		tasks := NewTaskRepository()
		queue := NewQueueRepository(tasks)

		insert(t, queue, "q", "missing-task", time.Now().Add(-time.Minute), domain.QueueStatusPending)

		due, err := queue.DueEntries(ctx, 5, time.Now())
		require.NoError(t, err)
		require.Empty(t, due)
	})

	t.Run("cancel pending leaves other states alone", func(t *testing.T) {
		tasks := NewTaskRepository()
		queue := NewQueueRepository(tasks)
		seedTask(t, tasks, "a", domain.TaskStatusPending)

		now := time.Now()
		insert(t, queue, "p1", "a", now, domain.QueueStatusPending)
		insert(t, queue, "p2", "a", now, domain.QueueStatusPending)
		insert(t, queue, "tr", "a", now, domain.QueueStatusTriggered)

		cancelled, err := queue.CancelPendingForTask(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, 2, cancelled)

		entry, err := queue.GetByID(ctx, "tr")
		require.NoError(t, err)
		require.Equal(t, domain.QueueStatusTriggered, entry.Status)
	})

	t.Run("state transitions stamp the entry", func(t *testing.T) {
		tasks := NewTaskRepository()
		queue := NewQueueRepository(tasks)

		now := time.Now()
		insert(t, queue, "q", "a", now, domain.QueueStatusPending)

		require.NoError(t, queue.MarkTriggered(ctx, "q", now))
		entry, err := queue.GetByID(ctx, "q")
		require.NoError(t, err)
		require.Equal(t, domain.QueueStatusTriggered, entry.Status)
		require.NotNil(t, entry.LastAttemptAt)

		sentAt := now.Add(time.Second)
		require.NoError(t, queue.MarkSent(ctx, "q", sentAt))
		entry, err = queue.GetByID(ctx, "q")
		require.NoError(t, err)
		require.Equal(t, domain.QueueStatusSent, entry.Status)
		require.True(t, entry.SentAt.Equal(sentAt))

		require.ErrorIs(t, queue.MarkFailed(ctx, "ghost"), domain.ErrQueueEntryNotFound)
	})

	t.Run("late triggered write never regresses a sent entry", func(t *testing.T) {
		tasks := NewTaskRepository()
		queue := NewQueueRepository(tasks)

		now := time.Now()
		insert(t, queue, "q", "a", now, domain.QueueStatusPending)
		require.NoError(t, queue.MarkSent(ctx, "q", now))

		require.NoError(t, queue.MarkTriggered(ctx, "q", now.Add(time.Second)))

		entry, err := queue.GetByID(ctx, "q")
		require.NoError(t, err)
		require.Equal(t, domain.QueueStatusSent, entry.Status)
		require.Nil(t, entry.LastAttemptAt)
	})
}

func TestCallbackDeduper(t *testing.T) {
	ctx := context.Background()
	d := NewCallbackDeduper()

	ok, err := d.Claim(ctx, "q1:sent")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = d.Claim(ctx, "q1:sent")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = d.Claim(ctx, "q1:failed")
	require.NoError(t, err)
	require.True(t, ok)
}
