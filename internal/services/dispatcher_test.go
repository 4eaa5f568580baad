package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskchase/backend/domain"
	"github.com/taskchase/backend/internal/infrastructure/sink"
	"github.com/taskchase/backend/repository/memory"
)

// fakeSink records dispatch payloads and can fail or block on demand.
type fakeSink struct {
	mu      sync.Mutex
	calls   []sink.Payload
	err     error
	blockCh chan struct{}
}

func (f *fakeSink) Dispatch(ctx context.Context, payload sink.Payload) error {
	if f.blockCh != nil {
		select {
		case <-f.blockCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, payload)
	return nil
}

func (f *fakeSink) payloads() []sink.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sink.Payload(nil), f.calls...)
}

func seedTask(t *testing.T, tasks *memory.TaskRepository, id string, status string) *domain.Task {
	t.Helper()
	task := &domain.Task{
		ID:            id,
		Title:         "Review contract",
		AssigneeEmail: "lee@example.com",
		DueDate:       time.Now().Add(6 * time.Hour),
		Priority:      domain.PriorityMedium,
		Status:        status,
	}
	_, err := tasks.Create(context.Background(), task)
	require.NoError(t, err)
	if status == domain.TaskStatusCompleted {
		_, err := tasks.MarkCompleted(context.Background(), id)
		require.NoError(t, err)
	}
	return task
}

func seedEntry(t *testing.T, queue *memory.QueueRepository, taskID, id string, at time.Time, status string) {
	t.Helper()
	_, err := queue.InsertBatch(context.Background(), []domain.QueueEntry{{
		ID:          id,
		TaskID:      taskID,
		ScheduledAt: at,
		Status:      status,
		Recipient:   "lee@example.com",
		Tier:        domain.TierReminder,
	}})
	require.NoError(t, err)
}

func TestDispatcherRunCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("due entries are dispatched earliest first", func(t *testing.T) {
		tasks := memory.NewTaskRepository()
		queue := memory.NewQueueRepository(tasks)
		sinkFake := &fakeSink{}

		seedTask(t, tasks, "t1", domain.TaskStatusPending)
		now := time.Now()
		seedEntry(t, queue, "t1", "late", now.Add(-time.Minute), domain.QueueStatusPending)
		seedEntry(t, queue, "t1", "early", now.Add(-time.Hour), domain.QueueStatusPending)
		seedEntry(t, queue, "t1", "future", now.Add(time.Hour), domain.QueueStatusPending)
		seedEntry(t, queue, "t1", "done", now.Add(-time.Hour), domain.QueueStatusSent)

		d := NewDispatcher(queue, sinkFake, zap.NewNop(), DispatcherConfig{})
		require.NoError(t, d.RunCycle(ctx))

		calls := sinkFake.payloads()
		require.Len(t, calls, 2)
		require.Equal(t, "early", calls[0].QueueID)
		require.Equal(t, "late", calls[1].QueueID)

		early, err := queue.GetByID(ctx, "early")
		require.NoError(t, err)
		require.Equal(t, domain.QueueStatusTriggered, early.Status)
		require.NotNil(t, early.LastAttemptAt)

		future, err := queue.GetByID(ctx, "future")
		require.NoError(t, err)
		require.Equal(t, domain.QueueStatusPending, future.Status)
	})

	t.Run("batch size bounds a cycle", func(t *testing.T) {
		tasks := memory.NewTaskRepository()
		queue := memory.NewQueueRepository(tasks)
		sinkFake := &fakeSink{}

		seedTask(t, tasks, "t1", domain.TaskStatusPending)
		now := time.Now()
		for i := 0; i < 8; i++ {
			seedEntry(t, queue, "t1", "", now.Add(-time.Duration(i+1)*time.Minute), domain.QueueStatusPending)
		}

		d := NewDispatcher(queue, sinkFake, zap.NewNop(), DispatcherConfig{BatchSize: 5})
		require.NoError(t, d.RunCycle(ctx))
		require.Len(t, sinkFake.payloads(), 5)
	})

	t.Run("sink failure leaves the entry pending with a fresh attempt stamp", func(t *testing.T) {
		tasks := memory.NewTaskRepository()
		queue := memory.NewQueueRepository(tasks)
		sinkFake := &fakeSink{err: errors.New("gateway timeout")}

		seedTask(t, tasks, "t1", domain.TaskStatusPending)
		seedEntry(t, queue, "t1", "q1", time.Now().Add(-time.Minute), domain.QueueStatusPending)

		d := NewDispatcher(queue, sinkFake, zap.NewNop(), DispatcherConfig{})
		require.NoError(t, d.RunCycle(ctx))

		entry, err := queue.GetByID(ctx, "q1")
		require.NoError(t, err)
		require.Equal(t, domain.QueueStatusPending, entry.Status)
		require.NotNil(t, entry.LastAttemptAt)

		task, err := tasks.GetByID(ctx, "t1")
		require.NoError(t, err)
		require.Zero(t, task.TotalChasersSent)
	})

	t.Run("entries for completed tasks are cancelled, not dispatched", func(t *testing.T) {
		tasks := memory.NewTaskRepository()
		queue := memory.NewQueueRepository(tasks)
		sinkFake := &fakeSink{}

		seedTask(t, tasks, "t1", domain.TaskStatusCompleted)
		seedEntry(t, queue, "t1", "q1", time.Now().Add(-time.Minute), domain.QueueStatusPending)

		d := NewDispatcher(queue, sinkFake, zap.NewNop(), DispatcherConfig{})
		require.NoError(t, d.RunCycle(ctx))

		require.Empty(t, sinkFake.payloads())
		entry, err := queue.GetByID(ctx, "q1")
		require.NoError(t, err)
		require.Equal(t, domain.QueueStatusCancelled, entry.Status)
	})

	t.Run("action type reflects calendar state", func(t *testing.T) {
		tasks := memory.NewTaskRepository()
		queue := memory.NewQueueRepository(tasks)
		sinkFake := &fakeSink{}

		seedTask(t, tasks, "t1", domain.TaskStatusPending)
		require.NoError(t, tasks.SetCalendarEvent(ctx, "t1", "evt-9"))
		seedTask(t, tasks, "t2", domain.TaskStatusPending)

		now := time.Now()
		seedEntry(t, queue, "t1", "q1", now.Add(-2*time.Minute), domain.QueueStatusPending)
		seedEntry(t, queue, "t2", "q2", now.Add(-time.Minute), domain.QueueStatusPending)

		d := NewDispatcher(queue, sinkFake, zap.NewNop(), DispatcherConfig{})
		require.NoError(t, d.RunCycle(ctx))

		calls := sinkFake.payloads()
		require.Len(t, calls, 2)
		require.Equal(t, sink.ActionNotify, calls[0].ActionType)
		require.Equal(t, sink.ActionCreate, calls[1].ActionType)
	})

	// A single dispatcher instance is assumed; this guard only protects
	// against overlapping ticks within one process.
	t.Run("overlapping cycles are skipped", func(t *testing.T) {
		tasks := memory.NewTaskRepository()
		queue := memory.NewQueueRepository(tasks)
		release := make(chan struct{})
		sinkFake := &fakeSink{blockCh: release}

		seedTask(t, tasks, "t1", domain.TaskStatusPending)
		seedEntry(t, queue, "t1", "q1", time.Now().Add(-time.Minute), domain.QueueStatusPending)

		d := NewDispatcher(queue, sinkFake, zap.NewNop(), DispatcherConfig{})

		started := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			close(started)
			done <- d.RunCycle(ctx)
		}()

		<-started
		time.Sleep(20 * time.Millisecond)   // let the first cycle reach the sink call
		require.NoError(t, d.RunCycle(ctx)) // skipped, does not touch the sink

		close(release)
		require.NoError(t, <-done)
		require.Len(t, sinkFake.payloads(), 1)
	})
}

func TestEverySchedule(t *testing.T) {
	require.Equal(t, "@every 1m30s", everySchedule(90*time.Second))
	require.Equal(t, "@every 2.5s", everySchedule(2500*time.Millisecond))

	c := cron.New(cron.WithSeconds())
	for _, interval := range []time.Duration{45 * time.Second, 90 * time.Second, 2500 * time.Millisecond} {
		_, err := c.AddFunc(everySchedule(interval), func() {})
		require.NoError(t, err)
	}
}
