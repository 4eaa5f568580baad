// Package memory provides mutex-guarded in-memory repository implementations.
// They back the unit tests and double as a lightweight stand-in store when no
// database is available.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskchase/backend/domain"
	"github.com/taskchase/backend/repository"
)

type TaskRepository struct {
	mu    sync.Mutex
	tasks map[string]domain.Task
}

func NewTaskRepository() *TaskRepository {
	return &TaskRepository{tasks: make(map[string]domain.Task)}
}

func (r *TaskRepository) GetByID(_ context.Context, id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return &task, nil
}

func (r *TaskRepository) List(_ context.Context, filter repository.TaskFilter) ([]domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tasks []domain.Task
	for _, task := range r.tasks {
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && task.Priority != filter.Priority {
			continue
		}
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].DueDate.Before(tasks[j].DueDate)
	})
	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

func (r *TaskRepository) Create(_ context.Context, task *domain.Task) (*domain.Task, error) {
	if task == nil {
		return nil, domain.ErrInvalidPayload
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	r.tasks[task.ID] = *task
	return task, nil
}

func (r *TaskRepository) Update(_ context.Context, task *domain.Task) error {
	if task == nil {
		return domain.ErrInvalidPayload
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.tasks[task.ID]
	if !ok {
		return domain.ErrTaskNotFound
	}
	current.Title = task.Title
	current.AssigneeName = task.AssigneeName
	current.AssigneeEmail = task.AssigneeEmail
	current.AssigneePhone = task.AssigneePhone
	current.SlackChannel = task.SlackChannel
	current.DueDate = task.DueDate
	current.Priority = task.Priority
	current.UpdatedAt = time.Now()
	r.tasks[task.ID] = current
	*task = current
	return nil
}

func (r *TaskRepository) MarkCompleted(_ context.Context, id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	task.Status = domain.TaskStatusCompleted
	task.UpdatedAt = time.Now()
	r.tasks[id] = task
	return &task, nil
}

func (r *TaskRepository) IncrementChaserCount(_ context.Context, id string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	task.TotalChasersSent++
	task.LastChaserSentAt = &sentAt
	task.UpdatedAt = time.Now()
	r.tasks[id] = task
	return nil
}

func (r *TaskRepository) SetCalendarEvent(_ context.Context, id, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	task.CalendarEventID = eventID
	r.tasks[id] = task
	return nil
}

func (r *TaskRepository) SetConflict(_ context.Context, id string, hasConflict bool, conflictWith string, conflictEnd *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	task.HasConflict = hasConflict
	task.ConflictWith = conflictWith
	task.ConflictEndTime = conflictEnd
	r.tasks[id] = task
	return nil
}

type QueueRepository struct {
	mu      sync.Mutex
	entries map[string]domain.QueueEntry
	tasks   *TaskRepository
}

// NewQueueRepository builds a queue repository joined against the provided
// task repository, mirroring the SQL join in the due-entry query.
func NewQueueRepository(tasks *TaskRepository) *QueueRepository {
	return &QueueRepository{
		entries: make(map[string]domain.QueueEntry),
		tasks:   tasks,
	}
}

func (r *QueueRepository) GetByID(_ context.Context, id string) (*domain.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, domain.ErrQueueEntryNotFound
	}
	return &entry, nil
}

func (r *QueueRepository) ListByTask(_ context.Context, taskID string) ([]domain.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var entries []domain.QueueEntry
	for _, entry := range r.entries {
		if entry.TaskID == taskID {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ScheduledAt.Before(entries[j].ScheduledAt)
	})
	return entries, nil
}

func (r *QueueRepository) InsertBatch(_ context.Context, entries []domain.QueueEntry) ([]domain.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		if entries[i].Status == "" {
			entries[i].Status = domain.QueueStatusPending
		}
		entries[i].CreatedAt = time.Now()
		r.entries[entries[i].ID] = entries[i]
	}
	return entries, nil
}

func (r *QueueRepository) DueEntries(ctx context.Context, limit int, now time.Time) ([]domain.DueEntry, error) {
	r.mu.Lock()
	var selected []domain.QueueEntry
	for _, entry := range r.entries {
		if entry.Status == domain.QueueStatusPending && !entry.ScheduledAt.After(now) {
			selected = append(selected, entry)
		}
	}
	r.mu.Unlock()

	sort.Slice(selected, func(i, j int) bool {
		return selected[i].ScheduledAt.Before(selected[j].ScheduledAt)
	})
	if limit > 0 && len(selected) > limit {
		selected = selected[:limit]
	}

	var due []domain.DueEntry
	for _, entry := range selected {
		task, err := r.tasks.GetByID(ctx, entry.TaskID)
		if err != nil {
			// Orphaned entry, skip it like an inner join would.
			continue
		}
		due = append(due, domain.DueEntry{Entry: entry, Task: *task})
	}
	return due, nil
}

func (r *QueueRepository) MarkTriggered(_ context.Context, id string, attemptAt time.Time) error {
	return r.mutate(id, func(e *domain.QueueEntry) {
		// Pending only, so a callback that already advanced the entry is
		// never rolled back.
		if e.Status != domain.QueueStatusPending {
			return
		}
		e.Status = domain.QueueStatusTriggered
		e.LastAttemptAt = &attemptAt
	})
}

func (r *QueueRepository) TouchAttempt(_ context.Context, id string, attemptAt time.Time) error {
	return r.mutate(id, func(e *domain.QueueEntry) {
		e.LastAttemptAt = &attemptAt
	})
}

func (r *QueueRepository) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	return r.mutate(id, func(e *domain.QueueEntry) {
		e.Status = domain.QueueStatusSent
		e.SentAt = &sentAt
	})
}

func (r *QueueRepository) MarkFailed(_ context.Context, id string) error {
	return r.mutate(id, func(e *domain.QueueEntry) {
		e.Status = domain.QueueStatusFailed
	})
}

func (r *QueueRepository) MarkCancelled(_ context.Context, id string) error {
	return r.mutate(id, func(e *domain.QueueEntry) {
		e.Status = domain.QueueStatusCancelled
	})
}

func (r *QueueRepository) CancelPendingForTask(_ context.Context, taskID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, entry := range r.entries {
		if entry.TaskID == taskID && entry.Status == domain.QueueStatusPending {
			entry.Status = domain.QueueStatusCancelled
			r.entries[id] = entry
			count++
		}
	}
	return count, nil
}

func (r *QueueRepository) mutate(id string, fn func(*domain.QueueEntry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return domain.ErrQueueEntryNotFound
	}
	fn(&entry)
	r.entries[id] = entry
	return nil
}

type DeliveryLogRepository struct {
	mu   sync.Mutex
	logs []domain.DeliveryLog
}

func NewDeliveryLogRepository() *DeliveryLogRepository {
	return &DeliveryLogRepository{}
}

func (r *DeliveryLogRepository) Insert(_ context.Context, log *domain.DeliveryLog) (*domain.DeliveryLog, error) {
	if log == nil {
		return nil, domain.ErrInvalidPayload
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	log.CreatedAt = time.Now()
	r.logs = append(r.logs, *log)
	return log, nil
}

func (r *DeliveryLogRepository) ListByTask(_ context.Context, taskID string) ([]domain.DeliveryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var logs []domain.DeliveryLog
	for _, log := range r.logs {
		if log.TaskID == taskID {
			logs = append(logs, log)
		}
	}
	return logs, nil
}

type CallbackDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewCallbackDeduper() *CallbackDeduper {
	return &CallbackDeduper{seen: make(map[string]bool)}
}

func (d *CallbackDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

var (
	_ repository.TaskRepository        = (*TaskRepository)(nil)
	_ repository.QueueRepository       = (*QueueRepository)(nil)
	_ repository.DeliveryLogRepository = (*DeliveryLogRepository)(nil)
	_ repository.CallbackDeduper       = (*CallbackDeduper)(nil)
)
