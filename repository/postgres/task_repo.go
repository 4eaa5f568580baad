package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskchase/backend/domain"
	"github.com/taskchase/backend/repository"
)

const taskColumns = `
	id, title, assignee_name, assignee_email, assignee_phone, slack_channel,
	due_date, priority, status, total_chasers_sent, last_chaser_sent_at,
	calendar_event_id, has_conflict, conflict_with, conflict_end_time,
	created_at, updated_at`

type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository returns a Postgres-backed implementation of TaskRepository.
func NewTaskRepository(pool *pgxpool.Pool) repository.TaskRepository {
	return &taskRepository{pool: pool}
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	query := `SELECT` + taskColumns + ` FROM tasks WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	return scanTask(row)
}

func (r *taskRepository) List(ctx context.Context, filter repository.TaskFilter) ([]domain.Task, error) {
	query := `
	SELECT` + taskColumns + `
	FROM tasks
	WHERE ($1 = '' OR status = $1)
	  AND ($2 = '' OR priority = $2)
	ORDER BY due_date ASC
	LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, filter.Status, filter.Priority, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if task == nil {
		return nil, domain.ErrInvalidPayload
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}

	const query = `
	INSERT INTO tasks (id, title, assignee_name, assignee_email, assignee_phone, slack_channel, due_date, priority, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING created_at, updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		task.ID,
		task.Title,
		task.AssigneeName,
		task.AssigneeEmail,
		task.AssigneePhone,
		task.SlackChannel,
		task.DueDate,
		task.Priority,
		task.Status,
	).Scan(&task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, err
	}

	return task, nil
}

func (r *taskRepository) Update(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE tasks
	SET title = $2,
		assignee_name = $3,
		assignee_email = $4,
		assignee_phone = $5,
		slack_channel = $6,
		due_date = $7,
		priority = $8,
		updated_at = NOW()
	WHERE id = $1
	RETURNING updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		task.ID,
		task.Title,
		task.AssigneeName,
		task.AssigneeEmail,
		task.AssigneePhone,
		task.SlackChannel,
		task.DueDate,
		task.Priority,
	).Scan(&task.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrTaskNotFound
		}
		return err
	}

	return nil
}

func (r *taskRepository) MarkCompleted(ctx context.Context, id string) (*domain.Task, error) {
	// Idempotent: completing a completed task just returns the row.
	query := `
	UPDATE tasks
	SET status = $2, updated_at = NOW()
	WHERE id = $1
	RETURNING` + taskColumns
	row := r.pool.QueryRow(ctx, query, id, domain.TaskStatusCompleted)
	return scanTask(row)
}

func (r *taskRepository) IncrementChaserCount(ctx context.Context, id string, sentAt time.Time) error {
	// The increment happens in SQL so concurrent callbacks never lose updates.
	const query = `
	UPDATE tasks
	SET total_chasers_sent = total_chasers_sent + 1,
		last_chaser_sent_at = $2,
		updated_at = NOW()
	WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, sentAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *taskRepository) SetCalendarEvent(ctx context.Context, id, eventID string) error {
	const query = `UPDATE tasks SET calendar_event_id = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *taskRepository) SetConflict(ctx context.Context, id string, hasConflict bool, conflictWith string, conflictEnd *time.Time) error {
	const query = `
	UPDATE tasks
	SET has_conflict = $2, conflict_with = $3, conflict_end_time = $4, updated_at = NOW()
	WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, hasConflict, conflictWith, conflictEnd)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func scanTask(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Task, error) {
	var task domain.Task
	if err := row.Scan(
		&task.ID,
		&task.Title,
		&task.AssigneeName,
		&task.AssigneeEmail,
		&task.AssigneePhone,
		&task.SlackChannel,
		&task.DueDate,
		&task.Priority,
		&task.Status,
		&task.TotalChasersSent,
		&task.LastChaserSentAt,
		&task.CalendarEventID,
		&task.HasConflict,
		&task.ConflictWith,
		&task.ConflictEndTime,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 100
	}
	return limit
}
