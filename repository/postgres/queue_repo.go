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

const queueColumns = `
	id, task_id, scheduled_at, status, recipient, subject, body, tier,
	sent_at, last_attempt_at, created_at`

type queueRepository struct {
	pool *pgxpool.Pool
}

// NewQueueRepository returns a Postgres-backed implementation of QueueRepository.
func NewQueueRepository(pool *pgxpool.Pool) repository.QueueRepository {
	return &queueRepository{pool: pool}
}

func (r *queueRepository) GetByID(ctx context.Context, id string) (*domain.QueueEntry, error) {
	query := `SELECT` + queueColumns + ` FROM chaser_queue WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	return scanEntry(row)
}

func (r *queueRepository) ListByTask(ctx context.Context, taskID string) ([]domain.QueueEntry, error) {
	query := `SELECT` + queueColumns + ` FROM chaser_queue WHERE task_id = $1 ORDER BY scheduled_at ASC`
	rows, err := r.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (r *queueRepository) InsertBatch(ctx context.Context, entries []domain.QueueEntry) ([]domain.QueueEntry, error) {
	const query = `
	INSERT INTO chaser_queue (id, task_id, scheduled_at, status, recipient, subject, body, tier)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING created_at
	`
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		if entries[i].Status == "" {
			entries[i].Status = domain.QueueStatusPending
		}
		if err := r.pool.QueryRow(ctx, query,
			entries[i].ID,
			entries[i].TaskID,
			entries[i].ScheduledAt,
			entries[i].Status,
			entries[i].Recipient,
			entries[i].Subject,
			entries[i].Body,
			int(entries[i].Tier),
		).Scan(&entries[i].CreatedAt); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (r *queueRepository) DueEntries(ctx context.Context, limit int, now time.Time) ([]domain.DueEntry, error) {
	query := `
	SELECT
		q.id, q.task_id, q.scheduled_at, q.status, q.recipient, q.subject, q.body, q.tier,
		q.sent_at, q.last_attempt_at, q.created_at,` + taskColumnsAliased("t") + `
	FROM chaser_queue q
	JOIN tasks t ON t.id = q.task_id
	WHERE q.status = $1 AND q.scheduled_at <= $2
	ORDER BY q.scheduled_at ASC
	LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, domain.QueueStatusPending, now, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []domain.DueEntry
	for rows.Next() {
		var d domain.DueEntry
		if err := rows.Scan(
			&d.Entry.ID,
			&d.Entry.TaskID,
			&d.Entry.ScheduledAt,
			&d.Entry.Status,
			&d.Entry.Recipient,
			&d.Entry.Subject,
			&d.Entry.Body,
			&d.Entry.Tier,
			&d.Entry.SentAt,
			&d.Entry.LastAttemptAt,
			&d.Entry.CreatedAt,
			&d.Task.ID,
			&d.Task.Title,
			&d.Task.AssigneeName,
			&d.Task.AssigneeEmail,
			&d.Task.AssigneePhone,
			&d.Task.SlackChannel,
			&d.Task.DueDate,
			&d.Task.Priority,
			&d.Task.Status,
			&d.Task.TotalChasersSent,
			&d.Task.LastChaserSentAt,
			&d.Task.CalendarEventID,
			&d.Task.HasConflict,
			&d.Task.ConflictWith,
			&d.Task.ConflictEndTime,
			&d.Task.CreatedAt,
			&d.Task.UpdatedAt,
		); err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

func (r *queueRepository) MarkTriggered(ctx context.Context, id string, attemptAt time.Time) error {
	const query = `
	UPDATE chaser_queue
	SET status = $2, last_attempt_at = $3
	WHERE id = $1 AND status = $4
	`
	tag, err := r.pool.Exec(ctx, query, id, domain.QueueStatusTriggered, attemptAt, domain.QueueStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// A callback may have advanced the entry between the sink accept and
		// this write. Only a missing row is an error.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *queueRepository) TouchAttempt(ctx context.Context, id string, attemptAt time.Time) error {
	const query = `UPDATE chaser_queue SET last_attempt_at = $2 WHERE id = $1`
	return r.exec(ctx, query, id, attemptAt)
}

func (r *queueRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	const query = `UPDATE chaser_queue SET status = $2, sent_at = $3 WHERE id = $1`
	return r.exec(ctx, query, id, domain.QueueStatusSent, sentAt)
}

func (r *queueRepository) MarkFailed(ctx context.Context, id string) error {
	const query = `UPDATE chaser_queue SET status = $2 WHERE id = $1`
	return r.exec(ctx, query, id, domain.QueueStatusFailed)
}

func (r *queueRepository) MarkCancelled(ctx context.Context, id string) error {
	const query = `UPDATE chaser_queue SET status = $2 WHERE id = $1`
	return r.exec(ctx, query, id, domain.QueueStatusCancelled)
}

func (r *queueRepository) CancelPendingForTask(ctx context.Context, taskID string) (int, error) {
	const query = `
	UPDATE chaser_queue
	SET status = $2
	WHERE task_id = $1 AND status = $3
	`
	tag, err := r.pool.Exec(ctx, query, taskID, domain.QueueStatusCancelled, domain.QueueStatusPending)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *queueRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQueueEntryNotFound
	}
	return nil
}

func scanEntry(row interface {
	Scan(dest ...interface{}) error
}) (*domain.QueueEntry, error) {
	var entry domain.QueueEntry
	if err := row.Scan(
		&entry.ID,
		&entry.TaskID,
		&entry.ScheduledAt,
		&entry.Status,
		&entry.Recipient,
		&entry.Subject,
		&entry.Body,
		&entry.Tier,
		&entry.SentAt,
		&entry.LastAttemptAt,
		&entry.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQueueEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func taskColumnsAliased(alias string) string {
	return `
		` + alias + `.id, ` + alias + `.title, ` + alias + `.assignee_name, ` + alias + `.assignee_email,
		` + alias + `.assignee_phone, ` + alias + `.slack_channel, ` + alias + `.due_date, ` + alias + `.priority,
		` + alias + `.status, ` + alias + `.total_chasers_sent, ` + alias + `.last_chaser_sent_at,
		` + alias + `.calendar_event_id, ` + alias + `.has_conflict, ` + alias + `.conflict_with,
		` + alias + `.conflict_end_time, ` + alias + `.created_at, ` + alias + `.updated_at`
}
