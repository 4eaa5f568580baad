package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskchase/backend/domain"
	"github.com/taskchase/backend/repository"
)

type deliveryLogRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryLogRepository returns a Postgres-backed DeliveryLogRepository.
func NewDeliveryLogRepository(pool *pgxpool.Pool) repository.DeliveryLogRepository {
	return &deliveryLogRepository{pool: pool}
}

func (r *deliveryLogRepository) Insert(ctx context.Context, log *domain.DeliveryLog) (*domain.DeliveryLog, error) {
	if log == nil {
		return nil, domain.ErrInvalidPayload
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO delivery_logs (id, task_id, queue_id, status, recipient, subject, body, execution_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING created_at
	`
	if err := r.pool.QueryRow(ctx, query,
		log.ID,
		log.TaskID,
		log.QueueID,
		log.Status,
		log.Recipient,
		log.Subject,
		log.Body,
		log.ExecutionID,
	).Scan(&log.CreatedAt); err != nil {
		return nil, err
	}
	return log, nil
}

func (r *deliveryLogRepository) ListByTask(ctx context.Context, taskID string) ([]domain.DeliveryLog, error) {
	const query = `
	SELECT id, task_id, queue_id, status, recipient, subject, body, execution_id, created_at
	FROM delivery_logs
	WHERE task_id = $1
	ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.DeliveryLog
	for rows.Next() {
		var log domain.DeliveryLog
		if err := rows.Scan(
			&log.ID,
			&log.TaskID,
			&log.QueueID,
			&log.Status,
			&log.Recipient,
			&log.Subject,
			&log.Body,
			&log.ExecutionID,
			&log.CreatedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
