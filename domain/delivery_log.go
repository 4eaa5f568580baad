package domain

import "time"

// Delivery outcomes recorded in the audit trail.
const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// DeliveryLog is an append-only record of a chaser's final outcome as
// reported by the sink. Queue references are soft: a log row stays valid
// even if the queue entry is later removed.
type DeliveryLog struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	QueueID     string    `json:"queue_id"`
	Status      string    `json:"status"`
	Recipient   string    `json:"recipient"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	ExecutionID string    `json:"execution_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
