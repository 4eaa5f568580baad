package domain

import "time"

// Queue entry statuses. A pending entry is waiting for dispatch; triggered
// means the sink accepted the job but has not yet confirmed delivery. Sent,
// failed and cancelled are terminal.
const (
	QueueStatusPending   = "pending"
	QueueStatusTriggered = "triggered"
	QueueStatusSent      = "sent"
	QueueStatusFailed    = "failed"
	QueueStatusCancelled = "cancelled"
)

// QueueEntry is a single scheduled chaser for a task.
type QueueEntry struct {
	ID            string     `json:"id"`
	TaskID        string     `json:"task_id"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	Status        string     `json:"status"`
	Recipient     string     `json:"recipient"`
	Subject       string     `json:"subject"`
	Body          string     `json:"body"`
	Tier          Tier       `json:"tier"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// IsTerminal reports whether the entry can no longer change state.
func (e *QueueEntry) IsTerminal() bool {
	if e == nil {
		return false
	}
	switch e.Status {
	case QueueStatusSent, QueueStatusFailed, QueueStatusCancelled:
		return true
	}
	return false
}

// DueEntry pairs a queue entry with its owning task, as returned by the
// due-entry selection query.
type DueEntry struct {
	Entry QueueEntry
	Task  Task
}
