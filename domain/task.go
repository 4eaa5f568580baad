package domain

import "time"

// Task statuses.
const (
	TaskStatusPending   = "pending"
	TaskStatusCompleted = "completed"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task represents a tracked piece of work that chasers are scheduled against.
type Task struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	AssigneeName     string     `json:"assignee_name,omitempty"`
	AssigneeEmail    string     `json:"assignee_email"`
	AssigneePhone    string     `json:"assignee_phone,omitempty"`
	SlackChannel     string     `json:"slack_channel,omitempty"`
	DueDate          time.Time  `json:"due_date"`
	Priority         string     `json:"priority"`
	Status           string     `json:"status"`
	TotalChasersSent int        `json:"total_chasers_sent"`
	LastChaserSentAt *time.Time `json:"last_chaser_sent_at,omitempty"`
	CalendarEventID  string     `json:"calendar_event_id,omitempty"`
	HasConflict      bool       `json:"has_conflict"`
	ConflictWith     string     `json:"conflict_with,omitempty"`
	ConflictEndTime  *time.Time `json:"conflict_end_time,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (t *Task) IsCompleted() bool {
	return t != nil && t.Status == TaskStatusCompleted
}

// ValidPriority reports whether p is one of the known priority levels.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}
