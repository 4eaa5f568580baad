package sink

import "github.com/taskchase/backend/domain"

// Action types understood by the workflow-automation sink.
const (
	ActionCreate = "create"
	ActionNotify = "notify"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Payload is the flat key-value structure posted to the sink webhook. Channel
// content fields left empty tell the sink to skip that channel. The callback
// URLs carry signed tokens so the sink can report outcomes back.
type Payload struct {
	QueueID    string `json:"queue_id,omitempty"`
	TaskID     string `json:"task_id"`
	ActionType string `json:"action_type"`
	Tier       int    `json:"tier,omitempty"`

	AssigneeName  string `json:"assignee_name,omitempty"`
	AssigneeEmail string `json:"assignee_email,omitempty"`
	AssigneePhone string `json:"assignee_phone,omitempty"`
	SlackChannel  string `json:"slack_channel,omitempty"`

	Content domain.MessageContent `json:"content"`

	TaskTitle       string `json:"task_title"`
	TaskPriority    string `json:"task_priority"`
	TaskDueDate     string `json:"task_due_date"`
	TaskLink        string `json:"task_link,omitempty"`
	CalendarEventID string `json:"calendar_event_id,omitempty"`

	CallbackSentURL     string `json:"callback_sent_url,omitempty"`
	CallbackFailedURL   string `json:"callback_failed_url,omitempty"`
	CallbackConflictURL string `json:"callback_conflict_url,omitempty"`
	CallbackCreatedURL  string `json:"callback_created_url,omitempty"`
}
