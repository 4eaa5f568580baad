package transport

// TaskRequest is the create/update body for a task.
type TaskRequest struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	AssigneeName  string `json:"assignee_name"`
	AssigneeEmail string `json:"assignee_email"`
	AssigneePhone string `json:"assignee_phone"`
	SlackChannel  string `json:"slack_channel"`
	DueDate       string `json:"due_date"`
	Priority      string `json:"priority"`
}

// RescheduleRequest moves a task's due date.
type RescheduleRequest struct {
	DueDate string `json:"due_date"`
}

// DeliverySentRequest is the sink's success callback body.
type DeliverySentRequest struct {
	QueueID     string `json:"queue_id"`
	SentAt      string `json:"sent_at"`
	ExecutionID string `json:"execution_id"`
}

// DeliveryFailedRequest is the sink's failure callback body.
type DeliveryFailedRequest struct {
	QueueID string `json:"queue_id"`
	Error   string `json:"error"`
}

// CalendarConflictRequest reports a conflict-detection result.
type CalendarConflictRequest struct {
	TaskID          string `json:"task_id"`
	HasConflict     bool   `json:"has_conflict"`
	ConflictWith    string `json:"conflict_with"`
	ConflictEndTime string `json:"conflict_end_time"`
}

// CalendarCreatedRequest reports a created calendar event.
type CalendarCreatedRequest struct {
	TaskID  string `json:"task_id"`
	EventID string `json:"event_id"`
}
