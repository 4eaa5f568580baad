package domain

import (
	"fmt"
	"time"
)

// Tier is the escalation level of a chaser. Higher tiers fire closer to the
// due date and use increasingly urgent wording. Tier 0 is reserved for
// manually triggered nudges.
type Tier int

const (
	TierNudge    Tier = 0
	TierHeadsUp  Tier = 1
	TierReminder Tier = 2
	TierUrgent   Tier = 3
	TierCritical Tier = 4
)

// TierOffsets maps each scheduled tier to how long before the due date it
// fires.
var TierOffsets = map[Tier]time.Duration{
	TierHeadsUp:  24 * time.Hour,
	TierReminder: 12 * time.Hour,
	TierUrgent:   4 * time.Hour,
	TierCritical: time.Hour,
}

// ScheduledTiers lists the tiers the planner emits, in firing order.
var ScheduledTiers = []Tier{TierHeadsUp, TierReminder, TierUrgent, TierCritical}

func (t Tier) Valid() bool {
	return t >= TierNudge && t <= TierCritical
}

type tierTemplate struct {
	subject string
	lead    string
	voice   string
}

// One template row per tier; the same wording feeds every channel, with the
// subject only used by email.
var tierTemplates = map[Tier]tierTemplate{
	TierNudge: {
		subject: "Nudge: %q",
		lead:    "A quick nudge about %q — it is due %s.",
		voice:   "Hello. This is a reminder that the task %s is due %s.",
	},
	TierHeadsUp: {
		subject: "Heads up: %q is coming due",
		lead:    "Just a heads up that %q is due %s. No action needed yet if you're on track.",
		voice:   "Hello. The task %s is due %s.",
	},
	TierReminder: {
		subject: "Reminder: %q is due %s",
		lead:    "Reminder that %q is due %s. Please make sure it's on your radar.",
		voice:   "Hello. Please remember that the task %s is due %s.",
	},
	TierUrgent: {
		subject: "Urgent: %q is due %s",
		lead:    "%q is due %s and has not been completed. Please prioritise it now.",
		voice:   "Hello. This is an urgent reminder. The task %s is due %s and is still open.",
	},
	TierCritical: {
		subject: "CRITICAL: %q is due %s",
		lead:    "Final notice: %q is due %s. Complete it immediately or flag a blocker.",
		voice:   "Hello. This is a critical alert. The task %s is due %s. Immediate action is required.",
	},
}

// MessageContent carries the per-channel rendered strings sent to the sink.
// An empty string means the channel should be skipped.
type MessageContent struct {
	EmailSubject string `json:"email_subject"`
	EmailBody    string `json:"email_body"`
	SMS          string `json:"sms"`
	Slack        string `json:"slack"`
	Voice        string `json:"voice"`
}

// RenderContent produces the channel strings for one tier, using the task's
// current due date so wording stays accurate after a reschedule. Channels
// without a configured recipient come back empty.
func RenderContent(tier Tier, task *Task, now time.Time) MessageContent {
	if !tier.Valid() {
		tier = TierCritical
	}
	tpl := tierTemplates[tier]

	due := RemainingText(task.DueDate, now)
	name := task.AssigneeName
	if name == "" {
		name = "there"
	}

	body := fmt.Sprintf("Hi %s,\n\n%s\n\nPriority: %s\nDue: %s\n",
		name,
		fmt.Sprintf(tpl.lead, task.Title, due),
		task.Priority,
		task.DueDate.Format(time.RFC1123),
	)

	subject := fmt.Sprintf(tpl.subject, task.Title)
	if tier >= TierReminder {
		subject = fmt.Sprintf(tpl.subject, task.Title, due)
	}
	content := MessageContent{
		EmailSubject: subject,
		EmailBody:    body,
	}

	if task.AssigneePhone != "" {
		content.SMS = fmt.Sprintf("Task %q is due %s.", task.Title, due)
		if tier >= TierUrgent {
			content.Voice = fmt.Sprintf(tpl.voice, task.Title, due)
		}
	}
	if task.SlackChannel != "" {
		content.Slack = fmt.Sprintf(tpl.lead, task.Title, due)
	}

	return content
}

// RemainingText renders the time left until due as human wording.
func RemainingText(due, now time.Time) string {
	d := due.Sub(now)
	switch {
	case d <= 0:
		return "now overdue"
	case d < time.Minute:
		return "in under a minute"
	case d < time.Hour:
		return fmt.Sprintf("in %d minutes", int(d.Minutes()))
	case d < 48*time.Hour:
		hours := int(d.Round(time.Hour).Hours())
		if hours == 1 {
			return "in 1 hour"
		}
		return fmt.Sprintf("in %d hours", hours)
	default:
		return fmt.Sprintf("in %d days", int(d.Hours()/24))
	}
}
