// Package chaser computes the escalation schedule for a task: which reminder
// tiers fire, and when, relative to the due date.
package chaser

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskchase/backend/domain"
)

// FallbackDelay is how far ahead the single fallback chaser is scheduled when
// every tier instant would already be in the past.
const FallbackDelay = time.Minute

// Plan computes the queue entries for a task at reference time ref. It is
// pure: no I/O, no clock reads, deterministic for a given input. For each
// tier whose instant (due minus offset) lies strictly after ref, one pending
// entry is emitted. If no tier qualifies the task still gets exactly one
// critical entry at ref plus FallbackDelay, so every task is chased at least
// once.
func Plan(task *domain.Task, ref time.Time) []domain.QueueEntry {
	if task == nil {
		return nil
	}

	var entries []domain.QueueEntry
	for _, tier := range domain.ScheduledTiers {
		at := task.DueDate.Add(-domain.TierOffsets[tier])
		if !at.After(ref) {
			continue
		}
		entries = append(entries, newEntry(task, tier, at, ref))
	}

	if len(entries) == 0 {
		entries = append(entries, newEntry(task, domain.TierCritical, ref.Add(FallbackDelay), ref))
	}

	return entries
}

func newEntry(task *domain.Task, tier domain.Tier, at, ref time.Time) domain.QueueEntry {
	// Content is snapshotted here for auditability; the dispatcher re-renders
	// it at send time so the wording tracks the task's current due date.
	content := domain.RenderContent(tier, task, ref)
	return domain.QueueEntry{
		ID:          uuid.NewString(),
		TaskID:      task.ID,
		ScheduledAt: at,
		Status:      domain.QueueStatusPending,
		Recipient:   task.AssigneeEmail,
		Subject:     content.EmailSubject,
		Body:        content.EmailBody,
		Tier:        tier,
	}
}
