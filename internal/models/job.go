package models

import (
	"time"

	"gorm.io/datatypes"
)

// GradingJob is a persisted unit of asynchronous grading work. A job moves
// pending -> processing -> completed|failed and never transitions backward;
// a pending job may instead be cancelled by its submitter.
type GradingJob struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	Status       string         `gorm:"size:16;not null;index;default:'pending'" json:"status"`
	Priority     string         `gorm:"size:16;not null;default:'normal'" json:"priority"`
	PriorityRank int            `gorm:"not null;index;default:2" json:"-"`
	Payload      datatypes.JSON `gorm:"not null" json:"payload"`
	Results      datatypes.JSON `json:"results,omitempty"`
	Error        string         `gorm:"type:text" json:"error,omitempty"`
	TotalCount   int            `json:"total_count"`
	GradedCount  int            `json:"graded_count"`
	ClaimedBy    string         `gorm:"size:36" json:"claimed_by,omitempty"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

const (
	// JobStatusPending indicates the job is waiting to be claimed by a worker.
	JobStatusPending = "pending"
	// JobStatusProcessing indicates a worker has claimed the job.
	JobStatusProcessing = "processing"
	// JobStatusCompleted indicates the job finished and results are stored.
	JobStatusCompleted = "completed"
	// JobStatusFailed indicates the job terminated without usable results.
	JobStatusFailed = "failed"
	// JobStatusCancelled indicates the submitter abandoned the job before it was claimed.
	JobStatusCancelled = "cancelled"
)

const (
	JobPriorityLow    = "low"
	JobPriorityNormal = "normal"
	JobPriorityHigh   = "high"
	JobPriorityUrgent = "urgent"
)

// PriorityRankFor maps a priority label to its claim-ordering rank. Unknown
// labels fall back to normal. Ranks start at 1: GORM drops zero-valued fields
// on insert when the column carries a default, so a zero rank would silently
// take the column default instead.
func PriorityRankFor(priority string) int {
	switch priority {
	case JobPriorityUrgent:
		return 4
	case JobPriorityHigh:
		return 3
	case JobPriorityNormal:
		return 2
	case JobPriorityLow:
		return 1
	default:
		return 2
	}
}

// IsTerminal reports whether the job has reached a final state.
func (j GradingJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}
