package dto

import (
	"time"

	"github.com/audeo-edu/intelligrade-api/internal/models"
)

// JobProgress reports how far a job has advanced.
type JobProgress struct {
	Graded int `json:"graded"`
	Total  int `json:"total"`
}

// JobStatusResponse is the polling view of an async grading job.
type JobStatusResponse struct {
	JobID       string                  `json:"job_id"`
	Status      string                  `json:"status"`
	Priority    string                  `json:"priority"`
	Progress    JobProgress             `json:"progress"`
	Results     []GradingResultResponse `json:"results,omitempty"`
	Error       string                  `json:"error,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// NewJobStatusResponse maps a job row to the polling view. Results are only
// attached by the caller once the job completed.
func NewJobStatusResponse(job models.GradingJob) JobStatusResponse {
	return JobStatusResponse{
		JobID:    job.ID,
		Status:   job.Status,
		Priority: job.Priority,
		Progress: JobProgress{
			Graded: job.GradedCount,
			Total:  job.TotalCount,
		},
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}

// JobEvent is published when a job reaches a terminal state.
type JobEvent struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	GradedCount int       `json:"graded_count"`
	TotalCount  int       `json:"total_count"`
	Error       string    `json:"error,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}
