package models

import (
	"time"

	"gorm.io/datatypes"
)

// EscalationOutcome records an ambiguous routing decision and how it was
// resolved, for offline audit. Rows are write-once.
type EscalationOutcome struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	QuestionID string            `gorm:"size:64;index" json:"question_id"`
	SessionID  string            `gorm:"size:64;index" json:"session_id"`
	Reason     string            `gorm:"size:64;not null" json:"reason"`
	Method     string            `gorm:"size:32" json:"method"`
	Complexity float64           `json:"complexity"`
	Confidence float64           `json:"confidence"`
	Details    datatypes.JSONMap `json:"details"`
	CreatedAt  time.Time         `json:"created_at"`
}

const (
	// EscalationReasonLowConfidence marks a local result escalated to the remote backend.
	EscalationReasonLowConfidence = "low_confidence"
	// EscalationReasonCircuitOpen marks a remote route forced onto the local fallback.
	EscalationReasonCircuitOpen = "circuit_open"
)
