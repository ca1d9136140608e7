package models

import "time"

// GradingResult is the persisted outcome of one grading attempt for one question.
type GradingResult struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	QuestionID       string    `gorm:"size:64;not null;index" json:"question_id"`
	SessionID        string    `gorm:"size:64;index" json:"session_id"`
	IsCorrect        bool      `json:"is_correct"`
	PointsEarned     float64   `json:"points_earned"`
	PointsPossible   float64   `json:"points_possible"`
	Confidence       float64   `json:"confidence"`
	Method           string    `gorm:"size:32;not null" json:"method"`
	Reasoning        string    `gorm:"type:text" json:"reasoning"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	ReviewRequired   bool      `json:"review_required"`
	FallbackUsed     bool      `json:"fallback_used"`
	CacheHit         bool      `json:"cache_hit"`
	CreatedAt        time.Time `json:"created_at"`
}
