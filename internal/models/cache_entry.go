package models

import (
	"time"

	"gorm.io/datatypes"
)

// GradingCacheEntry is a durable cache row keyed by a content hash of the
// grading-relevant inputs. Identical inputs always map to the same key.
type GradingCacheEntry struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	CacheKey   string         `gorm:"size:64;uniqueIndex;not null" json:"cache_key"`
	QuestionID string         `gorm:"size:64;index" json:"question_id"`
	Result     datatypes.JSON `gorm:"not null" json:"result"`
	HitCount   int64          `json:"hit_count"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `gorm:"index;not null" json:"expires_at"`
}

// Expired reports whether the entry has passed its TTL at the given instant.
func (e GradingCacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
