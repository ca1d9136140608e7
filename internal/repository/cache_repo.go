package repository

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/audeo-edu/intelligrade-api/internal/cache"
	"github.com/audeo-edu/intelligrade-api/internal/grading"
	"github.com/audeo-edu/intelligrade-api/internal/models"
)

// GradingCacheRepository persists the durable cache tier. It satisfies
// cache.Store.
type GradingCacheRepository interface {
	Fetch(ctx context.Context, keys []string) ([]cache.Entry, error)
	Upsert(ctx context.Context, entries []cache.Entry) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type gradingCacheRepository struct {
	db *gorm.DB
}

// NewGradingCacheRepository instantiates the repository.
func NewGradingCacheRepository(db *gorm.DB) GradingCacheRepository {
	return &gradingCacheRepository{db: db}
}

func (r *gradingCacheRepository) Fetch(ctx context.Context, keys []string) ([]cache.Entry, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	var rows []models.GradingCacheEntry
	if err := r.db.WithContext(ctx).
		Where("cache_key IN ?", keys).
		Where("expires_at > ?", time.Now()).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, nil
	}

	hitKeys := make([]string, 0, len(rows))
	entries := make([]cache.Entry, 0, len(rows))
	for _, row := range rows {
		var result grading.Result
		if err := json.Unmarshal(row.Result, &result); err != nil {
			// A corrupt row is treated as a miss and left for the sweep.
			continue
		}

		hitKeys = append(hitKeys, row.CacheKey)
		entries = append(entries, cache.Entry{
			Key:        row.CacheKey,
			QuestionID: row.QuestionID,
			Result:     result,
			CreatedAt:  row.CreatedAt,
			ExpiresAt:  row.ExpiresAt,
		})
	}

	if len(hitKeys) > 0 {
		if err := r.db.WithContext(ctx).
			Model(&models.GradingCacheEntry{}).
			Where("cache_key IN ?", hitKeys).
			UpdateColumn("hit_count", gorm.Expr("hit_count + 1")).Error; err != nil {
			return entries, err
		}
	}

	return entries, nil
}

func (r *gradingCacheRepository) Upsert(ctx context.Context, entries []cache.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([]models.GradingCacheEntry, 0, len(entries))
	for _, entry := range entries {
		payload, err := json.Marshal(entry.Result)
		if err != nil {
			return err
		}

		rows = append(rows, models.GradingCacheEntry{
			CacheKey:   entry.Key,
			QuestionID: entry.QuestionID,
			Result:     payload,
			CreatedAt:  entry.CreatedAt,
			ExpiresAt:  entry.ExpiresAt,
		})
	}

	// Same key overwrites, never duplicates.
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"question_id", "result", "expires_at"}),
		}).
		Create(&rows).Error
}

func (r *gradingCacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.GradingCacheEntry{})

	return result.RowsAffected, result.Error
}
