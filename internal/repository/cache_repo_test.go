package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/audeo-edu/intelligrade-api/internal/cache"
	"github.com/audeo-edu/intelligrade-api/internal/grading"
	"github.com/audeo-edu/intelligrade-api/internal/models"
)

func cacheEntry(key string, expiresAt time.Time) cache.Entry {
	return cache.Entry{
		Key:        key,
		QuestionID: "question-" + key,
		Result: grading.Result{
			QuestionID:     "question-" + key,
			IsCorrect:      true,
			PointsEarned:   2,
			PointsPossible: 2,
			Confidence:     0.9,
			Method:         grading.MethodRuleExact,
			Reasoning:      "exact match",
		},
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
}

func TestCacheRepositoryRoundTrip(t *testing.T) {
	db := setupTestDB(t, &models.GradingCacheEntry{})
	repo := NewGradingCacheRepository(db)

	entry := cacheEntry("key-1", time.Now().Add(time.Hour))
	require.NoError(t, repo.Upsert(context.Background(), []cache.Entry{entry}))

	fetched, err := repo.Fetch(context.Background(), []string{"key-1"})
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	require.Equal(t, "key-1", fetched[0].Key)
	require.True(t, fetched[0].Result.IsCorrect)
	require.Equal(t, 2.0, fetched[0].Result.PointsEarned)
	require.Equal(t, grading.MethodRuleExact, fetched[0].Result.Method)
}

func TestCacheRepositoryUpsertOverwritesSameKey(t *testing.T) {
	db := setupTestDB(t, &models.GradingCacheEntry{})
	repo := NewGradingCacheRepository(db)

	entry := cacheEntry("key-2", time.Now().Add(time.Hour))
	require.NoError(t, repo.Upsert(context.Background(), []cache.Entry{entry}))

	updated := entry
	updated.Result.Confidence = 0.95
	require.NoError(t, repo.Upsert(context.Background(), []cache.Entry{updated}))

	var count int64
	require.NoError(t, db.Model(&models.GradingCacheEntry{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	fetched, err := repo.Fetch(context.Background(), []string{"key-2"})
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	require.Equal(t, 0.95, fetched[0].Result.Confidence)
}

func TestCacheRepositoryFetchSkipsExpired(t *testing.T) {
	db := setupTestDB(t, &models.GradingCacheEntry{})
	repo := NewGradingCacheRepository(db)

	require.NoError(t, repo.Upsert(context.Background(), []cache.Entry{
		cacheEntry("live", time.Now().Add(time.Hour)),
		cacheEntry("dead", time.Now().Add(-time.Hour)),
	}))

	fetched, err := repo.Fetch(context.Background(), []string{"live", "dead"})
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	require.Equal(t, "live", fetched[0].Key)
}

func TestCacheRepositoryFetchBumpsHitCount(t *testing.T) {
	db := setupTestDB(t, &models.GradingCacheEntry{})
	repo := NewGradingCacheRepository(db)

	require.NoError(t, repo.Upsert(context.Background(), []cache.Entry{cacheEntry("key-3", time.Now().Add(time.Hour))}))

	_, err := repo.Fetch(context.Background(), []string{"key-3"})
	require.NoError(t, err)
	_, err = repo.Fetch(context.Background(), []string{"key-3"})
	require.NoError(t, err)

	var row models.GradingCacheEntry
	require.NoError(t, db.First(&row, "cache_key = ?", "key-3").Error)
	require.Equal(t, int64(2), row.HitCount)
}

func TestCacheRepositoryDeleteExpired(t *testing.T) {
	db := setupTestDB(t, &models.GradingCacheEntry{})
	repo := NewGradingCacheRepository(db)

	require.NoError(t, repo.Upsert(context.Background(), []cache.Entry{
		cacheEntry("live", time.Now().Add(time.Hour)),
		cacheEntry("dead-1", time.Now().Add(-time.Hour)),
		cacheEntry("dead-2", time.Now().Add(-time.Minute)),
	}))

	removed, err := repo.DeleteExpired(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	var count int64
	require.NoError(t, db.Model(&models.GradingCacheEntry{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestCacheRepositoryEmptyInputs(t *testing.T) {
	db := setupTestDB(t, &models.GradingCacheEntry{})
	repo := NewGradingCacheRepository(db)

	fetched, err := repo.Fetch(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, fetched)

	require.NoError(t, repo.Upsert(context.Background(), nil))
}
