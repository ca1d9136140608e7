package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/audeo-edu/intelligrade-api/internal/models"
)

// ErrJobNotCancellable indicates the job had already been claimed or finished.
var ErrJobNotCancellable = errors.New("job is not pending")

// ErrMaintenanceLockHeld indicates another process holds the maintenance lock.
var ErrMaintenanceLockHeld = errors.New("maintenance lock held elsewhere")

// maintenanceLockKey is the fixed advisory lock id serializing queue
// maintenance across worker processes.
const maintenanceLockKey int64 = 874_221_015

// GradingJobRepository defines data operations for the persistent job queue.
type GradingJobRepository interface {
	Create(ctx context.Context, job *models.GradingJob) error
	GetByID(ctx context.Context, id string) (models.GradingJob, error)
	Claim(ctx context.Context, workerID string, limit int) ([]models.GradingJob, error)
	UpdateProgress(ctx context.Context, id string, gradedCount int) error
	MarkCompleted(ctx context.Context, id string, results datatypes.JSON, gradedCount int) error
	MarkFailed(ctx context.Context, id string, message string) error
	Cancel(ctx context.Context, id string) error
	ReapStale(ctx context.Context, olderThan time.Time) (int64, error)
	WithMaintenanceLock(ctx context.Context, fn func(ctx context.Context) error) error
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type gradingJobRepository struct {
	db *gorm.DB
}

// NewGradingJobRepository instantiates the repository.
func NewGradingJobRepository(db *gorm.DB) GradingJobRepository {
	return &gradingJobRepository{db: db}
}

func (r *gradingJobRepository) Create(ctx context.Context, job *models.GradingJob) error {
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.Priority == "" {
		job.Priority = models.JobPriorityNormal
	}
	job.PriorityRank = models.PriorityRankFor(job.Priority)

	return r.db.WithContext(ctx).Create(job).Error
}

func (r *gradingJobRepository) GetByID(ctx context.Context, id string) (models.GradingJob, error) {
	var job models.GradingJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return models.GradingJob{}, err
	}

	return job, nil
}

// Claim atomically selects up to limit pending jobs ordered by priority then
// age, locks them against concurrent claimers, and flips them to processing
// in the same statement. Two concurrent claims can never return overlapping
// job sets: on Postgres the row locks are taken with SKIP LOCKED inside one
// UPDATE, so a competing claim simply does not see the locked rows.
func (r *gradingJobRepository) Claim(ctx context.Context, workerID string, limit int) ([]models.GradingJob, error) {
	if limit <= 0 {
		return nil, nil
	}

	now := time.Now()

	if r.db.Dialector.Name() == "postgres" {
		var jobs []models.GradingJob
		err := r.db.WithContext(ctx).Raw(`
			UPDATE grading_jobs
			SET status = ?, started_at = ?, claimed_by = ?
			WHERE id IN (
				SELECT id FROM grading_jobs
				WHERE status = ?
				ORDER BY priority_rank DESC, created_at ASC
				LIMIT ?
				FOR UPDATE SKIP LOCKED
			)
			RETURNING *`,
			models.JobStatusProcessing, now, workerID,
			models.JobStatusPending, limit,
		).Scan(&jobs).Error
		if err != nil {
			return nil, err
		}

		sortClaimed(jobs)
		return jobs, nil
	}

	// Dialects without SKIP LOCKED (the sqlite test database) rely on the
	// engine's single-writer transaction semantics instead.
	var claimed []models.GradingJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending []models.GradingJob
		if err := tx.
			Where("status = ?", models.JobStatusPending).
			Order("priority_rank DESC").
			Order("created_at ASC").
			Limit(limit).
			Find(&pending).Error; err != nil {
			return err
		}

		if len(pending) == 0 {
			return nil
		}

		ids := make([]string, 0, len(pending))
		for _, job := range pending {
			ids = append(ids, job.ID)
		}

		update := tx.Model(&models.GradingJob{}).
			Where("id IN ?", ids).
			Where("status = ?", models.JobStatusPending).
			Updates(map[string]interface{}{
				"status":     models.JobStatusProcessing,
				"started_at": now,
				"claimed_by": workerID,
			})
		if update.Error != nil {
			return update.Error
		}

		return tx.Where("id IN ?", ids).Where("claimed_by = ?", workerID).Find(&claimed).Error
	})
	if err != nil {
		return nil, err
	}

	sortClaimed(claimed)
	return claimed, nil
}

func (r *gradingJobRepository) UpdateProgress(ctx context.Context, id string, gradedCount int) error {
	return r.db.WithContext(ctx).
		Model(&models.GradingJob{}).
		Where("id = ?", id).
		Where("status = ?", models.JobStatusProcessing).
		UpdateColumn("graded_count", gradedCount).Error
}

func (r *gradingJobRepository) MarkCompleted(ctx context.Context, id string, results datatypes.JSON, gradedCount int) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.GradingJob{}).
		Where("id = ?", id).
		Where("status = ?", models.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":       models.JobStatusCompleted,
			"results":      results,
			"graded_count": gradedCount,
			"completed_at": now,
		}).Error
}

func (r *gradingJobRepository) MarkFailed(ctx context.Context, id string, message string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.GradingJob{}).
		Where("id = ?", id).
		Where("status = ?", models.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":       models.JobStatusFailed,
			"error":        message,
			"completed_at": now,
		}).Error
}

// Cancel abandons a job that has not been claimed yet. Claimed jobs run to
// completion and cannot be interrupted.
func (r *gradingJobRepository) Cancel(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&models.GradingJob{}).
		Where("id = ?", id).
		Where("status = ?", models.JobStatusPending).
		Update("status", models.JobStatusCancelled)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrJobNotCancellable
	}

	return nil
}

// ReapStale returns processing jobs whose worker disappeared back to pending.
func (r *gradingJobRepository) ReapStale(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.GradingJob{}).
		Where("status = ?", models.JobStatusProcessing).
		Where("started_at < ?", olderThan).
		Updates(map[string]interface{}{
			"status":     models.JobStatusPending,
			"started_at": nil,
			"claimed_by": "",
		})

	return result.RowsAffected, result.Error
}

// WithMaintenanceLock runs fn while holding the queue's advisory lock so a
// maintenance pass executes in at most one process at a time. The lock is
// session scoped, so the whole exchange is pinned to a single connection.
func (r *gradingJobRepository) WithMaintenanceLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.db.Dialector.Name() != "postgres" {
		return fn(ctx)
	}

	return r.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var acquired bool
		if err := conn.Raw("SELECT pg_try_advisory_lock(?)", maintenanceLockKey).Scan(&acquired).Error; err != nil {
			return fmt.Errorf("acquire maintenance lock: %w", err)
		}
		if !acquired {
			return ErrMaintenanceLockHeld
		}
		defer conn.Exec("SELECT pg_advisory_unlock(?)", maintenanceLockKey)

		return fn(ctx)
	})
}

func (r *gradingJobRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}

	var rows []statusCount
	if err := r.db.WithContext(ctx).
		Model(&models.GradingJob{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}

// sortClaimed restores claim ordering for callers; RETURNING does not
// guarantee row order.
func sortClaimed(jobs []models.GradingJob) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].PriorityRank != jobs[j].PriorityRank {
			return jobs[i].PriorityRank > jobs[j].PriorityRank
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
}
