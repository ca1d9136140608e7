package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/audeo-edu/intelligrade-api/internal/config"
	"github.com/audeo-edu/intelligrade-api/internal/models"
	"github.com/audeo-edu/intelligrade-api/internal/observability"
	"github.com/audeo-edu/intelligrade-api/internal/repository"
)

// Processor runs one claimed job through the grading pipeline.
type Processor interface {
	Process(ctx context.Context, job models.GradingJob) error
}

// Pool runs a set of concurrent workers that claim pending grading jobs and
// process them, plus a maintenance loop that reaps stale jobs. Workers are
// independent; the atomic claim operation is the only coordination between
// them.
type Pool struct {
	jobs      repository.GradingJobRepository
	processor Processor
	cfg       config.QueueConfig
	logger    zerolog.Logger
	poolID    string
}

// New constructs a worker pool.
func New(jobs repository.GradingJobRepository, processor Processor, cfg config.QueueConfig, logger zerolog.Logger) *Pool {
	return &Pool{
		jobs:      jobs,
		processor: processor,
		cfg:       cfg,
		logger:    logger.With().Str("component", "worker_pool").Logger(),
		poolID:    uuid.NewString(),
	}
}

// Run blocks until the context is cancelled and all workers have drained.
func (p *Pool) Run(ctx context.Context) {
	wg := sync.WaitGroup{}

	for index := 0; index < p.cfg.WorkerCount; index++ {
		workerID := fmt.Sprintf("%s-%d", p.poolID, index)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workerLoop(ctx, workerID)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.maintenanceLoop(ctx)
	}()

	p.logger.Info().Int("workers", p.cfg.WorkerCount).Msg("worker pool started")
	wg.Wait()
	p.logger.Info().Msg("worker pool stopped")
}

func (p *Pool) workerLoop(ctx context.Context, workerID string) {
	logger := p.logger.With().Str("worker_id", workerID).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := p.jobs.Claim(ctx, workerID, p.cfg.ClaimBatchSize)
		if err != nil {
			logger.Error().Err(err).Msg("job claim failed")
			p.sleep(ctx, p.cfg.PollInterval)
			continue
		}

		if len(claimed) == 0 {
			p.sleep(ctx, p.cfg.PollInterval)
			continue
		}

		observability.JobsClaimed().Add(float64(len(claimed)))

		for _, job := range claimed {
			if err := p.processor.Process(ctx, job); err != nil {
				logger.Error().Err(err).Str("job_id", job.ID).Msg("job processing failed")
				if markErr := p.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
					logger.Error().Err(markErr).Str("job_id", job.ID).Msg("failed to mark job failed")
				}
			}
		}
	}
}

// maintenanceLoop periodically returns stale processing jobs to the queue and
// refreshes the queue depth gauge. The pass is serialized across processes by
// the repository's advisory lock.
func (p *Pool) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := p.jobs.WithMaintenanceLock(ctx, func(ctx context.Context) error {
				reaped, err := p.jobs.ReapStale(ctx, time.Now().Add(-p.cfg.StaleAfter))
				if err != nil {
					return err
				}
				if reaped > 0 {
					p.logger.Warn().Int64("jobs", reaped).Msg("returned stale jobs to the queue")
				}

				counts, err := p.jobs.CountByStatus(ctx)
				if err != nil {
					return err
				}
				for _, status := range []string{models.JobStatusPending, models.JobStatusProcessing, models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled} {
					observability.QueueDepth().WithLabelValues(status).Set(float64(counts[status]))
				}

				return nil
			})
			if err != nil && !errors.Is(err, repository.ErrMaintenanceLockHeld) {
				p.logger.Error().Err(err).Msg("queue maintenance failed")
			}
		}
	}
}

func (p *Pool) sleep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
