package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/audeo-edu/intelligrade-api/internal/dto"
	"github.com/audeo-edu/intelligrade-api/internal/grading"
	"github.com/audeo-edu/intelligrade-api/internal/models"
	"github.com/audeo-edu/intelligrade-api/internal/observability"
	"github.com/audeo-edu/intelligrade-api/internal/repository"
)

// ErrJobNotFound indicates the job id is unknown.
var ErrJobNotFound = errors.New("job not found")

const (
	jobEventBufferSize = 16
	jobStatusCacheTTL  = 5 * time.Minute
)

// JobPayload is the persisted body of an async grading job.
type JobPayload struct {
	Questions []dto.QuestionInputRequest `json:"questions"`
	Options   *dto.GradingOptions        `json:"options,omitempty"`
	Priority  string                     `json:"priority,omitempty"`
}

// JobService manages the async grading path: enqueueing, polling, cancelling,
// processing, and completion notification.
type JobService interface {
	Enqueue(ctx context.Context, payload dto.GradeBatchRequest) (dto.EnqueueResponse, error)
	Status(ctx context.Context, jobID string) (dto.JobStatusResponse, error)
	Cancel(ctx context.Context, jobID string) error
	Process(ctx context.Context, job models.GradingJob) error
	Subscribe(jobID string) (<-chan dto.JobEvent, func())
	Start(ctx context.Context)
}

type jobService struct {
	jobs      repository.GradingJobRepository
	grader    GradingService
	redis     *redis.Client
	nats      *nats.Conn
	subject   string
	validator *validator.Validate
	logger    zerolog.Logger
	broker    *jobEventBroker
	nodeID    string
}

type jobEventBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan dto.JobEvent]struct{}
}

type jobEventEnvelope struct {
	Source string       `json:"source"`
	Event  dto.JobEvent `json:"event"`
}

// NewJobService constructs the job service.
func NewJobService(jobs repository.GradingJobRepository, grader GradingService, redisClient *redis.Client, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) JobService {
	return &jobService{
		jobs:      jobs,
		grader:    grader,
		redis:     redisClient,
		nats:      natsConn,
		subject:   "intelligrade.jobs.events",
		validator: validate,
		logger:    logger.With().Str("component", "job_service").Logger(),
		broker: &jobEventBroker{
			subscribers: make(map[string]map[chan dto.JobEvent]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

// Start consumes job events published by other processes so local
// subscribers see completions regardless of which worker ran the job.
func (s *jobService) Start(ctx context.Context) {
	if s.nats == nil {
		return
	}

	subscription, err := s.nats.Subscribe(s.subject, func(msg *nats.Msg) {
		var envelope jobEventEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			s.logger.Warn().Err(err).Msg("failed to decode job event")
			return
		}
		if envelope.Source == s.nodeID {
			return
		}
		s.broker.dispatch(envelope.Event)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to job events")
		return
	}

	go func() {
		<-ctx.Done()
		_ = subscription.Unsubscribe()
	}()
}

func (s *jobService) Enqueue(ctx context.Context, payload dto.GradeBatchRequest) (dto.EnqueueResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EnqueueResponse{}, err
	}

	observability.GradingRequests().WithLabelValues("async").Inc()

	body, err := json.Marshal(JobPayload{
		Questions: payload.Questions,
		Options:   payload.Options,
		Priority:  payload.Priority,
	})
	if err != nil {
		return dto.EnqueueResponse{}, fmt.Errorf("encode job payload: %w", err)
	}

	job := models.GradingJob{
		ID:         uuid.NewString(),
		Status:     models.JobStatusPending,
		Priority:   payload.Priority,
		Payload:    body,
		TotalCount: len(payload.Questions),
	}

	if err := s.jobs.Create(ctx, &job); err != nil {
		return dto.EnqueueResponse{}, err
	}

	s.logger.Info().Str("job_id", job.ID).Str("priority", job.Priority).Int("questions", job.TotalCount).Msg("grading job enqueued")

	return dto.EnqueueResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

func (s *jobService) Status(ctx context.Context, jobID string) (dto.JobStatusResponse, error) {
	cacheKey := fmt.Sprintf("grading:job:%s", jobID)

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.JobStatusResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read job status cache")
		}
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.JobStatusResponse{}, ErrJobNotFound
		}
		return dto.JobStatusResponse{}, err
	}

	response := dto.NewJobStatusResponse(job)
	if job.Status == models.JobStatusCompleted && len(job.Results) > 0 {
		var results []dto.GradingResultResponse
		if err := json.Unmarshal(job.Results, &results); err == nil {
			response.Results = results
		}
	}

	// Only terminal snapshots are cached; active jobs change under us.
	if s.redis != nil && job.IsTerminal() {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.redis.Set(ctx, cacheKey, payload, jobStatusCacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store job status cache")
			}
		}
	}

	return response, nil
}

func (s *jobService) Cancel(ctx context.Context, jobID string) error {
	err := s.jobs.Cancel(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrJobNotFound
		}
		return err
	}

	s.publish(dto.JobEvent{
		JobID:  jobID,
		Status: models.JobStatusCancelled,
		SentAt: time.Now().UTC(),
	})

	return nil
}

// Process runs one claimed job through the grading pipeline and stores the
// outcome. The claim already flipped the job to processing.
func (s *jobService) Process(ctx context.Context, job models.GradingJob) error {
	var payload JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		message := fmt.Sprintf("corrupt job payload: %v", err)
		if markErr := s.jobs.MarkFailed(ctx, job.ID, message); markErr != nil {
			s.logger.Error().Err(markErr).Str("job_id", job.ID).Msg("failed to mark job failed")
		}
		s.publish(dto.JobEvent{
			JobID:      job.ID,
			Status:     models.JobStatusFailed,
			TotalCount: job.TotalCount,
			Error:      message,
			SentAt:     time.Now().UTC(),
		})
		return fmt.Errorf("decode job payload: %w", err)
	}

	questions := make([]grading.QuestionInput, 0, len(payload.Questions))
	for _, question := range payload.Questions {
		questions = append(questions, question.ToInput())
	}

	gctx := s.grader.ContextFor(payload.Options, payload.Priority)
	results, _ := s.grader.GradeInputs(ctx, questions, gctx)

	encoded, err := json.Marshal(dto.NewGradingResultResponses(results))
	if err != nil {
		return fmt.Errorf("encode job results: %w", err)
	}

	if err := s.jobs.MarkCompleted(ctx, job.ID, datatypes.JSON(encoded), len(results)); err != nil {
		return err
	}

	if s.redis != nil {
		// Drop any stale snapshot so the next poll sees the completion.
		_ = s.redis.Del(ctx, fmt.Sprintf("grading:job:%s", job.ID)).Err()
	}

	s.publish(dto.JobEvent{
		JobID:       job.ID,
		Status:      models.JobStatusCompleted,
		GradedCount: len(results),
		TotalCount:  job.TotalCount,
		SentAt:      time.Now().UTC(),
	})

	s.logger.Info().Str("job_id", job.ID).Int("results", len(results)).Msg("grading job completed")

	return nil
}

// Subscribe returns a channel receiving events for the given job plus a
// cancel function releasing the subscription.
func (s *jobService) Subscribe(jobID string) (<-chan dto.JobEvent, func()) {
	channel := make(chan dto.JobEvent, jobEventBufferSize)

	s.broker.mu.Lock()
	if _, ok := s.broker.subscribers[jobID]; !ok {
		s.broker.subscribers[jobID] = make(map[chan dto.JobEvent]struct{})
	}
	s.broker.subscribers[jobID][channel] = struct{}{}
	s.broker.mu.Unlock()

	cancel := func() {
		s.broker.mu.Lock()
		if channels, ok := s.broker.subscribers[jobID]; ok {
			delete(channels, channel)
			if len(channels) == 0 {
				delete(s.broker.subscribers, jobID)
			}
		}
		s.broker.mu.Unlock()
		close(channel)
	}

	return channel, cancel
}

func (s *jobService) publish(event dto.JobEvent) {
	s.broker.dispatch(event)

	if s.nats == nil {
		return
	}

	payload, err := json.Marshal(jobEventEnvelope{Source: s.nodeID, Event: event})
	if err != nil {
		return
	}

	if err := s.nats.Publish(s.subject, payload); err != nil {
		s.logger.Warn().Err(err).Str("job_id", event.JobID).Msg("failed to publish job event")
	}
}

func (b *jobEventBroker) dispatch(event dto.JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for channel := range b.subscribers[event.JobID] {
		select {
		case channel <- event:
		default:
			// Slow subscriber: drop rather than block the publisher.
		}
	}
}
