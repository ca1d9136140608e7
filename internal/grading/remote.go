package grading

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/audeo-edu/intelligrade-api/pkg/ai"
	"github.com/audeo-edu/intelligrade-api/pkg/breaker"
	"github.com/audeo-edu/intelligrade-api/pkg/retry"
)

// RemoteBackend wraps the remote grading model with the circuit breaker and
// the shared retry policy. It never propagates backend errors: when the
// circuit is open or retries are exhausted it returns degraded fallback
// results instead.
type RemoteBackend struct {
	grader  ai.Grader
	breaker *breaker.Breaker
	retry   retry.Policy
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRemoteBackend constructs the remote adapter.
func NewRemoteBackend(grader ai.Grader, cb *breaker.Breaker, policy retry.Policy, timeout time.Duration, logger zerolog.Logger) *RemoteBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &RemoteBackend{
		grader:  grader,
		breaker: cb,
		retry:   policy,
		timeout: timeout,
		logger:  logger.With().Str("component", "remote_backend").Logger(),
	}
}

// Name identifies the adapter.
func (b *RemoteBackend) Name() string {
	return "remote_llm"
}

// Breaker exposes the circuit breaker guarding this backend, for routing.
func (b *RemoteBackend) Breaker() *breaker.Breaker {
	return b.breaker
}

// GradeBatch submits the questions to the remote model. The response is
// matched by question id; missing entries are back-filled with fallback
// results so the caller always receives one result per question.
func (b *RemoteBackend) GradeBatch(ctx context.Context, questions []QuestionInput, gctx Context) []Result {
	if len(questions) == 0 {
		return nil
	}

	method := MethodRemoteBatch
	if len(questions) == 1 {
		method = MethodRemoteSingle
	}

	request := ai.BatchRequest{
		Questions: make([]ai.QuestionPayload, 0, len(questions)),
		Priority:  gctx.Priority,
	}
	for _, question := range questions {
		request.Questions = append(request.Questions, ai.QuestionPayload{
			ID:             question.ID,
			Prompt:         question.Prompt,
			StudentAnswer:  question.StudentAnswer,
			CorrectAnswer:  question.CorrectAnswer,
			PointsPossible: question.PointsPossible,
			SkillContext:   question.SkillTags,
		})
	}

	response, err := b.call(ctx, request)
	if err != nil {
		reason := "remote grading unavailable, answer needs manual review"
		if errors.Is(err, breaker.ErrOpen) {
			reason = "remote grading circuit open, answer needs manual review"
		}
		b.logger.Warn().Err(err).Int("batch_size", len(questions)).Msg("remote grading degraded to fallback")

		results := make([]Result, 0, len(questions))
		for _, question := range questions {
			results = append(results, FallbackResult(question, method, reason))
		}
		return results
	}

	byID := make(map[string]ai.ItemResult, len(response.Results))
	for _, item := range response.Results {
		byID[item.QuestionID] = item
	}

	results := make([]Result, 0, len(questions))
	for _, question := range questions {
		item, ok := byID[question.ID]
		if !ok {
			results = append(results, FallbackResult(question, method, "remote response missing this question, answer needs manual review"))
			continue
		}

		result := Result{
			QuestionID:     question.ID,
			IsCorrect:      item.IsCorrect,
			PointsEarned:   item.PointsEarned,
			PointsPossible: question.PointsPossible,
			Confidence:     item.Confidence,
			Method:         method,
			Reasoning:      item.Reasoning,
		}
		result.ClampPoints()
		results = append(results, result)
	}

	return results
}

// call runs one remote attempt cycle: each attempt carries its own timeout
// and passes through the circuit breaker, so breaker-rejected calls are not
// retried and timeouts count as backend failures.
func (b *RemoteBackend) call(ctx context.Context, request ai.BatchRequest) (ai.BatchResponse, error) {
	var response ai.BatchResponse

	err := b.retry.Do(ctx, func() error {
		value, err := b.breaker.Execute(func() (interface{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, b.timeout)
			defer cancel()
			return b.grader.GradeBatch(attemptCtx, request)
		})
		if err != nil {
			if errors.Is(err, breaker.ErrOpen) {
				// Fail fast: an open circuit must not consume retry attempts.
				return retry.Permanent(err)
			}
			return err
		}

		response = value.(ai.BatchResponse)
		return nil
	})

	return response, err
}
