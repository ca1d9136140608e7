package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/audeo-edu/intelligrade-api/internal/cache"
	"github.com/audeo-edu/intelligrade-api/internal/config"
	"github.com/audeo-edu/intelligrade-api/internal/dto"
	"github.com/audeo-edu/intelligrade-api/internal/grading"
	"github.com/audeo-edu/intelligrade-api/internal/models"
	"github.com/audeo-edu/intelligrade-api/internal/observability"
	"github.com/audeo-edu/intelligrade-api/internal/repository"
)

// GradingService is the unified grading entry point. It composes the cache,
// the router, the batch optimizer, and the backend adapters into the
// gradeQuestion / gradeBatch contract, including persistence of final
// results.
type GradingService interface {
	GradeQuestion(ctx context.Context, payload dto.GradeQuestionRequest) (dto.GradingResultResponse, error)
	GradeBatch(ctx context.Context, payload dto.GradeBatchRequest) (dto.GradeBatchResponse, error)
	GradeInputs(ctx context.Context, questions []grading.QuestionInput, gctx grading.Context) ([]grading.Result, dto.BatchMetadata)
	ContextFor(options *dto.GradingOptions, priority string) grading.Context
	Close()
}

type gradingService struct {
	results     repository.GradingResultRepository
	escalations repository.EscalationRepository
	cache       *cache.Tiered
	rule        grading.Backend
	local       grading.Backend
	remote      *grading.RemoteBackend
	cfg         config.GradingConfig
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewGradingService constructs the orchestrator. The cache sweeper is owned
// by the service and stopped via Close.
func NewGradingService(
	results repository.GradingResultRepository,
	escalations repository.EscalationRepository,
	tiered *cache.Tiered,
	rule grading.Backend,
	local grading.Backend,
	remote *grading.RemoteBackend,
	cfg config.GradingConfig,
	validate *validator.Validate,
	logger zerolog.Logger,
) GradingService {
	if tiered != nil && cfg.CacheEnabled {
		tiered.StartSweeper(cfg.CacheTTL / 4)
	}

	return &gradingService{
		results:     results,
		escalations: escalations,
		cache:       tiered,
		rule:        rule,
		local:       local,
		remote:      remote,
		cfg:         cfg,
		validator:   validate,
		logger:      logger.With().Str("component", "grading_service").Logger(),
		tracer:      otel.Tracer("github.com/audeo-edu/intelligrade-api/internal/service/grading"),
		now:         time.Now,
	}
}

func (s *gradingService) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

// ContextFor builds the per-request grading context from the engine defaults
// and the caller's overrides.
func (s *gradingService) ContextFor(options *dto.GradingOptions, priority string) grading.Context {
	gctx := grading.Context{
		CacheEnabled:        s.cfg.CacheEnabled,
		CacheTTL:            s.cfg.CacheTTL,
		EscalationThreshold: s.cfg.EscalationThreshold,
		BatchSizes: grading.BatchSizes{
			Simple:  s.cfg.SimpleBatchSize,
			Medium:  s.cfg.MediumBatchSize,
			Complex: s.cfg.ComplexBatchSize,
		},
		Priority: priority,
	}

	if options == nil {
		return gctx
	}

	gctx.SessionID = options.SessionID
	gctx.MisconceptionTagging = options.MisconceptionTagging
	if options.CacheEnabled != nil {
		gctx.CacheEnabled = *options.CacheEnabled
	}
	if options.CacheTTLSeconds != nil {
		gctx.CacheTTL = time.Duration(*options.CacheTTLSeconds) * time.Second
	}
	if options.EscalationThreshold != nil {
		gctx.EscalationThreshold = *options.EscalationThreshold
	}

	return gctx
}

func (s *gradingService) GradeQuestion(ctx context.Context, payload dto.GradeQuestionRequest) (dto.GradingResultResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GradingResultResponse{}, err
	}

	observability.GradingRequests().WithLabelValues("question").Inc()

	gctx := s.ContextFor(payload.Options, "")
	results, _ := s.GradeInputs(ctx, []grading.QuestionInput{payload.Question.ToInput()}, gctx)

	return dto.NewGradingResultResponse(results[0]), nil
}

func (s *gradingService) GradeBatch(ctx context.Context, payload dto.GradeBatchRequest) (dto.GradeBatchResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GradeBatchResponse{}, err
	}

	observability.GradingRequests().WithLabelValues("batch").Inc()

	questions := make([]grading.QuestionInput, 0, len(payload.Questions))
	for _, question := range payload.Questions {
		questions = append(questions, question.ToInput())
	}

	gctx := s.ContextFor(payload.Options, payload.Priority)
	results, metadata := s.GradeInputs(ctx, questions, gctx)

	return dto.GradeBatchResponse{
		Results:  dto.NewGradingResultResponses(results),
		Metadata: metadata,
	}, nil
}

// GradeInputs runs the full pipeline over pre-validated questions: cache
// pass, classification and routing, sub-batch execution, escalation, cache
// backfill, and persistence. It always returns exactly one result per
// question, in the caller's order.
func (s *gradingService) GradeInputs(parent context.Context, questions []grading.QuestionInput, gctx grading.Context) ([]grading.Result, dto.BatchMetadata) {
	ctx, span := s.tracer.Start(parent, "grading.batch", trace.WithAttributes(
		attribute.Int("question_count", len(questions)),
	))
	defer span.End()

	start := s.now()
	metadata := dto.BatchMetadata{TotalQuestions: len(questions)}

	byID := make(map[string][]grading.Result, len(questions))
	record := func(result grading.Result) {
		byID[result.QuestionID] = append(byID[result.QuestionID], result)
	}

	pending := s.cachePass(ctx, questions, gctx, &metadata, record)

	routed := s.routePass(pending, gctx)
	batches := grading.Partition(routed, gctx.BatchSizes)
	metadata.SubBatches = len(batches)

	graded := s.runBatches(ctx, batches, gctx)
	graded = s.escalatePass(ctx, graded, gctx)

	fresh := make([]grading.Result, 0, len(graded))
	for _, item := range graded {
		item.Result.ClampPoints()
		item.Result.ProcessingTimeMs = time.Since(start).Milliseconds()
		record(item.Result)
		fresh = append(fresh, item.Result)

		if item.Result.Flags.FallbackUsed {
			metadata.FallbackCount++
		}
	}

	s.backfillCache(ctx, graded, gctx)
	s.persist(ctx, fresh, gctx)

	// Reassemble into the caller's question order; any question without a
	// result is back-filled with a fallback so a batch of N always returns
	// exactly N results.
	ordered := make([]grading.Result, 0, len(questions))
	for _, question := range questions {
		queue := byID[question.ID]
		if len(queue) == 0 {
			fallback := grading.FallbackResult(question, grading.MethodLocalClassifier, "no backend produced a result, answer needs manual review")
			fallback.ProcessingTimeMs = time.Since(start).Milliseconds()
			observability.FallbackResults().WithLabelValues("missing_result").Inc()
			metadata.FallbackCount++
			ordered = append(ordered, fallback)
			continue
		}

		ordered = append(ordered, queue[0])
		byID[question.ID] = queue[1:]
	}

	metadata.ProcessingTimeMs = time.Since(start).Milliseconds()
	span.SetAttributes(
		attribute.Int("cache_hits", metadata.CacheHits),
		attribute.Int("fallbacks", metadata.FallbackCount),
		attribute.Int("sub_batches", metadata.SubBatches),
	)
	if metadata.FallbackCount > 0 {
		span.SetStatus(codes.Error, "batch degraded, fallback results present")
	}

	return ordered, metadata
}

// cachePass resolves cached verdicts and returns the questions still needing
// a backend.
func (s *gradingService) cachePass(ctx context.Context, questions []grading.QuestionInput, gctx grading.Context, metadata *dto.BatchMetadata, record func(grading.Result)) []grading.QuestionInput {
	if !gctx.CacheEnabled || s.cache == nil {
		return questions
	}

	keys := make([]string, 0, len(questions))
	for _, question := range questions {
		keys = append(keys, cache.KeyForQuestion(question))
	}

	found := s.cache.Get(ctx, keys)

	pending := make([]grading.QuestionInput, 0, len(questions))
	for _, question := range questions {
		key := cache.KeyForQuestion(question)
		cached, ok := found[key]
		if !ok {
			pending = append(pending, question)
			continue
		}

		cached.Flags.CacheHit = true
		record(cached)
		metadata.CacheHits++
	}

	return pending
}

// routePass classifies each question and derives its routing decision under
// the current circuit state.
func (s *gradingService) routePass(questions []grading.QuestionInput, gctx grading.Context) []grading.RoutedQuestion {
	policy := grading.RoutingPolicy{EscalationThreshold: gctx.EscalationThreshold}

	routed := make([]grading.RoutedQuestion, 0, len(questions))
	for _, question := range questions {
		complexity := grading.ClassifyComplexity(question)
		decision := grading.Route(complexity, s.remote.Breaker().State(), policy)
		observability.RoutingDecisions().WithLabelValues(string(decision.Method), string(decision.Bucket)).Inc()

		if decision.FallbackForced {
			s.recordEscalation(question, decision, models.EscalationReasonCircuitOpen, 0, gctx.SessionID)
		}

		routed = append(routed, grading.RoutedQuestion{Question: question, Decision: decision})
	}

	return routed
}

type gradedItem struct {
	Question grading.QuestionInput
	Decision grading.RoutingDecision
	Result   grading.Result
}

// runBatches executes the sub-batches concurrently and flattens the output.
// Per-question order is restored later by the caller-order reassembly.
func (s *gradingService) runBatches(ctx context.Context, batches []grading.SubBatch, gctx grading.Context) []gradedItem {
	outputs := make([][]grading.Result, len(batches))
	wg := sync.WaitGroup{}
	for index, batch := range batches {
		wg.Add(1)
		go func(index int, batch grading.SubBatch) {
			defer wg.Done()
			outputs[index] = s.backendFor(batch.Method).GradeBatch(ctx, batch.Questions, gctx)
		}(index, batch)
	}
	wg.Wait()

	items := make([]gradedItem, 0)
	for index, batch := range batches {
		results := outputs[index]
		decision := grading.RoutingDecision{
			Method:         batch.Method,
			Bucket:         batch.Bucket,
			FallbackForced: batch.Fallback,
		}

		for position, question := range batch.Questions {
			var result grading.Result
			if position < len(results) {
				result = results[position]
			} else {
				result = grading.FallbackResult(question, batch.Method, "backend returned no result, answer needs manual review")
				observability.FallbackResults().WithLabelValues("short_backend_output").Inc()
			}

			if batch.Fallback {
				result.Flags.FallbackUsed = true
				if result.Confidence < gctx.EscalationThreshold {
					result.Flags.ReviewRequired = true
				}
			}

			if result.Flags.FallbackUsed && result.Confidence <= grading.FallbackConfidence {
				observability.FallbackResults().WithLabelValues("backend_degraded").Inc()
			}

			items = append(items, gradedItem{Question: question, Decision: decision, Result: result})
		}
	}

	return items
}

// escalatePass re-grades low-confidence local-classifier verdicts on the
// remote backend when the circuit admits it. Rule verdicts are final: a rule
// mismatch is an exact decision, not an uncertain one. Circuit-open takes
// precedence: forced-fallback results are never escalated.
func (s *gradingService) escalatePass(ctx context.Context, items []gradedItem, gctx grading.Context) []gradedItem {
	policy := grading.RoutingPolicy{EscalationThreshold: gctx.EscalationThreshold}

	candidates := make([]int, 0)
	for index, item := range items {
		if item.Decision.FallbackForced || item.Result.Flags.FallbackUsed {
			continue
		}
		if item.Result.Method != grading.MethodLocalClassifier {
			continue
		}
		if grading.AllowEscalation(item.Result.Confidence, s.remote.Breaker().State(), policy) {
			candidates = append(candidates, index)
		}
	}

	if len(candidates) == 0 {
		return items
	}

	questions := make([]grading.QuestionInput, 0, len(candidates))
	for _, index := range candidates {
		questions = append(questions, items[index].Question)
	}

	escalated := s.remote.GradeBatch(ctx, questions, gctx)
	for position, index := range candidates {
		if position >= len(escalated) {
			break
		}

		replacement := escalated[position]
		if replacement.Flags.FallbackUsed {
			// Remote degraded mid-escalation: keep the local verdict but
			// flag it for review rather than discarding a usable answer.
			items[index].Result.Flags.ReviewRequired = true
			continue
		}

		s.recordEscalation(items[index].Question, items[index].Decision, models.EscalationReasonLowConfidence, items[index].Result.Confidence, gctx.SessionID)
		items[index].Result = replacement
	}

	return items
}

func (s *gradingService) backendFor(method grading.Method) grading.Backend {
	switch method {
	case grading.MethodRuleExact, grading.MethodRuleFlexible:
		return s.rule
	case grading.MethodRemoteSingle, grading.MethodRemoteBatch:
		return s.remote
	default:
		return s.local
	}
}

// backfillCache stores fresh trustworthy verdicts in both tiers. Degraded
// fallback results are never cached so a recovered backend can re-grade them.
func (s *gradingService) backfillCache(ctx context.Context, items []gradedItem, gctx grading.Context) {
	if !gctx.CacheEnabled || s.cache == nil {
		return
	}

	now := s.now()
	ttl := gctx.CacheTTL
	if ttl <= 0 {
		ttl = s.cfg.CacheTTL
	}

	entries := make([]cache.Entry, 0, len(items))
	for _, item := range items {
		if item.Result.Flags.FallbackUsed {
			continue
		}

		entries = append(entries, cache.Entry{
			Key:        cache.KeyForQuestion(item.Question),
			QuestionID: item.Question.ID,
			Result:     item.Result,
			CreatedAt:  now,
			ExpiresAt:  now.Add(ttl),
		})
	}

	s.cache.Put(ctx, entries)
}

// persist stores the fresh results. Persistence failures are logged and
// swallowed: a grading result is more valuable delivered-but-unsaved than
// dropped.
func (s *gradingService) persist(ctx context.Context, results []grading.Result, gctx grading.Context) {
	if len(results) == 0 {
		return
	}

	rows := make([]models.GradingResult, 0, len(results))
	for _, result := range results {
		rows = append(rows, models.GradingResult{
			QuestionID:       result.QuestionID,
			SessionID:        gctx.SessionID,
			IsCorrect:        result.IsCorrect,
			PointsEarned:     result.PointsEarned,
			PointsPossible:   result.PointsPossible,
			Confidence:       result.Confidence,
			Method:           string(result.Method),
			Reasoning:        result.Reasoning,
			ProcessingTimeMs: result.ProcessingTimeMs,
			ReviewRequired:   result.Flags.ReviewRequired,
			FallbackUsed:     result.Flags.FallbackUsed,
			CacheHit:         result.Flags.CacheHit,
		})
	}

	if err := s.results.CreateBatch(ctx, rows); err != nil {
		s.logger.Warn().Err(err).Int("results", len(rows)).Msg("failed to persist grading results")
	}
}

func (s *gradingService) recordEscalation(question grading.QuestionInput, decision grading.RoutingDecision, reason string, confidence float64, sessionID string) {
	if s.escalations == nil {
		return
	}

	outcome := models.EscalationOutcome{
		QuestionID: question.ID,
		SessionID:  sessionID,
		Reason:     reason,
		Method:     string(decision.Method),
		Complexity: decision.Complexity,
		Confidence: confidence,
		Details: datatypes.JSONMap{
			"bucket": string(decision.Bucket),
		},
	}

	// Audit rows ride alongside the request; losing one must not fail grading.
	if err := s.escalations.Create(context.Background(), &outcome); err != nil {
		s.logger.Warn().Err(err).Str("question_id", question.ID).Msg("failed to record escalation outcome")
	}
}
