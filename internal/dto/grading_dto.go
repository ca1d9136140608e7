package dto

import (
	"time"

	"github.com/audeo-edu/intelligrade-api/internal/grading"
)

// QuestionInputRequest is one question submitted for grading.
type QuestionInputRequest struct {
	ID                string   `json:"id" validate:"required,max=64"`
	Prompt            string   `json:"prompt" validate:"required"`
	StudentAnswer     string   `json:"student_answer"`
	CorrectAnswer     string   `json:"correct_answer" validate:"required"`
	AcceptableAnswers []string `json:"acceptable_answers,omitempty"`
	SkillTags         []string `json:"skill_tags,omitempty"`
	PointsPossible    float64  `json:"points_possible" validate:"gt=0"`
	Kind              string   `json:"kind" validate:"omitempty,oneof=multiple_choice true_false short_answer numeric essay"`
}

// ToInput converts the request payload into the engine's question type.
func (r QuestionInputRequest) ToInput() grading.QuestionInput {
	kind := grading.QuestionKind(r.Kind)
	if r.Kind == "" {
		kind = grading.KindShortAnswer
	}

	return grading.QuestionInput{
		ID:                r.ID,
		Prompt:            r.Prompt,
		StudentAnswer:     r.StudentAnswer,
		CorrectAnswer:     r.CorrectAnswer,
		AcceptableAnswers: r.AcceptableAnswers,
		SkillTags:         r.SkillTags,
		PointsPossible:    r.PointsPossible,
		Kind:              kind,
	}
}

// GradingOptions carries optional per-request overrides of the engine defaults.
type GradingOptions struct {
	SessionID            string   `json:"session_id,omitempty" validate:"omitempty,max=64"`
	CacheEnabled         *bool    `json:"cache_enabled,omitempty"`
	CacheTTLSeconds      *int     `json:"cache_ttl_seconds,omitempty" validate:"omitempty,gt=0"`
	EscalationThreshold  *float64 `json:"escalation_threshold,omitempty" validate:"omitempty,gt=0,lte=1"`
	MisconceptionTagging bool     `json:"misconception_tagging,omitempty"`
}

// GradeQuestionRequest is the synchronous single-question grading payload.
type GradeQuestionRequest struct {
	Question QuestionInputRequest `json:"question" validate:"required"`
	Options  *GradingOptions      `json:"options,omitempty"`
}

// GradeBatchRequest is the batch grading payload, synchronous or async.
type GradeBatchRequest struct {
	Questions []QuestionInputRequest `json:"questions" validate:"required,min=1,max=200,dive"`
	Options   *GradingOptions        `json:"options,omitempty"`
	Priority  string                 `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	Async     bool                   `json:"async,omitempty"`
}

// QualityFlagsResponse mirrors the result quality markers.
type QualityFlagsResponse struct {
	ReviewRequired bool `json:"review_required"`
	FallbackUsed   bool `json:"fallback_used"`
	CacheHit       bool `json:"cache_hit"`
}

// GradingResultResponse is the unified grading result returned to callers.
type GradingResultResponse struct {
	QuestionID       string               `json:"question_id"`
	IsCorrect        bool                 `json:"is_correct"`
	PointsEarned     float64              `json:"points_earned"`
	PointsPossible   float64              `json:"points_possible"`
	Confidence       float64              `json:"confidence"`
	Method           string               `json:"method"`
	Reasoning        string               `json:"reasoning"`
	ProcessingTimeMs int64                `json:"processing_time_ms"`
	Flags            QualityFlagsResponse `json:"flags"`
}

// NewGradingResultResponse maps an engine result to the response shape.
func NewGradingResultResponse(result grading.Result) GradingResultResponse {
	return GradingResultResponse{
		QuestionID:       result.QuestionID,
		IsCorrect:        result.IsCorrect,
		PointsEarned:     result.PointsEarned,
		PointsPossible:   result.PointsPossible,
		Confidence:       result.Confidence,
		Method:           string(result.Method),
		Reasoning:        result.Reasoning,
		ProcessingTimeMs: result.ProcessingTimeMs,
		Flags: QualityFlagsResponse{
			ReviewRequired: result.Flags.ReviewRequired,
			FallbackUsed:   result.Flags.FallbackUsed,
			CacheHit:       result.Flags.CacheHit,
		},
	}
}

// NewGradingResultResponses maps a result slice in caller order.
func NewGradingResultResponses(results []grading.Result) []GradingResultResponse {
	responses := make([]GradingResultResponse, 0, len(results))
	for _, result := range results {
		responses = append(responses, NewGradingResultResponse(result))
	}
	return responses
}

// BatchMetadata summarizes how a batch was processed.
type BatchMetadata struct {
	TotalQuestions   int   `json:"total_questions"`
	CacheHits        int   `json:"cache_hits"`
	FallbackCount    int   `json:"fallback_count"`
	SubBatches       int   `json:"sub_batches"`
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// GradeBatchResponse is the synchronous batch grading response.
type GradeBatchResponse struct {
	Results  []GradingResultResponse `json:"results"`
	Metadata BatchMetadata           `json:"metadata"`
}

// EnqueueResponse is returned when a batch is accepted for async grading.
type EnqueueResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
