package grading

import (
	"context"
	"time"
)

// QuestionKind identifies the answer format of a question.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindTrueFalse      QuestionKind = "true_false"
	KindShortAnswer    QuestionKind = "short_answer"
	KindNumeric        QuestionKind = "numeric"
	KindEssay          QuestionKind = "essay"
)

// QuestionInput is one student answer submitted for grading. Immutable once
// submitted for an attempt.
type QuestionInput struct {
	ID                string       `json:"id"`
	Prompt            string       `json:"prompt"`
	StudentAnswer     string       `json:"student_answer"`
	CorrectAnswer     string       `json:"correct_answer"`
	AcceptableAnswers []string     `json:"acceptable_answers,omitempty"`
	SkillTags         []string     `json:"skill_tags,omitempty"`
	PointsPossible    float64      `json:"points_possible"`
	Kind              QuestionKind `json:"kind"`
}

// BatchSizes carries the per-bucket target sub-batch sizes.
type BatchSizes struct {
	Simple  int `json:"simple"`
	Medium  int `json:"medium"`
	Complex int `json:"complex"`
}

// DefaultBatchSizes returns the standard sub-batch limits.
func DefaultBatchSizes() BatchSizes {
	return BatchSizes{Simple: 20, Medium: 15, Complex: 8}
}

// Context is the per-request grading configuration. It is created once per
// request and read-only during processing.
type Context struct {
	SessionID            string        `json:"session_id,omitempty"`
	CacheEnabled         bool          `json:"cache_enabled"`
	CacheTTL             time.Duration `json:"cache_ttl"`
	EscalationThreshold  float64       `json:"escalation_threshold"`
	BatchSizes           BatchSizes    `json:"batch_sizes"`
	MisconceptionTagging bool          `json:"misconception_tagging"`
	Priority             string        `json:"priority,omitempty"`
}

// Method enumerates the grading backends a question can be routed to.
type Method string

const (
	MethodRuleExact       Method = "rule_exact"
	MethodRuleFlexible    Method = "rule_flexible"
	MethodLocalClassifier Method = "local_classifier"
	MethodRemoteSingle    Method = "remote_llm_single"
	MethodRemoteBatch     Method = "remote_llm_batch"
)

// QualityFlags annotates a result with review and provenance markers.
type QualityFlags struct {
	ReviewRequired bool `json:"review_required"`
	FallbackUsed   bool `json:"fallback_used"`
	CacheHit       bool `json:"cache_hit"`
}

// Result is the unified grading outcome for one question. Immutable after
// creation; may be cached and later superseded by a fresh attempt.
type Result struct {
	QuestionID       string       `json:"question_id"`
	IsCorrect        bool         `json:"is_correct"`
	PointsEarned     float64      `json:"points_earned"`
	PointsPossible   float64      `json:"points_possible"`
	Confidence       float64      `json:"confidence"`
	Method           Method       `json:"method"`
	Reasoning        string       `json:"reasoning"`
	ProcessingTimeMs int64        `json:"processing_time_ms"`
	Flags            QualityFlags `json:"flags"`
}

// ClampPoints bounds PointsEarned to [0, PointsPossible].
func (r *Result) ClampPoints() {
	if r.PointsEarned < 0 {
		r.PointsEarned = 0
	}
	if r.PointsEarned > r.PointsPossible {
		r.PointsEarned = r.PointsPossible
	}
}

// FallbackConfidence is assigned to degraded results produced when a backend
// is unavailable.
const FallbackConfidence = 0.3

// FallbackResult builds the degraded verdict returned when a backend could
// not grade a question. It never awards credit and always requests review.
func FallbackResult(question QuestionInput, method Method, reasoning string) Result {
	return Result{
		QuestionID:     question.ID,
		IsCorrect:      false,
		PointsEarned:   0,
		PointsPossible: question.PointsPossible,
		Confidence:     FallbackConfidence,
		Method:         method,
		Reasoning:      reasoning,
		Flags: QualityFlags{
			ReviewRequired: true,
			FallbackUsed:   true,
		},
	}
}

// Backend is the uniform contract over the grading mechanisms. An adapter
// always returns exactly one result per question, degrading to fallback
// results instead of propagating backend errors.
type Backend interface {
	Name() string
	GradeBatch(ctx context.Context, questions []QuestionInput, gctx Context) []Result
}
