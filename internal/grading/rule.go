package grading

import (
	"context"

	"github.com/agnivade/levenshtein"
)

// flexibleSimilarity is the minimum normalized edit similarity accepted as a
// flexible match.
const flexibleSimilarity = 0.85

// RuleBackend grades by deterministic answer matching: exact comparison
// first, then flexible comparison against the acceptable-answer set.
// Synchronous and pure.
type RuleBackend struct{}

// NewRuleBackend constructs the rule matching adapter.
func NewRuleBackend() *RuleBackend {
	return &RuleBackend{}
}

// Name identifies the adapter.
func (b *RuleBackend) Name() string {
	return "rule_matcher"
}

// GradeBatch grades every question and always returns one result per input.
func (b *RuleBackend) GradeBatch(_ context.Context, questions []QuestionInput, _ Context) []Result {
	results := make([]Result, 0, len(questions))
	for _, question := range questions {
		results = append(results, b.gradeOne(question))
	}

	return results
}

func (b *RuleBackend) gradeOne(question QuestionInput) Result {
	student := NormalizeAnswer(question.StudentAnswer)
	expected := NormalizeAnswer(question.CorrectAnswer)

	result := Result{
		QuestionID:     question.ID,
		PointsPossible: question.PointsPossible,
	}

	if student != "" && student == expected {
		result.IsCorrect = true
		result.PointsEarned = question.PointsPossible
		result.Confidence = 1.0
		result.Method = MethodRuleExact
		result.Reasoning = "student answer matches the expected answer exactly"
		return result
	}

	if matched, against := b.flexibleMatch(student, expected, question); matched {
		result.IsCorrect = true
		result.PointsEarned = question.PointsPossible
		result.Confidence = 0.85
		result.Method = MethodRuleFlexible
		result.Reasoning = "student answer is a flexible match for " + against
		return result
	}

	result.IsCorrect = false
	result.PointsEarned = 0
	result.Method = MethodRuleFlexible
	result.Reasoning = "student answer matched neither the expected answer nor any acceptable alternative"
	result.Confidence = mismatchConfidence(question.Kind)

	return result
}

// flexibleMatch tries the acceptable-answer set, numeric equivalence, and
// bounded edit distance.
func (b *RuleBackend) flexibleMatch(student, expected string, question QuestionInput) (bool, string) {
	if student == "" {
		return false, ""
	}

	candidates := make([]string, 0, len(question.AcceptableAnswers)+1)
	candidates = append(candidates, expected)
	for _, alternative := range question.AcceptableAnswers {
		candidates = append(candidates, NormalizeAnswer(alternative))
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if student == candidate {
			return true, "an acceptable alternative"
		}
		if numericEquivalent(student, candidate) {
			return true, "the expected value numerically"
		}
		if editSimilarity(student, candidate) >= flexibleSimilarity {
			return true, "the expected answer within edit tolerance"
		}
	}

	return false, ""
}

func editSimilarity(a, b string) float64 {
	longest := len([]rune(a))
	if other := len([]rune(b)); other > longest {
		longest = other
	}
	if longest == 0 {
		return 0
	}

	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}

// mismatchConfidence reflects how conclusive a rule mismatch is: closed-form
// answers make non-matches near-certain, free text leaves room for doubt.
func mismatchConfidence(kind QuestionKind) float64 {
	switch kind {
	case KindMultipleChoice, KindTrueFalse, KindNumeric:
		return 0.95
	default:
		return 0.6
	}
}
