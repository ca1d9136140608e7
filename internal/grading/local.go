package grading

import (
	"context"
	"fmt"
)

const (
	localCorrectThreshold = 0.65
	localPartialThreshold = 0.4
)

// LocalBackend is the lightweight in-process classifier. It scores lexical
// agreement between the student answer and the expected answers and never
// errors, making it the universal fallback when the remote backend is down.
type LocalBackend struct{}

// NewLocalBackend constructs the local classifier adapter.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

// Name identifies the adapter.
func (b *LocalBackend) Name() string {
	return "local_classifier"
}

// GradeBatch grades every question and always returns one result per input.
func (b *LocalBackend) GradeBatch(_ context.Context, questions []QuestionInput, _ Context) []Result {
	results := make([]Result, 0, len(questions))
	for _, question := range questions {
		results = append(results, b.gradeOne(question))
	}

	return results
}

func (b *LocalBackend) gradeOne(question QuestionInput) Result {
	student := NormalizeAnswer(question.StudentAnswer)

	best := 0.0
	candidates := append([]string{question.CorrectAnswer}, question.AcceptableAnswers...)
	for _, candidate := range candidates {
		if similarity := tokenOverlap(student, NormalizeAnswer(candidate)); similarity > best {
			best = similarity
		}
	}

	result := Result{
		QuestionID:     question.ID,
		PointsPossible: question.PointsPossible,
		Method:         MethodLocalClassifier,
	}

	switch {
	case best >= localCorrectThreshold:
		result.IsCorrect = true
		result.PointsEarned = question.PointsPossible
	case best >= localPartialThreshold:
		result.IsCorrect = false
		result.PointsEarned = question.PointsPossible * 0.5
	default:
		result.IsCorrect = false
		result.PointsEarned = 0
	}

	result.Confidence = localConfidence(best)
	result.Reasoning = fmt.Sprintf("lexical agreement %.2f against expected answers", best)
	result.ClampPoints()

	return result
}

// localConfidence grows with distance from the correctness threshold: a score
// far above or far below the cut is a confident verdict, a score near the cut
// is not.
func localConfidence(similarity float64) float64 {
	separation := similarity - localCorrectThreshold
	if separation < 0 {
		separation = -separation
	}

	confidence := 0.5 + separation
	if confidence > 0.95 {
		confidence = 0.95
	}

	return confidence
}
