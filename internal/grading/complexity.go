package grading

import "strings"

// Bucket is the discrete complexity class of a question.
type Bucket string

const (
	BucketSimple  Bucket = "simple"
	BucketMedium  Bucket = "medium"
	BucketComplex Bucket = "complex"
)

// Complexity is the classifier output: a score in [0,1] and its bucket.
type Complexity struct {
	Score  float64 `json:"score"`
	Bucket Bucket  `json:"bucket"`
}

const (
	simpleThreshold  = 0.3
	complexThreshold = 0.7
)

var analyticalVerbs = []string{
	"explain", "compare", "evaluate", "analyze", "analyse",
	"justify", "discuss", "interpret", "argue", "derive",
}

// ClassifyComplexity scores a question's difficulty from its text features.
// Deterministic and side-effect free.
func ClassifyComplexity(question QuestionInput) Complexity {
	score := 0.0

	promptLength := len(strings.TrimSpace(question.Prompt))
	switch {
	case promptLength > 300:
		score += 0.3
	case promptLength > 120:
		score += 0.2
	case promptLength > 40:
		score += 0.1
	}

	lowerPrompt := strings.ToLower(question.Prompt)
	verbWeight := 0.0
	for _, verb := range analyticalVerbs {
		if strings.Contains(lowerPrompt, verb) {
			verbWeight += 0.15
		}
	}
	if verbWeight > 0.45 {
		verbWeight = 0.45
	}
	score += verbWeight

	answerWords := len(strings.Fields(question.CorrectAnswer))
	switch {
	case answerWords > 20:
		score += 0.25
	case answerWords > 8:
		score += 0.15
	}

	switch question.Kind {
	case KindEssay:
		score += 0.3
	case KindMultipleChoice, KindTrueFalse:
		// Choice questions with short expected answers grade by matching.
		if answerWords <= 5 {
			score -= 0.2
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return Complexity{Score: score, Bucket: bucketFor(score)}
}

func bucketFor(score float64) Bucket {
	switch {
	case score < simpleThreshold:
		return BucketSimple
	case score < complexThreshold:
		return BucketMedium
	default:
		return BucketComplex
	}
}
