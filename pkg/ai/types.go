package ai

import "context"

// QuestionPayload is one question submitted to the remote grading model.
type QuestionPayload struct {
	ID             string   `json:"id"`
	Prompt         string   `json:"prompt"`
	StudentAnswer  string   `json:"studentAnswer"`
	CorrectAnswer  string   `json:"correctAnswer"`
	PointsPossible float64  `json:"pointsPossible"`
	SkillContext   []string `json:"skillContext,omitempty"`
}

// BatchRequest wraps the questions sent in a single remote call.
type BatchRequest struct {
	Questions []QuestionPayload `json:"questions"`
	Priority  string            `json:"priority,omitempty"`
}

// ItemResult is the verdict returned for a single question. The response may
// contain fewer items than the request and in any order; callers must match
// entries by QuestionID.
type ItemResult struct {
	QuestionID   string  `json:"questionId"`
	IsCorrect    bool    `json:"isCorrect"`
	PointsEarned float64 `json:"pointsEarned"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

// BatchResponse is the structured output of one remote grading call.
type BatchResponse struct {
	Results []ItemResult `json:"results"`
}

// Grader describes a remote model capable of grading question batches.
type Grader interface {
	GradeBatch(ctx context.Context, request BatchRequest) (BatchResponse, error)
}
