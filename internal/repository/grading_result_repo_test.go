package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/audeo-edu/intelligrade-api/internal/models"
)

func TestGradingResultRepositoryCreateAndList(t *testing.T) {
	db := setupTestDB(t, &models.GradingResult{})
	repo := NewGradingResultRepository(db)

	require.NoError(t, repo.Create(context.Background(), &models.GradingResult{
		QuestionID:     "q1",
		SessionID:      "s1",
		IsCorrect:      true,
		PointsEarned:   2,
		PointsPossible: 2,
		Confidence:     1,
		Method:         "rule_exact",
	}))

	require.NoError(t, repo.CreateBatch(context.Background(), []models.GradingResult{
		{QuestionID: "q2", SessionID: "s1", Method: "local_classifier", Confidence: 0.7},
		{QuestionID: "q3", SessionID: "s2", Method: "remote_llm_batch", Confidence: 0.9},
	}))

	all, err := repo.List(context.Background(), GradingResultFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestGradingResultRepositoryListFilters(t *testing.T) {
	db := setupTestDB(t, &models.GradingResult{})
	repo := NewGradingResultRepository(db)

	require.NoError(t, repo.CreateBatch(context.Background(), []models.GradingResult{
		{QuestionID: "q1", SessionID: "s1", Method: "rule_exact"},
		{QuestionID: "q1", SessionID: "s2", Method: "local_classifier"},
		{QuestionID: "q2", SessionID: "s1", Method: "local_classifier"},
	}))

	questionID := "q1"
	byQuestion, err := repo.List(context.Background(), GradingResultFilter{QuestionID: &questionID})
	require.NoError(t, err)
	require.Len(t, byQuestion, 2)

	sessionID := "s1"
	method := "local_classifier"
	narrowed, err := repo.List(context.Background(), GradingResultFilter{SessionID: &sessionID, Method: &method})
	require.NoError(t, err)
	require.Len(t, narrowed, 1)
	require.Equal(t, "q2", narrowed[0].QuestionID)
}

func TestGradingResultRepositoryCreateBatchEmpty(t *testing.T) {
	db := setupTestDB(t, &models.GradingResult{})
	repo := NewGradingResultRepository(db)

	require.NoError(t, repo.CreateBatch(context.Background(), nil))
}
