package grading

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyComplexityShortFactualIsSimple(t *testing.T) {
	question := QuestionInput{
		ID:            "q1",
		Prompt:        "What is 2 + 2?",
		CorrectAnswer: "4",
		Kind:          KindNumeric,
	}

	complexity := ClassifyComplexity(question)
	require.Equal(t, BucketSimple, complexity.Bucket)
	require.Less(t, complexity.Score, 0.3)
}

func TestClassifyComplexityEssayWithAnalyticalVerbsIsComplex(t *testing.T) {
	question := QuestionInput{
		ID:            "q2",
		Prompt:        "Explain and evaluate the causes of the French Revolution, and compare them with the American Revolution. Discuss the economic and social factors in detail, citing at least two historians.",
		CorrectAnswer: strings.Repeat("long expected answer ", 10),
		Kind:          KindEssay,
	}

	complexity := ClassifyComplexity(question)
	require.Equal(t, BucketComplex, complexity.Bucket)
	require.GreaterOrEqual(t, complexity.Score, 0.7)
}

func TestClassifyComplexityChoiceQuestionGetsDiscount(t *testing.T) {
	base := QuestionInput{
		ID:            "q3",
		Prompt:        "Which planet is known as the red planet in our solar system?",
		CorrectAnswer: "Mars",
	}

	openEnded := ClassifyComplexity(base)

	choice := base
	choice.Kind = KindMultipleChoice
	discounted := ClassifyComplexity(choice)

	require.Less(t, discounted.Score, openEnded.Score)
}

func TestClassifyComplexityIsDeterministic(t *testing.T) {
	question := QuestionInput{
		ID:            "q4",
		Prompt:        "Analyze the role of photosynthesis in the carbon cycle and justify your reasoning with examples from at least two different ecosystems.",
		CorrectAnswer: "Photosynthesis removes carbon dioxide from the atmosphere and stores it in biomass.",
		Kind:          KindShortAnswer,
	}

	first := ClassifyComplexity(question)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, ClassifyComplexity(question))
	}
}

func TestClassifyComplexityScoreStaysInRange(t *testing.T) {
	extreme := QuestionInput{
		ID:            "q5",
		Prompt:        strings.Repeat("explain compare evaluate analyze justify discuss interpret ", 20),
		CorrectAnswer: strings.Repeat("word ", 50),
		Kind:          KindEssay,
	}

	complexity := ClassifyComplexity(extreme)
	require.GreaterOrEqual(t, complexity.Score, 0.0)
	require.LessOrEqual(t, complexity.Score, 1.0)

	empty := ClassifyComplexity(QuestionInput{ID: "q6", Kind: KindTrueFalse, CorrectAnswer: "true"})
	require.GreaterOrEqual(t, empty.Score, 0.0)
}
