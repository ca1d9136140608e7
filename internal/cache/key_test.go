package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/audeo-edu/intelligrade-api/internal/grading"
)

func TestKeyIsDeterministic(t *testing.T) {
	first := Key("q1", "answer", "expected", []string{"algebra", "fractions"})
	second := Key("q1", "answer", "expected", []string{"algebra", "fractions"})

	require.Equal(t, first, second)
	require.Len(t, first, 64)
}

func TestKeyIgnoresSkillTagOrder(t *testing.T) {
	require.Equal(t,
		Key("q1", "answer", "expected", []string{"b", "a"}),
		Key("q1", "answer", "expected", []string{"a", "b"}),
	)
}

func TestKeyChangesWithAnyInput(t *testing.T) {
	base := Key("q1", "answer", "expected", nil)

	require.NotEqual(t, base, Key("q2", "answer", "expected", nil))
	require.NotEqual(t, base, Key("q1", "other", "expected", nil))
	require.NotEqual(t, base, Key("q1", "answer", "other", nil))
	require.NotEqual(t, base, Key("q1", "answer", "expected", []string{"tag"}))
}

func TestKeySeparatorPreventsFieldBleed(t *testing.T) {
	// "ab"+"c" must not collide with "a"+"bc".
	require.NotEqual(t,
		Key("ab", "c", "x", nil),
		Key("a", "bc", "x", nil),
	)
}

func TestKeyForQuestionMatchesKey(t *testing.T) {
	question := grading.QuestionInput{
		ID:            "q9",
		StudentAnswer: "mitochondria",
		CorrectAnswer: "the mitochondria",
		SkillTags:     []string{"biology", "cells"},
	}

	require.Equal(t,
		Key("q9", "mitochondria", "the mitochondria", []string{"biology", "cells"}),
		KeyForQuestion(question),
	)
}

func TestKeyDoesNotMutateTags(t *testing.T) {
	tags := []string{"z", "a"}
	Key("q1", "s", "c", tags)
	require.Equal(t, []string{"z", "a"}, tags)
}
