package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/audeo-edu/intelligrade-api/internal/grading"
)

// Key derives the deterministic cache key for a grading attempt. It is a pure
// function of the grading-relevant inputs only, so re-grading the same answer
// against the same question always resolves to the same entry. Skill tags are
// sorted to make the key order-independent.
func Key(questionID, studentAnswer, correctAnswer string, skillTags []string) string {
	sorted := make([]string, len(skillTags))
	copy(sorted, skillTags)
	sort.Strings(sorted)

	builder := strings.Builder{}
	builder.WriteString(questionID)
	builder.WriteByte(0x1f)
	builder.WriteString(studentAnswer)
	builder.WriteByte(0x1f)
	builder.WriteString(correctAnswer)
	builder.WriteByte(0x1f)
	builder.WriteString(strings.Join(sorted, ","))

	sum := sha256.Sum256([]byte(builder.String()))
	return hex.EncodeToString(sum[:])
}

// KeyForQuestion derives the cache key from a question input.
func KeyForQuestion(question grading.QuestionInput) string {
	return Key(question.ID, question.StudentAnswer, question.CorrectAnswer, question.SkillTags)
}
