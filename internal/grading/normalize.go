package grading

import (
	"strconv"
	"strings"
	"unicode"
)

// NormalizeAnswer lowercases, strips punctuation, and collapses whitespace so
// superficial formatting never affects a match.
func NormalizeAnswer(answer string) string {
	lowered := strings.ToLower(strings.TrimSpace(answer))

	builder := strings.Builder{}
	builder.Grow(len(lowered))
	lastSpace := false
	for _, r := range lowered {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-':
			builder.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && builder.Len() > 0 {
				builder.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(builder.String())
}

// numericEquivalent compares two answers as numbers with a small tolerance.
// Returns false when either side is not numeric.
func numericEquivalent(a, b string) bool {
	left, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	right, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA != nil || errB != nil {
		return false
	}

	diff := left - right
	if diff < 0 {
		diff = -diff
	}

	tolerance := 1e-6
	if right != 0 {
		scaled := right * 1e-4
		if scaled < 0 {
			scaled = -scaled
		}
		if scaled > tolerance {
			tolerance = scaled
		}
	}

	return diff <= tolerance
}

// tokenOverlap computes the F1 overlap between the token sets of two
// normalized strings. Used by the local classifier.
func tokenOverlap(a, b string) float64 {
	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(tokensA))
	for _, token := range tokensA {
		setA[token] = struct{}{}
	}

	matched := 0
	seen := make(map[string]struct{}, len(tokensB))
	for _, token := range tokensB {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		if _, ok := setA[token]; ok {
			matched++
		}
	}

	precision := float64(matched) / float64(len(seen))
	recall := float64(matched) / float64(len(setA))
	if precision+recall == 0 {
		return 0
	}

	return 2 * precision * recall / (precision + recall)
}
