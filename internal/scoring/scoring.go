// Package scoring decides whether a submission is correct and how many points it earns.
package scoring

import (
	"math"
	"strings"
	"unicode/utf8"

	"trivia-sync-service/internal/domain"

	"github.com/agnivade/levenshtein"
)

// SimilarityThreshold is the minimum similarity for an open text answer to count as correct.
const SimilarityThreshold = 0.80

// CheckAnswer compares a submission against the question's correct answer,
// ignoring case and surrounding whitespace.
func CheckAnswer(q domain.Question, submitted string) bool {
	correct := normalize(q.CorrectAnswer)
	answer := normalize(submitted)

	switch q.Type {
	case domain.MultipleChoice, domain.TrueFalse:
		return correct == answer
	case domain.OpenText:
		return similarity(correct, answer) >= SimilarityThreshold
	}
	return false
}

// Similarity returns 1 - distance/maxLen over the normalized strings.
// Two empty strings are fully similar.
func Similarity(a, b string) float64 {
	return similarity(normalize(a), normalize(b))
}

func similarity(a, b string) float64 {
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CalculatePoints scales basePoints between 50% and 100% by the share of the time
// limit left at submission. Incorrect answers earn nothing.
func CalculatePoints(timeLimitSeconds int, timeTakenMs int64, basePoints int, isCorrect bool) int {
	if !isCorrect {
		return 0
	}
	limitMs := float64(timeLimitSeconds) * 1000
	ratio := 0.0
	if limitMs > 0 {
		ratio = (limitMs - float64(timeTakenMs)) / limitMs
	}
	ratio = math.Max(0, math.Min(1, ratio))

	multiplier := 0.5 + 0.5*ratio
	return int(math.Round(float64(basePoints) * multiplier))
}

// IsLate reports whether the elapsed time exceeded the limit plus grace.
func IsLate(timeLimitSeconds int, timeTakenMs, graceMs int64) bool {
	return timeTakenMs > int64(timeLimitSeconds)*1000+graceMs
}
