package scoring

import (
	"math"
	"testing"

	"trivia-sync-service/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestCalculatePointsKnownValues(t *testing.T) {
	require.Equal(t, 100, CalculatePoints(30, 0, 100, true))
	require.Equal(t, 50, CalculatePoints(30, 30000, 100, true))
	require.Equal(t, 75, CalculatePoints(30, 15000, 100, true))
	require.Equal(t, 0, CalculatePoints(30, 0, 100, false))
}

func TestCalculatePointsLateAnswerKeepsFloor(t *testing.T) {
	require.Equal(t, 50, CalculatePoints(30, 90000, 100, true))
	require.Equal(t, 100, CalculatePoints(30, -500, 100, true), "clock skew must not exceed base points")
}

func TestCalculatePointsBounds(t *testing.T) {
	for _, limit := range []int{5, 17, 30, 120} {
		for _, base := range []int{10, 99, 100, 333, 1000} {
			floor := int(math.Round(0.5 * float64(base)))
			for _, taken := range []int64{0, 1, 999, 2500, int64(limit) * 500, int64(limit) * 1000, 1 << 40} {
				got := CalculatePoints(limit, taken, base, true)
				require.GreaterOrEqual(t, got, floor)
				require.LessOrEqual(t, got, base)
				require.Zero(t, CalculatePoints(limit, taken, base, false))
			}
		}
	}
}

func TestCheckAnswerIgnoresCaseAndWhitespace(t *testing.T) {
	tf := domain.Question{Type: domain.TrueFalse, CorrectAnswer: "True"}
	require.True(t, CheckAnswer(tf, " true "))
	require.False(t, CheckAnswer(tf, "false"))

	mc := domain.Question{Type: domain.MultipleChoice, CorrectAnswer: "Madrid", Options: []string{"Madrid", "Lisbon"}}
	require.True(t, CheckAnswer(mc, "MADRID"))
	require.False(t, CheckAnswer(mc, "Madri"), "choice questions need an exact match")
}

func TestCheckAnswerOpenTextFuzzy(t *testing.T) {
	q := domain.Question{Type: domain.OpenText, CorrectAnswer: "Paris"}

	require.True(t, CheckAnswer(q, "paris"))
	require.True(t, CheckAnswer(q, "pariss"))
	require.InDelta(t, 1-1.0/6, Similarity("Paris", "pariss"), 1e-9)

	require.False(t, CheckAnswer(q, "parsi"))
	require.InDelta(t, 0.6, Similarity("Paris", "parsi"), 1e-9)
}

func TestSimilarityOfEmptyStrings(t *testing.T) {
	require.Equal(t, 1.0, Similarity("", "  "))
	require.True(t, CheckAnswer(domain.Question{Type: domain.OpenText, CorrectAnswer: " "}, ""))
}

func TestCheckAnswerUnknownType(t *testing.T) {
	require.False(t, CheckAnswer(domain.Question{Type: "essay", CorrectAnswer: "x"}, "x"))
}

func TestIsLate(t *testing.T) {
	require.False(t, IsLate(30, 30000, 0))
	require.True(t, IsLate(30, 30001, 0))
	require.False(t, IsLate(30, 31000, 1500))
}
