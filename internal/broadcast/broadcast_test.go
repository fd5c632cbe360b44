package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventRoundTripsTypedPayload(t *testing.T) {
	ev, err := NewEvent("ABC234", AnswerSubmitted, AnswerSubmittedPayload{CurrentQuestion: 1, AnsweredCount: 3}, time.Unix(0, 0))
	require.NoError(t, err)
	require.Equal(t, "quiz:ABC234", Topic(ev.Code))

	var got AnswerSubmittedPayload
	require.NoError(t, ev.Decode(&got))
	require.Equal(t, 3, got.AnsweredCount)
}

func TestUnsubscribeRunsOnce(t *testing.T) {
	calls := 0
	sub := NewSubscription(func() { calls++ })
	sub.Unsubscribe()
	sub.Unsubscribe()
	require.Equal(t, 1, calls)

	NewSubscription(nil).Unsubscribe()
}
