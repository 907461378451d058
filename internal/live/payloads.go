package live

import (
	"time"

	"github.com/edvart/matchday/internal/aggregate"
	"github.com/edvart/matchday/internal/matchclock"
	"github.com/edvart/matchday/internal/store"
)

// EventPayload accompanies event-created and event-updated messages.
type EventPayload struct {
	Event store.MatchEvent  `json:"event"`
	Score *aggregate.Result `json:"score,omitempty"`
}

// EventDeletedPayload accompanies event-deleted messages.
type EventDeletedPayload struct {
	ID      int64             `json:"id"`
	MatchID int64             `json:"matchId"`
	Score   *aggregate.Result `json:"score,omitempty"`
}

// ClockPayload accompanies clock-updated messages.
type ClockPayload struct {
	ID             int64             `json:"id"`
	Status         matchclock.Status `json:"status"`
	Phase          matchclock.Phase  `json:"phase"`
	ElapsedSeconds int64             `json:"elapsedSeconds"`
	ClockStartedAt *time.Time        `json:"clockStartedAt"`
	Display        string            `json:"display"`
}

func newClockPayload(matchID int64, st matchclock.State, now time.Time) ClockPayload {
	return ClockPayload{
		ID:             matchID,
		Status:         st.Status,
		Phase:          st.Phase,
		ElapsedSeconds: st.ElapsedSeconds,
		ClockStartedAt: st.ClockStartedAt,
		Display:        matchclock.FormatClock(st.EffectiveElapsed(now)),
	}
}

// EventInput describes an event reported from the touchline.
type EventInput struct {
	PlayerID int64  `json:"playerId"`
	Type     string `json:"type"`
	Minute   int    `json:"minute"`
	Half     *int   `json:"half"`
}

// EventPatch holds the fields of a correction; nil fields are kept.
type EventPatch struct {
	PlayerID *int64  `json:"playerId"`
	Type     *string `json:"type"`
	Minute   *int    `json:"minute"`
	Half     *int    `json:"half"`
}

// RecordResult is the outcome of recording an event.
type RecordResult struct {
	Events  []store.MatchEvent `json:"events"`
	Created bool               `json:"created"`
	Score   *aggregate.Result  `json:"score,omitempty"`
}

// ClockResult is the outcome of a clock action. Applied is false when the
// action's precondition did not hold and nothing changed.
type ClockResult struct {
	Clock   ClockPayload `json:"clock"`
	Applied bool         `json:"applied"`
}
