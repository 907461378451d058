package matchclock

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusUpcoming  Status = "UPCOMING"
	StatusLive      Status = "LIVE"
	StatusCompleted Status = "COMPLETED"
)

// ParseStatus validates a persisted or user-supplied status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusUpcoming, StatusLive, StatusCompleted:
		return st, nil
	default:
		return "", fmt.Errorf("unknown match status %q", s)
	}
}

type Phase string

const (
	PhasePre        Phase = "PRE"
	PhaseFirstHalf  Phase = "FIRST_HALF"
	PhaseHalfTime   Phase = "HT"
	PhaseSecondHalf Phase = "SECOND_HALF"
	PhaseExtraTime  Phase = "ET"
	PhaseFullTime   Phase = "FT"
)

// ParsePhase validates a persisted phase.
func ParsePhase(s string) (Phase, error) {
	switch p := Phase(s); p {
	case PhasePre, PhaseFirstHalf, PhaseHalfTime, PhaseSecondHalf, PhaseExtraTime, PhaseFullTime:
		return p, nil
	default:
		return "", fmt.Errorf("unknown match phase %q", s)
	}
}

// State is the clock of one match. ClockStartedAt is non-nil only while a
// segment is running; ElapsedSeconds holds everything accumulated before it.
type State struct {
	Status         Status     `json:"status"`
	Phase          Phase      `json:"phase"`
	ElapsedSeconds int64      `json:"elapsedSeconds"`
	ClockStartedAt *time.Time `json:"clockStartedAt"`
}

// Initial is the clock of a freshly created match.
func Initial() State {
	return State{
		Status: StatusUpcoming,
		Phase:  PhasePre,
	}
}

// Running reports whether a segment is currently advancing the clock.
func (s State) Running() bool {
	return s.ClockStartedAt != nil
}

// EffectiveElapsed returns accumulated seconds plus the running segment.
// A segment that appears to start in the future contributes nothing.
func (s State) EffectiveElapsed(now time.Time) int64 {
	if s.ClockStartedAt == nil {
		return s.ElapsedSeconds
	}
	delta := now.Sub(*s.ClockStartedAt)
	if delta < 0 {
		delta = 0
	}
	return s.ElapsedSeconds + int64(delta/time.Second)
}
