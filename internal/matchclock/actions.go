package matchclock

import (
	"errors"
	"fmt"
	"time"
)

type Action string

const (
	ActionStartFirstHalf  Action = "START_FIRST_HALF"
	ActionEndFirstHalf    Action = "END_FIRST_HALF"
	ActionStartSecondHalf Action = "START_SECOND_HALF"
	ActionAddExtraTime    Action = "ADD_EXTRA_TIME"
	ActionEndMatch        Action = "END_MATCH"
)

var ErrUnknownAction = errors.New("unknown clock action")

const (
	halfLength = 45 * 60
	fullLength = 90 * 60
)

// ParseAction maps a request value onto the closed action set.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionStartFirstHalf, ActionEndFirstHalf, ActionStartSecondHalf, ActionAddExtraTime, ActionEndMatch:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Apply returns the state after performing a on s at time now. The bool is
// false when the action's precondition does not hold; the state is then
// returned unchanged and nothing should be persisted.
func (s State) Apply(a Action, now time.Time) (State, bool, error) {
	now = now.UTC()
	effective := s.EffectiveElapsed(now)

	switch a {
	case ActionStartFirstHalf:
		return State{
			Status:         StatusLive,
			Phase:          PhaseFirstHalf,
			ElapsedSeconds: 0,
			ClockStartedAt: &now,
		}, true, nil

	case ActionEndFirstHalf:
		if !s.Running() {
			return s, false, nil
		}
		return State{
			Status:         s.Status,
			Phase:          PhaseHalfTime,
			ElapsedSeconds: effective,
		}, true, nil

	case ActionStartSecondHalf:
		return State{
			Status:         StatusLive,
			Phase:          PhaseSecondHalf,
			ElapsedSeconds: effective,
			ClockStartedAt: &now,
		}, true, nil

	case ActionAddExtraTime:
		// Premature requests are ignored rather than rejected.
		threshold := int64(fullLength)
		if s.Phase == PhaseFirstHalf {
			threshold = halfLength
		}
		if effective < threshold {
			return s, false, nil
		}
		next := State{
			Status:         StatusLive,
			Phase:          PhaseExtraTime,
			ElapsedSeconds: s.ElapsedSeconds,
			ClockStartedAt: s.ClockStartedAt,
		}
		if next.ClockStartedAt == nil {
			next.ClockStartedAt = &now
		}
		return next, true, nil

	case ActionEndMatch:
		return State{
			Status:         StatusCompleted,
			Phase:          PhaseFullTime,
			ElapsedSeconds: effective,
		}, true, nil

	default:
		return s, false, fmt.Errorf("%w: %q", ErrUnknownAction, string(a))
	}
}
