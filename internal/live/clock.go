package live

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/edvart/matchday/internal/broadcast"
	"github.com/edvart/matchday/internal/matchclock"
	"github.com/edvart/matchday/internal/store"
)

// ApplyClockAction runs a clock action against the stored state. An action
// whose precondition fails changes nothing and is not broadcast.
func (s *Service) ApplyClockAction(ctx context.Context, matchID int64, action string) (*ClockResult, error) {
	a, err := matchclock.ParseAction(action)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	now := s.now()
	update, err := s.store.UpdateMatchClock(ctx, matchID, func(st matchclock.State) (matchclock.State, bool, error) {
		return st.Apply(a, now)
	})
	if err != nil {
		return nil, err
	}

	result := &ClockResult{Clock: newClockPayload(matchID, update.After, now), Applied: update.Applied}
	log := s.log.WithFields(logrus.Fields{"match_id": matchID, "action": a})
	if !update.Applied {
		log.Debug("clock action ignored")
		return result, nil
	}
	log.WithField("phase", update.After.Phase).Info("clock updated")

	wasCompleted := update.Before.Status == matchclock.StatusCompleted
	isCompleted := update.After.Status == matchclock.StatusCompleted
	switch {
	case isCompleted && !wasCompleted:
		// Writes the final score first, which then feeds the standings.
		if _, err := s.aggregator.RecomputeScore(ctx, matchID); err != nil {
			log.WithError(err).Warn("final score recompute failed")
		}
	case wasCompleted && !isCompleted:
		if err := s.standings.UpdateForMatch(ctx, matchID); err != nil {
			log.WithError(err).Warn("standings update after reopening match failed")
		}
	}

	s.broadcaster.Emit(broadcast.MatchRoom(matchID), broadcast.KindClockUpdated, result.Clock)
	return result, nil
}

// GetCounters returns the counters of a match.
func (s *Service) GetCounters(ctx context.Context, matchID int64) (*store.MatchCounters, error) {
	c, err := s.store.GetCounters(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: match %d", store.ErrNotFound, matchID)
	}
	return c, nil
}

// ApplyCounterDelta adjusts the match counters; none drops below zero.
func (s *Service) ApplyCounterDelta(ctx context.Context, matchID int64, delta store.CounterDelta) (*store.MatchCounters, error) {
	c, err := s.store.ApplyCounterDelta(ctx, matchID, delta)
	if err != nil {
		return nil, err
	}
	s.broadcaster.Emit(broadcast.MatchRoom(matchID), broadcast.KindCountersUpdated, c)
	return c, nil
}
