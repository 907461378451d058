package live

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/edvart/matchday/internal/aggregate"
	"github.com/edvart/matchday/internal/broadcast"
	"github.com/edvart/matchday/internal/store"
)

func validateTiming(minute int, half *int) error {
	if minute < 0 {
		return fmt.Errorf("%w: minute must not be negative", store.ErrInvalidInput)
	}
	if half != nil && *half != 1 && *half != 2 {
		return fmt.Errorf("%w: half must be 1 or 2", store.ErrInvalidInput)
	}
	return nil
}

// checkPlayer ensures the player exists and plays for one of the match's
// teams.
func (s *Service) checkPlayer(ctx context.Context, mc *store.MatchContext, playerID int64) error {
	p, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: unknown player %d", store.ErrInvalidInput, playerID)
	}
	if p.TeamID != mc.HomeTeamID && p.TeamID != mc.AwayTeamID {
		return fmt.Errorf("%w: player %d does not play in match %d", store.ErrInvalidInput, playerID, mc.MatchID)
	}
	return nil
}

// recompute refreshes derived data after a committed event write. The
// score is nil when aggregation failed.
func (s *Service) recompute(ctx context.Context, matchID int64, extraPlayerIDs ...int64) *aggregate.Result {
	res, err := s.aggregator.Recompute(ctx, matchID, extraPlayerIDs...)
	if err != nil {
		s.log.WithError(err).WithField("match_id", matchID).Warn("aggregation failed")
		return nil
	}
	return &res
}

// RecordEvent appends an event to the match log. Reporting the same
// (player, type, minute) again returns the stored event; derived data and
// the broadcast are refreshed either way so retries converge.
func (s *Service) RecordEvent(ctx context.Context, matchID int64, in EventInput) (*RecordResult, error) {
	typ, err := store.ParseEventType(in.Type)
	if err != nil {
		return nil, err
	}
	if typ == store.EventYellowCard {
		return s.RecordYellowCard(ctx, matchID, in.PlayerID, in.Minute, in.Half)
	}
	if err := validateTiming(in.Minute, in.Half); err != nil {
		return nil, err
	}
	mc, err := s.matchContext(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPlayer(ctx, mc, in.PlayerID); err != nil {
		return nil, err
	}

	ev := &store.MatchEvent{MatchID: matchID, PlayerID: in.PlayerID, Type: typ, Minute: in.Minute, Half: in.Half}
	created, err := s.store.InsertEventIdempotent(ctx, ev)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"match_id": matchID,
		"event_id": ev.ID,
		"type":     ev.Type,
		"created":  created,
	}).Info("event recorded")

	score := s.recompute(ctx, matchID)
	s.broadcaster.Emit(broadcast.MatchRoom(matchID), broadcast.KindEventCreated, EventPayload{Event: *ev, Score: score})
	return &RecordResult{Events: []store.MatchEvent{*ev}, Created: created, Score: score}, nil
}

// RecordYellowCard books a player. A second booking in the same match
// also records a red card at the same minute.
func (s *Service) RecordYellowCard(ctx context.Context, matchID, playerID int64, minute int, half *int) (*RecordResult, error) {
	if err := validateTiming(minute, half); err != nil {
		return nil, err
	}
	mc, err := s.matchContext(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPlayer(ctx, mc, playerID); err != nil {
		return nil, err
	}

	events, err := s.store.InsertYellowCard(ctx, matchID, playerID, minute, half)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"match_id":  matchID,
		"player_id": playerID,
		"sent_off":  len(events) > 1,
	}).Info("yellow card recorded")

	score := s.recompute(ctx, matchID)
	for _, ev := range events {
		s.broadcaster.Emit(broadcast.MatchRoom(matchID), broadcast.KindEventCreated, EventPayload{Event: ev, Score: score})
	}
	return &RecordResult{Events: events, Created: true, Score: score}, nil
}

func (s *Service) ownedEvent(ctx context.Context, matchID, eventID int64) (*store.MatchEvent, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev == nil || ev.MatchID != matchID {
		return nil, fmt.Errorf("%w: event %d in match %d", store.ErrNotFound, eventID, matchID)
	}
	return ev, nil
}

// UpdateEvent corrects an event of the match.
func (s *Service) UpdateEvent(ctx context.Context, matchID, eventID int64, patch EventPatch) (*store.MatchEvent, error) {
	ev, err := s.ownedEvent(ctx, matchID, eventID)
	if err != nil {
		return nil, err
	}
	previousPlayer := ev.PlayerID
	previousType := ev.Type

	if patch.Type != nil {
		if ev.Type, err = store.ParseEventType(*patch.Type); err != nil {
			return nil, err
		}
	}
	if patch.Minute != nil {
		ev.Minute = *patch.Minute
	}
	if patch.Half != nil {
		ev.Half = patch.Half
	}
	if err := validateTiming(ev.Minute, ev.Half); err != nil {
		return nil, err
	}
	if patch.PlayerID != nil && *patch.PlayerID != ev.PlayerID {
		mc, err := s.matchContext(ctx, matchID)
		if err != nil {
			return nil, err
		}
		if err := s.checkPlayer(ctx, mc, *patch.PlayerID); err != nil {
			return nil, err
		}
		ev.PlayerID = *patch.PlayerID
	}

	// A booking keeps its type and player; red card pairing only happens
	// when it is recorded.
	if (ev.Type == store.EventYellowCard || previousType == store.EventYellowCard) &&
		(ev.Type != previousType || ev.PlayerID != previousPlayer) {
		return nil, fmt.Errorf("%w: delete and re-record the booking instead", store.ErrInvalidInput)
	}

	if err := s.store.UpdateEvent(ctx, ev); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"match_id": matchID, "event_id": eventID}).Info("event updated")

	var extra []int64
	if previousPlayer != ev.PlayerID {
		extra = append(extra, previousPlayer)
	}
	score := s.recompute(ctx, matchID, extra...)
	s.broadcaster.Emit(broadcast.MatchRoom(matchID), broadcast.KindEventUpdated, EventPayload{Event: *ev, Score: score})
	return ev, nil
}

// DeleteEvent removes an event of the match.
func (s *Service) DeleteEvent(ctx context.Context, matchID, eventID int64) error {
	ev, err := s.ownedEvent(ctx, matchID, eventID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteEvent(ctx, eventID); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"match_id": matchID, "event_id": eventID}).Info("event deleted")

	score := s.recompute(ctx, matchID, ev.PlayerID)
	s.broadcaster.Emit(broadcast.MatchRoom(matchID), broadcast.KindEventDeleted, EventDeletedPayload{
		ID:      eventID,
		MatchID: matchID,
		Score:   score,
	})
	return nil
}

// ListEvents returns the event log of a match ordered by minute.
func (s *Service) ListEvents(ctx context.Context, matchID int64) ([]store.MatchEvent, error) {
	if _, err := s.matchContext(ctx, matchID); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []store.MatchEvent{}
	}
	return events, nil
}
