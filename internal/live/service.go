// Package live applies reporter mutations to a match: it persists them,
// brings derived data up to date and then broadcasts the change.
package live

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edvart/matchday/internal/aggregate"
	"github.com/edvart/matchday/internal/broadcast"
	"github.com/edvart/matchday/internal/matchclock"
	"github.com/edvart/matchday/internal/store"
)

// Aggregator derives scores and player statistics.
type Aggregator interface {
	Recompute(ctx context.Context, matchID int64, extraPlayerIDs ...int64) (aggregate.Result, error)
	RecomputeScore(ctx context.Context, matchID int64) (aggregate.Result, error)
	RecomputeSeasonPlayers(ctx context.Context, seasonID int64, playerIDs []int64) error
}

// StandingsUpdater keeps standings rows current.
type StandingsUpdater interface {
	UpdateForMatch(ctx context.Context, matchID int64) error
	UpdateForFixtureTeams(ctx context.Context, ft store.FixtureTeams) (bool, error)
}

// Service is the single entry point for match mutations. Once the primary
// write has committed, failures of derived work are logged and swallowed.
type Service struct {
	store       store.Store
	aggregator  Aggregator
	standings   StandingsUpdater
	broadcaster broadcast.Broadcaster
	now         func() time.Time
	log         logrus.FieldLogger
}

func NewService(st store.Store, agg Aggregator, standings StandingsUpdater, b broadcast.Broadcaster, log logrus.FieldLogger) *Service {
	return &Service{
		store:       st,
		aggregator:  agg,
		standings:   standings,
		broadcaster: b,
		now:         time.Now,
		log:         log,
	}
}

func (s *Service) matchContext(ctx context.Context, matchID int64) (*store.MatchContext, error) {
	mc, err := s.store.GetMatchContext(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if mc == nil {
		return nil, fmt.Errorf("%w: match %d", store.ErrNotFound, matchID)
	}
	return mc, nil
}

// GetMatch returns a match or ErrNotFound.
func (s *Service) GetMatch(ctx context.Context, matchID int64) (*store.Match, error) {
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: match %d", store.ErrNotFound, matchID)
	}
	return m, nil
}

// CreateMatch opens the reporting record of a fixture with the clock at
// UPCOMING/PRE. A fixture has at most one match.
func (s *Service) CreateMatch(ctx context.Context, fixtureID int64) (*store.Match, error) {
	f, err := s.store.GetFixture(ctx, fixtureID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%w: fixture %d", store.ErrNotFound, fixtureID)
	}
	existing, err := s.store.GetMatchByFixture(ctx, fixtureID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: fixture %d already has match %d", store.ErrConflict, fixtureID, existing.ID)
	}

	m := &store.Match{FixtureID: fixtureID, Clock: matchclock.Initial()}
	if err := s.store.CreateMatch(ctx, m); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"match_id": m.ID, "fixture_id": fixtureID}).Info("match created")
	return m, nil
}

// DeleteMatch removes a match with its events. Standings and player stats
// are recomputed from identifiers captured before the delete.
func (s *Service) DeleteMatch(ctx context.Context, matchID int64) error {
	mc, err := s.matchContext(ctx, matchID)
	if err != nil {
		return err
	}
	players, err := s.store.ListMatchPlayerIDs(ctx, matchID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteMatch(ctx, matchID); err != nil {
		return err
	}
	s.log.WithField("match_id", matchID).Info("match deleted")
	s.afterRemoval(ctx, mc, players)
	return nil
}

// DeleteFixture removes a fixture and, through cascades, its match.
func (s *Service) DeleteFixture(ctx context.Context, fixtureID int64) error {
	ft, err := s.store.GetFixtureTeams(ctx, fixtureID)
	if err != nil {
		return err
	}
	if ft == nil {
		return fmt.Errorf("%w: fixture %d", store.ErrNotFound, fixtureID)
	}

	var (
		mc      *store.MatchContext
		players []int64
	)
	m, err := s.store.GetMatchByFixture(ctx, fixtureID)
	if err != nil {
		return err
	}
	if m != nil {
		if mc, err = s.matchContext(ctx, m.ID); err != nil {
			return err
		}
		if players, err = s.store.ListMatchPlayerIDs(ctx, m.ID); err != nil {
			return err
		}
	}

	if err := s.store.DeleteFixture(ctx, fixtureID); err != nil {
		return err
	}
	s.log.WithField("fixture_id", fixtureID).Info("fixture deleted")
	if mc != nil {
		s.afterRemoval(ctx, mc, players)
	}
	return nil
}

func (s *Service) afterRemoval(ctx context.Context, mc *store.MatchContext, players []int64) {
	log := s.log.WithFields(logrus.Fields{"match_id": mc.MatchID, "fixture_id": mc.FixtureID})

	if mc.Status == matchclock.StatusCompleted {
		if _, err := s.standings.UpdateForFixtureTeams(ctx, mc.FixtureTeams); err != nil {
			log.WithError(err).Warn("standings update after removal failed")
		}
	}
	if len(players) > 0 {
		if err := s.aggregator.RecomputeSeasonPlayers(ctx, mc.SeasonID, players); err != nil {
			log.WithError(err).Warn("player stats recompute after removal failed")
		}
	}
}

// ReplaceLineup swaps the lineup of a match. Every player must belong to
// the team given for them, and that team must play in the match.
func (s *Service) ReplaceLineup(ctx context.Context, matchID int64, entries []store.LineupEntry) ([]store.LineupEntry, error) {
	mc, err := s.matchContext(ctx, matchID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(entries))
	for i := range entries {
		e := &entries[i]
		if seen[e.PlayerID] {
			return nil, fmt.Errorf("%w: player %d listed twice", store.ErrInvalidInput, e.PlayerID)
		}
		seen[e.PlayerID] = true

		p, err := s.store.GetPlayer(ctx, e.PlayerID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, fmt.Errorf("%w: unknown player %d", store.ErrInvalidInput, e.PlayerID)
		}
		if e.TeamID == 0 {
			e.TeamID = p.TeamID
		}
		if e.TeamID != p.TeamID || (e.TeamID != mc.HomeTeamID && e.TeamID != mc.AwayTeamID) {
			return nil, fmt.Errorf("%w: player %d does not play for a team in match %d", store.ErrInvalidInput, e.PlayerID, matchID)
		}
		e.MatchID = matchID
	}

	previous, err := s.store.ListMatchPlayerIDs(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceLineup(ctx, matchID, entries); err != nil {
		return nil, err
	}
	if _, err := s.aggregator.Recompute(ctx, matchID, previous...); err != nil {
		s.log.WithError(err).WithField("match_id", matchID).Warn("recompute after lineup change failed")
	}
	return s.store.ListLineup(ctx, matchID)
}

// PlayerSeasonStats returns a player's aggregate for a season, all zero
// when nothing has been recorded.
func (s *Service) PlayerSeasonStats(ctx context.Context, playerID, seasonID int64) (*store.PlayerSeasonStat, error) {
	p, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: player %d", store.ErrNotFound, playerID)
	}
	season, err := s.store.GetSeason(ctx, seasonID)
	if err != nil {
		return nil, err
	}
	if season == nil {
		return nil, fmt.Errorf("%w: season %d", store.ErrNotFound, seasonID)
	}

	st, err := s.store.GetPlayerSeasonStat(ctx, playerID, seasonID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &store.PlayerSeasonStat{PlayerID: playerID, SeasonID: seasonID}
	}
	return st, nil
}
