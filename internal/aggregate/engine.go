// Package aggregate derives match scores and player season statistics from
// the event log. Every value is rebuilt from source; nothing is adjusted
// incrementally.
package aggregate

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/edvart/matchday/internal/matchclock"
	"github.com/edvart/matchday/internal/store"
)

// StandingsUpdater recomputes the standings rows of a match's teams.
type StandingsUpdater interface {
	UpdateForMatch(ctx context.Context, matchID int64) error
}

// Result is the derived score of a match.
type Result struct {
	Home      int  `json:"home"`
	Away      int  `json:"away"`
	Completed bool `json:"-"`
}

type Engine struct {
	store     store.Store
	standings StandingsUpdater
	log       logrus.FieldLogger
}

// NewEngine creates an aggregation engine. standings may be nil.
func NewEngine(st store.Store, standings StandingsUpdater, log logrus.FieldLogger) *Engine {
	return &Engine{store: st, standings: standings, log: log}
}

func (e *Engine) matchContext(ctx context.Context, matchID int64) (*store.MatchContext, error) {
	mc, err := e.store.GetMatchContext(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load match %d: %w", matchID, err)
	}
	if mc == nil {
		return nil, fmt.Errorf("%w: match %d", store.ErrNotFound, matchID)
	}
	return mc, nil
}

// Score folds scoring events into a home/away score. Own goals count for
// the opponent of the scorer's team.
func Score(homeTeamID, awayTeamID int64, events []store.ScoringEvent) (home, away int) {
	for _, ev := range events {
		forHome := ev.TeamID == homeTeamID
		forAway := ev.TeamID == awayTeamID
		if ev.Type == store.EventOwnGoal {
			forHome, forAway = forAway, forHome
		}
		switch {
		case !ev.Type.AffectsScore():
		case forHome:
			home++
		case forAway:
			away++
		}
	}
	return home, away
}

// RecomputeScore writes the score derived from the event log onto the
// match. When the match is COMPLETED the standings of both teams follow;
// a standings failure is logged and does not fail the recompute.
func (e *Engine) RecomputeScore(ctx context.Context, matchID int64) (Result, error) {
	mc, err := e.matchContext(ctx, matchID)
	if err != nil {
		return Result{}, err
	}
	events, err := e.store.ListScoringEvents(ctx, matchID)
	if err != nil {
		return Result{}, fmt.Errorf("list scoring events: %w", err)
	}

	var res Result
	res.Home, res.Away = Score(mc.HomeTeamID, mc.AwayTeamID, events)
	if err := e.store.SetMatchScore(ctx, matchID, res.Home, res.Away); err != nil {
		return Result{}, fmt.Errorf("save score: %w", err)
	}
	res.Completed = mc.Status == matchclock.StatusCompleted

	if res.Completed && e.standings != nil {
		if err := e.standings.UpdateForMatch(ctx, matchID); err != nil {
			e.log.WithError(err).WithField("match_id", matchID).Warn("standings update failed")
		}
	}
	return res, nil
}

// ComputePlayerStat folds a player's season history into an aggregate.
// A game is played when the player was in the lineup or has an event.
func ComputePlayerStat(playerID, seasonID int64, h *store.PlayerSeasonHistory) store.PlayerSeasonStat {
	st := store.PlayerSeasonStat{PlayerID: playerID, SeasonID: seasonID}
	games := make(map[int64]struct{})
	for _, id := range h.LineupMatchIDs {
		games[id] = struct{}{}
	}
	for _, ev := range h.Events {
		games[ev.MatchID] = struct{}{}
		switch ev.Type {
		case store.EventGoal, store.EventPenaltyGoal:
			st.Goals++
		case store.EventAssist:
			st.Assists++
		case store.EventYellowCard:
			st.YellowCards++
		case store.EventRedCard:
			st.RedCards++
		}
	}
	st.GamesPlayed = len(games)
	return st
}

// RecomputePlayer rebuilds one player's season aggregate.
func (e *Engine) RecomputePlayer(ctx context.Context, playerID, seasonID int64) (*store.PlayerSeasonStat, error) {
	h, err := e.store.GetPlayerSeasonHistory(ctx, playerID, seasonID)
	if err != nil {
		return nil, fmt.Errorf("load history of player %d: %w", playerID, err)
	}
	st := ComputePlayerStat(playerID, seasonID, h)
	if err := e.store.UpsertPlayerSeasonStat(ctx, &st); err != nil {
		return nil, fmt.Errorf("save stats of player %d: %w", playerID, err)
	}
	return &st, nil
}

// RecomputePlayerStats rebuilds the season aggregates of everyone with an
// event or lineup spot in the match, plus extraPlayerIDs (e.g. the player
// an event was moved away from).
func (e *Engine) RecomputePlayerStats(ctx context.Context, matchID int64, extraPlayerIDs ...int64) error {
	mc, err := e.matchContext(ctx, matchID)
	if err != nil {
		return err
	}
	ids, err := e.store.ListMatchPlayerIDs(ctx, matchID)
	if err != nil {
		return fmt.Errorf("list match players: %w", err)
	}
	return e.RecomputeSeasonPlayers(ctx, mc.SeasonID, append(ids, extraPlayerIDs...))
}

// RecomputeSeasonPlayers rebuilds the given players' aggregates for a
// season. It is used after deletions, when the match itself is gone.
func (e *Engine) RecomputeSeasonPlayers(ctx context.Context, seasonID int64, playerIDs []int64) error {
	seen := make(map[int64]struct{}, len(playerIDs))
	var errs []error
	for _, id := range playerIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, err := e.RecomputePlayer(ctx, id, seasonID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recompute refreshes the score (and standings, if completed) and the
// player aggregates of a match.
func (e *Engine) Recompute(ctx context.Context, matchID int64, extraPlayerIDs ...int64) (Result, error) {
	res, err := e.RecomputeScore(ctx, matchID)
	if err != nil {
		return Result{}, err
	}
	if err := e.RecomputePlayerStats(ctx, matchID, extraPlayerIDs...); err != nil {
		return res, err
	}
	return res, nil
}
