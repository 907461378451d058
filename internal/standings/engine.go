package standings

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/edvart/matchday/internal/broadcast"
	"github.com/edvart/matchday/internal/store"
)

// Payload is broadcast to the league room when standings change.
type Payload struct {
	LeagueID int64                `json:"leagueId"`
	SeasonID int64                `json:"seasonId"`
	Rows     []store.StandingsRow `json:"rows"`
}

// Engine keeps stored standings rows in line with completed fixtures.
type Engine struct {
	store       store.Store
	broadcaster broadcast.Broadcaster
	log         logrus.FieldLogger
}

func NewEngine(st store.Store, b broadcast.Broadcaster, log logrus.FieldLogger) *Engine {
	return &Engine{store: st, broadcaster: b, log: log}
}

// RecomputeTeamRow rebuilds one team's row from its completed fixtures and
// writes it only when a derived field differs from the stored row.
func (e *Engine) RecomputeTeamRow(ctx context.Context, seasonID, leagueID, teamID int64) (store.StandingsRow, bool, error) {
	results, err := e.store.ListCompletedTeamFixtures(ctx, seasonID, teamID)
	if err != nil {
		return store.StandingsRow{}, false, fmt.Errorf("list fixtures of team %d: %w", teamID, err)
	}
	row := ComputeRow(leagueID, seasonID, teamID, results)

	stored, err := e.store.GetStanding(ctx, leagueID, seasonID, teamID)
	if err != nil {
		return store.StandingsRow{}, false, fmt.Errorf("load standing of team %d: %w", teamID, err)
	}
	if stored != nil && sameCounts(*stored, row) {
		return *stored, false, nil
	}

	if err := e.store.UpsertStanding(ctx, &row); err != nil {
		return store.StandingsRow{}, false, fmt.Errorf("save standing of team %d: %w", teamID, err)
	}
	return row, true, nil
}

// UpdateForMatch recomputes both teams of a match.
func (e *Engine) UpdateForMatch(ctx context.Context, matchID int64) error {
	mc, err := e.store.GetMatchContext(ctx, matchID)
	if err != nil {
		return err
	}
	if mc == nil {
		return fmt.Errorf("%w: match %d", store.ErrNotFound, matchID)
	}
	_, err = e.UpdateForFixtureTeams(ctx, mc.FixtureTeams)
	return err
}

// UpdateForFixtureTeams recomputes the home and away rows in parallel and
// broadcasts a single standings-updated message when either changed. The
// identifiers may belong to a fixture that no longer exists.
func (e *Engine) UpdateForFixtureTeams(ctx context.Context, ft store.FixtureTeams) (bool, error) {
	teams := []int64{ft.HomeTeamID}
	if ft.AwayTeamID != ft.HomeTeamID {
		teams = append(teams, ft.AwayTeamID)
	}

	rows := make([]store.StandingsRow, len(teams))
	changed := make([]bool, len(teams))

	g, gctx := errgroup.WithContext(ctx)
	for i, teamID := range teams {
		g.Go(func() error {
			row, ch, err := e.RecomputeTeamRow(gctx, ft.SeasonID, ft.LeagueID, teamID)
			if err != nil {
				return err
			}
			rows[i], changed[i] = row, ch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	var updated []store.StandingsRow
	for i := range teams {
		if changed[i] {
			updated = append(updated, rows[i])
		}
	}
	if len(updated) == 0 {
		return false, nil
	}

	e.log.WithFields(logrus.Fields{
		"league_id":  ft.LeagueID,
		"season_id":  ft.SeasonID,
		"fixture_id": ft.FixtureID,
	}).Debug("standings changed")
	e.broadcaster.Emit(broadcast.LeagueRoom(ft.LeagueID), broadcast.KindStandingsUpdated, Payload{
		LeagueID: ft.LeagueID,
		SeasonID: ft.SeasonID,
		Rows:     updated,
	})
	return true, nil
}

func (e *Engine) checkSeason(ctx context.Context, leagueID, seasonID int64) error {
	season, err := e.store.GetSeason(ctx, seasonID)
	if err != nil {
		return err
	}
	if season == nil || season.LeagueID != leagueID {
		return fmt.Errorf("%w: season %d of league %d", store.ErrNotFound, seasonID, leagueID)
	}
	return nil
}

// Table returns the ranked standings of a league season. When nothing has
// been stored yet the table is computed from completed fixtures. Either
// way every active team appears, with a zero row if it has no result.
func (e *Engine) Table(ctx context.Context, leagueID, seasonID int64) ([]TableRow, error) {
	if err := e.checkSeason(ctx, leagueID, seasonID); err != nil {
		return nil, err
	}

	rows, err := e.store.ListStandings(ctx, leagueID, seasonID)
	if err != nil {
		return nil, fmt.Errorf("list standings: %w", err)
	}
	if len(rows) > 0 {
		rows, err = e.withActiveTeams(ctx, leagueID, seasonID, rows)
		if err != nil {
			return nil, err
		}
		return rank(rows), nil
	}

	rows, err = e.computeFromFixtures(ctx, leagueID, seasonID)
	if err != nil {
		return nil, err
	}
	return rank(rows), nil
}

// withActiveTeams adds a zero row for every active team missing from rows.
func (e *Engine) withActiveTeams(ctx context.Context, leagueID, seasonID int64, rows []store.StandingsRow) ([]store.StandingsRow, error) {
	teams, err := e.store.ListTeams(ctx, leagueID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	stored := make(map[int64]bool, len(rows))
	for _, r := range rows {
		stored[r.TeamID] = true
	}
	for _, t := range teams {
		if !t.Active || stored[t.ID] {
			continue
		}
		rows = append(rows, store.StandingsRow{
			LeagueID: leagueID,
			SeasonID: seasonID,
			TeamID:   t.ID,
			TeamName: t.Name,
		})
	}
	return rows, nil
}

func (e *Engine) computeFromFixtures(ctx context.Context, leagueID, seasonID int64) ([]store.StandingsRow, error) {
	teams, err := e.store.ListTeams(ctx, leagueID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	results, err := e.store.ListCompletedSeasonFixtures(ctx, seasonID)
	if err != nil {
		return nil, fmt.Errorf("list completed fixtures: %w", err)
	}

	involved := make(map[int64]bool)
	for _, r := range results {
		involved[r.HomeTeamID] = true
		involved[r.AwayTeamID] = true
	}

	var rows []store.StandingsRow
	for _, t := range teams {
		if !t.Active && !involved[t.ID] {
			continue
		}
		row := ComputeRow(leagueID, seasonID, t.ID, results)
		row.TeamName = t.Name
		rows = append(rows, row)
	}
	return rows, nil
}

// RebuildSeason recomputes the row of every team in the league and
// returns how many rows changed.
func (e *Engine) RebuildSeason(ctx context.Context, leagueID, seasonID int64) (int, error) {
	if err := e.checkSeason(ctx, leagueID, seasonID); err != nil {
		return 0, err
	}
	teams, err := e.store.ListTeams(ctx, leagueID)
	if err != nil {
		return 0, fmt.Errorf("list teams: %w", err)
	}

	var updated []store.StandingsRow
	for _, t := range teams {
		row, changed, err := e.RecomputeTeamRow(ctx, seasonID, leagueID, t.ID)
		if err != nil {
			return len(updated), err
		}
		if changed {
			updated = append(updated, row)
		}
	}

	if len(updated) > 0 {
		e.broadcaster.Emit(broadcast.LeagueRoom(leagueID), broadcast.KindStandingsUpdated, Payload{
			LeagueID: leagueID,
			SeasonID: seasonID,
			Rows:     updated,
		})
	}
	e.log.WithFields(logrus.Fields{
		"league_id": leagueID,
		"season_id": seasonID,
		"changed":   len(updated),
	}).Info("standings rebuilt")
	return len(updated), nil
}
