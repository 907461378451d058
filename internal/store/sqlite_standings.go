package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/edvart/matchday/internal/matchclock"
)

func (s *SQLiteStore) listFixtureResults(ctx context.Context, query string, args ...any) ([]FixtureResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FixtureResult
	for rows.Next() {
		var (
			r          FixtureResult
			home, away sql.NullInt64
		)
		if err := rows.Scan(&r.FixtureID, &r.HomeTeamID, &r.AwayTeamID, &home, &away); err != nil {
			return nil, err
		}
		r.HomeScore = intPtr(home)
		r.AwayScore = intPtr(away)
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListCompletedTeamFixtures returns the season's fixtures involving the team
// whose match is COMPLETED.
func (s *SQLiteStore) ListCompletedTeamFixtures(ctx context.Context, seasonID, teamID int64) ([]FixtureResult, error) {
	return s.listFixtureResults(ctx,
		`SELECT f.id, f.home_team_id, f.away_team_id, m.home_score, m.away_score
		 FROM fixtures f
		 JOIN matches m ON m.fixture_id = f.id
		 WHERE f.season_id = ? AND m.status = ? AND (f.home_team_id = ? OR f.away_team_id = ?)
		 ORDER BY f.id`,
		seasonID, string(matchclock.StatusCompleted), teamID, teamID)
}

// ListCompletedSeasonFixtures returns every fixture of the season whose
// match is COMPLETED.
func (s *SQLiteStore) ListCompletedSeasonFixtures(ctx context.Context, seasonID int64) ([]FixtureResult, error) {
	return s.listFixtureResults(ctx,
		`SELECT f.id, f.home_team_id, f.away_team_id, m.home_score, m.away_score
		 FROM fixtures f
		 JOIN matches m ON m.fixture_id = f.id
		 WHERE f.season_id = ? AND m.status = ?
		 ORDER BY f.id`,
		seasonID, string(matchclock.StatusCompleted))
}

const standingsColumns = `s.league_id, s.season_id, s.team_id, t.name, s.played, s.wins, s.draws, s.losses,
	s.goals_for, s.goals_against, s.goal_diff, s.points, s.updated_at`

func scanStanding(row rowScanner) (*StandingsRow, error) {
	var r StandingsRow
	if err := row.Scan(&r.LeagueID, &r.SeasonID, &r.TeamID, &r.TeamName, &r.Played, &r.Wins, &r.Draws,
		&r.Losses, &r.GoalsFor, &r.GoalsAgainst, &r.GoalDiff, &r.Points, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetStanding retrieves the stored row of one team.
func (s *SQLiteStore) GetStanding(ctx context.Context, leagueID, seasonID, teamID int64) (*StandingsRow, error) {
	r, err := scanStanding(s.db.QueryRowContext(ctx,
		`SELECT `+standingsColumns+`
		 FROM standings s
		 JOIN teams t ON t.id = s.team_id
		 WHERE s.league_id = ? AND s.season_id = ? AND s.team_id = ?`, leagueID, seasonID, teamID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// UpsertStanding replaces the stored row of a team.
func (s *SQLiteStore) UpsertStanding(ctx context.Context, row *StandingsRow) error {
	row.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO standings (league_id, season_id, team_id, played, wins, draws, losses,
			goals_for, goals_against, goal_diff, points, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(league_id, season_id, team_id) DO UPDATE SET
			played = excluded.played,
			wins = excluded.wins,
			draws = excluded.draws,
			losses = excluded.losses,
			goals_for = excluded.goals_for,
			goals_against = excluded.goals_against,
			goal_diff = excluded.goal_diff,
			points = excluded.points,
			updated_at = excluded.updated_at`,
		row.LeagueID, row.SeasonID, row.TeamID, row.Played, row.Wins, row.Draws, row.Losses,
		row.GoalsFor, row.GoalsAgainst, row.GoalDiff, row.Points, row.UpdatedAt)
	if err != nil {
		return insertErr("standings row", err)
	}
	return nil
}

// ListStandings returns the stored rows of a league season, unordered.
func (s *SQLiteStore) ListStandings(ctx context.Context, leagueID, seasonID int64) ([]StandingsRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+standingsColumns+`
		 FROM standings s
		 JOIN teams t ON t.id = s.team_id
		 WHERE s.league_id = ? AND s.season_id = ?`, leagueID, seasonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StandingsRow
	for rows.Next() {
		r, err := scanStanding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// SavePushSubscription stores a subscription, moving an existing endpoint
// to the given match.
func (s *SQLiteStore) SavePushSubscription(ctx context.Context, sub *PushSubscription) error {
	sub.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (match_id, endpoint, p256dh, auth, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET
			match_id = excluded.match_id,
			p256dh = excluded.p256dh,
			auth = excluded.auth`,
		sub.MatchID, sub.Endpoint, sub.P256dh, sub.Auth, sub.CreatedAt)
	if err != nil {
		return insertErr("push subscription", err)
	}
	return nil
}

// ListPushSubscriptions returns every subscription following a match.
func (s *SQLiteStore) ListPushSubscriptions(ctx context.Context, matchID int64) ([]PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, match_id, endpoint, p256dh, auth, created_at
		 FROM push_subscriptions WHERE match_id = ? ORDER BY id`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []PushSubscription
	for rows.Next() {
		var sub PushSubscription
		if err := rows.Scan(&sub.ID, &sub.MatchID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeletePushSubscription removes a subscription by endpoint. Removing an
// unknown endpoint is not an error.
func (s *SQLiteStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	return err
}
