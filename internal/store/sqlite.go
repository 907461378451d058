package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/edvart/matchday/internal/matchclock"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and runs migrations. The pool is
// limited to a single connection so that statements and transactions
// from concurrent requests are serialized by the store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS leagues (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS seasons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			league_id INTEGER NOT NULL REFERENCES leagues(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			UNIQUE (league_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS teams (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			league_id INTEGER NOT NULL REFERENCES leagues(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			UNIQUE (league_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS players (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fixtures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			season_id INTEGER NOT NULL REFERENCES seasons(id) ON DELETE CASCADE,
			home_team_id INTEGER NOT NULL REFERENCES teams(id),
			away_team_id INTEGER NOT NULL REFERENCES teams(id),
			kickoff_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fixtures_season ON fixtures(season_id)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fixture_id INTEGER NOT NULL UNIQUE REFERENCES fixtures(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			phase TEXT NOT NULL,
			elapsed_seconds INTEGER NOT NULL DEFAULT 0,
			clock_started_at INTEGER,
			home_score INTEGER,
			away_score INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS match_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			match_id INTEGER NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
			player_id INTEGER NOT NULL REFERENCES players(id),
			type TEXT NOT NULL,
			minute INTEGER NOT NULL CHECK (minute >= 0),
			half INTEGER CHECK (half IN (1, 2)),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_match_events_lookup ON match_events(match_id, player_id, type, minute)`,
		`CREATE TABLE IF NOT EXISTS match_counters (
			match_id INTEGER PRIMARY KEY REFERENCES matches(id) ON DELETE CASCADE,
			home_shots_on_target INTEGER NOT NULL DEFAULT 0 CHECK (home_shots_on_target >= 0),
			away_shots_on_target INTEGER NOT NULL DEFAULT 0 CHECK (away_shots_on_target >= 0),
			home_corners INTEGER NOT NULL DEFAULT 0 CHECK (home_corners >= 0),
			away_corners INTEGER NOT NULL DEFAULT 0 CHECK (away_corners >= 0),
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS lineups (
			match_id INTEGER NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
			player_id INTEGER NOT NULL REFERENCES players(id),
			team_id INTEGER NOT NULL REFERENCES teams(id),
			starter INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (match_id, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS player_season_stats (
			player_id INTEGER NOT NULL REFERENCES players(id) ON DELETE CASCADE,
			season_id INTEGER NOT NULL REFERENCES seasons(id) ON DELETE CASCADE,
			goals INTEGER NOT NULL DEFAULT 0,
			assists INTEGER NOT NULL DEFAULT 0,
			games_played INTEGER NOT NULL DEFAULT 0,
			yellow_cards INTEGER NOT NULL DEFAULT 0,
			red_cards INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (player_id, season_id)
		)`,
		`CREATE TABLE IF NOT EXISTS standings (
			league_id INTEGER NOT NULL REFERENCES leagues(id) ON DELETE CASCADE,
			season_id INTEGER NOT NULL REFERENCES seasons(id) ON DELETE CASCADE,
			team_id INTEGER NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
			played INTEGER NOT NULL,
			wins INTEGER NOT NULL,
			draws INTEGER NOT NULL,
			losses INTEGER NOT NULL,
			goals_for INTEGER NOT NULL,
			goals_against INTEGER NOT NULL,
			goal_diff INTEGER NOT NULL,
			points INTEGER NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (league_id, season_id, team_id)
		)`,
		`CREATE TABLE IF NOT EXISTS push_subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			match_id INTEGER NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
			endpoint TEXT NOT NULL UNIQUE,
			p256dh TEXT NOT NULL,
			auth TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, rolling back on any error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// insertErr maps constraint failures onto the store's sentinel errors.
func insertErr(what string, err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %s already exists", ErrConflict, what)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: %s references a missing row", ErrNotFound, what)
	default:
		return fmt.Errorf("insert %s: %w", what, err)
	}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// CreateLeague inserts a league and fills in its ID.
func (s *SQLiteStore) CreateLeague(ctx context.Context, league *League) error {
	league.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO leagues (name, created_at) VALUES (?, ?)`,
		league.Name, league.CreatedAt)
	if err != nil {
		return insertErr("league", err)
	}
	league.ID, err = res.LastInsertId()
	return err
}

// GetLeague retrieves a league by ID.
func (s *SQLiteStore) GetLeague(ctx context.Context, leagueID int64) (*League, error) {
	var l League
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM leagues WHERE id = ?`, leagueID).Scan(
		&l.ID, &l.Name, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateSeason inserts a season and fills in its ID.
func (s *SQLiteStore) CreateSeason(ctx context.Context, season *Season) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO seasons (league_id, name) VALUES (?, ?)`,
		season.LeagueID, season.Name)
	if err != nil {
		return insertErr("season", err)
	}
	season.ID, err = res.LastInsertId()
	return err
}

// GetSeason retrieves a season by ID.
func (s *SQLiteStore) GetSeason(ctx context.Context, seasonID int64) (*Season, error) {
	var season Season
	err := s.db.QueryRowContext(ctx,
		`SELECT id, league_id, name FROM seasons WHERE id = ?`, seasonID).Scan(
		&season.ID, &season.LeagueID, &season.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &season, nil
}

// CreateTeam inserts a team and fills in its ID.
func (s *SQLiteStore) CreateTeam(ctx context.Context, team *Team) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO teams (league_id, name, active) VALUES (?, ?, ?)`,
		team.LeagueID, team.Name, team.Active)
	if err != nil {
		return insertErr("team", err)
	}
	team.ID, err = res.LastInsertId()
	return err
}

// GetTeam retrieves a team by ID.
func (s *SQLiteStore) GetTeam(ctx context.Context, teamID int64) (*Team, error) {
	var t Team
	err := s.db.QueryRowContext(ctx,
		`SELECT id, league_id, name, active FROM teams WHERE id = ?`, teamID).Scan(
		&t.ID, &t.LeagueID, &t.Name, &t.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTeams returns every team of a league ordered by name.
func (s *SQLiteStore) ListTeams(ctx context.Context, leagueID int64) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, league_id, name, active FROM teams WHERE league_id = ? ORDER BY name, id`, leagueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.LeagueID, &t.Name, &t.Active); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// CreatePlayer inserts a player and fills in its ID.
func (s *SQLiteStore) CreatePlayer(ctx context.Context, player *Player) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO players (team_id, name) VALUES (?, ?)`,
		player.TeamID, player.Name)
	if err != nil {
		return insertErr("player", err)
	}
	player.ID, err = res.LastInsertId()
	return err
}

// GetPlayer retrieves a player by ID.
func (s *SQLiteStore) GetPlayer(ctx context.Context, playerID int64) (*Player, error) {
	var p Player
	err := s.db.QueryRowContext(ctx,
		`SELECT id, team_id, name FROM players WHERE id = ?`, playerID).Scan(
		&p.ID, &p.TeamID, &p.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateFixture inserts a fixture and fills in its ID.
func (s *SQLiteStore) CreateFixture(ctx context.Context, fixture *Fixture) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO fixtures (season_id, home_team_id, away_team_id, kickoff_at) VALUES (?, ?, ?, ?)`,
		fixture.SeasonID, fixture.HomeTeamID, fixture.AwayTeamID, fixture.KickoffAt)
	if err != nil {
		return insertErr("fixture", err)
	}
	fixture.ID, err = res.LastInsertId()
	return err
}

// GetFixture retrieves a fixture by ID.
func (s *SQLiteStore) GetFixture(ctx context.Context, fixtureID int64) (*Fixture, error) {
	var f Fixture
	var kickoff sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, season_id, home_team_id, away_team_id, kickoff_at FROM fixtures WHERE id = ?`, fixtureID).Scan(
		&f.ID, &f.SeasonID, &f.HomeTeamID, &f.AwayTeamID, &kickoff)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if kickoff.Valid {
		f.KickoffAt = &kickoff.Time
	}
	return &f, nil
}

// GetFixtureTeams resolves the season, league and teams of a fixture.
func (s *SQLiteStore) GetFixtureTeams(ctx context.Context, fixtureID int64) (*FixtureTeams, error) {
	var ft FixtureTeams
	err := s.db.QueryRowContext(ctx,
		`SELECT f.id, f.season_id, se.league_id, f.home_team_id, f.away_team_id
		 FROM fixtures f
		 JOIN seasons se ON se.id = f.season_id
		 WHERE f.id = ?`, fixtureID).Scan(
		&ft.FixtureID, &ft.SeasonID, &ft.LeagueID, &ft.HomeTeamID, &ft.AwayTeamID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ft, nil
}

// DeleteFixture removes a fixture together with its match and events.
func (s *SQLiteStore) DeleteFixture(ctx context.Context, fixtureID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM fixtures WHERE id = ?`, fixtureID)
	if err != nil {
		return err
	}
	return requireAffected(res, "fixture")
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return nil
}

const matchColumns = `id, fixture_id, status, phase, elapsed_seconds, clock_started_at, home_score, away_score, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*Match, error) {
	var (
		m                    Match
		status, phase        string
		startedAt            sql.NullInt64
		homeScore, awayScore sql.NullInt64
	)
	if err := row.Scan(&m.ID, &m.FixtureID, &status, &phase, &m.Clock.ElapsedSeconds,
		&startedAt, &homeScore, &awayScore, &m.CreatedAt); err != nil {
		return nil, err
	}

	var err error
	if m.Clock.Status, err = matchclock.ParseStatus(status); err != nil {
		return nil, err
	}
	if m.Clock.Phase, err = matchclock.ParsePhase(phase); err != nil {
		return nil, err
	}
	if startedAt.Valid {
		t := time.UnixMilli(startedAt.Int64).UTC()
		m.Clock.ClockStartedAt = &t
	}
	m.HomeScore = intPtr(homeScore)
	m.AwayScore = intPtr(awayScore)
	return &m, nil
}

func clockStartedAtMillis(st matchclock.State) sql.NullInt64 {
	if st.ClockStartedAt == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: st.ClockStartedAt.UnixMilli(), Valid: true}
}

// CreateMatch inserts the match record of a fixture.
func (s *SQLiteStore) CreateMatch(ctx context.Context, match *Match) error {
	match.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO matches (fixture_id, status, phase, elapsed_seconds, clock_started_at, home_score, away_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		match.FixtureID, string(match.Clock.Status), string(match.Clock.Phase), match.Clock.ElapsedSeconds,
		clockStartedAtMillis(match.Clock), nullInt(match.HomeScore), nullInt(match.AwayScore), match.CreatedAt)
	if err != nil {
		return insertErr("match", err)
	}
	match.ID, err = res.LastInsertId()
	return err
}

// GetMatch retrieves a match by ID.
func (s *SQLiteStore) GetMatch(ctx context.Context, matchID int64) (*Match, error) {
	m, err := scanMatch(s.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = ?`, matchID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// GetMatchByFixture retrieves the match attached to a fixture, if any.
func (s *SQLiteStore) GetMatchByFixture(ctx context.Context, fixtureID int64) (*Match, error) {
	m, err := scanMatch(s.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE fixture_id = ?`, fixtureID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// GetMatchContext resolves a match's fixture, season, league and status.
func (s *SQLiteStore) GetMatchContext(ctx context.Context, matchID int64) (*MatchContext, error) {
	var (
		mc     MatchContext
		status string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT m.id, m.status, f.id, f.season_id, se.league_id, f.home_team_id, f.away_team_id
		 FROM matches m
		 JOIN fixtures f ON f.id = m.fixture_id
		 JOIN seasons se ON se.id = f.season_id
		 WHERE m.id = ?`, matchID).Scan(
		&mc.MatchID, &status, &mc.FixtureID, &mc.SeasonID, &mc.LeagueID, &mc.HomeTeamID, &mc.AwayTeamID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if mc.Status, err = matchclock.ParseStatus(status); err != nil {
		return nil, err
	}
	return &mc, nil
}

// SetMatchScore writes the derived score onto the match.
func (s *SQLiteStore) SetMatchScore(ctx context.Context, matchID int64, home, away int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE matches SET home_score = ?, away_score = ? WHERE id = ?`, home, away, matchID)
	if err != nil {
		return err
	}
	return requireAffected(res, "match")
}

// UpdateMatchClock reads the clock, applies fn and writes the result back
// in one transaction.
func (s *SQLiteStore) UpdateMatchClock(ctx context.Context, matchID int64, fn ClockFunc) (*ClockUpdate, error) {
	var update *ClockUpdate
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := scanMatch(tx.QueryRowContext(ctx,
			`SELECT `+matchColumns+` FROM matches WHERE id = ?`, matchID))
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: match %d", ErrNotFound, matchID)
		}
		if err != nil {
			return err
		}

		next, applied, err := fn(m.Clock)
		if err != nil {
			return err
		}
		update = &ClockUpdate{Before: m.Clock, After: next, Applied: applied}
		if !applied {
			update.After = m.Clock
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE matches SET status = ?, phase = ?, elapsed_seconds = ?, clock_started_at = ? WHERE id = ?`,
			string(next.Status), string(next.Phase), next.ElapsedSeconds, clockStartedAtMillis(next), matchID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return update, nil
}

// DeleteMatch removes a match; events, counters and lineups cascade.
func (s *SQLiteStore) DeleteMatch(ctx context.Context, matchID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE id = ?`, matchID)
	if err != nil {
		return err
	}
	return requireAffected(res, "match")
}

// ReplaceLineup swaps the whole lineup of a match atomically.
func (s *SQLiteStore) ReplaceLineup(ctx context.Context, matchID int64, entries []LineupEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM lineups WHERE match_id = ?`, matchID); err != nil {
			return err
		}
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO lineups (match_id, player_id, team_id, starter) VALUES (?, ?, ?, ?)`,
				matchID, e.PlayerID, e.TeamID, e.Starter); err != nil {
				return insertErr("lineup entry", err)
			}
		}
		return nil
	})
}

// ListLineup returns the lineup of a match.
func (s *SQLiteStore) ListLineup(ctx context.Context, matchID int64) ([]LineupEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT match_id, player_id, team_id, starter FROM lineups WHERE match_id = ? ORDER BY team_id, starter DESC, player_id`,
		matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LineupEntry
	for rows.Next() {
		var e LineupEntry
		if err := rows.Scan(&e.MatchID, &e.PlayerID, &e.TeamID, &e.Starter); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListMatchPlayerIDs returns every player with an event or a lineup spot
// in the match.
func (s *SQLiteStore) ListMatchPlayerIDs(ctx context.Context, matchID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT player_id FROM match_events WHERE match_id = ?
		 UNION
		 SELECT player_id FROM lineups WHERE match_id = ?
		 ORDER BY 1`, matchID, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
