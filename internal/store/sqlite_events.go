package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const eventColumns = `id, match_id, player_id, type, minute, half, created_at`

func scanEvent(row rowScanner) (*MatchEvent, error) {
	var (
		e    MatchEvent
		typ  string
		half sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.MatchID, &e.PlayerID, &typ, &e.Minute, &half, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Type = EventType(typ)
	e.Half = intPtr(half)
	return &e, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, e *MatchEvent) error {
	e.CreatedAt = time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO match_events (match_id, player_id, type, minute, half, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.MatchID, e.PlayerID, string(e.Type), e.Minute, nullInt(e.Half), e.CreatedAt)
	if err != nil {
		return insertErr("event", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

// InsertEventIdempotent inserts the event unless one with the same match,
// player, type and minute already exists. In that case event is filled with
// the stored row and false is returned.
func (s *SQLiteStore) InsertEventIdempotent(ctx context.Context, event *MatchEvent) (bool, error) {
	created := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanEvent(tx.QueryRowContext(ctx,
			`SELECT `+eventColumns+` FROM match_events
			 WHERE match_id = ? AND player_id = ? AND type = ? AND minute = ?
			 ORDER BY id LIMIT 1`,
			event.MatchID, event.PlayerID, string(event.Type), event.Minute))
		if err == nil {
			*event = *existing
			return nil
		}
		if err != sql.ErrNoRows {
			return err
		}
		if err := insertEvent(ctx, tx, event); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// InsertYellowCard records a booking. A player's second yellow in the same
// match is stored together with a red card at the same minute, or not at all.
func (s *SQLiteStore) InsertYellowCard(ctx context.Context, matchID, playerID int64, minute int, half *int) ([]MatchEvent, error) {
	var created []MatchEvent
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var yellows int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM match_events WHERE match_id = ? AND player_id = ? AND type = ?`,
			matchID, playerID, string(EventYellowCard)).Scan(&yellows); err != nil {
			return err
		}

		yellow := MatchEvent{MatchID: matchID, PlayerID: playerID, Type: EventYellowCard, Minute: minute, Half: half}
		if err := insertEvent(ctx, tx, &yellow); err != nil {
			return err
		}
		created = append(created, yellow)

		if yellows >= 1 {
			red := MatchEvent{MatchID: matchID, PlayerID: playerID, Type: EventRedCard, Minute: minute, Half: half}
			if err := insertEvent(ctx, tx, &red); err != nil {
				return fmt.Errorf("pair red card: %w", err)
			}
			created = append(created, red)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetEvent retrieves an event by ID.
func (s *SQLiteStore) GetEvent(ctx context.Context, eventID int64) (*MatchEvent, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM match_events WHERE id = ?`, eventID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// UpdateEvent overwrites the mutable fields of an event. Moving an event
// onto the match, player, type and minute of another row is a conflict,
// except for yellow cards which are not keyed that way.
func (s *SQLiteStore) UpdateEvent(ctx context.Context, event *MatchEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if event.Type != EventYellowCard {
			var clash int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM match_events
				 WHERE match_id = ? AND player_id = ? AND type = ? AND minute = ? AND id <> ?`,
				event.MatchID, event.PlayerID, string(event.Type), event.Minute, event.ID).Scan(&clash); err != nil {
				return err
			}
			if clash > 0 {
				return fmt.Errorf("%w: %s by player %d at minute %d already recorded",
					ErrConflict, event.Type, event.PlayerID, event.Minute)
			}
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE match_events SET player_id = ?, type = ?, minute = ?, half = ? WHERE id = ?`,
			event.PlayerID, string(event.Type), event.Minute, nullInt(event.Half), event.ID)
		if err != nil {
			return insertErr("event", err)
		}
		return requireAffected(res, "event")
	})
}

// DeleteEvent removes an event.
func (s *SQLiteStore) DeleteEvent(ctx context.Context, eventID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM match_events WHERE id = ?`, eventID)
	if err != nil {
		return err
	}
	return requireAffected(res, "event")
}

// ListEvents returns a match's events in reporting order.
func (s *SQLiteStore) ListEvents(ctx context.Context, matchID int64) ([]MatchEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM match_events WHERE match_id = ? ORDER BY minute, id`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []MatchEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// ListScoringEvents returns the goal-type events of a match with the team
// each scorer belongs to.
func (s *SQLiteStore) ListScoringEvents(ctx context.Context, matchID int64) ([]ScoringEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.type, e.player_id, p.team_id
		 FROM match_events e
		 JOIN players p ON p.id = e.player_id
		 WHERE e.match_id = ? AND e.type IN (?, ?, ?)
		 ORDER BY e.id`,
		matchID, string(EventGoal), string(EventOwnGoal), string(EventPenaltyGoal))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ScoringEvent
	for rows.Next() {
		var (
			se  ScoringEvent
			typ string
		)
		if err := rows.Scan(&se.EventID, &typ, &se.PlayerID, &se.TeamID); err != nil {
			return nil, err
		}
		se.Type = EventType(typ)
		events = append(events, se)
	}
	return events, rows.Err()
}

// GetCounters returns the counters of a match, all zero when none were
// recorded yet. A missing match yields nil, nil.
func (s *SQLiteStore) GetCounters(ctx context.Context, matchID int64) (*MatchCounters, error) {
	var c MatchCounters
	err := s.db.QueryRowContext(ctx,
		`SELECT m.id,
		        COALESCE(c.home_shots_on_target, 0), COALESCE(c.away_shots_on_target, 0),
		        COALESCE(c.home_corners, 0), COALESCE(c.away_corners, 0)
		 FROM matches m
		 LEFT JOIN match_counters c ON c.match_id = m.id
		 WHERE m.id = ?`, matchID).Scan(
		&c.MatchID, &c.HomeShotsOnTarget, &c.AwayShotsOnTarget, &c.HomeCorners, &c.AwayCorners)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyCounterDelta adds delta to the stored counters, clamping each one at
// zero, and returns the result.
func (s *SQLiteStore) ApplyCounterDelta(ctx context.Context, matchID int64, delta CounterDelta) (*MatchCounters, error) {
	var c MatchCounters
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM matches WHERE id = ?`, matchID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: match %d", ErrNotFound, matchID)
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO match_counters (match_id) VALUES (?)`, matchID); err != nil {
			return insertErr("match counters", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE match_counters SET
				home_shots_on_target = MAX(0, home_shots_on_target + ?),
				away_shots_on_target = MAX(0, away_shots_on_target + ?),
				home_corners = MAX(0, home_corners + ?),
				away_corners = MAX(0, away_corners + ?),
				updated_at = CURRENT_TIMESTAMP
			 WHERE match_id = ?`,
			delta.HomeShotsOnTarget, delta.AwayShotsOnTarget, delta.HomeCorners, delta.AwayCorners, matchID); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`SELECT match_id, home_shots_on_target, away_shots_on_target, home_corners, away_corners
			 FROM match_counters WHERE match_id = ?`, matchID).Scan(
			&c.MatchID, &c.HomeShotsOnTarget, &c.AwayShotsOnTarget, &c.HomeCorners, &c.AwayCorners)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetPlayerSeasonHistory loads every event and lineup appearance of a
// player in matches of the season.
func (s *SQLiteStore) GetPlayerSeasonHistory(ctx context.Context, playerID, seasonID int64) (*PlayerSeasonHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.match_id, e.player_id, e.type, e.minute, e.half, e.created_at
		 FROM match_events e
		 JOIN matches m ON m.id = e.match_id
		 JOIN fixtures f ON f.id = m.fixture_id
		 WHERE e.player_id = ? AND f.season_id = ?
		 ORDER BY e.match_id, e.minute, e.id`, playerID, seasonID)
	if err != nil {
		return nil, err
	}

	var h PlayerSeasonHistory
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		h.Events = append(h.Events, *e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lineupRows, err := s.db.QueryContext(ctx,
		`SELECT l.match_id
		 FROM lineups l
		 JOIN matches m ON m.id = l.match_id
		 JOIN fixtures f ON f.id = m.fixture_id
		 WHERE l.player_id = ? AND f.season_id = ?
		 ORDER BY l.match_id`, playerID, seasonID)
	if err != nil {
		return nil, err
	}
	defer lineupRows.Close()

	for lineupRows.Next() {
		var id int64
		if err := lineupRows.Scan(&id); err != nil {
			return nil, err
		}
		h.LineupMatchIDs = append(h.LineupMatchIDs, id)
	}
	return &h, lineupRows.Err()
}

// GetPlayerSeasonStat retrieves a stored season aggregate.
func (s *SQLiteStore) GetPlayerSeasonStat(ctx context.Context, playerID, seasonID int64) (*PlayerSeasonStat, error) {
	var st PlayerSeasonStat
	err := s.db.QueryRowContext(ctx,
		`SELECT player_id, season_id, goals, assists, games_played, yellow_cards, red_cards
		 FROM player_season_stats WHERE player_id = ? AND season_id = ?`, playerID, seasonID).Scan(
		&st.PlayerID, &st.SeasonID, &st.Goals, &st.Assists, &st.GamesPlayed, &st.YellowCards, &st.RedCards)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// UpsertPlayerSeasonStat replaces a player's season aggregate.
func (s *SQLiteStore) UpsertPlayerSeasonStat(ctx context.Context, stat *PlayerSeasonStat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO player_season_stats (player_id, season_id, goals, assists, games_played, yellow_cards, red_cards)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(player_id, season_id) DO UPDATE SET
			goals = excluded.goals,
			assists = excluded.assists,
			games_played = excluded.games_played,
			yellow_cards = excluded.yellow_cards,
			red_cards = excluded.red_cards`,
		stat.PlayerID, stat.SeasonID, stat.Goals, stat.Assists, stat.GamesPlayed, stat.YellowCards, stat.RedCards)
	if err != nil {
		return insertErr("player season stat", err)
	}
	return nil
}
