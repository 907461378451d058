package store

import (
	"context"
	"fmt"
	"time"

	"github.com/edvart/matchday/internal/matchclock"
)

type League struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Season struct {
	ID       int64  `json:"id"`
	LeagueID int64  `json:"leagueId"`
	Name     string `json:"name"`
}

type Team struct {
	ID       int64  `json:"id"`
	LeagueID int64  `json:"leagueId"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
}

type Player struct {
	ID     int64  `json:"id"`
	TeamID int64  `json:"teamId"`
	Name   string `json:"name"`
}

type Fixture struct {
	ID         int64      `json:"id"`
	SeasonID   int64      `json:"seasonId"`
	HomeTeamID int64      `json:"homeTeamId"`
	AwayTeamID int64      `json:"awayTeamId"`
	KickoffAt  *time.Time `json:"kickoffAt,omitempty"`
}

// Match is the reporting record of a fixture. Scores stay nil until the
// aggregation engine has written them at least once.
type Match struct {
	ID        int64            `json:"id"`
	FixtureID int64            `json:"fixtureId"`
	Clock     matchclock.State `json:"clock"`
	HomeScore *int             `json:"homeScore"`
	AwayScore *int             `json:"awayScore"`
	CreatedAt time.Time        `json:"createdAt"`
}

// FixtureTeams identifies everything standings recomputation needs about a
// fixture. It is captured before deletes because it is gone afterwards.
type FixtureTeams struct {
	FixtureID  int64 `json:"fixtureId"`
	SeasonID   int64 `json:"seasonId"`
	LeagueID   int64 `json:"leagueId"`
	HomeTeamID int64 `json:"homeTeamId"`
	AwayTeamID int64 `json:"awayTeamId"`
}

// MatchContext is a match joined with its fixture, season and league.
type MatchContext struct {
	FixtureTeams
	MatchID int64
	Status  matchclock.Status
}

type EventType string

const (
	EventGoal         EventType = "GOAL"
	EventOwnGoal      EventType = "OWN_GOAL"
	EventPenaltyGoal  EventType = "PENALTY_GOAL"
	EventAssist       EventType = "ASSIST"
	EventYellowCard   EventType = "YELLOW_CARD"
	EventRedCard      EventType = "RED_CARD"
	EventSubstitution EventType = "SUBSTITUTION"
	EventShot         EventType = "SHOT"
	EventCorner       EventType = "CORNER"
	EventFoul         EventType = "FOUL"
)

// ParseEventType validates an event type against the closed set.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(s); t {
	case EventGoal, EventOwnGoal, EventPenaltyGoal, EventAssist, EventYellowCard,
		EventRedCard, EventSubstitution, EventShot, EventCorner, EventFoul:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, s)
	}
}

// AffectsScore reports whether events of this type change the match score.
func (t EventType) AffectsScore() bool {
	return t == EventGoal || t == EventOwnGoal || t == EventPenaltyGoal
}

type MatchEvent struct {
	ID        int64     `json:"id"`
	MatchID   int64     `json:"matchId"`
	PlayerID  int64     `json:"playerId"`
	Type      EventType `json:"type"`
	Minute    int       `json:"minute"`
	Half      *int      `json:"half,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ScoringEvent is a goal-type event together with the team of its player.
type ScoringEvent struct {
	EventID  int64
	Type     EventType
	PlayerID int64
	TeamID   int64
}

type MatchCounters struct {
	MatchID           int64 `json:"matchId"`
	HomeShotsOnTarget int   `json:"homeShotsOnTarget"`
	AwayShotsOnTarget int   `json:"awayShotsOnTarget"`
	HomeCorners       int   `json:"homeCorners"`
	AwayCorners       int   `json:"awayCorners"`
}

// CounterDelta is added to the stored counters; results clamp at zero.
type CounterDelta struct {
	HomeShotsOnTarget int `json:"homeShotsOnTarget"`
	AwayShotsOnTarget int `json:"awayShotsOnTarget"`
	HomeCorners       int `json:"homeCorners"`
	AwayCorners       int `json:"awayCorners"`
}

type LineupEntry struct {
	MatchID  int64 `json:"matchId"`
	PlayerID int64 `json:"playerId"`
	TeamID   int64 `json:"teamId"`
	Starter  bool  `json:"starter"`
}

type PlayerSeasonStat struct {
	PlayerID    int64 `json:"playerId"`
	SeasonID    int64 `json:"seasonId"`
	Goals       int   `json:"goals"`
	Assists     int   `json:"assists"`
	GamesPlayed int   `json:"gamesPlayed"`
	YellowCards int   `json:"yellowCards"`
	RedCards    int   `json:"redCards"`
}

// PlayerSeasonHistory is the raw material a player's season aggregate is
// rebuilt from.
type PlayerSeasonHistory struct {
	Events         []MatchEvent
	LineupMatchIDs []int64
}

// FixtureResult is a fixture whose match is COMPLETED. Scores may still be
// nil; callers decide what to do with those.
type FixtureResult struct {
	FixtureID  int64
	HomeTeamID int64
	AwayTeamID int64
	HomeScore  *int
	AwayScore  *int
}

type StandingsRow struct {
	LeagueID     int64     `json:"leagueId"`
	SeasonID     int64     `json:"seasonId"`
	TeamID       int64     `json:"teamId"`
	TeamName     string    `json:"teamName,omitempty"`
	Played       int       `json:"played"`
	Wins         int       `json:"wins"`
	Draws        int       `json:"draws"`
	Losses       int       `json:"losses"`
	GoalsFor     int       `json:"goalsFor"`
	GoalsAgainst int       `json:"goalsAgainst"`
	GoalDiff     int       `json:"goalDiff"`
	Points       int       `json:"points"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type PushSubscription struct {
	ID        int64
	MatchID   int64
	Endpoint  string
	P256dh    string
	Auth      string
	CreatedAt time.Time
}

// ClockUpdate is the outcome of a clock read-modify-write.
type ClockUpdate struct {
	Before  matchclock.State
	After   matchclock.State
	Applied bool
}

// ClockFunc computes the next clock state from the stored one. Returning
// false leaves the row untouched.
type ClockFunc func(matchclock.State) (matchclock.State, bool, error)

type Store interface {
	CreateLeague(ctx context.Context, league *League) error
	GetLeague(ctx context.Context, leagueID int64) (*League, error)
	CreateSeason(ctx context.Context, season *Season) error
	GetSeason(ctx context.Context, seasonID int64) (*Season, error)
	CreateTeam(ctx context.Context, team *Team) error
	GetTeam(ctx context.Context, teamID int64) (*Team, error)
	ListTeams(ctx context.Context, leagueID int64) ([]Team, error)
	CreatePlayer(ctx context.Context, player *Player) error
	GetPlayer(ctx context.Context, playerID int64) (*Player, error)

	CreateFixture(ctx context.Context, fixture *Fixture) error
	GetFixture(ctx context.Context, fixtureID int64) (*Fixture, error)
	GetFixtureTeams(ctx context.Context, fixtureID int64) (*FixtureTeams, error)
	DeleteFixture(ctx context.Context, fixtureID int64) error

	CreateMatch(ctx context.Context, match *Match) error
	GetMatch(ctx context.Context, matchID int64) (*Match, error)
	GetMatchByFixture(ctx context.Context, fixtureID int64) (*Match, error)
	GetMatchContext(ctx context.Context, matchID int64) (*MatchContext, error)
	SetMatchScore(ctx context.Context, matchID int64, home, away int) error
	UpdateMatchClock(ctx context.Context, matchID int64, fn ClockFunc) (*ClockUpdate, error)
	DeleteMatch(ctx context.Context, matchID int64) error

	ReplaceLineup(ctx context.Context, matchID int64, entries []LineupEntry) error
	ListLineup(ctx context.Context, matchID int64) ([]LineupEntry, error)
	ListMatchPlayerIDs(ctx context.Context, matchID int64) ([]int64, error)

	InsertEventIdempotent(ctx context.Context, event *MatchEvent) (bool, error)
	InsertYellowCard(ctx context.Context, matchID, playerID int64, minute int, half *int) ([]MatchEvent, error)
	GetEvent(ctx context.Context, eventID int64) (*MatchEvent, error)
	UpdateEvent(ctx context.Context, event *MatchEvent) error
	DeleteEvent(ctx context.Context, eventID int64) error
	ListEvents(ctx context.Context, matchID int64) ([]MatchEvent, error)
	ListScoringEvents(ctx context.Context, matchID int64) ([]ScoringEvent, error)

	GetCounters(ctx context.Context, matchID int64) (*MatchCounters, error)
	ApplyCounterDelta(ctx context.Context, matchID int64, delta CounterDelta) (*MatchCounters, error)

	GetPlayerSeasonHistory(ctx context.Context, playerID, seasonID int64) (*PlayerSeasonHistory, error)
	GetPlayerSeasonStat(ctx context.Context, playerID, seasonID int64) (*PlayerSeasonStat, error)
	UpsertPlayerSeasonStat(ctx context.Context, stat *PlayerSeasonStat) error

	ListCompletedTeamFixtures(ctx context.Context, seasonID, teamID int64) ([]FixtureResult, error)
	ListCompletedSeasonFixtures(ctx context.Context, seasonID int64) ([]FixtureResult, error)
	GetStanding(ctx context.Context, leagueID, seasonID, teamID int64) (*StandingsRow, error)
	UpsertStanding(ctx context.Context, row *StandingsRow) error
	ListStandings(ctx context.Context, leagueID, seasonID int64) ([]StandingsRow, error)

	SavePushSubscription(ctx context.Context, sub *PushSubscription) error
	ListPushSubscriptions(ctx context.Context, matchID int64) ([]PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error

	Ping(ctx context.Context) error
	Close() error
}
