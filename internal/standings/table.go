package standings

import (
	"sort"

	"github.com/edvart/matchday/internal/store"
)

const (
	pointsWin  = 3
	pointsDraw = 1
)

// TableRow is a standings row with its 1-based league position.
type TableRow struct {
	Position int `json:"position"`
	store.StandingsRow
}

// ComputeRow folds a team's completed fixtures into a standings row.
// Fixtures missing either score are skipped.
func ComputeRow(leagueID, seasonID, teamID int64, results []store.FixtureResult) store.StandingsRow {
	row := store.StandingsRow{LeagueID: leagueID, SeasonID: seasonID, TeamID: teamID}
	for _, r := range results {
		if r.HomeScore == nil || r.AwayScore == nil {
			continue
		}
		var gf, ga int
		switch teamID {
		case r.HomeTeamID:
			gf, ga = *r.HomeScore, *r.AwayScore
		case r.AwayTeamID:
			gf, ga = *r.AwayScore, *r.HomeScore
		default:
			continue
		}

		row.Played++
		row.GoalsFor += gf
		row.GoalsAgainst += ga
		switch {
		case gf > ga:
			row.Wins++
		case gf == ga:
			row.Draws++
		default:
			row.Losses++
		}
	}
	row.GoalDiff = row.GoalsFor - row.GoalsAgainst
	row.Points = pointsWin*row.Wins + pointsDraw*row.Draws
	return row
}

// sameCounts compares the derived fields of two rows, ignoring names and
// timestamps.
func sameCounts(a, b store.StandingsRow) bool {
	return a.Played == b.Played &&
		a.Wins == b.Wins &&
		a.Draws == b.Draws &&
		a.Losses == b.Losses &&
		a.GoalsFor == b.GoalsFor &&
		a.GoalsAgainst == b.GoalsAgainst &&
		a.GoalDiff == b.GoalDiff &&
		a.Points == b.Points
}

// rank orders rows by points, goal difference and goals scored, falling
// back to the team name, and assigns positions.
func rank(rows []store.StandingsRow) []TableRow {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.GoalDiff != b.GoalDiff {
			return a.GoalDiff > b.GoalDiff
		}
		if a.GoalsFor != b.GoalsFor {
			return a.GoalsFor > b.GoalsFor
		}
		return a.TeamName < b.TeamName
	})

	table := make([]TableRow, len(rows))
	for i, r := range rows {
		table[i] = TableRow{Position: i + 1, StandingsRow: r}
	}
	return table
}
