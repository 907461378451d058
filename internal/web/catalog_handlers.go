package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/edvart/matchday/internal/store"
	"github.com/edvart/matchday/internal/web/respond"
)

type nameRequest struct {
	Name string `json:"name"`
}

func (req nameRequest) valid(w http.ResponseWriter) (string, bool) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respond.Error(w, http.StatusBadRequest, "INVALID_INPUT", "name is required")
		return "", false
	}
	return name, true
}

func (s *Server) handleCreateLeague(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	name, ok := req.valid(w)
	if !ok {
		return
	}
	league := &store.League{Name: name}
	if err := s.store.CreateLeague(r.Context(), league); err != nil {
		respond.StoreError(w, err)
		return
	}
	s.log.WithField("league_id", league.ID).Info("league created")
	respond.JSON(w, http.StatusCreated, league)
}

func (s *Server) handleGetLeague(w http.ResponseWriter, r *http.Request) {
	leagueID, ok := idParam(w, r, "leagueID")
	if !ok {
		return
	}
	league, err := s.store.GetLeague(r.Context(), leagueID)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	if league == nil {
		respond.Error(w, http.StatusNotFound, "NOT_FOUND", "league not found")
		return
	}
	respond.JSON(w, http.StatusOK, league)
}

func (s *Server) handleCreateSeason(w http.ResponseWriter, r *http.Request) {
	leagueID, ok := idParam(w, r, "leagueID")
	if !ok {
		return
	}
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	name, ok := req.valid(w)
	if !ok {
		return
	}
	season := &store.Season{LeagueID: leagueID, Name: name}
	if err := s.store.CreateSeason(r.Context(), season); err != nil {
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, season)
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	leagueID, ok := idParam(w, r, "leagueID")
	if !ok {
		return
	}
	var req struct {
		nameRequest
		Active *bool `json:"active"`
	}
	if !decode(w, r, &req) {
		return
	}
	name, ok := req.valid(w)
	if !ok {
		return
	}
	team := &store.Team{LeagueID: leagueID, Name: name, Active: true}
	if req.Active != nil {
		team.Active = *req.Active
	}
	if err := s.store.CreateTeam(r.Context(), team); err != nil {
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, team)
}

func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	leagueID, ok := idParam(w, r, "leagueID")
	if !ok {
		return
	}
	teams, err := s.store.ListTeams(r.Context(), leagueID)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	if teams == nil {
		teams = []store.Team{}
	}
	respond.JSON(w, http.StatusOK, teams)
}

func (s *Server) handleCreatePlayer(w http.ResponseWriter, r *http.Request) {
	teamID, ok := idParam(w, r, "teamID")
	if !ok {
		return
	}
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	name, ok := req.valid(w)
	if !ok {
		return
	}
	player := &store.Player{TeamID: teamID, Name: name}
	if err := s.store.CreatePlayer(r.Context(), player); err != nil {
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, player)
}

func (s *Server) handleCreateFixture(w http.ResponseWriter, r *http.Request) {
	seasonID, ok := idParam(w, r, "seasonID")
	if !ok {
		return
	}
	var req struct {
		HomeTeamID int64      `json:"homeTeamId"`
		AwayTeamID int64      `json:"awayTeamId"`
		KickoffAt  *time.Time `json:"kickoffAt"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.HomeTeamID == req.AwayTeamID {
		respond.Error(w, http.StatusBadRequest, "INVALID_INPUT", "home and away team must differ")
		return
	}

	ctx := r.Context()
	season, err := s.store.GetSeason(ctx, seasonID)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	if season == nil {
		respond.Error(w, http.StatusNotFound, "NOT_FOUND", "season not found")
		return
	}
	for _, teamID := range []int64{req.HomeTeamID, req.AwayTeamID} {
		team, err := s.store.GetTeam(ctx, teamID)
		if err != nil {
			respond.StoreError(w, err)
			return
		}
		if team == nil || team.LeagueID != season.LeagueID {
			respond.Error(w, http.StatusBadRequest, "INVALID_INPUT", "teams must belong to the season's league")
			return
		}
	}

	fixture := &store.Fixture{
		SeasonID:   seasonID,
		HomeTeamID: req.HomeTeamID,
		AwayTeamID: req.AwayTeamID,
		KickoffAt:  req.KickoffAt,
	}
	if err := s.store.CreateFixture(ctx, fixture); err != nil {
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, fixture)
}

func (s *Server) handleGetFixture(w http.ResponseWriter, r *http.Request) {
	fixtureID, ok := idParam(w, r, "fixtureID")
	if !ok {
		return
	}
	fixture, err := s.store.GetFixture(r.Context(), fixtureID)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	if fixture == nil {
		respond.Error(w, http.StatusNotFound, "NOT_FOUND", "fixture not found")
		return
	}
	respond.JSON(w, http.StatusOK, fixture)
}

func (s *Server) handleDeleteFixture(w http.ResponseWriter, r *http.Request) {
	fixtureID, ok := idParam(w, r, "fixtureID")
	if !ok {
		return
	}
	if err := s.live.DeleteFixture(r.Context(), fixtureID); err != nil {
		respond.StoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
