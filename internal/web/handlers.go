package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvart/matchday/internal/live"
	"github.com/edvart/matchday/internal/store"
	"github.com/edvart/matchday/internal/web/respond"
)

// idParam reads a positive integer URL parameter. On failure it writes a 400
// and returns false.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(w, http.StatusBadRequest, "INVALID_INPUT", fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return id, true
}

// decode reads a JSON request body. On failure it writes a 400 and returns false.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respond.Error(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.log.WithError(err).Error("health check failed")
		respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Matches

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	fixtureID, ok := idParam(w, r, "fixtureID")
	if !ok {
		return
	}
	match, err := s.live.CreateMatch(r.Context(), fixtureID)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, match)
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	matchID, ok := idParam(w, r, "matchID")
	if !ok {
		return
	}
	match, err := s.live.GetMatch(r.Context(), matchID)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, match)
}

func (s *Server) handleDeleteMatch(w http.ResponseWriter, r *http.Request) {
	matchID, ok := idParam(w, r, "matchID")
	if !ok {
		return
	}
	if err := s.live.DeleteMatch(r.Context(), matchID); err != nil {
		respond.StoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetLineup(w http.ResponseWriter, r *http.Request) {
	matchID, ok := idParam(w, r, "matchID")
	if !ok {
		return
	}
	if _, err := s.live.GetMatch(r.Context(), matchID); err != nil {
		respond.StoreError(w, err)
		return
	}
	entries, err := s.store.ListLineup(r.Context(), matchID)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	if entries == nil {
		entries = []store.LineupEntry{}
	}
	respond.JSON(w, http.StatusOK, entries)
}

func (s *Server) handleReplaceLineup(w http.ResponseWriter, r *http.Request) {
	matchID, ok := idParam(w, r, "matchID")
	if !ok {
		return
	}
	var entries []store.LineupEntry
	if !decode(w, r, &entries) {
		return
	}
	saved, err := s.live.ReplaceLineup(r.Context(), matchID, entries)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, saved)
}

// Events

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	matchID, ok := idParam(w, r, "matchID")
	if !ok {
		return
	}
	events, err := s.live.ListEvents(r.Context(), matchID)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, events)
}

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	matchID, ok := idParam(w, r, "matchID")
	if !ok {
		return
	}
	var in live.EventInput
	if !decode(w, r, &in) {
		return
	}
	res, err := s.live.RecordEvent(r.Context(), matchID, in)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	respond.JSON(w, status, res)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	matchID, ok := idParam(w, r, "matchID")
	if !ok {
		return
	}
	eventID, ok := idParam(w, r, "eventID")
	if !ok {
		return
	}
	var patch live.EventPatch
	if !decode(w, r, &patch) {
		return
	}
	event, err := s.live.UpdateEvent(r.Context(), matchID, eventID, patch)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, event)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	matchID, ok := idParam(w, r, "matchID")
	if !ok {
		return
	}
	eventID, ok := idParam(w, r, "eventID")
	if !ok {
		return
	}
	if err := s.live.DeleteEvent(r.Context(), matchID, eventID); err != nil {
		respond.StoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clock and counters

func (s *Server) handleClockAction(w http.ResponseWriter, r *http.Request) {
	matchID, ok := idParam(w, r, "matchID")
	if !ok {
		return
	}
	var req struct {
		Action string `json:"action"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.live.ApplyClockAction(r.Context(), matchID, req.Action)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (s *Server) handleGetCounters(w http.ResponseWriter, r *http.Request) {
	matchID, ok := idParam(w, r, "matchID")
	if !ok {
		return
	}
	counters, err := s.live.GetCounters(r.Context(), matchID)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, counters)
}

func (s *Server) handleCounterDelta(w http.ResponseWriter, r *http.Request) {
	matchID, ok := idParam(w, r, "matchID")
	if !ok {
		return
	}
	var delta store.CounterDelta
	if !decode(w, r, &delta) {
		return
	}
	counters, err := s.live.ApplyCounterDelta(r.Context(), matchID, delta)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, counters)
}

// Derived views

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	leagueID, ok := idParam(w, r, "leagueID")
	if !ok {
		return
	}
	seasonID, ok := idParam(w, r, "seasonID")
	if !ok {
		return
	}
	rows, err := s.standings.Table(r.Context(), leagueID, seasonID)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, rows)
}

func (s *Server) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	playerID, ok := idParam(w, r, "playerID")
	if !ok {
		return
	}
	seasonID, ok := idParam(w, r, "seasonID")
	if !ok {
		return
	}
	stat, err := s.live.PlayerSeasonStats(r.Context(), playerID, seasonID)
	if err != nil {
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, stat)
}
