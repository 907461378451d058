package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edvart/matchday/internal/broadcast"
	"github.com/edvart/matchday/internal/web/respond"
)

func (s *Server) handleMatchStream(w http.ResponseWriter, r *http.Request) {
	matchID, ok := idParam(w, r, "matchID")
	if !ok {
		return
	}
	if _, err := s.live.GetMatch(r.Context(), matchID); err != nil {
		respond.StoreError(w, err)
		return
	}
	s.stream(w, r, broadcast.MatchRoom(matchID))
}

func (s *Server) handleLeagueStream(w http.ResponseWriter, r *http.Request) {
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
	s.stream(w, r, broadcast.LeagueRoom(leagueID))
}

// stream writes the messages of one room as server-sent events until the
// client goes away or the hub closes.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, room broadcast.Room) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respond.Error(w, http.StatusInternalServerError, "INTERNAL", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := s.hub.Join(room)
	defer sub.Close()

	log := s.log.WithFields(logrus.Fields{"room": room, "subscriber": sub.ID})
	log.Debug("SSE client connected")
	defer log.Debug("SSE client disconnected")

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(s.cfg.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				log.WithError(err).Warn("failed to encode stream message")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Kind, data)
			flusher.Flush()
		}
	}
}
