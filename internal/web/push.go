package web

import (
	"net/http"
	"strings"

	"github.com/edvart/matchday/internal/store"
	"github.com/edvart/matchday/internal/web/respond"
)

type PushSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (s *Server) pushEnabled(w http.ResponseWriter) bool {
	if s.push == nil || !s.push.Enabled() {
		respond.Error(w, http.StatusServiceUnavailable, "PUSH_DISABLED", "push notifications not configured")
		return false
	}
	return true
}

// handleSubscribePush follows a match with a browser push subscription.
func (s *Server) handleSubscribePush(w http.ResponseWriter, r *http.Request) {
	if !s.pushEnabled(w) {
		return
	}
	matchID, ok := idParam(w, r, "matchID")
	if !ok {
		return
	}
	var req PushSubscriptionRequest
	if !decode(w, r, &req) {
		return
	}
	if !strings.HasPrefix(req.Endpoint, "https://") || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		respond.Error(w, http.StatusBadRequest, "INVALID_INPUT", "endpoint and keys are required")
		return
	}
	if _, err := s.live.GetMatch(r.Context(), matchID); err != nil {
		respond.StoreError(w, err)
		return
	}

	sub := &store.PushSubscription{
		MatchID:  matchID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := s.store.SavePushSubscription(r.Context(), sub); err != nil {
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

// handleUnsubscribePush removes a push subscription by endpoint.
func (s *Server) handleUnsubscribePush(w http.ResponseWriter, r *http.Request) {
	if _, ok := idParam(w, r, "matchID"); !ok {
		return
	}
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Endpoint == "" {
		respond.Error(w, http.StatusBadRequest, "INVALID_INPUT", "endpoint is required")
		return
	}
	if err := s.store.DeletePushSubscription(r.Context(), req.Endpoint); err != nil {
		respond.StoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetVAPIDPublicKey returns the VAPID public key for the browser.
func (s *Server) handleGetVAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	if !s.pushEnabled(w) {
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"publicKey": s.push.GetPublicKey()})
}
