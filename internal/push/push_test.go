package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/edvart/matchday/internal/aggregate"
	"github.com/edvart/matchday/internal/broadcast"
	"github.com/edvart/matchday/internal/live"
	"github.com/edvart/matchday/internal/matchclock"
	"github.com/edvart/matchday/internal/store"
)

type memStore struct {
	mu   sync.Mutex
	subs []store.PushSubscription
}

func (m *memStore) ListPushSubscriptions(_ context.Context, matchID int64) ([]store.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.PushSubscription
	for _, s := range m.subs {
		if s.MatchID == matchID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) DeletePushSubscription(_ context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.subs[:0]
	for _, s := range m.subs {
		if s.Endpoint != endpoint {
			kept = append(kept, s)
		}
	}
	m.subs = kept
	return nil
}

func browserKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		t.Fatal(err)
	}
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(secret)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestSendToMatchRemovesGoneSubscriptions(t *testing.T) {
	var (
		mu   sync.Mutex
		hits = map[string]int{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	priv, pub, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatal(err)
	}
	p256dh, auth := browserKeys(t)
	st := &memStore{subs: []store.PushSubscription{
		{MatchID: 1, Endpoint: srv.URL + "/ok", P256dh: p256dh, Auth: auth},
		{MatchID: 1, Endpoint: srv.URL + "/gone", P256dh: p256dh, Auth: auth},
		{MatchID: 2, Endpoint: srv.URL + "/other", P256dh: p256dh, Auth: auth},
	}}
	svc := NewService(st, Config{VAPIDPublicKey: pub, VAPIDPrivateKey: priv, VAPIDSubject: "mailto:test@example.com"}, quietLogger())
	if !svc.Enabled() {
		t.Fatal("service with keys should be enabled")
	}

	if err := svc.SendToMatch(context.Background(), 1, NotificationPayload{Title: "Goal!"}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if hits["/ok"] != 1 || hits["/gone"] != 1 || hits["/other"] != 0 {
		t.Fatalf("hits %v", hits)
	}
	remaining, _ := st.ListPushSubscriptions(context.Background(), 1)
	if len(remaining) != 1 || remaining[0].Endpoint != srv.URL+"/ok" {
		t.Fatalf("remaining subscriptions %+v", remaining)
	}
}

func TestComposeGoalAndFullTime(t *testing.T) {
	half := 2
	goal := broadcast.Message{
		Room: broadcast.MatchRoom(5),
		Kind: broadcast.KindEventCreated,
		Payload: live.EventPayload{
			Event: store.MatchEvent{ID: 9, MatchID: 5, Type: store.EventPenaltyGoal, Minute: 92, Half: &half},
			Score: &aggregate.Result{Home: 1, Away: 0},
		},
	}
	p, ok := Compose(goal)
	if !ok || p.Title != "Goal!" || p.Body != "90+2  1-0" {
		t.Fatalf("goal notification %+v %v", p, ok)
	}

	shot := goal
	shot.Payload = live.EventPayload{Event: store.MatchEvent{Type: store.EventShot}}
	if _, ok := Compose(shot); ok {
		t.Fatal("shots should not notify")
	}

	ft := broadcast.Message{
		Room:    broadcast.MatchRoom(5),
		Kind:    broadcast.KindClockUpdated,
		Payload: live.ClockPayload{ID: 5, Status: matchclock.StatusCompleted, Phase: matchclock.PhaseFullTime},
	}
	if p, ok := Compose(ft); !ok || p.Title != "Full time" {
		t.Fatalf("full-time notification %+v %v", p, ok)
	}

	ht := ft
	ht.Payload = live.ClockPayload{ID: 5, Phase: matchclock.PhaseHalfTime}
	if _, ok := Compose(ht); ok {
		t.Fatal("half time should not notify")
	}
}

func TestDisabledWithoutKeys(t *testing.T) {
	if NewService(&memStore{}, Config{}, quietLogger()).Enabled() {
		t.Fatal("service without keys should be disabled")
	}
}
