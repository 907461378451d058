package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edvart/matchday/internal/broadcast"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type failingSink struct{}

func (failingSink) Name() string { return "failing" }
func (failingSink) Send(context.Context, Notification) error {
	return errors.New("boom")
}

func TestRelayDeliversToWebhook(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []Notification
		done = make(chan struct{}, 1)
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n Notification
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			t.Errorf("decode: %v", err)
		}
		if r.Header.Get("X-Matchday-Event") != string(broadcast.KindClockUpdated) {
			t.Errorf("missing event header")
		}
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		done <- struct{}{}
	}))
	defer srv.Close()

	hub := broadcast.NewHub(quietLogger())
	defer hub.Close()
	relay := NewRelay(quietLogger(), 8, time.Second, failingSink{}, NewWebhookSink(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := hub.Subscribe()
	go relay.Run(ctx, sub.Messages())

	hub.Emit(broadcast.MatchRoom(4), broadcast.KindClockUpdated, map[string]string{"phase": "FT"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Room != "match:4" || got[0].ID == "" {
		t.Fatalf("received %+v", got)
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSink(srv.URL).Send(context.Background(), Notification{Kind: broadcast.KindEventCreated})
	if err == nil {
		t.Fatal("expected error for 502")
	}
}

func TestRelayDropsWhenQueueFull(t *testing.T) {
	relay := NewRelay(quietLogger(), 1, time.Second, failingSink{})
	relay.enqueue(broadcast.Message{Room: broadcast.MatchRoom(1), Kind: broadcast.KindEventCreated})
	relay.enqueue(broadcast.Message{Room: broadcast.MatchRoom(1), Kind: broadcast.KindEventCreated})
	if len(relay.queue) != 1 {
		t.Fatalf("queue length %d, want 1", len(relay.queue))
	}
}

func TestRoutingKey(t *testing.T) {
	n := Notification{Room: broadcast.LeagueRoom(3), Kind: broadcast.KindStandingsUpdated}
	if got := RoutingKey(n); got != "league.3.standings-updated" {
		t.Fatalf("routing key %q", got)
	}
	if NewRelay(quietLogger(), 0, 0).Enabled() {
		t.Fatal("relay without sinks should be disabled")
	}
}
