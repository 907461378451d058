package web

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/edvart/matchday/internal/aggregate"
	"github.com/edvart/matchday/internal/auth"
	"github.com/edvart/matchday/internal/broadcast"
	"github.com/edvart/matchday/internal/live"
	"github.com/edvart/matchday/internal/standings"
	"github.com/edvart/matchday/internal/store"
)

const testToken = "reporter-secret"

type testEnv struct {
	srv *Server
	hub *broadcast.Hub
	st  *store.SQLiteStore
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	hub := broadcast.NewHub(logger)
	t.Cleanup(hub.Close)
	table := standings.NewEngine(st, hub, logger)
	agg := aggregate.NewEngine(st, table, logger)
	svc := live.NewService(st, agg, table, hub, logger)

	srv := NewServer(Deps{
		Store:     st,
		Live:      svc,
		Standings: table,
		Hub:       hub,
		Reporters: auth.NewReporterConfig([]string{testToken}),
		Logger:    logger,
	}, cfg)
	return &testEnv{srv: srv, hub: hub, st: st}
}

// do sends a request with the reporter token and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

// create posts body and decodes the created resource's id.
func (e *testEnv) create(t *testing.T, path string, body any) int64 {
	t.Helper()
	rec := e.do(t, http.MethodPost, path, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST %s: status %d: %s", path, rec.Code, rec.Body.String())
	}
	var out struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	return out.ID
}

type seeded struct {
	leagueID, seasonID int64
	home, away         int64
	homeStriker        int64
	awayStriker        int64
	matchID            int64
}

func (e *testEnv) seed(t *testing.T) seeded {
	t.Helper()
	var s seeded
	s.leagueID = e.create(t, "/api/v1/leagues", map[string]string{"name": "Sunday League"})
	s.seasonID = e.create(t, fmt.Sprintf("/api/v1/leagues/%d/seasons", s.leagueID), map[string]string{"name": "2026"})
	s.home = e.create(t, fmt.Sprintf("/api/v1/leagues/%d/teams", s.leagueID), map[string]string{"name": "Athletic"})
	s.away = e.create(t, fmt.Sprintf("/api/v1/leagues/%d/teams", s.leagueID), map[string]string{"name": "Borough"})
	s.homeStriker = e.create(t, fmt.Sprintf("/api/v1/teams/%d/players", s.home), map[string]string{"name": "Ada"})
	s.awayStriker = e.create(t, fmt.Sprintf("/api/v1/teams/%d/players", s.away), map[string]string{"name": "Bea"})
	fixtureID := e.create(t, fmt.Sprintf("/api/v1/seasons/%d/fixtures", s.seasonID), map[string]int64{
		"homeTeamId": s.home,
		"awayTeamId": s.away,
	})
	s.matchID = e.create(t, fmt.Sprintf("/api/v1/fixtures/%d/match", fixtureID), nil)
	return s
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Code
}

func TestMatchFlowUpdatesStandings(t *testing.T) {
	e := newTestEnv(t, Config{})
	s := e.seed(t)
	base := fmt.Sprintf("/api/v1/matches/%d", s.matchID)

	if rec := e.do(t, http.MethodPost, base+"/clock", map[string]string{"action": "START_FIRST_HALF"}); rec.Code != http.StatusOK {
		t.Fatalf("start: %d %s", rec.Code, rec.Body.String())
	}
	for _, ev := range []live.EventInput{
		{PlayerID: s.homeStriker, Type: "GOAL", Minute: 10},
		{PlayerID: s.awayStriker, Type: "GOAL", Minute: 30},
		{PlayerID: s.homeStriker, Type: "PENALTY_GOAL", Minute: 80},
	} {
		if rec := e.do(t, http.MethodPost, base+"/events", ev); rec.Code != http.StatusCreated {
			t.Fatalf("record %+v: %d %s", ev, rec.Code, rec.Body.String())
		}
	}
	if rec := e.do(t, http.MethodPost, base+"/clock", map[string]string{"action": "END_MATCH"}); rec.Code != http.StatusOK {
		t.Fatalf("end: %d %s", rec.Code, rec.Body.String())
	}

	rec := e.do(t, http.MethodGet, base, nil)
	var match store.Match
	if err := json.Unmarshal(rec.Body.Bytes(), &match); err != nil {
		t.Fatal(err)
	}
	if match.HomeScore == nil || *match.HomeScore != 2 || match.AwayScore == nil || *match.AwayScore != 1 {
		t.Fatalf("score %v-%v, want 2-1", match.HomeScore, match.AwayScore)
	}

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/api/v1/leagues/%d/seasons/%d/standings", s.leagueID, s.seasonID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("standings: %d %s", rec.Code, rec.Body.String())
	}
	var rows []standings.TableRow
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].TeamID != s.home || rows[0].Points != 3 || rows[0].Position != 1 {
		t.Errorf("first row %+v", rows[0])
	}
	if rows[1].TeamID != s.away || rows[1].Losses != 1 || rows[1].GoalDiff != -1 {
		t.Errorf("second row %+v", rows[1])
	}

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/api/v1/players/%d/seasons/%d/stats", s.homeStriker, s.seasonID), nil)
	var stat store.PlayerSeasonStat
	if err := json.Unmarshal(rec.Body.Bytes(), &stat); err != nil {
		t.Fatal(err)
	}
	if stat.Goals != 2 {
		t.Errorf("striker goals %d, want 2", stat.Goals)
	}
}

func TestRecordEventIsIdempotentOverHTTP(t *testing.T) {
	e := newTestEnv(t, Config{})
	s := e.seed(t)
	path := fmt.Sprintf("/api/v1/matches/%d/events", s.matchID)
	ev := live.EventInput{PlayerID: s.homeStriker, Type: "SHOT", Minute: 12}

	if rec := e.do(t, http.MethodPost, path, ev); rec.Code != http.StatusCreated {
		t.Fatalf("first: %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, path, ev); rec.Code != http.StatusOK {
		t.Fatalf("retry: %d, want 200", rec.Code)
	}

	rec := e.do(t, http.MethodGet, path, nil)
	var events []store.MatchEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}

func TestErrorMapping(t *testing.T) {
	e := newTestEnv(t, Config{})
	s := e.seed(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad id", http.MethodGet, "/api/v1/matches/abc", nil, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown match", http.MethodGet, "/api/v1/matches/999", nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown action", http.MethodPost, fmt.Sprintf("/api/v1/matches/%d/clock", s.matchID),
			map[string]string{"action": "KICK_OFF"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown event type", http.MethodPost, fmt.Sprintf("/api/v1/matches/%d/events", s.matchID),
			live.EventInput{PlayerID: s.homeStriker, Type: "HANDBALL"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"second match for fixture", http.MethodPost, "/api/v1/fixtures/1/match", nil, http.StatusConflict, "CONFLICT"},
		{"same team twice", http.MethodPost, fmt.Sprintf("/api/v1/seasons/%d/fixtures", s.seasonID),
			map[string]int64{"homeTeamId": s.home, "awayTeamId": s.home}, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown season standings", http.MethodGet, fmt.Sprintf("/api/v1/leagues/%d/seasons/999/standings", s.leagueID),
			nil, http.StatusNotFound, "NOT_FOUND"},
		{"push disabled", http.MethodGet, "/api/v1/push/vapid-public-key", nil, http.StatusServiceUnavailable, "PUSH_DISABLED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status %d, want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
			if code := decodeError(t, rec); code != tc.code {
				t.Fatalf("code %q, want %q", code, tc.code)
			}
		})
	}
}

func TestMutationsRequireReporterToken(t *testing.T) {
	e := newTestEnv(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/leagues", strings.NewReader(`{"name":"x"}`))
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	e := newTestEnv(t, Config{RateLimitEnabled: true, RateLimitRequests: 2, RateLimitWindow: time.Minute})

	var last int
	for i := 0; i < 3; i++ {
		last = e.do(t, http.MethodPost, "/api/v1/leagues", map[string]string{"name": fmt.Sprintf("L%d", i)}).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third request status %d, want 429", last)
	}
	if rec := e.do(t, http.MethodGet, "/api/v1/leagues/1", nil); rec.Code != http.StatusOK {
		t.Fatalf("reads are not limited, got %d", rec.Code)
	}
}

func TestMatchStreamDeliversEvents(t *testing.T) {
	e := newTestEnv(t, Config{KeepAlive: time.Hour})
	s := e.seed(t)
	ts := httptest.NewServer(e.srv)
	defer ts.Close()

	resp, err := http.Get(fmt.Sprintf("%s/api/v1/matches/%d/stream", ts.URL, s.matchID))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if line, _ := reader.ReadString('\n'); !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line %q", line)
	}

	waitForSubscribers(t, e.hub, broadcast.MatchRoom(s.matchID))
	e.do(t, http.MethodPost, fmt.Sprintf("/api/v1/matches/%d/counters", s.matchID), store.CounterDelta{HomeCorners: 1})

	deadline := time.After(2 * time.Second)
	lines := make(chan string, 64)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- line
		}
	}()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed")
			}
			if strings.HasPrefix(line, "event: ") {
				if kind := strings.TrimSpace(strings.TrimPrefix(line, "event: ")); kind != string(broadcast.KindCountersUpdated) {
					t.Fatalf("event kind %q", kind)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for stream event")
		}
	}
}

func TestWebSocketJoinReceivesRoomMessages(t *testing.T) {
	e := newTestEnv(t, Config{})
	s := e.seed(t)
	ts := httptest.NewServer(e.srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	room := broadcast.MatchRoom(s.matchID)
	if err := conn.WriteJSON(wsRequest{Action: "join", Room: string(room)}); err != nil {
		t.Fatal(err)
	}
	var ack wsReply
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatal(err)
	}
	if ack.Type != "joined" || ack.Room != room {
		t.Fatalf("ack %+v", ack)
	}

	e.do(t, http.MethodPost, fmt.Sprintf("/api/v1/matches/%d/clock", s.matchID), map[string]string{"action": "START_FIRST_HALF"})

	var msg struct {
		Room    broadcast.Room    `json:"room"`
		Kind    broadcast.Kind    `json:"kind"`
		Payload live.ClockPayload `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Kind != broadcast.KindClockUpdated || msg.Payload.ID != s.matchID || msg.Payload.Phase != "FIRST_HALF" {
		t.Fatalf("message %+v", msg)
	}

	if err := conn.WriteJSON(wsRequest{Action: "join", Room: "team:1"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatal(err)
	}
	if ack.Type != "error" {
		t.Fatalf("invalid room ack %+v", ack)
	}
}

func waitForSubscribers(t *testing.T, hub *broadcast.Hub, room broadcast.Room) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount(room) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no subscriber joined %s", room)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
