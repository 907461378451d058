package broadcast

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func receive(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			t.Fatal("subscription closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestEmitReachesRoomOnly(t *testing.T) {
	hub := NewHub(quietLogger())
	defer hub.Close()

	m1 := hub.Join(MatchRoom(1))
	m2 := hub.Join(MatchRoom(2))

	hub.Emit(MatchRoom(1), KindClockUpdated, map[string]int{"elapsedSeconds": 10})

	msg := receive(t, m1)
	if msg.Kind != KindClockUpdated || msg.Room != "match:1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	select {
	case msg := <-m2.Messages():
		t.Fatalf("other room received %+v", msg)
	default:
	}
}

func TestEmitWithoutSubscribersIsNoop(t *testing.T) {
	hub := NewHub(quietLogger())
	hub.Emit(LeagueRoom(7), KindStandingsUpdated, nil)
	hub.Close()
	hub.Emit(LeagueRoom(7), KindStandingsUpdated, nil)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(quietLogger())
	defer hub.Close()

	slow := hub.Join(MatchRoom(1))
	fast := hub.Join(MatchRoom(1))

	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Emit(MatchRoom(1), KindCountersUpdated, i)
		receive(t, fast)
	}
	if got := len(slow.ch); got != subscriberBuffer {
		t.Fatalf("slow subscriber buffered %d, want %d", got, subscriberBuffer)
	}
}

func TestFirehoseSeesEveryRoom(t *testing.T) {
	hub := NewHub(quietLogger())
	defer hub.Close()

	all := hub.Subscribe()
	hub.Emit(MatchRoom(3), KindEventCreated, nil)
	hub.Emit(LeagueRoom(1), KindStandingsUpdated, nil)

	if msg := receive(t, all); msg.Room != MatchRoom(3) {
		t.Fatalf("first message room %s", msg.Room)
	}
	if msg := receive(t, all); msg.Room != LeagueRoom(1) {
		t.Fatalf("second message room %s", msg.Room)
	}
}

func TestCloseSubscriptionAndHub(t *testing.T) {
	hub := NewHub(quietLogger())
	sub := hub.Join(MatchRoom(1))
	other := hub.Join(MatchRoom(1))

	sub.Close()
	sub.Close()
	if _, ok := <-sub.Messages(); ok {
		t.Fatal("closed subscription channel should be closed")
	}
	if n := hub.SubscriberCount(MatchRoom(1)); n != 1 {
		t.Fatalf("subscriber count %d, want 1", n)
	}

	hub.Close()
	if _, ok := <-other.Messages(); ok {
		t.Fatal("hub close should close subscriptions")
	}
	other.Close()

	late := hub.Join(MatchRoom(1))
	if _, ok := <-late.Messages(); ok {
		t.Fatal("joining a closed hub should yield a closed subscription")
	}
}

func TestParseRoom(t *testing.T) {
	for _, ok := range []string{"match:1", "league:42"} {
		if _, err := ParseRoom(ok); err != nil {
			t.Errorf("ParseRoom(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "match", "match:", "match:x", "team:1", "match:-3"} {
		if _, err := ParseRoom(bad); err == nil {
			t.Errorf("ParseRoom(%q) should fail", bad)
		}
	}
	if id, ok := MatchRoom(9).MatchID(); !ok || id != 9 {
		t.Fatalf("MatchID = %d, %v", id, ok)
	}
	if _, ok := LeagueRoom(9).MatchID(); ok {
		t.Fatal("league room has no match id")
	}
}
