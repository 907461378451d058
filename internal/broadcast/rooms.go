package broadcast

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind names the type of a broadcast message.
type Kind string

const (
	KindEventCreated     Kind = "event-created"
	KindEventUpdated     Kind = "event-updated"
	KindEventDeleted     Kind = "event-deleted"
	KindClockUpdated     Kind = "clock-updated"
	KindCountersUpdated  Kind = "counters-updated"
	KindStandingsUpdated Kind = "standings-updated"
)

// Room is a named group of subscribers, e.g. "match:12" or "league:3".
type Room string

const (
	roomMatch  = "match"
	roomLeague = "league"
)

func MatchRoom(matchID int64) Room {
	return Room(fmt.Sprintf("%s:%d", roomMatch, matchID))
}

func LeagueRoom(leagueID int64) Room {
	return Room(fmt.Sprintf("%s:%d", roomLeague, leagueID))
}

// ParseRoom validates a room name received from a client.
func ParseRoom(s string) (Room, error) {
	prefix, id, ok := strings.Cut(s, ":")
	if !ok || (prefix != roomMatch && prefix != roomLeague) {
		return "", fmt.Errorf("invalid room %q", s)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return "", fmt.Errorf("invalid room %q", s)
	}
	return Room(s), nil
}

// MatchID returns the match a room belongs to, if it is a match room.
func (r Room) MatchID() (int64, bool) {
	id, ok := strings.CutPrefix(string(r), roomMatch+":")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil
}

// Message is one broadcast delivered to the subscribers of a room.
type Message struct {
	Room    Room      `json:"room"`
	Kind    Kind      `json:"kind"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sentAt"`
}
