package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 64

// Broadcaster is what services need to publish state changes.
type Broadcaster interface {
	Emit(room Room, kind Kind, payload any)
}

// Subscription receives the messages of one room, or of every room when
// it was created with Subscribe.
type Subscription struct {
	ID   string
	Room Room

	hub  *Hub
	ch   chan Message
	once sync.Once
}

// Messages returns the delivery channel. It is closed when the
// subscription or the hub is closed.
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub fans messages out to room subscribers. Sends never block: a
// subscriber whose buffer is full misses the message.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[Room]map[*Subscription]struct{}
	firehose map[*Subscription]struct{}
	closed   bool
	now      func() time.Time
	log      logrus.FieldLogger
}

// NewHub creates a hub.
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		rooms:    make(map[Room]map[*Subscription]struct{}),
		firehose: make(map[*Subscription]struct{}),
		now:      time.Now,
		log:      log,
	}
}

func (h *Hub) newSubscription(room Room) *Subscription {
	return &Subscription{
		ID:   uuid.NewString(),
		Room: room,
		hub:  h,
		ch:   make(chan Message, subscriberBuffer),
	}
}

// Join subscribes to a single room. Joining a closed hub returns a
// subscription whose channel is already closed.
func (h *Hub) Join(room Room) *Subscription {
	sub := h.newSubscription(room)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Subscription]struct{})
		h.rooms[room] = members
	}
	members[sub] = struct{}{}

	h.log.WithFields(logrus.Fields{"room": room, "subscriber": sub.ID}).Debug("subscriber joined")
	return sub
}

// Subscribe receives every message of every room. It is meant for
// in-process consumers such as the push notifier and the outbound relay.
func (h *Hub) Subscribe() *Subscription {
	sub := h.newSubscription("")

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	h.firehose[sub] = struct{}{}
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub.Room == "" {
		delete(h.firehose, sub)
	} else if members, ok := h.rooms[sub.Room]; ok {
		delete(members, sub)
		if len(members) == 0 {
			delete(h.rooms, sub.Room)
		}
	}
	sub.once.Do(func() { close(sub.ch) })
}

// Emit delivers a message to the room's subscribers and to every firehose
// subscriber. It is a no-op when nobody listens or the hub is closed.
func (h *Hub) Emit(room Room, kind Kind, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	members := h.rooms[room]
	if len(members) == 0 && len(h.firehose) == 0 {
		return
	}

	msg := Message{Room: room, Kind: kind, Payload: payload, SentAt: h.now().UTC()}
	for sub := range members {
		h.send(sub, msg)
	}
	for sub := range h.firehose {
		h.send(sub, msg)
	}
}

func (h *Hub) send(sub *Subscription, msg Message) {
	select {
	case sub.ch <- msg:
	default:
		h.log.WithFields(logrus.Fields{
			"room":       msg.Room,
			"kind":       msg.Kind,
			"subscriber": sub.ID,
		}).Warn("dropping message for slow subscriber")
	}
}

// SubscriberCount returns the number of subscribers of a room.
func (h *Hub) SubscriberCount(room Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every subscriber. Later emits are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true

	for _, members := range h.rooms {
		for sub := range members {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	for sub := range h.firehose {
		sub.once.Do(func() { close(sub.ch) })
	}
	h.rooms = make(map[Room]map[*Subscription]struct{})
	h.firehose = make(map[*Subscription]struct{})
	h.log.Info("broadcast hub closed")
}
