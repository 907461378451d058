// Package notify forwards broadcast messages to systems outside the
// process. Delivery is at most once: nothing is retried or persisted.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/edvart/matchday/internal/broadcast"
)

// Notification is the document delivered to every sink.
type Notification struct {
	ID      string         `json:"id"`
	Room    broadcast.Room `json:"room"`
	Kind    broadcast.Kind `json:"kind"`
	Payload any            `json:"payload"`
	SentAt  time.Time      `json:"sentAt"`
}

// Sink delivers notifications to one external system.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Relay buffers hub messages and hands them to the sinks from a single
// worker, so a slow sink never holds up request handling.
type Relay struct {
	sinks   []Sink
	queue   chan Notification
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewRelay(log logrus.FieldLogger, queueSize int, timeout time.Duration, sinks ...Sink) *Relay {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Relay{
		sinks:   sinks,
		queue:   make(chan Notification, queueSize),
		timeout: timeout,
		log:     log,
	}
}

// Enabled reports whether any sink is configured.
func (r *Relay) Enabled() bool {
	return len(r.sinks) > 0
}

// Run forwards messages until ctx is cancelled or msgs is closed.
func (r *Relay) Run(ctx context.Context, msgs <-chan broadcast.Message) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.deliverLoop(ctx)
	}()

	r.log.WithField("sinks", len(r.sinks)).Info("notification relay started")
	defer func() {
		close(r.queue)
		wg.Wait()
		r.log.Info("notification relay stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			r.enqueue(msg)
		}
	}
}

func (r *Relay) enqueue(msg broadcast.Message) {
	n := Notification{
		ID:      uuid.NewString(),
		Room:    msg.Room,
		Kind:    msg.Kind,
		Payload: msg.Payload,
		SentAt:  msg.SentAt,
	}
	select {
	case r.queue <- n:
	default:
		r.log.WithFields(logrus.Fields{"room": msg.Room, "kind": msg.Kind}).Warn("notification queue full, dropping")
	}
}

func (r *Relay) deliverLoop(ctx context.Context) {
	for n := range r.queue {
		if ctx.Err() != nil {
			continue
		}
		r.deliver(ctx, n)
	}
}

func (r *Relay) deliver(ctx context.Context, n Notification) {
	for _, sink := range r.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := sink.Send(sendCtx, n)
		cancel()
		if err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{
				"sink":            sink.Name(),
				"room":            n.Room,
				"kind":            n.Kind,
				"notification_id": n.ID,
			}).Warn("notification delivery failed")
		}
	}
}
