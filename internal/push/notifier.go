package push

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edvart/matchday/internal/broadcast"
	"github.com/edvart/matchday/internal/live"
	"github.com/edvart/matchday/internal/matchclock"
)

const sendTimeout = 15 * time.Second

// Notifier listens to hub messages and pushes goals and full-time results
// to fans following a match.
type Notifier struct {
	service *Service
	log     logrus.FieldLogger
}

func NewNotifier(service *Service, log logrus.FieldLogger) *Notifier {
	return &Notifier{service: service, log: log}
}

// Run consumes messages until ctx is cancelled or msgs is closed.
func (n *Notifier) Run(ctx context.Context, msgs <-chan broadcast.Message) {
	n.log.Info("push notifier started")
	defer n.log.Info("push notifier stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			n.handle(ctx, msg)
		}
	}
}

func (n *Notifier) handle(ctx context.Context, msg broadcast.Message) {
	matchID, ok := msg.Room.MatchID()
	if !ok {
		return
	}
	payload, ok := Compose(msg)
	if !ok {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := n.service.SendToMatch(sendCtx, matchID, payload); err != nil {
		n.log.WithError(err).WithField("match_id", matchID).Warn("push notification failed")
	}
}

// Compose builds the notification for a hub message, if it deserves one.
func Compose(msg broadcast.Message) (NotificationPayload, bool) {
	matchID, _ := msg.Room.MatchID()
	data := map[string]any{
		"matchId": matchID,
		"url":     fmt.Sprintf("/matches/%d", matchID),
	}

	switch p := msg.Payload.(type) {
	case live.EventPayload:
		if msg.Kind != broadcast.KindEventCreated || !p.Event.Type.AffectsScore() {
			return NotificationPayload{}, false
		}
		body := matchclock.FormatEventMinute(p.Event.Minute, p.Event.Half)
		if p.Score != nil {
			body = fmt.Sprintf("%s  %d-%d", body, p.Score.Home, p.Score.Away)
		}
		data["eventId"] = p.Event.ID
		return NotificationPayload{
			Title: "Goal!",
			Body:  body,
			Tag:   fmt.Sprintf("match-%d-goal-%d", matchID, p.Event.ID),
			Data:  data,
		}, true

	case live.ClockPayload:
		if msg.Kind != broadcast.KindClockUpdated || p.Phase != matchclock.PhaseFullTime {
			return NotificationPayload{}, false
		}
		return NotificationPayload{
			Title: "Full time",
			Body:  "The match has finished.",
			Tag:   fmt.Sprintf("match-%d-ft", matchID),
			Data:  data,
		}, true
	}
	return NotificationPayload{}, false
}
