package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"

	"github.com/edvart/matchday/internal/store"
)

// SubscriptionStore is the part of the store the push service needs.
type SubscriptionStore interface {
	ListPushSubscriptions(ctx context.Context, matchID int64) ([]store.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

type Service struct {
	store        SubscriptionStore
	vapidPublic  string
	vapidPrivate string
	vapidSubject string
	ttl          int
	client       webpush.HTTPClient
	log          logrus.FieldLogger
}

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string // mailto:your-email@example.com
	TTL             int
}

func NewService(st SubscriptionStore, cfg Config, log logrus.FieldLogger) *Service {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 60
	}
	return &Service{
		store:        st,
		vapidPublic:  cfg.VAPIDPublicKey,
		vapidPrivate: cfg.VAPIDPrivateKey,
		vapidSubject: cfg.VAPIDSubject,
		ttl:          ttl,
		client:       http.DefaultClient,
		log:          log,
	}
}

// Enabled reports whether VAPID keys are configured.
func (s *Service) Enabled() bool {
	return s.vapidPublic != "" && s.vapidPrivate != ""
}

type NotificationPayload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon,omitempty"`
	Badge string         `json:"badge,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Tag   string         `json:"tag,omitempty"`
}

// SendToMatch sends a notification to every subscription following the
// match. Subscriptions the push service reports as gone are removed.
func (s *Service) SendToMatch(ctx context.Context, matchID int64, payload NotificationPayload) error {
	subs, err := s.store.ListPushSubscriptions(ctx, matchID)
	if err != nil {
		return fmt.Errorf("failed to get subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	log := s.log.WithField("match_id", matchID)
	var lastErr error
	sent := 0
	for _, sub := range subs {
		if err := s.sendOne(ctx, sub, payloadBytes); err != nil {
			log.WithError(err).WithField("endpoint", sub.Endpoint).Warn("push delivery failed")
			lastErr = err
			continue
		}
		sent++
	}
	log.WithFields(logrus.Fields{"sent": sent, "subscriptions": len(subs)}).Debug("push notifications sent")

	if sent == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

func (s *Service) sendOne(ctx context.Context, sub store.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.vapidSubject,
		VAPIDPublicKey:  s.vapidPublic,
		VAPIDPrivateKey: s.vapidPrivate,
		TTL:             s.ttl,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		s.log.WithField("endpoint", sub.Endpoint).Info("subscription expired, removing")
		if err := s.store.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
			return fmt.Errorf("delete expired subscription: %w", err)
		}
		return nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("push failed with status %d", resp.StatusCode)
	}
	return nil
}

// GetPublicKey returns the VAPID public key for frontend use
func (s *Service) GetPublicKey() string {
	return s.vapidPublic
}

// GenerateVAPIDKeys creates a new key pair for VAPID_PUBLIC_KEY and
// VAPID_PRIVATE_KEY.
func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	return webpush.GenerateVAPIDKeys()
}
