package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// AMQPSink publishes notifications to a topic exchange. Routing keys look
// like "match.12.clock-updated" so consumers can bind per room or kind.
// The connection is dialled on first use and redialled after a failure.
type AMQPSink struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPSink(url, exchange string) *AMQPSink {
	if exchange == "" {
		exchange = "matchday"
	}
	return &AMQPSink{url: url, exchange: exchange}
}

func (a *AMQPSink) Name() string { return "amqp" }

// RoutingKey derives the routing key of a notification.
func RoutingKey(n Notification) string {
	return strings.ReplaceAll(string(n.Room), ":", ".") + "." + string(n.Kind)
}

func (a *AMQPSink) ensureChannel() (*amqp.Channel, error) {
	if a.channel != nil {
		return a.channel, nil
	}

	conn, err := amqp.DialConfig(a.url, amqp.Config{
		Heartbeat: 30 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	if err := ch.ExchangeDeclare(a.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	a.conn, a.channel = conn, ch
	return ch, nil
}

func (a *AMQPSink) reset() {
	if a.conn != nil {
		a.conn.Close()
	}
	a.conn, a.channel = nil, nil
}

func (a *AMQPSink) Send(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ch, err := a.ensureChannel()
	if err != nil {
		return err
	}
	err = ch.Publish(a.exchange, RoutingKey(n), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    n.ID,
		Timestamp:    n.SentAt,
		Type:         string(n.Kind),
		Body:         body,
	})
	if err != nil {
		a.reset()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close shuts the connection down.
func (a *AMQPSink) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
	return nil
}
