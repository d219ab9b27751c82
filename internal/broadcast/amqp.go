package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchange          = "order.events"
	reconnectInterval = 5 * time.Second
)

// AMQPBroadcaster publishes StateChanged facts to a topic exchange. Channel
// names map to routing keys ("restaurant:abc" -> "restaurant.abc") so
// realtime consumers bind with the channels they were granted.
type AMQPBroadcaster struct {
	url          string
	conn         *amqp.Connection
	ch           *amqp.Channel
	mu           sync.Mutex
	reconnecting bool
}

func NewAMQPBroadcaster(url string) (*AMQPBroadcaster, error) {
	b := &AMQPBroadcaster{url: url}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *AMQPBroadcaster) connect() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	// The reconnect goroutine writes these while Publish reads them.
	b.mu.Lock()
	b.conn = conn
	b.ch = ch
	b.mu.Unlock()
	return nil
}

func (b *AMQPBroadcaster) Publish(ctx context.Context, change StateChanged) error {
	b.mu.Lock()
	conn, ch := b.conn, b.ch
	b.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		go b.reconnect()
		return fmt.Errorf("amqp connection lost")
	}

	body, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	for _, channel := range Channels(change.Order) {
		routingKey := strings.ReplaceAll(channel, ":", ".")
		err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
		if err != nil {
			slog.Error("broadcast publish failed", "channel", channel, "order", change.Order.ID, "error", err)
			return fmt.Errorf("publish to %s: %w", channel, err)
		}
	}
	return nil
}

func (b *AMQPBroadcaster) reconnect() {
	b.mu.Lock()
	if b.reconnecting {
		b.mu.Unlock()
		return
	}
	b.reconnecting = true
	b.mu.Unlock()

	for {
		time.Sleep(reconnectInterval)
		if err := b.connect(); err != nil {
			slog.Error("amqp reconnect failed", "error", err)
			continue
		}
		slog.Info("amqp reconnected")
		b.mu.Lock()
		b.reconnecting = false
		b.mu.Unlock()
		return
	}
}

func (b *AMQPBroadcaster) Close() error {
	b.mu.Lock()
	conn, ch := b.conn, b.ch
	b.mu.Unlock()

	if ch != nil && !ch.IsClosed() {
		if err := ch.Close(); err != nil {
			return fmt.Errorf("close amqp channel: %w", err)
		}
	}
	if conn != nil && !conn.IsClosed() {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("close amqp connection: %w", err)
		}
	}
	return nil
}
