/**
 * @description
 * This package provides a producer for publishing wallet events to RabbitMQ.
 * It encapsulates connecting to the broker and publishing JSON messages to a
 * durable topic exchange. The broker is optional infrastructure: when it is
 * unavailable at startup a no-op fallback keeps the wallet flows running.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */

package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/iabbakr/callondemand-backend/internal/domain"
)

// Routing keys for wallet events.
const (
	RouteDepositSettled      = "wallet.deposit.settled"
	RouteWithdrawalCompleted = "wallet.withdrawal.completed"
)

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	PublishWalletEvent(ctx context.Context, exchange, routingKey string, event domain.WalletEvent) error
	Close()
}

// EventProducer holds the RabbitMQ connection and channel for publishing.
type EventProducer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NoopPublisher is the fallback used when RabbitMQ is not configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishWalletEvent(ctx context.Context, exchange, routingKey string, event domain.WalletEvent) error {
	log.Printf("level=debug component=rabbitmq_producer mode=noop msg=\"publish skipped\" routing_key=%s reference=%s", routingKey, event.Reference)
	return nil
}

func (NoopPublisher) Close() {}

// NewEventProducer dials the broker and opens a publishing channel.
func NewEventProducer(amqpURL string) (*EventProducer, error) {
	clean := strings.TrimSpace(amqpURL)
	u, err := url.Parse(clean)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return nil, errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}

	// Bounded dial timeout so startup does not hang on a dead broker.
	conn, err := amqp091.DialConfig(clean, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch}, nil
}

// PublishWalletEvent sends one wallet event to the durable topic exchange.
// A failed publish is retried once on a fresh channel.
func (p *EventProducer) PublishWalletEvent(ctx context.Context, exchange, routingKey string, event domain.WalletEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := p.publish(ctx, exchange, routingKey, body); err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed; reopening channel\" routing_key=%s err=%v", routingKey, err)
		ch, chErr := p.conn.Channel()
		if chErr != nil {
			return err
		}
		p.channel = ch
		return p.publish(ctx, exchange, routingKey, body)
	}
	return nil
}

func (p *EventProducer) publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
}

// Close gracefully closes the channel and connection.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
