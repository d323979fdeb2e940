// Package mq bridges the in-process event bus to RabbitMQ so external
// consumers (notification senders, audit pipelines) can subscribe to
// workflow lifecycle events. The broker is optional: when MQ_URL is unset
// the engine runs with the in-process bus only.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nexusflow/backend/internal/domain/events"
)

// ExchangeWorkflowEvents is the topic exchange all lifecycle events go to.
// The routing key is the event type, so consumers can bind selectively
// (e.g. "instance.*" or "approval.escalated").
const ExchangeWorkflowEvents = "workflow.events"

// Publisher publishes workflow lifecycle events to RabbitMQ.
type Publisher struct {
	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// Envelope is the wire format of a published event.
type Envelope struct {
	ID        string           `json:"id"`
	Type      events.EventType `json:"type"`
	Payload   interface{}      `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewPublisher dials the broker and declares the topic exchange.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		ExchangeWorkflowEvents,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Printf("✅ Connected to RabbitMQ, exchange %s declared", ExchangeWorkflowEvents)
	return &Publisher{conn: conn, channel: ch}, nil
}

// Publish sends one event to the exchange with the event type as routing key.
func (p *Publisher) Publish(ctx context.Context, eventType events.EventType, payload interface{}) error {
	p.mu.RLock()
	ch := p.channel
	closed := p.closed
	p.mu.RUnlock()

	if closed || ch == nil {
		return fmt.Errorf("publisher is closed")
	}

	envelope := Envelope{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = ch.PublishWithContext(ctx,
		ExchangeWorkflowEvents,
		string(eventType), // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    envelope.ID,
			Timestamp:    envelope.Timestamp,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}
	return nil
}

// Close shuts down the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
