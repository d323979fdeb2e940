package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nexusflow/backend/internal/domain/events"
	"github.com/nexusflow/backend/internal/domain/ports"
	"github.com/nexusflow/backend/internal/telemetry"
)

// EventType is an alias to the domain type
type EventType = events.EventType

// EventHandler is a function that handles an event.
// Using the type from ports to ensure interface compatibility.
type EventHandler = ports.EventHandler

// LifecycleEvent wraps a payload with its type and emit time
type LifecycleEvent struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// EventBus manages the publish-subscribe event system.
// It implements ports.EventPublisher interface.
//
// Handler failures are the consumer's problem: a failing handler is logged
// and the remaining handlers still run, so a broken notification sender
// cannot block an approval decision.
type EventBus struct {
	handlers map[EventType][]EventHandler
	mu       sync.RWMutex
}

// Ensure EventBus implements ports.EventPublisher at compile time
var _ ports.EventPublisher = (*EventBus)(nil)

// NewEventBus creates a new EventBus instance
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type
// Returns an unsubscribe function
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.handlers[eventType] == nil {
		eb.handlers[eventType] = make([]EventHandler, 0)
	}

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
	idx := len(eb.handlers[eventType]) - 1

	// Unsubscribing nils the slot instead of compacting the slice, so the
	// indices captured by other unsubscribe closures stay valid.
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()

		if handlers := eb.handlers[eventType]; idx < len(handlers) {
			handlers[idx] = nil
		}
	}
}

// Publish publishes an event to all registered handlers. Handlers run in
// sequence; a failing handler is logged and skipped, never propagated.
func (eb *EventBus) Publish(ctx context.Context, eventType EventType, payload interface{}) error {
	eb.mu.RLock()
	handlers := eb.handlers[eventType]
	eb.mu.RUnlock()

	telemetry.EventsPublished.WithLabelValues(string(eventType)).Inc()

	if len(handlers) == 0 {
		return nil
	}

	event := LifecycleEvent{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		if err := handler(ctx, event.Payload); err != nil {
			log.Printf("⚠️ EventBus handler error for %s: %v", eventType, err)
		}
	}

	return nil
}

// PublishAsync publishes an event asynchronously
func (eb *EventBus) PublishAsync(eventType EventType, payload interface{}) {
	go func() {
		// Use background context for async events as they are decoupled from the request/tx
		if err := eb.Publish(context.Background(), eventType, payload); err != nil {
			log.Printf("EventBus async publish error: %v", err)
		}
	}()
}

// BridgeToBroker forwards every event type to an external publisher (the
// RabbitMQ sink). Broker errors are logged, not returned.
func (eb *EventBus) BridgeToBroker(publish func(ctx context.Context, eventType EventType, payload interface{}) error) {
	for _, et := range events.All() {
		eventType := et
		eb.Subscribe(eventType, func(ctx context.Context, payload interface{}) error {
			if err := publish(ctx, eventType, payload); err != nil {
				return fmt.Errorf("broker publish %s: %w", eventType, err)
			}
			return nil
		})
	}
}

// Clear removes all handlers (useful for testing)
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers = make(map[EventType][]EventHandler)
}
