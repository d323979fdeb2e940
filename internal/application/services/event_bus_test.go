package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusflow/backend/internal/domain/events"
)

func TestEventBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus()

	var first, second int
	unsubscribe := bus.Subscribe(events.InstanceStarted, func(context.Context, interface{}) error {
		first++
		return nil
	})
	bus.Subscribe(events.InstanceStarted, func(context.Context, interface{}) error {
		second++
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), events.InstanceStarted, nil))
	unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), events.InstanceStarted, nil))

	// Unsubscribing again is harmless and the other handler keeps receiving
	unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), events.InstanceStarted, nil))

	assert.Equal(t, 1, first)
	assert.Equal(t, 3, second)
}
