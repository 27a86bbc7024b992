package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/events"
)

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitDispatchesToNotifiers(t *testing.T) {
	first := &captureNotifier{}
	second := &captureNotifier{}
	bus := events.Bus{Notifiers: []events.Notifier{first, second}}

	event, err := bus.Emit(context.Background(), events.TopicOrderSubmitted, "user:u-1", map[string]any{"orderId": "123"})
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderSubmitted, event.Topic)
	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	require.Equal(t, event.ID, first.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "123", decoded["orderId"])
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("boom")}
	ok := &captureNotifier{}
	bus := events.Bus{Notifiers: []events.Notifier{failing, ok}}

	_, err := bus.Emit(context.Background(), events.TopicValidationMismatch, "guest:g-1", nil)
	require.Error(t, err)
	// later notifiers still run
	require.Len(t, ok.events, 1)
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{}
	_, err := bus.Emit(context.Background(), " ", "agg", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderSubmitted, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderSubmitted, "agg", []byte("{not json"))
	require.Error(t, err)
}
