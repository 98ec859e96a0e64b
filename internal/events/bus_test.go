package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishFansOut(t *testing.T) {
	bus := NewBus()
	var first, second []Event
	bus.Subscribe(func(evt Event) { first = append(first, evt) })
	bus.Subscribe(func(evt Event) { second = append(second, evt) })

	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	bus.Publish(Event{Name: ViolationDetected, Payload: map[string]any{"user": "alice"}, At: at})

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, ViolationDetected, first[0].Name)
	assert.Equal(t, "alice", first[0].Payload["user"])
	assert.Equal(t, at, first[0].At)
}

func TestBus_PublishStampsZeroValues(t *testing.T) {
	bus := NewBus()
	var got Event
	bus.Subscribe(func(evt Event) { got = evt })

	bus.Publish(Event{Name: NodeWentOffline})

	assert.False(t, got.At.IsZero(), "a zero At is stamped with the current time")
	assert.NotNil(t, got.Payload, "handlers never see a nil payload")
}

func TestBus_SubscribeAfterPublish(t *testing.T) {
	bus := NewBus()
	bus.Publish(Event{Name: ViolationDetected})

	var got []Event
	bus.Subscribe(func(evt Event) { got = append(got, evt) })
	assert.Empty(t, got, "subscriptions only see subsequent events")

	bus.Publish(Event{Name: ViolationDetected})
	assert.Len(t, got, 1)
}

func TestKnown(t *testing.T) {
	for _, name := range Names() {
		assert.True(t, Known(name), name)
	}
	assert.False(t, Known("user.sneezed"))
	assert.False(t, Known(""))
}
