package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToSessionListenersOnly(t *testing.T) {
	hub := NewHub()
	mine, cancelMine := hub.Subscribe("s1")
	defer cancelMine()
	other, cancelOther := hub.Subscribe("s2")
	defer cancelOther()

	hub.Publish(Event{Type: TypeCartChanged, SessionID: "s1", Count: 3})

	select {
	case evt := <-mine:
		assert.Equal(t, TypeCartChanged, evt.Type)
		assert.Equal(t, 3, evt.Count)
		assert.False(t, evt.At.IsZero())
	default:
		t.Fatal("expected event for s1")
	}

	select {
	case evt := <-other:
		t.Fatalf("unexpected event for s2: %+v", evt)
	default:
	}
}

func TestHubCancelClosesAndUnregisters(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("s1")
	require.Equal(t, 1, hub.Listeners("s1"))

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Listeners("s1"))

	hub.Publish(Event{SessionID: "s1"})
}

func TestHubPublishDoesNotBlockOnSlowListener(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe("s1")
	defer cancel()

	for i := 0; i < defaultBuffer*4; i++ {
		hub.Publish(Event{SessionID: "s1", Count: i})
	}
}
