package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	bus := New()
	id1, ch1 := bus.Subscribe(4)
	id2, ch2 := bus.Subscribe(4)
	defer bus.Unsubscribe(id1)
	defer bus.Unsubscribe(id2)

	bus.PublishNew(Event{
		Type:       TypeStatusChanged,
		WorkItemID: "item-1",
		OldStatus:  "todo",
		NewStatus:  "in_progress",
	})

	for _, ch := range []<-chan *Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, TypeStatusChanged, ev.Type)
			assert.Equal(t, "item-1", ev.WorkItemID)
			assert.NotEmpty(t, ev.ID)
			assert.False(t, ev.CreatedAt.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(1)
	defer bus.Unsubscribe(id)

	bus.PublishNew(Event{Type: TypeAgentStarted, WorkItemID: "a"})
	bus.PublishNew(Event{Type: TypeAgentStarted, WorkItemID: "b"})

	ev := <-ch
	assert.Equal(t, "a", ev.WorkItemID)
	select {
	case ev := <-ch:
		t.Fatalf("expected second event to be dropped, got %+v", ev)
	default:
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(1)
	bus.Unsubscribe(id)

	_, ok := <-ch
	require.False(t, ok)

	// Publishing after unsubscribe must not panic.
	bus.PublishNew(Event{Type: TypeRunError})
}
