package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherDeliversEvents(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(sink, 8)
	defer d.Close()

	d.Emit(Event{Type: EventLogin, UserID: "u-1", Success: true})

	select {
	case got := <-sink.Events():
		assert.Equal(t, EventLogin, got.Type)
		assert.Equal(t, "u-1", got.UserID)
		assert.True(t, got.Success)
		assert.False(t, got.Timestamp.IsZero(), "timestamp must be stamped")
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(sink, 16)

	for i := 0; i < 5; i++ {
		d.Emit(Event{Type: EventLogout})
	}
	d.Close()

	for i := 0; i < 5; i++ {
		select {
		case <-sink.Events():
		default:
			t.Fatalf("only %d of 5 events drained", i)
		}
	}
}

func TestDispatcherDropsUnderBackpressure(t *testing.T) {
	// A blocked sink with a one-slot buffer forces drops.
	block := make(chan struct{})
	sink := sinkFunc(func(context.Context, Event) { <-block })
	d := NewDispatcher(sink, 1)
	defer func() {
		close(block)
		d.Close()
	}()

	// First event occupies the sink, second fills the buffer; the rest
	// must be counted, not block the caller.
	for i := 0; i < 10; i++ {
		d.Emit(Event{Type: EventLoginFailed})
	}

	require.Eventually(t, func() bool {
		return d.Dropped() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcherNilSafe(t *testing.T) {
	var d *Dispatcher
	d.Emit(Event{Type: EventLogin})
	d.Close()
	assert.Zero(t, d.Dropped())

	require.Nil(t, NewDispatcher(nil, 8))
}

func TestDispatcherEmitAfterClose(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(sink, 4)
	d.Close()

	d.Emit(Event{Type: EventLogin})
	assert.Zero(t, d.Dropped())
}

type sinkFunc func(context.Context, Event)

func (f sinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }
