package broadcast

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestBroadcaster() *Broadcaster {
	logger := zerolog.Nop()
	return NewBroadcaster(&logger)
}

func drain(sink *ChanSink) []Event {
	var out []Event
	for {
		select {
		case ev := <-sink.C:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPublishOrderPreservedPerKey(t *testing.T) {
	b := newTestBroadcaster()
	sink := NewChanSink(64)
	defer b.Register("task-1", sink)()

	for i := 0; i < 10; i++ {
		b.Publish(context.Background(), "task-1", Event{Status: "step", Message: fmt.Sprintf("%d", i)})
	}
	got := drain(sink)
	if len(got) != 10 {
		t.Fatalf("delivered %d events, want 10", len(got))
	}
	for i, ev := range got {
		if ev.Message != fmt.Sprintf("%d", i) {
			t.Fatalf("event %d out of order: %q", i, ev.Message)
		}
	}
}

func TestMultipleSinksFanOut(t *testing.T) {
	b := newTestBroadcaster()
	s1 := NewChanSink(8)
	s2 := NewChanSink(8)
	defer b.Register("task-1", s1)()
	defer b.Register("task-1", s2)()

	b.Publish(context.Background(), "task-1", Event{Status: "completed"})

	for i, s := range []*ChanSink{s1, s2} {
		select {
		case ev := <-s.C:
			if ev.Status != "completed" {
				t.Errorf("sink %d got %q", i, ev.Status)
			}
		case <-time.After(time.Second):
			t.Fatalf("sink %d received nothing", i)
		}
	}
}

func TestPublishNoSinksIsNoop(t *testing.T) {
	b := newTestBroadcaster()
	// Must not panic or block.
	b.Publish(context.Background(), "ghost", Event{Status: "started"})
}

func TestSlowSinkDoesNotBlockOthers(t *testing.T) {
	b := newTestBroadcaster()
	full := NewChanSink(1)
	full.C <- Event{Status: "stale"} // fill the buffer
	healthy := NewChanSink(8)
	defer b.Register("task-1", full)()
	defer b.Register("task-1", healthy)()

	done := make(chan struct{})
	go func() {
		b.Publish(context.Background(), "task-1", Event{Status: "fresh"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full sink")
	}

	select {
	case ev := <-healthy.C:
		if ev.Status != "fresh" {
			t.Errorf("healthy sink got %q", ev.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("healthy sink starved by slow sibling")
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	b := newTestBroadcaster()
	sink := NewChanSink(8)

	// Never registered: must be safe.
	b.Unregister("task-1", sink)

	detach := b.Register("task-1", sink)
	detach()
	detach() // double detach
	b.Unregister("task-1", sink)

	b.Publish(context.Background(), "task-1", Event{Status: "started"})
	if got := drain(sink); len(got) != 0 {
		t.Fatalf("unregistered sink received %d events", len(got))
	}
}

func TestListenerCount(t *testing.T) {
	b := newTestBroadcaster()
	if b.ListenerCount("k") != 0 {
		t.Fatal("fresh key should have no listeners")
	}
	d1 := b.Register("k", NewChanSink(1))
	d2 := b.Register("k", NewChanSink(1))
	if b.ListenerCount("k") != 2 {
		t.Fatalf("count = %d, want 2", b.ListenerCount("k"))
	}
	d1()
	d2()
	if b.ListenerCount("k") != 0 {
		t.Fatalf("count = %d after detach, want 0", b.ListenerCount("k"))
	}
}
