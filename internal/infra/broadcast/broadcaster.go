// File: internal/infra/broadcast/broadcaster.go
package broadcast

import (
	"context"
	"sync"

	"screenshot-ai-assistant/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Event is one progress update for a task or user key.
type Event struct {
	Status       string         `json:"status"`
	Step         string         `json:"step,omitempty"`
	Message      string         `json:"message"`
	CurrentImage int            `json:"current_image,omitempty"`
	TotalImages  int            `json:"total_images,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// Sink receives events for a key. Send must not block forever; the
// broadcaster protects itself with a non-blocking channel write anyway.
type Sink interface {
	Send(event Event) bool
}

// ChanSink adapts a buffered channel to a Sink. A full channel drops the
// event rather than stalling the publisher.
type ChanSink struct {
	C chan Event
}

func NewChanSink(buffer int) *ChanSink {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChanSink{C: make(chan Event, buffer)}
}

func (s *ChanSink) Send(event Event) bool {
	select {
	case s.C <- event:
		return true
	default:
		return false
	}
}

// Broadcaster is a per-key registry of live listeners. Keys are task IDs for
// task progress or user IDs for account-scoped advisories. Delivery is
// best-effort and unbuffered by the registry itself: events published with no
// registered sink are gone, late subscribers read the persisted task instead.
type Broadcaster struct {
	mu    sync.RWMutex
	sinks map[string][]Sink
	log   *zerolog.Logger
}

func NewBroadcaster(logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{sinks: make(map[string][]Sink), log: logger}
}

// Register adds a sink under key and returns an idempotent detach func.
func (b *Broadcaster) Register(key string, sink Sink) func() {
	b.mu.Lock()
	b.sinks[key] = append(b.sinks[key], sink)
	b.mu.Unlock()
	b.log.Debug().Str("key", key).Msg("sink registered")
	return func() { b.Unregister(key, sink) }
}

// Unregister removes a sink. Safe to call for sinks never registered or
// already removed.
func (b *Broadcaster) Unregister(key string, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.sinks[key]
	for i, s := range list {
		if s == sink {
			b.sinks[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.sinks[key]) == 0 {
		delete(b.sinks, key)
	}
}

// Publish delivers event to every sink currently registered under key.
// A slow or disconnected sink only loses its own copy; publish order per key
// follows call order since each task has a single sequential publisher.
func (b *Broadcaster) Publish(ctx context.Context, key string, event Event) {
	b.mu.RLock()
	list := make([]Sink, len(b.sinks[key]))
	copy(list, b.sinks[key])
	b.mu.RUnlock()

	if len(list) == 0 {
		return
	}
	delivered := 0
	for _, sink := range list {
		if sink.Send(event) {
			delivered++
		} else {
			metrics.IncBroadcastDropped()
		}
	}
	metrics.AddBroadcastDelivered(delivered)
	b.log.Trace().Str("key", key).Str("status", event.Status).Int("sinks", delivered).Msg("event published")
}

// ListenerCount is used by tests and the health endpoint.
func (b *Broadcaster) ListenerCount(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sinks[key])
}
