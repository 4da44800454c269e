// Package events implements the in-process pub/sub bus that fans indexing and
// chat notifications out to gateway subscribers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Kind names the event variants carried on the bus.
type Kind string

const (
	KindJobUpdate Kind = "job_update"
	KindChatEvent Kind = "chat_event"
	KindLogLine   Kind = "log_line"
)

// Event is one notification published to a channel. Payload is the
// already-serialized domain object (job snapshot, chat event, log line).
type Event struct {
	Channel string    `json:"channel"`
	Kind    Kind      `json:"kind"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// JobChannel returns the per-job event channel name.
func JobChannel(jobID string) string { return "job:" + jobID }

// WorkspaceChannel returns the workspace-wide event channel name.
func WorkspaceChannel(workspaceID string) string { return "workspace:" + workspaceID }

// ChatChannel returns the per-chat event channel name.
func ChatChannel(chatID string) string { return "chat:" + chatID }

// Backend forwards events between bus instances. The default loopback backend
// does nothing; a broker-backed implementation would publish remotely and feed
// received events into Dispatch.
type Backend interface {
	// Forward sends a locally published event to remote bus instances.
	Forward(ctx context.Context, ev Event) error
	// Name identifies the backend in stats output.
	Name() string
	// Close releases backend resources.
	Close() error
}

// LoopbackBackend is the single-process backend: local fan-out already reaches
// every subscriber, so forwarding is a no-op.
type LoopbackBackend struct{}

func (LoopbackBackend) Forward(context.Context, Event) error { return nil }
func (LoopbackBackend) Name() string                         { return "loopback" }
func (LoopbackBackend) Close() error                         { return nil }

// subscriber is one registered listener on a channel.
type subscriber struct {
	id int
	ch chan Event
}

// Bus is a channel-keyed fan-out event bus. Publishing never blocks; slow
// subscribers drop events once their buffer fills.
type Bus struct {
	mu      sync.RWMutex
	nextID  int
	subs    map[string][]subscriber
	backend Backend
	logger  *slog.Logger
	closed  bool

	dropped atomic.Int64
}

const subscriberBuffer = 64

// NewBus creates a bus with the given backend. A nil backend defaults to
// loopback.
func NewBus(backend Backend, logger *slog.Logger) *Bus {
	if backend == nil {
		backend = LoopbackBackend{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:    map[string][]subscriber{},
		backend: backend,
		logger:  logger,
	}
}

// Subscribe registers a listener on a channel. The returned function
// unregisters it and closes the event channel; it is safe to call twice.
func (b *Bus) Subscribe(channel string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscriber{id: b.nextID, ch: make(chan Event, subscriberBuffer)}
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[channel] = append(b.subs[channel], sub)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.removeLocked(channel, sub.id)
		})
	}
	return sub.ch, unsubscribe
}

// removeLocked drops a subscriber and closes its channel. Caller holds b.mu.
func (b *Bus) removeLocked(channel string, id int) {
	subs := b.subs[channel]
	for i, s := range subs {
		if s.id == id {
			b.subs[channel] = append(subs[:i], subs[i+1:]...)
			close(s.ch)
			break
		}
	}
	if len(b.subs[channel]) == 0 {
		delete(b.subs, channel)
	}
}

// Publish delivers an event to every subscriber of its channel and forwards it
// to the backend. Callers persist state changes before publishing so that a
// reader who polls after the event sees a state at least as new.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.Dispatch(ev)

	if err := b.backend.Forward(ctx, ev); err != nil {
		b.logger.Warn("event backend forward failed",
			"channel", ev.Channel, "kind", ev.Kind, "error", err)
	}
}

// Dispatch fans an event out to local subscribers only. Backends call this
// for events received from remote instances.
func (b *Bus) Dispatch(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[ev.Channel] {
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
			b.logger.Warn("dropping event for slow subscriber",
				"channel", ev.Channel, "kind", ev.Kind)
		}
	}
}

// Stats describes the bus's current shape.
type Stats struct {
	Channels    int    `json:"channels"`
	Subscribers int    `json:"subscribers"`
	Dropped     int64  `json:"dropped"`
	Backend     string `json:"backend"`
}

// Stats returns a snapshot of channel and subscriber counts.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, subs := range b.subs {
		total += len(subs)
	}
	return Stats{
		Channels:    len(b.subs),
		Subscribers: total,
		Dropped:     b.dropped.Load(),
		Backend:     b.backend.Name(),
	}
}

// Close shuts the bus down: every subscriber channel is closed and further
// subscriptions return closed channels.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for channel, subs := range b.subs {
		for _, s := range subs {
			close(s.ch)
		}
		delete(b.subs, channel)
	}
	return b.backend.Close()
}
