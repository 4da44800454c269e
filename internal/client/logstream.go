package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/unicahq/unica-go/internal/events"
)

// ConnState is the consumer-visible state of a log stream connection.
type ConnState string

const (
	StateConnecting ConnState = "connecting"
	StateOpen       ConnState = "open"
	StateClosed     ConnState = "closed"
	StateError      ConnState = "error"
)

const (
	defaultReconnectBackoff = 3 * time.Second
	defaultRingSize         = 256
)

// LogStream subscribes to a resource's event channel over WebSocket and
// buffers received events in a fixed-size ring. The connection reconnects
// after a backoff until Close is called.
type LogStream struct {
	url      string
	backoff  time.Duration
	ringSize int
	onEvent  func(events.Event)

	mu     sync.Mutex
	state  ConnState
	ring   []events.Event
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

// NewLogStream creates a stream for one resource. endpoint is the server's
// HTTP URL; scope selects the channel family (job, workspace, chat), empty
// means job. onEvent may be nil.
func NewLogStream(endpoint, resourceID, scope string, onEvent func(events.Event)) *LogStream {
	wsEndpoint := endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)
	u := wsEndpoint + "/api/logs/" + resourceID
	if scope != "" {
		u += "?scope=" + scope
	}

	return &LogStream{
		url:      u,
		backoff:  defaultReconnectBackoff,
		ringSize: defaultRingSize,
		onEvent:  onEvent,
		state:    StateConnecting,
		done:     make(chan struct{}),
	}
}

// Run connects and reads until Close or context cancellation. Connection
// failures and broken reads move the state to error, wait out the backoff and
// reconnect.
func (s *LogStream) Run(ctx context.Context) {
	defer s.setState(StateClosed)

	for {
		if s.isClosed() || ctx.Err() != nil {
			return
		}

		s.setState(StateConnecting)
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, resp, err := dialer.DialContext(ctx, s.url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			s.setState(StateError)
			if !s.sleep(ctx) {
				return
			}
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.state = StateOpen
		s.mu.Unlock()

		s.readLoop(conn)
		conn.Close()

		s.mu.Lock()
		s.conn = nil
		closed := s.closed
		if !closed {
			s.state = StateError
		}
		s.mu.Unlock()
		if closed {
			return
		}
		if !s.sleep(ctx) {
			return
		}
	}
}

// readLoop consumes events until the connection breaks.
func (s *LogStream) readLoop(conn *websocket.Conn) {
	for {
		var ev events.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		s.append(ev)
		if s.onEvent != nil {
			s.onEvent(ev)
		}
	}
}

// append stores an event, evicting the oldest when the ring is full.
func (s *LogStream) append(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring = append(s.ring, ev)
	if len(s.ring) > s.ringSize {
		s.ring = s.ring[len(s.ring)-s.ringSize:]
	}
}

// Events returns a snapshot of the buffered events, oldest first.
func (s *LogStream) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.ring...)
}

// State returns the current connection state.
func (s *LogStream) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close unsubscribes: the stream stops reconnecting and Run returns.
func (s *LogStream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	close(s.done)
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (s *LogStream) setState(state ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed && state != StateClosed {
		return
	}
	s.state = state
}

func (s *LogStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// sleep waits out the reconnect backoff. Returns false when the stream was
// closed or the context canceled while waiting.
func (s *LogStream) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	case <-time.After(s.backoff):
		return true
	}
}
