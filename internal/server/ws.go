package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/unicahq/unica-go/internal/events"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The gateway fronts trusted workspace clients
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleLogStream upgrades to WebSocket and streams every event published on
// the resource's channel. The scope query parameter selects the channel
// family: job (default), workspace or chat.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	resourceID := r.PathValue("resourceID")
	var channel string
	switch r.URL.Query().Get("scope") {
	case "", "job":
		channel = events.JobChannel(resourceID)
	case "workspace":
		channel = events.WorkspaceChannel(resourceID)
	case "chat":
		channel = events.ChatChannel(resourceID)
	default:
		s.errorResponse(w, http.StatusBadRequest, "scope must be job, workspace or chat")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "resource", resourceID, "error", err)
		return
	}
	defer conn.Close()

	sub, unsubscribe := s.bus.Subscribe(channel)
	defer unsubscribe()

	s.logger.Debug("log stream opened", "channel", channel, "remote", conn.RemoteAddr())

	// Reader goroutine: we never expect client messages, but reading is what
	// surfaces the close frame.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("log stream write failed", "channel", channel, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
