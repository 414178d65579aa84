// Package messaging provides the live session-viewer feed: newly
// ingested batches are pushed to any websocket clients watching that
// session while the visitor is still on the page.
package messaging

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
)

// liveMessage is the wire frame pushed to viewers.
type liveMessage struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"sessionId"`
	Events    []replay.RecordedEvent `json:"events,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

type liveClient struct {
	conn *websocket.Conn
	send chan []byte
}

// LiveHub manages session-scoped websocket viewers.
type LiveHub struct {
	sessions     map[string][]*liveClient
	mu           sync.Mutex
	logger       *logging.ChanneledLogger
	maxClients   int
	writeTimeout time.Duration
}

// NewLiveHub creates the hub.
func NewLiveHub(maxClientsPerSession int, writeTimeout time.Duration, logger *logging.ChanneledLogger) *LiveHub {
	return &LiveHub{
		sessions:     make(map[string][]*liveClient),
		logger:       logger,
		maxClients:   maxClientsPerSession,
		writeTimeout: writeTimeout,
	}
}

// Subscribe registers a websocket connection as a viewer of a session
// and services it until the connection drops. It blocks for the life
// of the connection.
func (h *LiveHub) Subscribe(sessionID string, conn *websocket.Conn) {
	client := &liveClient{
		conn: conn,
		send: make(chan []byte, 16),
	}

	h.mu.Lock()
	if len(h.sessions[sessionID]) >= h.maxClients {
		h.mu.Unlock()
		h.logger.Live().Warn("Viewer limit reached for session", "sessionId", sessionID)
		conn.Close()
		return
	}
	h.sessions[sessionID] = append(h.sessions[sessionID], client)
	count := len(h.sessions[sessionID])
	h.mu.Unlock()

	h.logger.Live().Debug("Live viewer registered", "sessionId", sessionID, "clientCount", count)

	go h.writeLoop(client)

	// Drain the read side so close/ping frames are processed; viewers
	// never send application data.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(sessionID, client)
}

func (h *LiveHub) writeLoop(client *liveClient) {
	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
	client.conn.Close()
}

func (h *LiveHub) remove(sessionID string, client *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.sessions[sessionID]
	remaining := make([]*liveClient, 0, len(clients))
	for _, c := range clients {
		if c != client {
			remaining = append(remaining, c)
		}
	}
	if len(remaining) == 0 {
		delete(h.sessions, sessionID)
	} else {
		h.sessions[sessionID] = remaining
	}
	close(client.send)

	h.logger.Live().Debug("Live viewer unregistered", "sessionId", sessionID)
}

// Broadcast pushes a freshly ingested batch to every viewer of the
// session. Slow viewers are dropped rather than backpressuring
// ingestion.
func (h *LiveHub) Broadcast(sessionID string, events []replay.RecordedEvent) {
	if len(events) == 0 {
		return
	}

	msg, err := json.Marshal(liveMessage{
		Type:      "events",
		SessionID: sessionID,
		Events:    events,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Live().Error("Failed to marshal live message", "error", err.Error(), "sessionId", sessionID)
		return
	}

	// The fan-out happens under the lock so a disconnecting viewer's
	// channel close can never race a send. Sends are non-blocking, so
	// ingestion is never held up.
	h.mu.Lock()
	clients := h.sessions[sessionID]
	viewers := len(clients)
	delivered := 0
	for _, client := range clients {
		select {
		case client.send <- msg:
			delivered++
		default:
			// Buffer full: viewer is too slow, let its write loop die.
			client.conn.Close()
		}
	}
	h.mu.Unlock()

	if viewers == 0 {
		return
	}

	h.logger.LogLiveEvent("events", sessionID, delivered)
}

// ViewerCount reports how many clients are watching a session.
func (h *LiveHub) ViewerCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID])
}
