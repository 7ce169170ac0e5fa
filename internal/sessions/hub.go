// ABOUTME: Thread-safe registry of SSE client sessions and their message queues.
// ABOUTME: Register is idempotent; Push after Unregister is a silent no-op.

package sessions

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// DefaultQueueSize bounds a session's pending messages when no size is configured.
const DefaultQueueSize = 64

// Session is one client's bounded FIFO of pending outbound messages. The
// owning SSE connection is the only reader; closing happens exactly once via
// the hub.
type Session struct {
	ClientID string

	queue chan json.RawMessage

	closeMu sync.Mutex // protects closed and queue close
	closed  bool
}

// Messages returns the receive side of the session queue. The channel is
// closed when the session is unregistered.
func (s *Session) Messages() <-chan json.RawMessage {
	return s.queue
}

// send enqueues without blocking. Returns false if the session is closed or
// the queue is full.
func (s *Session) send(msg json.RawMessage) bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- msg:
		return true
	default:
		return false
	}
}

// close closes the queue exactly once. Safe to call multiple times.
func (s *Session) close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
}

// Hub maps client ids to sessions. The mutex guards only the map itself;
// queue operations use the per-session close guard so registration cannot
// race with a push or a close.
type Hub struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	queueSize int
	logger    *slog.Logger
}

// NewHub creates an empty session hub.
func NewHub(queueSize int, logger *slog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions:  make(map[string]*Session),
		queueSize: queueSize,
		logger:    logger,
	}
}

// Register returns the session for clientID, creating it if needed.
// Re-registering an existing id returns the same session.
func (h *Hub) Register(clientID string) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess, ok := h.sessions[clientID]; ok {
		return sess
	}

	sess := &Session{
		ClientID: clientID,
		queue:    make(chan json.RawMessage, h.queueSize),
	}
	h.sessions[clientID] = sess
	h.logger.Debug("SSE session registered", "client_id", clientID)
	return sess
}

// Push enqueues a message for the named client. Unknown ids and full queues
// are silent no-ops; the return value reports whether the message was queued.
func (h *Hub) Push(clientID string, msg json.RawMessage) bool {
	h.mu.Lock()
	sess, ok := h.sessions[clientID]
	h.mu.Unlock()
	if !ok {
		return false
	}

	if !sess.send(msg) {
		h.logger.Warn("dropping SSE message", "client_id", clientID)
		return false
	}
	return true
}

// Unregister removes the session and closes its queue. Safe to call for
// unknown ids and safe to repeat.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	sess, ok := h.sessions[clientID]
	delete(h.sessions, clientID)
	h.mu.Unlock()

	if ok {
		sess.close()
		h.logger.Debug("SSE session unregistered", "client_id", clientID)
	}
}

// Len reports the number of live sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
