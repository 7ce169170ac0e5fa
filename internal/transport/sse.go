// ABOUTME: SSE streaming handler: long-lived GET connections with a session
// ABOUTME: queue, connection event, data frames, and keep-alive comments.

package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// connectionEvent is the first frame on every SSE stream.
type connectionEvent struct {
	Status   string `json:"status"`
	ClientID string `json:"clientId"`
}

// handleSSE owns one streaming connection: it registers a session, replays
// queued messages as data frames, and emits a comment frame on every idle
// keep-alive window. The session is unregistered on any exit path.
func (h *HTTP) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		h.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if h.hub == nil {
		h.sendJSONError(w, http.StatusInternalServerError, "streaming not enabled")
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = "client-" + uuid.New().String()
	}

	sess := h.hub.Register(clientID)
	defer h.hub.Unregister(clientID)

	h.logger.Info("SSE stream opened", "client_id", clientID, "remote", r.RemoteAddr)
	defer h.logger.Info("SSE stream closed", "client_id", clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")

	payload, err := json.Marshal(connectionEvent{Status: "connected", ClientID: clientID})
	if err != nil {
		return
	}
	if _, err := fmt.Fprintf(w, "event: connection\ndata: %s\n\n", payload); err != nil {
		return
	}
	flusher.Flush()

	timer := time.NewTimer(h.keepAlive)
	defer timer.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case msg, open := <-sess.Messages():
			if !open {
				// Session was closed from the hub side
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				h.logger.Warn("SSE write failed", "client_id", clientID, "error", err)
				return
			}
			flusher.Flush()

		case <-timer.C:
			// Comment frame keeps intermediaries from closing the idle stream
			if _, err := fmt.Fprint(w, ":\n\n"); err != nil {
				h.logger.Warn("SSE keep-alive failed", "client_id", clientID, "error", err)
				return
			}
			flusher.Flush()
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(h.keepAlive)
	}
}
