// ABOUTME: HTTP transport for the MCP endpoints: POST request/response,
// ABOUTME: OPTIONS preflight, health probe, and CORS headers on every reply.

package transport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/radius-gateway/internal/dispatch"
	"github.com/2389/radius-gateway/internal/sessions"
)

// MaxRequestBodySize is the maximum allowed size for POST bodies (1MB).
const MaxRequestBodySize = 1 << 20

// HTTPConfig holds configuration for the HTTP transport.
type HTTPConfig struct {
	Dispatcher        *dispatch.Dispatcher
	Hub               *sessions.Hub
	Logger            *slog.Logger
	KeepAliveInterval time.Duration
}

// HTTP serves the /mcp and /mcp2 endpoints: POST for request/response,
// GET for SSE streams, OPTIONS for CORS preflight.
type HTTP struct {
	dispatcher *dispatch.Dispatcher
	hub        *sessions.Hub
	logger     *slog.Logger
	keepAlive  time.Duration
}

// NewHTTP creates the HTTP transport.
func NewHTTP(cfg HTTPConfig) *HTTP {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keepAlive := cfg.KeepAliveInterval
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &HTTP{
		dispatcher: cfg.Dispatcher,
		hub:        cfg.Hub,
		logger:     logger,
		keepAlive:  keepAlive,
	}
}

// RegisterRoutes registers the MCP endpoints on the given ServeMux.
// /mcp and /mcp2 are equivalent.
func (h *HTTP) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp", h.recoverWrap(h.handleMCP))
	mux.HandleFunc("/mcp2", h.recoverWrap(h.handleMCP))
	mux.HandleFunc("/health", h.handleHealth)
}

// recoverWrap converts handler panics into 500 responses so one bad request
// cannot take down the accept loop.
func (h *HTTP) recoverWrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("handler panic", "path", r.URL.Path, "panic", rec)
				h.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next(w, r)
	}
}

func (h *HTTP) handleMCP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	h.logger.Debug("request", "remote", r.RemoteAddr, "method", r.Method, "path", r.URL.Path)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		h.handleSSE(w, r)
	case http.MethodPost:
		h.handlePost(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost processes one JSON request body and writes the dispatched
// response, or routes it to an SSE session when the client asked for
// streaming delivery.
func (h *HTTP) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		h.sendJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		h.sendJSONError(w, http.StatusBadRequest, "request body too large")
		return
	}

	req, err := dispatch.Decode(body)
	if err != nil {
		h.logger.Warn("invalid request body", "error", err)
		h.sendJSONError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	resp, ok := h.dispatcher.Handle(r.Context(), req)
	if !ok {
		// Notification: accepted, nothing to send back
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Streaming delivery: hand the response to the client's SSE session and
	// acknowledge over HTTP
	if req.Streaming && req.ClientID != "" && h.hub != nil {
		if data, err := json.Marshal(resp); err == nil && h.hub.Push(req.ClientID, data) {
			h.sendJSON(w, http.StatusOK, map[string]string{"status": "streaming"})
			return
		}
	}

	h.sendJSON(w, http.StatusOK, resp)
}

func (h *HTTP) handleHealth(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	h.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTP) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

func (h *HTTP) sendJSONError(w http.ResponseWriter, status int, message string) {
	h.sendJSON(w, status, dispatch.LegacyError{Error: message})
}

// setCORSHeaders applies the headers every MCP response carries, matching
// what browser-based clients expect from the gateway.
func setCORSHeaders(w http.ResponseWriter) {
	header := w.Header()
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("X-Accel-Buffering", "no")
}
