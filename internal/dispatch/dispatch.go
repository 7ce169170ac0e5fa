// ABOUTME: Protocol dispatch engine shared by the stdio, HTTP, and SSE transports.
// ABOUTME: Classifies JSON-RPC 2.0 vs legacy requests, routes methods, builds envelopes.

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/radius-gateway/internal/registry"
	"github.com/2389/radius-gateway/internal/runner"
	"github.com/2389/radius-gateway/internal/sessions"
)

// Standard JSON-RPC error codes, plus the server-defined execution error.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeExecutionError = -32000
)

// defaultProtocolVersion is echoed when an initialize request omits one.
const defaultProtocolVersion = "2023-07-01"

// Request is one decoded wire request. The two protocol shapes share a
// struct: a "jsonrpc":"2.0" marker selects the JSON-RPC fields, anything
// else is treated as a legacy messageType request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`

	// Legacy protocol fields
	MessageType string            `json:"messageType"`
	ToolName    string            `json:"toolName"`
	Parameters  map[string]string `json:"parameters"`
	ClientID    string            `json:"clientId"`
	Streaming   bool              `json:"streaming"`
}

// IsJSONRPC reports whether the request uses the JSON-RPC 2.0 shape.
func (r *Request) IsJSONRPC() bool {
	return r.JSONRPC == "2.0"
}

// hasID reports whether the request carried a usable id. A literal null id
// counts as absent, matching the notification rules.
func (r *Request) hasID() bool {
	return len(r.ID) != 0 && string(r.ID) != "null"
}

// Response is a JSON-RPC 2.0 response envelope. Result and Error are
// mutually exclusive; ID always echoes the request id, including null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// LegacyError is the bare error shape used by the legacy protocol and by
// transport-level framing failures outside a JSON-RPC context.
type LegacyError struct {
	Error string `json:"error"`
}

// ToolSpec is the getToolSpec result payload.
type ToolSpec struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"inputSchema"`
	OutputSchema map[string]any `json:"outputSchema"`
}

// legacyMetadata is the getMeta projection: metadata without the version field.
type legacyMetadata struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Tools       []registry.ToolSummary `json:"tools"`
}

// Decode parses one raw JSON object into a Request. Callers own the framing
// error response when this fails; the dispatcher never sees malformed input.
func Decode(raw []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON in request: %w", err)
	}
	return &req, nil
}

// NewResult builds a successful JSON-RPC response echoing the given id.
func NewResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

// NewError builds a JSON-RPC error response echoing the given id.
func NewError(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message}}
}

// Config holds the dispatcher's collaborators.
type Config struct {
	Registry   *registry.Registry
	Runner     runner.Runner
	Capability runner.Capability
	Sessions   *sessions.Hub // optional; enables legacy registerSSEClient
	Logger     *slog.Logger

	ServerName    string
	ServerVersion string
}

// Dispatcher routes decoded requests to method handlers and produces
// response objects. It holds no per-request state and is safe for
// concurrent use across connections.
type Dispatcher struct {
	registry   *registry.Registry
	runner     runner.Runner
	capability runner.Capability
	sessions   *sessions.Hub
	logger     *slog.Logger

	serverName    string
	serverVersion string
}

// New creates a Dispatcher from the given configuration.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("runner is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serverName := cfg.ServerName
	if serverName == "" {
		serverName = "radius-gateway"
	}
	serverVersion := cfg.ServerVersion
	if serverVersion == "" {
		serverVersion = "1.0.0"
	}

	return &Dispatcher{
		registry:      cfg.Registry,
		runner:        cfg.Runner,
		capability:    cfg.Capability,
		sessions:      cfg.Sessions,
		logger:        logger,
		serverName:    serverName,
		serverVersion: serverVersion,
	}, nil
}

// Handle processes one decoded request and returns the response object.
// ok is false when the request was a notification and no response must be
// written. Legacy requests always respond.
func (d *Dispatcher) Handle(ctx context.Context, req *Request) (resp any, ok bool) {
	if req.IsJSONRPC() {
		return d.handleJSONRPC(ctx, req)
	}
	return d.handleLegacy(ctx, req), true
}

func (d *Dispatcher) handleJSONRPC(ctx context.Context, req *Request) (any, bool) {
	d.logger.Debug("JSON-RPC request", "method", req.Method, "id", string(req.ID))

	// Notifications get no response at all
	if !req.hasID() && isNotificationMethod(req.Method) {
		d.logger.Debug("suppressing notification", "method", req.Method)
		return nil, false
	}

	// Normalize a null id so the echo is exact
	id := req.ID
	if !req.hasID() {
		id = nil
	}

	switch req.Method {
	case "initialize":
		return d.handleInitialize(id, req.Params), true
	case "getMetadata":
		return NewResult(id, d.registry.Metadata()), true
	case "getToolSpec":
		return d.handleGetToolSpec(id, req.Params), true
	case "executeTool":
		return d.handleExecuteTool(ctx, id, req.Params), true
	default:
		return NewError(id, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method)), true
	}
}

func isNotificationMethod(method string) bool {
	return strings.HasPrefix(method, "notifications/")
}

// handleInitialize answers the protocol handshake. The metadata summary is
// embedded so stdio clients can discover tools without a second round trip.
func (d *Dispatcher) handleInitialize(id json.RawMessage, rawParams json.RawMessage) *Response {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if len(rawParams) > 0 {
		// A malformed params object keeps the default version rather than failing
		_ = json.Unmarshal(rawParams, &params)
	}
	if params.ProtocolVersion == "" {
		params.ProtocolVersion = defaultProtocolVersion
	}

	meta := d.registry.Metadata()
	result := map[string]any{
		"protocolVersion": params.ProtocolVersion,
		"capabilities": map[string]any{
			"schema": defaultProtocolVersion,
		},
		"serverInfo": map[string]any{
			"name":    d.serverName,
			"version": d.serverVersion,
		},
		"metadata": map[string]any{
			"title":       meta.Title,
			"description": meta.Description,
			"tools":       meta.Tools,
		},
	}
	return NewResult(id, result)
}

func (d *Dispatcher) handleGetToolSpec(id json.RawMessage, rawParams json.RawMessage) *Response {
	var params struct {
		ToolName string `json:"toolName"`
	}
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return NewError(id, CodeInvalidParams, "invalid params")
		}
	}

	desc, ok := d.registry.Lookup(params.ToolName)
	if !ok {
		return NewError(id, CodeInvalidParams, fmt.Sprintf("Unknown tool: %s", params.ToolName))
	}

	return NewResult(id, ToolSpec{
		Name:         desc.Name,
		Description:  desc.Description,
		InputSchema:  desc.InputSchema(),
		OutputSchema: desc.OutputSchema(),
	})
}

func (d *Dispatcher) handleExecuteTool(ctx context.Context, id json.RawMessage, rawParams json.RawMessage) *Response {
	var params struct {
		ToolName   string         `json:"toolName"`
		ToolParams map[string]any `json:"toolParams"`
	}
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return NewError(id, CodeInvalidParams, "invalid params")
		}
	}

	if _, ok := d.registry.Lookup(params.ToolName); !ok {
		return NewError(id, CodeInvalidParams, fmt.Sprintf("Unknown tool: %s", params.ToolName))
	}

	// Parameter faults are detectable from the request alone, so they are
	// invalid-params errors, not execution errors
	if err := d.registry.Validate(params.ToolName, params.ToolParams); err != nil {
		return NewError(id, CodeInvalidParams, err.Error())
	}

	toolParams := make(map[string]string, len(params.ToolParams))
	for k, v := range params.ToolParams {
		if s, isString := v.(string); isString {
			toolParams[k] = s
		}
	}

	d.logger.Info("executing tool", "tool", params.ToolName)
	result := d.runner.Execute(ctx, params.ToolName, toolParams)

	if result.Error != "" {
		// When the CLI is missing entirely the degraded result is returned
		// as a success so clients can render the explanation instead of
		// treating it as a protocol fault
		if !d.capability.Available {
			return NewResult(id, result)
		}
		return NewError(id, CodeExecutionError, result.Error)
	}

	return NewResult(id, result)
}

func (d *Dispatcher) handleLegacy(ctx context.Context, req *Request) any {
	d.logger.Debug("legacy request", "message_type", req.MessageType)

	switch req.MessageType {
	case "registerSSEClient":
		if d.sessions == nil {
			break
		}
		if req.ClientID == "" {
			return LegacyError{Error: "clientId is required"}
		}
		d.sessions.Register(req.ClientID)
		return map[string]string{"status": "registered"}

	case "getMeta":
		meta := d.registry.Metadata()
		return legacyMetadata{
			Title:       meta.Title,
			Description: meta.Description,
			Tools:       meta.Tools,
		}

	case "toolExecution":
		if _, ok := d.registry.Lookup(req.ToolName); !ok {
			return LegacyError{Error: fmt.Sprintf("Unknown tool: %s", req.ToolName)}
		}
		d.logger.Info("executing tool", "tool", req.ToolName, "protocol", "legacy")
		return d.runner.Execute(ctx, req.ToolName, req.Parameters)
	}

	return LegacyError{Error: fmt.Sprintf("Unknown message type: %s", req.MessageType)}
}
