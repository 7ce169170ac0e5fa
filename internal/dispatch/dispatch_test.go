// ABOUTME: Tests for request classification, method routing, and envelopes.
// ABOUTME: Exercises both protocol shapes against a scripted fake runner.

package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/radius-gateway/internal/registry"
	"github.com/2389/radius-gateway/internal/runner"
	"github.com/2389/radius-gateway/internal/sessions"
)

// fakeRunner returns scripted results and records the last invocation.
type fakeRunner struct {
	result     runner.Result
	lastTool   string
	lastParams map[string]string
	calls      int
}

func (f *fakeRunner) Execute(_ context.Context, toolName string, params map[string]string) runner.Result {
	f.calls++
	f.lastTool = toolName
	f.lastParams = params
	return f.result
}

type dispatcherOption func(*Config)

func withCapability(c runner.Capability) dispatcherOption {
	return func(cfg *Config) { cfg.Capability = c }
}

func withSessions(hub *sessions.Hub) dispatcherOption {
	return func(cfg *Config) { cfg.Sessions = hub }
}

func newDispatcher(t *testing.T, fr *fakeRunner, opts ...dispatcherOption) *Dispatcher {
	t.Helper()

	reg, err := registry.New(registry.Options{})
	require.NoError(t, err)

	cfg := Config{
		Registry:   reg,
		Runner:     fr,
		Capability: runner.Capability{Available: true, Path: "/usr/local/bin/rad"},
		Logger:     slog.Default(),
		ServerName: "radius-gateway",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	d, err := New(cfg)
	require.NoError(t, err)
	return d
}

// handleRaw decodes and dispatches one wire request.
func handleRaw(t *testing.T, d *Dispatcher, raw string) (any, bool) {
	t.Helper()
	req, err := Decode([]byte(raw))
	require.NoError(t, err)
	return d.Handle(context.Background(), req)
}

// asJSON round-trips a response through encoding/json so tests see the exact
// wire shape.
func asJSON(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestInitialize(t *testing.T) {
	d := newDispatcher(t, &fakeRunner{})

	resp, ok := handleRaw(t, d,
		`{"jsonrpc":"2.0","id":"1","method":"initialize","params":{"protocolVersion":"2024-11-05"}}`)
	require.True(t, ok)

	m := asJSON(t, resp)
	assert.Equal(t, "2.0", m["jsonrpc"])
	assert.Equal(t, "1", m["id"])

	result := m["result"].(map[string]any)
	assert.Equal(t, "2024-11-05", result["protocolVersion"])

	serverInfo := result["serverInfo"].(map[string]any)
	assert.NotEmpty(t, serverInfo["name"])

	// Metadata is embedded so stdio clients can discover tools immediately
	metadata := result["metadata"].(map[string]any)
	assert.Equal(t, "Radius MCP Server", metadata["title"])
	assert.Len(t, metadata["tools"], 4)
}

func TestInitialize_DefaultProtocolVersion(t *testing.T) {
	d := newDispatcher(t, &fakeRunner{})

	resp, _ := handleRaw(t, d, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	result := asJSON(t, resp)["result"].(map[string]any)
	assert.Equal(t, "2023-07-01", result["protocolVersion"])
}

func TestGetMetadata(t *testing.T) {
	d := newDispatcher(t, &fakeRunner{})

	resp, ok := handleRaw(t, d, `{"jsonrpc":"2.0","id":7,"method":"getMetadata"}`)
	require.True(t, ok)

	m := asJSON(t, resp)
	assert.Equal(t, float64(7), m["id"])

	result := m["result"].(map[string]any)
	assert.Equal(t, "Radius MCP Server", result["title"])
	assert.Equal(t, "1.0.0", result["version"])
	assert.Len(t, result["tools"], 4)
}

func TestGetMetadata_GetToolSpecRoundTrip(t *testing.T) {
	d := newDispatcher(t, &fakeRunner{})

	resp, _ := handleRaw(t, d, `{"jsonrpc":"2.0","id":1,"method":"getMetadata"}`)
	tools := asJSON(t, resp)["result"].(map[string]any)["tools"].([]any)
	require.NotEmpty(t, tools)

	for _, raw := range tools {
		name := raw.(map[string]any)["name"].(string)

		params, err := json.Marshal(map[string]string{"toolName": name})
		require.NoError(t, err)
		specResp, ok := handleRaw(t, d,
			`{"jsonrpc":"2.0","id":2,"method":"getToolSpec","params":`+string(params)+`}`)
		require.True(t, ok)

		m := asJSON(t, specResp)
		require.NotContains(t, m, "error", "getToolSpec(%s) should succeed", name)
		result := m["result"].(map[string]any)
		assert.Equal(t, name, result["name"])
		assert.Contains(t, result, "inputSchema")
		assert.Contains(t, result, "outputSchema")
	}
}

func TestGetToolSpec_UnknownTool(t *testing.T) {
	d := newDispatcher(t, &fakeRunner{})

	resp, _ := handleRaw(t, d,
		`{"jsonrpc":"2.0","id":3,"method":"getToolSpec","params":{"toolName":"radius_restart"}}`)

	m := asJSON(t, resp)
	errObj := m["error"].(map[string]any)
	assert.Equal(t, float64(CodeInvalidParams), errObj["code"])
	assert.Contains(t, errObj["message"], "Unknown tool")
}

func TestMethodNotFound(t *testing.T) {
	d := newDispatcher(t, &fakeRunner{})

	for _, method := range []string{"tools/list", "shutdown", "getTools", ""} {
		resp, ok := handleRaw(t, d,
			`{"jsonrpc":"2.0","id":9,"method":"`+method+`"}`)
		require.True(t, ok, "method %q", method)

		errObj := asJSON(t, resp)["error"].(map[string]any)
		assert.Equal(t, float64(CodeMethodNotFound), errObj["code"], "method %q", method)
	}
}

func TestNotificationsSuppressed(t *testing.T) {
	d := newDispatcher(t, &fakeRunner{})

	tests := []struct {
		name       string
		raw        string
		suppressed bool
	}{
		{
			name:       "no id with notifications prefix",
			raw:        `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			suppressed: true,
		},
		{
			name:       "null id with notifications prefix",
			raw:        `{"jsonrpc":"2.0","id":null,"method":"notifications/cancelled"}`,
			suppressed: true,
		},
		{
			name:       "notifications prefix but id present",
			raw:        `{"jsonrpc":"2.0","id":5,"method":"notifications/initialized"}`,
			suppressed: false,
		},
		{
			name:       "no id but ordinary method",
			raw:        `{"jsonrpc":"2.0","method":"getMetadata"}`,
			suppressed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, ok := handleRaw(t, d, tt.raw)
			if tt.suppressed {
				assert.False(t, ok)
				assert.Nil(t, resp)
			} else {
				assert.True(t, ok)
				assert.NotNil(t, resp)
			}
		})
	}
}

func TestExecuteTool_Success(t *testing.T) {
	fr := &fakeRunner{result: runner.Result{Output: "0.40.0"}}
	d := newDispatcher(t, fr)

	resp, ok := handleRaw(t, d,
		`{"jsonrpc":"2.0","id":"42","method":"executeTool","params":{"toolName":"radius_version","toolParams":{}}}`)
	require.True(t, ok)

	m := asJSON(t, resp)
	assert.Equal(t, "42", m["id"])
	result := m["result"].(map[string]any)
	assert.Equal(t, "0.40.0", result["output"])

	assert.Equal(t, "radius_version", fr.lastTool)
}

func TestExecuteTool_PassesParams(t *testing.T) {
	fr := &fakeRunner{result: runner.Result{Output: "ok"}}
	d := newDispatcher(t, fr)

	_, _ = handleRaw(t, d,
		`{"jsonrpc":"2.0","id":1,"method":"executeTool","params":{"toolName":"radius_show_application","toolParams":{"name":"myapp","namespace":"prod"}}}`)

	assert.Equal(t, map[string]string{"name": "myapp", "namespace": "prod"}, fr.lastParams)
}

func TestExecuteTool_UnknownTool(t *testing.T) {
	fr := &fakeRunner{}
	d := newDispatcher(t, fr)

	resp, _ := handleRaw(t, d,
		`{"jsonrpc":"2.0","id":2,"method":"executeTool","params":{"toolName":"radius_restart","toolParams":{}}}`)

	errObj := asJSON(t, resp)["error"].(map[string]any)
	assert.Equal(t, float64(CodeInvalidParams), errObj["code"])
	assert.Zero(t, fr.calls, "runner must not run for unknown tools")
}

func TestExecuteTool_MissingRequiredParam(t *testing.T) {
	fr := &fakeRunner{}
	d := newDispatcher(t, fr)

	resp, _ := handleRaw(t, d,
		`{"jsonrpc":"2.0","id":"2","method":"executeTool","params":{"toolName":"radius_show_application","toolParams":{}}}`)

	m := asJSON(t, resp)
	assert.Equal(t, "2", m["id"])
	errObj := m["error"].(map[string]any)
	assert.Equal(t, float64(CodeInvalidParams), errObj["code"])
	assert.Contains(t, errObj["message"], "required")
	assert.Zero(t, fr.calls, "runner must not run for invalid params")
}

func TestExecuteTool_ExecutionError(t *testing.T) {
	fr := &fakeRunner{result: runner.Result{
		Output: "Command failed with exit code 1: no such app",
		Error:  "Command failed with exit code 1: no such app",
	}}
	d := newDispatcher(t, fr)

	resp, _ := handleRaw(t, d,
		`{"jsonrpc":"2.0","id":3,"method":"executeTool","params":{"toolName":"radius_show_application","toolParams":{"name":"ghost"}}}`)

	errObj := asJSON(t, resp)["error"].(map[string]any)
	assert.Equal(t, float64(CodeExecutionError), errObj["code"])
	assert.Contains(t, errObj["message"], "exit code 1")
}

func TestExecuteTool_DegradedCapability(t *testing.T) {
	fr := &fakeRunner{result: runner.Result{
		Output: "ERROR: Cannot execute radius_version because 'rad' command is not available in PATH.",
		Error:  "Radius CLI ('rad') not found",
	}}
	d := newDispatcher(t, fr, withCapability(runner.Capability{Available: false, Reason: "not found"}))

	resp, _ := handleRaw(t, d,
		`{"jsonrpc":"2.0","id":4,"method":"executeTool","params":{"toolName":"radius_version","toolParams":{}}}`)

	// Degraded results come back as a success so clients can render them
	m := asJSON(t, resp)
	require.NotContains(t, m, "error")
	result := m["result"].(map[string]any)
	assert.Equal(t, "Radius CLI ('rad') not found", result["error"])
	assert.Contains(t, result["output"], "not available in PATH")
}

func TestIDEcho(t *testing.T) {
	fr := &fakeRunner{result: runner.Result{Output: "ok"}}
	d := newDispatcher(t, fr)

	tests := []struct {
		name string
		id   string
	}{
		{"string id", `"abc-123"`},
		{"numeric id", `17`},
		{"zero id", `0`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := handleRaw(t, d,
				`{"jsonrpc":"2.0","id":`+tt.id+`,"method":"executeTool","params":{"toolName":"radius_version","toolParams":{}}}`)

			raw, err := json.Marshal(resp)
			require.NoError(t, err)
			var echo struct {
				ID json.RawMessage `json:"id"`
			}
			require.NoError(t, json.Unmarshal(raw, &echo))
			assert.JSONEq(t, tt.id, string(echo.ID))
		})
	}
}

func TestIDEcho_NullForMissingID(t *testing.T) {
	d := newDispatcher(t, &fakeRunner{})

	resp, ok := handleRaw(t, d, `{"jsonrpc":"2.0","method":"getMetadata"}`)
	require.True(t, ok)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"id":null`)
}

func TestLegacy_GetMeta(t *testing.T) {
	d := newDispatcher(t, &fakeRunner{})

	resp, ok := handleRaw(t, d, `{"messageType":"getMeta"}`)
	require.True(t, ok)

	m := asJSON(t, resp)
	assert.NotContains(t, m, "jsonrpc", "legacy responses carry no envelope")
	assert.Equal(t, "Radius MCP Server", m["title"])
	assert.NotEmpty(t, m["description"])
	assert.Len(t, m["tools"], 4)
	assert.NotContains(t, m, "version", "legacy projection omits version")
}

func TestLegacy_ToolExecution(t *testing.T) {
	fr := &fakeRunner{result: runner.Result{Output: "deployed"}}
	d := newDispatcher(t, fr)

	resp, ok := handleRaw(t, d,
		`{"messageType":"toolExecution","toolName":"radius_deploy_application","parameters":{"file":"app.bicep"}}`)
	require.True(t, ok)

	m := asJSON(t, resp)
	assert.Equal(t, "deployed", m["output"])
	assert.NotContains(t, m, "jsonrpc")
	assert.Equal(t, map[string]string{"file": "app.bicep"}, fr.lastParams)
}

func TestLegacy_ToolExecutionUnknownTool(t *testing.T) {
	d := newDispatcher(t, &fakeRunner{})

	resp, _ := handleRaw(t, d, `{"messageType":"toolExecution","toolName":"radius_restart"}`)

	m := asJSON(t, resp)
	assert.Contains(t, m["error"], "Unknown tool")
}

func TestLegacy_UnknownMessageType(t *testing.T) {
	d := newDispatcher(t, &fakeRunner{})

	for _, raw := range []string{
		`{"messageType":"subscribe"}`,
		`{"foo":"bar"}`,
		`{"jsonrpc":"1.0","method":"getMetadata"}`,
	} {
		resp, ok := handleRaw(t, d, raw)
		require.True(t, ok, "legacy always responds: %s", raw)
		m := asJSON(t, resp)
		assert.Contains(t, m["error"], "Unknown message type", "request %s", raw)
	}
}

func TestLegacy_RegisterSSEClient(t *testing.T) {
	hub := sessions.NewHub(4, slog.Default())
	d := newDispatcher(t, &fakeRunner{}, withSessions(hub))

	resp, ok := handleRaw(t, d, `{"messageType":"registerSSEClient","clientId":"client-9"}`)
	require.True(t, ok)

	m := asJSON(t, resp)
	assert.Equal(t, "registered", m["status"])
	assert.Equal(t, 1, hub.Len())

	// Registering again is idempotent
	_, _ = handleRaw(t, d, `{"messageType":"registerSSEClient","clientId":"client-9"}`)
	assert.Equal(t, 1, hub.Len())
}

func TestLegacy_RegisterSSEClientMissingID(t *testing.T) {
	hub := sessions.NewHub(4, slog.Default())
	d := newDispatcher(t, &fakeRunner{}, withSessions(hub))

	resp, _ := handleRaw(t, d, `{"messageType":"registerSSEClient"}`)
	m := asJSON(t, resp)
	assert.Contains(t, m["error"], "clientId")
}

func TestLegacy_RegisterSSEClientWithoutHub(t *testing.T) {
	// The stdio dispatcher has no session hub; registration is not a
	// recognized message there
	d := newDispatcher(t, &fakeRunner{})

	resp, _ := handleRaw(t, d, `{"messageType":"registerSSEClient","clientId":"client-9"}`)
	m := asJSON(t, resp)
	assert.Contains(t, m["error"], "Unknown message type")
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{"jsonrpc":"2.0",`))
	assert.Error(t, err)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	reg, err := registry.New(registry.Options{})
	require.NoError(t, err)

	_, err = New(Config{Runner: &fakeRunner{}})
	assert.Error(t, err)

	_, err = New(Config{Registry: reg})
	assert.Error(t, err)
}
