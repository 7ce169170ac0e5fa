// Package dispatch implements the protocol engine shared by every transport.
//
// # Overview
//
// One Dispatcher serves the stdio, HTTP, and HTTP+SSE front ends. Transports
// frame bytes; the dispatcher owns classification, routing, and the response
// envelope, so the three transports stay bit-compatible.
//
// # Request Lifecycle
//
// Each request moves through a small per-request state machine:
//
//	Received -> Classified{JSON-RPC | Legacy} -> Routed{method} -> Responded | Suppressed
//
// Suppressed is reached only by JSON-RPC notifications (no id, method in the
// notifications/ namespace). Legacy requests always respond.
//
// # JSON-RPC Methods
//
//   - initialize: protocol version echo, capability block, serverInfo, and an
//     embedded metadata summary
//   - getMetadata: catalog title, description, tool listing, version
//   - getToolSpec: input/output schema for one tool (-32602 when unknown)
//   - executeTool: synchronous tool execution (-32602 unknown tool or bad
//     params, -32000 execution failure)
//
// Any other method answers -32601.
//
// # Legacy Messages
//
// The pre-JSON-RPC variant routes on a top-level messageType field:
// registerSSEClient, getMeta, and toolExecution. Responses are bare objects
// with no envelope; unknown types answer {"error": "Unknown message type"}.
//
// # Degraded Mode
//
// When the Radius CLI is missing, executeTool returns the runner's degraded
// result as a successful response carrying an error field. Clients render
// the explanation instead of handling a protocol fault. All other execution
// failures map to -32000.
//
// # Framing Errors
//
// Malformed JSON never reaches the dispatcher. Transports call Decode and
// answer -32700 (or the bare legacy error shape) themselves, keeping their
// connection loops alive.
package dispatch
