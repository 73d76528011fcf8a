// Package vmservice implements a JSON-RPC 2.0 client over the Dart VM
// Service protocol's websocket transport, plus the Flutter service
// extension call conventions layered on top of it.
package vmservice

import (
	"encoding/json"
	"strings"
)

// methodNotFoundCode is the JSON-RPC "Method not found" error code. The
// VM Service returns this when an extension is not registered (e.g.
// profile/release builds, or before the framework has activated it).
const methodNotFoundCode = -32601

// extensionNotAvailableCode is an alternate code some VM Service
// versions use for the same condition.
const extensionNotAvailableCode = 113

// RPCError is a JSON-RPC 2.0 error object, as returned either for a
// protocol-level failure or for a Flutter service extension call.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// IsExtensionNotAvailable reports whether err indicates that the
// requested service extension is not registered, as opposed to a
// connection or protocol failure. This happens in profile/release
// mode, or before the framework has activated the extension.
func IsExtensionNotAvailable(err *RPCError) bool {
	if err == nil {
		return false
	}
	if err.Code == methodNotFoundCode || err.Code == extensionNotAvailableCode {
		return true
	}
	msg := strings.ToLower(err.Message)
	return strings.Contains(msg, "method not found") || strings.Contains(msg, "extension not available")
}

type wireRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// wireEvent is a VM Service streaming event, delivered without an id.
// fdemon does not currently subscribe to any event streams, but the
// read loop must still recognize and skip these frames rather than
// fail to parse them as responses.
type wireEvent struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}
