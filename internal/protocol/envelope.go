// ABOUTME: Request/response envelope types and JSON framing for the flow protocol.
// ABOUTME: One JSON object per websocket text message, correlated by id.

package protocol

import (
	"encoding/json"
	"fmt"
)

// MaxMessageSize is the largest envelope the server or client will accept.
// Larger frames are rejected with a ProtocolError.
const MaxMessageSize = 4 << 20 // 4 MiB

// Method names understood by the server.
const (
	MethodSpawn        = "agent.spawn"
	MethodPause        = "agent.pause"
	MethodResume       = "agent.resume"
	MethodStop         = "agent.stop"
	MethodStatus       = "agent.status"
	MethodBatchStatus  = "agent.batch_status"
	MethodOutput       = "agent.output"
	MethodWriteStdin   = "agent.write_stdin"
	MethodList         = "agent.list"
	MethodCustomAction = "agent.custom_action"
	MethodStats        = "server.stats"
	MethodPing         = "server.ping"
)

// Mutating reports whether a method mutates agent state and therefore must
// be serialized per agent id on the server.
func Mutating(method string) bool {
	switch method {
	case MethodSpawn, MethodPause, MethodResume, MethodStop, MethodWriteStdin:
		return true
	}
	return false
}

// Request is a single client-to-server envelope.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is a single server-to-client envelope. Exactly one of Result or
// Error is set.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *WireError      `json:"error,omitempty"`
}

// EncodeRequest marshals a request with its params payload.
func EncodeRequest(id, method string, params any) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshaling params for %s: %w", method, err)
	}
	return json.Marshal(Request{ID: id, Method: method, Params: raw})
}

// DecodeRequest parses and validates an inbound request frame.
// A frame that parses but is missing its id or method yields ErrMalformed
// wrapped in a *Error with kind ProtocolError.
func DecodeRequest(data []byte) (*Request, error) {
	if len(data) > MaxMessageSize {
		return nil, Errorf(KindProtocolError, "message of %d bytes exceeds limit", len(data))
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, Errorf(KindProtocolError, "invalid envelope: %v", err)
	}
	if req.ID == "" {
		return &req, Errorf(KindProtocolError, "envelope missing id")
	}
	if req.Method == "" {
		return &req, Errorf(KindProtocolError, "envelope missing method")
	}
	return &req, nil
}

// OKResponse builds a success response carrying result.
func OKResponse(id string, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &Response{ID: id, Result: raw}, nil
}

// ErrResponse builds an error response from any error value, mapping typed
// protocol errors onto their wire kind and everything else onto Internal.
func ErrResponse(id string, err error) *Response {
	return &Response{ID: id, Error: ToWire(err)}
}

// DecodeResponse parses an inbound response frame.
func DecodeResponse(data []byte) (*Response, error) {
	if len(data) > MaxMessageSize {
		return nil, Errorf(KindProtocolError, "message of %d bytes exceeds limit", len(data))
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, Errorf(KindProtocolError, "invalid envelope: %v", err)
	}
	if resp.ID == "" {
		return nil, Errorf(KindProtocolError, "response missing id")
	}
	if resp.Error != nil && len(resp.Result) > 0 {
		return nil, Errorf(KindProtocolError, "response carries both result and error")
	}
	return &resp, nil
}

// Unmarshal decodes a result or params payload into out.
func Unmarshal(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return Errorf(KindProtocolError, "missing payload")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return Errorf(KindProtocolError, "invalid payload: %v", err)
	}
	return nil
}
