package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// Request represents an inbound call. The jsonrpc member is optional on input:
// conformance clients are allowed to omit it.
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc,omitempty"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Response represents a JSON-RPC response. The id member is always written,
// as null when the request carried none.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// NewResultResponse builds a successful JSON-RPC response object.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Result:         resultBytes,
		ID:             id,
	}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// DecodeRequest decodes a single non-blank line into a Request. The returned
// code tells the caller how to classify a failure: ErrorCodeParseError for
// malformed JSON, ErrorCodeInvalidRequest for well-formed JSON that is not a
// request object. When the line is an object with a usable id, that id is
// returned alongside an invalid-request failure so it can be echoed.
func DecodeRequest(line []byte) (*Request, *RequestID, ErrorCode, error) {
	if !json.Valid(line) {
		return nil, nil, ErrorCodeParseError, fmt.Errorf("invalid JSON")
	}

	if b := bytes.TrimLeft(line, " \t\r\n"); len(b) == 0 || b[0] != '{' {
		return nil, nil, ErrorCodeInvalidRequest, fmt.Errorf("invalid request: not a JSON object")
	}

	// Member names are matched exactly; encoding/json alone would also accept
	// "METHOD" or "Id".
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, nil, ErrorCodeInvalidRequest, fmt.Errorf("invalid request: %w", err)
	}

	req := &Request{Params: fields["params"]}
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &req.ID); err != nil {
			return nil, nil, ErrorCodeInvalidRequest, fmt.Errorf("invalid request: id: %w", err)
		}
	}
	if raw, ok := fields["method"]; ok {
		if err := json.Unmarshal(raw, &req.Method); err != nil {
			return nil, req.ID, ErrorCodeInvalidRequest, fmt.Errorf("invalid request: method: %w", err)
		}
	}
	if raw, ok := fields["jsonrpc"]; ok {
		if err := json.Unmarshal(raw, &req.JSONRPCVersion); err != nil {
			return nil, req.ID, ErrorCodeInvalidRequest, fmt.Errorf("invalid request: jsonrpc: %w", err)
		}
	}

	return req, req.ID, 0, nil
}
