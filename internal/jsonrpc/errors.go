package jsonrpc

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeServerError is the implementation-defined server error used for
	// unknown tools and any failure raised while handling a recognized method.
	ErrorCodeServerError ErrorCode = -32000
)

// Canonical messages for the protocol-level failures.
const (
	MessageParseError     = "Parse error"
	MessageInvalidRequest = "Invalid Request"
)
