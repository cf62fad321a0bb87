// Package rpc holds the JSON-RPC 2.0 envelope shared by the session client and
// the sales agent endpoint.
package rpc

import (
	"encoding/json"
	"fmt"
	"strings"
)

const Version = "2.0"

// SessionHeader carries the opaque session token on every request after the
// handshake.
const SessionHeader = "Mcp-Session-Id"

// Well-known method names.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodGetInfo     = "mcp.get_info"

	MethodGetProducts  = "get_products"
	MethodRankProducts = "rank_products"
	MethodGetSignals   = "get_signals"
)

// Error codes. CodeSessionRequired is the distinguished "open a new session"
// condition; the remaining codes follow JSON-RPC 2.0.
const (
	CodeParseError      = -32700
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeInternal        = -32603
	CodeServerError     = -32000
	CodeSessionRequired = -32001
)

type Request struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      any                    `json:"id,omitempty"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the structured error member of a response. It doubles as the Go
// error returned by the client for remote failures.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// SessionRequired reports whether the error asks the caller to open a new
// session. Older servers signal it only through the message text.
func (e *Error) SessionRequired() bool {
	if e == nil {
		return false
	}
	if e.Code == CodeSessionRequired {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "session required") || strings.Contains(msg, "session invalid")
}

// Category maps an error code onto one of the four distinguishable failure
// classes of the protocol.
func (e *Error) Category() string {
	switch {
	case e.SessionRequired():
		return "session_required"
	case e.Code == CodeMethodNotFound:
		return "method_not_found"
	case e.Code == CodeInvalidParams || e.Code == CodeInvalidRequest:
		return "invalid_params"
	default:
		return "internal"
	}
}

func NewRequest(id int64, method string, params map[string]interface{}) Request {
	if params == nil {
		params = map[string]interface{}{}
	}
	return Request{JSONRPC: Version, ID: id, Method: method, Params: params}
}

// Validate checks the envelope structure of an inbound request.
func (r Request) Validate() *Error {
	if r.JSONRPC != Version {
		return &Error{Code: CodeInvalidRequest, Message: "invalid request: jsonrpc must be '2.0'"}
	}
	if r.ID == nil {
		return &Error{Code: CodeInvalidRequest, Message: "invalid request: missing id"}
	}
	if strings.TrimSpace(r.Method) == "" {
		return &Error{Code: CodeInvalidRequest, Message: "invalid request: missing method"}
	}
	if r.Params == nil {
		return &Error{Code: CodeInvalidRequest, Message: "invalid request: missing params"}
	}
	return nil
}

func ResultResponse(id any, result any) (Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{}, err
	}
	return Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

func ErrorResponse(id any, e *Error) Response {
	return Response{JSONRPC: Version, ID: id, Error: e}
}

// ShortID truncates an opaque identifier for log output.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
