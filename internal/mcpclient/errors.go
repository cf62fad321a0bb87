package mcpclient

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionRequired marks a remote "session required/invalid" answer.
	// Call re-opens the session once when it sees it.
	ErrSessionRequired = errors.New("session required")
	ErrClosed          = errors.New("client is closed")
)

// ConnectError is a transport-level failure reaching the endpoint.
type ConnectError struct {
	Host string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Host, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ProtocolError is a response that does not follow the JSON-RPC contract.
type ProtocolError struct {
	Method string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on %s: %s", e.Method, e.Reason)
}

// TimeoutError is returned when the caller's deadline expires mid-call.
type TimeoutError struct {
	Method string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out", e.Method)
}

func (e *TimeoutError) Timeout() bool { return true }

// HTTPError is a non-2xx answer that is not a session signal.
type HTTPError struct {
	Status  int
	Method  string
	Preview string
}

func (e *HTTPError) Error() string {
	if e.Preview == "" {
		return fmt.Sprintf("http %d on %s", e.Status, e.Method)
	}
	return fmt.Sprintf("http %d on %s: %s", e.Status, e.Method, e.Preview)
}
