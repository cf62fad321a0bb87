// Package mcpclient speaks session-based JSON-RPC to a single remote agent
// endpoint. A Client owns at most one live session and is meant to be used by
// one dispatch at a time.
package mcpclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/briefer/internal/rpc"
	"go.uber.org/zap"
)

type Protocol string

const (
	ProtocolSession Protocol = "session-rpc"
	ProtocolPlain   Protocol = "plain-rpc"
)

const (
	maxBodyBytes    = 4 << 20
	protocolVersion = "1.0"
	closeGrace      = 2 * time.Second
)

type Config struct {
	Endpoint      string
	Protocol      Protocol
	ClientName    string
	ClientVersion string
	// HTTPClient is optional. When nil the client builds its own transport and
	// releases its idle connections on Close.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	endpoint   string
	host       string
	protocol   Protocol
	clientInfo map[string]interface{}
	http       *http.Client
	ownsHTTP   bool
	log        *zap.Logger

	mu        sync.Mutex
	nextID    int64
	sessionID string
	opened    bool
	closed    bool
}

func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q", cfg.Endpoint)
	}
	proto := cfg.Protocol
	if proto == "" {
		proto = ProtocolSession
	}
	if proto != ProtocolSession && proto != ProtocolPlain {
		return nil, fmt.Errorf("unsupported protocol %q", proto)
	}
	name, version := cfg.ClientName, cfg.ClientVersion
	if name == "" {
		name = "briefer"
	}
	if version == "" {
		version = "0.1.0"
	}
	c := &Client{
		endpoint:   u.String(),
		host:       u.Host,
		protocol:   proto,
		clientInfo: map[string]interface{}{"name": name, "version": version},
		http:       cfg.HTTPClient,
		log:        cfg.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
		c.ownsHTTP = true
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.With(zap.String("endpoint", c.host), zap.String("protocol", string(proto)))
	return c, nil
}

// SessionID returns the current session token, empty when none is open.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Open performs the initialize handshake. It is a no-op for plain-rpc
// endpoints and for an already open session.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.opened {
		return nil
	}
	return c.openLocked(ctx)
}

func (c *Client) openLocked(ctx context.Context) error {
	if c.protocol == ProtocolPlain {
		c.opened = true
		return nil
	}
	params := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo":      c.clientInfo,
	}
	resp, header, err := c.roundTrip(ctx, rpc.MethodInitialize, params, "")
	if err != nil {
		if errors.Is(err, ErrSessionRequired) {
			return &ProtocolError{Method: rpc.MethodInitialize, Reason: "server rejected handshake"}
		}
		c.log.Warn("session open failed", zap.String("outcome", outcomeTag(err)))
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if len(resp.Result) == 0 {
		return &ProtocolError{Method: rpc.MethodInitialize, Reason: "missing result"}
	}
	c.sessionID = header.Get(rpc.SessionHeader)
	c.opened = true
	c.log.Debug("session opened", zap.String("session", rpc.ShortID(c.sessionID)))

	if err := c.notifyLocked(ctx, rpc.MethodInitialized); err != nil {
		c.log.Debug("initialized notification failed", zap.String("outcome", outcomeTag(err)))
	}
	return nil
}

// Call issues one request. A session-required answer re-opens the session
// once and retries; the second answer is returned as is.
func (c *Client) Call(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if !c.opened {
		if err := c.openLocked(ctx); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		result, err := c.callOnce(ctx, method, params)
		if err == nil {
			c.log.Debug("rpc call", zap.String("method", method), zap.String("outcome", "ok"),
				zap.Int("attempt", attempt), zap.String("session", rpc.ShortID(c.sessionID)))
			return result, nil
		}
		lastErr = err
		if !errors.Is(err, ErrSessionRequired) || c.protocol == ProtocolPlain || attempt == 2 {
			break
		}
		c.log.Info("session invalid, reopening", zap.String("method", method),
			zap.String("session", rpc.ShortID(c.sessionID)))
		c.sessionID = ""
		c.opened = false
		if err := c.openLocked(ctx); err != nil {
			lastErr = err
			break
		}
	}
	c.log.Debug("rpc call", zap.String("method", method), zap.String("outcome", outcomeTag(lastErr)),
		zap.String("session", rpc.ShortID(c.sessionID)))
	return nil, lastErr
}

func (c *Client) callOnce(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error) {
	resp, _, err := c.roundTrip(ctx, method, params, c.sessionID)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		if resp.Error.SessionRequired() {
			return nil, fmt.Errorf("%w: %w", ErrSessionRequired, resp.Error)
		}
		return nil, resp.Error
	}
	if len(resp.Result) == 0 {
		return nil, &ProtocolError{Method: method, Reason: "missing result"}
	}
	return resp.Result, nil
}

// Close deletes the remote session. It never fails and may be called more
// than once.
func (c *Client) Close(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.sessionID != "" {
		// The dispatch context is often already expired on this path.
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), closeGrace)
			defer cancel()
		}
		if err := c.deleteSession(ctx); err != nil {
			c.log.Debug("session close failed", zap.String("session", rpc.ShortID(c.sessionID)),
				zap.String("outcome", outcomeTag(err)))
		}
		c.sessionID = ""
	}
	if c.ownsHTTP {
		c.http.CloseIdleConnections()
	}
}

func (c *Client) deleteSession(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set(rpc.SessionHeader, c.sessionID)
	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportErr(ctx, "close", err)
	}
	drain(resp.Body)
	return nil
}

func (c *Client) notifyLocked(ctx context.Context, method string) error {
	body, err := json.Marshal(rpc.Request{JSONRPC: rpc.Version, Method: method, Params: map[string]interface{}{}})
	if err != nil {
		return err
	}
	resp, err := c.post(ctx, body, c.sessionID)
	if err != nil {
		return c.transportErr(ctx, method, err)
	}
	drain(resp.Body)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method string, params map[string]interface{}, session string) (*rpc.Response, http.Header, error) {
	c.nextID++
	body, err := json.Marshal(rpc.NewRequest(c.nextID, method, params))
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.post(ctx, body, session)
	if err != nil {
		return nil, nil, c.transportErr(ctx, method, err)
	}
	defer drain(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, c.transportErr(ctx, method, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusPreconditionFailed {
		return nil, resp.Header, fmt.Errorf("%w: http %d", ErrSessionRequired, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Some servers answer an RPC error with a 4xx status and a valid envelope.
		if env, ok := decodeEnvelope(resp.Header, raw); ok && env.Error != nil {
			return env, resp.Header, nil
		}
		return nil, resp.Header, &HTTPError{Status: resp.StatusCode, Method: method, Preview: preview(raw)}
	}
	env, ok := decodeEnvelope(resp.Header, raw)
	if !ok {
		return nil, resp.Header, &ProtocolError{Method: method, Reason: "response is not a JSON-RPC envelope"}
	}
	return env, resp.Header, nil
}

func (c *Client) post(ctx context.Context, body []byte, session string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if session != "" && c.protocol == ProtocolSession {
		req.Header.Set(rpc.SessionHeader, session)
	}
	return c.http.Do(req)
}

func (c *Client) transportErr(ctx context.Context, method string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Method: method}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Method: method}
	}
	return &ConnectError{Host: c.host, Err: err}
}

// decodeEnvelope accepts a plain JSON body or a text/event-stream body whose
// last data line holds the envelope.
func decodeEnvelope(h http.Header, raw []byte) (*rpc.Response, bool) {
	if strings.HasPrefix(h.Get("Content-Type"), "text/event-stream") {
		var last []byte
		sc := bufio.NewScanner(bytes.NewReader(raw))
		sc.Buffer(make([]byte, 64*1024), maxBodyBytes)
		for sc.Scan() {
			line := sc.Bytes()
			if bytes.HasPrefix(line, []byte("data:")) {
				last = append(last[:0], bytes.TrimSpace(line[5:])...)
			}
		}
		raw = last
	}
	var env rpc.Response
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	return &env, true
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxBodyBytes))
	_ = body.Close()
}

func preview(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}

func outcomeTag(err error) string {
	var (
		te *TimeoutError
		ce *ConnectError
		pe *ProtocolError
		he *HTTPError
		re *rpc.Error
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &te):
		return "timeout"
	case errors.Is(err, ErrSessionRequired):
		return "session_required"
	case errors.As(err, &ce):
		return "connect"
	case errors.As(err, &pe):
		return "protocol"
	case errors.As(err, &he):
		return fmt.Sprintf("http_%d", he.Status)
	case errors.As(err, &re):
		return re.Category()
	default:
		return "error"
	}
}
