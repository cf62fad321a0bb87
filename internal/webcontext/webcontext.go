// Package webcontext fetches fresh web snippets for a brief. Enrichment is
// best effort: every failure is reported on the returned Context, never as an
// error.
package webcontext

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	ErrMissingCredentials = errors.New("web context credentials missing")
	ErrQuotaExceeded      = errors.New("web context quota exceeded")
	ErrUnsupported        = errors.New("web context backend unsupported")
)

// Reasons reported when Available is false.
const (
	ReasonDisabled           = "disabled"
	ReasonMissingCredentials = "missing_credentials"
	ReasonQuota              = "quota_exceeded"
	ReasonTimeout            = "timeout"
	ReasonUnsupported        = "unsupported_backend"
	ReasonEmpty              = "no_snippets"
	ReasonError              = "backend_error"
)

const (
	DefaultMaxSnippets = 5
	DefaultTimeout     = 8 * time.Second
)

// Provider returns raw text for a brief. The enricher cleans and bounds it.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, brief string, max int) ([]string, error)
}

type Context struct {
	Snippets  []string `json:"snippets,omitempty"`
	Available bool     `json:"available"`
	Reason    string   `json:"reason,omitempty"`
	Provider  string   `json:"provider,omitempty"`
}

func Unavailable(reason string) Context {
	return Context{Reason: reason}
}

type Enricher struct {
	provider    Provider
	timeout     time.Duration
	maxSnippets int
	log         *zap.Logger
}

type Option func(*Enricher)

func WithTimeout(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithMaxSnippets(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.maxSnippets = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Enricher) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEnricher wraps a provider. A nil provider yields an enricher that always
// reports the backend as unsupported.
func NewEnricher(p Provider, opts ...Option) *Enricher {
	e := &Enricher{provider: p, timeout: DefaultTimeout, maxSnippets: DefaultMaxSnippets, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Enrich returns within the enricher timeout even if the provider ignores
// cancellation.
func (e *Enricher) Enrich(ctx context.Context, brief string) Context {
	if e == nil || e.provider == nil {
		return Unavailable(ReasonUnsupported)
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type fetched struct {
		raw []string
		err error
	}
	done := make(chan fetched, 1)
	go func() {
		raw, err := e.provider.Fetch(ctx, brief, e.maxSnippets)
		done <- fetched{raw, err}
	}()

	var res fetched
	select {
	case res = <-done:
	case <-ctx.Done():
		res = fetched{err: ctx.Err()}
	}
	out := Context{Provider: e.provider.Name()}
	if res.err != nil {
		out.Reason = reasonFor(res.err)
		e.log.Info("web context unavailable", zap.String("provider", out.Provider), zap.String("reason", out.Reason))
		return out
	}
	out.Snippets = Clean(res.raw, e.maxSnippets)
	if len(out.Snippets) == 0 {
		out.Reason = ReasonEmpty
		return out
	}
	out.Available = true
	e.log.Debug("web context fetched", zap.String("provider", out.Provider), zap.Int("snippets", len(out.Snippets)))
	return out
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return ReasonMissingCredentials
	case errors.Is(err, ErrQuotaExceeded):
		return ReasonQuota
	case errors.Is(err, ErrUnsupported):
		return ReasonUnsupported
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonError
	}
}
