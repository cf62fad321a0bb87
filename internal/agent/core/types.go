package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/briefer/models"
)

// ErrInvalidBrief and ErrEmptySelection are the only errors Orchestrate
// returns.
var (
	ErrInvalidBrief    = errors.New("brief must not be empty")
	ErrEmptySelection  = errors.New("agent selection must not be empty")
	ErrUnsupportedKind = errors.New("unsupported agent kind")
)

// CatalogStore provides the products an internal sales agent ranks.
type CatalogStore interface {
	ListCandidates(ctx context.Context, tenantID string) ([]models.Product, error)
}

// AgentRegistry resolves selection ids to agent descriptors.
type AgentRegistry interface {
	ListAgents(ctx context.Context, selection []string) ([]models.Agent, error)
}

// Outcome error codes.
const (
	CodeConnect             = "connect"
	CodeProtocol            = "protocol"
	CodeTimeout             = "timeout"
	CodeCircuitOpen         = "circuit_open"
	CodeRPC                 = "rpc"
	CodeInvalidResponse     = "invalid_response"
	CodeUnsupportedProtocol = "unsupported_protocol"
	CodeDisabled            = "disabled"
	CodeInternal            = "internal"
	CodeCancelled           = "cancelled"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// AgentError is the structured tag recorded for a failed or skipped agent.
type AgentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InvalidResponseError reports a remote answer with no usable items.
type InvalidResponseError struct {
	Reason string
	Keys   []string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid_response: %s; keys=%v", e.Reason, e.Keys)
}

// UnsupportedProtocolError is returned before dispatch when an agent kind
// cannot speak the configured protocol.
type UnsupportedProtocolError struct {
	Kind     models.AgentKind
	Protocol models.Protocol
}

func (e *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("%s agents do not support protocol %q", e.Kind, e.Protocol)
}

// WebContextStatus is reported for agents with web context enabled.
type WebContextStatus struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Snippets  int    `json:"snippets"`
}

// AgentOutcome is one agent's entry in the response. Items is nil unless
// Status is ok.
type AgentOutcome struct {
	AgentID string              `json:"agent_id"`
	Name    string              `json:"name,omitempty"`
	Kind    models.AgentKind    `json:"kind"`
	Status  Status              `json:"status"`
	Items   []models.RankedItem `json:"items"`
	Error   *AgentError         `json:"error,omitempty"`

	Strategy           string            `json:"strategy,omitempty"`
	EmbeddingFallback  bool              `json:"embedding_fallback,omitempty"`
	ScoringDegraded    bool              `json:"scoring_degraded,omitempty"`
	ContextUnavailable bool              `json:"context_unavailable,omitempty"`
	WebContext         *WebContextStatus `json:"web_context,omitempty"`
	Elapsed            time.Duration     `json:"elapsed_ns"`
}

// Result is the aggregate of one orchestration run. Agents is keyed by
// agent id and holds an entry for every selected agent.
type Result struct {
	RequestID string                  `json:"request_id"`
	Agents    map[string]AgentOutcome `json:"agents"`
	// Order lists agent ids in selection order.
	Order   []string      `json:"order"`
	Skipped []string      `json:"skipped,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
}
