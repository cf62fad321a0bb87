package models

import (
	"errors"
	"strings"
	"time"
)

// ErrTenantNotFound is returned when a tenant slug or id is unknown
var ErrTenantNotFound = errors.New("tenant not found")

// ErrAgentNotFound is returned when a selection id matches no registered agent
var ErrAgentNotFound = errors.New("agent not found")

// Product is one catalog entry an internal sales agent can rank.
type Product struct {
	ID           string                 `json:"product_id"`
	TenantID     string                 `json:"tenant_id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	PriceCPM     float64                `json:"price_cpm"`
	DeliveryType string                 `json:"delivery_type"`
	Formats      []string               `json:"formats"`
	Targeting    map[string]interface{} `json:"targeting,omitempty"`
}

// Text is the display text used for matching.
func (p Product) Text() string {
	name := strings.TrimSpace(p.Name)
	desc := strings.TrimSpace(p.Description)
	switch {
	case name == "":
		return desc
	case desc == "":
		return name
	default:
		return name + ". " + desc
	}
}

type Tenant struct {
	ID               string    `json:"tenant_id"`
	Slug             string    `json:"slug"`
	Name             string    `json:"name"`
	CustomPrompt     string    `json:"custom_prompt,omitempty"`
	EnableWebContext bool      `json:"enable_web_context"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type AgentKind string

const (
	AgentInternalSales   AgentKind = "internal-sales"
	AgentExternalSales   AgentKind = "external-sales"
	AgentExternalSignals AgentKind = "external-signals"
)

type Protocol string

const (
	ProtocolSessionRPC Protocol = "session-rpc"
	ProtocolPlainRPC   Protocol = "plain-rpc"
)

// Agent describes one ranking target. ID doubles as the selection id
// ("sales:tenant:<id>", "sales:external:<id>", "signals:external:<id>").
type Agent struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Kind     AgentKind `json:"kind"`
	Endpoint string    `json:"endpoint,omitempty"`
	Protocol Protocol  `json:"protocol,omitempty"`
	Enabled  bool      `json:"enabled"`

	// Internal agents only.
	TenantID   string `json:"tenant_id,omitempty"`
	Prompt     string `json:"-"`
	WebContext bool   `json:"web_context"`
}

// ExternalAgent is a registry row for a remote agent.
type ExternalAgent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"` // sales | signals
	Endpoint  string    `json:"endpoint"`
	Protocol  Protocol  `json:"protocol"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// RankedItem is one scored result attributed to the agent that produced it.
type RankedItem struct {
	CandidateID string  `json:"product_id"`
	Name        string  `json:"name,omitempty"`
	Score       float64 `json:"score"`
	Rationale   string  `json:"rationale,omitempty"`
	Agent       string  `json:"agent"`
}
