package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/briefer/models"
)

const (
	prefixTenantSales    = "sales:tenant:"
	prefixExternalSales  = "sales:external:"
	prefixExternalSignal = "signals:external:"
)

// TenantAgentID returns the selection id of a tenant's internal sales agent.
func TenantAgentID(tenantID string) string { return prefixTenantSales + tenantID }

// ExternalAgentID returns the selection id of a registered external agent.
func ExternalAgentID(a models.ExternalAgent) string {
	if a.Kind == "signals" {
		return prefixExternalSignal + a.ID
	}
	return prefixExternalSales + a.ID
}

func tenantAgent(t models.Tenant) models.Agent {
	return models.Agent{
		ID:         TenantAgentID(t.ID),
		Name:       t.Name,
		Kind:       models.AgentInternalSales,
		Enabled:    true,
		TenantID:   t.ID,
		Prompt:     t.CustomPrompt,
		WebContext: t.EnableWebContext,
	}
}

func externalAgent(a models.ExternalAgent) models.Agent {
	kind := models.AgentExternalSales
	if a.Kind == "signals" {
		kind = models.AgentExternalSignals
	}
	return models.Agent{
		ID:       ExternalAgentID(a),
		Name:     a.Name,
		Kind:     kind,
		Endpoint: a.Endpoint,
		Protocol: a.Protocol,
		Enabled:  a.Enabled,
	}
}

const selectExternal = `SELECT agent_id, name, kind, endpoint_url, protocol, enabled FROM external_agents`

func scanExternal(row interface{ Scan(...any) error }) (models.ExternalAgent, error) {
	var (
		a        models.ExternalAgent
		protocol sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Kind, &a.Endpoint, &protocol, &a.Enabled); err != nil {
		return models.ExternalAgent{}, err
	}
	a.Protocol = models.ProtocolSessionRPC
	if protocol.Valid && protocol.String != "" {
		a.Protocol = models.Protocol(protocol.String)
	}
	return a, nil
}

func (s *Store) getExternal(ctx context.Context, id, kind string) (models.ExternalAgent, error) {
	a, err := scanExternal(s.DB.QueryRowContext(ctx, s.bind(selectExternal+` WHERE agent_id = ? AND kind = ?`), id, kind))
	if errors.Is(err, sql.ErrNoRows) {
		return models.ExternalAgent{}, models.ErrAgentNotFound
	}
	return a, err
}

func (s *Store) ListExternalAgents(ctx context.Context) ([]models.ExternalAgent, error) {
	rows, err := s.DB.QueryContext(ctx, selectExternal+` ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("list external agents: %w", err)
	}
	defer rows.Close()
	var out []models.ExternalAgent
	for rows.Next() {
		a, err := scanExternal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAgents resolves selection ids in order. Duplicates are collapsed and an
// unknown id fails the whole selection with models.ErrAgentNotFound.
func (s *Store) ListAgents(ctx context.Context, selection []string) ([]models.Agent, error) {
	seen := make(map[string]bool, len(selection))
	out := make([]models.Agent, 0, len(selection))
	for _, raw := range selection {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		var (
			agent models.Agent
			err   error
		)
		switch {
		case strings.HasPrefix(id, prefixTenantSales):
			var t models.Tenant
			t, err = s.GetTenant(ctx, strings.TrimPrefix(id, prefixTenantSales))
			agent = tenantAgent(t)
		case strings.HasPrefix(id, prefixExternalSales):
			var a models.ExternalAgent
			a, err = s.getExternal(ctx, strings.TrimPrefix(id, prefixExternalSales), "sales")
			agent = externalAgent(a)
		case strings.HasPrefix(id, prefixExternalSignal):
			var a models.ExternalAgent
			a, err = s.getExternal(ctx, strings.TrimPrefix(id, prefixExternalSignal), "signals")
			agent = externalAgent(a)
		default:
			err = models.ErrAgentNotFound
		}
		if errors.Is(err, models.ErrTenantNotFound) || errors.Is(err, models.ErrAgentNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrAgentNotFound, id)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, agent)
	}
	return out, nil
}

// AvailableAgents lists every tenant agent followed by the enabled external
// agents.
func (s *Store) AvailableAgents(ctx context.Context) ([]models.Agent, error) {
	tenants, err := s.ListTenants(ctx)
	if err != nil {
		return nil, err
	}
	ext, err := s.ListExternalAgents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Agent, 0, len(tenants)+len(ext))
	for _, t := range tenants {
		out = append(out, tenantAgent(t))
	}
	for _, a := range ext {
		if a.Enabled {
			out = append(out, externalAgent(a))
		}
	}
	return out, nil
}

func (s *Store) UpsertExternalAgent(ctx context.Context, a models.ExternalAgent) error {
	if a.Kind != "sales" && a.Kind != "signals" {
		return fmt.Errorf("invalid agent kind %q", a.Kind)
	}
	if a.Protocol == "" {
		a.Protocol = models.ProtocolSessionRPC
	}
	_, err := s.DB.ExecContext(ctx, s.bind(`INSERT INTO external_agents (agent_id, name, kind, endpoint_url, protocol, enabled)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (agent_id) DO UPDATE SET name = excluded.name, kind = excluded.kind,
  endpoint_url = excluded.endpoint_url, protocol = excluded.protocol, enabled = excluded.enabled`),
		a.ID, a.Name, a.Kind, a.Endpoint, string(a.Protocol), a.Enabled)
	return err
}
