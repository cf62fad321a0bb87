package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/briefer/models"
)

const selectProducts = `SELECT product_id, tenant_id, name, description, price_cpm, delivery_type, formats_json, targeting_json
FROM products WHERE tenant_id = ? ORDER BY product_id`

// ListCandidates returns every product of tenantID. Malformed JSON columns
// are treated as empty.
func (s *Store) ListCandidates(ctx context.Context, tenantID string) ([]models.Product, error) {
	rows, err := s.DB.QueryContext(ctx, s.bind(selectProducts), tenantID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		var (
			p                  models.Product
			desc               sql.NullString
			formats, targeting sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &desc, &p.PriceCPM, &p.DeliveryType, &formats, &targeting); err != nil {
			return nil, err
		}
		p.Description = desc.String
		if formats.Valid && formats.String != "" {
			_ = json.Unmarshal([]byte(formats.String), &p.Formats)
		}
		if targeting.Valid && targeting.String != "" {
			_ = json.Unmarshal([]byte(targeting.String), &p.Targeting)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const selectTenant = `SELECT tenant_id, slug, name, custom_prompt, enable_web_context FROM tenants`

func (s *Store) scanTenant(row interface{ Scan(...any) error }) (models.Tenant, error) {
	var (
		t      models.Tenant
		prompt sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &prompt, &t.EnableWebContext); err != nil {
		return models.Tenant{}, err
	}
	t.CustomPrompt = prompt.String
	return t, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (models.Tenant, error) {
	t, err := s.scanTenant(s.DB.QueryRowContext(ctx, s.bind(selectTenant+` WHERE tenant_id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Tenant{}, models.ErrTenantNotFound
	}
	return t, err
}

func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (models.Tenant, error) {
	t, err := s.scanTenant(s.DB.QueryRowContext(ctx, s.bind(selectTenant+` WHERE slug = ?`), slug))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Tenant{}, models.ErrTenantNotFound
	}
	return t, err
}

func (s *Store) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := s.DB.QueryContext(ctx, selectTenant+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()
	var out []models.Tenant
	for rows.Next() {
		t, err := s.scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertTenant and UpsertProduct seed the catalog for the CLI and tests.
func (s *Store) UpsertTenant(ctx context.Context, t models.Tenant) error {
	_, err := s.DB.ExecContext(ctx, s.bind(`INSERT INTO tenants (tenant_id, slug, name, custom_prompt, enable_web_context)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (tenant_id) DO UPDATE SET slug = excluded.slug, name = excluded.name,
  custom_prompt = excluded.custom_prompt, enable_web_context = excluded.enable_web_context`),
		t.ID, t.Slug, t.Name, nullString(t.CustomPrompt), t.EnableWebContext)
	return err
}

func (s *Store) UpsertProduct(ctx context.Context, p models.Product) error {
	formats, err := json.Marshal(p.Formats)
	if err != nil {
		return err
	}
	targeting, err := json.Marshal(p.Targeting)
	if err != nil {
		return err
	}
	delivery := p.DeliveryType
	if delivery == "" {
		delivery = "non_guaranteed"
	}
	_, err = s.DB.ExecContext(ctx, s.bind(`INSERT INTO products (product_id, tenant_id, name, description, price_cpm, delivery_type, formats_json, targeting_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (product_id) DO UPDATE SET tenant_id = excluded.tenant_id, name = excluded.name,
  description = excluded.description, price_cpm = excluded.price_cpm, delivery_type = excluded.delivery_type,
  formats_json = excluded.formats_json, targeting_json = excluded.targeting_json`),
		p.ID, p.TenantID, p.Name, nullString(p.Description), p.PriceCPM, delivery, string(formats), string(targeting))
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
