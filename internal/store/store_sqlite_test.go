package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mohammad-safakhou/briefer/models"
)

func seed(t *testing.T, st *Store) {
	t.Helper()
	ctx := context.Background()
	if err := st.UpsertTenant(ctx, models.Tenant{ID: "acme", Slug: "acme", Name: "Acme Media", EnableWebContext: true}); err != nil {
		t.Fatalf("UpsertTenant: %v", err)
	}
	products := []models.Product{
		{ID: "p1", TenantID: "acme", Name: "Our Planet Series", Description: "Nature documentary", PriceCPM: 18, Formats: []string{"video"}},
		{ID: "p2", TenantID: "acme", Name: "Quarterly Finance Report", PriceCPM: 9},
	}
	for _, p := range products {
		if err := st.UpsertProduct(ctx, p); err != nil {
			t.Fatalf("UpsertProduct: %v", err)
		}
	}
	if err := st.UpsertExternalAgent(ctx, models.ExternalAgent{ID: "remote", Name: "Remote Sales", Kind: "sales", Endpoint: "http://remote/rpc", Enabled: true}); err != nil {
		t.Fatalf("UpsertExternalAgent: %v", err)
	}
	if err := st.UpsertExternalAgent(ctx, models.ExternalAgent{ID: "off", Name: "Off", Kind: "signals", Endpoint: "http://off/rpc"}); err != nil {
		t.Fatalf("UpsertExternalAgent: %v", err)
	}
}

func TestSQLiteMigrateAndQuery(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "briefer.db")
	if err := Migrate("sqlite", dsn, "up", 0); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// a second run is a no-op
	if err := Migrate("sqlite", dsn, "up", 0); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}

	ctx := context.Background()
	st, err := Open(ctx, "sqlite", dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	seed(t, st)

	products, err := st.ListCandidates(ctx, "acme")
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(products) != 2 || products[0].ID != "p1" || products[0].Formats[0] != "video" || products[1].DeliveryType != "non_guaranteed" {
		t.Fatalf("unexpected products %+v", products)
	}

	tenant, err := st.GetTenantBySlug(ctx, "acme")
	if err != nil || !tenant.EnableWebContext {
		t.Fatalf("GetTenantBySlug: %+v %v", tenant, err)
	}

	agents, err := st.AvailableAgents(ctx)
	if err != nil {
		t.Fatalf("AvailableAgents: %v", err)
	}
	if len(agents) != 2 || agents[0].ID != "sales:tenant:acme" || agents[1].ID != "sales:external:remote" {
		t.Fatalf("unexpected agents %+v", agents)
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := Migrate("sqlite", dsn, "down", 0); err != nil {
		t.Fatalf("Migrate down: %v", err)
	}
}

func TestOpenRejectsDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if err := Migrate("mysql", "x", "up", 0); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}
