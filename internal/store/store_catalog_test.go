package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/mohammad-safakhou/briefer/models"
)

func TestBindRewritesPlaceholdersForPostgres(t *testing.T) {
	pg := &Store{Dialect: DialectPostgres}
	if got := pg.bind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("unexpected %q", got)
	}
	lite := &Store{Dialect: DialectSQLite}
	if got := lite.bind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite query rewritten: %q", got)
	}
}

func TestListCandidates(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db, Dialect: DialectPostgres}
	query := regexp.QuoteMeta(`SELECT product_id, tenant_id, name, description, price_cpm, delivery_type, formats_json, targeting_json
FROM products WHERE tenant_id = $1 ORDER BY product_id`)
	mock.ExpectQuery(query).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "tenant_id", "name", "description", "price_cpm", "delivery_type", "formats_json", "targeting_json"}).
			AddRow("p1", "t1", "Our Planet Series", "Nature documentary", 12.5, "guaranteed", `["video"]`, `{"geo":["US"]}`).
			AddRow("p2", "t1", "Drive Time", nil, 4.0, "non_guaranteed", "not json", nil))

	got, err := st.ListCandidates(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 products, got %d", len(got))
	}
	if got[0].Name != "Our Planet Series" || len(got[0].Formats) != 1 || got[0].Formats[0] != "video" || got[0].Targeting["geo"] == nil {
		t.Fatalf("unexpected first product %+v", got[0])
	}
	if got[1].Description != "" || got[1].Formats != nil {
		t.Fatalf("malformed columns should be empty, got %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetTenantNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db, Dialect: DialectPostgres}
	mock.ExpectQuery(regexp.QuoteMeta(selectTenant + ` WHERE slug = $1`)).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "slug", "name", "custom_prompt", "enable_web_context"}))

	if _, err := st.GetTenantBySlug(context.Background(), "nope"); !errors.Is(err, models.ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
