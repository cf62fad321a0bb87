package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/mohammad-safakhou/briefer/models"
)

func TestListAgentsResolvesSelection(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db, Dialect: DialectPostgres}
	mock.ExpectQuery(regexp.QuoteMeta(selectTenant + ` WHERE tenant_id = $1`)).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "slug", "name", "custom_prompt", "enable_web_context"}).
			AddRow("acme", "acme", "Acme Media", "You rank premium video.", true))
	mock.ExpectQuery(regexp.QuoteMeta(selectExternal + ` WHERE agent_id = $1 AND kind = $2`)).
		WithArgs("sig1", "signals").
		WillReturnRows(sqlmock.NewRows([]string{"agent_id", "name", "kind", "endpoint_url", "protocol", "enabled"}).
			AddRow("sig1", "Signals Co", "signals", "http://signals.example/rpc", nil, true))

	agents, err := st.ListAgents(context.Background(), []string{"sales:tenant:acme", "signals:external:sig1", "sales:tenant:acme"})
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected duplicates collapsed, got %d agents", len(agents))
	}
	in := agents[0]
	if in.Kind != models.AgentInternalSales || in.TenantID != "acme" || !in.WebContext || in.Prompt == "" {
		t.Fatalf("unexpected internal agent %+v", in)
	}
	ext := agents[1]
	if ext.ID != "signals:external:sig1" || ext.Kind != models.AgentExternalSignals || ext.Protocol != models.ProtocolSessionRPC {
		t.Fatalf("unexpected external agent %+v", ext)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListAgentsUnknownID(t *testing.T) {
	st := &Store{Dialect: DialectSQLite}
	_, err := st.ListAgents(context.Background(), []string{"bogus:1"})
	if !errors.Is(err, models.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestUpsertExternalAgentRejectsKind(t *testing.T) {
	st := &Store{Dialect: DialectSQLite}
	if err := st.UpsertExternalAgent(context.Background(), models.ExternalAgent{ID: "x", Kind: "video"}); err == nil {
		t.Fatalf("expected kind validation error")
	}
}
