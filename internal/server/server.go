package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	core "github.com/mohammad-safakhou/briefer/internal/agent/core"
	"github.com/mohammad-safakhou/briefer/internal/telemetry"
	"github.com/mohammad-safakhou/briefer/models"
	"github.com/mohammad-safakhou/briefer/session"
	"go.uber.org/zap"
)

// Registry is the agent lookup the buyer API needs.
type Registry interface {
	core.AgentRegistry
	AvailableAgents(ctx context.Context) ([]models.Agent, error)
}

// Tenants resolves the tenant behind a sales endpoint slug.
type Tenants interface {
	GetTenantBySlug(ctx context.Context, slug string) (models.Tenant, error)
}

type Deps struct {
	Orchestrator *core.Orchestrator
	Registry     Registry
	Tenants      Tenants
	Catalog      core.CatalogStore
	Sessions     session.Store
	SessionTTL   time.Duration
	Metrics      *telemetry.Metrics
	MetricsPath  string

	// BaseURL prefixes the endpoint templates advertised by GET /mcp/.
	BaseURL string
	Logger  *zap.Logger
}

type Server struct {
	echo *echo.Echo
	log  *zap.Logger
}

type requestValidator struct{ v *validator.Validate }

func (rv *requestValidator) Validate(i interface{}) error { return rv.v.Struct(i) }

// New wires the buyer API, the sales RPC endpoint and the metrics route.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = session.DefaultTTL
	}
	if d.MetricsPath == "" {
		d.MetricsPath = "/metrics"
	}
	log := d.Logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New()}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		log.Info("request failed", zap.Int("status", code), zap.String("method", req.Method),
			zap.String("path", c.Path()), zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET(d.MetricsPath, echo.WrapHandler(d.Metrics.Handler()))

	bh := &BriefsHandler{Orch: d.Orchestrator, Registry: d.Registry, log: log}
	bh.Register(e.Group("/api"))

	sh := &SalesHandler{
		Orch:     d.Orchestrator,
		Tenants:  d.Tenants,
		Catalog:  d.Catalog,
		Sessions: d.Sessions,
		TTL:      d.SessionTTL,
		BaseURL:  strings.TrimRight(d.BaseURL, "/"),
		log:      log.Named("sales"),
	}
	sh.Register(e.Group("/mcp"))

	return &Server{echo: e, log: log}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Start(addr string) error {
	s.log.Info("listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }
