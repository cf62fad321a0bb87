package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	core "github.com/mohammad-safakhou/briefer/internal/agent/core"
	"github.com/mohammad-safakhou/briefer/internal/rpc"
	"github.com/mohammad-safakhou/briefer/internal/store"
	"github.com/mohammad-safakhou/briefer/models"
	"github.com/mohammad-safakhou/briefer/session"
	"go.uber.org/zap"
)

const (
	serviceName    = "adcp-sales"
	serviceVersion = "0.1.0"
	maxRPCBody     = 1 << 20
)

var salesCapabilities = []string{rpc.MethodGetInfo, rpc.MethodGetProducts, rpc.MethodRankProducts}

// SalesHandler exposes each tenant's internal sales agent over session-rpc so
// other buyers can reach it like any external agent.
type SalesHandler struct {
	Orch     *core.Orchestrator
	Tenants  Tenants
	Catalog  core.CatalogStore
	Sessions session.Store
	TTL      time.Duration
	BaseURL  string
	log      *zap.Logger
}

func (h *SalesHandler) Register(g *echo.Group) {
	g.GET("/", h.info)
	g.POST("/agents/:slug/rpc", h.rpc)
	g.DELETE("/agents/:slug/rpc", h.closeSession)
	g.POST("/agents/:slug/rank", h.rank)
}

func (h *SalesHandler) info(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"service":      serviceName,
		"version":      serviceVersion,
		"capabilities": salesCapabilities,
		"endpoints": map[string]string{
			"rpc":  h.BaseURL + "/mcp/agents/:slug/rpc",
			"rank": h.BaseURL + "/mcp/agents/:slug/rank",
		},
	})
}

func (h *SalesHandler) rpc(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxRPCBody))
	if err != nil {
		return writeRPC(c, rpc.ErrorResponse(nil, &rpc.Error{Code: rpc.CodeParseError, Message: "unreadable body"}))
	}
	var req rpc.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return writeRPC(c, rpc.ErrorResponse(nil, &rpc.Error{Code: rpc.CodeParseError, Message: "parse error"}))
	}
	if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
		return c.NoContent(http.StatusAccepted)
	}
	if rerr := req.Validate(); rerr != nil {
		return writeRPC(c, rpc.ErrorResponse(req.ID, rerr))
	}

	ctx := c.Request().Context()
	tenant, err := h.Tenants.GetTenantBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, models.ErrTenantNotFound) {
			return c.JSON(http.StatusNotFound, rpc.ErrorResponse(req.ID, &rpc.Error{Code: rpc.CodeServerError, Message: "tenant not found"}))
		}
		return writeRPC(c, rpc.ErrorResponse(req.ID, &rpc.Error{Code: rpc.CodeServerError, Message: "tenant lookup failed"}))
	}

	sid := c.Request().Header.Get(rpc.SessionHeader)
	switch {
	case req.Method == rpc.MethodInitialize || sid == "":
		sess, err := h.Sessions.Create(ctx, tenant.ID, h.TTL)
		if err != nil {
			h.log.Warn("session create failed", zap.String("tenant", tenant.Slug), zap.Error(err))
			return writeRPC(c, rpc.ErrorResponse(req.ID, &rpc.Error{Code: rpc.CodeServerError, Message: "session unavailable"}))
		}
		sid = sess.ID
		h.log.Debug("session created", zap.String("tenant", tenant.Slug), zap.String("session", rpc.ShortID(sid)))
	default:
		if _, err := h.Sessions.Validate(ctx, sid, tenant.ID, h.TTL); err != nil {
			h.log.Info("session rejected", zap.String("tenant", tenant.Slug), zap.String("session", rpc.ShortID(sid)))
			return writeRPC(c, rpc.ErrorResponse(req.ID, &rpc.Error{Code: rpc.CodeSessionRequired, Message: session.ErrNotFound.Error()}))
		}
	}
	c.Response().Header().Set(rpc.SessionHeader, sid)

	result, rerr := h.dispatch(c, tenant, req)
	outcome := "ok"
	if rerr != nil {
		outcome = rerr.Category()
	}
	h.log.Info("rpc", zap.String("tenant", tenant.Slug), zap.String("method", req.Method),
		zap.String("outcome", outcome), zap.String("session", rpc.ShortID(sid)))
	if rerr != nil {
		return writeRPC(c, rpc.ErrorResponse(req.ID, rerr))
	}
	resp, err := rpc.ResultResponse(req.ID, result)
	if err != nil {
		return writeRPC(c, rpc.ErrorResponse(req.ID, &rpc.Error{Code: rpc.CodeInternal, Message: "result encoding failed"}))
	}
	return writeRPC(c, resp)
}

func (h *SalesHandler) dispatch(c echo.Context, tenant models.Tenant, req rpc.Request) (interface{}, *rpc.Error) {
	ctx := c.Request().Context()
	switch req.Method {
	case rpc.MethodInitialize:
		return map[string]interface{}{
			"protocolVersion": "1.0",
			"serverInfo":      map[string]string{"name": serviceName, "version": serviceVersion},
			"capabilities":    map[string]interface{}{"tools": salesCapabilities},
		}, nil
	case rpc.MethodGetInfo:
		return map[string]interface{}{
			"service":      serviceName,
			"version":      serviceVersion,
			"tenant":       tenant.Slug,
			"capabilities": salesCapabilities,
		}, nil
	case rpc.MethodGetProducts:
		products, err := h.Catalog.ListCandidates(ctx, tenant.ID)
		if err != nil {
			return nil, &rpc.Error{Code: rpc.CodeServerError, Message: "catalog unavailable"}
		}
		if products == nil {
			products = []models.Product{}
		}
		return map[string]interface{}{"products": products}, nil
	case rpc.MethodRankProducts:
		brief, _ := req.Params["brief"].(string)
		if strings.TrimSpace(brief) == "" {
			return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: "brief is required"}
		}
		snippets, perr := stringList(req.Params["web_snippets"])
		if perr != nil {
			return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: perr.Error()}
		}
		items, err := h.rankTenant(c, tenant, brief, snippets)
		if err != nil {
			return nil, &rpc.Error{Code: rpc.CodeServerError, Message: "ranking failed"}
		}
		return map[string]interface{}{"items": items}, nil
	default:
		return nil, &rpc.Error{Code: rpc.CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
}

type rankedProduct struct {
	ProductID      string  `json:"product_id"`
	Name           string  `json:"name,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
	Reasoning      string  `json:"reasoning,omitempty"`
}

func (h *SalesHandler) rankTenant(c echo.Context, tenant models.Tenant, brief string, snippets []string) ([]rankedProduct, error) {
	agent := models.Agent{
		ID:         store.TenantAgentID(tenant.ID),
		Name:       tenant.Name,
		Kind:       models.AgentInternalSales,
		Enabled:    true,
		TenantID:   tenant.ID,
		Prompt:     tenant.CustomPrompt,
		WebContext: tenant.EnableWebContext,
	}
	out, err := h.Orch.RankInternal(c.Request().Context(), brief, agent, snippets)
	if err != nil {
		return nil, err
	}
	items := make([]rankedProduct, 0, len(out.Items))
	for _, it := range out.Items {
		items = append(items, rankedProduct{ProductID: it.CandidateID, Name: it.Name, RelevanceScore: it.Score, Reasoning: it.Rationale})
	}
	return items, nil
}

// closeSession only deletes sessions owned by the tenant in the path. A
// foreign or unknown session id is answered the same way as a closed one.
func (h *SalesHandler) closeSession(c echo.Context) error {
	ctx := c.Request().Context()
	tenant, err := h.Tenants.GetTenantBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, models.ErrTenantNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "tenant lookup failed")
	}
	sid := c.Request().Header.Get(rpc.SessionHeader)
	if sid == "" {
		return c.NoContent(http.StatusNoContent)
	}
	if _, err := h.Sessions.Validate(ctx, sid, tenant.ID, h.TTL); err != nil {
		h.log.Info("session delete rejected", zap.String("tenant", tenant.Slug), zap.String("session", rpc.ShortID(sid)))
		return c.NoContent(http.StatusNoContent)
	}
	if err := h.Sessions.Delete(ctx, sid); err != nil {
		h.log.Debug("session delete failed", zap.String("session", rpc.ShortID(sid)), zap.Error(err))
	}
	return c.NoContent(http.StatusNoContent)
}

// rank is the REST shim for callers that do not speak JSON-RPC.
func (h *SalesHandler) rank(c echo.Context) error {
	var req struct {
		Brief string `json:"brief" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "brief is required")
	}
	tenant, err := h.Tenants.GetTenantBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, models.ErrTenantNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "tenant lookup failed")
	}
	items, err := h.rankTenant(c, tenant, req.Brief, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "ranking failed")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": items})
}

func writeRPC(c echo.Context, resp rpc.Response) error {
	return c.JSON(http.StatusOK, resp)
}

func stringList(v interface{}) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, errors.New("web_snippets must be a list of strings")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, errors.New("web_snippets must be a list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}
