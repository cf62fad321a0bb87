package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	core "github.com/mohammad-safakhou/briefer/internal/agent/core"
	"github.com/mohammad-safakhou/briefer/models"
	"go.uber.org/zap"
)

type BriefsHandler struct {
	Orch     *core.Orchestrator
	Registry Registry
	log      *zap.Logger
}

type BriefRequest struct {
	Brief  string   `json:"brief" validate:"required,max=4000"`
	Agents []string `json:"agents" validate:"required,min=1,max=64,dive,required"`
}

func (h *BriefsHandler) Register(g *echo.Group) {
	g.POST("/briefs", h.rank)
	g.GET("/agents", h.agents)
}

func (h *BriefsHandler) rank(c echo.Context) error {
	var req BriefRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	agents, err := h.Registry.ListAgents(ctx, req.Agents)
	if err != nil {
		if errors.Is(err, models.ErrAgentNotFound) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "agent registry unavailable")
	}
	res, err := h.Orch.Orchestrate(ctx, req.Brief, agents)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	h.log.Info("brief ranked", zap.String("request_id", res.RequestID), zap.Int("agents", len(res.Order)),
		zap.Int("skipped", len(res.Skipped)), zap.Duration("elapsed", res.Elapsed))
	return c.JSON(http.StatusOK, res)
}

func (h *BriefsHandler) agents(c echo.Context) error {
	agents, err := h.Registry.AvailableAgents(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "agent registry unavailable")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"agents": agents})
}
