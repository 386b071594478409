package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apierrors "github.com/riddle022/farmavision/pkg/api/errors"
	"github.com/riddle022/farmavision/pkg/insights"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/middleware"
	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/store"
)

// InsightsHandler serves AI-written market narratives.
type InsightsHandler struct {
	insights *insights.Service
	store    *store.Store
	log      logger.Logger
}

// NewInsightsHandler creates the insights handler.
func NewInsightsHandler(svc *insights.Service, st *store.Store, log logger.Logger) *InsightsHandler {
	return &InsightsHandler{insights: svc, store: st, log: log}
}

// List returns the user's most recent insights, default 10.
func (h *InsightsHandler) List(c echo.Context) error {
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 50 {
			return apierrors.BadRequest(c, "limit deve estar entre 1 e 50")
		}
		limit = v
	}

	rows, err := h.store.Insights.ListRecent(c.Request().Context(), middleware.UserID(c), limit)
	if err != nil {
		return apierrors.Internal(c, err)
	}
	if rows == nil {
		rows = []models.Insight{}
	}
	return c.JSON(http.StatusOK, rows)
}

// Generate writes a fresh insight from the user's current statistics.
func (h *InsightsHandler) Generate(c echo.Context) error {
	insight, err := h.insights.GenerateAndStore(c.Request().Context(), middleware.UserID(c))
	switch {
	case errors.Is(err, insights.ErrNotConfigured):
		return apierrors.Unavailable(c, "geração automática de insights não está configurada")
	case errors.Is(err, insights.ErrNoData):
		return apierrors.BadRequest(c, "sem dados para analisar: cadastre produtos e execute o monitoramento")
	case err != nil:
		return apierrors.Internal(c, err)
	}
	return c.JSON(http.StatusCreated, insight)
}
