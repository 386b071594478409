package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/riddle022/farmavision/pkg/dashboard"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/middleware"
)

// DashboardHandler serves the aggregated dashboard summary.
type DashboardHandler struct {
	dashboard *dashboard.Service
	log       logger.Logger
}

// NewDashboardHandler creates the dashboard handler.
func NewDashboardHandler(svc *dashboard.Service, log logger.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: svc, log: log}
}

// Summary returns the user's dashboard. refresh=true bypasses the cache and
// rebuilds from storage.
func (h *DashboardHandler) Summary(c echo.Context) error {
	refresh := c.QueryParam("refresh") == "true" || c.QueryParam("refresh") == "1"
	summary := h.dashboard.Build(c.Request().Context(), middleware.UserID(c), refresh)
	return c.JSON(http.StatusOK, summary)
}
