package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	apierrors "github.com/riddle022/farmavision/pkg/api/errors"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/middleware"
	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/monitor"
	"github.com/riddle022/farmavision/pkg/products"
	"github.com/riddle022/farmavision/pkg/profiles"
	"github.com/riddle022/farmavision/pkg/search"
	"github.com/riddle022/farmavision/pkg/store"
)

// MonitorHandler triggers competitor monitoring passes.
type MonitorHandler struct {
	monitor  *monitor.Service
	profiles *profiles.Service
	products *products.Service
	log      logger.Logger
}

// NewMonitorHandler creates the monitoring handler.
func NewMonitorHandler(mon *monitor.Service, prof *profiles.Service, prod *products.Service, log logger.Logger) *MonitorHandler {
	return &MonitorHandler{monitor: mon, profiles: prof, products: prod, log: log}
}

type runRequest struct {
	ProfileID uint `json:"profile_id"`
}

// Run executes one monitoring pass. Without a profile_id in the body the
// user's active profile is used; a profile without products monitors the
// whole catalog.
func (h *MonitorHandler) Run(c echo.Context) error {
	userID := middleware.UserID(c)
	ctx := c.Request().Context()

	var req runRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.BadRequest(c, "corpo da requisição inválido")
	}

	var (
		profile *models.SearchProfile
		err     error
	)
	if req.ProfileID != 0 {
		profile, err = h.profiles.Get(ctx, userID, req.ProfileID)
		if errors.Is(err, store.ErrNotFound) {
			return apierrors.NotFound(c)
		}
	} else {
		profile, err = h.profiles.Active(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return apierrors.BadRequest(c, "nenhum perfil ativo: ative um perfil ou informe profile_id")
		}
	}
	if err != nil {
		return apierrors.Internal(c, err)
	}

	items := profile.Products
	if len(items) == 0 {
		items, err = h.products.List(ctx, userID)
		if err != nil {
			return apierrors.Internal(c, err)
		}
	}
	if len(items) == 0 {
		return apierrors.BadRequest(c, "nenhum produto para monitorar: cadastre produtos no catálogo")
	}

	result, err := h.monitor.RunBatch(ctx, userID, middleware.CallerID(c), monitor.BatchRequest{
		Lat:      profile.Latitude,
		Lon:      profile.Longitude,
		RadiusKM: profile.RadiusKM,
		Products: items,
	})
	if err != nil {
		var quotaErr *search.QuotaError
		if errors.As(err, &quotaErr) {
			return apierrors.TooManyRequests(c, quotaErr.RetryAfter)
		}
		return apierrors.Internal(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
