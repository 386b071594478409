package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apierrors "github.com/riddle022/farmavision/pkg/api/errors"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/middleware"
	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/scoring"
	"github.com/riddle022/farmavision/pkg/store"
)

// PharmaciesHandler exposes the competitor registry and its scoring.
type PharmaciesHandler struct {
	store   *store.Store
	scoring *scoring.Service
	log     logger.Logger
}

// NewPharmaciesHandler creates the registry handler.
func NewPharmaciesHandler(st *store.Store, sc *scoring.Service, log logger.Logger) *PharmaciesHandler {
	return &PharmaciesHandler{store: st, scoring: sc, log: log}
}

// List returns every pharmacy seen for this user, own store included.
func (h *PharmaciesHandler) List(c echo.Context) error {
	rows, err := h.store.Pharmacies.List(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return apierrors.Internal(c, err)
	}
	if rows == nil {
		rows = []models.Pharmacy{}
	}
	return c.JSON(http.StatusOK, rows)
}

type ownRequest struct {
	IsOwn bool `json:"is_own"`
}

// SetOwn marks or unmarks a pharmacy as the user's own store. Own stores are
// excluded from competitor statistics.
func (h *PharmaciesHandler) SetOwn(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}
	var req ownRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.BadRequest(c, "corpo da requisição inválido")
	}

	err = h.store.Pharmacies.SetOwn(c.Request().Context(), middleware.UserID(c), id, req.IsOwn)
	if errors.Is(err, store.ErrNotFound) {
		return apierrors.NotFound(c)
	}
	if err != nil {
		return apierrors.Internal(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Farmácia atualizada"})
}

// Score recomputes the user's competitor scores and returns the new board.
func (h *PharmaciesHandler) Score(c echo.Context) error {
	scores, err := h.scoring.ScoreUser(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return apierrors.Internal(c, err)
	}
	return c.JSON(http.StatusOK, scores)
}

// Ranking returns the best scored competitors, default 5.
func (h *PharmaciesHandler) Ranking(c echo.Context) error {
	limit := 5
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 100 {
			return apierrors.BadRequest(c, "limit deve estar entre 1 e 100")
		}
		limit = v
	}

	rows, err := h.store.Pharmacies.TopRanked(c.Request().Context(), middleware.UserID(c), limit)
	if err != nil {
		return apierrors.Internal(c, err)
	}
	if rows == nil {
		rows = []models.Pharmacy{}
	}
	return c.JSON(http.StatusOK, rows)
}
