// Package handlers exposes the HTTP surface of the price intelligence API.
// Handlers stay thin: parse, delegate to a service, translate errors.
package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	apierrors "github.com/riddle022/farmavision/pkg/api/errors"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/middleware"
	"github.com/riddle022/farmavision/pkg/search"
	"github.com/riddle022/farmavision/pkg/upstream"
)

// defaultRadiusKM applies when a query carries no raio parameter.
const defaultRadiusKM = 10

// PricesHandler serves the public price endpoint. A single route multiplexed
// by the action parameter, mirroring the upstream API it fronts.
type PricesHandler struct {
	search *search.Service
	log    logger.Logger
}

// NewPricesHandler creates the public price query handler.
func NewPricesHandler(s *search.Service, log logger.Logger) *PricesHandler {
	return &PricesHandler{search: s, log: log}
}

// Query dispatches GET requests by their action parameter.
func (h *PricesHandler) Query(c echo.Context) error {
	switch c.QueryParam("action") {
	case "categories":
		return h.categories(c)
	case "products":
		return h.products(c)
	case "fuel":
		return h.fuel(c)
	default:
		return apierrors.BadRequest(c, "ação inválida: use categories, products ou fuel")
	}
}

func (h *PricesHandler) categories(c echo.Context) error {
	termo := strings.TrimSpace(c.QueryParam("termo"))
	if termo == "" {
		return apierrors.BadRequest(c, "informe o parâmetro termo")
	}
	raio, err := parseRadius(c.QueryParam("raio"))
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}
	ordem, err := parseOrdering(c.QueryParam("ordem"))
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}

	result, err := h.search.Categories(c.Request().Context(), middleware.CallerID(c), search.ProductQuery{
		Term:     termo,
		RadiusKM: raio,
		Ordering: ordem,
		Lat:      parseCoord(c.QueryParam("lat")),
		Lon:      parseCoord(c.QueryParam("lon")),
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *PricesHandler) products(c echo.Context) error {
	termo := strings.TrimSpace(c.QueryParam("termo"))
	categoria := strings.TrimSpace(c.QueryParam("categoria"))
	if termo == "" && categoria == "" {
		return apierrors.BadRequest(c, "informe termo ou categoria")
	}
	raio, err := parseRadius(c.QueryParam("raio"))
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}
	ordem, err := parseOrdering(c.QueryParam("ordem"))
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}

	result, err := h.search.Products(c.Request().Context(), middleware.CallerID(c), search.ProductQuery{
		Term:     termo,
		Category: categoria,
		RadiusKM: raio,
		Ordering: ordem,
		Lat:      parseCoord(c.QueryParam("lat")),
		Lon:      parseCoord(c.QueryParam("lon")),
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *PricesHandler) fuel(c echo.Context) error {
	raw := strings.TrimSpace(c.QueryParam("tipo"))
	if raw == "" {
		return apierrors.BadRequest(c, "informe o parâmetro tipo")
	}
	tipo, err := strconv.Atoi(raw)
	if err != nil || tipo < 1 || tipo > 4 {
		return apierrors.BadRequest(c, "tipo deve estar entre 1 e 4")
	}
	raio, err := parseRadius(c.QueryParam("raio"))
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}
	ordem, err := parseOrdering(c.QueryParam("ordem"))
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}

	result, err := h.search.Fuel(c.Request().Context(), middleware.CallerID(c), search.FuelQuery{
		Kind:     tipo,
		RadiusKM: raio,
		Ordering: ordem,
		Lat:      parseCoord(c.QueryParam("lat")),
		Lon:      parseCoord(c.QueryParam("lon")),
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type snapshotRequest struct {
	Termos []string `json:"termos"`
	Raio   int      `json:"raio"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
}

// Snapshot serves POST requests. Only the snapshot action exists on POST.
func (h *PricesHandler) Snapshot(c echo.Context) error {
	if c.QueryParam("action") != "snapshot" {
		return apierrors.BadRequest(c, "ação inválida: use snapshot")
	}

	var req snapshotRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.BadRequest(c, "corpo da requisição inválido")
	}
	if len(req.Termos) == 0 {
		return apierrors.BadRequest(c, "informe ao menos um termo")
	}
	if len(req.Termos) > search.MaxSnapshotTerms {
		return apierrors.BadRequest(c, fmt.Sprintf("no máximo %d termos por consulta", search.MaxSnapshotTerms))
	}

	raio := req.Raio
	if raio == 0 {
		raio = defaultRadiusKM
	}
	if raio < search.MinRadiusKM || raio > search.MaxRadiusKM {
		return apierrors.BadRequest(c, fmt.Sprintf("raio deve estar entre %d e %d km", search.MinRadiusKM, search.MaxRadiusKM))
	}

	lat, lon := math.NaN(), math.NaN()
	if req.Lat != nil {
		lat = *req.Lat
	}
	if req.Lon != nil {
		lon = *req.Lon
	}

	result, err := h.search.Snapshot(c.Request().Context(), middleware.CallerID(c), search.SnapshotQuery{
		Terms:    req.Termos,
		RadiusKM: raio,
		Lat:      lat,
		Lon:      lon,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *PricesHandler) respondError(c echo.Context, err error) error {
	var quotaErr *search.QuotaError
	switch {
	case errors.As(err, &quotaErr):
		return apierrors.TooManyRequests(c, quotaErr.RetryAfter)
	case errors.Is(err, search.ErrRateLimited):
		return apierrors.TooManyRequests(c, 0)
	case errors.Is(err, search.ErrInvalidQuery):
		return apierrors.BadRequest(c, "parâmetros de busca inválidos")
	default:
		return apierrors.Upstream(c, err)
	}
}

// parseCoord reads an optional coordinate. Absent or malformed values become
// NaN, which the spatial layer resolves to the default region.
func parseCoord(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseRadius(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultRadiusKM, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("raio deve ser um número inteiro")
	}
	if v < search.MinRadiusKM || v > search.MaxRadiusKM {
		return 0, fmt.Errorf("raio deve estar entre %d e %d km", search.MinRadiusKM, search.MaxRadiusKM)
	}
	return v, nil
}

func parseOrdering(raw string) (upstream.Ordering, error) {
	switch strings.TrimSpace(raw) {
	case "", "preco":
		return upstream.OrderByPrice, nil
	case "distancia":
		return upstream.OrderByDistance, nil
	default:
		return upstream.OrderByPrice, errors.New("ordem deve ser preco ou distancia")
	}
}
