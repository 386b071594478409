package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/riddle022/farmavision/pkg/api/errors"
	"github.com/riddle022/farmavision/pkg/geocode"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/middleware"
	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/profiles"
	"github.com/riddle022/farmavision/pkg/store"
)

// ProfilesHandler manages saved monitoring setups.
type ProfilesHandler struct {
	profiles  *profiles.Service
	validator *validator.Validate
	log       logger.Logger
}

// NewProfilesHandler creates the profile handler.
func NewProfilesHandler(svc *profiles.Service, log logger.Logger) *ProfilesHandler {
	return &ProfilesHandler{profiles: svc, validator: validator.New(), log: log}
}

type profileRequest struct {
	Name       string  `json:"name" validate:"required,min=2,max=255"`
	Mode       string  `json:"location_mode" validate:"required,oneof=device city cep"`
	Lat        float64 `json:"latitude"`
	Lon        float64 `json:"longitude"`
	City       string  `json:"city" validate:"max=120"`
	CEP        string  `json:"cep" validate:"max=10"`
	RadiusKM   int     `json:"radius_km" validate:"omitempty,min=1,max=50"`
	ProductIDs []uint  `json:"product_ids"`
	Activate   bool    `json:"activate"`
}

func (r profileRequest) toInput() profiles.Input {
	return profiles.Input{
		Name:       r.Name,
		Mode:       models.LocationMode(r.Mode),
		Lat:        r.Lat,
		Lon:        r.Lon,
		City:       r.City,
		CEP:        r.CEP,
		RadiusKM:   r.RadiusKM,
		ProductIDs: r.ProductIDs,
		Activate:   r.Activate,
	}
}

// List returns the user's profiles.
func (h *ProfilesHandler) List(c echo.Context) error {
	rows, err := h.profiles.List(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return apierrors.Internal(c, err)
	}
	if rows == nil {
		rows = []models.SearchProfile{}
	}
	return c.JSON(http.StatusOK, rows)
}

// Get returns one profile with its products.
func (h *ProfilesHandler) Get(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}
	profile, err := h.profiles.Get(c.Request().Context(), middleware.UserID(c), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

// Create persists a new profile.
func (h *ProfilesHandler) Create(c echo.Context) error {
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.BadRequest(c, "corpo da requisição inválido")
	}
	if err := h.validator.Struct(&req); err != nil {
		return apierrors.Validation(c, err)
	}

	profile, err := h.profiles.Create(c.Request().Context(), middleware.UserID(c), req.toInput())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, profile)
}

// Update replaces a profile's fields.
func (h *ProfilesHandler) Update(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.BadRequest(c, "corpo da requisição inválido")
	}
	if err := h.validator.Struct(&req); err != nil {
		return apierrors.Validation(c, err)
	}

	profile, err := h.profiles.Update(c.Request().Context(), middleware.UserID(c), id, req.toInput())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

// Activate makes one profile the user's active one.
func (h *ProfilesHandler) Activate(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}
	if err := h.profiles.Activate(c.Request().Context(), middleware.UserID(c), id); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Perfil ativado"})
}

// Delete removes a profile.
func (h *ProfilesHandler) Delete(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}
	if err := h.profiles.Delete(c.Request().Context(), middleware.UserID(c), id); err != nil {
		return h.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Cities returns the reference city catalog for profile forms.
func (h *ProfilesHandler) Cities(c echo.Context) error {
	return c.JSON(http.StatusOK, profiles.Cities())
}

func (h *ProfilesHandler) respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apierrors.NotFound(c)
	case errors.Is(err, profiles.ErrUnknownCity):
		return apierrors.BadRequest(c, "cidade fora do catálogo de referência")
	case errors.Is(err, profiles.ErrInvalidLocation):
		return apierrors.BadRequest(c, "coordenadas fora do intervalo válido")
	case errors.Is(err, geocode.ErrInvalidCEP):
		return apierrors.BadRequest(c, "CEP inválido: informe 8 dígitos")
	case errors.Is(err, geocode.ErrNotFound):
		return apierrors.BadRequest(c, "CEP não encontrado")
	case errors.Is(err, geocode.ErrNoCoordinates):
		return apierrors.BadRequest(c, "CEP sem coordenadas conhecidas; use o modo cidade ou dispositivo")
	case errors.Is(err, profiles.ErrInvalidInput):
		return apierrors.BadRequest(c, "dados do perfil inválidos")
	default:
		return apierrors.Internal(c, err)
	}
}
