package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/riddle022/farmavision/pkg/api/errors"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/middleware"
	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/products"
	"github.com/riddle022/farmavision/pkg/store"
)

// ProductsHandler manages the user's own catalog.
type ProductsHandler struct {
	products  *products.Service
	validator *validator.Validate
	log       logger.Logger
}

// NewProductsHandler creates the catalog handler.
func NewProductsHandler(svc *products.Service, log logger.Logger) *ProductsHandler {
	return &ProductsHandler{products: svc, validator: validator.New(), log: log}
}

type productRequest struct {
	Name             string   `json:"name" validate:"required,min=2,max=255"`
	ActiveIngredient string   `json:"active_ingredient" validate:"max=255"`
	Category         string   `json:"category" validate:"max=100"`
	OwnPrice         *float64 `json:"own_price" validate:"omitempty,gt=0"`
}

func (r productRequest) toInput() products.Input {
	return products.Input{
		Name:             r.Name,
		ActiveIngredient: r.ActiveIngredient,
		Category:         r.Category,
		OwnPrice:         r.OwnPrice,
	}
}

// List returns the user's catalog ordered by name.
func (h *ProductsHandler) List(c echo.Context) error {
	rows, err := h.products.List(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return apierrors.Internal(c, err)
	}
	if rows == nil {
		rows = []models.Product{}
	}
	return c.JSON(http.StatusOK, rows)
}

// Get returns one product.
func (h *ProductsHandler) Get(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}
	product, err := h.products.Get(c.Request().Context(), middleware.UserID(c), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

// Create adds a product to the catalog.
func (h *ProductsHandler) Create(c echo.Context) error {
	var req productRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.BadRequest(c, "corpo da requisição inválido")
	}
	if err := h.validator.Struct(&req); err != nil {
		return apierrors.Validation(c, err)
	}

	product, err := h.products.Create(c.Request().Context(), middleware.UserID(c), req.toInput())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, product)
}

// Update replaces a product's fields.
func (h *ProductsHandler) Update(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}
	var req productRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.BadRequest(c, "corpo da requisição inválido")
	}
	if err := h.validator.Struct(&req); err != nil {
		return apierrors.Validation(c, err)
	}

	product, err := h.products.Update(c.Request().Context(), middleware.UserID(c), id, req.toInput())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

type productPriceRequest struct {
	OwnPrice *float64 `json:"own_price" validate:"omitempty,gt=0"`
}

// SetPrice sets or clears the user's own price for a product.
func (h *ProductsHandler) SetPrice(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}
	var req productPriceRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.BadRequest(c, "corpo da requisição inválido")
	}
	if err := h.validator.Struct(&req); err != nil {
		return apierrors.Validation(c, err)
	}

	product, err := h.products.SetOwnPrice(c.Request().Context(), middleware.UserID(c), id, req.OwnPrice)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

// Delete removes a product from the catalog.
func (h *ProductsHandler) Delete(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}
	if err := h.products.Delete(c.Request().Context(), middleware.UserID(c), id); err != nil {
		return h.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ProductsHandler) respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apierrors.NotFound(c)
	case errors.Is(err, products.ErrInvalidInput):
		return apierrors.BadRequest(c, "dados do produto inválidos")
	default:
		return apierrors.Internal(c, err)
	}
}

// parseID reads a positive numeric path parameter.
func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("identificador inválido")
	}
	return uint(id), nil
}
