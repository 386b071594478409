// Package products manages the user's own catalog, the left side of every
// price comparison.
package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/store"
)

// ErrInvalidInput covers empty names and non-positive prices.
var ErrInvalidInput = errors.New("products: invalid input")

// Input carries the writable product fields.
type Input struct {
	Name             string
	ActiveIngredient string
	Category         string
	OwnPrice         *float64
}

// Service validates and persists catalog products.
type Service struct {
	store *store.Store
	log   logger.Logger
}

// NewService wires the catalog service.
func NewService(st *store.Store, log logger.Logger) *Service {
	return &Service{store: st, log: log}
}

// Create adds a product to the user's catalog.
func (s *Service) Create(ctx context.Context, userID uint, in Input) (*models.Product, error) {
	product := &models.Product{UserID: userID}
	if err := apply(product, in); err != nil {
		return nil, err
	}
	if err := s.store.Products.Create(ctx, product); err != nil {
		return nil, err
	}
	s.log.Info("product created", "user_id", userID, "product_id", product.ID, "name", product.Name)
	return product, nil
}

// Update replaces the product's fields.
func (s *Service) Update(ctx context.Context, userID, id uint, in Input) (*models.Product, error) {
	product, err := s.store.Products.ByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := apply(product, in); err != nil {
		return nil, err
	}
	if err := s.store.Products.Update(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// SetOwnPrice prices the product, or clears the price with nil.
func (s *Service) SetOwnPrice(ctx context.Context, userID, id uint, price *float64) (*models.Product, error) {
	if price != nil && *price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	product, err := s.store.Products.ByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	product.OwnPrice = price
	if err := s.store.Products.Update(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, userID, id uint) (*models.Product, error) {
	return s.store.Products.ByID(ctx, userID, id)
}

// List returns the user's catalog.
func (s *Service) List(ctx context.Context, userID uint) ([]models.Product, error) {
	return s.store.Products.List(ctx, userID)
}

// Delete removes a product from the catalog. Past observations keep their
// rows; the time series outlives the catalog entry.
func (s *Service) Delete(ctx context.Context, userID, id uint) error {
	return s.store.Products.Delete(ctx, userID, id)
}

func apply(product *models.Product, in Input) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.OwnPrice != nil && *in.OwnPrice <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	product.Name = name
	product.ActiveIngredient = strings.TrimSpace(in.ActiveIngredient)
	product.Category = strings.TrimSpace(in.Category)
	product.OwnPrice = in.OwnPrice
	return nil
}
