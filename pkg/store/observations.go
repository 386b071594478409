package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/riddle022/farmavision/pkg/models"
)

// ObservationStore persists competitor price observations. The table is
// append-only: there are deliberately no update or delete methods.
type ObservationStore interface {
	Insert(ctx context.Context, obs *models.PriceObservation) error
	ListSince(ctx context.Context, userID uint, since time.Time) ([]models.PriceObservation, error)
	ListForProductSince(ctx context.Context, userID, productID uint, since time.Time) ([]models.PriceObservation, error)
	CountSince(ctx context.Context, userID uint, since time.Time) (int64, error)
}

type observationStore struct {
	db *gorm.DB
}

// NewObservationStore returns the gorm-backed ObservationStore.
func NewObservationStore(db *gorm.DB) ObservationStore {
	return &observationStore{db: db}
}

func (s *observationStore) Insert(ctx context.Context, obs *models.PriceObservation) error {
	if err := s.db.WithContext(ctx).Create(obs).Error; err != nil {
		return fmt.Errorf("failed to insert observation: %w", err)
	}
	return nil
}

func (s *observationStore) ListSince(ctx context.Context, userID uint, since time.Time) ([]models.PriceObservation, error) {
	var observations []models.PriceObservation
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND collected_at >= ?", userID, since).
		Order("collected_at").
		Find(&observations).Error
	if err != nil {
		return nil, err
	}
	return observations, nil
}

func (s *observationStore) ListForProductSince(ctx context.Context, userID, productID uint, since time.Time) ([]models.PriceObservation, error) {
	var observations []models.PriceObservation
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ? AND collected_at >= ?", userID, productID, since).
		Order("collected_at").
		Find(&observations).Error
	if err != nil {
		return nil, err
	}
	return observations, nil
}

func (s *observationStore) CountSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.PriceObservation{}).
		Where("user_id = ? AND collected_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}
