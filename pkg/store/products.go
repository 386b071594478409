package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/riddle022/farmavision/pkg/models"
)

// ProductStore persists the user's own product catalog.
type ProductStore interface {
	Create(ctx context.Context, product *models.Product) error
	ByID(ctx context.Context, userID, id uint) (*models.Product, error)
	ByIDs(ctx context.Context, userID uint, ids []uint) ([]models.Product, error)
	List(ctx context.Context, userID uint) ([]models.Product, error)
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, userID, id uint) error
	Count(ctx context.Context, userID uint) (int64, error)
	CountPriced(ctx context.Context, userID uint) (int64, error)
	DistinctUserIDs(ctx context.Context) ([]uint, error)
}

type productStore struct {
	db *gorm.DB
}

// NewProductStore returns the gorm-backed ProductStore.
func NewProductStore(db *gorm.DB) ProductStore {
	return &productStore{db: db}
}

func (s *productStore) Create(ctx context.Context, product *models.Product) error {
	if err := s.db.WithContext(ctx).Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (s *productStore) ByID(ctx context.Context, userID, id uint) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		First(&product).Error
	if err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

func (s *productStore) ByIDs(ctx context.Context, userID uint, ids []uint) ([]models.Product, error) {
	var products []models.Product
	if len(ids) == 0 {
		return products, nil
	}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *productStore) List(ctx context.Context, userID uint) ([]models.Product, error) {
	var products []models.Product
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("name").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *productStore) Update(ctx context.Context, product *models.Product) error {
	if err := s.db.WithContext(ctx).Save(product).Error; err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

func (s *productStore) Delete(ctx context.Context, userID, id uint) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		Delete(&models.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *productStore) Count(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (s *productStore) CountPriced(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("user_id = ? AND own_price IS NOT NULL", userID).
		Count(&count).Error
	return count, err
}

func (s *productStore) DistinctUserIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Distinct("user_id").
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
