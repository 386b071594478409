package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/riddle022/farmavision/pkg/models"
)

// PharmacyStore persists the per-user competitor registry.
type PharmacyStore interface {
	ByID(ctx context.Context, userID, id uint) (*models.Pharmacy, error)
	ByNameKey(ctx context.Context, userID uint, nameKey string) (*models.Pharmacy, error)
	// FindOrCreate returns the existing row matching (user, name key) or
	// creates it. Safe under concurrent monitoring goroutines.
	FindOrCreate(ctx context.Context, pharmacy *models.Pharmacy) (*models.Pharmacy, error)
	Save(ctx context.Context, pharmacy *models.Pharmacy) error
	List(ctx context.Context, userID uint) ([]models.Pharmacy, error)
	ListCompetitors(ctx context.Context, userID uint) ([]models.Pharmacy, error)
	TopRanked(ctx context.Context, userID uint, limit int) ([]models.Pharmacy, error)
	UpdateScore(ctx context.Context, id uint, score float64, rank int, at time.Time) error
	SetOwn(ctx context.Context, userID, id uint, isOwn bool) error
	CountCompetitors(ctx context.Context, userID uint) (int64, error)
	DistinctUserIDs(ctx context.Context) ([]uint, error)
}

type pharmacyStore struct {
	db *gorm.DB
}

// NewPharmacyStore returns the gorm-backed PharmacyStore.
func NewPharmacyStore(db *gorm.DB) PharmacyStore {
	return &pharmacyStore{db: db}
}

func (s *pharmacyStore) ByID(ctx context.Context, userID, id uint) (*models.Pharmacy, error) {
	var pharmacy models.Pharmacy
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		First(&pharmacy).Error
	if err != nil {
		return nil, translate(err)
	}
	return &pharmacy, nil
}

func (s *pharmacyStore) ByNameKey(ctx context.Context, userID uint, nameKey string) (*models.Pharmacy, error) {
	var pharmacy models.Pharmacy
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND name_key = ?", userID, nameKey).
		First(&pharmacy).Error
	if err != nil {
		return nil, translate(err)
	}
	return &pharmacy, nil
}

func (s *pharmacyStore) FindOrCreate(ctx context.Context, pharmacy *models.Pharmacy) (*models.Pharmacy, error) {
	existing, err := s.ByNameKey(ctx, pharmacy.UserID, pharmacy.NameKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if createErr := s.db.WithContext(ctx).Create(pharmacy).Error; createErr != nil {
		// A concurrent goroutine may have inserted the same (user, name key)
		// first; the unique index rejects ours, so re-read theirs.
		existing, err = s.ByNameKey(ctx, pharmacy.UserID, pharmacy.NameKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create pharmacy: %w", createErr)
		}
		return existing, nil
	}
	return pharmacy, nil
}

func (s *pharmacyStore) Save(ctx context.Context, pharmacy *models.Pharmacy) error {
	if err := s.db.WithContext(ctx).Save(pharmacy).Error; err != nil {
		return fmt.Errorf("failed to save pharmacy: %w", err)
	}
	return nil
}

func (s *pharmacyStore) List(ctx context.Context, userID uint) ([]models.Pharmacy, error) {
	var pharmacies []models.Pharmacy
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("name").
		Find(&pharmacies).Error
	if err != nil {
		return nil, err
	}
	return pharmacies, nil
}

func (s *pharmacyStore) ListCompetitors(ctx context.Context, userID uint) ([]models.Pharmacy, error) {
	var pharmacies []models.Pharmacy
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_own = ?", userID, false).
		Order("id").
		Find(&pharmacies).Error
	if err != nil {
		return nil, err
	}
	return pharmacies, nil
}

func (s *pharmacyStore) TopRanked(ctx context.Context, userID uint, limit int) ([]models.Pharmacy, error) {
	var pharmacies []models.Pharmacy
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_own = ? AND rank IS NOT NULL", userID, false).
		Order("rank").
		Limit(limit).
		Find(&pharmacies).Error
	if err != nil {
		return nil, err
	}
	return pharmacies, nil
}

func (s *pharmacyStore) UpdateScore(ctx context.Context, id uint, score float64, rank int, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Pharmacy{}).
		Where("id = ?", id).
		Updates(map[string]any{"score": score, "rank": rank, "scored_at": at}).Error
}

func (s *pharmacyStore) SetOwn(ctx context.Context, userID, id uint, isOwn bool) error {
	res := s.db.WithContext(ctx).
		Model(&models.Pharmacy{}).
		Where("user_id = ? AND id = ?", userID, id).
		Update("is_own", isOwn)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pharmacyStore) CountCompetitors(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Pharmacy{}).
		Where("user_id = ? AND is_own = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (s *pharmacyStore) DistinctUserIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.Pharmacy{}).
		Distinct("user_id").
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
