package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/riddle022/farmavision/pkg/models"
)

// ProfileStore persists search profiles. Activation keeps the single-active
// invariant inside one transaction: deactivate the rest, activate the target,
// or change nothing at all.
type ProfileStore interface {
	Create(ctx context.Context, profile *models.SearchProfile, productIDs []uint) error
	ByID(ctx context.Context, userID, id uint) (*models.SearchProfile, error)
	List(ctx context.Context, userID uint) ([]models.SearchProfile, error)
	Update(ctx context.Context, profile *models.SearchProfile, productIDs []uint) error
	Delete(ctx context.Context, userID, id uint) error
	Activate(ctx context.Context, userID, id uint) error
	Active(ctx context.Context, userID uint) (*models.SearchProfile, error)
	ListActive(ctx context.Context) ([]models.SearchProfile, error)
}

type profileStore struct {
	db *gorm.DB
}

// NewProfileStore returns the gorm-backed ProfileStore.
func NewProfileStore(db *gorm.DB) ProfileStore {
	return &profileStore{db: db}
}

func (s *profileStore) Create(ctx context.Context, profile *models.SearchProfile, productIDs []uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(profile).Error; err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}
		return s.replaceProducts(tx, profile, productIDs)
	})
}

func (s *profileStore) ByID(ctx context.Context, userID, id uint) (*models.SearchProfile, error) {
	var profile models.SearchProfile
	err := s.db.WithContext(ctx).
		Preload("Products").
		Where("user_id = ? AND id = ?", userID, id).
		First(&profile).Error
	if err != nil {
		return nil, translate(err)
	}
	return &profile, nil
}

func (s *profileStore) List(ctx context.Context, userID uint) ([]models.SearchProfile, error) {
	var profiles []models.SearchProfile
	err := s.db.WithContext(ctx).
		Preload("Products").
		Where("user_id = ?", userID).
		Order("id").
		Find(&profiles).Error
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

func (s *profileStore) Update(ctx context.Context, profile *models.SearchProfile, productIDs []uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SearchProfile{}).
			Where("user_id = ? AND id = ?", profile.UserID, profile.ID).
			Updates(map[string]any{
				"name":          profile.Name,
				"location_mode": profile.LocationMode,
				"latitude":      profile.Latitude,
				"longitude":     profile.Longitude,
				"city":          profile.City,
				"postal_code":   profile.PostalCode,
				"radius_km":     profile.RadiusKM,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if productIDs == nil {
			return nil
		}
		return s.replaceProducts(tx, profile, productIDs)
	})
}

func (s *profileStore) Delete(ctx context.Context, userID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.SearchProfile
		if err := tx.Where("user_id = ? AND id = ?", userID, id).First(&profile).Error; err != nil {
			return translate(err)
		}
		if err := tx.Model(&profile).Association("Products").Clear(); err != nil {
			return err
		}
		return tx.Delete(&profile).Error
	})
}

func (s *profileStore) Activate(ctx context.Context, userID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.SearchProfile
		if err := tx.Where("user_id = ? AND id = ?", userID, id).First(&profile).Error; err != nil {
			return translate(err)
		}
		if err := tx.Model(&models.SearchProfile{}).
			Where("user_id = ? AND active = ?", userID, true).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.SearchProfile{}).
			Where("user_id = ? AND id = ?", userID, id).
			Update("active", true).Error
	})
}

func (s *profileStore) Active(ctx context.Context, userID uint) (*models.SearchProfile, error) {
	var profile models.SearchProfile
	err := s.db.WithContext(ctx).
		Preload("Products").
		Where("user_id = ? AND active = ?", userID, true).
		First(&profile).Error
	if err != nil {
		return nil, translate(err)
	}
	return &profile, nil
}

func (s *profileStore) ListActive(ctx context.Context) ([]models.SearchProfile, error) {
	var profiles []models.SearchProfile
	err := s.db.WithContext(ctx).
		Preload("Products").
		Where("active = ?", true).
		Order("user_id").
		Find(&profiles).Error
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

func (s *profileStore) replaceProducts(tx *gorm.DB, profile *models.SearchProfile, productIDs []uint) error {
	var products []models.Product
	if len(productIDs) > 0 {
		// Only the caller's own products can be attached.
		if err := tx.Where("user_id = ? AND id IN ?", profile.UserID, productIDs).
			Find(&products).Error; err != nil {
			return err
		}
	}
	if err := tx.Model(profile).Association("Products").Replace(products); err != nil {
		return fmt.Errorf("failed to attach products: %w", err)
	}
	return nil
}
