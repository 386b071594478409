package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/riddle022/farmavision/pkg/models"
)

// InsightStore persists generated insights.
type InsightStore interface {
	Insert(ctx context.Context, insight *models.Insight) error
	ListRecent(ctx context.Context, userID uint, limit int) ([]models.Insight, error)
}

type insightStore struct {
	db *gorm.DB
}

// NewInsightStore returns the gorm-backed InsightStore.
func NewInsightStore(db *gorm.DB) InsightStore {
	return &insightStore{db: db}
}

func (s *insightStore) Insert(ctx context.Context, insight *models.Insight) error {
	if err := s.db.WithContext(ctx).Create(insight).Error; err != nil {
		return fmt.Errorf("failed to insert insight: %w", err)
	}
	return nil
}

func (s *insightStore) ListRecent(ctx context.Context, userID uint, limit int) ([]models.Insight, error) {
	var insights []models.Insight
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&insights).Error
	if err != nil {
		return nil, err
	}
	return insights, nil
}
