package insights

import (
	"context"
	"errors"
	"fmt"

	"github.com/riddle022/farmavision/pkg/dashboard"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/metrics"
	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/store"
)

var (
	// ErrNotConfigured means no generator was wired, typically because the
	// API key is absent. Insight generation is an optional feature.
	ErrNotConfigured = errors.New("insights: no generator configured")
	// ErrNoData means the user has nothing to analyze yet.
	ErrNoData = errors.New("insights: no market data for user")
)

// Service generates and stores insights.
type Service struct {
	generator Generator
	dashboard *dashboard.Service
	store     *store.Store
	metrics   *metrics.Metrics
	log       logger.Logger
}

// NewService wires insight generation. generator may be nil; every
// generation attempt then fails with ErrNotConfigured.
func NewService(generator Generator, dash *dashboard.Service, st *store.Store, m *metrics.Metrics, log logger.Logger) *Service {
	return &Service{
		generator: generator,
		dashboard: dash,
		store:     st,
		metrics:   m,
		log:       log,
	}
}

// Enabled reports whether a generator is wired.
func (s *Service) Enabled() bool {
	return s.generator != nil
}

// GenerateAndStore builds the user's market picture, asks the generator for
// an analysis and persists it. The dashboard cache is bypassed so the
// analysis always sees current data.
func (s *Service) GenerateAndStore(ctx context.Context, userID uint) (*models.Insight, error) {
	if s.generator == nil {
		return nil, ErrNotConfigured
	}

	summary := s.dashboard.Build(ctx, userID, true)
	if summary.KPIs.Products == 0 {
		return nil, ErrNoData
	}

	generation, err := s.generator.Generate(ctx, SystemPrompt, MarketPrompt(summary))
	if err != nil {
		return nil, fmt.Errorf("failed to generate insight: %w", err)
	}

	insight := &models.Insight{
		UserID:     userID,
		Content:    generation.Content,
		Model:      generation.Model,
		TokensUsed: generation.TokensUsed,
	}
	if err := s.store.Insights.Insert(ctx, insight); err != nil {
		return nil, fmt.Errorf("failed to store insight: %w", err)
	}

	s.metrics.RecordInsightGenerated()
	s.log.Info("insight stored", "user_id", userID, "model", insight.Model, "tokens", insight.TokensUsed)
	return insight, nil
}

// GenerateAll runs GenerateAndStore for every user with products. Users
// without data are skipped quietly; other failures are logged and counted.
func (s *Service) GenerateAll(ctx context.Context) error {
	if s.generator == nil {
		return ErrNotConfigured
	}
	userIDs, err := s.store.Products.DistinctUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users for insights: %w", err)
	}
	var failures int
	for _, userID := range userIDs {
		if _, err := s.GenerateAndStore(ctx, userID); err != nil {
			if errors.Is(err, ErrNoData) {
				continue
			}
			failures++
			s.log.Error("insight generation failed", "user_id", userID, "error", err)
		}
	}
	if failures > 0 {
		return fmt.Errorf("insight generation failed for %d of %d users", failures, len(userIDs))
	}
	return nil
}
