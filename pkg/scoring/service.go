// Package scoring rates how aggressively each competitor prices against the
// market. The pass is batch-oriented: it scans a trailing observation window
// per user and caches the result on the pharmacy row, so interactive reads
// never pay for a historical scan.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/metrics"
	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/store"
)

const (
	// DefaultWindow is the trailing slice of observations a scoring pass
	// reads. Nothing derives it; it is tunable.
	DefaultWindow = 30 * 24 * time.Hour

	basePoints      = 50.0
	cheapnessWeight = 30.0
	pointsPerDay    = 2.0
)

// CompetitorScore is one scored competitor, already ranked within its user.
type CompetitorScore struct {
	PharmacyID uint     `json:"pharmacy_id"`
	Name       string   `json:"name"`
	Score      float64  `json:"score"`
	Rank       int      `json:"rank"`
	ActiveDays int      `json:"active_days"`
	Average    *float64 `json:"average_price,omitempty"`
}

// Service computes and persists aggressiveness scores.
type Service struct {
	store   *store.Store
	metrics *metrics.Metrics
	log     logger.Logger
	window  time.Duration
	now     func() time.Time
}

// NewService wires the scoring pass. A non-positive window falls back to
// DefaultWindow.
func NewService(st *store.Store, m *metrics.Metrics, log logger.Logger, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		store:   st,
		metrics: m,
		log:     log,
		window:  window,
		now:     time.Now,
	}
}

// WithClock replaces the service's time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ScoreUser scores every non-own competitor of one user and persists the
// scores and ranks. The returned slice is ordered by rank.
//
// A competitor starts at 50 points, earns up to 30 for undercutting the
// cross-product market average inside the window, and 2 per distinct day it
// was observed; the total is clamped to [0, 100]. Ranks are 1-based without
// gaps, ordered by descending score with ties broken by ascending row id so
// that reruns over unchanged data reproduce the same ranking.
func (s *Service) ScoreUser(ctx context.Context, userID uint) ([]CompetitorScore, error) {
	competitors, err := s.store.Pharmacies.ListCompetitors(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitors: %w", err)
	}
	if len(competitors) == 0 {
		return []CompetitorScore{}, nil
	}

	since := s.now().Add(-s.window)
	observations, err := s.store.Observations.ListSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load observation window: %w", err)
	}

	samples := collect(observations)
	marketAvg := marketAverage(observations)

	scores := make([]CompetitorScore, 0, len(competitors))
	for _, competitor := range competitors {
		sample := samples[competitor.ID]
		scores = append(scores, CompetitorScore{
			PharmacyID: competitor.ID,
			Name:       competitor.Name,
			Score:      scoreOf(sample, marketAvg),
			ActiveDays: len(sample.days),
			Average:    sample.average(),
		})
	}

	// Descending score; row id keeps equal scores in a stable order.
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].PharmacyID < scores[j].PharmacyID
	})

	scoredAt := s.now()
	for i := range scores {
		scores[i].Rank = i + 1
		if err := s.store.Pharmacies.UpdateScore(ctx, scores[i].PharmacyID, scores[i].Score, scores[i].Rank, scoredAt); err != nil {
			return nil, fmt.Errorf("failed to persist score: %w", err)
		}
	}

	s.metrics.RecordScoringRun()
	s.log.Info("competitor scoring finished",
		"user_id", userID, "competitors", len(scores), "observations", len(observations))
	return scores, nil
}

// ScoreAll runs ScoreUser for every user that has registry rows. One user's
// failure is logged and does not stop the others.
func (s *Service) ScoreAll(ctx context.Context) error {
	userIDs, err := s.store.Pharmacies.DistinctUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users for scoring: %w", err)
	}
	var failures int
	for _, userID := range userIDs {
		if _, err := s.ScoreUser(ctx, userID); err != nil {
			failures++
			s.log.Error("scoring pass failed", "user_id", userID, "error", err)
		}
	}
	if failures > 0 {
		return fmt.Errorf("scoring failed for %d of %d users", failures, len(userIDs))
	}
	return nil
}

// sample accumulates one competitor's observations inside the window.
type sample struct {
	sum    float64
	priced int
	days   map[string]struct{}
}

func (s sample) average() *float64 {
	if s.priced == 0 {
		return nil
	}
	avg := round2(s.sum / float64(s.priced))
	return &avg
}

func collect(observations []models.PriceObservation) map[uint]sample {
	samples := make(map[uint]sample)
	for _, obs := range observations {
		entry := samples[obs.PharmacyID]
		if entry.days == nil {
			entry.days = make(map[string]struct{})
		}
		entry.days[obs.CollectedAt.UTC().Format("2006-01-02")] = struct{}{}
		if obs.Price > 0 {
			entry.sum += obs.Price
			entry.priced++
		}
		samples[obs.PharmacyID] = entry
	}
	return samples
}

// marketAverage is the mean of every positive price in the window, across
// all competitors and products.
func marketAverage(observations []models.PriceObservation) float64 {
	var sum float64
	var n int
	for _, obs := range observations {
		if obs.Price > 0 {
			sum += obs.Price
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func scoreOf(sample sample, marketAvg float64) float64 {
	score := basePoints
	if avg := sample.average(); avg != nil && marketAvg > 0 && *avg < marketAvg {
		score += (marketAvg - *avg) / marketAvg * cheapnessWeight
	}
	score += pointsPerDay * float64(len(sample.days))
	return round2(math.Min(100, math.Max(0, score)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
