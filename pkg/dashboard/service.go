// Package dashboard joins the read-side aggregates behind the dashboard
// screen: KPI counts, volatility and competitor rankings, the recent trend
// series and the latest generated insights. Every section is fetched
// concurrently and independently; a section that fails or has no rows falls
// back to its zero value so the dashboard always renders.
package dashboard

import (
	"context"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/riddle022/farmavision/pkg/cache"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/metrics"
	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/monitor"
	"github.com/riddle022/farmavision/pkg/store"
)

const (
	// DefaultTopN bounds the volatile-product and competitor rankings.
	DefaultTopN = 5
	// DefaultTrendWindow is how far back the trend series and the
	// volatility ranking look.
	DefaultTrendWindow = 7 * 24 * time.Hour
)

// KPIs are the headline counters.
type KPIs struct {
	Products           int64 `json:"products"`
	PricedProducts     int64 `json:"priced_products"`
	Competitors        int64 `json:"competitors"`
	RecentObservations int64 `json:"recent_observations"`
}

// VolatileProduct is one row of the volatility ranking.
type VolatileProduct struct {
	ProductID    uint     `json:"product_id"`
	Name         string   `json:"name"`
	Volatility   float64  `json:"volatility"`
	Lowest       *float64 `json:"lowest"`
	Highest      *float64 `json:"highest"`
	Average      *float64 `json:"average"`
	Observations int      `json:"observations"`
}

// TrendPoint is one day of the competitor price series. Days without priced
// observations carry a zero average.
type TrendPoint struct {
	Date         string  `json:"date"`
	Average      float64 `json:"average"`
	Observations int     `json:"observations"`
}

// Summary is the joined dashboard payload.
type Summary struct {
	KPIs           KPIs              `json:"kpis"`
	TopVolatile    []VolatileProduct `json:"top_volatile"`
	TopCompetitors []models.Pharmacy `json:"top_competitors"`
	Trend          []TrendPoint      `json:"trend"`
	Insights       []models.Insight  `json:"insights"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// Config tunes the dashboard reads.
type Config struct {
	TopN        int
	TrendWindow time.Duration
}

// Service builds dashboard summaries.
type Service struct {
	store   *store.Store
	cache   cache.Cache
	metrics *metrics.Metrics
	log     logger.Logger
	cfg     Config
	now     func() time.Time
}

// NewService wires the dashboard builder. Zero config fields fall back to
// the package defaults.
func NewService(st *store.Store, c cache.Cache, m *metrics.Metrics, log logger.Logger, cfg Config) *Service {
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.TrendWindow <= 0 {
		cfg.TrendWindow = DefaultTrendWindow
	}
	return &Service{
		store:   st,
		cache:   c,
		metrics: m,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithClock replaces the service's time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Build returns the user's dashboard summary, cached under the dashboard
// policy. refresh skips the cache read but still writes the fresh summary
// through, so the next plain read serves it.
//
// Build never fails: a section whose query errors is logged and served as
// its empty state alongside the healthy sections.
func (s *Service) Build(ctx context.Context, userID uint, refresh bool) *Summary {
	key := cache.Key("dashboard", map[string]string{"user": strconv.FormatUint(uint64(userID), 10)})
	if !refresh {
		if v, ok := s.cache.Get(key); ok {
			s.metrics.RecordCacheHit("dashboard")
			return v.(*Summary)
		}
		s.metrics.RecordCacheMiss("dashboard")
	}

	summary := &Summary{
		TopVolatile:    []VolatileProduct{},
		TopCompetitors: []models.Pharmacy{},
		Trend:          []TrendPoint{},
		Insights:       []models.Insight{},
		GeneratedAt:    s.now(),
	}
	since := summary.GeneratedAt.Add(-s.cfg.TrendWindow)

	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		defer wg.Done()
		summary.KPIs = s.kpis(ctx, userID, since)
	}()
	go func() {
		defer wg.Done()
		if rows := s.topVolatile(ctx, userID, since); rows != nil {
			summary.TopVolatile = rows
		}
	}()
	go func() {
		defer wg.Done()
		rows, err := s.store.Pharmacies.TopRanked(ctx, userID, s.cfg.TopN)
		if err != nil {
			s.log.Error("dashboard competitor ranking failed", "user_id", userID, "error", err)
			return
		}
		if rows != nil {
			summary.TopCompetitors = rows
		}
	}()
	go func() {
		defer wg.Done()
		if points := s.trendSeries(ctx, userID, since, summary.GeneratedAt); points != nil {
			summary.Trend = points
		}
	}()
	go func() {
		defer wg.Done()
		rows, err := s.store.Insights.ListRecent(ctx, userID, s.cfg.TopN)
		if err != nil {
			s.log.Error("dashboard insights read failed", "user_id", userID, "error", err)
			return
		}
		if rows != nil {
			summary.Insights = rows
		}
	}()
	wg.Wait()

	s.cache.Set(key, summary)
	return summary
}

func (s *Service) kpis(ctx context.Context, userID uint, since time.Time) KPIs {
	var k KPIs
	var err error
	if k.Products, err = s.store.Products.Count(ctx, userID); err != nil {
		s.log.Error("dashboard product count failed", "user_id", userID, "error", err)
	}
	if k.PricedProducts, err = s.store.Products.CountPriced(ctx, userID); err != nil {
		s.log.Error("dashboard priced count failed", "user_id", userID, "error", err)
	}
	if k.Competitors, err = s.store.Pharmacies.CountCompetitors(ctx, userID); err != nil {
		s.log.Error("dashboard competitor count failed", "user_id", userID, "error", err)
	}
	if k.RecentObservations, err = s.store.Observations.CountSince(ctx, userID, since); err != nil {
		s.log.Error("dashboard observation count failed", "user_id", userID, "error", err)
	}
	return k
}

// topVolatile ranks the user's products by price spread inside the window.
func (s *Service) topVolatile(ctx context.Context, userID uint, since time.Time) []VolatileProduct {
	observations, err := s.store.Observations.ListSince(ctx, userID, since)
	if err != nil {
		s.log.Error("dashboard volatility read failed", "user_id", userID, "error", err)
		return nil
	}
	if len(observations) == 0 {
		return nil
	}

	prices := make(map[uint][]float64)
	for _, obs := range observations {
		if obs.Price > 0 {
			prices[obs.ProductID] = append(prices[obs.ProductID], obs.Price)
		}
	}
	if len(prices) == 0 {
		return nil
	}

	ids := make([]uint, 0, len(prices))
	for id := range prices {
		ids = append(ids, id)
	}
	products, err := s.store.Products.ByIDs(ctx, userID, ids)
	if err != nil {
		s.log.Error("dashboard volatility product read failed", "user_id", userID, "error", err)
		return nil
	}

	rows := make([]VolatileProduct, 0, len(products))
	for _, product := range products {
		series := prices[product.ID]
		lowest, highest, average := monitor.Summarize(series)
		rows = append(rows, VolatileProduct{
			ProductID:    product.ID,
			Name:         product.Name,
			Volatility:   monitor.Volatility(series),
			Lowest:       lowest,
			Highest:      highest,
			Average:      average,
			Observations: len(series),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Volatility != rows[j].Volatility {
			return rows[i].Volatility > rows[j].Volatility
		}
		return rows[i].ProductID < rows[j].ProductID
	})
	if len(rows) > s.cfg.TopN {
		rows = rows[:s.cfg.TopN]
	}
	return rows
}

// trendSeries is one point per calendar day (UTC) from the window start to
// now, oldest first.
func (s *Service) trendSeries(ctx context.Context, userID uint, since, now time.Time) []TrendPoint {
	observations, err := s.store.Observations.ListSince(ctx, userID, since)
	if err != nil {
		s.log.Error("dashboard trend read failed", "user_id", userID, "error", err)
		return nil
	}

	type bucket struct {
		sum float64
		n   int
	}
	buckets := make(map[string]bucket)
	for _, obs := range observations {
		if obs.Price <= 0 {
			continue
		}
		day := obs.CollectedAt.UTC().Format("2006-01-02")
		b := buckets[day]
		b.sum += obs.Price
		b.n++
		buckets[day] = b
	}

	start := since.UTC().Truncate(24 * time.Hour)
	end := now.UTC().Truncate(24 * time.Hour)
	points := make([]TrendPoint, 0, int(end.Sub(start).Hours()/24)+1)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		point := TrendPoint{Date: day.Format("2006-01-02")}
		if b, ok := buckets[point.Date]; ok && b.n > 0 {
			point.Average = round2(b.sum / float64(b.n))
			point.Observations = b.n
		}
		points = append(points, point)
	}
	return points
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
