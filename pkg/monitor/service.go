// Package monitor runs per-product market passes: fetch competitor offers
// for each of the user's products, derive price statistics and persist one
// observation per competitor seen.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/metrics"
	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/quota"
	"github.com/riddle022/farmavision/pkg/registry"
	"github.com/riddle022/farmavision/pkg/search"
	"github.com/riddle022/farmavision/pkg/store"
	"github.com/riddle022/farmavision/pkg/upstream"
)

// Report is the outcome of monitoring one product. A degraded report stands
// in for a product whose market lookup failed: no statistics, zero
// competitors, but the slot in the batch is preserved.
type Report struct {
	ProductID   uint             `json:"product_id"`
	ProductName string           `json:"product_name"`
	OwnPrice    *float64         `json:"own_price"`
	Competitors int              `json:"competitors"`
	Lowest      *float64         `json:"lowest"`
	Highest     *float64         `json:"highest"`
	Average     *float64         `json:"average"`
	Volatility  float64          `json:"volatility"`
	Status      Status           `json:"status"`
	Trend       Trend            `json:"trend"`
	PriceChange float64          `json:"price_change_pct"`
	Offers      []upstream.Offer `json:"offers"`
	Degraded    bool             `json:"degraded,omitempty"`
}

// BatchRequest is one monitoring pass over a set of products around a
// center point.
type BatchRequest struct {
	Lat      float64
	Lon      float64
	RadiusKM int
	Products []models.Product
}

// BatchResult carries the reports, in the same order as the request's
// products, plus the pass identity.
type BatchResult struct {
	RunID      uuid.UUID `json:"run_id"`
	Reports    []Report  `json:"reports"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Config tunes a monitoring service.
type Config struct {
	// MaxConcurrent bounds parallel product lookups per batch.
	MaxConcurrent int
	// Source tags persisted observations with their origin.
	Source string
}

// Service coordinates monitoring passes.
type Service struct {
	search   *search.Service
	store    *store.Store
	resolver *registry.Resolver
	quota    *quota.Limiter
	metrics  *metrics.Metrics
	log      logger.Logger
	cfg      Config
	now      func() time.Time
}

// NewService wires a monitoring service. metrics may be nil.
func NewService(searchSvc *search.Service, st *store.Store, resolver *registry.Resolver, q *quota.Limiter, m *metrics.Metrics, log logger.Logger, cfg Config) *Service {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.Source == "" {
		cfg.Source = "menor_preco"
	}
	return &Service{
		search:   searchSvc,
		store:    st,
		resolver: resolver,
		quota:    q,
		metrics:  m,
		log:      log,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock replaces the service's time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RunBatch monitors every product in the request. One batch consumes one
// unit of the caller's quota; individual product failures degrade their own
// slot and never abort the rest. Reports come back in request order.
func (s *Service) RunBatch(ctx context.Context, userID uint, callerID string, req BatchRequest) (*BatchResult, error) {
	if allowed, retryAfter := s.quota.Allow(callerID); !allowed {
		s.metrics.RecordQuotaRejected()
		return nil, &search.QuotaError{RetryAfter: retryAfter}
	}

	result := &BatchResult{
		RunID:      uuid.New(),
		Reports:    make([]Report, len(req.Products)),
		ExecutedAt: s.now(),
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	for i, product := range req.Products {
		wg.Add(1)
		go func(i int, product models.Product) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result.Reports[i] = s.monitorProduct(ctx, userID, result.RunID, product, req)
		}(i, product)
	}
	wg.Wait()

	s.log.Info("monitoring pass finished",
		"user_id", userID, "run_id", result.RunID.String(), "products", len(req.Products))
	return result, nil
}

// monitorProduct never fails: any error on the way collapses into a
// degraded report for this product alone.
func (s *Service) monitorProduct(ctx context.Context, userID uint, runID uuid.UUID, product models.Product, req BatchRequest) Report {
	res, err := s.search.Lookup(ctx, search.ProductQuery{
		Term:     product.Name,
		RadiusKM: req.RadiusKM,
		Lat:      req.Lat,
		Lon:      req.Lon,
	})
	if err != nil {
		s.log.Warn("product monitoring degraded",
			"user_id", userID, "product_id", product.ID, "product", product.Name, "error", err)
		s.metrics.RecordProductMonitored(true)
		return degradedReport(product)
	}
	s.metrics.RecordProductMonitored(false)

	offers := res.Produtos
	prices := PositivePrices(offers)
	lowest, highest, average := Summarize(prices)
	trend, change := TrendOf(product.OwnPrice, average)

	report := Report{
		ProductID:   product.ID,
		ProductName: product.Name,
		OwnPrice:    product.OwnPrice,
		Competitors: distinctEstablishments(offers, registry.NameKey),
		Lowest:      lowest,
		Highest:     highest,
		Average:     average,
		Volatility:  Volatility(prices),
		Status:      Classify(product.OwnPrice, average, highest),
		Trend:       trend,
		PriceChange: change,
		Offers:      offers,
	}

	s.persistObservations(ctx, userID, runID, product.ID, offers)
	return report
}

// persistObservations writes one observation per distinct competitor name in
// the result, keeping the cheapest priced offer when a competitor appears
// more than once. Storage errors skip the single observation, never the
// pass.
func (s *Service) persistObservations(ctx context.Context, userID uint, runID uuid.UUID, productID uint, offers []upstream.Offer) {
	best := make(map[string]upstream.Offer, len(offers))
	for _, offer := range offers {
		key := registry.NameKey(offer.Establishment.Name)
		if key == "" {
			continue
		}
		current, ok := best[key]
		if !ok {
			best[key] = offer
			continue
		}
		if offer.HasPrice() && (!current.HasPrice() || offer.Price < current.Price) {
			best[key] = offer
		}
	}

	collectedAt := s.now()
	for _, offer := range best {
		pharmacy, err := s.resolver.Resolve(ctx, userID, offer.Establishment)
		if err != nil {
			s.log.Warn("failed to resolve competitor",
				"user_id", userID, "name", offer.Establishment.Name, "error", err)
			continue
		}
		obs := &models.PriceObservation{
			UserID:      userID,
			PharmacyID:  pharmacy.ID,
			ProductID:   productID,
			Price:       offer.Price,
			Available:   offer.HasPrice(),
			Source:      s.cfg.Source,
			RunID:       runID,
			CollectedAt: collectedAt,
		}
		if err := s.store.Observations.Insert(ctx, obs); err != nil {
			s.log.Warn("failed to persist observation",
				"user_id", userID, "pharmacy_id", pharmacy.ID, "product_id", productID, "error", err)
			continue
		}
		s.metrics.RecordObservation()
	}
}

func degradedReport(product models.Product) Report {
	return Report{
		ProductID:   product.ID,
		ProductName: product.Name,
		OwnPrice:    product.OwnPrice,
		Status:      StatusNoPrice,
		Trend:       TrendNeutral,
		Offers:      []upstream.Offer{},
		Degraded:    true,
	}
}
