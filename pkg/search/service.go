// Package search runs consumer price lookups against the upstream API,
// shaping every request through the same pipeline: spatial key resolution,
// caller quota, response cache, upstream fetch, normalization.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/riddle022/farmavision/pkg/cache"
	"github.com/riddle022/farmavision/pkg/geo"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/metrics"
	"github.com/riddle022/farmavision/pkg/quota"
	"github.com/riddle022/farmavision/pkg/registry"
	"github.com/riddle022/farmavision/pkg/upstream"
)

const (
	// MaxSnapshotTerms caps how many terms one snapshot may fan out to.
	MaxSnapshotTerms = 10
	// maxParallelTerms bounds concurrent upstream lookups per snapshot.
	maxParallelTerms = 5

	MinRadiusKM = 1
	MaxRadiusKM = 50
)

var (
	// ErrInvalidQuery marks queries that violate the search contract.
	ErrInvalidQuery = errors.New("search: invalid query")
	// ErrRateLimited marks requests rejected by the per-caller quota.
	ErrRateLimited = errors.New("search: rate limit exceeded")
)

// QuotaError tells a rejected caller when its window frees up.
type QuotaError struct {
	RetryAfter time.Duration
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("search: rate limit exceeded, retry in %s", e.RetryAfter)
}

func (e *QuotaError) Unwrap() error { return ErrRateLimited }

// Config carries the spatial defaults of the service.
type Config struct {
	// DefaultGeohash is used whenever the caller's coordinates are absent
	// or out of bounds.
	DefaultGeohash string
	// Precision is the geohash length for spatial keys.
	Precision int
}

// Service is the entry point of the price search pipeline. Every public
// operation consumes one unit of the caller's quota; Lookup is the
// quota-free path used by fan-out internals and the monitoring pass.
type Service struct {
	client  *upstream.Client
	cache   cache.Cache
	quota   *quota.Limiter
	group   singleflight.Group
	metrics *metrics.Metrics
	log     logger.Logger
	cfg     Config
	now     func() time.Time
}

// NewService wires the search pipeline. metrics may be nil.
func NewService(client *upstream.Client, c cache.Cache, q *quota.Limiter, m *metrics.Metrics, log logger.Logger, cfg Config) *Service {
	if cfg.Precision <= 0 {
		cfg.Precision = geo.DefaultPrecision
	}
	return &Service{
		client:  client,
		cache:   c,
		quota:   q,
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

// ProductQuery describes one product search. Lat/Lon may be anything; an
// unusable pair falls back to the configured default region.
type ProductQuery struct {
	Term     string
	Category string
	RadiusKM int
	Ordering upstream.Ordering
	Lat, Lon float64
}

// FuelQuery describes one fuel price search. Kind is the upstream fuel type
// code, 1 to 4.
type FuelQuery struct {
	Kind     int
	RadiusKM int
	Ordering upstream.Ordering
	Lat, Lon float64
}

// SnapshotQuery describes a multi-term basket snapshot.
type SnapshotQuery struct {
	Terms    []string
	RadiusKM int
	Lat, Lon float64
}

// CategoriesResult is the categories action payload.
type CategoriesResult struct {
	Categorias []upstream.Category `json:"categorias"`
	Produtos   []upstream.Offer    `json:"produtos"`
	Resumo     *Summary            `json:"resumo"`
	Geohash    string              `json:"geohash"`
	Mensagem   string              `json:"mensagem,omitempty"`
}

// ProductsResult is the products action payload.
type ProductsResult struct {
	Produtos []upstream.Offer `json:"produtos"`
	Resumo   *Summary         `json:"resumo"`
	Geohash  string           `json:"geohash"`
	Mensagem string           `json:"mensagem,omitempty"`
}

// FuelResult is the fuel action payload.
type FuelResult struct {
	Postos   []upstream.Offer `json:"postos"`
	Tipo     int              `json:"tipo"`
	Resumo   *Summary         `json:"resumo"`
	Geohash  string           `json:"geohash"`
	Mensagem string           `json:"mensagem,omitempty"`
}

// SnapshotItem is the best offer found for one term at one establishment.
type SnapshotItem struct {
	Termo      string  `json:"termo"`
	Descricao  string  `json:"descricao"`
	Preco      float64 `json:"preco"`
	Atualizado string  `json:"atualizado"`
}

// SnapshotEntry aggregates one establishment across all snapshot terms.
type SnapshotEntry struct {
	Estabelecimento upstream.Establishment `json:"estabelecimento"`
	DistanciaKM     *float64               `json:"distancia_km,omitempty"`
	Itens           []SnapshotItem         `json:"itens"`
	Encontrados     int                    `json:"encontrados"`
	PrecoTotal      float64                `json:"preco_total"`
}

// SnapshotResult is the snapshot action payload. Establishments are ordered
// by coverage (how many terms they had) and then by basket total.
type SnapshotResult struct {
	Estabelecimentos []SnapshotEntry `json:"estabelecimentos"`
	Termos           []string        `json:"termos"`
	Falhas           []string        `json:"falhas,omitempty"`
	Resumo           *Summary        `json:"resumo"`
	Geohash          string          `json:"geohash"`
	Mensagem         string          `json:"mensagem,omitempty"`
}

// Categories serves the categories action.
func (s *Service) Categories(ctx context.Context, callerID string, q ProductQuery) (*CategoriesResult, error) {
	if err := validateRadius(q.RadiusKM); err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.Term) == "" {
		return nil, fmt.Errorf("%w: termo is required", ErrInvalidQuery)
	}
	if err := s.consume(callerID); err != nil {
		return nil, err
	}
	s.metrics.RecordSearch("categories")

	local := s.spatialKey(q.Lat, q.Lon)
	key := cache.Key("categories", map[string]string{
		"termo": foldTerm(q.Term),
		"raio":  strconv.Itoa(q.RadiusKM),
		"ordem": strconv.Itoa(int(q.Ordering)),
		"local": local,
	})
	if v, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheHit("search")
		return v.(*CategoriesResult), nil
	}
	s.metrics.RecordCacheMiss("search")

	v, err, _ := s.group.Do(key, func() (any, error) {
		payload, err := s.client.Categories(ctx, upstream.ProductQuery{
			Geohash:  local,
			Term:     strings.TrimSpace(q.Term),
			RadiusKM: q.RadiusKM,
			Ordering: q.Ordering,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to search categories: %w", err)
		}
		offers := upstream.NormalizeAll(payload.Records(), s.now())
		result := &CategoriesResult{
			Categorias: upstream.NormalizeCategories(payload.Categorias),
			Produtos:   offers,
			Resumo:     BuildSummary(offers),
			Geohash:    local,
		}
		if len(result.Categorias) == 0 && result.Resumo.Total == 0 {
			result.Mensagem = NoResultsMessage
		}
		s.cache.Set(key, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CategoriesResult), nil
}

// Products serves the products action.
func (s *Service) Products(ctx context.Context, callerID string, q ProductQuery) (*ProductsResult, error) {
	if err := validateRadius(q.RadiusKM); err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.Term) == "" && strings.TrimSpace(q.Category) == "" {
		return nil, fmt.Errorf("%w: termo or categoria is required", ErrInvalidQuery)
	}
	if err := s.consume(callerID); err != nil {
		return nil, err
	}
	s.metrics.RecordSearch("products")
	return s.Lookup(ctx, q)
}

// Lookup is the cache-backed product search without quota accounting. The
// monitoring pass and snapshot fan-out use it so that one user action costs
// one quota unit regardless of how many lookups it expands into.
func (s *Service) Lookup(ctx context.Context, q ProductQuery) (*ProductsResult, error) {
	if err := validateRadius(q.RadiusKM); err != nil {
		return nil, err
	}
	local := s.spatialKey(q.Lat, q.Lon)
	key := cache.Key("products", map[string]string{
		"termo":     foldTerm(q.Term),
		"categoria": strings.TrimSpace(q.Category),
		"raio":      strconv.Itoa(q.RadiusKM),
		"ordem":     strconv.Itoa(int(q.Ordering)),
		"local":     local,
	})
	if v, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheHit("search")
		return v.(*ProductsResult), nil
	}
	s.metrics.RecordCacheMiss("search")

	v, err, _ := s.group.Do(key, func() (any, error) {
		payload, err := s.client.Products(ctx, upstream.ProductQuery{
			Geohash:  local,
			Term:     strings.TrimSpace(q.Term),
			Category: strings.TrimSpace(q.Category),
			RadiusKM: q.RadiusKM,
			Ordering: q.Ordering,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to search products: %w", err)
		}
		offers := upstream.NormalizeAll(payload.Records(), s.now())
		result := &ProductsResult{
			Produtos: offers,
			Resumo:   BuildSummary(offers),
			Geohash:  local,
		}
		if result.Resumo.Total == 0 {
			result.Mensagem = NoResultsMessage
		}
		s.cache.Set(key, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ProductsResult), nil
}

// Fuel serves the fuel action.
func (s *Service) Fuel(ctx context.Context, callerID string, q FuelQuery) (*FuelResult, error) {
	if err := validateRadius(q.RadiusKM); err != nil {
		return nil, err
	}
	if q.Kind < 1 || q.Kind > 4 {
		return nil, fmt.Errorf("%w: tipo must be between 1 and 4", ErrInvalidQuery)
	}
	if err := s.consume(callerID); err != nil {
		return nil, err
	}
	s.metrics.RecordSearch("fuel")

	local := s.spatialKey(q.Lat, q.Lon)
	key := cache.Key("fuel", map[string]string{
		"tipo":  strconv.Itoa(q.Kind),
		"raio":  strconv.Itoa(q.RadiusKM),
		"ordem": strconv.Itoa(int(q.Ordering)),
		"local": local,
	})
	if v, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheHit("search")
		return v.(*FuelResult), nil
	}
	s.metrics.RecordCacheMiss("search")

	v, err, _ := s.group.Do(key, func() (any, error) {
		payload, err := s.client.Fuel(ctx, upstream.FuelQuery{
			Geohash:  local,
			Kind:     q.Kind,
			RadiusKM: q.RadiusKM,
			Ordering: q.Ordering,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to search fuel prices: %w", err)
		}
		offers := upstream.NormalizeAll(payload.Records(), s.now())
		result := &FuelResult{
			Postos:  offers,
			Tipo:    q.Kind,
			Resumo:  BuildSummary(offers),
			Geohash: local,
		}
		if result.Resumo.Total == 0 {
			result.Mensagem = NoResultsMessage
		}
		s.cache.Set(key, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*FuelResult), nil
}

// Snapshot fans one basket of terms out to parallel lookups and regroups the
// answers by establishment. A failed term never fails the snapshot; it is
// reported in Falhas and the rest of the basket stands.
func (s *Service) Snapshot(ctx context.Context, callerID string, q SnapshotQuery) (*SnapshotResult, error) {
	if err := validateRadius(q.RadiusKM); err != nil {
		return nil, err
	}
	terms := cleanTerms(q.Terms)
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: at least one termo is required", ErrInvalidQuery)
	}
	if len(terms) > MaxSnapshotTerms {
		return nil, fmt.Errorf("%w: at most %d termos per snapshot", ErrInvalidQuery, MaxSnapshotTerms)
	}
	if err := s.consume(callerID); err != nil {
		return nil, err
	}
	s.metrics.RecordSearch("snapshot")

	local := s.spatialKey(q.Lat, q.Lon)
	key := cache.Key("snapshot", map[string]string{
		"termos": strings.Join(sortedCopy(terms), ","),
		"raio":   strconv.Itoa(q.RadiusKM),
		"local":  local,
	})
	if v, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheHit("search")
		return v.(*SnapshotResult), nil
	}
	s.metrics.RecordCacheMiss("search")

	type termResult struct {
		offers []upstream.Offer
		err    error
	}
	results := make([]termResult, len(terms))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxParallelTerms)
	for i, term := range terms {
		wg.Add(1)
		go func(i int, term string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := s.Lookup(ctx, ProductQuery{Term: term, RadiusKM: q.RadiusKM, Lat: q.Lat, Lon: q.Lon})
			if err != nil {
				s.log.Warn("snapshot term failed", "termo", term, "error", err)
				results[i] = termResult{err: err}
				return
			}
			results[i] = termResult{offers: res.Produtos}
		}(i, term)
	}
	wg.Wait()

	var (
		all    []upstream.Offer
		falhas []string
	)
	entries := make(map[string]*SnapshotEntry)
	for i, term := range terms {
		if results[i].err != nil {
			falhas = append(falhas, term)
			continue
		}
		all = append(all, results[i].offers...)
		mergeTerm(entries, term, results[i].offers)
	}

	result := &SnapshotResult{
		Estabelecimentos: sortEntries(entries),
		Termos:           terms,
		Falhas:           falhas,
		Resumo:           BuildSummary(all),
		Geohash:          local,
	}
	if result.Resumo.Total == 0 {
		result.Mensagem = NoResultsMessage
	}
	// A partially failed snapshot is served but not cached; the next call
	// retries the failed terms.
	if len(falhas) == 0 {
		s.cache.Set(key, result)
	}
	return result, nil
}

func (s *Service) consume(callerID string) error {
	allowed, retryAfter := s.quota.Allow(callerID)
	if !allowed {
		s.metrics.RecordQuotaRejected()
		return &QuotaError{RetryAfter: retryAfter}
	}
	return nil
}

func (s *Service) spatialKey(lat, lon float64) string {
	return geo.EncodeOrDefault(lat, lon, s.cfg.Precision, s.cfg.DefaultGeohash)
}

func validateRadius(radiusKM int) error {
	if radiusKM < MinRadiusKM || radiusKM > MaxRadiusKM {
		return fmt.Errorf("%w: raio must be between %d and %d km", ErrInvalidQuery, MinRadiusKM, MaxRadiusKM)
	}
	return nil
}

func foldTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

func cleanTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		folded := foldTerm(t)
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		out = append(out, t)
	}
	return out
}

func sortedCopy(terms []string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = foldTerm(t)
	}
	sort.Strings(out)
	return out
}

// mergeTerm folds one term's offers into the per-establishment aggregation,
// keeping only the cheapest priced offer per establishment and term.
func mergeTerm(entries map[string]*SnapshotEntry, term string, offers []upstream.Offer) {
	best := make(map[string]upstream.Offer)
	for _, offer := range offers {
		nameKey := registry.NameKey(offer.Establishment.Name)
		if nameKey == "" || !offer.HasPrice() {
			continue
		}
		if current, ok := best[nameKey]; !ok || offer.Price < current.Price {
			best[nameKey] = offer
		}
	}

	for nameKey, offer := range best {
		entry, ok := entries[nameKey]
		if !ok {
			entry = &SnapshotEntry{Estabelecimento: offer.Establishment, DistanciaKM: offer.DistanceKM}
			entries[nameKey] = entry
		}
		entry.Itens = append(entry.Itens, SnapshotItem{
			Termo:      term,
			Descricao:  offer.Description,
			Preco:      offer.Price,
			Atualizado: offer.Recency,
		})
		entry.Encontrados++
		entry.PrecoTotal = round2(entry.PrecoTotal + offer.Price)
	}
}

func sortEntries(entries map[string]*SnapshotEntry) []SnapshotEntry {
	out := make([]SnapshotEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Encontrados != out[j].Encontrados {
			return out[i].Encontrados > out[j].Encontrados
		}
		if out[i].PrecoTotal != out[j].PrecoTotal {
			return out[i].PrecoTotal < out[j].PrecoTotal
		}
		return out[i].Estabelecimento.Name < out[j].Estabelecimento.Name
	})
	return out
}
