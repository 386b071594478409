package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/riddle022/farmavision/pkg/cache"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/quota"
	"github.com/riddle022/farmavision/pkg/registry"
	"github.com/riddle022/farmavision/pkg/search"
	"github.com/riddle022/farmavision/pkg/store"
	"github.com/riddle022/farmavision/pkg/upstream"
)

func newTestMonitor(t *testing.T, handler http.Handler, quotaLimit int) (*Service, *store.Store, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	client := upstream.NewClient(upstream.Config{
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 1,
		Backoff:    time.Millisecond,
	}, nil, logger.Discard())

	searchSvc := search.NewService(
		client,
		cache.NewMemory(15*time.Minute, 1000),
		quota.NewLimiter(1000, time.Minute),
		nil,
		logger.Discard(),
		search.Config{DefaultGeohash: "6gkzqfbkb", Precision: 9},
	)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "monitor.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	st := store.New(db)

	svc := NewService(
		searchSvc,
		st,
		registry.NewResolver(st.Pharmacies, logger.Discard()),
		quota.NewLimiter(quotaLimit, time.Minute),
		nil,
		logger.Discard(),
		Config{},
	)
	return svc, st, &calls
}

// competitorHandler serves the same four offers for every term except
// "instavel", which always fails.
func competitorHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("termo") == "instavel" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"produtos":[
			{"descricao":"DIPIRONA 500MG","valor":7.99,"nm_fan":"FARMA NISSEI"},
			{"descricao":"DIPIRONA 500MG CX","valor":8.5,"nm_fan":"Farma  Nissei"},
			{"descricao":"DIPIRONA GEN","valor":12.01,"nm_fan":"DROGARIA UNIAO"},
			{"descricao":"DIPIRONA GOTAS","valor":"12,50","nm_fan":"FARMACIA POPULAR"}
		],"total":4}`))
	})
}

func curitibaBatch(products ...models.Product) BatchRequest {
	return BatchRequest{Lat: -25.4284, Lon: -49.2733, RadiusKM: 10, Products: products}
}

func TestRunBatchSettlesAllProducts(t *testing.T) {
	svc, _, calls := newTestMonitor(t, competitorHandler(), 60)

	result, err := svc.RunBatch(context.Background(), 1, "caller", curitibaBatch(
		models.Product{ID: 1, UserID: 1, Name: "dipirona", OwnPrice: fp(8.99)},
		models.Product{ID: 2, UserID: 1, Name: "paracetamol", OwnPrice: fp(12.5)},
		models.Product{ID: 3, UserID: 1, Name: "instavel"},
		models.Product{ID: 4, UserID: 1, Name: "ibuprofeno"},
		models.Product{ID: 5, UserID: 1, Name: "omeprazol", OwnPrice: fp(30)},
	))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEqual(t, uuid.Nil, result.RunID)
	assert.False(t, result.ExecutedAt.IsZero())

	require.Len(t, result.Reports, 5)
	for i, want := range []uint{1, 2, 3, 4, 5} {
		assert.Equal(t, want, result.Reports[i].ProductID, "reports keep the request order")
	}

	degraded := result.Reports[2]
	assert.True(t, degraded.Degraded)
	assert.Equal(t, "instavel", degraded.ProductName)
	assert.Equal(t, StatusNoPrice, degraded.Status)
	assert.Equal(t, TrendNeutral, degraded.Trend)
	assert.Zero(t, degraded.PriceChange)
	assert.Zero(t, degraded.Competitors)
	assert.Empty(t, degraded.Offers)
	assert.Nil(t, degraded.Lowest)
	assert.Nil(t, degraded.Average)

	first := result.Reports[0]
	assert.False(t, first.Degraded)
	assert.Equal(t, 3, first.Competitors, "duplicate spellings of one pharmacy collapse")
	require.NotNil(t, first.Average)
	assert.Equal(t, 7.99, *first.Lowest)
	assert.Equal(t, 12.01, *first.Highest)
	assert.Equal(t, 9.5, *first.Average, "the unparseable price stays out of the stats")
	assert.Equal(t, 42.3, first.Volatility)
	assert.Equal(t, StatusCompetitive, first.Status)
	assert.Equal(t, TrendDown, first.Trend)
	assert.Equal(t, -5.37, first.PriceChange)
	assert.Len(t, first.Offers, 4)

	assert.Equal(t, StatusNoPrice, result.Reports[3].Status, "a product without an own price has no classification")
	assert.False(t, result.Reports[3].Degraded)

	assert.Equal(t, int32(6), calls.Load(), "four healthy terms once each, the failing term twice")
}

func TestRunBatchPersistsObservations(t *testing.T) {
	svc, st, _ := newTestMonitor(t, competitorHandler(), 60)
	ctx := context.Background()

	result, err := svc.RunBatch(ctx, 7, "caller", curitibaBatch(
		models.Product{ID: 1, UserID: 7, Name: "dipirona", OwnPrice: fp(8.99)},
		models.Product{ID: 3, UserID: 7, Name: "instavel"},
	))
	require.NoError(t, err)

	pharmacies, err := st.Pharmacies.List(ctx, 7)
	require.NoError(t, err)
	require.Len(t, pharmacies, 3, "competitor rows are created on first sight")
	byID := make(map[uint]models.Pharmacy, len(pharmacies))
	keys := make([]string, 0, len(pharmacies))
	for _, p := range pharmacies {
		byID[p.ID] = p
		keys = append(keys, p.NameKey)
	}
	assert.ElementsMatch(t, []string{"farma nissei", "drogaria uniao", "farmacia popular"}, keys)

	observations, err := st.Observations.ListSince(ctx, 7, time.Time{})
	require.NoError(t, err)
	require.Len(t, observations, 3, "one observation per distinct competitor, none for the degraded product")

	for _, obs := range observations {
		assert.Equal(t, uint(1), obs.ProductID)
		assert.Equal(t, result.RunID, obs.RunID)
		assert.Equal(t, "menor_preco", obs.Source)
		assert.True(t, obs.CollectedAt.Equal(observations[0].CollectedAt), "one run shares one collection timestamp")

		switch byID[obs.PharmacyID].NameKey {
		case "farma nissei":
			assert.Equal(t, 7.99, obs.Price, "the cheapest offer wins when a competitor repeats")
			assert.True(t, obs.Available)
		case "drogaria uniao":
			assert.Equal(t, 12.01, obs.Price)
			assert.True(t, obs.Available)
		case "farmacia popular":
			assert.Zero(t, obs.Price)
			assert.False(t, obs.Available)
		default:
			t.Fatalf("observation for unexpected pharmacy %d", obs.PharmacyID)
		}
	}

	count, err := st.Observations.CountSince(ctx, 99, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, count, "observations stay with their owner")
}

func TestRunBatchQuotaCountsOnePerBatch(t *testing.T) {
	svc, _, calls := newTestMonitor(t, competitorHandler(), 1)
	ctx := context.Background()

	_, err := svc.RunBatch(ctx, 1, "caller", curitibaBatch(
		models.Product{ID: 1, UserID: 1, Name: "dipirona"},
	))
	require.NoError(t, err)
	seen := calls.Load()

	result, err := svc.RunBatch(ctx, 1, "caller", curitibaBatch(
		models.Product{ID: 1, UserID: 1, Name: "paracetamol"},
	))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, search.ErrRateLimited)

	var quotaErr *search.QuotaError
	require.True(t, errors.As(err, &quotaErr))
	assert.Greater(t, quotaErr.RetryAfter, time.Duration(0))

	assert.Equal(t, seen, calls.Load(), "a rejected batch never reaches the upstream")

	_, err = svc.RunBatch(ctx, 1, "other-caller", curitibaBatch(
		models.Product{ID: 1, UserID: 1, Name: "paracetamol"},
	))
	assert.NoError(t, err, "the window is tracked per caller")
}

func TestRunBatchSharesLookupsAcrossProducts(t *testing.T) {
	svc, _, calls := newTestMonitor(t, competitorHandler(), 60)

	result, err := svc.RunBatch(context.Background(), 1, "caller", curitibaBatch(
		models.Product{ID: 1, UserID: 1, Name: "dipirona", OwnPrice: fp(8.99)},
		models.Product{ID: 2, UserID: 1, Name: "Dipirona", OwnPrice: fp(10.5)},
	))
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "identical concurrent lookups collapse into one upstream call")

	require.Len(t, result.Reports, 2)
	assert.Equal(t, StatusCompetitive, result.Reports[0].Status)
	assert.Equal(t, StatusModerate, result.Reports[1].Status, "shared market data still classifies per product")
}
