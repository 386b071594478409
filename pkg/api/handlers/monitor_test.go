package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddle022/farmavision/pkg/cache"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/monitor"
	"github.com/riddle022/farmavision/pkg/products"
	"github.com/riddle022/farmavision/pkg/profiles"
	"github.com/riddle022/farmavision/pkg/quota"
	"github.com/riddle022/farmavision/pkg/registry"
	"github.com/riddle022/farmavision/pkg/search"
	"github.com/riddle022/farmavision/pkg/upstream"
)

// newMonitorStack wires the handler with a fake upstream and a throwaway
// database, returning the sibling handlers needed to set the stage.
func newMonitorStack(t *testing.T, quotaLimit int) (*MonitorHandler, *ProductsHandler, *ProfilesHandler) {
	t.Helper()
	srv := httptest.NewServer(fakeUpstream())
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

	st := testStore(t)
	monitorSvc := monitor.NewService(
		searchSvc,
		st,
		registry.NewResolver(st.Pharmacies, logger.Discard()),
		quota.NewLimiter(quotaLimit, time.Minute),
		nil,
		logger.Discard(),
		monitor.Config{},
	)
	profilesSvc := profiles.NewService(st, nil, logger.Discard())
	productsSvc := products.NewService(st, logger.Discard())

	return NewMonitorHandler(monitorSvc, profilesSvc, productsSvc, logger.Discard()),
		NewProductsHandler(productsSvc, logger.Discard()),
		NewProfilesHandler(profilesSvc, logger.Discard())
}

func TestMonitorRunUsesActiveProfile(t *testing.T) {
	mh, ph, fh := newMonitorStack(t, 60)

	rec := doJSON(t, ph.Create, http.MethodPost, "/api/produtos",
		`{"name":"Dipirona 500mg","own_price":8.20}`, 1)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, fh.Create, http.MethodPost, "/api/perfis",
		`{"name":"Loja Centro","location_mode":"device","latitude":-25.4284,"longitude":-49.2733,"radius_km":10,"product_ids":[1],"activate":true}`, 1)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mh.Run, http.MethodPost, "/api/monitoramento", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)

	var result monitor.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Reports, 1)

	report := result.Reports[0]
	assert.Equal(t, "Dipirona 500mg", report.ProductName)
	assert.False(t, report.Degraded)
	assert.Equal(t, monitor.StatusCompetitive, report.Status, "own 8.20 undercuts the 8.25 average")
	assert.Equal(t, 3, report.Competitors)
}

func TestMonitorRunWithoutActiveProfile(t *testing.T) {
	mh, ph, _ := newMonitorStack(t, 60)

	rec := doJSON(t, ph.Create, http.MethodPost, "/api/produtos", `{"name":"Dipirona"}`, 1)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mh.Run, http.MethodPost, "/api/monitoramento", "", 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec).Message, "nenhum perfil ativo")
}

func TestMonitorRunWithoutProducts(t *testing.T) {
	mh, _, fh := newMonitorStack(t, 60)

	rec := doJSON(t, fh.Create, http.MethodPost, "/api/perfis",
		`{"name":"Loja","location_mode":"device","latitude":-25.4,"longitude":-49.2,"activate":true}`, 1)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mh.Run, http.MethodPost, "/api/monitoramento", "", 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec).Message, "nenhum produto para monitorar")
}

func TestMonitorRunQuotaExceeded(t *testing.T) {
	mh, ph, fh := newMonitorStack(t, 1)

	rec := doJSON(t, ph.Create, http.MethodPost, "/api/produtos", `{"name":"Dipirona"}`, 1)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, fh.Create, http.MethodPost, "/api/perfis",
		`{"name":"Loja","location_mode":"device","latitude":-25.4,"longitude":-49.2,"activate":true}`, 1)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mh.Run, http.MethodPost, "/api/monitoramento", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mh.Run, http.MethodPost, "/api/monitoramento", "", 1)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestMonitorRunExplicitProfile(t *testing.T) {
	mh, ph, fh := newMonitorStack(t, 60)

	rec := doJSON(t, ph.Create, http.MethodPost, "/api/produtos", `{"name":"Paracetamol 750mg"}`, 1)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, fh.Create, http.MethodPost, "/api/perfis",
		`{"name":"Loja Sul","location_mode":"device","latitude":-25.5,"longitude":-49.3}`, 1)
	require.Equal(t, http.StatusCreated, rec.Code)

	// The profile is not active, but can be run by id.
	rec = doJSON(t, mh.Run, http.MethodPost, "/api/monitoramento", `{"profile_id":1}`, 1)
	require.Equal(t, http.StatusOK, rec.Code)

	// Unknown profile id is a 404.
	rec = doJSON(t, mh.Run, http.MethodPost, "/api/monitoramento", `{"profile_id":99}`, 1)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
