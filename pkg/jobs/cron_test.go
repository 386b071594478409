package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/riddle022/farmavision/pkg/cache"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/monitor"
	"github.com/riddle022/farmavision/pkg/quota"
	"github.com/riddle022/farmavision/pkg/registry"
	"github.com/riddle022/farmavision/pkg/scoring"
	"github.com/riddle022/farmavision/pkg/search"
	"github.com/riddle022/farmavision/pkg/store"
	"github.com/riddle022/farmavision/pkg/upstream"
)

func newTestManager(t *testing.T, cfg Config) (*CronManager, *store.Store) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"produtos":[
			{"descricao":"DIPIRONA 500MG","valor":7.99,"nm_fan":"FARMA NISSEI"},
			{"descricao":"DIPIRONA GEN","valor":9.50,"nm_fan":"DROGARIA UNIAO"}
		],"total":2}`))
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

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "jobs.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	st := store.New(db)

	monitorSvc := monitor.NewService(
		searchSvc,
		st,
		registry.NewResolver(st.Pharmacies, logger.Discard()),
		quota.NewLimiter(1000, time.Minute),
		nil,
		logger.Discard(),
		monitor.Config{},
	)
	scoringSvc := scoring.NewService(st, nil, logger.Discard(), 0)

	return NewCronManager(st, monitorSvc, scoringSvc, nil, logger.Discard(), cfg), st
}

func TestSetupJobsWithDefaults(t *testing.T) {
	cm, _ := newTestManager(t, Config{})
	require.NoError(t, cm.SetupJobs())
	assert.Equal(t, defaultMonitorSchedule, cm.cfg.MonitorSchedule)
	assert.Equal(t, defaultScoringSchedule, cm.cfg.ScoringSchedule)
}

func TestSetupJobsRejectsBadSchedule(t *testing.T) {
	cm, _ := newTestManager(t, Config{MonitorSchedule: "every full moon"})
	assert.ErrorContains(t, cm.SetupJobs(), "failed to schedule monitoring job")
}

func TestRunMonitoringCoversActiveProfiles(t *testing.T) {
	cm, st := newTestManager(t, Config{})
	ctx := context.Background()

	product := &models.Product{UserID: 1, Name: "Dipirona 500mg"}
	require.NoError(t, st.Products.Create(ctx, product))

	profile := &models.SearchProfile{
		UserID: 1, Name: "Loja Centro", LocationMode: models.LocationDevice,
		Latitude: -25.4284, Longitude: -49.2733, RadiusKM: 10,
	}
	require.NoError(t, st.Profiles.Create(ctx, profile, []uint{product.ID}))
	require.NoError(t, st.Profiles.Activate(ctx, 1, profile.ID))

	// An inactive profile of another user is left alone.
	other := &models.SearchProfile{
		UserID: 2, Name: "Loja Norte", LocationMode: models.LocationDevice,
		Latitude: -23.3, Longitude: -51.1, RadiusKM: 10,
	}
	require.NoError(t, st.Profiles.Create(ctx, other, nil))

	cm.runMonitoring()

	count, err := st.Observations.CountSince(ctx, 1, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "one observation per competitor")

	otherCount, err := st.Observations.CountSince(ctx, 2, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, otherCount)
}

func TestRunScoringScoresEveryUser(t *testing.T) {
	cm, st := newTestManager(t, Config{})
	ctx := context.Background()

	cm.runMonitoring() // no profiles, must not blow up

	pharmacy, err := st.Pharmacies.FindOrCreate(ctx, &models.Pharmacy{
		UserID: 1, Name: "Farma Nissei", NameKey: registry.NameKey("Farma Nissei"),
	})
	require.NoError(t, err)
	require.NoError(t, st.Observations.Insert(ctx, &models.PriceObservation{
		UserID: 1, PharmacyID: pharmacy.ID, ProductID: 1, Price: 8, Available: true,
		Source: "menor_preco", CollectedAt: time.Now().UTC().Add(-time.Hour),
	}))

	cm.runScoring()

	scored, err := st.Pharmacies.ByID(ctx, 1, pharmacy.ID)
	require.NoError(t, err)
	require.NotNil(t, scored.Score)
	assert.NotNil(t, scored.Rank)
}
