package insights

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/riddle022/farmavision/pkg/cache"
	"github.com/riddle022/farmavision/pkg/dashboard"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/store"
)

// fakeGenerator records the prompts it was asked for.
type fakeGenerator struct {
	system string
	prompt string
	err    error
}

func (g *fakeGenerator) Generate(_ context.Context, system, prompt string) (*Generation, error) {
	g.system = system
	g.prompt = prompt
	if g.err != nil {
		return nil, g.err
	}
	return &Generation{
		Content:    "Seus preços de dipirona estão acima do mercado.",
		Model:      "gpt-4o-mini",
		TokensUsed: 321,
	}, nil
}

func newTestInsights(t *testing.T, generator Generator) (*Service, *store.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "insights.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	st := store.New(db)
	dash := dashboard.NewService(st, cache.NewMemory(5*time.Minute, 100), nil, logger.Discard(), dashboard.Config{})
	return NewService(generator, dash, st, nil, logger.Discard()), st
}

func TestGenerateAndStore(t *testing.T) {
	generator := &fakeGenerator{}
	svc, st := newTestInsights(t, generator)
	ctx := context.Background()

	price := 9.5
	require.NoError(t, st.Products.Create(ctx, &models.Product{UserID: 1, Name: "dipirona", OwnPrice: &price}))

	insight, err := svc.GenerateAndStore(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, insight)
	assert.NotZero(t, insight.ID)
	assert.Equal(t, "gpt-4o-mini", insight.Model)
	assert.Equal(t, 321, insight.TokensUsed)

	assert.Contains(t, generator.system, "farmácias brasileiras")
	assert.Contains(t, generator.prompt, "Produtos cadastrados: 1")

	stored, err := st.Insights.ListRecent(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, insight.Content, stored[0].Content)
}

func TestGenerateWithoutGenerator(t *testing.T) {
	svc, _ := newTestInsights(t, nil)

	assert.False(t, svc.Enabled())
	_, err := svc.GenerateAndStore(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, svc.GenerateAll(context.Background()), ErrNotConfigured)
}

func TestGenerateWithoutData(t *testing.T) {
	svc, _ := newTestInsights(t, &fakeGenerator{})

	_, err := svc.GenerateAndStore(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestGenerateAllSkipsEmptyUsers(t *testing.T) {
	generator := &fakeGenerator{}
	svc, st := newTestInsights(t, generator)
	ctx := context.Background()

	require.NoError(t, st.Products.Create(ctx, &models.Product{UserID: 1, Name: "dipirona"}))

	require.NoError(t, svc.GenerateAll(ctx))

	stored, err := st.Insights.ListRecent(ctx, 1, 5)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
