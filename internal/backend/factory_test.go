package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/config"
	"expensetracker/internal/core"
	"expensetracker/internal/services"
)

func testConfig(t BackendType) Config {
	return Config{
		Type:            t,
		Location:        time.UTC,
		DefaultCurrency: "USD",
		CacheSize:       16,
		CacheTTL:        time.Minute,
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	sqliteCfg := testConfig(SQLiteBackend)
	sqliteCfg.SQLiteDBPath = filepath.Join(t.TempDir(), "expenses.db")

	for _, cfg := range []Config{testConfig(MemoryBackend), sqliteCfg} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			res, err := NewFactory(nil).CreateBackend(ctx, cfg)
			require.NoError(t, err)
			defer res.Cleanup()

			tx, err := res.Service.Create(ctx, services.Draft{
				Amount:    core.MustParseMoney("12.00"),
				Category:  core.Food,
				Timestamp: time.Now().UTC(),
			})
			require.NoError(t, err)

			got, err := res.Service.Get(ctx, tx.ID)
			require.NoError(t, err)
			assert.Equal(t, "12.00", got.Amount.String())

			summary, err := res.Engine.Summary(ctx)
			require.NoError(t, err)
			assert.Equal(t, "12.00", summary.Today.String())
		})
	}
}

func TestCreateBackendInvalidConfig(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: "postgres"})
	assert.Error(t, err)

	cfg := testConfig(SQLiteBackend)
	_, err = NewFactory(nil).CreateBackend(context.Background(), cfg)
	assert.Error(t, err, "sqlite without a path")
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:     "memory",
		Timezone:        "UTC",
		DefaultCurrency: "EUR",
		CacheSize:       8,
		CacheTTL:        time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, MemoryBackend, cfg.Type)
	assert.Equal(t, "UTC", cfg.Location.String())
	assert.Equal(t, "EUR", cfg.DefaultCurrency)

	_, err = FromAppConfig(&config.Config{DataBackend: "postgres"})
	assert.Error(t, err)
}

func TestBackendTypes(t *testing.T) {
	assert.Equal(t, []string{"sqlite", "memory"}, GetBackendTypeStrings())
	assert.False(t, BackendType("postgres").IsValid())
}
