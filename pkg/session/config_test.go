package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethpandaops/partcache/internal/testutil"
	"github.com/ethpandaops/partcache/pkg/catalog"
	"github.com/ethpandaops/partcache/pkg/catalog/pgcatalog"
	"github.com/ethpandaops/partcache/pkg/redis"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:   "fixture catalog",
			config: Config{Logging: "info", Catalog: CatalogConfig{Fixture: "catalog.yaml"}},
		},
		{
			name:   "postgres catalog",
			config: Config{Logging: "debug", Catalog: CatalogConfig{Postgres: pgcatalog.Config{DSN: "postgres://localhost/db"}}},
		},
		{
			name:    "no catalog",
			config:  Config{Logging: "info"},
			wantErr: ErrCatalogRequired,
		},
		{
			name: "both catalogs",
			config: Config{Logging: "info", Catalog: CatalogConfig{
				Fixture:  "catalog.yaml",
				Postgres: pgcatalog.Config{DSN: "postgres://localhost/db"},
			}},
			wantErr: ErrCatalogAmbiguous,
		},
		{
			name:    "bad log level",
			config:  Config{Logging: "loud", Catalog: CatalogConfig{Fixture: "catalog.yaml"}},
			wantErr: ErrInvalidLogLevel,
		},
		{
			name: "redis without channel",
			config: Config{Logging: "info", Catalog: CatalogConfig{Fixture: "catalog.yaml"},
				Redis: redis.Config{URL: "redis://localhost:6379"}},
			wantErr: redis.ErrChannelRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeFile(t, "config.yaml", "catalog:\n  fixture: catalog.yaml\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Logging)
	assert.Equal(t, ":9091", cfg.MetricsAddr)
	assert.True(t, cfg.EnableBoundsCache)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "partcache:invalidations", cfg.Redis.ChannelName())
	assert.Equal(t, 1024, cfg.Redis.Buffer)
	assert.Equal(t, "public", cfg.Catalog.Postgres.Schema)
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeFile(t, "config.yaml", `
logging: debug
metricsAddr: ""
enableBoundsCache: false
redis:
  url: redis://localhost:6379/0
  channel: ddl
  prefix: ""
catalog:
  postgres:
    dsn: postgres://localhost/db
    schema: pathman
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Logging)
	assert.Empty(t, cfg.MetricsAddr)
	assert.False(t, cfg.EnableBoundsCache)
	assert.Equal(t, "ddl", cfg.Redis.ChannelName())
	assert.Equal(t, "pathman", cfg.Catalog.Postgres.Schema)

	log, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadConfig(writeFile(t, "config.yaml", "logging: [\n"))
	require.Error(t, err)
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	log := testutil.NewLogger()

	cfg := &CatalogConfig{Fixture: writeFile(t, "catalog.yaml", testutil.CatalogFixture)}

	backend, err := OpenBackend(ctx, log, cfg)
	require.NoError(t, err)
	defer backend.Close()

	relations, err := backend.PartitionedRelations(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []catalog.RelID{testutil.OrdersRelID, testutil.EventsRelID, testutil.EmptyLogsRelID}, relations)
	assert.Equal(t, "orders", backend.RelationName(ctx, testutil.OrdersRelID))
	assert.Equal(t, "424242", backend.RelationName(ctx, 424242))

	relid, err := backend.ResolveRelation(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, testutil.EventsRelID, relid)

	relid, err = backend.ResolveRelation(ctx, "20001")
	require.NoError(t, err)
	assert.Equal(t, testutil.Orders2021RelID, relid)

	_, err = backend.ResolveRelation(ctx, "nope")
	require.ErrorIs(t, err, catalog.ErrUnknownRelation)

	_, err = OpenBackend(ctx, log, &CatalogConfig{})
	require.ErrorIs(t, err, ErrCatalogRequired)

	_, err = OpenBackend(ctx, log, &CatalogConfig{Fixture: writeFile(t, "bad.yaml", "tables: [: x")})
	require.Error(t, err)
}
