package extension

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/circulate/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{SweepInterval: 5 * time.Second})

	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, 2*time.Minute, cfg.AvailabilityCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.RelayInterval)
	assert.Equal(t, 100, cfg.RelayBatchSize)
	assert.Equal(t, DriverPostgres, cfg.GroveDriver)
}

func TestMergeConfigurationsPrefersFile(t *testing.T) {
	file := Config{RelayBatchSize: 25, GroveDriver: DriverSQLite}
	prog := Config{RelayBatchSize: 50, RelayInterval: time.Second, DisableMigrate: true, GroveDriver: DriverMongo}

	cfg := mergeConfigurations(file, prog)

	assert.Equal(t, 25, cfg.RelayBatchSize)
	assert.Equal(t, time.Second, cfg.RelayInterval)
	assert.Equal(t, DriverSQLite, cfg.GroveDriver)
	assert.True(t, cfg.DisableMigrate)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
}

func TestStoreForUnknownDriver(t *testing.T) {
	_, err := storeFor("cassandra", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassandra")
}

func TestOptionsPopulateConfig(t *testing.T) {
	e := New(
		WithDisableMigrate(),
		WithSweepInterval(10*time.Second),
		WithRelay(10, 5*time.Second),
		WithGroveDriver(DriverSQLite),
	)

	assert.True(t, e.config.DisableMigrate)
	assert.Equal(t, 10*time.Second, e.config.SweepInterval)
	assert.Equal(t, 10, e.config.RelayBatchSize)
	assert.Equal(t, 5*time.Second, e.config.RelayInterval)
	assert.Equal(t, DriverSQLite, e.config.GroveDriver)
}

func TestResolveStorePrefersExplicit(t *testing.T) {
	s := memory.New()
	e := New(WithStore(s))
	require.NoError(t, e.resolveStore())
	assert.Same(t, s, e.store)

	e = New()
	require.NoError(t, e.resolveStore())
	assert.NotNil(t, e.store)
}

func TestBuildEngineOpts(t *testing.T) {
	e := New()
	e.config = mergeWithDefaults(Config{DisableMigrate: true})

	// migrate flag, cache TTL, sweep and relay
	assert.Len(t, e.buildEngineOpts(), 4)
}
