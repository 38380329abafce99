package extension

import "time"

// Grove driver names accepted in Config.GroveDriver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Config holds the Circulate extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.circulate" or "circulate" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// AvailabilityCacheTTL controls how long availability answers are
	// cached before re-reading the store (default: 2m).
	AvailabilityCacheTTL time.Duration `json:"availability_cache_ttl" mapstructure:"availability_cache_ttl" yaml:"availability_cache_ttl"`

	// SweepInterval is how often active reservations past their due time
	// are moved to overdue (default: 1m).
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// RelayInterval is how often pending outbox events are redelivered to
	// the progression engine (default: 30s).
	RelayInterval time.Duration `json:"relay_interval" mapstructure:"relay_interval" yaml:"relay_interval"`

	// RelayBatchSize is the number of outbox events redelivered per relay
	// pass (default: 100).
	RelayBatchSize int `json:"relay_batch_size" mapstructure:"relay_batch_size" yaml:"relay_batch_size"`

	// GroveDriver selects the store backend built over a grove.DB passed
	// with WithGroveDB: "postgres", "sqlite" or "mongo" (default: postgres).
	GroveDriver string `json:"grove_driver" mapstructure:"grove_driver" yaml:"grove_driver"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AvailabilityCacheTTL: 2 * time.Minute,
		SweepInterval:        time.Minute,
		RelayInterval:        30 * time.Second,
		RelayBatchSize:       100,
		GroveDriver:          DriverPostgres,
	}
}
