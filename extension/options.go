package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/circulate"
	"github.com/xraph/circulate/plugin"
	"github.com/xraph/circulate/store"
)

// Option configures the Circulate Forge extension.
type Option func(*Extension)

// WithStore sets the store for the circulate engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB builds the store over db. The backend is chosen by
// Config.GroveDriver. A store passed with WithStore takes precedence.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}

// WithEngineOption passes a circulate.Option through to the underlying engine.
func WithEngineOption(opt circulate.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a circulate plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, circulate.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithAvailabilityCacheTTL sets the availability cache duration.
func WithAvailabilityCacheTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.AvailabilityCacheTTL = d }
}

// WithSweepInterval sets how often overdue reservations are swept.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SweepInterval = d }
}

// WithRelay sets the outbox relay batch size and interval.
func WithRelay(batchSize int, interval time.Duration) Option {
	return func(e *Extension) {
		e.config.RelayBatchSize = batchSize
		e.config.RelayInterval = interval
	}
}

// WithGroveDriver sets which store backend WithGroveDB builds.
func WithGroveDriver(driver string) Option {
	return func(e *Extension) { e.config.GroveDriver = driver }
}
