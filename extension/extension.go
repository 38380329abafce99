// Package extension provides the Forge extension adapter for Circulate.
//
// It implements the forge.Extension interface to integrate Circulate
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.circulate" or
// "circulate" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/circulate"
	"github.com/xraph/circulate/store"
	"github.com/xraph/circulate/store/memory"
	"github.com/xraph/circulate/store/mongo"
	"github.com/xraph/circulate/store/postgres"
	"github.com/xraph/circulate/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "circulate"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Borrow/return reservation engine for shared item pools"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Circulate as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *circulate.Engine
	store      store.Store
	groveDB    *grove.DB
	engineOpts []circulate.Option
}

// New creates a new Circulate Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Circulate engine.
// This is nil until Register is called.
func (e *Extension) Engine() *circulate.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the circulate engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.resolveStore(); err != nil {
		return err
	}

	e.engine = circulate.New(e.store, e.buildEngineOpts()...)

	return vessel.Provide(fapp.Container(), func() (*circulate.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("circulate: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("circulate: store not initialized")
	}
	return e.store.Ping(ctx)
}

// resolveStore picks the store: an explicit WithStore wins, then a grove
// database, then an in-memory store.
func (e *Extension) resolveStore() error {
	if e.store != nil {
		return nil
	}
	if e.groveDB == nil {
		e.store = memory.New()
		return nil
	}

	s, err := storeFor(e.config.GroveDriver, e.groveDB)
	if err != nil {
		return err
	}
	e.store = s
	return nil
}

// storeFor builds the store backend for a grove driver name.
func storeFor(driver string, db *grove.DB) (store.Store, error) {
	switch driver {
	case DriverPostgres, "":
		return postgres.New(db), nil
	case DriverSQLite:
		return sqlite.New(db), nil
	case DriverMongo:
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("circulate: unknown grove driver %q", driver)
	}
}

// buildEngineOpts constructs circulate.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []circulate.Option {
	opts := make([]circulate.Option, 0, len(e.engineOpts)+5)

	if e.config.DisableMigrate {
		opts = append(opts, circulate.WithoutMigrate())
	}
	if e.config.AvailabilityCacheTTL > 0 {
		opts = append(opts, circulate.WithAvailabilityCacheTTL(e.config.AvailabilityCacheTTL))
	}
	if e.config.SweepInterval > 0 {
		opts = append(opts, circulate.WithSweepInterval(e.config.SweepInterval))
	}
	if e.config.RelayInterval > 0 || e.config.RelayBatchSize > 0 {
		defaults := DefaultConfig()
		batchSize := e.config.RelayBatchSize
		interval := e.config.RelayInterval
		if batchSize == 0 {
			batchSize = defaults.RelayBatchSize
		}
		if interval == 0 {
			interval = defaults.RelayInterval
		}
		opts = append(opts, circulate.WithRelayConfig(batchSize, interval))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("circulate: configuration is required but not found in config files; " +
				"ensure 'extensions.circulate' or 'circulate' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("circulate: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("availability_cache_ttl", e.config.AvailabilityCacheTTL),
		forge.F("sweep_interval", e.config.SweepInterval),
		forge.F("relay_interval", e.config.RelayInterval),
		forge.F("relay_batch_size", e.config.RelayBatchSize),
		forge.F("grove_driver", e.config.GroveDriver),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.circulate" first (namespaced pattern).
	if cm.IsSet("extensions.circulate") {
		if err := cm.Bind("extensions.circulate", &cfg); err == nil {
			e.Logger().Debug("circulate: loaded config from file",
				forge.F("key", "extensions.circulate"),
			)
			return cfg, true
		}
		e.Logger().Warn("circulate: failed to bind extensions.circulate config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "circulate" key.
	if cm.IsSet("circulate") {
		if err := cm.Bind("circulate", &cfg); err == nil {
			e.Logger().Debug("circulate: loaded config from file",
				forge.F("key", "circulate"),
			)
			return cfg, true
		}
		e.Logger().Warn("circulate: failed to bind circulate config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.AvailabilityCacheTTL == 0 {
		cfg.AvailabilityCacheTTL = defaults.AvailabilityCacheTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.RelayInterval == 0 {
		cfg.RelayInterval = defaults.RelayInterval
	}
	if cfg.RelayBatchSize == 0 {
		cfg.RelayBatchSize = defaults.RelayBatchSize
	}
	if cfg.GroveDriver == "" {
		cfg.GroveDriver = defaults.GroveDriver
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.GroveDriver == "" && programmaticConfig.GroveDriver != "" {
		yamlConfig.GroveDriver = programmaticConfig.GroveDriver
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.AvailabilityCacheTTL == 0 && programmaticConfig.AvailabilityCacheTTL != 0 {
		yamlConfig.AvailabilityCacheTTL = programmaticConfig.AvailabilityCacheTTL
	}
	if yamlConfig.SweepInterval == 0 && programmaticConfig.SweepInterval != 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}
	if yamlConfig.RelayInterval == 0 && programmaticConfig.RelayInterval != 0 {
		yamlConfig.RelayInterval = programmaticConfig.RelayInterval
	}
	if yamlConfig.RelayBatchSize == 0 && programmaticConfig.RelayBatchSize != 0 {
		yamlConfig.RelayBatchSize = programmaticConfig.RelayBatchSize
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
