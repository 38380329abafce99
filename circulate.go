package circulate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/circulate/availability"
	"github.com/xraph/circulate/plan"
	"github.com/xraph/circulate/plugin"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/store"
)

// Default intervals for the background workers.
const (
	DefaultSweepInterval  = time.Minute
	DefaultRelayInterval  = 30 * time.Second
	DefaultRelayBatchSize = 100
)

// Engine is the reservation coordinator. It is the only writer of
// reservations and of the item availability flag.
type Engine struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    func() time.Time
	plans    plan.Catalog
	cache    *availability.Cache
	progress *progression.Engine

	// Background workers
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Configuration
	cacheTTL       time.Duration
	sweepInterval  time.Duration
	relayInterval  time.Duration
	relayBatchSize int
	rules          progression.Rules
	thresholds     progression.Thresholds
	skipMigrate    bool
}

// New creates a new Engine over s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		tracer:         otel.Tracer("github.com/xraph/circulate"),
		clock:          time.Now,
		plans:          plan.Defaults(),
		stopChan:       make(chan struct{}),
		cacheTTL:       availability.DefaultTTL,
		sweepInterval:  DefaultSweepInterval,
		relayInterval:  DefaultRelayInterval,
		relayBatchSize: DefaultRelayBatchSize,
		rules:          progression.DefaultRules(),
		thresholds:     progression.DefaultThresholds(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.cache = availability.New(s, s.IsAvailable, e.cacheTTL, e.logger)
	e.progress = progression.NewEngine(s,
		progression.WithRules(e.rules),
		progression.WithThresholds(e.thresholds),
		progression.WithListener(pluginListener{plugins: e.plugins}),
		progression.WithLogger(e.logger),
		progression.WithClock(e.clock),
	)

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the time source. Tests use it to control due dates.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithPlans replaces the plan catalog.
func WithPlans(c plan.Catalog) Option {
	return func(e *Engine) {
		e.plans = c
	}
}

// WithAvailabilityCacheTTL sets the availability cache TTL.
func WithAvailabilityCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.cacheTTL = ttl
	}
}

// WithSweepInterval sets how often overdue reservations are swept.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.sweepInterval = d
	}
}

// WithRelayConfig configures the outbox relay.
func WithRelayConfig(batchSize int, interval time.Duration) Option {
	return func(e *Engine) {
		e.relayBatchSize = batchSize
		e.relayInterval = interval
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithProgressionRules replaces the trust and point rules.
func WithProgressionRules(r progression.Rules) Option {
	return func(e *Engine) {
		e.rules = r
	}
}

// WithLevelThresholds replaces the level ladder.
func WithLevelThresholds(t progression.Thresholds) Option {
	return func(e *Engine) {
		e.thresholds = t
	}
}

// WithoutMigrate makes Start skip store migration.
func WithoutMigrate() Option {
	return func(e *Engine) { e.skipMigrate = true }
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Start migrates the store and begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.plans.Validate(); err != nil {
		return ValidationError{Field: "plans", Message: err.Error()}
	}

	// Migrate database
	if !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	// Initialize plugins
	e.plugins.EmitInit(ctx, e)

	workerCtx := context.WithoutCancel(ctx)
	if e.sweepInterval > 0 {
		e.wg.Add(1)
		go e.overdueWorker(workerCtx)
	}
	if e.relayInterval > 0 {
		e.wg.Add(1)
		go e.relayWorker(workerCtx)
	}

	e.logger.Info("circulate started",
		"sweep_interval", e.sweepInterval,
		"relay_interval", e.relayInterval,
		"relay_batch_size", e.relayBatchSize,
		"cache_ttl", e.cacheTTL,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// overdueWorker periodically moves expired reservations to overdue.
func (e *Engine) overdueWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			if _, err := e.SweepOverdue(ctx); err != nil {
				e.logger.Error("overdue sweep failed", "error", err)
			}
		}
	}
}

// relayWorker periodically redelivers pending outbox events.
func (e *Engine) relayWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.relayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			// Final drain
			e.relayOnce(ctx)
			return
		case <-ticker.C:
			e.relayOnce(ctx)
		}
	}
}

func (e *Engine) relayOnce(ctx context.Context) {
	if _, err := e.RelayPending(ctx); err != nil {
		e.logger.Error("outbox relay failed", "error", err)
	}
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

// pluginListener forwards progression notifications to plugins.
type pluginListener struct {
	plugins *plugin.Registry
}

func (l pluginListener) TrustChanged(ctx context.Context, c *progression.Change) {
	l.plugins.EmitTrustChanged(ctx, c)
}

func (l pluginListener) LeveledUp(ctx context.Context, c *progression.Change) {
	l.plugins.EmitLevelUp(ctx, c)
}
