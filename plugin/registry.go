package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/circulate/eligibility"
	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/reservation"
)

// DefaultHookTimeout bounds a single plugin call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onReservationCreated []OnReservationCreated
	onReservationDenied  []OnReservationDenied
	onHandoverConfirmed  []OnHandoverConfirmed
	onItemReturned       []OnItemReturned
	onOverdueSwept       []OnOverdueSwept
	onTrustChanged       []OnTrustChanged
	onLevelUp            []OnLevelUp
	onEventsRelayed      []OnEventsRelayed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnReservationCreated); ok {
		r.onReservationCreated = append(r.onReservationCreated, v)
	}
	if v, ok := p.(OnReservationDenied); ok {
		r.onReservationDenied = append(r.onReservationDenied, v)
	}
	if v, ok := p.(OnHandoverConfirmed); ok {
		r.onHandoverConfirmed = append(r.onHandoverConfirmed, v)
	}
	if v, ok := p.(OnItemReturned); ok {
		r.onItemReturned = append(r.onItemReturned, v)
	}
	if v, ok := p.(OnOverdueSwept); ok {
		r.onOverdueSwept = append(r.onOverdueSwept, v)
	}
	if v, ok := p.(OnTrustChanged); ok {
		r.onTrustChanged = append(r.onTrustChanged, v)
	}
	if v, ok := p.(OnLevelUp); ok {
		r.onLevelUp = append(r.onLevelUp, v)
	}
	if v, ok := p.(OnEventsRelayed); ok {
		r.onEventsRelayed = append(r.onEventsRelayed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	typ  reflect.Type
	name string
}{
	{reflect.TypeFor[OnInit](), "OnInit"},
	{reflect.TypeFor[OnShutdown](), "OnShutdown"},
	{reflect.TypeFor[OnReservationCreated](), "OnReservationCreated"},
	{reflect.TypeFor[OnReservationDenied](), "OnReservationDenied"},
	{reflect.TypeFor[OnHandoverConfirmed](), "OnHandoverConfirmed"},
	{reflect.TypeFor[OnItemReturned](), "OnItemReturned"},
	{reflect.TypeFor[OnOverdueSwept](), "OnOverdueSwept"},
	{reflect.TypeFor[OnTrustChanged](), "OnTrustChanged"},
	{reflect.TypeFor[OnLevelUp](), "OnLevelUp"},
	{reflect.TypeFor[OnEventsRelayed](), "OnEventsRelayed"},
}

// implementedInterfaces returns the hook interfaces implemented by p.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			interfaces = append(interfaces, h.name)
		}
	}
	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, engine)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitReservationCreated emits a reservation created event.
func (r *Registry) EmitReservationCreated(ctx context.Context, rsv *reservation.Reservation) {
	r.mu.RLock()
	plugins := r.onReservationCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnReservationCreated", func() error {
			return p.OnReservationCreated(ctx, rsv)
		})
	}
}

// EmitReservationDenied emits a reservation denied event.
func (r *Registry) EmitReservationDenied(ctx context.Context, userID string, itemID id.ItemID, d eligibility.Decision) {
	r.mu.RLock()
	plugins := r.onReservationDenied
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnReservationDenied", func() error {
			return p.OnReservationDenied(ctx, userID, itemID, d)
		})
	}
}

// EmitHandoverConfirmed emits a handover confirmed event.
func (r *Registry) EmitHandoverConfirmed(ctx context.Context, rsv *reservation.Reservation) {
	r.mu.RLock()
	plugins := r.onHandoverConfirmed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnHandoverConfirmed", func() error {
			return p.OnHandoverConfirmed(ctx, rsv)
		})
	}
}

// EmitItemReturned emits an item returned event.
func (r *Registry) EmitItemReturned(ctx context.Context, rsv *reservation.Reservation, evt *event.Event) {
	r.mu.RLock()
	plugins := r.onItemReturned
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnItemReturned", func() error {
			return p.OnItemReturned(ctx, rsv, evt)
		})
	}
}

// EmitOverdueSwept emits an overdue sweep event.
func (r *Registry) EmitOverdueSwept(ctx context.Context, count int64) {
	r.mu.RLock()
	plugins := r.onOverdueSwept
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnOverdueSwept", func() error {
			return p.OnOverdueSwept(ctx, count)
		})
	}
}

// EmitTrustChanged emits a trust changed event.
func (r *Registry) EmitTrustChanged(ctx context.Context, c *progression.Change) {
	r.mu.RLock()
	plugins := r.onTrustChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnTrustChanged", func() error {
			return p.OnTrustChanged(ctx, c)
		})
	}
}

// EmitLevelUp emits a level up event.
func (r *Registry) EmitLevelUp(ctx context.Context, c *progression.Change) {
	r.mu.RLock()
	plugins := r.onLevelUp
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnLevelUp", func() error {
			return p.OnLevelUp(ctx, c)
		})
	}
}

// EmitEventsRelayed emits an outbox relay event.
func (r *Registry) EmitEventsRelayed(ctx context.Context, delivered, failed int) {
	r.mu.RLock()
	plugins := r.onEventsRelayed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnEventsRelayed", func() error {
			return p.OnEventsRelayed(ctx, delivered, failed)
		})
	}
}

func (r *Registry) call(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the reservation pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
