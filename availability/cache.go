// Package availability provides the read-through cache in front of the
// ledger's availability check.
//
// The cache is advisory. The reservation write path re-checks availability
// inside the atomic unit and never consults it, so a stale entry can at worst
// make an item look free (or taken) until the TTL lapses or the next
// invalidation.
package availability

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/circulate/id"
)

// DefaultTTL bounds how long a cached answer is served.
const DefaultTTL = 2 * time.Minute

// ErrCacheMiss is returned by Store when no unexpired entry exists.
var ErrCacheMiss = errors.New("circulate: availability cache miss")

// Store is the keyed backing store for cached answers. Entries expire ttl
// after they are set.
type Store interface {
	GetCachedAvailability(ctx context.Context, itemID id.ItemID) (bool, error)
	SetCachedAvailability(ctx context.Context, itemID id.ItemID, available bool, ttl time.Duration) error
	InvalidateAvailability(ctx context.Context, itemID id.ItemID) error
}

// Source computes the authoritative answer on a miss.
type Source func(ctx context.Context, itemID id.ItemID) (bool, error)

// Cache is a read-through TTL cache over Source.
//
// Every Invalidate bumps a per-item generation. A fill whose source read
// overlapped an invalidation is withdrawn, and an item whose invalidation
// failed in the backing store is served from the source until a fresh fill
// or invalidation succeeds. Generations are local to the process.
type Cache struct {
	store  Store
	source Source
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	gens  map[string]uint64
	dirty map[string]bool
}

// New creates a cache. A non-positive ttl selects DefaultTTL.
func New(s Store, source Source, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:  s,
		source: source,
		ttl:    ttl,
		logger: logger,
		gens:   make(map[string]uint64),
		dirty:  make(map[string]bool),
	}
}

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the cached answer for itemID, computing and storing it on a
// miss. Backing store read failures fall through to the source.
func (c *Cache) Get(ctx context.Context, itemID id.ItemID) (bool, error) {
	key := itemID.String()
	gen, dirty := c.state(key)

	if !dirty {
		available, err := c.store.GetCachedAvailability(ctx, itemID)
		if err == nil {
			return available, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("availability cache read failed",
				"item_id", key,
				"error", err,
			)
		}
	}

	available, err := c.source(ctx, itemID)
	if err != nil {
		return false, err
	}
	c.fill(ctx, itemID, gen, available)
	return available, nil
}

// Invalidate drops the cached answer for itemID. On a backing store error
// the item stays marked and Get bypasses the stored entry.
func (c *Cache) Invalidate(ctx context.Context, itemID id.ItemID) error {
	key := itemID.String()

	c.mu.Lock()
	c.gens[key]++
	gen := c.gens[key]
	c.dirty[key] = true
	c.mu.Unlock()

	if err := c.store.InvalidateAvailability(ctx, itemID); err != nil {
		return err
	}
	c.settle(key, gen)
	return nil
}

// fill stores an answer computed at generation gen. The generation is
// re-checked after the write: an Invalidate that bumped it in between may
// have deleted before the write landed, so the entry is deleted again.
func (c *Cache) fill(ctx context.Context, itemID id.ItemID, gen uint64, available bool) {
	key := itemID.String()
	if err := c.store.SetCachedAvailability(ctx, itemID, available, c.ttl); err != nil {
		return
	}
	if cur, _ := c.state(key); cur != gen {
		if err := c.store.InvalidateAvailability(ctx, itemID); err != nil {
			c.mu.Lock()
			c.dirty[key] = true
			c.mu.Unlock()
		}
		return
	}
	c.settle(key, gen)
}

func (c *Cache) state(key string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key], c.dirty[key]
}

// settle clears the dirty mark when no invalidation happened after gen.
func (c *Cache) settle(key string, gen uint64) {
	c.mu.Lock()
	if c.gens[key] == gen {
		delete(c.dirty, key)
	}
	c.mu.Unlock()
}
