package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/circulate/id"
)

type entry struct {
	available bool
	expires   time.Time
}

type mapStore struct {
	now     time.Time
	entries map[string]entry
	readErr error
}

func (m *mapStore) GetCachedAvailability(_ context.Context, itemID id.ItemID) (bool, error) {
	if m.readErr != nil {
		return false, m.readErr
	}
	e, ok := m.entries[itemID.String()]
	if !ok || !m.now.Before(e.expires) {
		return false, ErrCacheMiss
	}
	return e.available, nil
}

func (m *mapStore) SetCachedAvailability(_ context.Context, itemID id.ItemID, available bool, ttl time.Duration) error {
	m.entries[itemID.String()] = entry{available: available, expires: m.now.Add(ttl)}
	return nil
}

func (m *mapStore) InvalidateAvailability(_ context.Context, itemID id.ItemID) error {
	delete(m.entries, itemID.String())
	return nil
}

func TestCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	store := &mapStore{now: time.Unix(1000, 0), entries: map[string]entry{}}
	truth := true
	calls := 0
	source := func(context.Context, id.ItemID) (bool, error) {
		calls++
		return truth, nil
	}
	c := New(store, source, time.Minute, nil)
	itemID := id.NewItemID()

	got, err := c.Get(ctx, itemID)
	if err != nil || !got {
		t.Fatalf("Get = %v, %v; want true", got, err)
	}

	// Ledger changes but the cached answer is served until expiry.
	truth = false
	got, _ = c.Get(ctx, itemID)
	if !got {
		t.Error("expected cached true before expiry")
	}
	if calls != 1 {
		t.Errorf("source calls = %d, want 1", calls)
	}

	store.now = store.now.Add(time.Minute)
	got, _ = c.Get(ctx, itemID)
	if got {
		t.Error("expected fresh false after expiry")
	}
	if calls != 2 {
		t.Errorf("source calls = %d, want 2", calls)
	}
}

func TestCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	store := &mapStore{now: time.Unix(1000, 0), entries: map[string]entry{}}
	truth := true
	c := New(store, func(context.Context, id.ItemID) (bool, error) { return truth, nil }, 0, nil)
	itemID := id.NewItemID()

	if c.TTL() != DefaultTTL {
		t.Errorf("TTL = %v, want default", c.TTL())
	}
	if _, err := c.Get(ctx, itemID); err != nil {
		t.Fatal(err)
	}
	truth = false
	if err := c.Invalidate(ctx, itemID); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.Get(ctx, itemID); got {
		t.Error("expected false after invalidation")
	}
}

func TestCacheFallsThroughOnStoreError(t *testing.T) {
	store := &mapStore{now: time.Unix(1000, 0), entries: map[string]entry{}, readErr: errors.New("down")}
	c := New(store, func(context.Context, id.ItemID) (bool, error) { return true, nil }, time.Minute, nil)
	got, err := c.Get(context.Background(), id.NewItemID())
	if err != nil || !got {
		t.Fatalf("Get = %v, %v; want true, nil", got, err)
	}
}

func TestCacheSourceError(t *testing.T) {
	store := &mapStore{now: time.Unix(1000, 0), entries: map[string]entry{}}
	boom := errors.New("boom")
	c := New(store, func(context.Context, id.ItemID) (bool, error) { return false, boom }, time.Minute, nil)
	if _, err := c.Get(context.Background(), id.NewItemID()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(store.entries) != 0 {
		t.Error("source errors must not be cached")
	}
}

func TestCacheFillRacingInvalidateIsWithdrawn(t *testing.T) {
	ctx := context.Background()
	store := &mapStore{now: time.Unix(1000, 0), entries: map[string]entry{}}
	itemID := id.NewItemID()
	truth := true

	var c *Cache
	first := true
	c = New(store, func(ctx context.Context, target id.ItemID) (bool, error) {
		answer := truth
		if first {
			// The ledger changes and is invalidated after the source read.
			first = false
			truth = false
			if err := c.Invalidate(ctx, target); err != nil {
				t.Fatal(err)
			}
		}
		return answer, nil
	}, time.Minute, nil)

	got, err := c.Get(ctx, itemID)
	if err != nil || !got {
		t.Fatalf("Get = %v, %v; want true", got, err)
	}
	if _, ok := store.entries[itemID.String()]; ok {
		t.Fatal("stale fill must not survive a concurrent invalidation")
	}
	if got, _ := c.Get(ctx, itemID); got {
		t.Error("expected false re-read from the ledger")
	}
}

func TestCacheFailedInvalidateBypassesStore(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{mapStore: mapStore{now: time.Unix(1000, 0), entries: map[string]entry{}}}
	truth := true
	calls := 0
	c := New(store, func(context.Context, id.ItemID) (bool, error) {
		calls++
		return truth, nil
	}, time.Minute, nil)
	itemID := id.NewItemID()

	if _, err := c.Get(ctx, itemID); err != nil {
		t.Fatal(err)
	}

	truth = false
	store.invalidateErr = errors.New("down")
	if err := c.Invalidate(ctx, itemID); err == nil {
		t.Fatal("expected invalidation error")
	}
	store.invalidateErr = nil

	if got, _ := c.Get(ctx, itemID); got {
		t.Error("expected false from the source while the entry is stale")
	}
	if calls != 2 {
		t.Errorf("source calls = %d, want 2", calls)
	}

	// The fresh fill replaced the stale entry; reads are cached again.
	if got, _ := c.Get(ctx, itemID); got {
		t.Error("expected cached false")
	}
	if calls != 2 {
		t.Errorf("source calls = %d, want 2", calls)
	}
}

type flakyStore struct {
	mapStore
	invalidateErr error
}

func (f *flakyStore) InvalidateAvailability(ctx context.Context, itemID id.ItemID) error {
	if f.invalidateErr != nil {
		return f.invalidateErr
	}
	return f.mapStore.InvalidateAvailability(ctx, itemID)
}
