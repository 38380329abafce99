package progression

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/reservation"
)

type fakeStore struct {
	mu       sync.Mutex
	profiles map[string]*Profile
	entries  map[string]*Entry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: make(map[string]*Profile),
		entries:  make(map[string]*Entry),
	}
}

func (s *fakeStore) CreateProfile(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UserID]; ok {
		return ErrProfileExists
	}
	cp := *p
	s.profiles[p.UserID] = &cp
	return nil
}

func (s *fakeStore) GetProfile(_ context.Context, userID string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) ApplyEntry(_ context.Context, e *Entry) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[e.UserID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	if _, dup := s.entries[e.EventKey]; dup {
		return nil, ErrAlreadyApplied
	}
	s.entries[e.EventKey] = e
	p.TrustScore = ClampTrust(p.TrustScore + e.TrustDelta)
	p.Points = max(p.Points+e.Points, 0)
	cp := *p
	return &cp, nil
}

func (s *fakeStore) RaiseLevel(_ context.Context, userID string, level int, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return false, ErrProfileNotFound
	}
	if level <= p.Level {
		return false, nil
	}
	p.Level = level
	return true, nil
}

func (s *fakeStore) ListEntries(_ context.Context, userID string, _ ListOpts) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Entry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type recordingListener struct {
	trust  []*Change
	levels []*Change
}

func (l *recordingListener) TrustChanged(_ context.Context, c *Change) { l.trust = append(l.trust, c) }
func (l *recordingListener) LeveledUp(_ context.Context, c *Change)    { l.levels = append(l.levels, c) }

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakeStore) {
	t.Helper()
	s := newFakeStore()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	e := NewEngine(s, opts...)
	if _, err := e.EnsureProfile(context.Background(), "u1"); err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	return e, s
}

func TestEnsureProfileDefaults(t *testing.T) {
	e, _ := newTestEngine(t)
	p, err := e.EnsureProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	if p.TrustScore != DefaultTrust || p.Level != MinLevel || p.Points != 0 {
		t.Errorf("unexpected starting profile %+v", p)
	}
}

func TestApplyCanonicalDeltas(t *testing.T) {
	tests := []struct {
		action     Action
		multiplier int
		wantTrust  int
		wantPoints int64
	}{
		{ActionOnTimeReturn, 100, 102, 10},
		{ActionEarlyReturn, 100, 103, 15},
		{ActionEarlyReturn, 150, 103, 22},
		{ActionEarlyReturn, 200, 103, 30},
		{ActionLateReturn, 200, 95, 0},
		{ActionVeryLateReturn, 100, 85, 0},
		{ActionDamagedItem, 100, 90, 0},
		{ActionLostItem, 100, 50, 0},
		{ActionCommunityContribution, 150, 105, 37},
		{ActionAdminRaise, 100, 120, 0},
		{ActionAdminLower, 100, 80, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			e, _ := newTestEngine(t)
			c, err := e.Apply(context.Background(), "u1", tt.action, tt.multiplier, "k", "")
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if c.TrustScore != tt.wantTrust {
				t.Errorf("trust = %d, want %d", c.TrustScore, tt.wantTrust)
			}
			if c.Points != tt.wantPoints {
				t.Errorf("points = %d, want %d", c.Points, tt.wantPoints)
			}
		})
	}
}

func TestApplyUnknownAction(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.Apply(context.Background(), "u1", Action("bogus"), 100, "", ""); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestTrustStaysClamped(t *testing.T) {
	actions := []Action{
		ActionEarlyReturn, ActionOnTimeReturn, ActionLateReturn, ActionVeryLateReturn,
		ActionDamagedItem, ActionLostItem, ActionCommunityContribution,
		ActionAdminRaise, ActionAdminLower,
	}
	rng := rand.New(rand.NewPCG(7, 11))

	for run := range 20 {
		e, _ := newTestEngine(t)
		for step := range 200 {
			a := actions[rng.IntN(len(actions))]
			c, err := e.Apply(context.Background(), "u1", a, 100, "", "")
			if err != nil {
				t.Fatalf("run %d step %d: %v", run, step, err)
			}
			if c.TrustScore < MinTrust || c.TrustScore > MaxTrust {
				t.Fatalf("run %d step %d: trust %d out of bounds", run, step, c.TrustScore)
			}
		}
	}
}

func TestLevelIsMonotonic(t *testing.T) {
	l := &recordingListener{}
	e, _ := newTestEngine(t, WithListener(l))
	ctx := context.Background()

	// 10 early returns at x2 = 300 points -> level 3.
	for range 10 {
		if _, err := e.Apply(ctx, "u1", ActionEarlyReturn, 200, "", ""); err != nil {
			t.Fatal(err)
		}
	}
	p, _ := e.Profile(ctx, "u1")
	if p.Level != 3 {
		t.Fatalf("level = %d, want 3", p.Level)
	}
	if len(l.levels) != 2 {
		t.Errorf("level-up notifications = %d, want 2", len(l.levels))
	}

	c, err := e.AdjustPoints(ctx, "u1", -1000, "", "correction")
	if err != nil {
		t.Fatal(err)
	}
	if c.Points != 0 {
		t.Errorf("points = %d, want 0 after large deduction", c.Points)
	}
	if c.Level != 3 {
		t.Errorf("level = %d, want 3 (never lowered)", c.Level)
	}
}

func TestLevelFor(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		points int64
		want   int
	}{
		{0, 1}, {99, 1}, {100, 2}, {299, 2}, {300, 3}, {699, 3}, {700, 4}, {1499, 4}, {1500, 5}, {1 << 40, 5},
	}
	for _, tt := range tests {
		if got := th.LevelFor(tt.points); got != tt.want {
			t.Errorf("LevelFor(%d) = %d, want %d", tt.points, got, tt.want)
		}
	}
}

func TestScalePointsFloors(t *testing.T) {
	if got := ScalePoints(15, 150); got != 22 {
		t.Errorf("ScalePoints(15,150) = %d, want 22", got)
	}
	if got := ScalePoints(25, 150); got != 37 {
		t.Errorf("ScalePoints(25,150) = %d, want 37", got)
	}
	if got := ScalePoints(-20, 200); got != -20 {
		t.Errorf("negative bases must not be scaled, got %d", got)
	}
}

func TestReturnActions(t *testing.T) {
	tests := []struct {
		cond reservation.Condition
		t    reservation.Timeliness
		want []Action
	}{
		{reservation.ConditionGood, reservation.TimelinessEarly, []Action{ActionEarlyReturn}},
		{reservation.ConditionGood, reservation.TimelinessOnTime, []Action{ActionOnTimeReturn}},
		{reservation.ConditionGood, reservation.TimelinessLate, []Action{ActionLateReturn}},
		{reservation.ConditionGood, reservation.TimelinessVeryLate, []Action{ActionVeryLateReturn}},
		{reservation.ConditionDamaged, reservation.TimelinessEarly, []Action{ActionDamagedItem}},
		{reservation.ConditionDamaged, reservation.TimelinessOnTime, []Action{ActionDamagedItem}},
		{reservation.ConditionDamaged, reservation.TimelinessLate, []Action{ActionLateReturn, ActionDamagedItem}},
		{reservation.ConditionDamaged, reservation.TimelinessVeryLate, []Action{ActionVeryLateReturn, ActionDamagedItem}},
	}
	for _, tt := range tests {
		got := ReturnActions(tt.cond, tt.t)
		if len(got) != len(tt.want) {
			t.Errorf("%s/%s: got %v, want %v", tt.cond, tt.t, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s/%s: got %v, want %v", tt.cond, tt.t, got, tt.want)
			}
		}
	}
}

func TestHandleReturnIsIdempotent(t *testing.T) {
	l := &recordingListener{}
	e, s := newTestEngine(t, WithListener(l))
	ctx := context.Background()

	evt := &event.Event{
		ID:            id.NewEventID(),
		Type:          event.TypeItemReturned,
		ReservationID: id.NewReservationID(),
		ItemID:        id.NewItemID(),
		UserID:        "u1",
		Condition:     reservation.ConditionDamaged,
		Timeliness:    reservation.TimelinessLate,
		WasLate:       true,
		MultiplierPct: 100,
		OccurredAt:    fixedNow,
	}

	changes, err := e.HandleReturn(ctx, evt)
	if err != nil {
		t.Fatalf("HandleReturn: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(changes))
	}

	again, err := e.HandleReturn(ctx, evt)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("redelivery applied %d changes, want 0", len(again))
	}

	p, _ := s.GetProfile(ctx, "u1")
	if p.TrustScore != 85 {
		t.Errorf("trust = %d, want 85", p.TrustScore)
	}
	if len(l.trust) != 2 {
		t.Errorf("trust notifications = %d, want 2", len(l.trust))
	}
}

func TestHandleReturnRejectsOtherTypes(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.HandleReturn(context.Background(), &event.Event{Type: "item.lost", UserID: "u1"})
	if err == nil {
		t.Fatal("expected error for unexpected event type")
	}
}

func TestEntriesAreJournaled(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Apply(ctx, "u1", ActionCommunityContribution, 100, "c1", "workshop"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Apply(ctx, "u1", ActionCommunityContribution, 100, "c1", "workshop"); err != nil {
		t.Fatal(err)
	}
	entries, err := e.Entries(ctx, "u1", ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Reason != "workshop" || entries[0].Points != 25 {
		t.Errorf("unexpected entry %+v", entries[0])
	}
}

// raiseOnceFails fails the first RaiseLevel call.
type raiseOnceFails struct {
	*fakeStore
	failed bool
}

func (s *raiseOnceFails) RaiseLevel(ctx context.Context, userID string, level int, at time.Time) (bool, error) {
	if !s.failed {
		s.failed = true
		return false, errors.New("write timeout")
	}
	return s.fakeStore.RaiseLevel(ctx, userID, level, at)
}

func TestReplayRecoversLevelAfterFailedRaise(t *testing.T) {
	l := &recordingListener{}
	s := &raiseOnceFails{fakeStore: newFakeStore()}
	e := NewEngine(s, WithClock(func() time.Time { return fixedNow }), WithListener(l))
	ctx := context.Background()
	if _, err := e.EnsureProfile(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	if _, err := e.AdjustPoints(ctx, "u1", 150, "k1", "bonus"); err == nil {
		t.Fatal("expected the level raise to fail")
	}
	p, _ := s.GetProfile(ctx, "u1")
	if p.Points != 150 || p.Level != 1 {
		t.Fatalf("points, level = %d, %d; want 150, 1", p.Points, p.Level)
	}

	c, err := e.AdjustPoints(ctx, "u1", 150, "k1", "bonus")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if c == nil || c.PreviousLevel != 1 || c.Level != 2 {
		t.Fatalf("replay change = %+v, want level 1 -> 2", c)
	}
	p, _ = s.GetProfile(ctx, "u1")
	if p.Points != 150 || p.Level != 2 {
		t.Errorf("points, level = %d, %d; want 150, 2", p.Points, p.Level)
	}
	if len(l.levels) != 1 {
		t.Errorf("level-up notifications = %d, want 1", len(l.levels))
	}

	c, err = e.AdjustPoints(ctx, "u1", 150, "k1", "bonus")
	if err != nil || c != nil {
		t.Errorf("second replay = %+v, %v; want nil, nil", c, err)
	}
}
