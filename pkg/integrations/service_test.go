package integrations

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vanderheijden86/burnboard/internal/statestore"
	"github.com/vanderheijden86/burnboard/pkg/model"
)

type fakeAPI struct {
	mu          sync.Mutex
	ints        []model.Integration
	intsErr     error
	intsCalls   int
	statuses    map[model.Platform]model.PlatformStatus
	statusErrs  map[model.Platform]error
	statusCalls int
}

func (f *fakeAPI) Integrations(ctx context.Context, platform model.Platform) ([]model.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intsCalls++
	return f.ints, f.intsErr
}

func (f *fakeAPI) PlatformStatus(ctx context.Context, platform model.Platform) (model.PlatformStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if err := f.statusErrs[platform]; err != nil {
		return model.PlatformStatus{}, err
	}
	return f.statuses[platform], nil
}

func (f *fakeAPI) calls() (ints, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intsCalls, f.statusCalls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testStore(t *testing.T) *statestore.Store {
	t.Helper()
	s, err := statestore.Open(filepath.Join(t.TempDir(), "bb.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func orgs(ids ...string) []model.Integration {
	out := make([]model.Integration, len(ids))
	for i, id := range ids {
		out[i] = model.Integration{ID: id, Name: "org " + id, Platform: model.PlatformGitHub}
	}
	return out
}

func TestIntegrationsCachedWithinTTL(t *testing.T) {
	api := &fakeAPI{ints: orgs("a", "b")}
	clock := newFakeClock()
	svc := NewService(api, nil, WithClock(clock.Now))

	for range 3 {
		ints, err := svc.Integrations(context.Background())
		if err != nil {
			t.Fatalf("Integrations: %v", err)
		}
		if len(ints) != 2 {
			t.Fatalf("got %d integrations", len(ints))
		}
	}
	if n, _ := api.calls(); n != 1 {
		t.Errorf("backend called %d times, want 1", n)
	}

	clock.Advance(5 * time.Minute)
	if _, err := svc.Integrations(context.Background()); err != nil {
		t.Fatalf("Integrations after TTL: %v", err)
	}
	if n, _ := api.calls(); n != 2 {
		t.Errorf("stale read should refetch, got %d calls", n)
	}
}

func TestPlatformStatusesMerged(t *testing.T) {
	api := &fakeAPI{statuses: map[model.Platform]model.PlatformStatus{
		model.PlatformGitHub: {Platform: model.PlatformGitHub, Connected: true, Account: "acme"},
		model.PlatformSlack:  {Platform: model.PlatformSlack, Connected: true, Account: "acme-hq"},
	}}
	svc := NewService(api, nil, WithClock(newFakeClock().Now))

	st, err := svc.PlatformStatuses(context.Background())
	if err != nil {
		t.Fatalf("PlatformStatuses: %v", err)
	}
	if !st[model.PlatformGitHub].Connected || !st[model.PlatformSlack].Connected {
		t.Errorf("statuses = %+v", st)
	}
}

func TestPlatformStatusFailureDegrades(t *testing.T) {
	api := &fakeAPI{
		statuses: map[model.Platform]model.PlatformStatus{
			model.PlatformGitHub: {Platform: model.PlatformGitHub, Connected: true, Account: "acme"},
		},
		statusErrs: map[model.Platform]error{
			model.PlatformSlack: errors.New("slack is down"),
		},
	}
	svc := NewService(api, nil, WithClock(newFakeClock().Now))

	st, err := svc.PlatformStatuses(context.Background())
	if err != nil {
		t.Fatalf("one failing platform must not fail the merge: %v", err)
	}
	if !st[model.PlatformGitHub].Connected {
		t.Errorf("github status lost: %+v", st)
	}
	slack, ok := st[model.PlatformSlack]
	if !ok || slack.Connected {
		t.Errorf("failing platform should default to disconnected, got %+v", slack)
	}
}

func TestNoteFocusThrottle(t *testing.T) {
	api := &fakeAPI{ints: orgs("a")}
	clock := newFakeClock()
	svc := NewService(api, nil, WithClock(clock.Now))

	if !svc.NoteFocus() {
		t.Fatalf("first focus should refresh")
	}
	clock.Advance(10 * time.Second)
	if svc.NoteFocus() {
		t.Errorf("focus within 30s must be throttled")
	}
	clock.Advance(25 * time.Second)
	if !svc.NoteFocus() {
		t.Errorf("focus after the throttle window should refresh")
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	api := &fakeAPI{ints: orgs("a")}
	svc := NewService(api, nil, WithClock(newFakeClock().Now))

	if _, err := svc.Integrations(context.Background()); err != nil {
		t.Fatalf("Integrations: %v", err)
	}
	svc.Invalidate()
	if _, err := svc.Integrations(context.Background()); err != nil {
		t.Fatalf("Integrations: %v", err)
	}
	if n, _ := api.calls(); n != 2 {
		t.Errorf("got %d calls, want 2", n)
	}
}

func TestSelectedNoIntegrations(t *testing.T) {
	api := &fakeAPI{}
	svc := NewService(api, nil, WithClock(newFakeClock().Now))

	_, err := svc.Selected(context.Background())
	if !errors.Is(err, ErrNoIntegrations) {
		t.Fatalf("err = %v, want ErrNoIntegrations", err)
	}
}

func TestSelectedPrefersPersistedOrg(t *testing.T) {
	api := &fakeAPI{ints: orgs("a", "b", "c")}
	store := testStore(t)
	svc := NewService(api, store, WithClock(newFakeClock().Now))

	got, err := svc.Selected(context.Background())
	if err != nil {
		t.Fatalf("Selected: %v", err)
	}
	if got.ID != "a" {
		t.Errorf("no persisted choice should fall back to first, got %q", got.ID)
	}

	svc.Select("b")
	got, err = svc.Selected(context.Background())
	if err != nil {
		t.Fatalf("Selected: %v", err)
	}
	if got.ID != "b" {
		t.Errorf("got %q, want persisted b", got.ID)
	}
}

func TestSelectedIgnoresVanishedOrg(t *testing.T) {
	api := &fakeAPI{ints: orgs("a", "b")}
	store := testStore(t)
	svc := NewService(api, store, WithClock(newFakeClock().Now))

	svc.Select("gone")
	got, err := svc.Selected(context.Background())
	if err != nil {
		t.Fatalf("Selected: %v", err)
	}
	if got.ID != "a" {
		t.Errorf("vanished persisted org should fall back to first, got %q", got.ID)
	}
}

func TestRestoreSeedsFromStore(t *testing.T) {
	store := testStore(t)
	clock := newFakeClock()
	if err := store.Set(statestore.KeyAllIntegrations, orgs("a")); err != nil {
		t.Fatalf("seeding store: %v", err)
	}
	if err := store.SetTime(statestore.KeyIntegrationsFetchedAt, clock.Now()); err != nil {
		t.Fatalf("seeding timestamp: %v", err)
	}

	api := &fakeAPI{ints: orgs("a", "b")}
	svc := NewService(api, store, WithClock(clock.Now))

	ints, err := svc.Integrations(context.Background())
	if err != nil {
		t.Fatalf("Integrations: %v", err)
	}
	if len(ints) != 1 || ints[0].ID != "a" {
		t.Errorf("fresh seeded value should be served without a fetch, got %+v", ints)
	}
	if n, _ := api.calls(); n != 0 {
		t.Errorf("backend called %d times for a warm cache", n)
	}

	// Past the TTL the seeded value is stale and the backend wins.
	clock.Advance(6 * time.Minute)
	ints, err = svc.Integrations(context.Background())
	if err != nil {
		t.Fatalf("Integrations: %v", err)
	}
	if len(ints) != 2 {
		t.Errorf("stale seed should refetch, got %+v", ints)
	}
}
