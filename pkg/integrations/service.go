// Package integrations maintains the reference data needed to submit
// analysis runs: the list of connected integrations and per-platform
// connection status. Reads go through the TTL cache in pkg/refcache and fall
// back to the backend; successful fetches are mirrored into the local state
// store so a restarted bb starts warm.
package integrations

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/burnboard/internal/statestore"
	"github.com/vanderheijden86/burnboard/pkg/model"
	"github.com/vanderheijden86/burnboard/pkg/refcache"
)

// Cache kinds.
const (
	kindIntegrations = "all_integrations"
	kindStatuses     = "platform_status"
)

// focusThrottle bounds how often regaining focus may force a refresh, so
// rapid tab switching cannot cause refetch storms.
const focusThrottle = 30 * time.Second

// ErrNoIntegrations is returned when submission is attempted with no
// connected integration, even after a refresh.
var ErrNoIntegrations = errors.New("no connected integrations")

// API is the backend surface this service consumes.
type API interface {
	Integrations(ctx context.Context, platform model.Platform) ([]model.Integration, error)
	PlatformStatus(ctx context.Context, platform model.Platform) (model.PlatformStatus, error)
}

// Statuses is the merged per-platform connection state.
type Statuses map[model.Platform]model.PlatformStatus

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock used for cache freshness and the focus
// throttle.
func WithClock(clock refcache.Clock) Option {
	return func(s *Service) {
		s.now = clock
		s.list = refcache.New(refcache.WithClock[[]model.Integration](clock))
		s.status = refcache.New(refcache.WithClock[Statuses](clock))
	}
}

// Service is the process-wide reference-data access point. Safe for
// concurrent use.
type Service struct {
	api   API
	store *statestore.Store
	now   refcache.Clock

	list   *refcache.Cache[[]model.Integration]
	status *refcache.Cache[Statuses]

	mu        sync.Mutex
	lastFocus time.Time
}

// NewService creates the service. store may be nil (no persistence, used by
// tests).
func NewService(api API, store *statestore.Store, opts ...Option) *Service {
	s := &Service{
		api:    api,
		store:  store,
		now:    time.Now,
		list:   refcache.New[[]model.Integration](),
		status: refcache.New[Statuses](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.restore()
	return s
}

// restore seeds the caches from the persisted payload. Entries older than
// the TTL are seeded anyway; the cache treats them as stale on first read.
func (s *Service) restore() {
	if s.store == nil {
		return
	}
	var ints []model.Integration
	if ok, _ := s.store.Get(statestore.KeyAllIntegrations, &ints); ok {
		fetchedAt := s.store.GetTime(statestore.KeyIntegrationsFetchedAt)
		if !fetchedAt.IsZero() {
			s.list.Seed(kindIntegrations, ints, fetchedAt)
		}
	}
}

// Integrations returns the connected integrations, refetching when the
// cached value is stale.
func (s *Service) Integrations(ctx context.Context) ([]model.Integration, error) {
	return s.list.Get(ctx, kindIntegrations, s.fetchIntegrations)
}

func (s *Service) fetchIntegrations(ctx context.Context) ([]model.Integration, error) {
	ints, err := s.api.Integrations(ctx, model.PlatformGitHub)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		_ = s.store.Set(statestore.KeyAllIntegrations, ints)
		_ = s.store.SetTime(statestore.KeyIntegrationsFetchedAt, s.now())
	}
	return ints, nil
}

// PlatformStatuses returns the merged connection status of all platforms.
// The platforms are queried in parallel and merged into a single cache
// write; a failing sub-fetch degrades to a disconnected default rather than
// aborting the write, so one flaky platform cannot corrupt the other's
// cached value.
func (s *Service) PlatformStatuses(ctx context.Context) (Statuses, error) {
	return s.status.Get(ctx, kindStatuses, func(ctx context.Context) (Statuses, error) {
		platforms := []model.Platform{model.PlatformGitHub, model.PlatformSlack}
		results := make([]model.PlatformStatus, len(platforms))

		g, gctx := errgroup.WithContext(ctx)
		for i, p := range platforms {
			g.Go(func() error {
				st, err := s.api.PlatformStatus(gctx, p)
				if err != nil {
					st = model.PlatformStatus{Platform: p, Connected: false}
				}
				results[i] = st
				return nil
			})
		}
		// Sub-fetch errors are absorbed above; Wait only reports ctx errors.
		if err := g.Wait(); err != nil {
			return nil, err
		}

		merged := make(Statuses, len(results))
		for _, st := range results {
			merged[st.Platform] = st
			if s.store != nil {
				_ = s.store.Set(statestore.PlatformKey(string(st.Platform)), st)
			}
		}
		return merged, nil
	})
}

// Invalidate forces the next read to refetch. This backs the explicit
// refresh triggers: opening the integration picker and external state-store
// changes.
func (s *Service) Invalidate() {
	s.list.Invalidate(kindIntegrations)
	s.status.Invalidate(kindStatuses)
}

// NoteFocus handles the window-regained-focus refresh trigger, throttled to
// at most once per 30 seconds. Returns true when a refresh was triggered.
func (s *Service) NoteFocus() bool {
	now := s.now()
	s.mu.Lock()
	if !s.lastFocus.IsZero() && now.Sub(s.lastFocus) < focusThrottle {
		s.mu.Unlock()
		return false
	}
	s.lastFocus = now
	s.mu.Unlock()

	s.Invalidate()
	return true
}

// Selected resolves the integration to submit against: the persisted
// selected organization when it still exists, otherwise the first connected
// integration. Triggers a refetch when the cache is cold or stale, and
// returns ErrNoIntegrations when none exists even after that.
func (s *Service) Selected(ctx context.Context) (model.Integration, error) {
	ints, err := s.Integrations(ctx)
	if err != nil {
		return model.Integration{}, err
	}
	if len(ints) == 0 {
		return model.Integration{}, ErrNoIntegrations
	}

	if s.store != nil {
		if id, ok := s.store.GetString(statestore.KeySelectedOrganization); ok {
			for _, in := range ints {
				if in.ID == id {
					return in, nil
				}
			}
		}
	}
	return ints[0], nil
}

// Select persists the chosen integration id for future submissions.
func (s *Service) Select(id string) {
	if s.store != nil {
		_ = s.store.SetString(statestore.KeySelectedOrganization, id)
	}
}
