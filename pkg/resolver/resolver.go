// Package resolver recovers from stale analysis references. When loading a
// job by id/uuid yields a 404, the backend may embed a suggested replacement
// id in the error body ("Most recent analysis available: <id>"); the
// resolver follows that suggestion once, after a short anti-flicker delay,
// without ever surfacing an error for the redirected case. Anything less
// clean degrades to a hard not-found the caller resolves with the user.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/vanderheijden86/burnboard/pkg/api"
	"github.com/vanderheijden86/burnboard/pkg/model"
)

// redirectDelay is how long the redirecting state is shown before the
// follow-up load, so quick redirects don't flicker.
const redirectDelay = time.Second

var suggestionRe = regexp.MustCompile("(?i)most recent analysis available:\\s*`?([A-Za-z0-9][A-Za-z0-9-]*)`?")

// ParseSuggestion extracts a suggested replacement id from a 404 body.
func ParseSuggestion(body string) (string, bool) {
	m := suggestionRe.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// NotFoundError is the hard not-found state: no suggestion was available,
// the suggestion pointed back at the requested reference, or the follow-up
// load failed too. The caller offers the user an explicit choice (load the
// most recent known job or clear the reference).
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("analysis %q not found", e.Ref)
}

// Loader fetches a job by either identifier form.
type Loader func(ctx context.Context, ref string) (model.Job, error)

// Outcome is a successful load, possibly after one transparent redirect.
type Outcome struct {
	Job          model.Job
	Redirected   bool
	RedirectedTo string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSleep replaces the delay function (tests pass a no-op).
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(r *Resolver) {
		r.sleep = fn
	}
}

// WithOnRedirect registers a callback invoked when the redirecting state
// begins, before the delay. The UI uses it to show the distinct
// "redirecting" indicator instead of an error.
func WithOnRedirect(fn func(suggested string)) Option {
	return func(r *Resolver) {
		r.onRedirect = fn
	}
}

// Resolver loads jobs by reference with bounded auto-redirection.
type Resolver struct {
	load       Loader
	sleep      func(context.Context, time.Duration) error
	onRedirect func(string)
}

// New creates a resolver over the given loader.
func New(load Loader, opts ...Option) *Resolver {
	r := &Resolver{
		load:       load,
		sleep:      sleepCtx,
		onRedirect: func(string) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load fetches the job for ref. On a 404 with a usable suggestion it waits
// briefly and transparently retries against the suggested id; the caller is
// expected to update the shareable reference from Outcome.RedirectedTo. A
// suggestion equal to the reference just requested is treated as
// unresolvable rather than retried, which breaks redirect loops.
func (r *Resolver) Load(ctx context.Context, ref string) (Outcome, error) {
	job, err := r.load(ctx, ref)
	if err == nil {
		return Outcome{Job: job}, nil
	}

	var se *api.StatusError
	if !errors.As(err, &se) || !api.IsNotFound(err) {
		return Outcome{}, err
	}

	suggested, ok := ParseSuggestion(se.Body)
	if !ok || suggested == ref {
		return Outcome{}, &NotFoundError{Ref: ref}
	}

	r.onRedirect(suggested)
	if err := r.sleep(ctx, redirectDelay); err != nil {
		return Outcome{}, err
	}

	job, err = r.load(ctx, suggested)
	if err != nil {
		// The retry failed as well; surface the hard state for the original
		// reference rather than chasing further suggestions.
		return Outcome{}, &NotFoundError{Ref: ref}
	}
	return Outcome{Job: job, Redirected: true, RedirectedTo: suggested}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
