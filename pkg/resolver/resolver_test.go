package resolver

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/vanderheijden86/burnboard/pkg/api"
	"github.com/vanderheijden86/burnboard/pkg/model"
)

func noSleep(context.Context, time.Duration) error { return nil }

func notFound(body string) error {
	return &api.StatusError{Code: http.StatusNotFound, Body: body}
}

func TestParseSuggestion(t *testing.T) {
	tests := []struct {
		body string
		want string
		ok   bool
	}{
		{"Most recent analysis available: abc-123", "abc-123", true},
		{"most recent analysis available:   xyz", "xyz", true},
		{"Error 404. Most recent analysis available: `q1w2e3`.", "q1w2e3", true},
		{"no such analysis", "", false},
		{"", "", false},
		{"Most recent analysis available:", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseSuggestion(tt.body)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseSuggestion(%q) = (%q, %v), want (%q, %v)", tt.body, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLoadSuccessPassthrough(t *testing.T) {
	r := New(func(_ context.Context, ref string) (model.Job, error) {
		return model.Job{ID: ref, Status: model.StatusCompleted}, nil
	}, WithSleep(noSleep))

	out, err := r.Load(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Redirected || out.Job.ID != "job-1" {
		t.Errorf("Load = %+v, want direct hit", out)
	}
}

func TestLoadFollowsSuggestionOnce(t *testing.T) {
	calls := []string{}
	r := New(func(_ context.Context, ref string) (model.Job, error) {
		calls = append(calls, ref)
		if ref == "stale" {
			return model.Job{}, notFound("Most recent analysis available: fresh")
		}
		return model.Job{ID: ref, Status: model.StatusCompleted}, nil
	}, WithSleep(noSleep))

	var notices []string
	r.onRedirect = func(s string) { notices = append(notices, s) }

	out, err := r.Load(context.Background(), "stale")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !out.Redirected || out.RedirectedTo != "fresh" || out.Job.ID != "fresh" {
		t.Errorf("Load = %+v, want redirect to fresh", out)
	}
	if len(calls) != 2 {
		t.Errorf("loader called %d times, want 2", len(calls))
	}
	if len(notices) != 1 || notices[0] != "fresh" {
		t.Errorf("redirect notices = %v, want [fresh]", notices)
	}
}

func TestLoadNoSuggestionIsHardNotFound(t *testing.T) {
	r := New(func(context.Context, string) (model.Job, error) {
		return model.Job{}, notFound("gone")
	}, WithSleep(noSleep))

	_, err := r.Load(context.Background(), "ref")
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Ref != "ref" {
		t.Fatalf("err = %v, want NotFoundError{ref}", err)
	}
}

func TestLoadSelfSuggestionBreaksLoop(t *testing.T) {
	calls := 0
	r := New(func(context.Context, string) (model.Job, error) {
		calls++
		return model.Job{}, notFound("Most recent analysis available: same")
	}, WithSleep(noSleep))

	_, err := r.Load(context.Background(), "same")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
	if calls != 1 {
		t.Errorf("loader called %d times for a self-suggestion, want 1", calls)
	}
}

func TestLoadRetryFailureReportsOriginalRef(t *testing.T) {
	r := New(func(_ context.Context, ref string) (model.Job, error) {
		if ref == "stale" {
			return model.Job{}, notFound("Most recent analysis available: also-gone")
		}
		return model.Job{}, notFound("gone")
	}, WithSleep(noSleep))

	_, err := r.Load(context.Background(), "stale")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
	if nf.Ref != "stale" {
		t.Errorf("NotFoundError.Ref = %q, want the original reference", nf.Ref)
	}
}

func TestLoadNon404Passthrough(t *testing.T) {
	boom := &api.StatusError{Code: http.StatusInternalServerError, Body: "oops"}
	r := New(func(context.Context, string) (model.Job, error) {
		return model.Job{}, boom
	}, WithSleep(noSleep))

	_, err := r.Load(context.Background(), "ref")
	var se *api.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Errorf("err = %v, want the raw 500 passed through", err)
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		t.Errorf("a 500 must not be translated into not-found")
	}
}

func TestLoadSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(func(_ context.Context, ref string) (model.Job, error) {
		if ref == "stale" {
			return model.Job{}, notFound("Most recent analysis available: fresh")
		}
		t.Fatalf("retry must not run after cancellation")
		return model.Job{}, nil
	}, WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := r.Load(ctx, "stale")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
