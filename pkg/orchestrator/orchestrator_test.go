package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/burnboard/pkg/api"
	"github.com/vanderheijden86/burnboard/pkg/model"
)

// fakeBackend scripts poll responses for one job.
type fakeBackend struct {
	mu        sync.Mutex
	createID  string
	createErr error
	responses []pollResponse // consumed in order; last repeats
	polls     int
	deletes   []string
	deleteErr error
}

type pollResponse struct {
	job model.Job
	err error
}

func (f *fakeBackend) CreateAnalysis(_ context.Context, _ model.AnalysisRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.createID, nil
}

func (f *fakeBackend) Analysis(_ context.Context, _ string) (model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.polls++
	r := f.responses[i]
	return r.job, r.err
}

func (f *fakeBackend) DeleteAnalysis(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return f.deleteErr
}

func (f *fakeBackend) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// fakeRefs satisfies References.
type fakeRefs struct {
	integration model.Integration
	err         error
}

func (f *fakeRefs) Selected(context.Context) (model.Integration, error) {
	return f.integration, f.err
}

func running(id string, stage string) model.Job {
	return model.Job{ID: id, Status: model.StatusRunning, Stage: stage}
}

func completed(id string) model.Job {
	return model.Job{ID: id, Status: model.StatusCompleted, Result: &model.Result{OverallScore: 72}}
}

func newTestOrch(b Backend) *Orchestrator {
	return New(Config{
		Backend:      b,
		Refs:         &fakeRefs{integration: model.Integration{ID: "org-1"}},
		PollInterval: time.Millisecond,
	})
}

// nextMsg waits for the next message of type M, skipping others.
func nextMsg[M tea.Msg](t *testing.T, o *Orchestrator) M {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-o.Messages():
			if m, ok := msg.(M); ok {
				return m
			}
		case <-deadline:
			var zero M
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestSubmitHappyPath(t *testing.T) {
	b := &fakeBackend{
		createID: "job-1",
		responses: []pollResponse{
			{job: running("job-1", "fetching_github")},
			{job: completed("job-1")},
		},
	}
	o := newTestOrch(b)
	defer o.Shutdown()

	id, err := o.Submit(context.Background(), model.AnalysisRequest{TimeRangeDays: 30})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "job-1" {
		t.Fatalf("Submit id = %q, want job-1", id)
	}

	sub := nextMsg[SubmittedMsg](t, o)
	if sub.JobID != "job-1" {
		t.Errorf("SubmittedMsg.JobID = %q", sub.JobID)
	}
	prog := nextMsg[ProgressMsg](t, o)
	if prog.Job.Stage != "fetching_github" {
		t.Errorf("ProgressMsg stage = %q", prog.Job.Stage)
	}
	done := nextMsg[CompletedMsg](t, o)
	if done.Result.OverallScore != 72 {
		t.Errorf("CompletedMsg score = %v", done.Result.OverallScore)
	}
	if got := o.State(); got != StateIdle {
		t.Errorf("state after completion = %v, want idle", got)
	}
}

func TestSubmitRejectedWhileActive(t *testing.T) {
	b := &fakeBackend{
		createID:  "job-1",
		responses: []pollResponse{{job: running("job-1", "")}},
	}
	o := newTestOrch(b)
	defer o.Shutdown()

	if _, err := o.Submit(context.Background(), model.AnalysisRequest{}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := o.Submit(context.Background(), model.AnalysisRequest{}); err == nil {
		t.Fatalf("second Submit while polling must be rejected")
	}
}

func TestSubmitPreconditionFailure(t *testing.T) {
	b := &fakeBackend{createID: "job-1", responses: []pollResponse{{job: running("job-1", "")}}}
	o := New(Config{
		Backend:      b,
		Refs:         &fakeRefs{err: errors.New("no integrations")},
		PollInterval: time.Millisecond,
	})
	defer o.Shutdown()

	_, err := o.Submit(context.Background(), model.AnalysisRequest{})
	var se *SubmissionError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SubmissionError", err)
	}
	if got := o.State(); got != StateIdle {
		t.Errorf("state after rejection = %v, want idle", got)
	}

	// Nothing about the rejection arrives through the channel.
	select {
	case msg := <-o.Messages():
		t.Errorf("unexpected message after rejected submission: %#v", msg)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestExplicitIntegrationSkipsSelected(t *testing.T) {
	b := &fakeBackend{createID: "job-1", responses: []pollResponse{{job: completed("job-1")}}}
	o := New(Config{
		Backend:      b,
		Refs:         &fakeRefs{err: errors.New("must not be called")},
		PollInterval: time.Millisecond,
	})
	defer o.Shutdown()

	if _, err := o.Submit(context.Background(), model.AnalysisRequest{IntegrationID: "org-9"}); err != nil {
		t.Fatalf("Submit with explicit integration: %v", err)
	}
	nextMsg[CompletedMsg](t, o)
}

func TestTransientFailuresRecover(t *testing.T) {
	b := &fakeBackend{
		createID: "job-1",
		responses: []pollResponse{
			{err: &api.TransportError{Cause: errors.New("conn reset")}},
			{err: &api.TransportError{Cause: errors.New("conn reset")}},
			{job: completed("job-1")},
		},
	}
	o := newTestOrch(b)
	defer o.Shutdown()

	if _, err := o.Submit(context.Background(), model.AnalysisRequest{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := nextMsg[CompletedMsg](t, o)
	if done.JobID != "job-1" {
		t.Errorf("CompletedMsg.JobID = %q", done.JobID)
	}
}

func TestPollingExhaustion(t *testing.T) {
	b := &fakeBackend{
		createID:  "job-1",
		responses: []pollResponse{{err: &api.TransportError{Cause: errors.New("down")}}},
	}
	o := newTestOrch(b)
	defer o.Shutdown()

	if _, err := o.Submit(context.Background(), model.AnalysisRequest{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	failed := nextMsg[FailedMsg](t, o)
	var ex *PollingExhaustedError
	if !errors.As(failed.Err, &ex) {
		t.Fatalf("err = %v, want *PollingExhaustedError", failed.Err)
	}
	if ex.Attempts != maxConsecutiveFailures {
		t.Errorf("attempts = %d, want %d", ex.Attempts, maxConsecutiveFailures)
	}
	if got := o.State(); got != StateIdle {
		t.Errorf("state after exhaustion = %v, want idle", got)
	}
}

func TestJobVanishedStopsImmediately(t *testing.T) {
	b := &fakeBackend{
		createID:  "job-1",
		responses: []pollResponse{{err: &api.StatusError{Code: http.StatusNotFound, Body: "gone"}}},
	}
	o := newTestOrch(b)
	defer o.Shutdown()

	if _, err := o.Submit(context.Background(), model.AnalysisRequest{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	failed := nextMsg[FailedMsg](t, o)
	var v *JobVanishedError
	if !errors.As(failed.Err, &v) {
		t.Fatalf("err = %v, want *JobVanishedError", failed.Err)
	}
	if b.pollCount() != 1 {
		t.Errorf("polls = %d, want 1 (404 must not retry)", b.pollCount())
	}
}

func TestFailedWithPartialResultCompletes(t *testing.T) {
	job := model.Job{
		ID:     "job-1",
		Status: model.StatusFailed,
		Error:  "scoring crashed",
		Result: &model.Result{OverallScore: 0, TotalMembers: 5},
	}
	b := &fakeBackend{createID: "job-1", responses: []pollResponse{{job: job}}}
	o := newTestOrch(b)
	defer o.Shutdown()

	if _, err := o.Submit(context.Background(), model.AnalysisRequest{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := nextMsg[CompletedMsg](t, o)
	if !done.Result.Partial {
		t.Errorf("partial-result completion must set Result.Partial")
	}
}

func TestFailedWithoutResult(t *testing.T) {
	job := model.Job{ID: "job-1", Status: model.StatusFailed, Error: "boom"}
	b := &fakeBackend{createID: "job-1", responses: []pollResponse{{job: job}}}
	o := newTestOrch(b)
	defer o.Shutdown()

	if _, err := o.Submit(context.Background(), model.AnalysisRequest{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	failed := nextMsg[FailedMsg](t, o)
	var af *AnalysisFailedError
	if !errors.As(failed.Err, &af) || af.Message != "boom" {
		t.Errorf("err = %v, want AnalysisFailedError{boom}", failed.Err)
	}
}

func TestCancelResetsToIdleAndDeletes(t *testing.T) {
	b := &fakeBackend{createID: "job-1", responses: []pollResponse{{job: running("job-1", "")}}}
	o := newTestOrch(b)
	defer o.Shutdown()

	if _, err := o.Submit(context.Background(), model.AnalysisRequest{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	o.Cancel()

	cancelled := nextMsg[CancelledMsg](t, o)
	if cancelled.JobID != "job-1" {
		t.Errorf("CancelledMsg.JobID = %q", cancelled.JobID)
	}
	if got := o.State(); got != StateIdle {
		t.Errorf("state after cancel = %v, want idle", got)
	}

	b.mu.Lock()
	deletes := len(b.deletes)
	b.mu.Unlock()
	if deletes != 1 {
		t.Errorf("deletes = %d, want best-effort delete", deletes)
	}
}

func TestCancelIdempotent(t *testing.T) {
	b := &fakeBackend{createID: "job-1", responses: []pollResponse{{job: running("job-1", "")}}}
	o := newTestOrch(b)
	defer o.Shutdown()

	o.Cancel() // idle: no-op
	if got := o.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}

	if _, err := o.Submit(context.Background(), model.AnalysisRequest{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	o.Cancel()
	o.Cancel()
	if got := o.State(); got != StateIdle {
		t.Errorf("state = %v after repeated cancel, want idle", got)
	}
}

func TestCancelDeleteFailureStillIdles(t *testing.T) {
	b := &fakeBackend{
		createID:  "job-1",
		responses: []pollResponse{{job: running("job-1", "")}},
		deleteErr: errors.New("delete rejected"),
	}
	o := newTestOrch(b)
	defer o.Shutdown()

	if _, err := o.Submit(context.Background(), model.AnalysisRequest{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	o.Cancel()
	if got := o.State(); got != StateIdle {
		t.Errorf("state = %v, want idle even when the delete fails", got)
	}
	// And a fresh submission is possible immediately.
	if _, err := o.Submit(context.Background(), model.AnalysisRequest{}); err != nil {
		t.Errorf("Submit after failed-delete cancel: %v", err)
	}
}

func TestDeleteOn404CountsAsSuccess(t *testing.T) {
	b := &fakeBackend{
		createID:  "job-1",
		responses: []pollResponse{{job: running("job-1", "")}},
		deleteErr: &api.StatusError{Code: http.StatusNotFound, Body: "gone"},
	}
	o := newTestOrch(b)
	defer o.Shutdown()

	if err := o.Delete(context.Background(), "job-9"); err != nil {
		t.Errorf("Delete racing a server-side removal = %v, want nil", err)
	}
	deleted := nextMsg[DeletedMsg](t, o)
	if deleted.JobID != "job-9" {
		t.Errorf("DeletedMsg.JobID = %q", deleted.JobID)
	}
}

func TestWatchTerminalJobDeliversImmediately(t *testing.T) {
	b := &fakeBackend{responses: []pollResponse{{job: completed("job-1")}}}
	o := newTestOrch(b)
	defer o.Shutdown()

	if err := o.Watch(completed("job-1")); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	done := nextMsg[CompletedMsg](t, o)
	if done.JobID != "job-1" {
		t.Errorf("CompletedMsg.JobID = %q", done.JobID)
	}
	if b.pollCount() != 0 {
		t.Errorf("polls = %d, want 0 for an already terminal job", b.pollCount())
	}
}

func TestWatchRunningJobPolls(t *testing.T) {
	b := &fakeBackend{
		responses: []pollResponse{
			{job: running("job-1", "analyzing_activity")},
			{job: completed("job-1")},
		},
	}
	o := newTestOrch(b)
	defer o.Shutdown()

	if err := o.Watch(running("job-1", "")); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	nextMsg[ProgressMsg](t, o)
	nextMsg[CompletedMsg](t, o)
}

func TestBackoffFor(t *testing.T) {
	o := New(Config{Backend: &fakeBackend{}, Refs: &fakeRefs{}})
	defer o.Shutdown()

	tests := []struct {
		n    int
		want time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{9, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := o.backoffFor(tt.n); got != tt.want {
			t.Errorf("backoffFor(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateIdle:       "idle",
		StateSubmitting: "submitting",
		StatePolling:    "polling",
		StateCancelling: "cancelling",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

// gatedBackend holds the poll for one job in flight until released, so a
// test can cancel and resubmit while that response is still outstanding.
type gatedBackend struct {
	mu      sync.Mutex
	ids     []string // CreateAnalysis returns these in order
	created int
	gatedID string
	entered chan struct{}
	release chan struct{}
	deletes []string
}

func (b *gatedBackend) CreateAnalysis(_ context.Context, _ model.AnalysisRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.created >= len(b.ids) {
		return "", errors.New("unexpected create")
	}
	id := b.ids[b.created]
	b.created++
	return id, nil
}

func (b *gatedBackend) Analysis(_ context.Context, id string) (model.Job, error) {
	if id == b.gatedID {
		b.entered <- struct{}{}
		<-b.release
	}
	return completed(id), nil
}

func (b *gatedBackend) DeleteAnalysis(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, id)
	return nil
}

func TestStalePollResponseDiscardedAfterResubmit(t *testing.T) {
	b := &gatedBackend{
		ids:     []string{"job-a", "job-b"},
		gatedID: "job-a",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	o := newTestOrch(b)
	defer o.Shutdown()

	if _, err := o.Submit(context.Background(), model.AnalysisRequest{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub := nextMsg[SubmittedMsg](t, o); sub.JobID != "job-a" {
		t.Fatalf("SubmittedMsg.JobID = %q, want job-a", sub.JobID)
	}

	// Wait until job-a's poll request is in flight, then cancel and start
	// job-b while that response is still outstanding.
	select {
	case <-b.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("poll for job-a never started")
	}
	o.Cancel()
	if _, err := o.Submit(context.Background(), model.AnalysisRequest{}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	// Release job-a's terminal response; it belongs to a dead generation
	// and must be dropped on the floor.
	close(b.release)

	if done := nextMsg[CompletedMsg](t, o); done.JobID != "job-b" {
		t.Fatalf("CompletedMsg.JobID = %q, want job-b", done.JobID)
	}

	// Nothing about job-a may surface after the cancel.
	quiet := time.After(150 * time.Millisecond)
	for {
		select {
		case msg := <-o.Messages():
			switch msg := msg.(type) {
			case ProgressMsg:
				if msg.JobID == "job-a" {
					t.Fatalf("stale ProgressMsg published for job-a")
				}
			case CompletedMsg:
				if msg.JobID == "job-a" {
					t.Fatalf("stale CompletedMsg published for job-a")
				}
			case FailedMsg:
				if msg.JobID == "job-a" {
					t.Fatalf("stale FailedMsg published for job-a")
				}
			}
		case <-quiet:
			return
		}
	}
}
