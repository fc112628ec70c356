// Package orchestrator owns the lifecycle of one in-flight analysis job:
// submission, polling to a terminal state, cancellation, and deletion.
//
// The state machine is idle → submitting → polling → terminal → idle, with
// cancelling reachable only from polling; only polling is re-entrant (after
// a transient transport failure). Results flow to the UI as bubbletea
// messages over a drop-oldest channel, and every poll outcome is applied
// under an active-generation check so a response for a since-cancelled job
// can never touch the successor's state.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/burnboard/pkg/api"
	"github.com/vanderheijden86/burnboard/pkg/metrics"
	"github.com/vanderheijden86/burnboard/pkg/model"
)

// State is the orchestrator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StatePolling
	StateCancelling
)

func (s State) String() string {
	switch s {
	case StateSubmitting:
		return "submitting"
	case StatePolling:
		return "polling"
	case StateCancelling:
		return "cancelling"
	default:
		return "idle"
	}
}

// Polling policy.
const (
	// DefaultPollInterval is the fixed poll cadence for a healthy backend.
	DefaultPollInterval = 2 * time.Second
	// backoffCapMultiple caps the retry delay at this multiple of the poll
	// interval (10s at the default cadence).
	backoffCapMultiple = 5
	// maxConsecutiveFailures is the retry budget; a single successful poll
	// resets it.
	maxConsecutiveFailures = 10
)

// Backend is the job API surface the orchestrator drives.
type Backend interface {
	CreateAnalysis(ctx context.Context, req model.AnalysisRequest) (string, error)
	Analysis(ctx context.Context, id string) (model.Job, error)
	DeleteAnalysis(ctx context.Context, id string) error
}

// References validates that submission preconditions hold; implemented by
// the integrations service.
type References interface {
	Selected(ctx context.Context) (model.Integration, error)
}

// Messages sent to the UI. Every message carries the job id it belongs to;
// the UI discards messages for jobs that are no longer active.

// SubmittedMsg reports a successful submission; polling has begun.
type SubmittedMsg struct {
	JobID string
}

// ProgressMsg carries one running poll response.
type ProgressMsg struct {
	JobID string
	Job   model.Job
}

// CompletedMsg carries a finished result. Partial results (a failed run
// that kept its raw collected data) arrive here too: they are a success
// variant, not an error.
type CompletedMsg struct {
	JobID  string
	Job    model.Job
	Result model.Result
}

// FailedMsg reports a terminal failure with no usable result.
type FailedMsg struct {
	JobID string
	Err   error
}

// CancelledMsg reports that Cancel reset the orchestrator to idle.
type CancelledMsg struct {
	JobID string
}

// DeletedMsg reports the explicit removal of a terminal job.
type DeletedMsg struct {
	JobID string
}

// Config configures an Orchestrator.
type Config struct {
	Backend      Backend
	Refs         References
	PollInterval time.Duration // default: 2s
	Buffer       int           // message channel buffer, default: 8
}

// Orchestrator drives one analysis job at a time.
type Orchestrator struct {
	backend      Backend
	refs         References
	pollInterval time.Duration

	mu         sync.Mutex
	state      State
	activeID   string
	generation uint64

	msgCh  chan tea.Msg
	ctx    context.Context
	cancel context.CancelFunc

	logLevel logLevel
}

// New creates an orchestrator in the idle state.
func New(cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 8
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		backend:      cfg.Backend,
		refs:         cfg.Refs,
		pollInterval: cfg.PollInterval,
		msgCh:        make(chan tea.Msg, cfg.Buffer),
		ctx:          ctx,
		cancel:       cancel,
		logLevel:     parseLogLevel(os.Getenv("BB_WORKER_LOG_LEVEL")),
	}
}

// Messages returns the channel of UI messages. The channel is owned by the
// orchestrator and never closed; use Done to stop waiting.
func (o *Orchestrator) Messages() <-chan tea.Msg {
	return o.msgCh
}

// Done is closed when the orchestrator shuts down.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.ctx.Done()
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ActiveJob returns the id of the job being polled, or "".
func (o *Orchestrator) ActiveJob() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeID
}

// Submit validates preconditions, creates a job, and starts polling it.
// Rejections surface synchronously as *SubmissionError; nothing about a
// rejected submission ever arrives through the message channel.
func (o *Orchestrator) Submit(ctx context.Context, req model.AnalysisRequest) (string, error) {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return "", fmt.Errorf("cannot submit while %s", o.state)
	}
	o.state = StateSubmitting
	o.mu.Unlock()

	fail := func(err error) (string, error) {
		o.mu.Lock()
		o.state = StateIdle
		o.mu.Unlock()
		return "", &SubmissionError{Cause: err}
	}

	// At least one integration must exist; Selected refreshes a cold or
	// stale cache before deciding.
	if req.IntegrationID == "" {
		sel, err := o.refs.Selected(ctx)
		if err != nil {
			return fail(err)
		}
		req.IntegrationID = sel.ID
	}

	stop := metrics.Timer(metrics.SubmitRequest)
	id, err := o.backend.CreateAnalysis(ctx, req)
	stop()
	if err != nil {
		return fail(err)
	}

	o.mu.Lock()
	o.state = StatePolling
	o.activeID = id
	o.generation++
	gen := o.generation
	o.mu.Unlock()

	o.logEvent(logInfo, "job_submitted", map[string]any{"job": id})
	o.send(SubmittedMsg{JobID: id})
	go o.pollLoop(id, gen)
	return id, nil
}

// Watch attaches to an already existing job (opened from a shared
// reference) and polls it the same way a fresh submission is polled. If the
// job is already terminal the terminal message is delivered immediately.
func (o *Orchestrator) Watch(job model.Job) error {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return fmt.Errorf("cannot watch while %s", o.state)
	}
	o.state = StatePolling
	o.activeID = job.ID
	o.generation++
	gen := o.generation
	o.mu.Unlock()

	if job.Status.Terminal() {
		o.applyTerminal(job.ID, gen, job)
		return nil
	}
	o.logEvent(logInfo, "job_attached", map[string]any{"job": job.ID})
	go o.pollLoop(job.ID, gen)
	return nil
}

// Cancel stops the active job, best-effort deleting it server-side, and
// resets to idle. Safe to call repeatedly; calling it while idle is a no-op.
// An in-flight poll response is discarded by the generation check.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.state == StateIdle {
		o.mu.Unlock()
		return
	}
	id := o.activeID
	o.state = StateCancelling
	o.generation++ // invalidates the poll loop and any in-flight response
	o.mu.Unlock()

	if id != "" {
		ctx, cancel := context.WithTimeout(o.ctx, 5*time.Second)
		if err := o.backend.DeleteAnalysis(ctx, id); err != nil && !api.IsNotFound(err) {
			// Best-effort: log, never surface.
			o.logEvent(logWarn, "cancel_delete_failed", map[string]any{
				"job": id, "error": err.Error(),
			})
		}
		cancel()
	}

	o.mu.Lock()
	o.state = StateIdle
	o.activeID = ""
	o.mu.Unlock()

	o.logEvent(logInfo, "job_cancelled", map[string]any{"job": id})
	o.send(CancelledMsg{JobID: id})
}

// Delete removes a terminal job. A deletion race (the job is already gone
// server-side) counts as success.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	if err := o.backend.DeleteAnalysis(ctx, id); err != nil && !api.IsNotFound(err) {
		return err
	}
	o.mu.Lock()
	if o.activeID == id {
		o.activeID = ""
		o.state = StateIdle
		o.generation++
	}
	o.mu.Unlock()
	o.send(DeletedMsg{JobID: id})
	return nil
}

// Shutdown stops all background activity. The orchestrator cannot be reused.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	o.generation++
	o.state = StateIdle
	o.activeID = ""
	o.mu.Unlock()
	o.cancel()
}

// backoffFor returns the delay before retry n (1-based): the interval grows
// linearly with the failure count and caps at five intervals, so the default
// 2s cadence backs off as min(2s·n, 10s).
func (o *Orchestrator) backoffFor(n int) time.Duration {
	d := time.Duration(n) * o.pollInterval
	if limit := backoffCapMultiple * o.pollInterval; d > limit {
		d = limit
	}
	return d
}

// current reports whether gen still identifies the active polling session.
func (o *Orchestrator) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation == gen
}

// pollLoop polls one job until a terminal state, transport exhaustion, or
// supersession. Each iteration sleeps first (the job was only just created),
// then polls, then applies the outcome — but only when this loop is still
// the active generation.
func (o *Orchestrator) pollLoop(id string, gen uint64) {
	retries := 0
	delay := o.pollInterval

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-time.After(delay):
		}
		if !o.current(gen) {
			return
		}

		stop := metrics.Timer(metrics.PollRequest)
		job, err := o.backend.Analysis(o.ctx, id)
		stop()

		if !o.current(gen) {
			// Cancelled (or superseded) while the request was in flight;
			// drop the response on the floor.
			return
		}

		switch {
		case err == nil:
			retries = 0
			delay = o.pollInterval
			if job.Status.Terminal() {
				o.applyTerminal(id, gen, job)
				return
			}
			o.send(ProgressMsg{JobID: id, Job: job})

		case api.IsNotFound(err):
			// Deleted out-of-band: stop immediately, no retry.
			metrics.PollVanished.Inc()
			o.finish(gen)
			o.logEvent(logWarn, "job_vanished", map[string]any{"job": id})
			o.send(FailedMsg{JobID: id, Err: &JobVanishedError{JobID: id}})
			return

		default:
			retries++
			metrics.PollRetries.Inc()
			if retries >= maxConsecutiveFailures {
				o.finish(gen)
				o.logEvent(logError, "polling_exhausted", map[string]any{
					"job": id, "attempts": retries,
				})
				o.send(FailedMsg{JobID: id, Err: &PollingExhaustedError{JobID: id, Attempts: retries}})
				return
			}
			delay = o.backoffFor(retries)
			o.logEvent(logDebug, "poll_retry", map[string]any{
				"job": id, "attempt": retries, "backoff_ms": delay.Milliseconds(),
			})
		}
	}
}

// applyTerminal translates a terminal job into its UI message. A failed job
// that kept a usable partial result is published as a completion: partial
// data is a success variant, not an error.
func (o *Orchestrator) applyTerminal(id string, gen uint64, job model.Job) {
	o.finish(gen)

	switch {
	case job.Status == model.StatusCompleted && job.Result != nil:
		o.logEvent(logInfo, "job_completed", map[string]any{"job": id})
		o.send(CompletedMsg{JobID: id, Job: job, Result: *job.Result})

	case job.Status == model.StatusCompleted:
		// Completed with no payload; treat as failure to avoid a blank
		// result view.
		o.send(FailedMsg{JobID: id, Err: &AnalysisFailedError{JobID: id, Message: "backend returned no result"}})

	case job.Result != nil:
		o.logEvent(logInfo, "job_partial", map[string]any{"job": id})
		result := *job.Result
		result.Partial = true
		o.send(CompletedMsg{JobID: id, Job: job, Result: result})

	default:
		o.logEvent(logWarn, "job_failed", map[string]any{"job": id, "error": job.Error})
		o.send(FailedMsg{JobID: id, Err: &AnalysisFailedError{JobID: id, Message: job.Error}})
	}
}

// finish returns the orchestrator to idle if gen is still active.
func (o *Orchestrator) finish(gen uint64) {
	o.mu.Lock()
	if o.generation == gen {
		o.state = StateIdle
	}
	o.mu.Unlock()
}

// send delivers a message without ever blocking the poll loop: when the
// channel is full the oldest message is dropped so the newest wins.
func (o *Orchestrator) send(msg tea.Msg) {
	for {
		select {
		case o.msgCh <- msg:
			return
		case <-o.ctx.Done():
			return
		default:
		}
		select {
		case <-o.msgCh:
		default:
		}
	}
}

// Structured event logging, enabled with BB_WORKER_LOG_LEVEL.

type logLevel int

const (
	logNone logLevel = iota
	logError
	logWarn
	logInfo
	logDebug
)

func parseLogLevel(raw string) logLevel {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "error":
		return logError
	case "warn", "warning":
		return logWarn
	case "info":
		return logInfo
	case "debug":
		return logDebug
	default:
		return logNone
	}
}

func (l logLevel) String() string {
	switch l {
	case logError:
		return "error"
	case logWarn:
		return "warn"
	case logInfo:
		return "info"
	case logDebug:
		return "debug"
	default:
		return "none"
	}
}

func (o *Orchestrator) logEvent(level logLevel, event string, fields map[string]any) {
	if o.logLevel == logNone || level > o.logLevel {
		return
	}
	payload := map[string]any{
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level.String(),
		"component": "orchestrator",
		"event":     event,
	}
	for k, v := range fields {
		payload[k] = v
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("orchestrator: failed to marshal log event %s: %v", event, err)
		return
	}
	log.Printf("%s", b)
}
