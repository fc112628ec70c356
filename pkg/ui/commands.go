package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/vanderheijden86/burnboard/pkg/metrics"
	"github.com/vanderheijden86/burnboard/pkg/model"
	"github.com/vanderheijden86/burnboard/pkg/resolver"
	"github.com/vanderheijden86/burnboard/pkg/timeline"
	"github.com/vanderheijden86/burnboard/pkg/watcher"
)

// progressTickInterval drives the progress bar animation and the spinner.
const progressTickInterval = 200 * time.Millisecond

// ProgressTickMsg advances the displayed progress by one animation step.
type ProgressTickMsg struct{}

// ReadyTimeoutMsg is sent after a short delay to ensure the UI becomes ready
// even if the terminal doesn't send WindowSizeMsg promptly (common in tmux,
// SSH, some terminal emulators).
type ReadyTimeoutMsg struct{}

// StoreChangedMsg is sent when another bb process writes the state store.
type StoreChangedMsg struct{}

// IntegrationsMsg carries a refreshed integration list.
type IntegrationsMsg struct {
	Integrations []model.Integration
	Err          error
}

// StatusesMsg carries refreshed per-platform connection statuses.
type StatusesMsg struct {
	Statuses map[model.Platform]model.PlatformStatus
	Err      error
}

// TrendsMsg carries the historical trend series shown on the home screen.
type TrendsMsg struct {
	Series []model.TimeSeriesPoint
	Err    error
}

// RedirectNoticeMsg is sent when a stale reference is being transparently
// redirected to the suggested replacement.
type RedirectNoticeMsg struct {
	To string
}

// AnalysisLoadedMsg carries a job resolved from a shared reference.
type AnalysisLoadedMsg struct {
	Outcome resolver.Outcome
}

// AnalysisLoadFailedMsg reports that a shared reference could not be
// resolved, even via suggestion.
type AnalysisLoadFailedMsg struct {
	Ref string
	Err error
}

// SubmitErrMsg reports a synchronous submission rejection.
type SubmitErrMsg struct {
	Err error
}

// ResultReadyMsg carries the pre-rendered result view content.
type ResultReadyMsg struct {
	JobID    string
	Summary  string
	Timeline []model.Event
}

// CopiedMsg reports a clipboard write for the transient status line.
type CopiedMsg struct {
	Ref string
	Err error
}

func progressTickCmd() tea.Cmd {
	return tea.Tick(progressTickInterval, func(time.Time) tea.Msg {
		return ProgressTickMsg{}
	})
}

// ReadyTimeoutCmd returns a command that sends ReadyTimeoutMsg after 100ms.
func ReadyTimeoutCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return ReadyTimeoutMsg{}
	})
}

// WatchStoreCmd waits for an external state-store write.
func WatchStoreCmd(w *watcher.Watcher) tea.Cmd {
	return func() tea.Msg {
		if w == nil {
			return nil
		}
		<-w.Changed()
		return StoreChangedMsg{}
	}
}

// waitForWorkerCmd waits for the next orchestrator message and forwards it
// into the event loop verbatim.
func (m *Model) waitForWorkerCmd() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.orch.Messages():
			return msg
		case <-m.orch.Done():
			return nil
		}
	}
}

// waitForUIEventCmd pumps the model-owned event channel (resolver redirect
// notices arrive here).
func (m *Model) waitForUIEventCmd() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m *Model) loadIntegrationsCmd() tea.Cmd {
	return func() tea.Msg {
		ints, err := m.refs.Integrations(context.Background())
		return IntegrationsMsg{Integrations: ints, Err: err}
	}
}

func (m *Model) loadStatusesCmd() tea.Cmd {
	return func() tea.Msg {
		st, err := m.refs.PlatformStatuses(context.Background())
		return StatusesMsg{Statuses: st, Err: err}
	}
}

func (m *Model) loadTrendsCmd(daysBack int) tea.Cmd {
	return func() tea.Msg {
		series, err := m.backend.HistoricalTrends(context.Background(), daysBack)
		return TrendsMsg{Series: series, Err: err}
	}
}

// loadRefCmd resolves a shared analysis reference, following at most one
// backend suggestion. The redirect notice arrives separately through the
// model's event channel so the UI can show the redirecting state during the
// resolver's delay.
func (m *Model) loadRefCmd(ref string) tea.Cmd {
	return func() tea.Msg {
		stop := metrics.Timer(metrics.RefFetch)
		out, err := m.res.Load(context.Background(), ref)
		stop()
		if err != nil {
			return AnalysisLoadFailedMsg{Ref: ref, Err: err}
		}
		return AnalysisLoadedMsg{Outcome: out}
	}
}

// submitCmd runs the blocking submission off the event loop. Success is
// reported asynchronously by the orchestrator's SubmittedMsg; only the
// synchronous rejection path produces a message here.
func (m *Model) submitCmd(req model.AnalysisRequest) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.orch.Submit(context.Background(), req); err != nil {
			return SubmitErrMsg{Err: err}
		}
		return nil
	}
}

// cancelCmd runs the blocking cancel (best-effort server-side delete) off
// the event loop; the CancelledMsg arrives through the worker channel.
func (m *Model) cancelCmd() tea.Cmd {
	return func() tea.Msg {
		m.orch.Cancel()
		return nil
	}
}

func (m *Model) deleteCmd(id string) tea.Cmd {
	return func() tea.Msg {
		_ = m.orch.Delete(context.Background(), id)
		return nil
	}
}

// prepareResultCmd renders the markdown summary and detects timeline events
// for a completed job. Runs off the event loop; the progress bar holds at 95
// until this completes.
func (m *Model) prepareResultCmd(jobID string, result model.Result, width int) tea.Cmd {
	return func() tea.Msg {
		summary := ""
		if result.Summary != "" {
			wrap := width - 4
			if wrap < 20 {
				wrap = 20
			}
			if r, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(wrap),
			); err == nil {
				if out, err := r.Render(result.Summary); err == nil {
					summary = out
				}
			}
			if summary == "" {
				// Fall back to the raw markdown rather than dropping the text.
				summary = result.Summary
			}
		}

		stop := metrics.Timer(metrics.DetectEvents)
		events := timeline.Detect(result.Series)
		stop()

		return ResultReadyMsg{JobID: jobID, Summary: summary, Timeline: events}
	}
}
