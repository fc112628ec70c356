package ui

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
	prog "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/burnboard/internal/statestore"
	"github.com/vanderheijden86/burnboard/pkg/api"
	"github.com/vanderheijden86/burnboard/pkg/config"
	"github.com/vanderheijden86/burnboard/pkg/debug"
	"github.com/vanderheijden86/burnboard/pkg/integrations"
	"github.com/vanderheijden86/burnboard/pkg/model"
	"github.com/vanderheijden86/burnboard/pkg/orchestrator"
	"github.com/vanderheijden86/burnboard/pkg/progress"
	"github.com/vanderheijden86/burnboard/pkg/resolver"
	"github.com/vanderheijden86/burnboard/pkg/watcher"
)

// screen is the current top-level view.
type screen int

const (
	screenHome screen = iota
	screenForm
	screenProgress
	screenResult
	screenError
	screenLoading     // resolving a shared reference
	screenRedirecting // following a stale-reference suggestion
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Options wires the model to its collaborators.
type Options struct {
	Config       config.Config
	Backend      *api.Client
	Orchestrator *orchestrator.Orchestrator
	Integrations *integrations.Service
	Store        *statestore.Store
	Watcher      *watcher.Watcher

	// InitialRef, when set, is resolved and attached to on startup
	// (bb --analysis <ref>).
	InitialRef string
}

// Model is the root bubbletea model for the dashboard. All mutable UI state
// lives here and is touched only from the event loop; blocking work runs in
// commands and comes back as messages.
type Model struct {
	theme Theme
	cfg   config.Config

	backend *api.Client
	orch    *orchestrator.Orchestrator
	refs    *integrations.Service
	store   *statestore.Store
	fw      *watcher.Watcher
	res     *resolver.Resolver

	// events carries UI-internal async notices (resolver redirects).
	events chan tea.Msg

	width, height int
	ready         bool
	screen        screen
	spinnerIdx    int
	ticking       bool
	statusLine    string

	// reference data
	integrations []model.Integration
	statuses     integrations.Statuses
	trends       []model.TimeSeriesPoint

	// submission form
	form     *huh.Form
	formVals *formValues

	// integration picker overlay
	picker     IntegrationPicker
	pickerOpen bool

	// active job
	jobID      string
	est        *progress.Estimator
	bar        prog.Model
	stageLabel string

	// completion hold: the result arrived but the bar has not reached 100
	pendingJob    *model.Job
	pendingResult *model.Result

	// result view
	resultJob     model.Job
	result        *model.Result
	resultSummary string
	timeline      []model.Event
	vp            viewport.Model

	// error view
	errText  string
	staleRef string // set for the hard not-found state

	redirectTo string
	loadingRef string
	initialRef string
}

// New creates the root model.
func New(opts Options) *Model {
	m := &Model{
		theme:      DefaultTheme(lipgloss.DefaultRenderer()),
		cfg:        opts.Config,
		backend:    opts.Backend,
		orch:       opts.Orchestrator,
		refs:       opts.Integrations,
		store:      opts.Store,
		fw:         opts.Watcher,
		events:     make(chan tea.Msg, 4),
		bar:        prog.New(prog.WithDefaultGradient()),
		initialRef: opts.InitialRef,
	}
	m.res = resolver.New(opts.Backend.AnalysisByRef, resolver.WithOnRedirect(func(suggested string) {
		m.events <- RedirectNoticeMsg{To: suggested}
	}))
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		ReadyTimeoutCmd(),
		m.waitForWorkerCmd(),
		m.waitForUIEventCmd(),
		m.loadIntegrationsCmd(),
		m.loadStatusesCmd(),
		m.loadTrendsCmd(m.cfg.Defaults.TimeRangeDays),
	}
	if m.fw != nil {
		cmds = append(cmds, WatchStoreCmd(m.fw))
	}
	if m.initialRef != "" {
		m.screen = screenLoading
		m.loadingRef = m.initialRef
		cmds = append(cmds, m.loadRefCmd(m.initialRef), m.ensureTick())
	}
	return tea.Batch(cmds...)
}

// ensureTick arms the animation ticker unless it is already running.
func (m *Model) ensureTick() tea.Cmd {
	if m.ticking {
		return nil
	}
	m.ticking = true
	return progressTickCmd()
}

// needsTick reports whether the current screen has anything animated.
func (m *Model) needsTick() bool {
	switch m.screen {
	case screenProgress, screenLoading, screenRedirecting:
		return true
	}
	return false
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		barW := msg.Width - 10
		if barW > 60 {
			barW = 60
		}
		if barW < 10 {
			barW = 10
		}
		m.bar.Width = barW
		m.vp.Width = msg.Width
		m.vp.Height = max(3, msg.Height-headerHeight-footerHeight)
		m.picker.SetSize(msg.Width - 4)
		if m.screen == screenResult {
			m.vp.SetContent(m.resultContent())
		}
		return m, nil

	case ReadyTimeoutMsg:
		m.ready = true
		return m, nil

	case tea.FocusMsg:
		// Regaining focus may refresh reference data; the service throttles
		// this to once per 30s.
		if m.refs.NoteFocus() {
			debug.Log("focus refresh triggered")
			return m, tea.Batch(m.loadIntegrationsCmd(), m.loadStatusesCmd())
		}
		return m, nil

	case StoreChangedMsg:
		// Another bb process wrote the state store (new token, org switch).
		m.refs.Invalidate()
		return m, tea.Batch(WatchStoreCmd(m.fw), m.loadIntegrationsCmd(), m.loadStatusesCmd())

	case ProgressTickMsg:
		return m.handleTick()

	case IntegrationsMsg:
		if msg.Err == nil {
			m.integrations = msg.Integrations
			if m.pickerOpen {
				m.picker.SetEntries(msg.Integrations)
			}
		}
		return m, nil

	case StatusesMsg:
		if msg.Err == nil {
			m.statuses = msg.Statuses
		}
		return m, nil

	case TrendsMsg:
		if msg.Err == nil {
			m.trends = msg.Series
		}
		return m, nil

	case SelectIntegrationMsg:
		m.refs.Select(msg.Integration.ID)
		m.pickerOpen = false
		m.statusLine = fmt.Sprintf("Selected %s", msg.Integration.Name)
		return m, nil

	case ClosePickerMsg:
		m.pickerOpen = false
		return m, nil

	case SubmitErrMsg:
		m.showError(msg.Err)
		return m, nil

	case RedirectNoticeMsg:
		m.screen = screenRedirecting
		m.redirectTo = msg.To
		return m, tea.Batch(m.waitForUIEventCmd(), m.ensureTick())

	case AnalysisLoadedMsg:
		return m.handleAnalysisLoaded(msg)

	case AnalysisLoadFailedMsg:
		var nf *resolver.NotFoundError
		if errors.As(msg.Err, &nf) {
			m.screen = screenError
			m.staleRef = nf.Ref
			m.errText = fmt.Sprintf("Analysis %q was not found.", nf.Ref)
		} else {
			m.showError(msg.Err)
		}
		return m, nil

	case ResultReadyMsg:
		if m.pendingJob == nil || msg.JobID != m.pendingJob.ID {
			return m, nil
		}
		m.resultSummary = msg.Summary
		m.timeline = msg.Timeline
		if m.est != nil {
			// Release the 95 hold; the tick handler swaps views at 100.
			m.est.Complete()
		}
		return m, m.ensureTick()

	case CopiedMsg:
		if msg.Err != nil {
			m.statusLine = "Copy failed: clipboard unavailable"
		} else {
			m.statusLine = fmt.Sprintf("Copied: bb --analysis %s", msg.Ref)
		}
		return m, nil

	case orchestrator.SubmittedMsg:
		m.jobID = msg.JobID
		m.screen = screenProgress
		m.stageLabel = ""
		var srcs []progress.Source
		if m.formVals != nil {
			srcs = m.formVals.sources()
		}
		m.est = progress.NewEstimator(progress.StagesFor(srcs))
		return m, tea.Batch(m.waitForWorkerCmd(), m.ensureTick())

	case orchestrator.ProgressMsg:
		if msg.JobID == m.jobID && m.est != nil {
			m.est.Observe(msg.Job)
			if msg.Job.Stage != "" {
				m.stageLabel = humanizeStage(msg.Job.Stage)
			}
		}
		return m, tea.Batch(m.waitForWorkerCmd(), m.ensureTick())

	case orchestrator.CompletedMsg:
		return m.handleCompleted(msg)

	case orchestrator.FailedMsg:
		if msg.JobID == m.jobID {
			m.clearJob()
			m.showError(msg.Err)
		}
		return m, m.waitForWorkerCmd()

	case orchestrator.CancelledMsg:
		m.clearJob()
		m.screen = screenHome
		m.statusLine = "Analysis cancelled"
		return m, m.waitForWorkerCmd()

	case orchestrator.DeletedMsg:
		m.statusLine = "Analysis deleted"
		if m.screen == screenResult {
			m.screen = screenHome
			m.result = nil
		}
		return m, m.waitForWorkerCmd()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.screen == screenForm && m.form != nil {
		return m.updateForm(msg)
	}
	return m, nil
}

// handleTick advances the spinner and the progress bar and performs the
// hold-then-swap at completion.
func (m *Model) handleTick() (tea.Model, tea.Cmd) {
	m.ticking = false
	m.spinnerIdx = (m.spinnerIdx + 1) % len(spinnerFrames)

	if m.est != nil {
		m.est.Advance()
		if m.est.Done() && m.pendingResult != nil {
			m.showResult()
			return m, nil
		}
	}
	if m.needsTick() {
		return m, m.ensureTick()
	}
	return m, nil
}

func (m *Model) handleCompleted(msg orchestrator.CompletedMsg) (tea.Model, tea.Cmd) {
	if m.jobID != "" && msg.JobID != m.jobID {
		// A leftover message for a superseded job.
		return m, m.waitForWorkerCmd()
	}
	job := msg.Job
	result := msg.Result
	m.pendingJob = &job
	m.pendingResult = &result
	if m.est == nil {
		m.est = progress.NewEstimator(progress.StagesFor(nil))
	}
	m.est.Finish()
	m.screen = screenProgress
	m.stageLabel = "Finalizing"

	if m.store != nil {
		_ = m.store.SetString(statestore.KeyLastAnalysisRef, job.ShareRef())
	}
	return m, tea.Batch(
		m.prepareResultCmd(job.ID, result, m.width),
		m.waitForWorkerCmd(),
		m.ensureTick(),
	)
}

func (m *Model) handleAnalysisLoaded(msg AnalysisLoadedMsg) (tea.Model, tea.Cmd) {
	job := msg.Outcome.Job
	if m.store != nil {
		_ = m.store.SetString(statestore.KeyLastAnalysisRef, job.ShareRef())
	}
	if msg.Outcome.Redirected {
		m.statusLine = "Showing the most recent analysis"
	}
	m.redirectTo = ""
	m.loadingRef = ""

	if err := m.orch.Watch(job); err != nil {
		m.showError(err)
		return m, nil
	}
	m.jobID = job.ID
	m.est = progress.NewEstimator(progress.StagesFor(nil))
	m.screen = screenProgress
	return m, m.ensureTick()
}

// showResult swaps the progress view for the prepared result view.
func (m *Model) showResult() {
	m.resultJob = *m.pendingJob
	m.result = m.pendingResult
	m.pendingJob = nil
	m.pendingResult = nil
	m.est = nil
	m.jobID = ""
	m.screen = screenResult
	m.vp = viewport.New(m.width, max(3, m.height-headerHeight-footerHeight))
	m.vp.SetContent(m.resultContent())
}

func (m *Model) clearJob() {
	m.jobID = ""
	m.est = nil
	m.stageLabel = ""
	m.pendingJob = nil
	m.pendingResult = nil
}

// showError puts the UI in the error state with a friendly message.
func (m *Model) showError(err error) {
	m.screen = screenError
	m.staleRef = ""
	m.errText = friendlyError(err)
}

// friendlyError maps internal error types to user-facing text.
func friendlyError(err error) string {
	var (
		sub       *orchestrator.SubmissionError
		failed    *orchestrator.AnalysisFailedError
		vanished  *orchestrator.JobVanishedError
		exhausted *orchestrator.PollingExhaustedError
	)
	switch {
	case errors.Is(err, integrations.ErrNoIntegrations):
		return "No connected integrations. Connect a GitHub organization first."
	case errors.As(err, &sub):
		return fmt.Sprintf("Could not start the analysis: %v", sub.Cause)
	case errors.As(err, &failed):
		if failed.Message != "" {
			return fmt.Sprintf("Analysis failed: %s", failed.Message)
		}
		return "Analysis failed."
	case errors.As(err, &vanished):
		return "The analysis was deleted while it was running."
	case errors.As(err, &exhausted):
		return "Lost contact with the backend while waiting for the analysis."
	default:
		return err.Error()
	}
}

// handleKey dispatches keyboard input by screen.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.pickerOpen {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}

	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.screen {
	case screenForm:
		if msg.String() == "esc" {
			m.form = nil
			m.screen = screenHome
			return m, nil
		}
		return m.updateForm(msg)

	case screenProgress:
		switch msg.String() {
		case "esc", "x":
			return m, m.cancelCmd()
		}

	case screenResult:
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "esc":
			m.screen = screenHome
			return m, nil
		case "n":
			return m.openForm()
		case "y", "c":
			return m, m.copyShareRefCmd()
		case "d":
			return m, m.deleteCmd(m.resultJob.ID)
		default:
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}

	case screenError:
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "esc", "enter":
			m.screen = screenHome
			m.errText = ""
			m.staleRef = ""
			return m, nil
		case "x":
			if m.staleRef != "" && m.store != nil {
				_ = m.store.Delete(statestore.KeyLastAnalysisRef)
				m.statusLine = "Cleared stored reference"
				m.screen = screenHome
				m.staleRef = ""
			}
			return m, nil
		}

	case screenLoading, screenRedirecting:
		if msg.String() == "esc" {
			m.screen = screenHome
			return m, nil
		}

	default: // screenHome
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "n", "enter":
			return m.openForm()
		case "o":
			return m.openPicker()
		case "l":
			if m.store != nil {
				if ref, ok := m.store.GetString(statestore.KeyLastAnalysisRef); ok && ref != "" {
					m.screen = screenLoading
					m.loadingRef = ref
					return m, tea.Batch(m.loadRefCmd(ref), m.ensureTick())
				}
			}
			m.statusLine = "No previous analysis"
			return m, nil
		case "r":
			m.refs.Invalidate()
			m.statusLine = "Refreshing..."
			return m, tea.Batch(m.loadIntegrationsCmd(), m.loadStatusesCmd(), m.loadTrendsCmd(m.cfg.Defaults.TimeRangeDays))
		}
	}
	return m, nil
}

// openForm builds and shows the submission form.
func (m *Model) openForm() (tea.Model, tea.Cmd) {
	if len(m.integrations) == 0 {
		m.statusLine = "No connected integrations yet"
		m.refs.Invalidate()
		return m, m.loadIntegrationsCmd()
	}
	selected := ""
	if m.store != nil {
		selected, _ = m.store.GetString(statestore.KeySelectedOrganization)
	}
	slackOK := false
	if st, ok := m.statuses[model.PlatformSlack]; ok {
		slackOK = st.Connected
	}
	m.form, m.formVals = newSubmitForm(m.integrations, selected, m.cfg.Defaults, slackOK)
	m.screen = screenForm
	return m, m.form.Init()
}

// openPicker shows the integration picker. Opening is an explicit refresh
// trigger: the cached list is invalidated before the reload.
func (m *Model) openPicker() (tea.Model, tea.Cmd) {
	selected := ""
	if m.store != nil {
		selected, _ = m.store.GetString(statestore.KeySelectedOrganization)
	}
	m.picker = NewIntegrationPicker(m.integrations, selected, m.theme)
	m.picker.SetSize(m.width - 4)
	m.pickerOpen = true
	m.refs.Invalidate()
	return m, m.loadIntegrationsCmd()
}

// updateForm forwards a message to the huh form and reacts to completion.
func (m *Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	f, cmd := m.form.Update(msg)
	if ff, ok := f.(*huh.Form); ok {
		m.form = ff
	}

	switch m.form.State {
	case huh.StateCompleted:
		req := m.formVals.request()
		m.refs.Select(req.IntegrationID)
		m.form = nil
		m.screen = screenProgress // "Submitting..." until SubmittedMsg
		m.est = nil
		m.stageLabel = ""
		return m, tea.Batch(m.submitCmd(req), m.ensureTick())
	case huh.StateAborted:
		m.form = nil
		m.screen = screenHome
		return m, nil
	}
	return m, cmd
}

// copyShareRefCmd puts a ready-to-run command line for the current result on
// the clipboard.
func (m *Model) copyShareRefCmd() tea.Cmd {
	ref := m.resultJob.ShareRef()
	return func() tea.Msg {
		err := clipboard.WriteAll(fmt.Sprintf("bb --analysis %s", ref))
		return CopiedMsg{Ref: ref, Err: err}
	}
}
