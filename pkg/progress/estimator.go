// Package progress converts the backend's sparse, inconsistent progress
// signals into a single smoothly animated display percentage.
//
// The estimator tracks two values: target, the best estimate of real
// progress, and displayed, the value actually rendered. Target only ever
// rises within one job's lifetime; displayed converges toward target a point
// or two at a time so the UI shows continuous motion instead of jumps. The
// caller owns the cadence: Observe once per poll response, Advance once per
// animation tick. All methods are synchronous and the type is meant to be
// owned by a single goroutine (the UI event loop).
package progress

import (
	"math"
	"math/rand/v2"

	"github.com/vanderheijden86/burnboard/pkg/model"
)

const (
	// ExplicitCap bounds backend-reported progress while a job is still
	// running; the range above it is reserved for the completion sequence.
	ExplicitCap = 85
	// SimulatedCap bounds progress invented without any backend signal, so
	// simulated motion never falsely implies completion.
	SimulatedCap = 88
	// holdTarget is where the bar pauses before the final jump to 100.
	holdTarget = 95
)

// EstimatorOption configures an Estimator.
type EstimatorOption func(*Estimator)

// WithJitter replaces the liveliness jitter source. The function must return
// values in [0,2). Tests pass a constant.
func WithJitter(fn func() float64) EstimatorOption {
	return func(e *Estimator) {
		e.jitter = fn
	}
}

// Estimator produces the display percentage for one job. Create a fresh
// Estimator per submission; target monotonicity is scoped to one job.
type Estimator struct {
	stages    []Stage
	displayed float64
	target    float64
	simIndex  int
	finished  bool
	jitter    func() float64
}

// NewEstimator creates an estimator over the given stage table
// (see StagesFor).
func NewEstimator(stages []Stage, opts ...EstimatorOption) *Estimator {
	e := &Estimator{
		stages: stages,
		jitter: func() float64 { return rand.Float64() * 2 },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Observe feeds one poll response into the estimator. Signals are consulted
// in priority order: explicit numeric progress, then the stage label, then a
// simulated one-stage advance when the backend says nothing at all.
func (e *Estimator) Observe(job model.Job) {
	if e.finished {
		return
	}

	switch {
	case job.Progress != nil:
		e.raiseTarget(math.Min(*job.Progress, ExplicitCap))

	case job.Stage != "":
		base, ok := e.stageTarget(job.Stage, job.Detail)
		if ok {
			e.raiseTarget(math.Min(base+e.jitter(), SimulatedCap))
		}

	default:
		// No signal: walk one simulated stage per poll, holding at the cap
		// until a real terminal signal arrives.
		if e.simIndex < len(e.stages)-1 {
			e.simIndex++
		}
		if len(e.stages) > 0 {
			e.raiseTarget(math.Min(e.stages[e.simIndex].Pct, SimulatedCap))
		}
	}
}

// stageTarget maps a stage label to a percentage, interpolating within the
// stage's band when sub-stage counters are available.
func (e *Estimator) stageTarget(name string, detail *model.ProgressDetail) (float64, bool) {
	for i, st := range e.stages {
		if st.Name != name {
			continue
		}
		pct := st.Pct
		if detail != nil && detail.Total > 0 && i < len(e.stages)-1 {
			band := e.stages[i+1].Pct - st.Pct
			frac := math.Min(float64(detail.Done)/float64(detail.Total), 1)
			pct += band * frac
		}
		return pct, true
	}
	// Unknown labels are ignored rather than guessed at; the simulated path
	// covers jobs whose stages we have no table entry for.
	return 0, false
}

// Finish begins the completion sequence: the bar runs to 95 and holds there
// until Complete is called.
func (e *Estimator) Finish() {
	e.finished = true
	if e.target < holdTarget {
		e.target = holdTarget
	}
}

// Complete releases the hold and lets the bar reach 100.
func (e *Estimator) Complete() {
	e.finished = true
	e.target = 100
}

// Advance moves the displayed value toward target by one animation tick and
// returns the new displayed value. Large gaps close two points per tick,
// small ones a single point; the display never overshoots the target.
func (e *Estimator) Advance() float64 {
	gap := e.target - e.displayed
	if gap <= 0 {
		return e.displayed
	}
	step := 1.0
	if gap > 10 {
		step = 2
	}
	e.displayed = math.Min(e.displayed+step, e.target)
	return e.displayed
}

// Displayed returns the current display percentage.
func (e *Estimator) Displayed() float64 {
	return e.displayed
}

// Target returns the current target percentage.
func (e *Estimator) Target() float64 {
	return e.target
}

// AtHold reports whether the display has reached the pre-completion hold.
func (e *Estimator) AtHold() bool {
	return e.finished && e.displayed >= holdTarget && e.target == holdTarget
}

// Done reports whether the display has reached 100.
func (e *Estimator) Done() bool {
	return e.displayed >= 100
}

func (e *Estimator) raiseTarget(v float64) {
	if v > e.target {
		e.target = v
	}
}
