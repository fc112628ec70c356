package progress

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/vanderheijden86/burnboard/pkg/model"
)

func noJitter() float64 { return 0 }

func runningJob(p float64) model.Job {
	return model.Job{Status: model.StatusRunning, Progress: &p}
}

func stageJob(stage string) model.Job {
	return model.Job{Status: model.StatusRunning, Stage: stage}
}

func TestExplicitProgressCapped(t *testing.T) {
	e := NewEstimator(StagesFor(nil), WithJitter(noJitter))
	e.Observe(runningJob(99))
	if got := e.Target(); got != ExplicitCap {
		t.Errorf("target = %v, want explicit cap %v", got, ExplicitCap)
	}
}

func TestExplicitProgressBelowCapPassesThrough(t *testing.T) {
	e := NewEstimator(StagesFor(nil), WithJitter(noJitter))
	e.Observe(runningJob(40))
	if got := e.Target(); got != 40 {
		t.Errorf("target = %v, want 40", got)
	}
}

func TestRegressedProgressIgnored(t *testing.T) {
	e := NewEstimator(StagesFor(nil), WithJitter(noJitter))
	e.Observe(runningJob(60))
	e.Observe(runningJob(30))
	if got := e.Target(); got != 60 {
		t.Errorf("target = %v after regression, want 60", got)
	}
}

func TestStageLabelMapsToTarget(t *testing.T) {
	stages := StagesFor(nil)
	e := NewEstimator(stages, WithJitter(noJitter))
	e.Observe(stageJob("computing_scores"))

	var want float64
	for _, st := range stages {
		if st.Name == "computing_scores" {
			want = st.Pct
		}
	}
	if want == 0 {
		t.Fatalf("stage table missing computing_scores")
	}
	if got := e.Target(); got != want {
		t.Errorf("target = %v, want %v", got, want)
	}
}

func TestUnknownStageLabelIgnored(t *testing.T) {
	e := NewEstimator(StagesFor(nil), WithJitter(noJitter))
	e.Observe(stageJob("reticulating_splines"))
	if got := e.Target(); got != 0 {
		t.Errorf("target = %v for unknown stage, want 0", got)
	}
}

func TestDetailInterpolatesWithinStageBand(t *testing.T) {
	stages := StagesFor(nil)
	e := NewEstimator(stages, WithJitter(noJitter))

	job := stageJob("fetching_github")
	job.Detail = &model.ProgressDetail{Done: 1, Total: 2}
	e.Observe(job)

	var base, next float64
	for i, st := range stages {
		if st.Name == "fetching_github" {
			base = st.Pct
			next = stages[i+1].Pct
		}
	}
	want := base + (next-base)/2
	if got := e.Target(); got != want {
		t.Errorf("target = %v, want midpoint %v", got, want)
	}
}

func TestSimulatedWalkCapped(t *testing.T) {
	e := NewEstimator(StagesFor(nil), WithJitter(noJitter))
	// Far more polls than stages: the walk must stop at the simulated cap.
	for i := 0; i < 50; i++ {
		e.Observe(model.Job{Status: model.StatusRunning})
	}
	if got := e.Target(); got > SimulatedCap {
		t.Errorf("simulated target = %v, must not exceed %v", got, SimulatedCap)
	}
}

func TestStageWithJitterNeverExceedsSimulatedCap(t *testing.T) {
	e := NewEstimator(StagesFor([]Source{SourceSlack, SourceAI}), WithJitter(func() float64 { return 1.99 }))
	e.Observe(stageJob("finalizing"))
	if got := e.Target(); got > SimulatedCap {
		t.Errorf("stage target with jitter = %v, must not exceed %v", got, SimulatedCap)
	}
}

func TestFinishHoldsAt95UntilComplete(t *testing.T) {
	e := NewEstimator(StagesFor(nil), WithJitter(noJitter))
	e.Observe(runningJob(80))
	e.Finish()

	for i := 0; i < 200; i++ {
		e.Advance()
	}
	if got := e.Displayed(); got != 95 {
		t.Fatalf("displayed = %v during hold, want 95", got)
	}
	if !e.AtHold() {
		t.Fatalf("AtHold() = false at the hold point")
	}

	e.Complete()
	for i := 0; i < 20; i++ {
		e.Advance()
	}
	if !e.Done() {
		t.Errorf("Done() = false after Complete and enough ticks")
	}
}

func TestObserveAfterFinishIgnored(t *testing.T) {
	e := NewEstimator(StagesFor(nil), WithJitter(noJitter))
	e.Finish()
	e.Observe(runningJob(10))
	if got := e.Target(); got != 95 {
		t.Errorf("target = %v after post-finish observe, want 95", got)
	}
}

func TestAdvanceStepSizes(t *testing.T) {
	e := NewEstimator(StagesFor(nil), WithJitter(noJitter))
	e.Observe(runningJob(50))

	// Gap of 50: two points per tick.
	if got := e.Advance(); got != 2 {
		t.Errorf("first Advance = %v, want 2", got)
	}

	e2 := NewEstimator(StagesFor(nil), WithJitter(noJitter))
	e2.Observe(runningJob(5))
	// Gap of 5: one point per tick.
	if got := e2.Advance(); got != 1 {
		t.Errorf("Advance with small gap = %v, want 1", got)
	}
}

func TestAdvanceNeverOvershoots(t *testing.T) {
	e := NewEstimator(StagesFor(nil), WithJitter(noJitter))
	e.Observe(runningJob(3))
	for i := 0; i < 10; i++ {
		if got := e.Advance(); got > 3 {
			t.Fatalf("displayed = %v, must not exceed target 3", got)
		}
	}
}

// Property: within one job, target never decreases, displayed never exceeds
// target, and everything stays within [0, 100].
func TestEstimatorProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		srcs := rapid.SampledFrom([][]Source{
			nil, {SourceSlack}, {SourceAI}, {SourceSlack, SourceAI},
		}).Draw(t, "sources")
		e := NewEstimator(StagesFor(srcs))

		stages := StagesFor(srcs)
		prevTarget := 0.0
		n := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < n; i++ {
			switch rapid.IntRange(0, 4).Draw(t, "op") {
			case 0:
				p := rapid.Float64Range(0, 120).Draw(t, "pct")
				e.Observe(runningJob(p))
			case 1:
				idx := rapid.IntRange(0, len(stages)-1).Draw(t, "stage")
				e.Observe(stageJob(stages[idx].Name))
			case 2:
				e.Observe(model.Job{Status: model.StatusRunning})
			case 3:
				e.Advance()
			case 4:
				if rapid.Bool().Draw(t, "complete") {
					e.Complete()
				} else {
					e.Finish()
				}
			}

			if e.Target() < prevTarget {
				t.Fatalf("target regressed: %v -> %v", prevTarget, e.Target())
			}
			prevTarget = e.Target()
			if e.Displayed() > e.Target() {
				t.Fatalf("displayed %v exceeds target %v", e.Displayed(), e.Target())
			}
			if e.Target() < 0 || e.Target() > 100 || e.Displayed() < 0 {
				t.Fatalf("out of range: displayed=%v target=%v", e.Displayed(), e.Target())
			}
		}
	})
}
