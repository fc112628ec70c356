// Package timeline derives a human-readable event timeline from the daily
// burnout time series. Detection is a pure function of the series; events are
// view artifacts, recomputed whenever they are needed and never persisted.
package timeline

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/vanderheijden86/burnboard/pkg/model"
)

// maxEvents caps how many detected events are kept for display; the most
// significant win, then the survivors are shown chronologically.
const maxEvents = 8

// Detection thresholds. Scores are team-health scores in [0,100] where
// higher is better.
const (
	peakFloor      = 75
	peakMajor      = 90
	valleyCeil     = 60
	valleyMajor    = 40
	swingDelta     = 20
	swingMajor     = 30
	volumeFloor    = 15
	volumeMajor    = 25
	criticalScore  = 45
	criticalAtRisk = 3
)

// Detect classifies the interior points of the series into significant
// events. Rules are evaluated in a fixed priority order and at most one
// classification is assigned per point; see classify for the ordering. A
// synthetic current-state event is always appended for a non-empty series.
// Series shorter than 3 points carry too little context for local extrema
// and yield only the synthetic event.
func Detect(series []model.TimeSeriesPoint) []model.Event {
	if len(series) == 0 {
		return nil
	}

	var events []model.Event
	if len(series) >= 3 {
		for i := 1; i < len(series)-1; i++ {
			if ev, ok := classify(series[i-1], series[i], series[i+1]); ok {
				events = append(events, ev)
			}
		}
	}

	// Keep the most significant events, then restore chronological order.
	sort.SliceStable(events, func(a, b int) bool {
		return events[a].Significance > events[b].Significance
	})
	if len(events) > maxEvents {
		events = events[:maxEvents]
	}
	sort.SliceStable(events, func(a, b int) bool {
		return events[a].Date.Before(events[b].Date)
	})

	return append(events, currentState(series))
}

// classify applies the detection rules to one interior point. The rule order
// (peak, valley, recovery, decline, high-volume, critical) mirrors the
// branching order of the reference dashboard; first match wins.
func classify(prev, p, next model.TimeSeriesPoint) (model.Event, bool) {
	delta := p.Score - prev.Score

	switch {
	case p.Score > prev.Score && p.Score > next.Score && p.Score >= peakFloor:
		sig := 2
		if p.Score >= peakMajor {
			sig = 3
		}
		return event(p, model.EventPeak, sig,
			fmt.Sprintf("Team health peaked at %.0f", p.Score)), true

	case p.Score < prev.Score && p.Score < next.Score && p.Score <= valleyCeil:
		sig := 2
		if p.Score <= valleyMajor {
			sig = 3
		}
		return event(p, model.EventValley, sig,
			fmt.Sprintf("Health dipped to %.0f", p.Score)), true

	case delta >= swingDelta:
		sig := 2
		if delta >= swingMajor {
			sig = 3
		}
		return event(p, model.EventRecovery, sig,
			fmt.Sprintf("Recovery: score climbed %.0f points", delta)), true

	case delta <= -swingDelta:
		sig := 2
		if delta <= -swingMajor {
			sig = 3
		}
		return event(p, model.EventDecline, sig,
			fmt.Sprintf("Decline: score dropped %.0f points", -delta)), true

	case p.IncidentCount >= volumeFloor:
		sig := 2
		if p.IncidentCount >= volumeMajor {
			sig = 3
		}
		return event(p, model.EventHighVolume, sig,
			fmt.Sprintf("High volume: %d incidents in one day", p.IncidentCount)), true

	case p.Score <= criticalScore && p.MembersAtRisk >= criticalAtRisk:
		return event(p, model.EventCritical, 3,
			fmt.Sprintf("Critical: score %.0f with %d members at risk", p.Score, p.MembersAtRisk)), true
	}

	return model.Event{}, false
}

// currentState builds the synthetic event carrying the latest known
// aggregate score, contextualized against the series average.
func currentState(series []model.TimeSeriesPoint) model.Event {
	latest := series[len(series)-1]

	scores := make([]float64, len(series))
	for i, p := range series {
		scores[i] = p.Score
	}
	mean := stat.Mean(scores, nil)

	return model.Event{
		Date:         latest.Date,
		Kind:         model.EventCurrent,
		Significance: 1,
		Description: fmt.Sprintf("Current health %.0f (period average %.1f)",
			latest.Score, mean),
	}
}

func event(p model.TimeSeriesPoint, kind model.EventKind, sig int, desc string) model.Event {
	return model.Event{
		Date:         p.Date,
		Kind:         kind,
		Significance: sig,
		Description:  desc,
	}
}
