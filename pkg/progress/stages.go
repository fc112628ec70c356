package progress

// Source is an optional data source that adds work (and therefore stages) to
// an analysis run.
type Source string

const (
	// SourceSlack enables the secondary Slack integration fetch.
	SourceSlack Source = "slack"
	// SourceAI enables AI insight generation.
	SourceAI Source = "ai"
)

// Stage maps a backend stage label to the base display percentage reached
// when that stage begins.
type Stage struct {
	Name string
	Pct  float64
}

// Stage percentages span this range; the headroom above stageCeil is reserved
// for the completion sequence.
const (
	stageFloor = 5
	stageCeil  = 85
)

// StagesFor returns the ordered stage table for a run with the given optional
// sources enabled. Adding a source grows the stage count and redistributes
// percentages evenly across the floor..ceil range, so the table is a pure
// function of the enabled sources.
func StagesFor(sources []Source) []Stage {
	var slack, ai bool
	for _, s := range sources {
		switch s {
		case SourceSlack:
			slack = true
		case SourceAI:
			ai = true
		}
	}

	names := []string{"initializing", "fetching_github"}
	if slack {
		names = append(names, "fetching_slack")
	}
	names = append(names, "analyzing_activity", "computing_scores")
	if ai {
		names = append(names, "generating_insights")
	}
	names = append(names, "finalizing")

	stages := make([]Stage, len(names))
	span := float64(stageCeil - stageFloor)
	for i, name := range names {
		pct := float64(stageFloor)
		if len(names) > 1 {
			pct += span * float64(i) / float64(len(names)-1)
		}
		stages[i] = Stage{Name: name, Pct: pct}
	}
	return stages
}
