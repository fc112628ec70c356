package main

import (
	"context"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/burnboard/pkg/api"
	"github.com/vanderheijden86/burnboard/pkg/config"
	"github.com/vanderheijden86/burnboard/pkg/integrations"
	"github.com/vanderheijden86/burnboard/pkg/model"
	"github.com/vanderheijden86/burnboard/pkg/orchestrator"
	"github.com/vanderheijden86/burnboard/pkg/resolver"
	"github.com/vanderheijden86/burnboard/pkg/timeline"
)

// robotTimeout bounds a full headless run, submission through terminal state.
const robotTimeout = 30 * time.Minute

// runRobot is the non-interactive mode used by scripts and CI: it performs
// one operation and prints the outcome as JSON on stdout.
//
//	bb --robot --trends-days 30   print the historical trend series
//	bb --robot --analysis <ref>   resolve a reference and print the job
//	bb --robot                    run an analysis with defaults and print the result
func runRobot(client *api.Client, refs *integrations.Service, orch *orchestrator.Orchestrator, cfg config.Config, analysisRef string, trendsDays int) error {
	ctx, cancel := context.WithTimeout(context.Background(), robotTimeout)
	defer cancel()

	switch {
	case trendsDays > 0:
		series, err := client.HistoricalTrends(ctx, trendsDays)
		if err != nil {
			return err
		}
		return printJSON(struct {
			Series []model.TimeSeriesPoint `json:"series"`
			Events []model.Event           `json:"events"`
		}{Series: series, Events: timeline.Detect(series)})

	case analysisRef != "":
		res := resolver.New(client.AnalysisByRef)
		out, err := res.Load(ctx, analysisRef)
		if err != nil {
			return err
		}
		return printJSON(struct {
			Job        model.Job     `json:"job"`
			Redirected bool          `json:"redirected,omitempty"`
			Events     []model.Event `json:"events,omitempty"`
		}{
			Job:        out.Job,
			Redirected: out.Redirected,
			Events:     resultEvents(out.Job),
		})

	default:
		return runRobotAnalysis(ctx, orch, cfg)
	}
}

// runRobotAnalysis submits a run with the configured defaults and blocks on
// the orchestrator's message stream until a terminal message arrives.
func runRobotAnalysis(ctx context.Context, orch *orchestrator.Orchestrator, cfg config.Config) error {
	req := model.AnalysisRequest{
		TimeRangeDays: cfg.Defaults.TimeRangeDays,
		IncludeSlack:  cfg.Defaults.IncludeSlack,
		EnableAI:      cfg.Defaults.EnableAI,
	}
	id, err := orch.Submit(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "submitted analysis %s\n", id)

	for {
		select {
		case <-ctx.Done():
			orch.Cancel()
			return ctx.Err()
		case msg := <-orch.Messages():
			switch msg := msg.(type) {
			case orchestrator.ProgressMsg:
				if msg.Job.Stage != "" {
					fmt.Fprintf(os.Stderr, "stage: %s\n", msg.Job.Stage)
				}
			case orchestrator.CompletedMsg:
				return printJSON(struct {
					Job    model.Job     `json:"job"`
					Result model.Result  `json:"result"`
					Events []model.Event `json:"events,omitempty"`
				}{Job: msg.Job, Result: msg.Result, Events: timeline.Detect(msg.Result.Series)})
			case orchestrator.FailedMsg:
				return msg.Err
			}
		}
	}
}

func resultEvents(job model.Job) []model.Event {
	if job.Result == nil {
		return nil
	}
	return timeline.Detect(job.Result.Series)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
