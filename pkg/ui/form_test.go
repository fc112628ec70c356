package ui

import (
	"errors"
	"testing"

	"github.com/vanderheijden86/burnboard/pkg/integrations"
	"github.com/vanderheijden86/burnboard/pkg/orchestrator"
	"github.com/vanderheijden86/burnboard/pkg/progress"
)

func TestFormValuesRequest(t *testing.T) {
	v := formValues{
		IntegrationID: "org-1",
		Days:          "45",
		IncludeSlack:  true,
		EnableAI:      false,
	}
	req := v.request()
	if req.IntegrationID != "org-1" || req.TimeRangeDays != 45 {
		t.Errorf("request = %+v", req)
	}
	if !req.IncludeSlack || req.EnableAI {
		t.Errorf("toggles lost: %+v", req)
	}
}

func TestFormValuesSources(t *testing.T) {
	tests := []struct {
		slack, ai bool
		want      []progress.Source
	}{
		{false, false, nil},
		{true, false, []progress.Source{progress.SourceSlack}},
		{false, true, []progress.Source{progress.SourceAI}},
		{true, true, []progress.Source{progress.SourceSlack, progress.SourceAI}},
	}
	for _, tt := range tests {
		v := formValues{IncludeSlack: tt.slack, EnableAI: tt.ai}
		got := v.sources()
		if len(got) != len(tt.want) {
			t.Errorf("sources(slack=%v ai=%v) = %v, want %v", tt.slack, tt.ai, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("sources(slack=%v ai=%v) = %v, want %v", tt.slack, tt.ai, got, tt.want)
			}
		}
	}
}

func TestValidateDays(t *testing.T) {
	for _, ok := range []string{"1", "30", "365"} {
		if err := validateDays(ok); err != nil {
			t.Errorf("validateDays(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "0", "-1", "366", "abc", "30.5"} {
		if err := validateDays(bad); err == nil {
			t.Errorf("validateDays(%q) should fail", bad)
		}
	}
}

func TestFriendlyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"no integrations",
			integrations.ErrNoIntegrations,
			"No connected integrations. Connect a GitHub organization first.",
		},
		{
			"submission",
			&orchestrator.SubmissionError{Cause: errors.New("401 unauthorized")},
			"Could not start the analysis: 401 unauthorized",
		},
		{
			"failed with message",
			&orchestrator.AnalysisFailedError{JobID: "j1", Message: "no data"},
			"Analysis failed: no data",
		},
		{
			"failed without message",
			&orchestrator.AnalysisFailedError{JobID: "j1"},
			"Analysis failed.",
		},
		{
			"vanished",
			&orchestrator.JobVanishedError{JobID: "j1"},
			"The analysis was deleted while it was running.",
		},
		{
			"exhausted",
			&orchestrator.PollingExhaustedError{JobID: "j1", Attempts: 10},
			"Lost contact with the backend while waiting for the analysis.",
		},
		{
			"other",
			errors.New("boom"),
			"boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := friendlyError(tt.err); got != tt.want {
				t.Errorf("friendlyError = %q, want %q", got, tt.want)
			}
		})
	}
}
