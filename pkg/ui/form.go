package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"

	"github.com/vanderheijden86/burnboard/pkg/config"
	"github.com/vanderheijden86/burnboard/pkg/model"
	"github.com/vanderheijden86/burnboard/pkg/progress"
)

// formValues receives the submission form's bound fields.
type formValues struct {
	IntegrationID string
	Days          string
	IncludeSlack  bool
	EnableAI      bool
}

// request builds the submission request from the collected values. Days is
// validated by the form before the values reach here.
func (v *formValues) request() model.AnalysisRequest {
	days, _ := strconv.Atoi(v.Days)
	return model.AnalysisRequest{
		IntegrationID: v.IntegrationID,
		TimeRangeDays: days,
		IncludeSlack:  v.IncludeSlack,
		EnableAI:      v.EnableAI,
	}
}

// sources returns the optional-source set used to build the stage table for
// this run's progress estimation.
func (v *formValues) sources() []progress.Source {
	var srcs []progress.Source
	if v.IncludeSlack {
		srcs = append(srcs, progress.SourceSlack)
	}
	if v.EnableAI {
		srcs = append(srcs, progress.SourceAI)
	}
	return srcs
}

func validateDays(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n < 1 || n > 365 {
		return fmt.Errorf("must be between 1 and 365")
	}
	return nil
}

// newSubmitForm builds the new-analysis form. slackConnected gates the Slack
// toggle: an unconnected platform is not offered rather than failing later at
// submission.
func newSubmitForm(ints []model.Integration, selectedID string, defaults config.DefaultsConfig, slackConnected bool) (*huh.Form, *formValues) {
	vals := &formValues{
		IntegrationID: selectedID,
		Days:          strconv.Itoa(defaults.TimeRangeDays),
		IncludeSlack:  defaults.IncludeSlack && slackConnected,
		EnableAI:      defaults.EnableAI,
	}
	if vals.IntegrationID == "" && len(ints) > 0 {
		vals.IntegrationID = ints[0].ID
	}

	opts := make([]huh.Option[string], len(ints))
	for i, in := range ints {
		opts[i] = huh.NewOption(fmt.Sprintf("%s (%s)", in.Name, in.Platform), in.ID)
	}

	fields := []huh.Field{
		huh.NewSelect[string]().
			Title("Organization").
			Options(opts...).
			Value(&vals.IntegrationID),
		huh.NewInput().
			Title("Time range (days)").
			Validate(validateDays).
			Value(&vals.Days),
	}
	if slackConnected {
		fields = append(fields, huh.NewConfirm().
			Title("Include Slack activity?").
			Value(&vals.IncludeSlack))
	}
	fields = append(fields, huh.NewConfirm().
		Title("Generate AI insights?").
		Description("Adds a narrative summary to the report").
		Value(&vals.EnableAI))

	form := huh.NewForm(huh.NewGroup(fields...)).WithTheme(huh.ThemeDracula())
	return form, vals
}
