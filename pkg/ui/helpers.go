package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/vanderheijden86/burnboard/pkg/model"
)

// FormatTimeRel returns a relative time string (e.g., "2h ago", "3d ago")
func FormatTimeRel(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	d := time.Since(t)
	if d < 0 {
		// Future timestamps treated as now
		return "now"
	}
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dw ago", int(d.Hours()/(24*7)))
	default:
		return fmt.Sprintf("%dmo ago", int(d.Hours()/(24*30)))
	}
}

// truncateRunesHelper truncates a string to max visual width (cells), adding
// suffix if needed. Uses go-runewidth to handle wide characters correctly.
func truncateRunesHelper(s string, maxWidth int, suffix string) string {
	if maxWidth <= 0 {
		return ""
	}

	width := runewidth.StringWidth(s)
	if width <= maxWidth {
		return s
	}

	suffixWidth := runewidth.StringWidth(suffix)
	if suffixWidth > maxWidth {
		return runewidth.Truncate(suffix, maxWidth, "")
	}

	targetWidth := maxWidth - suffixWidth
	return runewidth.Truncate(s, targetWidth, "") + suffix
}

// truncate truncates string s to maxWidth cells
func truncate(s string, maxWidth int) string {
	return truncateRunesHelper(s, maxWidth, "…")
}

// padRight pads string s with spaces on the right to length width
func padRight(s string, width int) string {
	runeCount := utf8.RuneCountInString(s)
	if runeCount >= width {
		return s
	}
	return s + strings.Repeat(" ", width-runeCount)
}

// humanizeStage turns a backend stage label into display text
// ("fetching_github" → "Fetching github").
func humanizeStage(stage string) string {
	if stage == "" {
		return ""
	}
	s := strings.ReplaceAll(stage, "_", " ")
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return strings.ToUpper(string(r)) + s[size:]
}

// eventIcon returns the timeline marker for an event kind.
func eventIcon(kind model.EventKind) string {
	switch kind {
	case model.EventPeak:
		return "▲"
	case model.EventValley:
		return "▽"
	case model.EventRecovery:
		return "↗"
	case model.EventDecline:
		return "↘"
	case model.EventHighVolume:
		return "◆"
	case model.EventCritical:
		return "⚠"
	case model.EventCurrent:
		return "●"
	default:
		return "·"
	}
}

// eventColor maps an event kind to a theme color.
func (t Theme) eventColor(kind model.EventKind) lipgloss.Style {
	switch kind {
	case model.EventPeak, model.EventRecovery:
		return t.GoodText
	case model.EventValley, model.EventDecline:
		return t.WarnText
	case model.EventHighVolume, model.EventCritical:
		return t.BadText
	default:
		return t.SecondaryText
	}
}
