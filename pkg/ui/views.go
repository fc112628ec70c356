package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/stat"

	"github.com/vanderheijden86/burnboard/internal/statestore"
	"github.com/vanderheijden86/burnboard/pkg/model"
)

// Fixed chrome heights used for viewport sizing.
const (
	headerHeight = 2
	footerHeight = 2
)

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var body string
	switch m.screen {
	case screenForm:
		if m.form != nil {
			body = m.form.View()
		}
	case screenProgress:
		body = m.renderProgress()
	case screenResult:
		body = m.vp.View()
	case screenError:
		body = m.renderError()
	case screenLoading:
		body = m.renderLoading()
	case screenRedirecting:
		body = m.renderRedirecting()
	default:
		body = m.renderHome()
	}

	if m.pickerOpen {
		body = m.picker.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderFooter(),
	)
}

func (m *Model) renderHeader() string {
	t := m.theme
	title := t.Header.Render(" burnboard ")

	var parts []string
	for _, p := range []model.Platform{model.PlatformGitHub, model.PlatformSlack} {
		st, ok := m.statuses[p]
		if ok && st.Connected {
			parts = append(parts, t.GoodText.Render(fmt.Sprintf("%s ✓", p)))
		} else {
			parts = append(parts, t.MutedText.Render(fmt.Sprintf("%s ✗", p)))
		}
	}
	status := strings.Join(parts, "  ")

	org := ""
	if m.store != nil {
		if id, ok := m.store.GetString(statestore.KeySelectedOrganization); ok {
			for _, in := range m.integrations {
				if in.ID == id {
					org = t.SecondaryText.Render("org: " + in.Name)
					break
				}
			}
		}
	}
	if org == "" && len(m.integrations) > 0 {
		org = t.SecondaryText.Render("org: " + m.integrations[0].Name)
	}

	line := title + "  " + status
	if org != "" {
		line += "  " + org
	}
	sep := t.Renderer.NewStyle().Foreground(t.Border).Render(strings.Repeat("─", max(0, m.width)))
	return line + "\n" + sep
}

func (m *Model) renderFooter() string {
	t := m.theme
	var hints string
	switch m.screen {
	case screenForm:
		hints = "esc cancel"
	case screenProgress:
		hints = "esc cancel analysis"
	case screenResult:
		hints = "↑/↓ scroll · y copy ref · n new · d delete · esc back · q quit"
	case screenError:
		if m.staleRef != "" {
			hints = "x clear reference · esc back"
		} else {
			hints = "esc back · q quit"
		}
	case screenLoading, screenRedirecting:
		hints = "esc back"
	default:
		hints = "n new analysis · o organization · l last analysis · r refresh · q quit"
	}

	line := t.MutedText.Render(hints)
	if m.statusLine != "" {
		line += "  " + t.SecondaryText.Render(m.statusLine)
	}
	sep := t.Renderer.NewStyle().Foreground(t.Border).Render(strings.Repeat("─", max(0, m.width)))
	return sep + "\n" + line
}

func (m *Model) renderHome() string {
	t := m.theme
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(t.PrimaryBold.Render("  Team burnout dashboard"))
	b.WriteString("\n\n")

	if len(m.trends) > 0 {
		scores := make([]float64, len(m.trends))
		for i, p := range m.trends {
			scores[i] = p.Score
		}
		avg := stat.Mean(scores, nil)
		latest := scores[len(scores)-1]

		b.WriteString(fmt.Sprintf("  %s %s   %s %s\n",
			t.SecondaryText.Render("current health:"),
			t.ScoreStyle(latest).Render(fmt.Sprintf("%.0f", latest)),
			t.SecondaryText.Render(fmt.Sprintf("%d-day average:", len(scores))),
			t.ScoreStyle(avg).Render(fmt.Sprintf("%.0f", avg)),
		))
		b.WriteString("  " + m.renderSparkline(scores) + "\n\n")
	} else {
		b.WriteString(t.MutedText.Render("  No historical data yet.") + "\n\n")
	}

	if m.store != nil {
		if ref, ok := m.store.GetString(statestore.KeyLastAnalysisRef); ok && ref != "" {
			b.WriteString(fmt.Sprintf("  %s %s %s\n",
				t.SecondaryText.Render("last analysis:"),
				truncate(ref, 40),
				t.MutedText.Render("(press l to open)"),
			))
		}
	}

	if len(m.integrations) == 0 {
		b.WriteString("\n" + t.WarnText.Render("  No connected integrations. Connect a GitHub organization to begin."))
	} else {
		b.WriteString("\n" + t.MutedText.Render("  Press n to run a new analysis."))
	}
	return b.String()
}

// renderSparkline draws the score series as a row of block glyphs, one cell
// per day, colored by health band.
func (m *Model) renderSparkline(scores []float64) string {
	blocks := []rune("▁▂▃▄▅▆▇█")
	maxCells := m.width - 6
	if maxCells < 10 {
		maxCells = 10
	}
	if len(scores) > maxCells {
		scores = scores[len(scores)-maxCells:]
	}
	var b strings.Builder
	for _, s := range scores {
		idx := int(s / 100 * float64(len(blocks)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(blocks) {
			idx = len(blocks) - 1
		}
		b.WriteString(m.theme.ScoreStyle(s).Render(string(blocks[idx])))
	}
	return b.String()
}

func (m *Model) renderProgress() string {
	t := m.theme
	var b strings.Builder
	frame := spinnerFrames[m.spinnerIdx]

	b.WriteString("\n")
	if m.est == nil {
		b.WriteString(fmt.Sprintf("  %s %s\n", t.PrimaryBold.Render(frame), "Submitting analysis..."))
		return b.String()
	}

	label := m.stageLabel
	if label == "" {
		label = "Analyzing"
	}
	pct := m.est.Displayed()

	b.WriteString(fmt.Sprintf("  %s %s\n\n", t.PrimaryBold.Render(frame), label))
	b.WriteString("  " + m.bar.ViewAs(pct/100) + "\n")
	b.WriteString("  " + t.SecondaryText.Render(fmt.Sprintf("%3.0f%%", pct)) + "\n")
	if m.pendingResult != nil {
		b.WriteString("\n  " + t.MutedText.Render("Preparing report...") + "\n")
	}
	return b.String()
}

func (m *Model) renderLoading() string {
	t := m.theme
	frame := spinnerFrames[m.spinnerIdx]
	return fmt.Sprintf("\n  %s Loading analysis %s...\n",
		t.PrimaryBold.Render(frame), truncate(m.loadingRef, 40))
}

func (m *Model) renderRedirecting() string {
	t := m.theme
	frame := spinnerFrames[m.spinnerIdx]
	return fmt.Sprintf("\n  %s %s\n  %s\n",
		t.PrimaryBold.Render(frame),
		"That analysis is no longer available.",
		t.SecondaryText.Render("Loading the most recent one instead..."))
}

func (m *Model) renderError() string {
	t := m.theme
	var b strings.Builder
	b.WriteString("\n  " + t.ErrorText.Render("✗ "+m.errText) + "\n")
	if m.staleRef != "" {
		b.WriteString("\n  " + t.MutedText.Render("The shared reference may have been deleted.") + "\n")
		b.WriteString("  " + t.MutedText.Render("Press x to clear it, or esc to go back.") + "\n")
	}
	return b.String()
}

// resultContent builds the scrollable result view body.
func (m *Model) resultContent() string {
	if m.result == nil {
		return ""
	}
	t := m.theme
	r := m.result
	var b strings.Builder

	b.WriteString("\n")
	if r.Partial {
		b.WriteString("  " + t.WarnText.Render("⚠ Partial result — the run failed before computing every metric.") + "\n\n")
	}

	score := t.ScoreStyle(r.OverallScore).Bold(true).Render(fmt.Sprintf("%.0f", r.OverallScore))
	b.WriteString(fmt.Sprintf("  %s %s\n", t.SecondaryText.Render("Team health score:"), score))
	if r.TotalMembers > 0 {
		risk := t.SecondaryText
		if r.MembersAtRisk > 0 {
			risk = t.BadText
		}
		b.WriteString(fmt.Sprintf("  %s %s\n",
			t.SecondaryText.Render("Members at risk:"),
			risk.Render(fmt.Sprintf("%d of %d", r.MembersAtRisk, r.TotalMembers))))
	}

	if !m.resultJob.CreatedAt.IsZero() {
		b.WriteString("  " + t.MutedText.Render("Analyzed "+FormatTimeRel(m.resultJob.CreatedAt)) + "\n")
	}

	if len(m.timeline) > 0 {
		b.WriteString("\n  " + t.PrimaryBold.Render("Timeline") + "\n")
		b.WriteString(m.renderTimeline())
	}

	if m.resultSummary != "" {
		b.WriteString("\n  " + t.PrimaryBold.Render("Summary") + "\n")
		b.WriteString(m.resultSummary)
	}
	return b.String()
}

func (m *Model) renderTimeline() string {
	t := m.theme
	var b strings.Builder
	for _, ev := range m.timeline {
		icon := t.eventColor(ev.Kind).Render(eventIcon(ev.Kind))
		date := t.MutedText.Render(ev.Date.Format("Jan 02"))
		b.WriteString(fmt.Sprintf("  %s %s  %s\n", icon, date, truncate(ev.Description, max(20, m.width-14))))
	}
	return b.String()
}
