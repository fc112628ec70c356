package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/burnboard/pkg/model"
)

// SelectIntegrationMsg is sent when the user picks an integration.
type SelectIntegrationMsg struct {
	Integration model.Integration
}

// ClosePickerMsg is sent when the picker is dismissed without a choice.
type ClosePickerMsg struct{}

// maxVisibleIntegrations caps the rows shown in the picker panel.
const maxVisibleIntegrations = 8

// IntegrationPicker is a filterable overlay for choosing the organization to
// analyze. Opening it forces a reference-data refresh; the entries here may
// therefore lag one keypress behind the backend, never more.
type IntegrationPicker struct {
	entries     []model.Integration
	selectedID  string
	filtered    []int // indices into entries
	cursor      int
	filterInput textinput.Model
	theme       Theme
	width       int
}

// NewIntegrationPicker creates a picker over the given entries.
func NewIntegrationPicker(entries []model.Integration, selectedID string, theme Theme) IntegrationPicker {
	ti := textinput.New()
	ti.Placeholder = "type to filter..."
	ti.CharLimit = 50
	ti.Width = 30
	ti.Focus()

	p := IntegrationPicker{
		entries:     entries,
		selectedID:  selectedID,
		filterInput: ti,
		theme:       theme,
	}
	p.applyFilter()
	return p
}

// SetEntries replaces the picker contents (a refresh finished while open).
func (p *IntegrationPicker) SetEntries(entries []model.Integration) {
	p.entries = entries
	p.applyFilter()
}

// SetSize updates the picker dimensions.
func (p *IntegrationPicker) SetSize(w int) {
	p.width = w
}

// Update handles keyboard input for the picker.
func (p IntegrationPicker) Update(msg tea.Msg) (IntegrationPicker, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}

	switch key.String() {
	case "esc":
		return p, func() tea.Msg { return ClosePickerMsg{} }
	case "enter":
		if len(p.filtered) > 0 && p.cursor < len(p.filtered) {
			entry := p.entries[p.filtered[p.cursor]]
			return p, func() tea.Msg {
				return SelectIntegrationMsg{Integration: entry}
			}
		}
		return p, nil
	case "up", "ctrl+p":
		if p.cursor > 0 {
			p.cursor--
		}
		return p, nil
	case "down", "ctrl+n":
		if p.cursor < len(p.filtered)-1 {
			p.cursor++
		}
		return p, nil
	default:
		var cmd tea.Cmd
		p.filterInput, cmd = p.filterInput.Update(msg)
		p.applyFilter()
		return p, cmd
	}
}

// applyFilter recomputes the filtered indices from the filter input.
func (p *IntegrationPicker) applyFilter() {
	query := strings.ToLower(strings.TrimSpace(p.filterInput.Value()))
	p.filtered = p.filtered[:0]
	for i, e := range p.entries {
		if query == "" || strings.Contains(strings.ToLower(e.Name), query) {
			p.filtered = append(p.filtered, i)
		}
	}
	if p.cursor >= len(p.filtered) {
		p.cursor = max(0, len(p.filtered)-1)
	}
}

// Cursor returns the current cursor position.
func (p *IntegrationPicker) Cursor() int {
	return p.cursor
}

// FilteredCount returns the number of entries matching the current filter.
func (p *IntegrationPicker) FilteredCount() int {
	return len(p.filtered)
}

// View renders the picker panel.
func (p *IntegrationPicker) View() string {
	t := p.theme

	w := p.width
	if w <= 0 {
		w = 60
	}
	if w > 60 {
		w = 60
	}

	headerStyle := t.Renderer.NewStyle().Foreground(t.Secondary).Bold(true)
	cursorStyle := t.PrimaryBold
	activeStyle := t.GoodText
	normalStyle := t.Base
	dimStyle := t.Renderer.NewStyle().Foreground(t.Secondary).Italic(true)

	var b strings.Builder
	b.WriteString(headerStyle.Render("Select organization"))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render(" > "))
	b.WriteString(p.filterInput.View())
	b.WriteString("\n")

	if len(p.filtered) == 0 {
		b.WriteString(dimStyle.Render(" No integrations found"))
		b.WriteString("\n")
	}

	visible := len(p.filtered)
	if visible > maxVisibleIntegrations {
		visible = maxVisibleIntegrations
	}
	for i := 0; i < visible; i++ {
		entry := p.entries[p.filtered[i]]
		marker := "  "
		if entry.ID == p.selectedID {
			marker = "* "
		}
		row := fmt.Sprintf(" %s%s  %s", marker, padRight(truncate(entry.Name, 30), 30), entry.Platform)
		switch {
		case i == p.cursor:
			b.WriteString(cursorStyle.Render("▸" + row[1:]))
		case entry.ID == p.selectedID:
			b.WriteString(activeStyle.Render(row))
		default:
			b.WriteString(normalStyle.Render(row))
		}
		b.WriteString("\n")
	}
	if len(p.filtered) > maxVisibleIntegrations {
		b.WriteString(dimStyle.Render(fmt.Sprintf("   ... +%d more", len(p.filtered)-maxVisibleIntegrations)))
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render(" enter select · esc close"))

	panel := t.Renderer.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(0, 1).
		Width(w)
	return panel.Render(b.String())
}
