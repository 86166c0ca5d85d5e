package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// searchModel is the free-text filter above the results.
type searchModel struct {
	input textinput.Model
}

func newSearchModel() searchModel {
	ti := textinput.New()
	ti.Placeholder = "Search by name or skill..."
	ti.Prompt = "/ "
	ti.CharLimit = 100
	ti.Width = 40

	return searchModel{input: ti}
}

func (m searchModel) Update(msg tea.Msg) (searchModel, tea.Cmd) {
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m searchModel) View() string {
	if !m.input.Focused() && m.input.Value() == "" {
		return dimStyle.Render("/ to search")
	}
	return m.input.View()
}

func (m *searchModel) Focus() tea.Cmd { return m.input.Focus() }

func (m *searchModel) Blur() { m.input.Blur() }

func (m searchModel) Focused() bool { return m.input.Focused() }

func (m searchModel) Value() string {
	return strings.TrimSpace(m.input.Value())
}
