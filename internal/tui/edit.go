package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/christopherklint97/allocr/internal/assign"
	"github.com/christopherklint97/allocr/internal/conflict"
	"github.com/christopherklint97/allocr/internal/daterange"
	"github.com/christopherklint97/allocr/internal/staffing"
)

type formField int

const (
	fieldUtilization formField = iota
	fieldStart
	fieldEnd
	fieldKT
	fieldCount
)

var fieldNames = [fieldCount]string{"Utilization %", "Start date", "End date", "KT days"}

// formModel is the add-to-position form for one candidate.
type formModel struct {
	candidate staffing.Candidate
	position  staffing.Position
	values    [fieldCount]string
	field     formField
	textInput textinput.Model
	editing   bool
	err       string
	now       time.Time
}

func newFormModel(c staffing.Candidate, p staffing.Position, now time.Time) formModel {
	ti := textinput.New()
	ti.CharLimit = 40
	ti.Width = 30

	m := formModel{
		candidate: c,
		position:  p,
		textInput: ti,
		now:       now,
	}

	util := p.UtilizationCap
	if util <= 0 || util > staffing.MaxUtilization {
		util = staffing.MaxUtilization
	}
	m.values[fieldUtilization] = strconv.Itoa(util)
	m.values[fieldStart] = daterange.MaxDate(p.StartDate, daterange.FromTime(now)).String()
	if p.EndDate != nil {
		m.values[fieldEnd] = p.EndDate.String()
	}
	return m
}

func (m formModel) Update(msg tea.Msg) (formModel, tea.Cmd) {
	if m.editing {
		return m.updateEditing(msg)
	}
	return m.updateNavigating(msg)
}

func (m formModel) updateNavigating(msg tea.Msg) (formModel, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "up", "k", "shift+tab":
			m.field = (m.field + fieldCount - 1) % fieldCount
		case "down", "j", "tab":
			m.field = (m.field + 1) % fieldCount
		case "enter":
			m.editing = true
			m.textInput.SetValue(m.values[m.field])
			m.textInput.Placeholder = fieldNames[m.field]
			m.textInput.CursorEnd()
			return m, m.textInput.Focus()
		}
	}
	return m, nil
}

func (m formModel) updateEditing(msg tea.Msg) (formModel, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter":
			m.values[m.field] = strings.TrimSpace(m.textInput.Value())
			m.editing = false
			m.err = ""
			m.textInput.Blur()
			return m, nil
		case "esc":
			m.editing = false
			m.textInput.Blur()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// proposal parses the form values. Dates accept ISO or natural language.
func (m formModel) proposal() (conflict.Proposal, error) {
	util, err := strconv.Atoi(m.values[fieldUtilization])
	if err != nil {
		return conflict.Proposal{}, fmt.Errorf("utilization: %q is not a number", m.values[fieldUtilization])
	}
	start, err := daterange.ParseOptional(m.values[fieldStart], m.now)
	if err != nil {
		return conflict.Proposal{}, fmt.Errorf("start date: %w", err)
	}
	end, err := daterange.ParseOptional(m.values[fieldEnd], m.now)
	if err != nil {
		return conflict.Proposal{}, fmt.Errorf("end date: %w", err)
	}
	kt := 0
	if v := m.values[fieldKT]; v != "" {
		kt, err = strconv.Atoi(v)
		if err != nil || kt < 0 {
			return conflict.Proposal{}, fmt.Errorf("KT days: %q is not a day count", v)
		}
	}
	return assign.ProposalFor(util, start, end, kt), nil
}

func (m formModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Add to Position"))
	sb.WriteString("\n")
	sb.WriteString(subtitleStyle.Render(fmt.Sprintf("%s → %s", m.candidate.DisplayName, positionTitle(m.position))))
	sb.WriteString("\n")

	for f := formField(0); f < fieldCount; f++ {
		prefix := "  "
		if f == m.field {
			prefix = "> "
		}
		value := m.values[f]
		if value == "" {
			value = dimStyle.Render("-")
		}
		line := fmt.Sprintf("%s%-14s %s", prefix, fieldNames[f], value)
		if f == m.field {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if m.editing {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("Editing: %s\n", selectedStyle.Render(fieldNames[m.field])))
		sb.WriteString(m.textInput.View())
		sb.WriteString("\n")
	}

	if m.err != "" {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render("Error: ") + m.err)
		sb.WriteString("\n")
	}

	sb.WriteString(helpStyle.Render("Enter: edit field • j/k: nav • s: submit • Esc: back"))

	return boxStyle.Render(sb.String())
}
