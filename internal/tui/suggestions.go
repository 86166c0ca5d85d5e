package tui

import (
	"fmt"
	"strings"

	"github.com/christopherklint97/allocr/internal/daterange"
	"github.com/christopherklint97/allocr/internal/match"
	"github.com/christopherklint97/allocr/internal/staffing"
)

const defaultRows = 15

type resultEntry struct {
	channel   match.Channel
	percent   staffing.Percent
	candidate staffing.Candidate
}

// resultsModel lists the bucketed candidates of both channels as one
// scrollable list.
type resultsModel struct {
	view    match.View
	entries []resultEntry
	cursor  int
	rows    int
	today   daterange.Date
}

func newResultsModel(today daterange.Date) resultsModel {
	return resultsModel{rows: defaultRows, today: today}
}

func (m *resultsModel) setView(v match.View) {
	m.view = v
	m.entries = m.entries[:0]
	for _, ch := range v.Channels {
		for _, c := range ch.Buckets.Flatten() {
			m.entries = append(m.entries, resultEntry{channel: ch.Channel, percent: c.MatchPercent, candidate: c})
		}
	}
	if m.cursor >= len(m.entries) {
		m.cursor = max(0, len(m.entries)-1)
	}
}

func (m *resultsModel) reset() {
	m.view = match.View{}
	m.entries = nil
	m.cursor = 0
}

func (m resultsModel) Len() int { return len(m.entries) }

func (m resultsModel) selected() (staffing.Candidate, bool) {
	if len(m.entries) == 0 {
		return staffing.Candidate{}, false
	}
	return m.entries[m.cursor].candidate, true
}

func (m *resultsModel) up() {
	if m.cursor > 0 {
		m.cursor--
	}
}

func (m *resultsModel) down() {
	if m.cursor < len(m.entries)-1 {
		m.cursor++
	}
}

// atEnd reports whether the cursor sits on the last loaded candidate.
func (m resultsModel) atEnd() bool {
	return len(m.entries) == 0 || m.cursor == len(m.entries)-1
}

func (m resultsModel) View() string {
	if len(m.entries) == 0 {
		return dimStyle.Render("No matches yet.")
	}

	start := max(0, min(m.cursor-m.rows/2, len(m.entries)-m.rows))
	end := min(len(m.entries), start+m.rows)

	var sb strings.Builder
	lastChannel := match.Channel(-1)
	lastPercent := staffing.Percent(-1)

	for i := start; i < end; i++ {
		e := m.entries[i]
		if e.channel != lastChannel {
			total := 0
			if int(e.channel) < len(m.view.Channels) {
				total = m.view.Channels[e.channel].TotalCount
			}
			sb.WriteString(channelStyle.Render(fmt.Sprintf("%s (%d)", e.channel.DisplayName(), total)))
			sb.WriteString("\n")
			lastChannel = e.channel
			lastPercent = -1
		}
		if e.percent != lastPercent {
			sb.WriteString(bucketStyle.Render(fmt.Sprintf(" %s match", e.percent)))
			sb.WriteString("\n")
			lastPercent = e.percent
		}

		prefix := "   "
		if i == m.cursor {
			prefix = " > "
		}
		c := e.candidate
		status := fmt.Sprintf("%3d%% booked", booked(c, m.today))
		if inKT(c, m.today) {
			status += ", in KT"
		}
		line := fmt.Sprintf("%s%-28s  %-18s  %s", prefix, truncate(c.DisplayName, 28), truncate(c.RoleName, 18),
			dimStyle.Render(status))
		if i == m.cursor {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if end < len(m.entries) {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("   … %d more", len(m.entries)-end)))
		sb.WriteString("\n")
	}
	return sb.String()
}

// booked sums the utilization of confirmed allocations running on today.
func booked(c staffing.Candidate, today daterange.Date) int {
	total := 0
	for _, a := range c.Allocations {
		if !a.Tentative && a.RunningOn(today) {
			total += a.Utilization
		}
	}
	return total
}

// inKT reports whether the candidate is handing over into an allocation
// that starts soon.
func inKT(c staffing.Candidate, today daterange.Date) bool {
	for _, a := range c.Allocations {
		if a.InKTPeriod(today) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
