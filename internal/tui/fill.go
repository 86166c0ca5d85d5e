package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/christopherklint97/allocr/internal/daterange"
	"github.com/christopherklint97/allocr/internal/fill"
	"github.com/christopherklint97/allocr/internal/staffing"
)

const barWidth = 30

// RenderFill draws the two fill ratios of a position: days filled and
// utilization allocated.
func RenderFill(r fill.Ratios) string {
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth), progress.WithoutPercentage())
	r = r.Clamped()

	days := fmt.Sprintf("%s %3d%% position filled  %s",
		bar.ViewAs(float64(r.PositionFilled())/100),
		r.PositionFilled(),
		dimStyle.Render(fmt.Sprintf("%d%% empty", r.PositionUnfilled)),
	)
	util := fmt.Sprintf("%s %3d%% current allocation %s",
		bar.ViewAs(float64(r.UtilizationFilled())/100),
		r.UtilizationFilled(),
		dimStyle.Render(fmt.Sprintf("%d%% unallocated", r.UtilizationUnfilled)),
	)
	return days + "\n" + util
}

// RenderFillReport lists every position of a project with its fill bars.
// Positions at or over threshold percent unfilled are flagged.
func RenderFillReport(staffed []staffing.StaffedPosition, calc fill.Calculator, threshold int) string {
	var sb strings.Builder
	for i, sp := range staffed {
		if i > 0 {
			sb.WriteString("\n")
		}
		r := calc.Compute(sp.Position, sp.Allocations)
		title := titleStyle.Render(positionTitle(sp.Position))
		c := r.Clamped()
		if threshold > 0 && (c.PositionUnfilled >= threshold || c.UtilizationUnfilled >= threshold) {
			title += " " + warningStyle.Render("under-filled")
		}
		sb.WriteString(title)
		sb.WriteString("\n")
		sb.WriteString(dimStyle.Render(positionDetails(sp.Position)))
		sb.WriteString("\n")
		sb.WriteString(RenderFill(r))
		sb.WriteString("\n")
	}
	return sb.String()
}

func positionTitle(p staffing.Position) string {
	name := p.RoleName
	if p.ProjectName != "" {
		name = p.ProjectName + ": " + name
	}
	return fmt.Sprintf("%s (#%d)", name, p.ID)
}

func positionDetails(p staffing.Position) string {
	parts := []string{p.Range().String(), fmt.Sprintf("%d%%", p.UtilizationCap)}
	if len(p.Skills) > 0 {
		parts = append(parts, strings.Join(p.Skills, ", "))
	}
	if p.Range().IsOpen() {
		parts = append(parts, "availability checked through "+p.SearchWindow().EndOr(daterange.Forever).String())
	}
	return strings.Join(parts, " · ")
}
