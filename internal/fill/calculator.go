// Package fill measures how much of a position's duration and utilization
// budget its allocations cover.
package fill

import (
	"math"

	"github.com/christopherklint97/allocr/internal/daterange"
	"github.com/christopherklint97/allocr/internal/staffing"
)

// Ratios are unfilled percentages. PositionUnfilled drives the outer ring
// (days), UtilizationUnfilled the inner ring (capacity). Either may fall
// outside [0, 100] for degenerate input.
type Ratios struct {
	PositionUnfilled    int
	UtilizationUnfilled int
	TotalDays           int
	FilledDays          int
	AllocatedUtil       int
}

// PositionFilled is the complement of PositionUnfilled, as displayed.
func (r Ratios) PositionFilled() int { return 100 - r.PositionUnfilled }

// UtilizationFilled is the complement of UtilizationUnfilled, as displayed.
func (r Ratios) UtilizationFilled() int { return 100 - r.UtilizationUnfilled }

// Clamped limits both ratios to [0, 100] for rendering.
func (r Ratios) Clamped() Ratios {
	r.PositionUnfilled = clamp(r.PositionUnfilled)
	r.UtilizationUnfilled = clamp(r.UtilizationUnfilled)
	return r
}

func clamp(v int) int {
	return max(0, min(100, v))
}

// Calculator computes fill ratios for one position from the allocations
// bound to it. Allocations on other positions and pending requests are
// ignored.
type Calculator interface {
	Compute(position staffing.Position, allocations []staffing.Allocation) Ratios
}

// OccupantSum counts, for every occupant, their longest allocation on the
// position and sums those spans across occupants. Overlapping occupants
// both count, so coverage can exceed the position length.
type OccupantSum struct {
	Today func() daterange.Date
}

func (c OccupantSum) Compute(position staffing.Position, allocations []staffing.Allocation) Ratios {
	today := now(c.Today)
	window := effectiveWindow(position, today)
	own := onPosition(position, allocations)

	longest := make(map[int64]int)
	var order []int64
	for _, a := range own {
		span := daterange.DayCount(a.Range().Through(window.EndOr(today)))
		if _, seen := longest[a.UserID]; !seen {
			order = append(order, a.UserID)
		}
		longest[a.UserID] = max(longest[a.UserID], span)
	}

	filled := 0
	for _, id := range order {
		filled += longest[id]
	}

	return ratios(position, window, filled, own, today)
}

// DateUnion counts each calendar day of the position window at most once,
// however many occupants cover it.
type DateUnion struct {
	Today func() daterange.Date
}

func (c DateUnion) Compute(position staffing.Position, allocations []staffing.Allocation) Ratios {
	today := now(c.Today)
	window := effectiveWindow(position, today)
	own := onPosition(position, allocations)

	covered := make([]daterange.Range, 0, len(own))
	for _, a := range own {
		covered = append(covered, a.Range())
	}
	filled := unionDays(window, covered)

	return ratios(position, window, filled, own, today)
}

func ratios(position staffing.Position, window daterange.Range, filled int, own []staffing.Allocation, today daterange.Date) Ratios {
	total := daterange.DayCount(window)
	if position.Range().IsOpen() && today.Before(position.StartDate) {
		// An open-ended position that has not started has no elapsed days.
		total, filled = 0, 0
	}

	r := Ratios{
		TotalDays:        total,
		FilledDays:       filled,
		PositionUnfilled: 100,
	}
	if total > 0 {
		r.PositionUnfilled = ceilPercent(total-filled, total)
	}

	for _, a := range own {
		if a.RunningOn(today) {
			r.AllocatedUtil += a.Utilization
		}
	}

	switch {
	case r.AllocatedUtil == 0:
		r.UtilizationUnfilled = 100
	case position.UtilizationCap <= 0:
		r.UtilizationUnfilled = 0
	default:
		r.UtilizationUnfilled = ceilPercent(position.UtilizationCap-r.AllocatedUtil, position.UtilizationCap)
	}
	return r
}

// effectiveWindow closes an open-ended position at today.
func effectiveWindow(p staffing.Position, today daterange.Date) daterange.Range {
	return p.Range().Through(today)
}

func onPosition(p staffing.Position, allocations []staffing.Allocation) []staffing.Allocation {
	var own []staffing.Allocation
	for _, a := range allocations {
		if a.PositionID == p.ID && !a.Tentative {
			own = append(own, a)
		}
	}
	return own
}

func ceilPercent(part, whole int) int {
	return int(math.Ceil(float64(part) / float64(whole) * 100))
}

func now(today func() daterange.Date) daterange.Date {
	if today == nil {
		return daterange.Today()
	}
	return today()
}
