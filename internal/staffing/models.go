// Package staffing holds the records the engine reasons about: positions,
// allocations and candidates, as fetched from the allocation service.
package staffing

import (
	"github.com/christopherklint97/allocr/internal/daterange"
)

// MaxUtilization is the ceiling of one person's total utilization.
const MaxUtilization = 100

type Position struct {
	ID                   int64           `json:"id" yaml:"id"`
	ProjectID            int64           `json:"projectId,omitempty" yaml:"projectId,omitempty"`
	ProjectName          string          `json:"projectName" yaml:"projectName"`
	RoleName             string          `json:"role" yaml:"role"`
	StartDate            daterange.Date  `json:"startDate" yaml:"startDate"`
	EndDate              *daterange.Date `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	UtilizationCap       int             `json:"utilization" yaml:"utilization"`
	Skills               []string        `json:"skills,omitempty" yaml:"skills,omitempty"`
	ExperienceRangeStart int             `json:"experienceRangeStart,omitempty" yaml:"experienceRangeStart,omitempty"`
	ExperienceRangeEnd   int             `json:"experienceRangeEnd,omitempty" yaml:"experienceRangeEnd,omitempty"`
	Billable             bool            `json:"isBillable" yaml:"isBillable"`
}

func (p Position) Range() daterange.Range {
	return daterange.Range{Start: p.StartDate, End: p.EndDate}
}

// SearchWindow is the window candidates are ranked against. Open-ended
// positions are searched over their first 90 days.
func (p Position) SearchWindow() daterange.Range {
	return p.Range().Through(p.StartDate.AddDays(89))
}

type Allocation struct {
	ID           int64           `json:"id" yaml:"id"`
	PositionID   int64           `json:"positionId" yaml:"positionId"`
	UserID       int64           `json:"userId" yaml:"userId"`
	ProjectID    int64           `json:"projectId,omitempty" yaml:"projectId,omitempty"`
	ProjectName  string          `json:"projectName" yaml:"projectName"`
	RoleName     string          `json:"role" yaml:"role"`
	StartDate    daterange.Date  `json:"startDate" yaml:"startDate"`
	EndDate      *daterange.Date `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	Utilization  int             `json:"utilization" yaml:"utilization"`
	KTPeriodDays int             `json:"ktPeriod,omitempty" yaml:"ktPeriod,omitempty"`
	Tentative    bool            `json:"tentative,omitempty" yaml:"tentative,omitempty"`
}

func (a Allocation) Range() daterange.Range {
	return daterange.Range{Start: a.StartDate, End: a.EndDate}
}

// ActiveOn reports whether the allocation has not yet ended on day.
// Allocations that start in the future count as active.
func (a Allocation) ActiveOn(day daterange.Date) bool {
	return a.EndDate == nil || a.EndDate.IsZero() || !a.EndDate.Before(day)
}

// RunningOn reports whether day falls inside the allocation.
func (a Allocation) RunningOn(day daterange.Date) bool {
	return !day.Before(a.StartDate) && a.ActiveOn(day)
}

// KTWindow is the knowledge-transfer lead-in before the allocation starts.
func (a Allocation) KTWindow() daterange.Range {
	return daterange.Closed(a.StartDate.AddDays(-a.KTPeriodDays), a.StartDate)
}

func (a Allocation) InKTPeriod(day daterange.Date) bool {
	return a.KTPeriodDays > 0 && a.KTWindow().Contains(day)
}

// SameProject compares project identity by id when both sides carry one,
// otherwise by name.
func SameProject(aID int64, aName string, bID int64, bName string) bool {
	if aID != 0 && bID != 0 {
		return aID == bID
	}
	return aName != "" && aName == bName
}

type Candidate struct {
	ID           int64        `json:"id" yaml:"id"`
	DisplayName  string       `json:"fullNameWithExpBand" yaml:"name"`
	MatchPercent Percent      `json:"matchPercent" yaml:"matchPercent"`
	RoleName     string       `json:"role,omitempty" yaml:"role,omitempty"`
	Skills       []string     `json:"skills,omitempty" yaml:"skills,omitempty"`
	Allocations  []Allocation `json:"allocation,omitempty" yaml:"allocations,omitempty"`
}

// ActiveAllocations returns the allocations that have not ended by day.
func (c Candidate) ActiveAllocations(day daterange.Date) []Allocation {
	var active []Allocation
	for _, a := range c.Allocations {
		if a.ActiveOn(day) {
			active = append(active, a)
		}
	}
	return active
}

// StaffedPosition is a position together with every allocation bound to it.
type StaffedPosition struct {
	Position    Position     `json:"position" yaml:"position"`
	Allocations []Allocation `json:"allocations" yaml:"allocations"`
}
