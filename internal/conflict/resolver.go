// Package conflict classifies a proposed allocation before it is submitted.
package conflict

import (
	"fmt"
	"math"

	"github.com/christopherklint97/allocr/internal/daterange"
	"github.com/christopherklint97/allocr/internal/staffing"
)

type Kind int

const (
	Clean Kind = iota
	NeedsConfirmation
	Blocked
)

func (k Kind) String() string {
	switch k {
	case Clean:
		return "clean"
	case NeedsConfirmation:
		return "needs-confirmation"
	case Blocked:
		return "blocked"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

const (
	ReasonSamePosition = "already allocated to this position"
	ReasonSameRole     = "already allocated to the same role on this project"
)

// Proposal is the allocation the user wants to create.
type Proposal struct {
	Utilization  int
	Range        daterange.Range
	KTPeriodDays int
}

// Decision is the outcome of Evaluate. ResultingUtilization is set for
// NeedsConfirmation; Reason and Conflicting are set for Blocked.
type Decision struct {
	Kind                 Kind
	ResultingUtilization float64
	Reason               string
	Conflicting          *staffing.Allocation
	// CurrentUtilization is the summed utilization of the person's active
	// allocations, before the proposal.
	CurrentUtilization int
}

// Message is the text shown to the user for the decision.
func (d Decision) Message() string {
	switch d.Kind {
	case NeedsConfirmation:
		return fmt.Sprintf("Warning! The person’s total utilization will be %.0f%% if you continue with this allocation.", d.ResultingUtilization)
	case Blocked:
		return "Talent is " + d.Reason + "."
	}
	return "Allocation can be submitted."
}

// Resolver decides whether a proposal is safe to submit. It never talks to
// the network.
type Resolver struct {
	// Today returns the day allocations are judged against.
	Today          func() daterange.Date
	MaxUtilization int
}

func NewResolver(maxUtilization int) *Resolver {
	if maxUtilization <= 0 {
		maxUtilization = staffing.MaxUtilization
	}
	return &Resolver{Today: daterange.Today, MaxUtilization: maxUtilization}
}

func (r *Resolver) today() daterange.Date {
	if r.Today == nil {
		return daterange.Today()
	}
	return r.Today()
}

func (r *Resolver) max() int {
	if r.MaxUtilization <= 0 {
		return staffing.MaxUtilization
	}
	return r.MaxUtilization
}

// Evaluate classifies assigning candidate to position with the proposed
// utilization and dates.
func (r *Resolver) Evaluate(candidate staffing.Candidate, position staffing.Position, proposed Proposal) Decision {
	return r.evaluate(candidate.ActiveAllocations(r.today()), position, proposed)
}

// EvaluateChange classifies changing an existing allocation to the proposed
// values. The allocation being changed is left out of the comparison.
func (r *Resolver) EvaluateChange(candidate staffing.Candidate, position staffing.Position, allocationID int64, proposed Proposal) Decision {
	var others []staffing.Allocation
	for _, a := range candidate.ActiveAllocations(r.today()) {
		if a.ID == allocationID {
			continue
		}
		others = append(others, a)
	}
	return r.evaluate(others, position, proposed)
}

func (r *Resolver) evaluate(active []staffing.Allocation, position staffing.Position, proposed Proposal) Decision {
	for i := range active {
		a := active[i]
		if position.ID != 0 && a.PositionID == position.ID {
			return Decision{Kind: Blocked, Reason: ReasonSamePosition, Conflicting: &a}
		}
		if staffing.SameProject(a.ProjectID, a.ProjectName, position.ProjectID, position.ProjectName) &&
			a.RoleName != "" && a.RoleName == position.RoleName {
			return Decision{Kind: Blocked, Reason: ReasonSameRole, Conflicting: &a}
		}
	}

	current := 0
	for _, a := range active {
		current += a.Utilization
	}
	total := current + proposed.Utilization

	limit := position.UtilizationCap
	if limit < 0 {
		limit = 0
	}
	if total > limit {
		return Decision{
			Kind:                 NeedsConfirmation,
			ResultingUtilization: round2(float64(total) / float64(r.max()) * 100),
			CurrentUtilization:   current,
		}
	}

	return Decision{Kind: Clean, CurrentUtilization: current}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
