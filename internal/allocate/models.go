package allocate

import (
	"encoding/json"

	"github.com/christopherklint97/allocr/internal/daterange"
	"github.com/christopherklint97/allocr/internal/staffing"
)

// named decodes fields the service sends either as a plain string or as an
// object with a name, e.g. "role": "Developer" or "role": {"name": "Developer"}.
type named string

func (n *named) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = named(s)
		return nil
	}
	var obj struct {
		Name  string `json:"name"`
		Skill *struct {
			Name string `json:"name"`
		} `json:"skill"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Name == "" && obj.Skill != nil {
		obj.Name = obj.Skill.Name
	}
	*n = named(obj.Name)
	return nil
}

func names(ns []named) []string {
	if len(ns) == 0 {
		return nil
	}
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		if n != "" {
			out = append(out, string(n))
		}
	}
	return out
}

type wirePosition struct {
	ID                   int64           `json:"id"`
	Project              *wireProjectRef `json:"project"`
	ProjectID            int64           `json:"projectId"`
	ProjectName          string          `json:"projectName"`
	Role                 named           `json:"role"`
	StartDate            daterange.Date  `json:"startDate"`
	EndDate              *daterange.Date `json:"endDate"`
	Utilization          int             `json:"utilization"`
	Skills               []named         `json:"skills"`
	ExperienceRangeStart int             `json:"experienceRangeStart"`
	ExperienceRangeEnd   int             `json:"experienceRangeEnd"`
	IsBillable           bool            `json:"isBillable"`
	Users                []wireUser      `json:"users"`
}

// wireProjectRef is either a bare project id or a nested project object.
type wireProjectRef struct {
	ID   int64
	Name string
}

func (p *wireProjectRef) UnmarshalJSON(data []byte) error {
	var id int64
	if err := json.Unmarshal(data, &id); err == nil {
		p.ID = id
		return nil
	}
	var obj struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.ID, p.Name = obj.ID, obj.Name
	return nil
}

func (w wirePosition) toPosition() staffing.Position {
	p := staffing.Position{
		ID:                   w.ID,
		ProjectID:            w.ProjectID,
		ProjectName:          w.ProjectName,
		RoleName:             string(w.Role),
		StartDate:            w.StartDate,
		EndDate:              w.EndDate,
		UtilizationCap:       w.Utilization,
		Skills:               names(w.Skills),
		ExperienceRangeStart: w.ExperienceRangeStart,
		ExperienceRangeEnd:   w.ExperienceRangeEnd,
		Billable:             w.IsBillable,
	}
	if w.Project != nil {
		if p.ProjectID == 0 {
			p.ProjectID = w.Project.ID
		}
		if p.ProjectName == "" {
			p.ProjectName = w.Project.Name
		}
	}
	return p
}

type wireAllocation struct {
	ID          int64           `json:"id"`
	PositionID  int64           `json:"positionId"`
	User        int64           `json:"user"`
	ProjectID   int64           `json:"projectId"`
	ProjectName string          `json:"projectName"`
	Role        named           `json:"role"`
	StartDate   daterange.Date  `json:"startDate"`
	EndDate     *daterange.Date `json:"endDate"`
	Utilization int             `json:"utilization"`
	KTPeriod    int             `json:"ktPeriod"`
	Tentative   bool            `json:"tentative"`
}

func (w wireAllocation) toAllocation(userID int64) staffing.Allocation {
	if w.User != 0 {
		userID = w.User
	}
	return staffing.Allocation{
		ID:           w.ID,
		PositionID:   w.PositionID,
		UserID:       userID,
		ProjectID:    w.ProjectID,
		ProjectName:  w.ProjectName,
		RoleName:     string(w.Role),
		StartDate:    w.StartDate,
		EndDate:      w.EndDate,
		Utilization:  w.Utilization,
		KTPeriodDays: w.KTPeriod,
		Tentative:    w.Tentative,
	}
}

// wireUser is a person as listed on a position or returned by /users/{id}/.
// Projects are confirmed allocations, requests are pending ones.
type wireUser struct {
	ID                  int64            `json:"id"`
	FullNameWithExpBand string           `json:"fullNameWithExpBand"`
	Role                named            `json:"role"`
	Skills              []named          `json:"skills"`
	Projects            []wireAllocation `json:"projects"`
	Requests            []wireAllocation `json:"requests"`
}

func (w wireUser) allocations() []staffing.Allocation {
	out := make([]staffing.Allocation, 0, len(w.Projects)+len(w.Requests))
	for _, a := range w.Projects {
		out = append(out, a.toAllocation(w.ID))
	}
	for _, a := range w.Requests {
		alloc := a.toAllocation(w.ID)
		alloc.Tentative = true
		out = append(out, alloc)
	}
	return out
}

func (w wireUser) toCandidate() staffing.Candidate {
	return staffing.Candidate{
		ID:          w.ID,
		DisplayName: w.FullNameWithExpBand,
		RoleName:    string(w.Role),
		Skills:      names(w.Skills),
		Allocations: w.allocations(),
	}
}

type wireTalent struct {
	ID                  int64            `json:"id"`
	FullNameWithExpBand string           `json:"fullNameWithExpBand"`
	MatchPercent        staffing.Percent `json:"matchPercent"`
	Role                named            `json:"role"`
	Skills              []named          `json:"skills"`
	Allocation          []wireAllocation `json:"allocation"`
}

func (w wireTalent) toCandidate() staffing.Candidate {
	c := staffing.Candidate{
		ID:           w.ID,
		DisplayName:  w.FullNameWithExpBand,
		MatchPercent: w.MatchPercent,
		RoleName:     string(w.Role),
		Skills:       names(w.Skills),
	}
	for _, a := range w.Allocation {
		c.Allocations = append(c.Allocations, a.toAllocation(w.ID))
	}
	return c
}

type searchResponse struct {
	Criteria *wirePosition `json:"criteria"`
	Talents  []wireTalent  `json:"talents"`
	Count    int           `json:"count"`
}

type timelineResponse struct {
	Project struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Roles []struct {
			RoleName  string         `json:"roleName"`
			Positions []wirePosition `json:"positions"`
		} `json:"roles"`
	} `json:"project"`
}

// staffed flattens the timeline into positions with the allocations bound
// to each of them.
func (t timelineResponse) staffed() []staffing.StaffedPosition {
	var out []staffing.StaffedPosition
	for _, role := range t.Project.Roles {
		for _, wp := range role.Positions {
			p := wp.toPosition()
			if p.ProjectID == 0 {
				p.ProjectID = t.Project.ID
			}
			if p.ProjectName == "" {
				p.ProjectName = t.Project.Name
			}
			if p.RoleName == "" {
				p.RoleName = role.RoleName
			}

			sp := staffing.StaffedPosition{Position: p}
			for _, u := range wp.Users {
				for _, a := range u.allocations() {
					if a.PositionID != 0 && a.PositionID != p.ID {
						continue
					}
					a.PositionID = p.ID
					if a.ProjectID == 0 {
						a.ProjectID = p.ProjectID
					}
					if a.ProjectName == "" {
						a.ProjectName = p.ProjectName
					}
					if a.RoleName == "" {
						a.RoleName = p.RoleName
					}
					sp.Allocations = append(sp.Allocations, a)
				}
			}
			out = append(out, sp)
		}
	}
	return out
}

// AllocationRequest is the body of a new allocation or allocation request.
type AllocationRequest struct {
	User        int64           `json:"user"`
	Position    int64           `json:"position"`
	Utilization int             `json:"utilization"`
	StartDate   daterange.Date  `json:"startDate"`
	EndDate     *daterange.Date `json:"endDate,omitempty"`
	KTPeriod    int             `json:"ktPeriod"`
}

// AllocationChange updates utilization and end date of an allocation.
type AllocationChange struct {
	User        int64           `json:"user,omitempty"`
	Utilization int             `json:"utilization"`
	StartDate   *daterange.Date `json:"startDate,omitempty"`
	EndDate     *daterange.Date `json:"endDate,omitempty"`
}
