// Package snapshot serves staffing data from a local JSON or YAML file so
// the tool can be used without the staffing service.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/christopherklint97/allocr/internal/daterange"
	"github.com/christopherklint97/allocr/internal/staffing"
)

const defaultPageSize = 10

// File is the on-disk layout of a snapshot.
type File struct {
	Positions  []staffing.Position `json:"positions" yaml:"positions" jsonschema:"description=Project positions"`
	Candidates []Person            `json:"candidates" yaml:"candidates" jsonschema:"description=People who can be allocated"`
	// Rankings fixes the order of search results per position. Positions
	// without a ranking are ranked by skill overlap.
	Rankings []Ranking `json:"rankings,omitempty" yaml:"rankings,omitempty"`
}

// Person is a candidate plus the attributes the search filters on.
type Person struct {
	staffing.Candidate `yaml:",inline"`
	Location           string `json:"location,omitempty" yaml:"location,omitempty"`
}

type Ranking struct {
	Position  int64    `json:"position" yaml:"position"`
	Primary   []Ranked `json:"primary,omitempty" yaml:"primary,omitempty"`
	Secondary []Ranked `json:"secondary,omitempty" yaml:"secondary,omitempty"`
}

type Ranked struct {
	ID           int64            `json:"id" yaml:"id"`
	MatchPercent staffing.Percent `json:"matchPercent" yaml:"matchPercent"`
}

// Snapshot implements staffing.Source over a File.
type Snapshot struct {
	file      File
	positions map[int64]staffing.Position
	people    map[int64]Person
	rankings  map[int64]Ranking
}

var _ staffing.Source = (*Snapshot)(nil)

func New(f File) *Snapshot {
	s := &Snapshot{
		file:      f,
		positions: make(map[int64]staffing.Position, len(f.Positions)),
		people:    make(map[int64]Person, len(f.Candidates)),
		rankings:  make(map[int64]Ranking, len(f.Rankings)),
	}
	for _, p := range f.Positions {
		s.positions[p.ID] = p
	}
	for _, c := range f.Candidates {
		s.people[c.ID] = c
	}
	for _, r := range f.Rankings {
		s.rankings[r.Position] = r
	}
	return s
}

// Load reads a snapshot, choosing the format by file extension.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return Decode(bytes.NewReader(data), format)
}

func Decode(r io.Reader, format string) (*Snapshot, error) {
	var f File
	switch format {
	case "yaml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && err != io.EOF {
			return nil, fmt.Errorf("parsing snapshot yaml: %w", err)
		}
	case "json":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parsing snapshot json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown snapshot format %q", format)
	}
	return New(f), nil
}

// Schema returns the JSON Schema of the snapshot file.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(&File{})
	s.Title = "allocr snapshot"
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	return out, nil
}

func (s *Snapshot) Position(_ context.Context, id int64) (*staffing.Position, error) {
	p, ok := s.positions[id]
	if !ok {
		return nil, fmt.Errorf("position %d: %w", id, staffing.ErrNotFound)
	}
	return &p, nil
}

func (s *Snapshot) ProjectPositions(_ context.Context, projectID int64) ([]staffing.StaffedPosition, error) {
	var out []staffing.StaffedPosition
	for _, p := range s.file.Positions {
		if p.ProjectID != projectID {
			continue
		}
		sp := staffing.StaffedPosition{Position: p}
		for _, c := range s.file.Candidates {
			for _, a := range c.Allocations {
				if a.PositionID != p.ID {
					continue
				}
				if a.UserID == 0 {
					a.UserID = c.ID
				}
				sp.Allocations = append(sp.Allocations, a)
			}
		}
		out = append(out, sp)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("project %d: %w", projectID, staffing.ErrNotFound)
	}
	return out, nil
}

func (s *Snapshot) Candidate(_ context.Context, userID int64) (*staffing.Candidate, error) {
	p, ok := s.people[userID]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, staffing.ErrNotFound)
	}
	c := withOwner(p.Candidate)
	return &c, nil
}

// SearchTalents pages through the ranked candidates of one channel the way
// the service does: Count is the total across pages.
func (s *Snapshot) SearchTalents(_ context.Context, q staffing.SearchQuery) (*staffing.SearchPage, error) {
	page := &staffing.SearchPage{}

	var ranked []staffing.Candidate
	if q.PositionID != 0 {
		p, ok := s.positions[q.PositionID]
		if !ok {
			return nil, fmt.Errorf("position %d: %w", q.PositionID, staffing.ErrNotFound)
		}
		page.Criteria = &p
		ranked = s.rank(p, q.Related)
	} else if !q.Related {
		ranked = s.everyone()
	}

	ranked = filter(ranked, q.Search, q.Locations, s.people)
	page.Count = len(ranked)

	size := q.Size
	if size <= 0 {
		size = defaultPageSize
	}
	number := max(q.Page, 1)
	start := (number - 1) * size
	if start >= len(ranked) {
		page.Candidates = []staffing.Candidate{}
		return page, nil
	}
	end := min(start+size, len(ranked))
	page.Candidates = ranked[start:end]
	return page, nil
}

func (s *Snapshot) rank(p staffing.Position, related bool) []staffing.Candidate {
	if r, ok := s.rankings[p.ID]; ok {
		list := r.Primary
		if related {
			list = r.Secondary
		}
		out := make([]staffing.Candidate, 0, len(list))
		for _, entry := range list {
			person, ok := s.people[entry.ID]
			if !ok {
				continue
			}
			c := withOwner(person.Candidate)
			c.MatchPercent = entry.MatchPercent
			out = append(out, c)
		}
		return out
	}

	window := p.SearchWindow()
	var out []staffing.Candidate
	for _, person := range s.file.Candidates {
		sameRole := strings.EqualFold(person.RoleName, p.RoleName)
		if sameRole == related {
			continue
		}
		if load(person.Candidate, window) >= staffing.MaxUtilization {
			continue
		}
		c := withOwner(person.Candidate)
		if c.MatchPercent == 0 {
			c.MatchPercent = skillMatch(p.Skills, c.Skills)
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MatchPercent > out[j].MatchPercent })
	return out
}

func (s *Snapshot) everyone() []staffing.Candidate {
	out := make([]staffing.Candidate, 0, len(s.file.Candidates))
	for _, p := range s.file.Candidates {
		out = append(out, withOwner(p.Candidate))
	}
	return out
}

// load sums the utilization of confirmed allocations overlapping window.
func load(c staffing.Candidate, window daterange.Range) int {
	total := 0
	for _, a := range c.Allocations {
		if a.Tentative {
			continue
		}
		if daterange.Overlaps(a.Range(), window) {
			total += a.Utilization
		}
	}
	return total
}

func skillMatch(required, have []string) staffing.Percent {
	if len(required) == 0 {
		return 100
	}
	owned := make(map[string]bool, len(have))
	for _, s := range have {
		owned[strings.ToLower(s)] = true
	}
	hits := 0
	for _, s := range required {
		if owned[strings.ToLower(s)] {
			hits++
		}
	}
	return staffing.Percent(hits * 100 / len(required))
}

func filter(cands []staffing.Candidate, search string, locations []string, people map[int64]Person) []staffing.Candidate {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" && len(locations) == 0 {
		return cands
	}
	var out []staffing.Candidate
	for _, c := range cands {
		if search != "" && !matchesText(c, search) {
			continue
		}
		if len(locations) > 0 && !inLocations(people[c.ID].Location, locations) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func matchesText(c staffing.Candidate, search string) bool {
	if strings.Contains(strings.ToLower(c.DisplayName), search) {
		return true
	}
	for _, s := range c.Skills {
		if strings.Contains(strings.ToLower(s), search) {
			return true
		}
	}
	return false
}

func inLocations(loc string, locations []string) bool {
	for _, l := range locations {
		if strings.EqualFold(loc, l) {
			return true
		}
	}
	return false
}

// withOwner copies c and stamps its id on allocations that omit the user.
func withOwner(c staffing.Candidate) staffing.Candidate {
	allocs := make([]staffing.Allocation, len(c.Allocations))
	for i, a := range c.Allocations {
		if a.UserID == 0 {
			a.UserID = c.ID
		}
		allocs[i] = a
	}
	c.Allocations = allocs
	return c
}
