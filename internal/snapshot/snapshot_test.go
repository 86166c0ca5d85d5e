package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/christopherklint97/allocr/internal/staffing"
)

func loadTeam(t *testing.T) *Snapshot {
	t.Helper()
	s, err := Load("testdata/team.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func candIDs(cs []staffing.Candidate) []int64 {
	out := make([]int64, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestSearchComputedRanking(t *testing.T) {
	s := loadTeam(t)
	ctx := context.Background()

	page, err := s.SearchTalents(ctx, staffing.SearchQuery{PositionID: 1, Page: 1, Size: 10})
	if err != nil {
		t.Fatalf("SearchTalents: %v", err)
	}
	// Linus is fully booked during the search window.
	got := candIDs(page.Candidates)
	if len(got) != 2 || got[0] != 13 || got[1] != 14 {
		t.Fatalf("primary = %v, want [13 14]", got)
	}
	if page.Candidates[0].MatchPercent != 100 || page.Candidates[1].MatchPercent != 50 {
		t.Errorf("percents = %v, %v", page.Candidates[0].MatchPercent, page.Candidates[1].MatchPercent)
	}
	if page.Criteria == nil || page.Criteria.RoleName != "Developer" {
		t.Errorf("criteria = %+v", page.Criteria)
	}

	related, err := s.SearchTalents(ctx, staffing.SearchQuery{PositionID: 1, Related: true})
	if err != nil {
		t.Fatalf("SearchTalents related: %v", err)
	}
	if got := candIDs(related.Candidates); len(got) != 1 || got[0] != 16 {
		t.Errorf("secondary = %v, want [16]", got)
	}
}

func TestSearchFixedRanking(t *testing.T) {
	s := loadTeam(t)
	page, err := s.SearchTalents(context.Background(), staffing.SearchQuery{PositionID: 2})
	if err != nil {
		t.Fatalf("SearchTalents: %v", err)
	}
	if got := candIDs(page.Candidates); len(got) != 2 || got[0] != 16 || got[1] != 13 {
		t.Fatalf("ranking = %v", got)
	}
	if page.Candidates[0].MatchPercent != 90 || page.Candidates[1].MatchPercent != 75 {
		t.Errorf("percents = %v", page.Candidates)
	}
}

func TestSearchPagingAndFilters(t *testing.T) {
	s := loadTeam(t)
	ctx := context.Background()

	first, _ := s.SearchTalents(ctx, staffing.SearchQuery{Page: 1, Size: 3})
	second, _ := s.SearchTalents(ctx, staffing.SearchQuery{Page: 2, Size: 3})
	beyond, _ := s.SearchTalents(ctx, staffing.SearchQuery{Page: 5, Size: 3})
	if first.Count != 4 || len(first.Candidates) != 3 || len(second.Candidates) != 1 {
		t.Errorf("pages = %d/%d of %d", len(first.Candidates), len(second.Candidates), first.Count)
	}
	if beyond.Count != 4 || len(beyond.Candidates) != 0 {
		t.Errorf("beyond = %+v", beyond)
	}

	oslo, _ := s.SearchTalents(ctx, staffing.SearchQuery{PositionID: 1, Locations: []string{"oslo"}})
	if got := candIDs(oslo.Candidates); len(got) != 1 || got[0] != 13 {
		t.Errorf("oslo = %v", got)
	}
	grace, _ := s.SearchTalents(ctx, staffing.SearchQuery{PositionID: 1, Search: "grace"})
	if got := candIDs(grace.Candidates); len(got) != 1 || got[0] != 14 {
		t.Errorf("search = %v", got)
	}
}

func TestProjectPositions(t *testing.T) {
	s := loadTeam(t)
	staffed, err := s.ProjectPositions(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProjectPositions: %v", err)
	}
	if len(staffed) != 2 {
		t.Fatalf("got %d positions", len(staffed))
	}
	designer := staffed[1]
	if designer.Position.ID != 2 || len(designer.Allocations) != 1 || designer.Allocations[0].UserID != 13 {
		t.Errorf("designer = %+v", designer)
	}
	if !designer.Position.Range().IsOpen() {
		t.Error("designer position should be open-ended")
	}

	if _, err := s.ProjectPositions(context.Background(), 99); !errors.Is(err, staffing.ErrNotFound) {
		t.Errorf("missing project err = %v", err)
	}
}

func TestCandidateLookup(t *testing.T) {
	s := loadTeam(t)
	c, err := s.Candidate(context.Background(), 13)
	if err != nil {
		t.Fatalf("Candidate: %v", err)
	}
	if c.DisplayName != "Ada Lovelace - E4" || len(c.Allocations) != 1 || c.Allocations[0].UserID != 13 {
		t.Errorf("candidate = %+v", c)
	}
	if _, err := s.Candidate(context.Background(), 404); !errors.Is(err, staffing.ErrNotFound) {
		t.Errorf("missing candidate err = %v", err)
	}
}

func TestDecodeJSON(t *testing.T) {
	raw := `{
	  "positions": [{"id": 1, "projectName": "Apollo", "role": "Developer", "startDate": "2026-11-01", "utilization": 100, "isBillable": true}],
	  "candidates": [{"id": 7, "fullNameWithExpBand": "Ada", "matchPercent": "88%", "role": "Developer", "location": "Oslo"}]
	}`
	s, err := Decode(strings.NewReader(raw), "json")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	page, _ := s.SearchTalents(context.Background(), staffing.SearchQuery{PositionID: 1})
	if len(page.Candidates) != 1 || page.Candidates[0].MatchPercent != 88 {
		t.Errorf("page = %+v", page)
	}

	if _, err := Decode(strings.NewReader(`{"positons": []}`), "json"); err == nil {
		t.Error("unknown field accepted")
	}
	if _, err := Decode(strings.NewReader(`{}`), "toml"); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestSchema(t *testing.T) {
	out, err := Schema()
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	props, ok := doc["properties"].(map[string]any)
	if !ok {
		t.Fatalf("no properties in %s", out)
	}
	for _, key := range []string{"positions", "candidates", "rankings"} {
		if _, ok := props[key]; !ok {
			t.Errorf("schema missing %q", key)
		}
	}
}
