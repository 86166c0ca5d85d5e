package allocate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/christopherklint97/allocr/internal/daterange"
	"github.com/christopherklint97/allocr/internal/staffing"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient("secret", srv.URL, time.Minute, nil)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

const searchBody = `{
  "count": 11,
  "criteria": {"role": null, "skills": []},
  "talents": [{
    "id": 1,
    "fullNameWithExpBand": "Test Name - l1",
    "allocation": [{
      "id": 1, "projectName": "Test project", "isSameProject": true,
      "startDate": "2026-10-03", "endDate": "2026-10-26", "ktPeriod": 0, "utilization": 100
    }],
    "matchPercent": "100%",
    "role": "Test Role",
    "skills": []
  }]
}`

func TestSearchTalents(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/talents/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("position") != "5" || q.Get("relatedSuggestions") != "true" || q.Get("page") != "2" || q.Get("size") != "10" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if got := q["locations[]"]; len(got) != 2 {
			t.Errorf("locations[] = %v", got)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		io.WriteString(w, searchBody)
	})

	page, err := c.SearchTalents(context.Background(), staffing.SearchQuery{
		PositionID: 5, Related: true, Page: 2, Size: 10, Locations: []string{"Oslo", "Pune"},
	})
	if err != nil {
		t.Fatalf("SearchTalents: %v", err)
	}
	if page.Count != 11 || len(page.Candidates) != 1 {
		t.Fatalf("page = %+v", page)
	}
	cand := page.Candidates[0]
	if cand.MatchPercent != 100 || cand.RoleName != "Test Role" || cand.DisplayName != "Test Name - l1" {
		t.Errorf("candidate = %+v", cand)
	}
	if len(cand.Allocations) != 1 || cand.Allocations[0].UserID != 1 || cand.Allocations[0].Utilization != 100 {
		t.Errorf("allocations = %+v", cand.Allocations)
	}
}

const timelineBody = `{
  "project": {
    "id": 1, "name": "Test project",
    "roles": [{
      "roleName": "Test role",
      "positions": [{
        "id": 1, "startDate": "2026-10-01", "endDate": "2026-10-10",
        "skills": [{"skill": {"name": "Go"}}], "role": {"name": "Test role"}, "utilization": 100,
        "users": [{
          "id": 13, "fullNameWithExpBand": "Test employee - l1",
          "requests": [{"id": 2, "positionId": 1, "startDate": "2026-10-09", "endDate": "2026-10-10", "utilization": 50}],
          "projects": [
            {"id": 1, "positionId": 1, "projectName": "Test project", "startDate": "2026-10-01", "endDate": "2026-10-08", "utilization": 100},
            {"id": 9, "positionId": 7, "projectName": "Test project", "startDate": "2026-10-01", "utilization": 20}
          ]
        }]
      }]
    }]
  }
}`

func TestProjectPositions(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/projects/1/project-timeline/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, timelineBody)
	})

	staffed, err := c.ProjectPositions(context.Background(), 1)
	if err != nil {
		t.Fatalf("ProjectPositions: %v", err)
	}
	if len(staffed) != 1 {
		t.Fatalf("got %d positions", len(staffed))
	}
	sp := staffed[0]
	if sp.Position.RoleName != "Test role" || sp.Position.ProjectID != 1 || sp.Position.UtilizationCap != 100 {
		t.Errorf("position = %+v", sp.Position)
	}
	if len(sp.Position.Skills) != 1 || sp.Position.Skills[0] != "Go" {
		t.Errorf("skills = %v", sp.Position.Skills)
	}
	if len(sp.Allocations) != 2 {
		t.Fatalf("allocations = %+v", sp.Allocations)
	}
	if sp.Allocations[0].Tentative || !sp.Allocations[1].Tentative {
		t.Errorf("tentative flags = %v, %v", sp.Allocations[0].Tentative, sp.Allocations[1].Tentative)
	}
	if sp.Allocations[0].UserID != 13 {
		t.Errorf("UserID = %d", sp.Allocations[0].UserID)
	}

	// positions from the timeline are cached
	if _, err := c.Position(context.Background(), 1); err != nil {
		t.Fatalf("Position: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	var (
		mu  sync.Mutex
		ids []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get("X-Request-Id"))
		mu.Unlock()
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req AllocationRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decoding body on attempt %d: %v", calls.Load(), err)
		}
		io.WriteString(w, `{"id": 77}`)
	})

	end := daterange.New(2026, time.December, 31)
	alloc, err := c.CreateAllocation(context.Background(), AllocationRequest{
		User: 13, Position: 1, Utilization: 50,
		StartDate: daterange.New(2026, time.November, 1), EndDate: &end,
	}, "req-1", false)
	if err != nil {
		t.Fatalf("CreateAllocation: %v", err)
	}
	if alloc.ID != 77 || alloc.UserID != 13 {
		t.Errorf("alloc = %+v", alloc)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		if id != "req-1" {
			t.Errorf("X-Request-Id = %q, want req-1 on every attempt", id)
		}
	}
}

func TestAPIErrorDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail", 400, `{"detail": "Talent is already allocated to this position"}`, "Talent is already allocated to this position"},
		{"non field errors", 400, `{"nonFieldErrors": ["Start date is after end date"]}`, "Start date is after end date"},
		{"field errors", 400, `{"utilization": ["Ensure this value is less than or equal to 100."]}`, "utilization: Ensure this value is less than or equal to 100."},
		{"plain text", 403, `forbidden`, "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			_, err := c.CreateAllocation(context.Background(), AllocationRequest{User: 1, Position: 1}, "", false)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.Status != tt.status || apiErr.Detail != tt.want {
				t.Errorf("APIError = %+v, want %d %q", apiErr, tt.status, tt.want)
			}
		})
	}
}

func TestRequesterPaths(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
	})

	alloc, err := c.CreateAllocation(context.Background(), AllocationRequest{User: 1, Position: 2, Utilization: 10}, "", true)
	if err != nil {
		t.Fatalf("CreateAllocation: %v", err)
	}
	if !alloc.Tentative {
		t.Error("request should be tentative")
	}
	if err := c.UpdateAllocation(context.Background(), 4, AllocationChange{Utilization: 30}, true); err != nil {
		t.Fatalf("UpdateAllocation: %v", err)
	}
	direct, err := c.CreateAllocation(context.Background(), AllocationRequest{User: 1, Position: 2, Utilization: 10}, "", false)
	if err != nil {
		t.Fatalf("CreateAllocation: %v", err)
	}
	if direct.Tentative {
		t.Error("direct allocation should not be tentative")
	}

	want := []string{"POST /projects/allocation-request/", "PUT /projects/allocation-request/4/", "POST /projects/allocation/"}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestCandidateNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"detail": "Not found."}`)
	})
	_, err := c.Candidate(context.Background(), 99)
	if !errors.Is(err, staffing.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if !IsAPIError(err) {
		t.Error("APIError lost")
	}
}

func TestPositionCacheExpiry(t *testing.T) {
	cache := NewPositionCache(time.Minute)
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set(staffing.Position{ID: 1, Skills: []string{"go"}})
	got, ok := cache.Get(1)
	if !ok {
		t.Fatal("miss right after Set")
	}
	got.Skills[0] = "changed"
	again, _ := cache.Get(1)
	if again.Skills[0] != "go" {
		t.Error("cache returned shared slice")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get(1); ok {
		t.Error("hit after TTL")
	}

	off := NewPositionCache(0)
	off.Set(staffing.Position{ID: 1})
	if _, ok := off.Get(1); ok {
		t.Error("zero TTL cache stored a position")
	}
}
