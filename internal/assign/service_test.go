package assign

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/christopherklint97/allocr/internal/allocate"
	"github.com/christopherklint97/allocr/internal/conflict"
	"github.com/christopherklint97/allocr/internal/daterange"
	"github.com/christopherklint97/allocr/internal/staffing"
	"github.com/christopherklint97/allocr/internal/store"
)

type fakeSubmitter struct {
	created   []allocate.AllocationRequest
	ids       []string
	updated   []int64
	requester []bool
	err       error
}

func (f *fakeSubmitter) CreateAllocation(_ context.Context, req allocate.AllocationRequest, requestID string, requester bool) (*staffing.Allocation, error) {
	f.created = append(f.created, req)
	f.ids = append(f.ids, requestID)
	f.requester = append(f.requester, requester)
	if f.err != nil {
		return nil, f.err
	}
	return &staffing.Allocation{ID: 500 + int64(len(f.created)), UserID: req.User, PositionID: req.Position}, nil
}

func (f *fakeSubmitter) UpdateAllocation(_ context.Context, id int64, _ allocate.AllocationChange, requester bool) error {
	f.updated = append(f.updated, id)
	f.requester = append(f.requester, requester)
	return f.err
}

var today = daterange.New(2026, time.October, 18)

func date(m time.Month, d int) daterange.Date { return daterange.New(2026, m, d) }

func newService(t *testing.T, sub *fakeSubmitter) (*Service, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "allocr.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	resolver := conflict.NewResolver(100)
	resolver.Today = func() daterange.Date { return today }

	svc := NewService(sub, db, resolver, nil)
	n := 0
	svc.newRequestID = func() string {
		n++
		return fmt.Sprintf("req-%d", n)
	}
	return svc, db
}

var position = staffing.Position{ID: 1, ProjectID: 9, ProjectName: "Apollo", RoleName: "Developer", StartDate: date(time.November, 1), UtilizationCap: 100}

func proposal(util int) conflict.Proposal {
	end := date(time.December, 31)
	return conflict.Proposal{Utilization: util, Range: daterange.Closed(date(time.November, 1), end)}
}

func TestProposeClean(t *testing.T) {
	sub := &fakeSubmitter{}
	svc, db := newService(t, sub)

	out, err := svc.Propose(context.Background(), staffing.Candidate{ID: 13, DisplayName: "Ada"}, position, proposal(40))
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if out.Status != store.StatusSubmitted || out.Allocation == nil || out.Allocation.ID != 501 {
		t.Errorf("outcome = %+v", out)
	}
	if len(sub.created) != 1 || sub.ids[0] != "req-1" {
		t.Fatalf("created = %+v ids = %v", sub.created, sub.ids)
	}

	rec, err := db.GetSubmission(out.SubmissionID)
	if err != nil || rec == nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if rec.Status != store.StatusSubmitted || rec.AllocationID != 501 || rec.Decision != "clean" || rec.UserName != "Ada" {
		t.Errorf("record = %+v", rec)
	}
}

func TestProposeNeedsConfirmation(t *testing.T) {
	sub := &fakeSubmitter{}
	svc, db := newService(t, sub)

	busy := staffing.Candidate{ID: 13, Allocations: []staffing.Allocation{
		{ID: 3, PositionID: 8, ProjectName: "Other", StartDate: date(time.January, 1), Utilization: 60},
	}}
	out, err := svc.Propose(context.Background(), busy, position, proposal(50))
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if out.Pending == nil || out.Status != store.StatusPending {
		t.Fatalf("outcome = %+v, want pending", out)
	}
	if out.Decision.ResultingUtilization != 110 {
		t.Errorf("ResultingUtilization = %v", out.Decision.ResultingUtilization)
	}
	if len(sub.created) != 0 {
		t.Fatal("pending proposal was submitted")
	}

	confirmed, err := svc.Confirm(context.Background(), out.Pending)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != store.StatusSubmitted || len(sub.created) != 1 || sub.created[0].Utilization != 50 {
		t.Errorf("confirm = %+v, created = %+v", confirmed, sub.created)
	}

	again, _ := svc.Propose(context.Background(), busy, position, proposal(50))
	declined, err := svc.Decline(again.Pending)
	if err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if len(sub.created) != 1 {
		t.Error("declined proposal was submitted")
	}
	rec, _ := db.GetSubmission(declined.SubmissionID)
	if rec == nil || rec.Status != store.StatusDeclined || rec.Decision != "needs-confirmation" {
		t.Errorf("declined record = %+v", rec)
	}
}

func TestProposeBlockedStillSubmits(t *testing.T) {
	sub := &fakeSubmitter{err: &allocate.APIError{Status: 400, Detail: "Talent is already allocated"}}
	svc, db := newService(t, sub)

	already := staffing.Candidate{ID: 13, Allocations: []staffing.Allocation{
		{ID: 3, PositionID: 1, StartDate: date(time.January, 1), Utilization: 20},
	}}
	out, err := svc.Propose(context.Background(), already, position, proposal(20))
	if out.Decision.Kind != conflict.Blocked {
		t.Fatalf("decision = %v, want blocked", out.Decision.Kind)
	}
	if !allocate.IsAPIError(err) {
		t.Fatalf("err = %v, want service error", err)
	}
	if len(sub.created) != 1 {
		t.Error("blocked proposal not sent to the service")
	}
	if out.Status != store.StatusRejected || out.Detail != "Talent is already allocated" {
		t.Errorf("outcome = %+v", out)
	}
	failed, _ := db.FailedSubmissions()
	if len(failed) != 0 {
		t.Error("rejection recorded as retryable failure")
	}
}

func TestRetryFailed(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("dial tcp: connection refused")}
	svc, db := newService(t, sub)

	out, err := svc.Propose(context.Background(), staffing.Candidate{ID: 13}, position, proposal(30))
	if err == nil || out.Status != store.StatusFailed {
		t.Fatalf("outcome = %+v, err = %v", out, err)
	}

	sub.err = nil
	res, err := svc.RetryFailed(context.Background())
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if res.Attempted != 1 || res.Submitted != 1 {
		t.Errorf("result = %+v", res)
	}
	if sub.ids[1] != sub.ids[0] {
		t.Errorf("retry used request id %q, want %q", sub.ids[1], sub.ids[0])
	}
	failed, _ := db.FailedSubmissions()
	if len(failed) != 0 {
		t.Errorf("still failed: %+v", failed)
	}
}

func TestRetryKeepsRequesterMode(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("dial tcp: connection refused")}
	svc, _ := newService(t, sub)
	svc.Requester = true

	if _, err := svc.Propose(context.Background(), staffing.Candidate{ID: 13}, position, proposal(30)); err == nil {
		t.Fatal("Propose: want transport error")
	}

	svc.Requester = false
	sub.err = nil
	res, err := svc.RetryFailed(context.Background())
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if res.Submitted != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(sub.requester) != 2 || !sub.requester[0] || !sub.requester[1] {
		t.Errorf("requester per call = %v, want [true true]", sub.requester)
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   string
	}{
		{"bad gateway", 502, store.StatusFailed},
		{"unavailable", 503, store.StatusFailed},
		{"throttled", 429, store.StatusFailed},
		{"bad request", 400, store.StatusRejected},
		{"forbidden", 403, store.StatusRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{err: &allocate.APIError{Status: tt.status, Detail: "<html>bad gateway</html>"}}
			svc, db := newService(t, sub)

			out, _ := svc.Propose(context.Background(), staffing.Candidate{ID: 13}, position, proposal(30))
			if out.Status != tt.want {
				t.Errorf("status = %q, want %q", out.Status, tt.want)
			}
			failed, err := db.FailedSubmissions()
			if err != nil {
				t.Fatalf("FailedSubmissions: %v", err)
			}
			if wantQueued := tt.want == store.StatusFailed; (len(failed) == 1) != wantQueued {
				t.Errorf("queued for retry = %d, want %t", len(failed), wantQueued)
			}
		})
	}
}

func TestAdjust(t *testing.T) {
	sub := &fakeSubmitter{}
	svc, _ := newService(t, sub)

	cand := staffing.Candidate{ID: 13, Allocations: []staffing.Allocation{
		{ID: 3, PositionID: 1, ProjectID: 9, RoleName: "Developer", StartDate: date(time.October, 1), Utilization: 50},
		{ID: 4, PositionID: 8, StartDate: date(time.October, 1), Utilization: 50},
	}}

	out, err := svc.Adjust(context.Background(), cand, position, 3, proposal(40))
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if out.Decision.Kind != conflict.Clean || len(sub.updated) != 1 || sub.updated[0] != 3 {
		t.Errorf("outcome = %+v, updated = %v", out, sub.updated)
	}

	out, err = svc.Adjust(context.Background(), cand, position, 3, proposal(80))
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if out.Pending == nil || !out.Pending.IsChange() {
		t.Fatalf("outcome = %+v, want pending change", out)
	}
	if _, err := svc.Confirm(context.Background(), out.Pending); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if len(sub.updated) != 2 || len(sub.created) != 0 {
		t.Errorf("updated = %v created = %v", sub.updated, sub.created)
	}
}

func TestValidation(t *testing.T) {
	svc, _ := newService(t, &fakeSubmitter{})
	ctx := context.Background()
	cand := staffing.Candidate{ID: 1}

	if _, err := svc.Propose(ctx, cand, position, proposal(0)); !errors.Is(err, ErrInvalidUtilization) {
		t.Errorf("zero utilization err = %v", err)
	}
	if _, err := svc.Propose(ctx, cand, position, conflict.Proposal{Utilization: 10}); !errors.Is(err, ErrMissingStart) {
		t.Errorf("missing start err = %v", err)
	}
	bad := conflict.Proposal{Utilization: 10, Range: daterange.Closed(date(time.December, 1), date(time.November, 1))}
	if _, err := svc.Propose(ctx, cand, position, bad); !errors.Is(err, ErrEndBeforeStart) {
		t.Errorf("end before start err = %v", err)
	}
}
