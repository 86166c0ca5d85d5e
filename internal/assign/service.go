// Package assign runs the add-to-position and manage-talent workflows:
// classify the proposal, submit it or hold it for confirmation, and keep a
// record of every submission.
package assign

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/christopherklint97/allocr/internal/allocate"
	"github.com/christopherklint97/allocr/internal/conflict"
	"github.com/christopherklint97/allocr/internal/daterange"
	"github.com/christopherklint97/allocr/internal/staffing"
	"github.com/christopherklint97/allocr/internal/store"
)

var (
	ErrInvalidUtilization = errors.New("utilization must be between 1 and 100")
	ErrMissingStart       = errors.New("start date is required")
	ErrEndBeforeStart     = errors.New("end date is before start date")
)

// Submitter sends allocations to the staffing service.
type Submitter interface {
	CreateAllocation(ctx context.Context, req allocate.AllocationRequest, requestID string, requester bool) (*staffing.Allocation, error)
	UpdateAllocation(ctx context.Context, allocationID int64, change allocate.AllocationChange, requester bool) error
}

// Recorder keeps the submission log.
type Recorder interface {
	InsertSubmission(s *store.Submission) (int64, error)
	UpdateSubmissionStatus(id int64, status, detail string, allocationID int64) error
	FailedSubmissions() ([]store.Submission, error)
}

type Service struct {
	submitter Submitter
	records   Recorder
	resolver  *conflict.Resolver
	logger    *slog.Logger

	// Requester is recorded with each submission and decides its endpoint,
	// including when the submission is retried later.
	Requester bool

	newRequestID func() string
}

func NewService(submitter Submitter, records Recorder, resolver *conflict.Resolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if resolver == nil {
		resolver = conflict.NewResolver(staffing.MaxUtilization)
	}
	return &Service{
		submitter:    submitter,
		records:      records,
		resolver:     resolver,
		logger:       logger,
		newRequestID: uuid.NewString,
	}
}

// Pending is a proposal held back until the user confirms it.
type Pending struct {
	Candidate staffing.Candidate
	Position  staffing.Position
	Proposal  conflict.Proposal
	Decision  conflict.Decision

	allocationID int64
}

// IsChange reports whether the pending proposal modifies an existing
// allocation.
func (p *Pending) IsChange() bool { return p.allocationID != 0 }

// Outcome describes what happened to a proposal. Pending is set when the
// proposal waits for confirmation; Allocation is set after a successful
// create.
type Outcome struct {
	Decision     conflict.Decision
	Status       string
	Detail       string
	SubmissionID int64
	Allocation   *staffing.Allocation
	Pending      *Pending
}

func validate(p conflict.Proposal) error {
	if p.Utilization < 1 || p.Utilization > staffing.MaxUtilization {
		return ErrInvalidUtilization
	}
	if p.Range.Start.IsZero() {
		return ErrMissingStart
	}
	if !p.Range.IsOpen() && p.Range.End.Before(p.Range.Start) {
		return ErrEndBeforeStart
	}
	return nil
}

// Propose evaluates assigning candidate to position. Clean and Blocked
// proposals are submitted right away; the service reports the specific
// error for Blocked ones. NeedsConfirmation proposals are returned as
// Pending.
func (s *Service) Propose(ctx context.Context, candidate staffing.Candidate, position staffing.Position, proposal conflict.Proposal) (Outcome, error) {
	if err := validate(proposal); err != nil {
		return Outcome{}, err
	}

	decision := s.resolver.Evaluate(candidate, position, proposal)
	s.logger.Info("proposal evaluated",
		"user", candidate.ID, "position", position.ID,
		"utilization", proposal.Utilization, "decision", decision.Kind.String(),
		"resulting", decision.ResultingUtilization)

	p := &Pending{Candidate: candidate, Position: position, Proposal: proposal, Decision: decision}
	if decision.Kind == conflict.NeedsConfirmation {
		return Outcome{Decision: decision, Status: store.StatusPending, Pending: p}, nil
	}
	return s.submit(ctx, p)
}

// Adjust evaluates changing utilization and end date of an existing
// allocation against the person's other allocations.
func (s *Service) Adjust(ctx context.Context, candidate staffing.Candidate, position staffing.Position, allocationID int64, proposal conflict.Proposal) (Outcome, error) {
	if allocationID == 0 {
		return Outcome{}, fmt.Errorf("allocation id is required")
	}
	if err := validate(proposal); err != nil {
		return Outcome{}, err
	}

	decision := s.resolver.EvaluateChange(candidate, position, allocationID, proposal)
	s.logger.Info("change evaluated",
		"user", candidate.ID, "allocation", allocationID,
		"utilization", proposal.Utilization, "decision", decision.Kind.String())

	p := &Pending{Candidate: candidate, Position: position, Proposal: proposal, Decision: decision, allocationID: allocationID}
	if decision.Kind == conflict.NeedsConfirmation {
		return Outcome{Decision: decision, Status: store.StatusPending, Pending: p}, nil
	}
	return s.submit(ctx, p)
}

// Confirm submits a pending proposal unchanged.
func (s *Service) Confirm(ctx context.Context, p *Pending) (Outcome, error) {
	if p == nil {
		return Outcome{}, fmt.Errorf("nothing to confirm")
	}
	return s.submit(ctx, p)
}

// Decline discards a pending proposal. The refusal is recorded but nothing
// is sent.
func (s *Service) Decline(p *Pending) (Outcome, error) {
	if p == nil {
		return Outcome{}, fmt.Errorf("nothing to decline")
	}
	sub := s.submission(p, store.StatusDeclined)
	if _, err := s.records.InsertSubmission(sub); err != nil {
		return Outcome{}, fmt.Errorf("recording declined proposal: %w", err)
	}
	s.logger.Info("proposal declined", "user", p.Candidate.ID, "position", p.Position.ID)
	return Outcome{Decision: p.Decision, Status: store.StatusDeclined, SubmissionID: sub.ID}, nil
}

func (s *Service) submission(p *Pending, status string) *store.Submission {
	kind := store.KindCreate
	if p.IsChange() {
		kind = store.KindUpdate
	}
	return &store.Submission{
		RequestID:    s.newRequestID(),
		Kind:         kind,
		AllocationID: p.allocationID,
		UserID:       p.Candidate.ID,
		UserName:     p.Candidate.DisplayName,
		PositionID:   p.Position.ID,
		Utilization:  p.Proposal.Utilization,
		StartDate:    p.Proposal.Range.Start,
		EndDate:      p.Proposal.Range.End,
		KTPeriod:     p.Proposal.KTPeriodDays,
		Requester:    s.Requester,
		Decision:     p.Decision.Kind.String(),
		Status:       status,
	}
}

func (s *Service) submit(ctx context.Context, p *Pending) (Outcome, error) {
	sub := s.submission(p, store.StatusPending)
	if _, err := s.records.InsertSubmission(sub); err != nil {
		return Outcome{}, fmt.Errorf("recording submission: %w", err)
	}

	out := Outcome{Decision: p.Decision, SubmissionID: sub.ID}
	alloc, err := s.send(ctx, sub)
	out.Status, out.Detail = classify(err)
	out.Allocation = alloc

	var allocID int64
	if alloc != nil {
		allocID = alloc.ID
	}
	if uerr := s.records.UpdateSubmissionStatus(sub.ID, out.Status, out.Detail, allocID); uerr != nil {
		s.logger.Error("recording submission status", "submission", sub.ID, "error", uerr)
	}

	if err != nil {
		s.logger.Warn("submission not accepted", "submission", sub.ID, "status", out.Status, "error", err)
		return out, err
	}
	s.logger.Info("submission accepted", "submission", sub.ID, "allocation", allocID)
	return out, nil
}

// send issues the create or update call for a recorded submission.
func (s *Service) send(ctx context.Context, sub *store.Submission) (*staffing.Allocation, error) {
	if sub.Kind == store.KindUpdate {
		change := allocate.AllocationChange{
			User:        sub.UserID,
			Utilization: sub.Utilization,
			EndDate:     sub.EndDate,
		}
		if !sub.StartDate.IsZero() {
			start := sub.StartDate
			change.StartDate = &start
		}
		if err := s.submitter.UpdateAllocation(ctx, sub.AllocationID, change, sub.Requester); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return s.submitter.CreateAllocation(ctx, allocate.AllocationRequest{
		User:        sub.UserID,
		Position:    sub.PositionID,
		Utilization: sub.Utilization,
		StartDate:   sub.StartDate,
		EndDate:     sub.EndDate,
		KTPeriod:    sub.KTPeriod,
	}, sub.RequestID, sub.Requester)
}

// classify maps a submission error to the recorded status. A client error
// from the service is its final answer; throttling, server errors and
// transport failures are retried later.
func classify(err error) (status, detail string) {
	if err == nil {
		return store.StatusSubmitted, ""
	}
	var apiErr *allocate.APIError
	if errors.As(err, &apiErr) && !retryable(apiErr.Status) {
		return store.StatusRejected, apiErr.Detail
	}
	return store.StatusFailed, err.Error()
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// RetryResult summarizes a RetryFailed run.
type RetryResult struct {
	Attempted int
	Submitted int
	Rejected  int
	Failed    int
}

// RetryFailed resubmits every submission that failed in transport, reusing
// its request id. It stops early when ctx is done.
func (s *Service) RetryFailed(ctx context.Context) (RetryResult, error) {
	var res RetryResult

	failed, err := s.records.FailedSubmissions()
	if err != nil {
		return res, fmt.Errorf("loading failed submissions: %w", err)
	}

	for i := range failed {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sub := &failed[i]
		res.Attempted++

		alloc, err := s.send(ctx, sub)
		status, detail := classify(err)
		var allocID int64
		if alloc != nil {
			allocID = alloc.ID
		}
		if uerr := s.records.UpdateSubmissionStatus(sub.ID, status, detail, allocID); uerr != nil {
			return res, fmt.Errorf("updating submission %d: %w", sub.ID, uerr)
		}

		switch status {
		case store.StatusSubmitted:
			res.Submitted++
		case store.StatusRejected:
			res.Rejected++
		default:
			res.Failed++
		}
		s.logger.Info("retried submission", "submission", sub.ID, "status", status)
	}

	return res, nil
}

// ProposalFor assembles a proposal from parsed form values.
func ProposalFor(utilization int, start, end *daterange.Date, ktDays int) conflict.Proposal {
	p := conflict.Proposal{Utilization: utilization, KTPeriodDays: ktDays}
	if start != nil {
		p.Range.Start = *start
	}
	p.Range.End = end
	return p
}
