package allocate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/christopherklint97/allocr/internal/staffing"
)

var _ staffing.Source = (*Client)(nil)

func (c *Client) Position(ctx context.Context, id int64) (*staffing.Position, error) {
	if cached, ok := c.cache.Get(id); ok {
		return cached, nil
	}

	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/projects/positions/%d/", id), nil)
	if err != nil {
		return nil, fmt.Errorf("getting position %d: %w", id, notFound(err))
	}

	var wp wirePosition
	if err := json.Unmarshal(data, &wp); err != nil {
		return nil, fmt.Errorf("parsing position response: %w", err)
	}

	p := wp.toPosition()
	c.cache.Set(p)
	return &p, nil
}

func (c *Client) ProjectPositions(ctx context.Context, projectID int64) ([]staffing.StaffedPosition, error) {
	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/projects/%d/project-timeline/", projectID), nil)
	if err != nil {
		return nil, fmt.Errorf("getting project timeline: %w", notFound(err))
	}

	var timeline timelineResponse
	if err := json.Unmarshal(data, &timeline); err != nil {
		return nil, fmt.Errorf("parsing project timeline: %w", err)
	}

	staffed := timeline.staffed()
	for _, sp := range staffed {
		c.cache.Set(sp.Position)
	}
	return staffed, nil
}

func (c *Client) Candidate(ctx context.Context, userID int64) (*staffing.Candidate, error) {
	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/users/%d/", userID), nil)
	if err != nil {
		return nil, fmt.Errorf("getting user %d: %w", userID, notFound(err))
	}

	var u wireUser
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("parsing user response: %w", err)
	}

	cand := u.toCandidate()
	return &cand, nil
}

func (c *Client) SearchTalents(ctx context.Context, q staffing.SearchQuery) (*staffing.SearchPage, error) {
	params := url.Values{}
	if q.PositionID != 0 {
		params.Set("position", strconv.FormatInt(q.PositionID, 10))
	}
	params.Set("relatedSuggestions", strconv.FormatBool(q.Related))
	page := max(q.Page, 1)
	params.Set("page", strconv.Itoa(page))
	if q.Size > 0 {
		params.Set("size", strconv.Itoa(q.Size))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		params.Set("search", s)
	}
	for _, loc := range q.Locations {
		params.Add("locations[]", loc)
	}

	data, err := c.doRequest(ctx, http.MethodGet, "/search/talents/?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("searching talents: %w", err)
	}

	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	out := &staffing.SearchPage{Count: resp.Count}
	if resp.Criteria != nil {
		crit := resp.Criteria.toPosition()
		out.Criteria = &crit
	}
	out.Candidates = make([]staffing.Candidate, 0, len(resp.Talents))
	for _, t := range resp.Talents {
		out.Candidates = append(out.Candidates, t.toCandidate())
	}

	c.logger.Debug("talent search", "position", q.PositionID, "related", q.Related, "page", page, "returned", len(out.Candidates), "count", resp.Count)
	return out, nil
}

// allocationPath picks the endpoint: requesters submit allocation requests
// for approval instead of allocating directly.
func allocationPath(requester bool) string {
	if requester {
		return "/projects/allocation-request/"
	}
	return "/projects/allocation/"
}

// CreateAllocation submits a new allocation, or an allocation request when
// requester is set. requestID makes retries of the same submission
// recognizable to the service.
func (c *Client) CreateAllocation(ctx context.Context, req AllocationRequest, requestID string, requester bool) (*staffing.Allocation, error) {
	data, err := c.doRequestID(ctx, http.MethodPost, allocationPath(requester), req, requestID)
	if err != nil {
		return nil, fmt.Errorf("creating allocation: %w", err)
	}

	alloc := staffing.Allocation{
		PositionID:   req.Position,
		UserID:       req.User,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Utilization:  req.Utilization,
		KTPeriodDays: req.KTPeriod,
		Tentative:    requester,
	}
	if len(strings.TrimSpace(string(data))) > 0 {
		var created wireAllocation
		if err := json.Unmarshal(data, &created); err != nil {
			return nil, fmt.Errorf("parsing allocation response: %w", err)
		}
		alloc.ID = created.ID
	}
	return &alloc, nil
}

// UpdateAllocation changes an existing allocation, or an allocation request
// when requester is set.
func (c *Client) UpdateAllocation(ctx context.Context, allocationID int64, change AllocationChange, requester bool) error {
	path := fmt.Sprintf("%s%d/", allocationPath(requester), allocationID)
	if _, err := c.doRequest(ctx, http.MethodPut, path, change); err != nil {
		return fmt.Errorf("updating allocation %d: %w", allocationID, notFound(err))
	}
	return nil
}

// notFound maps a 404 to staffing.ErrNotFound while keeping the API error.
func notFound(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return errors.Join(staffing.ErrNotFound, err)
	}
	return err
}
