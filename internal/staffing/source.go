package staffing

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Source when a record does not exist.
var ErrNotFound = errors.New("not found")

// SearchQuery asks the ranking service for one page of candidates.
// Related selects the secondary channel (people in other roles).
type SearchQuery struct {
	PositionID int64
	Related    bool
	Page       int
	Size       int
	Search     string
	Locations  []string
}

// SearchPage is one page of ranked candidates. Count is the total number of
// matches across all pages of the channel.
type SearchPage struct {
	Criteria   *Position
	Candidates []Candidate
	Count      int
}

// Source supplies the records the engine works on, either from the
// allocation service or from an offline snapshot.
type Source interface {
	Position(ctx context.Context, id int64) (*Position, error)
	ProjectPositions(ctx context.Context, projectID int64) ([]StaffedPosition, error)
	Candidate(ctx context.Context, userID int64) (*Candidate, error)
	SearchTalents(ctx context.Context, q SearchQuery) (*SearchPage, error)
}
