package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/christopherklint97/allocr/internal/daterange"
)

const (
	StatusPending   = "pending"
	StatusSubmitted = "submitted"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
	StatusDeclined  = "declined"

	KindCreate = "create"
	KindUpdate = "update"
)

// timeLayout is fixed width so that created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Submission is one attempt to create or change an allocation, kept so
// that transport failures can be retried and past decisions reviewed.
type Submission struct {
	ID           int64
	RequestID    string
	Kind         string
	AllocationID int64
	UserID       int64
	UserName     string
	PositionID   int64
	Utilization  int
	StartDate    daterange.Date
	EndDate      *daterange.Date
	KTPeriod     int
	Requester    bool
	Decision     string
	Status       string
	Detail       string
	CreatedAt    time.Time
}

func (db *DB) InsertSubmission(s *Submission) (int64, error) {
	if s.Kind == "" {
		s.Kind = KindCreate
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	var end sql.NullString
	if s.EndDate != nil && !s.EndDate.IsZero() {
		end = sql.NullString{String: s.EndDate.String(), Valid: true}
	}

	result, err := db.Exec(
		`INSERT INTO submissions (request_id, kind, allocation_id, user_id, user_name, position_id, utilization,
		   start_date, end_date, kt_period, requester, decision, status, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RequestID, s.Kind, s.AllocationID, s.UserID, s.UserName, s.PositionID, s.Utilization,
		s.StartDate.String(), end, s.KTPeriod, s.Requester, s.Decision, s.Status, s.Detail,
		s.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting submission: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading submission id: %w", err)
	}
	s.ID = id
	return id, nil
}

// UpdateSubmissionStatus records the outcome of a (re)submission. A zero
// allocationID keeps the stored one.
func (db *DB) UpdateSubmissionStatus(id int64, status, detail string, allocationID int64) error {
	_, err := db.Exec(
		`UPDATE submissions
		 SET status = ?, detail = ?, allocation_id = CASE WHEN ? = 0 THEN allocation_id ELSE ? END
		 WHERE id = ?`,
		status, detail, allocationID, allocationID, id,
	)
	if err != nil {
		return fmt.Errorf("updating submission %d: %w", id, err)
	}
	return nil
}

func (db *DB) GetSubmission(id int64) (*Submission, error) {
	subs, err := db.querySubmissions(selectSubmissions+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}
	return &subs[0], nil
}

func (db *DB) FailedSubmissions() ([]Submission, error) {
	return db.querySubmissions(selectSubmissions+`
		 WHERE status = 'failed'
		 ORDER BY created_at ASC, id ASC`)
}

// RecentSubmissions returns up to limit submissions, newest first.
func (db *DB) RecentSubmissions(limit int) ([]Submission, error) {
	if limit <= 0 {
		limit = 20
	}
	return db.querySubmissions(selectSubmissions+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, limit)
}

// SubmissionsSince returns submissions created at or after since, oldest first.
func (db *DB) SubmissionsSince(since time.Time) ([]Submission, error) {
	return db.querySubmissions(selectSubmissions+`
		 WHERE created_at >= ?
		 ORDER BY created_at ASC, id ASC`,
		since.UTC().Format(timeLayout),
	)
}

const selectSubmissions = `SELECT id, request_id, kind, allocation_id, user_id, user_name, position_id, utilization,
		   start_date, end_date, kt_period, requester, decision, status, detail, created_at
		 FROM submissions`

func (db *DB) querySubmissions(query string, args ...any) ([]Submission, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		var s Submission
		var allocationID sql.NullInt64
		var userName, endStr, detail sql.NullString
		var startStr, createdStr string

		if err := rows.Scan(
			&s.ID, &s.RequestID, &s.Kind, &allocationID, &s.UserID, &userName, &s.PositionID, &s.Utilization,
			&startStr, &endStr, &s.KTPeriod, &s.Requester, &s.Decision, &s.Status, &detail, &createdStr,
		); err != nil {
			return nil, fmt.Errorf("scanning submission: %w", err)
		}

		s.AllocationID = allocationID.Int64
		s.UserName = userName.String
		s.Detail = detail.String

		if err := s.StartDate.UnmarshalText([]byte(startStr)); err != nil {
			return nil, fmt.Errorf("parsing start date of submission %d: %w", s.ID, err)
		}
		if endStr.Valid && endStr.String != "" {
			var end daterange.Date
			if err := end.UnmarshalText([]byte(endStr.String)); err == nil {
				s.EndDate = &end
			}
		}
		if t, err := time.Parse(timeLayout, createdStr); err == nil {
			s.CreatedAt = t
		}

		subs = append(subs, s)
	}

	return subs, rows.Err()
}
