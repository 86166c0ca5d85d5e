package daterange

import (
	"fmt"
	"strings"
	"time"

	"github.com/tj/go-naturaldate"
)

// Parse reads an ISO date ("2026-11-02") or a natural-language expression
// such as "next monday" or "in 2 weeks", resolved against ref. Relative
// expressions resolve into the future.
func Parse(s string, ref time.Time) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("empty date")
	}

	if t, err := time.Parse(layout, s); err == nil {
		return FromTime(t), nil
	}

	switch strings.ToLower(s) {
	case "today", "now":
		return FromTime(ref), nil
	}

	t, err := naturaldate.Parse(s, ref, naturaldate.WithDirection(naturaldate.Future))
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	if t.Equal(ref) {
		// naturaldate returns ref unchanged when nothing matched
		return Date{}, fmt.Errorf("unrecognized date %q", s)
	}
	return FromTime(t), nil
}

// ParseOptional is Parse for optional values: an empty string yields nil.
func ParseOptional(s string, ref time.Time) (*Date, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := Parse(s, ref)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
