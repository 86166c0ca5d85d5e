package daterange

import (
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
)

const layout = "2006-01-02"

const day = 24 * time.Hour

// Date is a calendar day without a time-of-day component. The zero value
// is the unset date.
type Date struct {
	t time.Time
}

// Forever stands in for the end of an open-ended range when days are counted.
var Forever = New(9999, time.December, 31)

func New(year int, month time.Month, d int) Date {
	return Date{t: time.Date(year, month, d, 0, 0, 0, 0, time.UTC)}
}

// FromTime returns the calendar day of t in t's own location.
func FromTime(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.Date()
	return New(y, m, d)
}

// Today returns the current local calendar day.
func Today() Date {
	return FromTime(time.Now())
}

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

func (d Date) After(o Date) bool { return d.t.After(o.t) }

func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int { return d.t.Compare(o.t) }

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Time returns midnight UTC of d.
func (d Date) Time() time.Time { return d.t }

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	y, m, dd := d.t.Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(layout)
}

// DaysBetween returns b - a in whole days.
func DaysBetween(a, b Date) int {
	return int(b.t.Sub(a.t) / day)
}

func MinDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(layout, string(text))
	if err != nil {
		// the service sometimes sends full timestamps
		t, err = time.Parse(time.RFC3339, string(text))
		if err != nil {
			return fmt.Errorf("parsing date %q: %w", text, err)
		}
	}
	*d = FromTime(t)
	return nil
}

// JSONSchema describes Date as an ISO calendar date string.
func (Date) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:   "string",
		Format: "date",
	}
}
