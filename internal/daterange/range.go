// Package daterange compares calendar-day ranges whose end may be open.
package daterange

// Range is an inclusive span of calendar days. A nil End means the range is
// ongoing.
type Range struct {
	Start Date  `json:"startDate"`
	End   *Date `json:"endDate,omitempty"`
}

// Closed returns the range [start, end].
func Closed(start, end Date) Range {
	return Range{Start: start, End: &end}
}

// Open returns the ongoing range starting at start.
func Open(start Date) Range {
	return Range{Start: start}
}

func (r Range) IsOpen() bool { return r.End == nil || r.End.IsZero() }

// EndOr returns the end of r, or fallback when r is open.
func (r Range) EndOr(fallback Date) Date {
	if r.IsOpen() {
		return fallback
	}
	return *r.End
}

// normalized returns the effective bounds of r. An open end becomes
// Forever and an end before the start collapses to the start day.
func (r Range) normalized() (Date, Date) {
	end := r.EndOr(Forever)
	if end.Before(r.Start) {
		end = r.Start
	}
	return r.Start, end
}

// Contains reports whether d falls inside r.
func (r Range) Contains(d Date) bool {
	start, end := r.normalized()
	return !d.Before(start) && !d.After(end)
}

// Through closes an open range at end. Closed ranges are returned unchanged.
func (r Range) Through(end Date) Range {
	if !r.IsOpen() {
		return r
	}
	return Closed(r.Start, end)
}

func (r Range) String() string {
	if r.IsOpen() {
		return r.Start.String() + " – ongoing"
	}
	return r.Start.String() + " – " + r.End.String()
}

// Overlaps reports whether a and b share at least one day.
func Overlaps(a, b Range) bool {
	aStart, aEnd := a.normalized()
	bStart, bEnd := b.normalized()
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}

// OverlapDays returns the inclusive number of days a and b share, 0 when
// they are disjoint.
func OverlapDays(a, b Range) int {
	aStart, aEnd := a.normalized()
	bStart, bEnd := b.normalized()

	start := MaxDate(aStart, bStart)
	end := MinDate(aEnd, bEnd)
	if end.Before(start) {
		return 0
	}
	return DaysBetween(start, end) + 1
}

// DayCount returns the inclusive number of days in r. Malformed ranges
// count as a single day.
func DayCount(r Range) int {
	start, end := r.normalized()
	return DaysBetween(start, end) + 1
}
