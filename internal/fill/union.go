package fill

import (
	"sort"

	"github.com/christopherklint97/allocr/internal/daterange"
)

// unionDays returns how many days of window are covered by at least one of
// ranges.
func unionDays(window daterange.Range, ranges []daterange.Range) int {
	winEnd := window.EndOr(daterange.Forever)

	type span struct{ start, end daterange.Date }
	var spans []span
	for _, r := range ranges {
		if !daterange.Overlaps(window, r) {
			continue
		}
		start := daterange.MaxDate(r.Start, window.Start)
		end := daterange.MinDate(r.EndOr(daterange.Forever), winEnd)
		if end.Before(start) {
			// malformed range: single day
			end = start
		}
		spans = append(spans, span{start, end})
	}
	if len(spans) == 0 {
		return 0
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })

	total := 0
	cur := spans[0]
	for _, s := range spans[1:] {
		if !s.start.After(cur.end.AddDays(1)) {
			cur.end = daterange.MaxDate(cur.end, s.end)
			continue
		}
		total += daterange.DaysBetween(cur.start, cur.end) + 1
		cur = s
	}
	total += daterange.DaysBetween(cur.start, cur.end) + 1
	return total
}
