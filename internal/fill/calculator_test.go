package fill

import (
	"testing"
	"time"

	"github.com/christopherklint97/allocr/internal/daterange"
	"github.com/christopherklint97/allocr/internal/staffing"
)

var today = daterange.New(2026, time.October, 5)

func fixedToday() daterange.Date { return today }

func day(n int) daterange.Date { return daterange.New(2026, time.October, n) }

func ptr(d daterange.Date) *daterange.Date { return &d }

// tenDays spans Oct 1 to Oct 10.
var tenDays = staffing.Position{
	ID:             1,
	StartDate:      day(1),
	EndDate:        ptr(day(10)),
	UtilizationCap: 100,
}

func alloc(user int64, start, end, util int) staffing.Allocation {
	return staffing.Allocation{
		PositionID:  1,
		UserID:      user,
		StartDate:   day(start),
		EndDate:     ptr(day(end)),
		Utilization: util,
	}
}

func TestOccupantSum(t *testing.T) {
	tests := []struct {
		name        string
		position    staffing.Position
		allocations []staffing.Allocation
		wantPos     int
		wantUtil    int
	}{
		{
			name:        "fully filled",
			position:    tenDays,
			allocations: []staffing.Allocation{alloc(1, 1, 10, 100)},
			wantPos:     0,
			wantUtil:    0,
		},
		{
			name:     "empty",
			position: tenDays,
			wantPos:  100,
			wantUtil: 100,
		},
		{
			name:        "half the days at half utilization",
			position:    tenDays,
			allocations: []staffing.Allocation{alloc(1, 1, 5, 50)},
			wantPos:     50,
			wantUtil:    50,
		},
		{
			name:     "longest span per occupant, not sum",
			position: tenDays,
			allocations: []staffing.Allocation{
				alloc(1, 1, 3, 50),
				alloc(1, 1, 6, 50),
			},
			wantPos:  40,
			wantUtil: 50,
		},
		{
			name:     "stacked occupants overcount",
			position: tenDays,
			allocations: []staffing.Allocation{
				alloc(1, 1, 8, 50),
				alloc(2, 1, 8, 50),
			},
			wantPos:  -60,
			wantUtil: 0,
		},
		{
			name:     "only running allocations use capacity",
			position: tenDays,
			allocations: []staffing.Allocation{
				alloc(1, 1, 4, 60),
				alloc(2, 6, 10, 40),
			},
			wantPos:  10,
			wantUtil: 100,
		},
		{
			name:     "other positions ignored",
			position: tenDays,
			allocations: []staffing.Allocation{
				{PositionID: 2, UserID: 1, StartDate: day(1), EndDate: ptr(day(10)), Utilization: 100},
			},
			wantPos:  100,
			wantUtil: 100,
		},
		{
			name:     "pending requests ignored",
			position: tenDays,
			allocations: []staffing.Allocation{
				{PositionID: 1, UserID: 1, StartDate: day(1), EndDate: ptr(day(10)), Utilization: 100, Tentative: true},
			},
			wantPos:  100,
			wantUtil: 100,
		},
		{
			name:        "over capacity",
			position:    staffing.Position{ID: 1, StartDate: day(1), EndDate: ptr(day(10)), UtilizationCap: 50},
			allocations: []staffing.Allocation{alloc(1, 1, 10, 75)},
			wantPos:     0,
			wantUtil:    -50,
		},
		{
			name:        "zero cap with allocation",
			position:    staffing.Position{ID: 1, StartDate: day(1), EndDate: ptr(day(10))},
			allocations: []staffing.Allocation{alloc(1, 1, 10, 30)},
			wantPos:     0,
			wantUtil:    0,
		},
		{
			name:     "open position measured to today",
			position: staffing.Position{ID: 1, StartDate: day(1), UtilizationCap: 100},
			allocations: []staffing.Allocation{
				{PositionID: 1, UserID: 1, StartDate: day(1), EndDate: ptr(day(2)), Utilization: 100},
			},
			wantPos:  60,
			wantUtil: 100,
		},
		{
			name:     "open allocation runs to position end",
			position: tenDays,
			allocations: []staffing.Allocation{
				{PositionID: 1, UserID: 1, StartDate: day(6), Utilization: 100},
			},
			wantPos:  50,
			wantUtil: 100,
		},
	}

	calc := OccupantSum{Today: fixedToday}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Compute(tt.position, tt.allocations)
			if got.PositionUnfilled != tt.wantPos {
				t.Errorf("PositionUnfilled = %d, want %d (%+v)", got.PositionUnfilled, tt.wantPos, got)
			}
			if got.UtilizationUnfilled != tt.wantUtil {
				t.Errorf("UtilizationUnfilled = %d, want %d (%+v)", got.UtilizationUnfilled, tt.wantUtil, got)
			}
		})
	}
}

func TestDateUnion(t *testing.T) {
	calc := DateUnion{Today: fixedToday}

	stacked := []staffing.Allocation{
		alloc(1, 1, 8, 50),
		alloc(2, 1, 8, 50),
	}
	got := calc.Compute(tenDays, stacked)
	if got.PositionUnfilled != 20 || got.FilledDays != 8 {
		t.Errorf("stacked = %+v, want 20%% unfilled over 8 days", got)
	}

	adjacent := []staffing.Allocation{
		alloc(1, 1, 3, 50),
		alloc(2, 4, 6, 50),
		alloc(3, 9, 12, 50),
	}
	got = calc.Compute(tenDays, adjacent)
	if got.FilledDays != 8 {
		t.Errorf("adjacent FilledDays = %d, want 8", got.FilledDays)
	}

	before := []staffing.Allocation{
		{PositionID: 1, UserID: 1, StartDate: daterange.New(2026, time.September, 1), EndDate: ptr(daterange.New(2026, time.September, 30))},
	}
	got = calc.Compute(tenDays, before)
	if got.FilledDays != 0 || got.PositionUnfilled != 100 {
		t.Errorf("allocation outside window = %+v", got)
	}
}

func TestCalculatorsAgreeWithoutOverlap(t *testing.T) {
	allocations := []staffing.Allocation{
		alloc(1, 1, 4, 40),
		alloc(2, 5, 9, 60),
	}
	var calcs = []Calculator{OccupantSum{Today: fixedToday}, DateUnion{Today: fixedToday}}
	var results []Ratios
	for _, c := range calcs {
		results = append(results, c.Compute(tenDays, allocations))
	}
	if results[0] != results[1] {
		t.Errorf("OccupantSum %+v != DateUnion %+v", results[0], results[1])
	}
}

func TestOpenPositionNotStarted(t *testing.T) {
	upcoming := staffing.Position{ID: 1, StartDate: day(20), UtilizationCap: 100}
	booked := []staffing.Allocation{{PositionID: 1, UserID: 1, StartDate: day(20), Utilization: 100}}

	for _, calc := range []Calculator{OccupantSum{Today: fixedToday}, DateUnion{Today: fixedToday}} {
		got := calc.Compute(upcoming, booked)
		if got.PositionUnfilled != 100 || got.TotalDays != 0 || got.FilledDays != 0 {
			t.Errorf("%T = %+v, want nothing elapsed and 100%% unfilled", calc, got)
		}
		if got.UtilizationUnfilled != 100 {
			t.Errorf("%T UtilizationUnfilled = %d, want 100", calc, got.UtilizationUnfilled)
		}
	}
}

func TestClamped(t *testing.T) {
	r := Ratios{PositionUnfilled: -60, UtilizationUnfilled: 140}.Clamped()
	if r.PositionUnfilled != 0 || r.UtilizationUnfilled != 100 {
		t.Errorf("Clamped = %+v", r)
	}
	if r.PositionFilled() != 100 || r.UtilizationFilled() != 0 {
		t.Errorf("filled complements = %d, %d", r.PositionFilled(), r.UtilizationFilled())
	}
}
