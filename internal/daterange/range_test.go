package daterange

import (
	"encoding/json"
	"testing"
	"time"
)

func d(s string) Date {
	t, err := time.Parse(layout, s)
	if err != nil {
		panic(err)
	}
	return FromTime(t)
}

func closed(start, end string) Range { return Closed(d(start), d(end)) }

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Range
		want bool
		days int
	}{
		{"disjoint", closed("2026-01-01", "2026-01-10"), closed("2026-01-11", "2026-01-20"), false, 0},
		{"touching day", closed("2026-01-01", "2026-01-10"), closed("2026-01-10", "2026-01-20"), true, 1},
		{"contained", closed("2026-01-01", "2026-01-31"), closed("2026-01-05", "2026-01-09"), true, 5},
		{"partial", closed("2026-01-01", "2026-01-10"), closed("2026-01-06", "2026-01-20"), true, 5},
		{"open vs closed", Open(d("2026-01-05")), closed("2026-01-01", "2026-01-10"), true, 6},
		{"open after closed", Open(d("2026-02-01")), closed("2026-01-01", "2026-01-10"), false, 0},
		{"malformed is single day", closed("2026-01-10", "2026-01-01"), closed("2026-01-10", "2026-01-12"), true, 1},
		{"malformed misses", closed("2026-01-10", "2026-01-01"), closed("2026-01-01", "2026-01-09"), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.a, tt.b); got != tt.want {
				t.Errorf("Overlaps(a, b) = %v, want %v", got, tt.want)
			}
			if got := Overlaps(tt.b, tt.a); got != tt.want {
				t.Errorf("Overlaps(b, a) = %v, want %v", got, tt.want)
			}
			if got := OverlapDays(tt.a, tt.b); got != tt.days {
				t.Errorf("OverlapDays(a, b) = %d, want %d", got, tt.days)
			}
			if got := OverlapDays(tt.b, tt.a); got != tt.days {
				t.Errorf("OverlapDays(b, a) = %d, want %d", got, tt.days)
			}
		})
	}
}

func TestSelfOverlap(t *testing.T) {
	ranges := []Range{
		closed("2026-03-01", "2026-03-01"),
		closed("2026-03-01", "2026-03-31"),
		closed("2026-03-31", "2026-03-01"),
		Open(d("2026-03-01")),
		closed("2024-02-28", "2024-03-01"),
	}
	for _, r := range ranges {
		if !Overlaps(r, r) {
			t.Errorf("Overlaps(%s, itself) = false", r)
		}
		if got, want := OverlapDays(r, r), DayCount(r); got != want {
			t.Errorf("OverlapDays(%s, itself) = %d, want DayCount %d", r, got, want)
		}
	}
}

func TestDayCount(t *testing.T) {
	if got := DayCount(closed("2026-01-01", "2026-01-10")); got != 10 {
		t.Errorf("DayCount = %d, want 10", got)
	}
	if got := DayCount(closed("2024-02-28", "2024-03-01")); got != 3 {
		t.Errorf("DayCount across leap day = %d, want 3", got)
	}
	if got := DayCount(closed("2026-01-10", "2026-01-01")); got != 1 {
		t.Errorf("DayCount of malformed range = %d, want 1", got)
	}
}

func TestContainsAndThrough(t *testing.T) {
	r := Open(d("2026-05-01"))
	if r.Contains(d("2026-04-30")) {
		t.Error("open range contains day before start")
	}
	if !r.Contains(d("2030-01-01")) {
		t.Error("open range should contain future days")
	}

	c := r.Through(d("2026-05-10"))
	if c.IsOpen() {
		t.Fatal("Through left the range open")
	}
	if c.Contains(d("2026-05-11")) {
		t.Error("closed range contains day after end")
	}
}

func TestFromTimeDropsClock(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	a := FromTime(time.Date(2026, 6, 1, 23, 59, 0, 0, loc))
	b := FromTime(time.Date(2026, 6, 1, 0, 1, 0, 0, loc))
	if !a.Equal(b) {
		t.Errorf("FromTime kept time of day: %s vs %s", a, b)
	}
	if a.String() != "2026-06-01" {
		t.Errorf("String() = %q", a.String())
	}
}

func TestDateJSON(t *testing.T) {
	var v struct {
		Start Date  `json:"startDate"`
		End   *Date `json:"endDate"`
	}
	if err := json.Unmarshal([]byte(`{"startDate":"2026-07-01","endDate":null}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Start.String() != "2026-07-01" {
		t.Errorf("Start = %s", v.Start)
	}
	if v.End != nil {
		t.Errorf("End = %v, want nil", v.End)
	}

	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"startDate":"2026-07-01","endDate":null}` {
		t.Errorf("marshal = %s", out)
	}

	if err := json.Unmarshal([]byte(`{"startDate":"July"}`), &v); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestParse(t *testing.T) {
	ref := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC) // Wednesday

	got, err := Parse("2026-11-02", ref)
	if err != nil || got.String() != "2026-11-02" {
		t.Errorf("Parse ISO = %s, %v", got, err)
	}

	got, err = Parse("today", ref)
	if err != nil || got.String() != "2026-10-14" {
		t.Errorf("Parse today = %s, %v", got, err)
	}

	got, err = Parse("tomorrow", ref)
	if err != nil || got.String() != "2026-10-15" {
		t.Errorf("Parse tomorrow = %s, %v", got, err)
	}

	if _, err := Parse("", ref); err == nil {
		t.Error("expected error for empty input")
	}

	opt, err := ParseOptional("  ", ref)
	if err != nil || opt != nil {
		t.Errorf("ParseOptional blank = %v, %v", opt, err)
	}
}
