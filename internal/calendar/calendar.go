// Package calendar exports a person's allocations as all-day iCalendar
// events and reads existing calendars back so exports can be merged.
package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	ical "github.com/emersion/go-ical"

	"github.com/christopherklint97/allocr/internal/daterange"
	"github.com/christopherklint97/allocr/internal/staffing"
)

const uidDomain = "@allocr"

// Event is an all-day calendar event. End is inclusive.
type Event struct {
	UID       string
	Summary   string
	Start     daterange.Date
	End       daterange.Date
	Tentative bool
}

// Events lists the allocations of c that overlap window, plus their
// knowledge-transfer lead-ins. Open-ended allocations stop at the end of
// the window.
func Events(c staffing.Candidate, window daterange.Range) []Event {
	winEnd := window.EndOr(daterange.Forever)

	var events []Event
	for _, a := range c.Allocations {
		if a.KTPeriodDays > 0 && daterange.Overlaps(a.KTWindow(), window) {
			kt := a.KTWindow()
			events = append(events, Event{
				UID:       uid(c.ID, a, "kt"),
				Summary:   "KT: " + label(a),
				Start:     kt.Start,
				End:       a.StartDate.AddDays(-1),
				Tentative: a.Tentative,
			})
		}
		if !daterange.Overlaps(a.Range(), window) {
			continue
		}
		end := daterange.MinDate(a.Range().EndOr(winEnd), winEnd)
		if end.Before(a.StartDate) {
			end = a.StartDate
		}
		events = append(events, Event{
			UID:       uid(c.ID, a, "alloc"),
			Summary:   fmt.Sprintf("%s (%d%%)", label(a), a.Utilization),
			Start:     a.StartDate,
			End:       end,
			Tentative: a.Tentative,
		})
	}
	sortEvents(events)
	return events
}

func label(a staffing.Allocation) string {
	name := a.ProjectName
	if name == "" {
		name = fmt.Sprintf("Position %d", a.PositionID)
	}
	if a.RoleName != "" {
		name += ": " + a.RoleName
	}
	return name
}

func uid(userID int64, a staffing.Allocation, kind string) string {
	if a.ID != 0 {
		return fmt.Sprintf("%s-%d%s", kind, a.ID, uidDomain)
	}
	return fmt.Sprintf("%s-u%d-p%d-%s%s", kind, userID, a.PositionID, a.StartDate, uidDomain)
}

// Export writes events as a VCALENDAR. stamp is used as DTSTAMP.
func Export(w io.Writer, events []Event, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//allocr//allocations//EN")

	for _, e := range events {
		ev := ical.NewEvent()
		ev.Props.SetText(ical.PropUID, e.UID)
		ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		ev.Props.SetText(ical.PropSummary, e.Summary)
		ev.Props.SetDate(ical.PropDateTimeStart, e.Start.Time())
		// DTEND of an all-day event is exclusive
		ev.Props.SetDate(ical.PropDateTimeEnd, e.End.AddDays(1).Time())
		status := "CONFIRMED"
		if e.Tentative {
			status = "TENTATIVE"
		}
		ev.Props.SetText(ical.PropStatus, status)
		cal.Children = append(cal.Children, ev.Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encoding calendar: %w", err)
	}
	return nil
}

// Open returns a reader for a calendar at a URL or file path.
func Open(ctx context.Context, source string) (io.ReadCloser, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching calendar: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("calendar fetch returned status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("opening calendar file: %w", err)
	}
	return f, nil
}

// Decode parses iCalendar data and returns the events overlapping window.
func Decode(r io.Reader, window daterange.Range) ([]Event, error) {
	dec := ical.NewDecoder(r)
	var events []Event

	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing calendar: %w", err)
		}

		for _, component := range cal.Children {
			if component.Name != ical.CompEvent {
				continue
			}
			event := ical.Event{Component: component}

			start, err := event.DateTimeStart(nil)
			if err != nil {
				continue // skip malformed events
			}
			end, err := event.DateTimeEnd(nil)
			if err != nil {
				end = start.AddDate(0, 0, 1)
			}

			e := Event{
				Start: daterange.FromTime(start),
				End:   daterange.FromTime(end).AddDays(-1),
			}
			if e.End.Before(e.Start) {
				e.End = e.Start
			}
			if !daterange.Overlaps(daterange.Closed(e.Start, e.End), window) {
				continue
			}
			e.UID, _ = event.Props.Text(ical.PropUID)
			e.Summary, _ = event.Props.Text(ical.PropSummary)
			if status, _ := event.Props.Text(ical.PropStatus); strings.EqualFold(status, "TENTATIVE") {
				e.Tentative = true
			}
			events = append(events, e)
		}
	}

	return events, nil
}

// Merge combines existing events with fresh ones. Fresh events replace
// existing events with the same UID.
func Merge(existing, fresh []Event) []Event {
	seen := make(map[string]bool, len(fresh))
	out := make([]Event, 0, len(existing)+len(fresh))
	for _, e := range fresh {
		seen[e.UID] = true
		out = append(out, e)
	}
	for _, e := range existing {
		if e.UID != "" && seen[e.UID] {
			continue
		}
		out = append(out, e)
	}
	sortEvents(out)
	return out
}

func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
}
