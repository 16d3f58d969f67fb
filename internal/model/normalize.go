package model

import (
	"fmt"
	"time"

	appLog "calpost/internal/log"
)

// DataFormatError describes a single malformed provider event. It is
// never fatal to a batch: Normalize logs it and moves on.
type DataFormatError struct {
	Title  string
	Reason string
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("malformed event %q: %s", e.Title, e.Reason)
}

// Normalize converts raw provider events into canonical Events anchored
// to the display timezone and clipped to the visible grid range.
//
//   - Timed events are converted into loc and truncated to their civil date.
//   - All-day events use their date fields as-is (providers already give
//     a calendar date; converting it through a timezone would shift it).
//   - All-day end dates follow the Google/iCalendar exclusive-end
//     convention, so an all-day end after the start is pulled back one day.
//   - Events entirely outside bounds are dropped; partial overlaps are
//     clipped so no event extends past the grid.
//   - Events without a usable start date are skipped with a warning.
//
// The returned slice preserves the provider order of surviving events.
func Normalize(raws []RawEvent, bounds DateRange, loc *time.Location) []Event {
	if loc == nil {
		loc = time.Local
	}

	out := make([]Event, 0, len(raws))
	for _, raw := range raws {
		ev, err := normalizeOne(raw, loc)
		if err != nil {
			appLog.Error("skipping malformed event", err, "title", raw.Title)
			continue
		}

		// Drop events with no overlap with the visible grid.
		if ev.End.Before(bounds.First) || ev.Start.After(bounds.Last) {
			continue
		}

		// Clip partial overlaps so nothing renders off-grid.
		if ev.Start.Before(bounds.First) {
			ev.Start = bounds.First
		}
		if ev.End.After(bounds.Last) {
			ev.End = bounds.Last
		}

		out = append(out, ev)
	}
	return out
}

func normalizeOne(raw RawEvent, loc *time.Location) (Event, error) {
	if raw.Start.IsZero() {
		return Event{}, &DataFormatError{Title: raw.Title, Reason: "missing start date"}
	}

	var start, end time.Time
	if raw.AllDay {
		// All-day boundaries are calendar dates already.
		start = DateOf(raw.Start)
		if raw.End.IsZero() {
			end = start
		} else {
			end = DateOf(raw.End)
		}
		// Exclusive DTEND convention: a one-day all-day event arrives as
		// [start, start+1).
		if end.After(start) {
			end = end.AddDate(0, 0, -1)
		}
	} else {
		start = DateOf(raw.Start.In(loc))
		if raw.End.IsZero() {
			end = start
		} else {
			end = DateOf(raw.End.In(loc))
		}
	}

	if end.Before(start) {
		end = start
	}

	title := raw.Title
	if title == "" {
		title = "(untitled)"
	}

	return Event{
		Title:   title,
		Start:   start,
		End:     end,
		AllDay:  raw.AllDay,
		ColorID: raw.ColorID,
	}, nil
}
