package model

import (
	"fmt"
	"time"
)

// Month identifies a single calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the Month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// First returns the civil date of the first day of the month.
func (m Month) First() time.Time {
	return Date(m.Year, m.Month, 1)
}

// Last returns the civil date of the last day of the month.
func (m Month) Last() time.Time {
	return m.First().AddDate(0, 1, -1)
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Civil dates are represented as time.Time values at midnight UTC.
// Keeping them in a fixed zone makes day arithmetic (AddDate, Sub)
// independent of DST transitions in the display timezone.

// Date builds a civil date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates an instant to its civil date, interpreting the
// instant in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// DaysBetween returns the number of whole days from a to b. Negative if
// b is before a. Both arguments must be civil dates.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}

// DateRange is an inclusive range of civil dates.
type DateRange struct {
	First time.Time
	Last  time.Time
}

// Contains reports whether the civil date d falls within the range.
func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.First) && !d.After(r.Last)
}

// RawEvent is a provider event as delivered by a data source, before
// normalization. Start/End carry whatever precision the provider gave
// (a timestamp for timed events, a bare date for all-day events). A
// zero Start means the provider record had no usable start.
type RawEvent struct {
	Title  string
	Start  time.Time
	End    time.Time
	AllDay bool

	// ColorID is the provider color key ("1".."11" for Google), empty
	// if the provider has no per-event color.
	ColorID string
}

// Event is the canonical, immutable event value used by the layout
// engine and renderer. Start and End are inclusive civil dates with
// End >= Start; a single-day event has Start == End.
type Event struct {
	Title   string
	Start   time.Time
	End     time.Time
	AllDay  bool
	ColorID string
}

// Days returns the inclusive duration of the event in days (>= 1).
func (e Event) Days() int {
	return DaysBetween(e.Start, e.End) + 1
}
