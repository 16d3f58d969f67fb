// Package source provides the calendar data backends: Google Calendar
// and ICS feed subscriptions. Both return an opaque freshness token
// alongside the raw events, which is all the change-detection scheduler
// needs to decide whether a re-render is due.
package source

import (
	"context"
	"time"

	"calpost/internal/model"
)

// Source is a calendar data backend. FetchMonth returns the provider's
// current freshness token together with all raw events overlapping the
// padded month window (the padding covers grid spillover days from the
// neighboring months). The token has equality semantics only.
type Source interface {
	FetchMonth(ctx context.Context, month model.Month) (token string, events []model.RawEvent, err error)
}

// windowPadDays extends the fetch window past the month edges so that
// events on spillover days of the rendered grid are included. A month
// grid never shows more than six days of a neighboring month.
const windowPadDays = 7

// monthWindow returns the [start, end) instant range to query for a
// month, in the display timezone.
func monthWindow(m model.Month, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	first := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, loc)
	return first.AddDate(0, 0, -windowPadDays), first.AddDate(0, 1, windowPadDays)
}
