package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	appLog "calpost/internal/log"
	"calpost/internal/model"
)

const maxEventsPerMonth = 2500

// GoogleSource reads events from the Google Calendar API. The calendar
// collection's Etag doubles as the freshness token: Google bumps it
// whenever the calendar content changes.
type GoogleSource struct {
	svc        *calendar.Service
	calendarID string
	loc        *time.Location
}

// NewGoogleSource builds an authenticated Google Calendar backend from
// a client-secret file and a previously stored oauth token (see
// Authorize for obtaining one).
func NewGoogleSource(ctx context.Context, credPath, tokenPath, calendarID string, loc *time.Location) (*GoogleSource, error) {
	credBytes, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}
	conf, err := google.ConfigFromJSON(credBytes, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	tokenBytes, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("reading oauth token (run with -authorize first): %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenBytes, &tok); err != nil {
		return nil, fmt.Errorf("unmarshalling oauth token: %w", err)
	}

	// conf.Client refreshes the access token transparently.
	client := conf.Client(ctx, &tok)
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}

	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleSource{svc: svc, calendarID: calendarID, loc: loc}, nil
}

// FetchMonth implements Source.
func (g *GoogleSource) FetchMonth(ctx context.Context, m model.Month) (string, []model.RawEvent, error) {
	cal, err := g.svc.Calendars.Get(g.calendarID).Context(ctx).Do()
	if err != nil {
		return "", nil, fmt.Errorf("getting calendar etag: %w", err)
	}

	start, end := monthWindow(m, g.loc)
	list, err := g.svc.Events.List(g.calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		MaxResults(maxEventsPerMonth).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return "", nil, fmt.Errorf("listing events: %w", err)
	}

	raws := make([]model.RawEvent, 0, len(list.Items))
	for _, item := range list.Items {
		raws = append(raws, rawFromGoogleEvent(item))
	}

	appLog.Info("google fetch completed",
		"calendar_id", g.calendarID, "month", m.String(), "event_count", len(raws))
	return cal.Etag, raws, nil
}

// rawFromGoogleEvent maps an API event onto the provider-neutral raw
// shape. Unparseable or missing boundaries stay zero; the normalizer
// decides what to do with them.
func rawFromGoogleEvent(item *calendar.Event) model.RawEvent {
	raw := model.RawEvent{
		Title:   item.Summary,
		ColorID: item.ColorId,
	}

	raw.Start, raw.AllDay = parseGoogleTime(item.Start)
	raw.End, _ = parseGoogleTime(item.End)
	return raw
}

func parseGoogleTime(edt *calendar.EventDateTime) (time.Time, bool) {
	if edt == nil {
		return time.Time{}, false
	}
	if edt.Date != "" {
		t, err := time.Parse("2006-01-02", edt.Date)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return t, false
	}
	return time.Time{}, false
}
