package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appLog "calpost/internal/log"
	"calpost/internal/model"
)

func TestMain(m *testing.M) {
	appLog.SetOutput(io.Discard)
	m.Run()
}

const sampleICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//calpost//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:single-1\r\n" +
	"SUMMARY:Dentist\r\n" +
	"DTSTART:20240605T090000Z\r\n" +
	"DTEND:20240605T100000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:allday-1\r\n" +
	"SUMMARY:Trip\r\n" +
	"DTSTART;VALUE=DATE:20240610\r\n" +
	"DTEND;VALUE=DATE:20240613\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:rec-1\r\n" +
	"SUMMARY:Standup\r\n" +
	"DTSTART:20240603T090000Z\r\n" +
	"DTEND:20240603T091500Z\r\n" +
	"RRULE:FREQ=WEEKLY;BYDAY=MO;COUNT=4\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseICS(t *testing.T) {
	feed := Feed{ID: "team", URL: "https://example.com/team.ics"}
	events, err := parseICS(feed, []byte(sampleICS))
	require.NoError(t, err)
	require.Len(t, events, 3)

	byUID := make(map[string]icsEvent)
	for _, ev := range events {
		byUID[ev.UID] = ev
	}

	dentist := byUID["single-1"]
	assert.Equal(t, "Dentist", dentist.Summary)
	assert.False(t, dentist.AllDay)
	assert.Empty(t, dentist.RawRRule)

	trip := byUID["allday-1"]
	assert.True(t, trip.AllDay)

	standup := byUID["rec-1"]
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO;COUNT=4", standup.RawRRule)
}

func TestParseICS_Invalid(t *testing.T) {
	feed := Feed{ID: "bad", URL: "https://example.com/bad.ics"}

	_, err := parseICS(feed, nil)
	assert.Error(t, err)
}

func TestExpandEvents_RecurringWeekly(t *testing.T) {
	feed := Feed{ID: "team", URL: "https://example.com/team.ics"}
	events, err := parseICS(feed, []byte(sampleICS))
	require.NoError(t, err)

	rangeStart := time.Date(2024, time.May, 25, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2024, time.July, 8, 0, 0, 0, 0, time.UTC)
	raws := expandEvents(events, rangeStart, rangeEnd)

	var standups []model.RawEvent
	for _, r := range raws {
		if r.Title == "Standup" {
			standups = append(standups, r)
		}
	}
	// Four Mondays: June 3, 10, 17, 24.
	require.Len(t, standups, 4)
	assert.Equal(t, time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC), standups[0].Start)
	assert.Equal(t, time.Date(2024, time.June, 24, 9, 0, 0, 0, time.UTC), standups[3].Start)
	// Occurrences keep the base duration.
	assert.Equal(t, 15*time.Minute, standups[1].End.Sub(standups[1].Start))
}

func TestExpandEvents_ExDateRemovesInstance(t *testing.T) {
	ics := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//calpost//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:rec-2\r\n" +
		"SUMMARY:Yoga\r\n" +
		"DTSTART:20240604T180000Z\r\n" +
		"DTEND:20240604T190000Z\r\n" +
		"RRULE:FREQ=WEEKLY;BYDAY=TU;COUNT=3\r\n" +
		"EXDATE:20240611T180000Z\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	events, err := parseICS(Feed{ID: "me"}, []byte(ics))
	require.NoError(t, err)

	rangeStart := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	raws := expandEvents(events, rangeStart, rangeEnd)

	require.Len(t, raws, 2)
	assert.Equal(t, time.Date(2024, time.June, 4, 18, 0, 0, 0, time.UTC), raws[0].Start)
	assert.Equal(t, time.Date(2024, time.June, 18, 18, 0, 0, 0, time.UTC), raws[1].Start)
}

func TestExpandEvents_NonRecurringOutsideRangeDropped(t *testing.T) {
	ev := icsEvent{
		UID:     "x",
		Summary: "Old",
		Start:   time.Date(2023, time.January, 1, 9, 0, 0, 0, time.UTC),
		End:     time.Date(2023, time.January, 1, 10, 0, 0, 0, time.UTC),
	}
	raws := expandEvents([]icsEvent{ev},
		time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC))
	assert.Empty(t, raws)
}

func TestFeedFetcher_ConditionalGet(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(sampleICS))
	}))
	defer srv.Close()

	f := newFeedFetcher(t.TempDir())
	feed := Feed{ID: "team", URL: srv.URL}

	first, err := f.fetch(context.Background(), feed)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, []byte(sampleICS), first.Body)

	second, err := f.fetch(context.Background(), feed)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, 2, hits)
}

func TestFeedFetcher_NetworkErrorFallsBackToCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(sampleICS))
	}))

	f := newFeedFetcher(t.TempDir())
	feed := Feed{ID: "team", URL: srv.URL}

	_, err := f.fetch(context.Background(), feed)
	require.NoError(t, err)

	srv.Close() // subsequent fetches hit a dead server

	res, err := f.fetch(context.Background(), feed)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, []byte(sampleICS), res.Body)
}

func TestICSSource_TokenStableAcrossUnchangedFetches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(sampleICS))
	}))
	defer srv.Close()

	src := NewICSSource(t.TempDir(), []Feed{{ID: "team", URL: srv.URL}}, time.UTC)
	month := model.Month{Year: 2024, Month: time.June}

	tok1, raws1, err := src.FetchMonth(context.Background(), month)
	require.NoError(t, err)
	require.NotEmpty(t, tok1)
	// Dentist + 3-day trip + 4 standups.
	assert.Len(t, raws1, 6)

	tok2, _, err := src.FetchMonth(context.Background(), month)
	require.NoError(t, err)
	assert.Equal(t, tok1, tok2)
}

func TestICSSource_TokenChangesWithContent(t *testing.T) {
	body := sampleICS
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	src := NewICSSource(t.TempDir(), []Feed{{ID: "team", URL: srv.URL}}, time.UTC)
	month := model.Month{Year: 2024, Month: time.June}

	tok1, _, err := src.FetchMonth(context.Background(), month)
	require.NoError(t, err)

	body = body + "X-COMMENT:changed\r\n"
	tok2, _, err := src.FetchMonth(context.Background(), month)
	require.NoError(t, err)
	assert.NotEqual(t, tok1, tok2)
}

func TestICSSource_NoFeeds(t *testing.T) {
	src := NewICSSource(t.TempDir(), nil, time.UTC)
	_, _, err := src.FetchMonth(context.Background(), model.Month{Year: 2024, Month: time.June})
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/cal/secret.ics?token=abcd"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not-a-url"))
}
