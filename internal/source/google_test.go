package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/calendar/v3"
)

func TestRawFromGoogleEvent(t *testing.T) {
	tests := []struct {
		name       string
		item       *calendar.Event
		wantStart  time.Time
		wantAllDay bool
		wantZero   bool
	}{
		{
			name: "timed event",
			item: &calendar.Event{
				Summary: "Meeting",
				Start:   &calendar.EventDateTime{DateTime: "2024-06-05T10:00:00+09:00"},
				End:     &calendar.EventDateTime{DateTime: "2024-06-05T11:00:00+09:00"},
			},
			wantStart: time.Date(2024, time.June, 5, 10, 0, 0, 0, time.FixedZone("", 9*3600)),
		},
		{
			name: "all-day event",
			item: &calendar.Event{
				Summary: "Trip",
				ColorId: "7",
				Start:   &calendar.EventDateTime{Date: "2024-06-10"},
				End:     &calendar.EventDateTime{Date: "2024-06-13"},
			},
			wantStart:  time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC),
			wantAllDay: true,
		},
		{
			name:     "missing start",
			item:     &calendar.Event{Summary: "Broken"},
			wantZero: true,
		},
		{
			name: "unparseable start",
			item: &calendar.Event{
				Summary: "Worse",
				Start:   &calendar.EventDateTime{DateTime: "yesterday-ish"},
			},
			wantZero: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawFromGoogleEvent(tt.item)
			assert.Equal(t, tt.item.Summary, raw.Title)
			assert.Equal(t, tt.item.ColorId, raw.ColorID)
			assert.Equal(t, tt.wantAllDay, raw.AllDay)
			if tt.wantZero {
				assert.True(t, raw.Start.IsZero())
				return
			}
			assert.True(t, raw.Start.Equal(tt.wantStart), "start %v", raw.Start)
		})
	}
}
