package layout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calpost/internal/model"
)

func TestBuildGrid_June2024SundayStart(t *testing.T) {
	g := BuildGrid(model.Month{Year: 2024, Month: time.June}, time.Sunday)

	// June 1, 2024 is a Saturday, June 30 a Sunday: six full weeks.
	require.Len(t, g.Weeks, 6)
	assert.Equal(t, model.Date(2024, time.May, 26), g.Weeks[0][0].Date)
	assert.Equal(t, model.Date(2024, time.July, 6), g.Weeks[5][6].Date)

	assert.False(t, g.Weeks[0][0].InCurrentMonth)
	assert.True(t, g.Weeks[0][6].InCurrentMonth) // June 1
	assert.False(t, g.Weeks[5][6].InCurrentMonth)
}

func TestBuildGrid_Shape(t *testing.T) {
	tests := []struct {
		name      string
		month     model.Month
		weekStart time.Weekday
		weeks     int
	}{
		{"feb 2021 monday, exactly four weeks", model.Month{Year: 2021, Month: time.February}, time.Monday, 4},
		{"feb 2024 monday, leap month", model.Month{Year: 2024, Month: time.February}, time.Monday, 5},
		{"june 2024 monday", model.Month{Year: 2024, Month: time.June}, time.Monday, 5},
		{"december 2024 sunday, year boundary", model.Month{Year: 2024, Month: time.December}, time.Sunday, 5},
		{"march 2025 saturday start", model.Month{Year: 2025, Month: time.March}, time.Saturday, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := BuildGrid(tt.month, tt.weekStart)
			require.Len(t, g.Weeks, tt.weeks)

			// Every day is exactly one chronological step after the previous,
			// the first row starts on the configured weekday, and the month
			// is fully covered.
			prev := g.Weeks[0][0].Date.AddDate(0, 0, -1)
			for _, week := range g.Weeks {
				for _, cell := range week {
					assert.Equal(t, prev.AddDate(0, 0, 1), cell.Date)
					prev = cell.Date
				}
			}
			assert.Equal(t, tt.weekStart, g.Weeks[0][0].Date.Weekday())

			b := g.Bounds()
			assert.True(t, b.Contains(tt.month.First()))
			assert.True(t, b.Contains(tt.month.Last()))
		})
	}
}

func TestBuildGrid_Deterministic(t *testing.T) {
	m := model.Month{Year: 2026, Month: time.August}
	a := BuildGrid(m, time.Monday)
	b := BuildGrid(m, time.Monday)
	assert.Equal(t, a, b)
}

func TestWeekOf(t *testing.T) {
	g := BuildGrid(model.Month{Year: 2024, Month: time.June}, time.Sunday)

	assert.Equal(t, 0, g.WeekOf(model.Date(2024, time.May, 26)))
	assert.Equal(t, 2, g.WeekOf(model.Date(2024, time.June, 10)))
	assert.Equal(t, 5, g.WeekOf(model.Date(2024, time.July, 6)))
	assert.Equal(t, -1, g.WeekOf(model.Date(2024, time.July, 7)))
	assert.Equal(t, -1, g.WeekOf(model.Date(2024, time.May, 25)))
}
