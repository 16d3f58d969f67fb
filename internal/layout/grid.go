// Package layout maps a month of events onto a fixed week-by-weekday
// grid: it builds the grid itself and assigns each (possibly multi-day)
// event to non-overlapping rows within the grid cells.
package layout

import (
	"time"

	"calpost/internal/model"
)

// DayCell is a single day slot in the month grid.
type DayCell struct {
	Date time.Time
	// InCurrentMonth is false for spillover days from adjacent months.
	InCurrentMonth bool
}

// MonthGrid is the complete set of visible weeks for a target month,
// each week exactly seven chronologically consecutive days. The grid
// always starts on WeekStart and covers whole weeks, so the first and
// last rows may contain days from the neighboring months.
type MonthGrid struct {
	Month     model.Month
	WeekStart time.Weekday
	Weeks     [][7]DayCell
}

// BuildGrid computes the grid for the given month. Identical inputs
// always produce identical grids; the layout engine's column arithmetic
// depends on that.
func BuildGrid(m model.Month, weekStart time.Weekday) MonthGrid {
	first := m.First()
	last := m.Last()

	// Align outward to whole weeks.
	back := (int(first.Weekday()) - int(weekStart) + 7) % 7
	firstVisible := first.AddDate(0, 0, -back)

	forward := (int(weekStart) + 6 - int(last.Weekday()) + 7) % 7
	lastVisible := last.AddDate(0, 0, forward)

	total := model.DaysBetween(firstVisible, lastVisible) + 1
	weeks := make([][7]DayCell, total/7)

	day := firstVisible
	for w := range weeks {
		for c := 0; c < 7; c++ {
			weeks[w][c] = DayCell{
				Date:           day,
				InCurrentMonth: day.Month() == m.Month && day.Year() == m.Year,
			}
			day = day.AddDate(0, 0, 1)
		}
	}

	return MonthGrid{Month: m, WeekStart: weekStart, Weeks: weeks}
}

// Bounds returns the inclusive visible date range of the grid.
func (g MonthGrid) Bounds() model.DateRange {
	return model.DateRange{
		First: g.Weeks[0][0].Date,
		Last:  g.Weeks[len(g.Weeks)-1][6].Date,
	}
}

// WeekOf returns the index of the week containing the civil date d, or
// -1 if d is outside the grid.
func (g MonthGrid) WeekOf(d time.Time) int {
	offset := model.DaysBetween(g.Weeks[0][0].Date, d)
	if offset < 0 || offset >= len(g.Weeks)*7 {
		return -1
	}
	return offset / 7
}
