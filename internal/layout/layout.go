package layout

import (
	"fmt"
	"sort"
	"time"

	"calpost/internal/model"
)

// Segment is the portion of an event confined to a single week of the
// grid. An event spanning multiple weeks yields one segment per week,
// each re-anchored to that week's columns. A Segment with MoreCount > 0
// is a synthetic overflow indicator ("+N more") and has a nil Event.
type Segment struct {
	Event     *model.Event
	WeekIndex int
	StartCol  int // 0..6, weekday offset within the week
	Span      int // consecutive days covered within the week, >= 1
	Row       int // vertical packing slot within the week

	// MoreCount is the number of hidden single-day events summarized by
	// this indicator segment. Zero for ordinary segments.
	MoreCount int
}

// EndCol returns the last column covered by the segment.
func (s Segment) EndCol() int { return s.StartCol + s.Span - 1 }

// IsOverflow reports whether the segment is a "+N more" indicator.
func (s Segment) IsOverflow() bool { return s.MoreCount > 0 }

// BadRowBudgetError reports an invalid maxRowsPerDay configuration.
// This is fatal: the caller must fix the configuration before rendering.
type BadRowBudgetError struct {
	MaxRows int
}

func (e *BadRowBudgetError) Error() string {
	return fmt.Sprintf("layout: max rows per day must be at least 1, got %d", e.MaxRows)
}

// Layout assigns events to grid cells. Events are packed greedily in a
// fixed sort order (duration descending, then start ascending, then
// title ascending), so multi-day events claim the low rows first and
// the result is stable under input reordering.
//
// Within each week a segment takes the lowest row whose column range is
// free; this greedy interval coloring is adequate for calendar-density
// inputs. When a day needs more rows than maxRowsPerDay, its surplus
// single-day events collapse into one "+N more" indicator at the last
// allowed row. Multi-day segments are never dropped for overflow, even
// when that exceeds the row budget visually.
func Layout(events []model.Event, grid MonthGrid, maxRowsPerDay int) ([]Segment, error) {
	if maxRowsPerDay < 1 {
		return nil, &BadRowBudgetError{MaxRows: maxRowsPerDay}
	}

	sorted := make([]model.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Days() != b.Days() {
			return a.Days() > b.Days()
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.Title < b.Title
	})

	bounds := grid.Bounds()
	placed := make([][]Segment, len(grid.Weeks)) // per-week occupancy

	for i := range sorted {
		ev := &sorted[i]
		// Split at week boundaries: one segment per overlapped week.
		for w := range grid.Weeks {
			weekStart := grid.Weeks[w][0].Date
			weekEnd := grid.Weeks[w][6].Date

			segStart := maxDate(ev.Start, weekStart)
			segEnd := minDate(ev.End, weekEnd)
			if segEnd.Before(segStart) {
				continue
			}
			// Normalize guarantees events are clipped to the grid, but a
			// caller handing in unclipped events should not corrupt the
			// column math.
			if segEnd.Before(bounds.First) || segStart.After(bounds.Last) {
				continue
			}

			startCol := model.DaysBetween(weekStart, segStart)
			span := model.DaysBetween(segStart, segEnd) + 1

			seg := Segment{
				Event:     ev,
				WeekIndex: w,
				StartCol:  startCol,
				Span:      span,
			}
			seg.Row = lowestFreeRow(placed[w], startCol, seg.EndCol())
			placed[w] = append(placed[w], seg)
		}
	}

	segments := collapseOverflow(placed, maxRowsPerDay)

	sort.SliceStable(segments, func(i, j int) bool {
		a, b := segments[i], segments[j]
		if a.WeekIndex != b.WeekIndex {
			return a.WeekIndex < b.WeekIndex
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.StartCol < b.StartCol
	})
	return segments, nil
}

// lowestFreeRow returns the smallest row index such that no already
// placed segment on that row overlaps [startCol, endCol].
func lowestFreeRow(week []Segment, startCol, endCol int) int {
	for row := 0; ; row++ {
		free := true
		for _, s := range week {
			if s.Row != row {
				continue
			}
			if startCol <= s.EndCol() && endCol >= s.StartCol {
				free = false
				break
			}
		}
		if free {
			return row
		}
	}
}

// collapseOverflow enforces the per-day row budget. For each day whose
// single-day events spilled past the budget, the spilled segments plus
// the single-day segment sitting on the last allowed row are replaced
// by one indicator summarizing them. Multi-day segments are kept
// wherever they landed.
func collapseOverflow(placed [][]Segment, maxRows int) []Segment {
	out := make([]Segment, 0)

	for w, week := range placed {
		// hidden[col] counts single-day events removed for that day.
		var hidden [7]int
		for _, s := range week {
			if isSingleDay(s) && s.Row >= maxRows {
				hidden[s.StartCol]++
			}
		}

		for _, s := range week {
			if isSingleDay(s) {
				if s.Row >= maxRows {
					continue // summarized by the indicator
				}
				if s.Row == maxRows-1 && hidden[s.StartCol] > 0 {
					// The indicator takes this slot; absorb the event.
					hidden[s.StartCol]++
					continue
				}
			}
			out = append(out, s)
		}

		for col, n := range hidden {
			if n == 0 {
				continue
			}
			out = append(out, Segment{
				WeekIndex: w,
				StartCol:  col,
				Span:      1,
				Row:       maxRows - 1,
				MoreCount: n,
			})
		}
	}
	return out
}

// isSingleDay reports whether the segment belongs to a single-day
// event. A one-column segment of a multi-day event (a span cut at a
// week boundary) is not single-day and is exempt from overflow.
func isSingleDay(s Segment) bool {
	return s.Event != nil && s.Event.Days() == 1
}

func maxDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minDate(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
