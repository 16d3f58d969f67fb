package source

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "calpost/internal/log"
	"calpost/internal/model"
)

// maxOccurrencesPerEvent caps recurrence expansion so a pathological
// RRULE cannot blow up a fetch cycle.
const maxOccurrencesPerEvent = 1000

// expandEvents turns parsed VEVENTs into concrete raw events within
// [rangeStart, rangeEnd). Recurring events are expanded via their
// RRULE with EXDATEs removed and RECURRENCE-ID overrides applied.
func expandEvents(events []icsEvent, rangeStart, rangeEnd time.Time) []model.RawEvent {
	baseByUID := make(map[string][]icsEvent)
	overridesByUID := make(map[string][]icsEvent)
	uidOrder := make([]string, 0, len(events))

	for _, ev := range events {
		if ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			uidOrder = append(uidOrder, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	out := make([]model.RawEvent, 0, len(events))
	for _, uid := range uidOrder {
		for _, base := range baseByUID[uid] {
			out = append(out, expandOne(base, overridesByUID[uid], rangeStart, rangeEnd)...)
		}
	}
	return out
}

func expandOne(ev icsEvent, overrides []icsEvent, rangeStart, rangeEnd time.Time) []model.RawEvent {
	if ev.RawRRule == "" {
		if ev.End.Before(rangeStart) || ev.Start.After(rangeEnd) {
			return nil
		}
		return []model.RawEvent{rawFromICS(ev, ev.Start, ev.End)}
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("failed to parse RRULE, keeping base instance only", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return []model.RawEvent{rawFromICS(ev, ev.Start, ev.End)}
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Between operates in the event's own location.
	occTimes := set.Between(rangeStart.In(ev.Start.Location()), rangeEnd.In(ev.Start.Location()), true)
	if len(occTimes) > maxOccurrencesPerEvent {
		appLog.Error("recurrence expansion truncated", nil, "uid", ev.UID, "cap", maxOccurrencesPerEvent)
		occTimes = occTimes[:maxOccurrencesPerEvent]
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]model.RawEvent, 0, len(occTimes))
	for _, occStart := range occTimes {
		occEnd := occStart.Add(dur)
		if ev.AllDay {
			date := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = date
			occEnd = date.Add(dur)
			if !occEnd.After(occStart) {
				occEnd = date.Add(24 * time.Hour)
			}
		}

		src := ev
		if ov, ok := overrideFor(overrides, occStart); ok {
			src = ov
			occStart = ov.Start
			occEnd = ov.End
		}

		out = append(out, rawFromICS(src, occStart, occEnd))
	}
	return out
}

// overrideFor finds the override VEVENT whose RECURRENCE-ID matches
// the occurrence start, with exact time equality.
func overrideFor(overrides []icsEvent, occStart time.Time) (icsEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.In(occStart.Location()).Equal(occStart) {
			return ov, true
		}
	}
	return icsEvent{}, false
}

func rawFromICS(ev icsEvent, start, end time.Time) model.RawEvent {
	return model.RawEvent{
		Title:  ev.Summary,
		Start:  start,
		End:    end,
		AllDay: ev.AllDay,
	}
}
