package schedule

import (
	"time"

	"racecal/internal/model"
)

// lookback keeps recently started sessions visible alongside upcoming ones.
const lookback = 2 * time.Hour

// FilterVisible narrows a sorted event list to the series the viewer has
// enabled and to a time window of [now − 2h, now + horizon]. An event
// also stays visible while its declared end is still inside the window.
// A non-positive horizon falls back to 30 days.
func FilterVisible(events []model.ScheduleEvent, visible map[model.Series]bool, horizon time.Duration, now time.Time) []model.ScheduleEvent {
	if horizon <= 0 {
		horizon = 24 * 30 * time.Hour
	}
	from := now.Add(-lookback)
	to := now.Add(horizon)

	out := make([]model.ScheduleEvent, 0, len(events))
	for _, ev := range events {
		if visible != nil && !visible[ev.Series] {
			continue
		}

		start := ev.StartsAtUTC
		startsWithinWindow := !start.Before(from) && !start.After(to)
		endsAfterFrom := ev.EndsAtUTC != nil && !ev.EndsAtUTC.Before(from)
		startsBeforeTo := !start.After(to)

		if (startsWithinWindow || endsAfterFrom) && startsBeforeTo {
			out = append(out, ev)
		}
	}
	return out
}
