package ics

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "racecal/internal/log"
	"racecal/internal/model"
)

// expandLimits bounds recurrence expansion so a malformed rule cannot
// blow up the event list.
type expandLimits struct {
	horizon        time.Duration
	maxOccurrences int
}

func defaultExpandLimits() expandLimits {
	return expandLimits{
		horizon:        366 * 24 * time.Hour,
		maxOccurrences: 100,
	}
}

// expandRecurring turns an RRULE-bearing candidate into its concrete
// occurrences within the horizon, preserving the base event's duration.
// On a malformed rule the base event alone is kept; recurrence is
// best-effort, the single occurrence is not.
func expandRecurring(ev model.ScheduleEvent, rawRRule string, lim expandLimits) []model.ScheduleEvent {
	r, err := rrule.StrToRRule(rawRRule)
	if err != nil {
		appLog.Error("failed to parse RRULE, keeping single occurrence", err,
			"uid", ev.UID, "rrule", rawRRule)
		return []model.ScheduleEvent{ev}
	}
	r.DTStart(ev.StartsAtUTC)

	occTimes := r.Between(ev.StartsAtUTC, ev.StartsAtUTC.Add(lim.horizon), true)
	if len(occTimes) == 0 {
		return []model.ScheduleEvent{ev}
	}
	if len(occTimes) > lim.maxOccurrences {
		appLog.Info("recurrence truncated at occurrence cap",
			"uid", ev.UID, "cap", lim.maxOccurrences)
		occTimes = occTimes[:lim.maxOccurrences]
	}

	var duration time.Duration
	if ev.EndsAtUTC != nil {
		duration = ev.EndsAtUTC.Sub(ev.StartsAtUTC)
	}

	out := make([]model.ScheduleEvent, 0, len(occTimes))
	for i, start := range occTimes {
		occ := ev
		occ.StartsAtUTC = start.UTC()
		if ev.EndsAtUTC != nil {
			end := occ.StartsAtUTC.Add(duration)
			occ.EndsAtUTC = &end
		}
		// Later occurrences get a derived UID so dispatch dedup keys
		// stay unique per instance.
		if i > 0 && ev.UID != "" {
			occ.UID = ev.UID + "_" + occ.StartsAtUTC.Format("20060102T150405Z")
		}
		out = append(out, occ)
	}
	return out
}
