package schedule

import (
	"time"

	"racecal/internal/model"
)

// Localize derives the per-viewer view of an event: local start/end in
// loc, relative labels against now, and lifecycle status. It is a pure
// function; callers re-invoke it whenever "now" or the viewer timezone
// changes.
//
// Status ordering matters: an event with a declared end that has passed
// is finished; an event whose start has passed is live. An event with no
// declared end can become live but never finishes by elapsed time alone.
func Localize(ev model.ScheduleEvent, loc *time.Location, phrases Phrases, now time.Time) model.LocalizedEvent {
	if loc == nil {
		loc = time.UTC
	}
	nowLocal := now.In(loc)

	localStart := ev.StartsAtUTC.In(loc)
	var localEnd *time.Time
	if ev.EndsAtUTC != nil {
		le := ev.EndsAtUTC.In(loc)
		localEnd = &le
	}

	out := model.LocalizedEvent{
		Event:         ev,
		LocalStart:    localStart,
		LocalEnd:      localEnd,
		StartRelative: RelativeLabel(localStart, nowLocal, phrases),
		Status:        model.StatusUpcoming,
	}
	if localEnd != nil {
		out.FinishRelative = RelativeLabel(*localEnd, nowLocal, phrases)
	}

	switch {
	case localEnd != nil && !localEnd.After(nowLocal):
		out.Status = model.StatusFinished
	case !localStart.After(nowLocal):
		out.Status = model.StatusLive
	}

	return out
}
