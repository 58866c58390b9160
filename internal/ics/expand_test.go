package ics

import (
	"testing"
	"time"

	"racecal/internal/model"
)

func recurringBase() model.ScheduleEvent {
	start := time.Date(2026, 4, 5, 15, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)
	return model.ScheduleEvent{
		Series:      "F1",
		Round:       "Bahrain Grand Prix",
		Session:     model.SessionRace,
		StartsAtUTC: start,
		EndsAtUTC:   &end,
		UID:         "base-uid",
	}
}

func TestExpandRecurringWeekly(t *testing.T) {
	base := recurringBase()
	out := expandRecurring(base, "FREQ=WEEKLY;COUNT=3", defaultExpandLimits())

	if len(out) != 3 {
		t.Fatalf("got %d occurrences, want 3", len(out))
	}
	for i, occ := range out {
		wantStart := base.StartsAtUTC.Add(time.Duration(i) * 7 * 24 * time.Hour)
		if !occ.StartsAtUTC.Equal(wantStart) {
			t.Errorf("occurrence %d start = %v, want %v", i, occ.StartsAtUTC, wantStart)
		}
		if occ.EndsAtUTC == nil || occ.EndsAtUTC.Sub(occ.StartsAtUTC) != 90*time.Minute {
			t.Errorf("occurrence %d lost the base duration", i)
		}
	}

	if out[0].UID != "base-uid" {
		t.Errorf("first occurrence UID = %q, want base-uid", out[0].UID)
	}
	seen := map[string]bool{}
	for _, occ := range out {
		if seen[occ.UID] {
			t.Errorf("duplicate UID %q", occ.UID)
		}
		seen[occ.UID] = true
	}
}

func TestExpandRecurringMalformedRuleKeepsBase(t *testing.T) {
	base := recurringBase()
	out := expandRecurring(base, "FREQ=NOPE", defaultExpandLimits())

	if len(out) != 1 {
		t.Fatalf("got %d occurrences, want the base event alone", len(out))
	}
	if !out[0].StartsAtUTC.Equal(base.StartsAtUTC) || out[0].UID != base.UID {
		t.Error("base event was not preserved verbatim")
	}
}

func TestExpandRecurringOccurrenceCap(t *testing.T) {
	base := recurringBase()
	lim := expandLimits{horizon: 366 * 24 * time.Hour, maxOccurrences: 4}
	out := expandRecurring(base, "FREQ=DAILY", lim)

	if len(out) != 4 {
		t.Fatalf("got %d occurrences, want cap of 4", len(out))
	}
}

func TestParseExpandsRRule(t *testing.T) {
	doc := wrapCalendar(`
UID:weekly
SUMMARY:F1 | Test Round | Bahrain | Sakhir | Race
DTSTART:20260405T150000Z
RRULE:FREQ=WEEKLY;COUNT=2`)

	events := NewParser(defaultSeries(), "F1").Parse(doc)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 expanded occurrences", len(events))
	}
	if got := events[1].StartsAtUTC.Sub(events[0].StartsAtUTC); got != 7*24*time.Hour {
		t.Errorf("interval = %v, want 168h", got)
	}
}
