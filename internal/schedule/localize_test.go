package schedule

import (
	"testing"
	"time"

	"racecal/internal/model"
)

func eventAt(start time.Time, end *time.Time) model.ScheduleEvent {
	return model.ScheduleEvent{
		Series:      "F1",
		Round:       "Bahrain Grand Prix",
		Session:     model.SessionRace,
		StartsAtUTC: start,
		EndsAtUTC:   end,
	}
}

func TestLocalizeStatus(t *testing.T) {
	now := time.Date(2026, 4, 5, 15, 0, 0, 0, time.UTC)
	phrases := EnglishPhrases()

	endAt := func(t time.Time) *time.Time { return &t }

	cases := []struct {
		name  string
		start time.Time
		end   *time.Time
		want  model.Status
	}{
		{"future start", now.Add(time.Hour), nil, model.StatusUpcoming},
		{"start exactly now is live", now, nil, model.StatusLive},
		{"started, no end, stays live", now.Add(-26 * time.Hour), nil, model.StatusLive},
		{"end exactly now is finished", now.Add(-2 * time.Hour), endAt(now), model.StatusFinished},
		{"end in the past", now.Add(-3 * time.Hour), endAt(now.Add(-time.Hour)), model.StatusFinished},
		{"started, end in the future", now.Add(-time.Hour), endAt(now.Add(time.Hour)), model.StatusLive},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Localize(eventAt(tc.start, tc.end), time.UTC, phrases, now)
			if got.Status != tc.want {
				t.Errorf("status = %s, want %s", got.Status, tc.want)
			}
		})
	}
}

func TestLocalizeConvertsTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 5, 16, 12, 0, 0, 0, time.UTC)
	start := time.Date(2026, 5, 16, 15, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	out := Localize(eventAt(start, &end), loc, EnglishPhrases(), now)

	if out.LocalStart.Hour() != 17 {
		t.Errorf("local start hour = %d, want 17 (CEST)", out.LocalStart.Hour())
	}
	if out.LocalEnd == nil || out.LocalEnd.Hour() != 18 {
		t.Error("local end not converted")
	}
	if out.StartRelative == "" || out.FinishRelative == "" {
		t.Error("relative labels missing")
	}
}

func TestLocalizeNilLocationDefaultsUTC(t *testing.T) {
	now := time.Date(2026, 4, 5, 15, 0, 0, 0, time.UTC)
	start := now.Add(time.Hour)

	out := Localize(eventAt(start, nil), nil, EnglishPhrases(), now)
	if out.LocalStart.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", out.LocalStart.Location())
	}
}

func TestCountdownLabel(t *testing.T) {
	phrases := EnglishPhrases()

	cases := []struct {
		name   string
		status model.Status
		start  string
		finish string
		want   string
	}{
		{"live", model.StatusLive, "01:30", "in 2 hours", "Live now"},
		{"finished with finish label", model.StatusFinished, "3 hours ago", "1 hour ago", "Finished 1 hour ago"},
		{"finished falls back to start label", model.StatusFinished, "3 hours ago", "", "Finished 3 hours ago"},
		{"finished with no labels", model.StatusFinished, "", "", "Scheduled"},
		{"upcoming", model.StatusUpcoming, "in 3 hours", "", "Starts in 3 hours"},
		{"upcoming with no label", model.StatusUpcoming, "", "", "Scheduled"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CountdownLabel(tc.status, tc.start, tc.finish, phrases)
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
