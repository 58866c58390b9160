package ics

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"racecal/internal/model"
)

func defaultSeries() []model.Series {
	return []model.Series{"F1", "F2", "F3", "MotoGP"}
}

func wrapCalendar(vevents ...string) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\n")
	for _, ve := range vevents {
		b.WriteString("BEGIN:VEVENT\n")
		b.WriteString(strings.TrimSpace(ve))
		b.WriteString("\nEND:VEVENT\n")
	}
	b.WriteString("END:VCALENDAR\n")
	return b.String()
}

func TestParseDelimitedFormat(t *testing.T) {
	doc := wrapCalendar(`
UID:f1-bahrain-race
SUMMARY:F1 | Bahrain Grand Prix | Bahrain | Sakhir | Race
DTSTART:20260405T150000Z
DTEND:20260405T170000Z`)

	events := NewParser(defaultSeries(), "F1").Parse(doc)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	ev := events[0]
	if ev.Series != "F1" {
		t.Errorf("series = %s, want F1", ev.Series)
	}
	if ev.Round != "Bahrain Grand Prix" {
		t.Errorf("round = %q, want Bahrain Grand Prix", ev.Round)
	}
	if ev.Country != "Bahrain" || ev.Circuit != "Sakhir" {
		t.Errorf("location = %q/%q, want Bahrain/Sakhir", ev.Country, ev.Circuit)
	}
	if ev.Session != model.SessionRace {
		t.Errorf("session = %s, want Race", ev.Session)
	}
	wantStart := time.Date(2026, 4, 5, 15, 0, 0, 0, time.UTC)
	if !ev.StartsAtUTC.Equal(wantStart) {
		t.Errorf("start = %v, want %v", ev.StartsAtUTC, wantStart)
	}
	if ev.EndsAtUTC == nil || !ev.EndsAtUTC.Equal(wantStart.Add(2*time.Hour)) {
		t.Errorf("end = %v, want %v", ev.EndsAtUTC, wantStart.Add(2*time.Hour))
	}
	if ev.UID != "f1-bahrain-race" {
		t.Errorf("uid = %q, want f1-bahrain-race", ev.UID)
	}
}

func TestParseDelimitedTimezoneParameter(t *testing.T) {
	// 17:00 in Rome during CEST is 15:00 UTC; the synthesized
	// DTSTART_TZID key must carry the parameter through.
	doc := wrapCalendar(`
SUMMARY:F1 | Emilia Romagna Grand Prix | Italy | Imola | Qualifying
DTSTART;TZID=Europe/Rome:20260516T170000`)

	events := NewParser(defaultSeries(), "F1").Parse(doc)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	want := time.Date(2026, 5, 16, 15, 0, 0, 0, time.UTC)
	if !events[0].StartsAtUTC.Equal(want) {
		t.Errorf("start = %v, want %v", events[0].StartsAtUTC, want)
	}
}

func TestParseDelimitedEndReusesStartTimezone(t *testing.T) {
	doc := wrapCalendar(`
SUMMARY:F2 | Monaco | Monaco | Monte Carlo | Sprint
DTSTART;TZID=Europe/Monaco:20260523T140000
DTEND:20260523T150000`)

	events := NewParser(defaultSeries(), "F1").Parse(doc)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.EndsAtUTC == nil {
		t.Fatal("end missing")
	}
	if got := ev.EndsAtUTC.Sub(ev.StartsAtUTC); got != time.Hour {
		t.Errorf("duration = %v, want 1h", got)
	}
}

func TestParseDateOnlyStart(t *testing.T) {
	doc := wrapCalendar(`
SUMMARY:F3 | Silverstone | Great Britain | Silverstone | Race
DTSTART:20260704`)

	events := NewParser(defaultSeries(), "F1").Parse(doc)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	want := time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)
	if !events[0].StartsAtUTC.Equal(want) {
		t.Errorf("start = %v, want %v", events[0].StartsAtUTC, want)
	}
}

func TestParseMotoGPFreeText(t *testing.T) {
	doc := wrapCalendar(`
CATEGORIES:motogp
SUMMARY:MotoGP Race — Spanish Grand Prix
LOCATION:Circuito de Jerez\, Spain
DTSTART:20260426T120000Z`)

	events := NewParser(defaultSeries(), "F1").Parse(doc)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	ev := events[0]
	if ev.Series != "MotoGP" {
		t.Errorf("series = %s, want MotoGP", ev.Series)
	}
	if ev.Session != model.SessionRace {
		t.Errorf("session = %s, want Race", ev.Session)
	}
	if ev.Circuit != "Circuito de Jerez" {
		t.Errorf("circuit = %q, want Circuito de Jerez", ev.Circuit)
	}
	if ev.Country != "Spain" {
		t.Errorf("country = %q, want Spain", ev.Country)
	}
	if ev.Round != "Spanish Grand Prix" {
		t.Errorf("round = %q, want Spanish Grand Prix", ev.Round)
	}
}

func TestParseMotoGPRoundFromDescription(t *testing.T) {
	doc := wrapCalendar(`
SUMMARY:MotoGP Sprint
DESCRIPTION:Timetable\nMotoGP Grand Prix of Japan
LOCATION:Motegi\, Japan
DTSTART:20261011T060000Z`)

	events := NewParser(defaultSeries(), "F1").Parse(doc)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Session != model.SessionSprint {
		t.Errorf("session = %s, want Sprint", ev.Session)
	}
	if ev.Round != "Grand Prix of Japan" {
		t.Errorf("round = %q, want Grand Prix of Japan", ev.Round)
	}
}

func TestParseMotoGPRoundSynthesized(t *testing.T) {
	// No round candidate and no description: the round label falls back
	// through country, with the series name as the last resort.
	cases := []struct {
		name   string
		vevent string
		want   string
	}{
		{
			name: "from country",
			vevent: `
SUMMARY:MotoGP Race
LOCATION:Phillip Island\, Australia
DTSTART:20261018T040000Z`,
			want: "Australia MotoGP",
		},
		{
			name: "from circuit",
			vevent: `
SUMMARY:MotoGP Race
LOCATION:Phillip Island
DTSTART:20261018T040000Z`,
			want: "Phillip Island",
		},
		{
			name: "series literal",
			vevent: `
SUMMARY:MotoGP Race
DTSTART:20261018T040000Z`,
			want: "MotoGP",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events := NewParser(defaultSeries(), "F1").Parse(wrapCalendar(tc.vevent))
			if len(events) != 1 {
				t.Fatalf("got %d events, want 1", len(events))
			}
			if events[0].Round != tc.want {
				t.Errorf("round = %q, want %q", events[0].Round, tc.want)
			}
		})
	}
}

func TestParseMotoGPPrefixNeedsWordBoundary(t *testing.T) {
	// "MotoGPX" is not a MotoGP summary and must not be claimed by the
	// free-text strategy.
	doc := wrapCalendar(`
SUMMARY:MotoGPX Race — Somewhere Grand Prix
LOCATION:Somewhere\, Nowhere
DTSTART:20261018T040000Z`)

	if events := NewParser(defaultSeries(), "").Parse(doc); len(events) != 0 {
		t.Errorf("got %d events, want candidate dropped", len(events))
	}
}

func TestParseLegacyFormat(t *testing.T) {
	doc := wrapCalendar(`
SUMMARY:RN365 Bahrain GP - Qualifying
LOCATION:Sakhir
DTSTART:20260404T140000Z`)

	events := NewParser(defaultSeries(), "F1").Parse(doc)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Series != "F1" {
		t.Errorf("series = %s, want fallback F1", ev.Series)
	}
	if ev.Round != "Bahrain GP" {
		t.Errorf("round = %q, want Bahrain GP", ev.Round)
	}
	if ev.Session != model.SessionQualifying {
		t.Errorf("session = %s, want Qualifying", ev.Session)
	}
	if ev.Circuit != "Sakhir" {
		t.Errorf("circuit = %q, want Sakhir", ev.Circuit)
	}
}

func TestParseLegacyDisabledWithoutFallback(t *testing.T) {
	doc := wrapCalendar(`
SUMMARY:RN365 Bahrain GP - Qualifying
DTSTART:20260404T140000Z`)

	if events := NewParser(defaultSeries(), "").Parse(doc); len(events) != 0 {
		t.Errorf("got %d events, want 0 with no fallback series", len(events))
	}
}

func TestParseDropsBadCandidates(t *testing.T) {
	cases := []struct {
		name   string
		vevent string
	}{
		{"unparseable start", `
SUMMARY:F1 | Bahrain Grand Prix | Bahrain | Sakhir | Race
DTSTART:not-a-date`},
		{"unknown series", `
SUMMARY:F4 | Bahrain | Bahrain | Sakhir | Race
DTSTART:20260405T150000Z`},
		{"unmatched session", `
SUMMARY:F1 | Bahrain Grand Prix | Bahrain | Sakhir | Warmup
DTSTART:20260405T150000Z`},
		{"too few fields", `
SUMMARY:F1 | Bahrain Grand Prix | Race
DTSTART:20260405T150000Z`},
		{"missing summary", `
DTSTART:20260405T150000Z`},
		{"unknown timezone", `
SUMMARY:F1 | Bahrain Grand Prix | Bahrain | Sakhir | Race
DTSTART;TZID=Not/AZone:20260405T150000`},
		{"no strategy applies", `
SUMMARY:Completely unrelated entry
DTSTART:20260405T150000Z`},
	}

	p := NewParser(defaultSeries(), "F1")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if events := p.Parse(wrapCalendar(tc.vevent)); len(events) != 0 {
				t.Errorf("got %d events, want candidate dropped", len(events))
			}
		})
	}
}

func TestParseMixedFeedCounts(t *testing.T) {
	doc := wrapCalendar(
		"SUMMARY:F1 | Bahrain Grand Prix | Bahrain | Sakhir | Race\nDTSTART:20260405T150000Z",
		"SUMMARY:broken entry\nDTSTART:20260401T100000Z",
		"SUMMARY:MotoGP Race — Spanish Grand Prix\nLOCATION:Jerez\\, Spain\nDTSTART:20260426T120000Z",
	)

	events := NewParser(defaultSeries(), "F1").Parse(doc)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (one candidate dropped)", len(events))
	}
}

func TestParseSortsChronologically(t *testing.T) {
	doc := wrapCalendar(
		"SUMMARY:F1 | Spanish Grand Prix | Spain | Barcelona | Race\nDTSTART:20260614T130000Z",
		"SUMMARY:F1 | Bahrain Grand Prix | Bahrain | Sakhir | Race\nDTSTART:20260405T150000Z",
		"SUMMARY:F1 | Miami Grand Prix | USA | Miami | Race\nDTSTART:20260503T200000Z",
	)

	events := NewParser(defaultSeries(), "F1").Parse(doc)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].StartsAtUTC.Before(events[i-1].StartsAtUTC) {
			t.Errorf("events out of order at %d: %v before %v", i, events[i].StartsAtUTC, events[i-1].StartsAtUTC)
		}
	}
}

func TestParseIsIdempotent(t *testing.T) {
	doc := wrapCalendar(
		"UID:a\nSUMMARY:F1 | Bahrain Grand Prix | Bahrain | Sakhir | Race\nDTSTART:20260405T150000Z\nDTEND:20260405T170000Z",
		"SUMMARY:MotoGP Race — Spanish Grand Prix\nLOCATION:Jerez\\, Spain\nDTSTART:20260426T120000Z",
	)

	p := NewParser(defaultSeries(), "F1")
	first := p.Parse(doc)
	second := p.Parse(doc)
	if !reflect.DeepEqual(first, second) {
		t.Error("parsing the same document twice produced different results")
	}
}

func TestStoreLineParameterSynthesis(t *testing.T) {
	bag := make(propertyBag)
	storeLine(bag, "DTSTART;TZID=Asia/Tokyo;VALUE=DATE-TIME:20260405T090000")

	if bag["DTSTART"] != "20260405T090000" {
		t.Errorf("DTSTART = %q", bag["DTSTART"])
	}
	if bag["DTSTART_TZID"] != "Asia/Tokyo" {
		t.Errorf("DTSTART_TZID = %q", bag["DTSTART_TZID"])
	}
	if bag["DTSTART_VALUE"] != "DATE-TIME" {
		t.Errorf("DTSTART_VALUE = %q", bag["DTSTART_VALUE"])
	}
}

func TestStoreLineSplitsAtFirstColon(t *testing.T) {
	bag := make(propertyBag)
	storeLine(bag, "DESCRIPTION:More info: https://example.com/gp")

	if bag["DESCRIPTION"] != "More info: https://example.com/gp" {
		t.Errorf("DESCRIPTION = %q", bag["DESCRIPTION"])
	}
}
