package schedule

import (
	"testing"
	"time"
)

func TestRelativeLabel(t *testing.T) {
	base := time.Date(2026, 4, 5, 12, 0, 0, 0, time.UTC)
	phrases := EnglishPhrases()

	cases := []struct {
		name   string
		offset time.Duration
		want   string
	}{
		{"clock countdown", 65 * time.Minute, "01:05"},
		{"clock countdown under an hour", 5 * time.Minute, "00:05"},
		{"clock countdown upper edge", 119 * time.Minute, "01:59"},
		{"exactly two hours ahead", 2 * time.Hour, "in 2 hours"},
		{"hours ahead", 3 * time.Hour, "in 3 hours"},
		{"minutes ago", -90 * time.Minute, "90 minutes ago"},
		{"one minute ago", -time.Minute, "1 minute ago"},
		{"hours ago", -5 * time.Hour, "5 hours ago"},
		{"days ahead", 3 * 24 * time.Hour, "in 3 days"},
		{"weeks ahead", 10 * 24 * time.Hour, "in 1 week"},
		{"months ahead", 60 * 24 * time.Hour, "in 2 months"},
		{"years ago", -800 * 24 * time.Hour, "2 years ago"},
		{"days ago past hour ceiling", -49 * time.Hour, "2 days ago"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RelativeLabel(base.Add(tc.offset), base, phrases)
			if got != tc.want {
				t.Errorf("RelativeLabel(%+v) = %q, want %q", tc.offset, got, tc.want)
			}
		})
	}
}

func TestRelativeLabelItalian(t *testing.T) {
	base := time.Date(2026, 4, 5, 12, 0, 0, 0, time.UTC)
	phrases := ItalianPhrases()

	cases := []struct {
		offset time.Duration
		want   string
	}{
		{3 * time.Hour, "tra 3 ore"},
		{25 * time.Hour, "tra 25 ore"},
		{-2 * time.Hour, "2 ore fa"},
		{-time.Minute, "1 minuto fa"},
		{3 * 24 * time.Hour, "tra 3 giorni"},
		{65 * time.Minute, "01:05"},
	}
	for _, tc := range cases {
		if got := RelativeLabel(base.Add(tc.offset), base, phrases); got != tc.want {
			t.Errorf("RelativeLabel(%+v) = %q, want %q", tc.offset, got, tc.want)
		}
	}
}

func TestPhrasesFor(t *testing.T) {
	base := time.Date(2026, 4, 5, 12, 0, 0, 0, time.UTC)
	target := base.Add(3 * time.Hour)

	cases := []struct {
		locale string
		want   string
	}{
		{"en", "in 3 hours"},
		{"it", "tra 3 ore"},
		{"it-IT", "tra 3 ore"},
		{"IT", "tra 3 ore"},
		{"", "in 3 hours"},
		{"xx", "in 3 hours"},
	}
	for _, tc := range cases {
		if got := RelativeLabel(target, base, PhrasesFor(tc.locale)); got != tc.want {
			t.Errorf("PhrasesFor(%q) label = %q, want %q", tc.locale, got, tc.want)
		}
	}
}

func TestRelativeLabelZeroDistance(t *testing.T) {
	base := time.Date(2026, 4, 5, 12, 0, 0, 0, time.UTC)
	if got := RelativeLabel(base, base, EnglishPhrases()); got != "in 0 minutes" {
		t.Errorf("got %q, want in 0 minutes", got)
	}
}
