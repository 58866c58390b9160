package ics

import (
	"regexp"
	"strings"

	"racecal/internal/model"
)

var qualiShorthand = regexp.MustCompile(`^Q\d+$`)

// NormalizeSession maps a free-text session label ("Q1", "Sprint
// Qualifying", "Feature Race", "GP", ...) to a canonical session kind.
// The second return is false when the label matches nothing; callers must
// drop the candidate event in that case.
//
// Ordering matters: "sprint qualifying" must resolve to Qualifying rather
// than Sprint, and "feature" races never contain the word "race".
func NormalizeSession(raw string) (model.Session, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	lower := strings.ToLower(trimmed)
	upper := strings.ToUpper(trimmed)

	if strings.Contains(lower, "sprint") || upper == "SPR" {
		if strings.Contains(lower, "qual") {
			return model.SessionQualifying, true
		}
		return model.SessionSprint, true
	}
	if strings.Contains(lower, "qual") || qualiShorthand.MatchString(upper) {
		return model.SessionQualifying, true
	}
	if strings.Contains(lower, "feature") {
		return model.SessionRace, true
	}
	if strings.Contains(lower, "race") || upper == "RAC" || lower == "grand prix" || upper == "GP" {
		return model.SessionRace, true
	}

	return "", false
}
