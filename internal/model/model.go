package model

import (
	"strings"
	"time"
)

// Series identifies a motorsport championship (e.g. "F1", "MotoGP").
// The set of valid values is configuration, not code; DefaultSeries lists
// the championships the stock feeds carry.
type Series string

// DefaultSeries is the stock championship set. Config may extend it.
func DefaultSeries() []Series {
	return []Series{"F1", "F2", "F3", "MotoGP"}
}

// Session is a canonical race-weekend activity kind.
type Session string

const (
	SessionQualifying Session = "Qualifying"
	SessionRace       Session = "Race"
	SessionSprint     Session = "Sprint"
)

// ScheduleEvent is one race-weekend session as produced by the feed
// parser. Events are immutable once produced; downstream layers derive
// view state alongside them but never mutate the source record.
type ScheduleEvent struct {
	Series  Series  `json:"series"`
	Round   string  `json:"round"`
	Country string  `json:"country,omitempty"`
	Circuit string  `json:"circuit,omitempty"`
	Session Session `json:"session"`

	// StartsAtUTC is always a valid instant in UTC.
	StartsAtUTC time.Time `json:"startsAtUtc"`
	// EndsAtUTC is present only when the source supplies an end time.
	EndsAtUTC *time.Time `json:"endsAtUtc,omitempty"`

	// UID is the stable identifier from the source feed, when present.
	UID string `json:"uid,omitempty"`
}

// Key returns a stable identifier for the event: the feed UID when
// present, otherwise a composite of normalized series/session/round/start.
func (e ScheduleEvent) Key() string {
	if uid := strings.TrimSpace(e.UID); uid != "" {
		return uid
	}

	session := strings.ToLower(collapseToDashes(string(e.Session)))
	round := strings.ToLower(collapseToDashes(e.Round))
	start := e.StartsAtUTC.UTC().Format(time.RFC3339)
	return strings.ToLower(string(e.Series)) + "_" + session + "_" + round + "_" + start
}

func collapseToDashes(s string) string {
	return strings.Join(strings.Fields(s), "-")
}

// Status classifies an event's lifecycle relative to "now".
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusLive     Status = "live"
	StatusFinished Status = "finished"
)

// LocalizedEvent wraps a ScheduleEvent with viewer-local derived state.
// It is ephemeral: recomputed whenever "now" or the viewer timezone
// changes, never stored.
type LocalizedEvent struct {
	Event ScheduleEvent `json:"event"`

	LocalStart time.Time  `json:"localStart"`
	LocalEnd   *time.Time `json:"localEnd,omitempty"`

	// StartRelative / FinishRelative are human relative-time labels, or
	// empty when no label applies (e.g. no end time).
	StartRelative  string `json:"startRelative,omitempty"`
	FinishRelative string `json:"finishRelative,omitempty"`

	Status Status `json:"status"`
}

// TokenRecord is one push-notification recipient registration.
// A nil SubscribedSeries means "receive all series".
type TokenRecord struct {
	Token            string   `json:"token"`
	SubscribedSeries []Series `json:"subscribedSeries,omitempty"`
}

// WantsSeries reports whether the recipient should receive reminders for
// the given series.
func (t TokenRecord) WantsSeries(s Series) bool {
	if t.SubscribedSeries == nil {
		return true
	}
	for _, sub := range t.SubscribedSeries {
		if sub == s {
			return true
		}
	}
	return false
}
