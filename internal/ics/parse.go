package ics

import (
	"regexp"
	"sort"
	"strings"
	"time"

	appLog "racecal/internal/log"
	"racecal/internal/model"
)

// propertyBag accumulates the properties of one VEVENT block, keyed by
// the uppercased base property name. Parameters are stored alongside
// under synthesized keys, e.g. `DTSTART;TZID=Europe/Rome:...` yields both
// "DTSTART" and "DTSTART_TZID". One bag lives for exactly one VEVENT.
type propertyBag map[string]string

var (
	motoPrefix    = regexp.MustCompile(`(?i)^MotoGP\b\s*`)
	ptPrefix      = regexp.MustCompile(`(?i)^PT\s+`)
	rn365Prefix   = regexp.MustCompile(`^RN365\s*`)
	dashSeparator = regexp.MustCompile(`\s+[-\x{2013}\x{2014}]\s+`)
	grandPrixText = regexp.MustCompile(`(?i)grand prix`)
)

// Parser turns raw ICS schedule feeds into normalized ScheduleEvents.
// It is a pure function of its input and configuration: no I/O, no
// clock, safe for concurrent use.
type Parser struct {
	known    map[model.Series]struct{}
	fallback model.Series
}

// NewParser builds a parser recognizing the given series identifiers.
// fallback is applied to legacy single-series entries that do not declare
// a series; when empty, such entries are dropped.
func NewParser(known []model.Series, fallback model.Series) *Parser {
	set := make(map[model.Series]struct{}, len(known))
	for _, s := range known {
		set[s] = struct{}{}
	}
	return &Parser{known: set, fallback: fallback}
}

// summaryStrategy is one way of reading a VEVENT's accumulated
// properties into a ScheduleEvent. Strategies are tried in a fixed
// priority order; the first one that both applies and succeeds wins.
type summaryStrategy struct {
	name    string
	applies func(bag propertyBag) bool
	extract func(bag propertyBag) (model.ScheduleEvent, bool)
}

// Parse scans an ICS document and returns the schedule events it could
// normalize, sorted ascending by start time. Candidates that fail
// required-field extraction or series/session normalization are dropped
// silently: a best-effort feed parser favors partial success over
// all-or-nothing failure.
func (p *Parser) Parse(doc string) []model.ScheduleEvent {
	strategies := []summaryStrategy{
		{name: "delimited", applies: appliesDelimited, extract: p.extractDelimited},
		{name: "motogp", applies: appliesMotoGP, extract: p.extractMotoGP},
		{name: "legacy", applies: p.appliesLegacy, extract: p.extractLegacy},
	}

	events := make([]model.ScheduleEvent, 0)
	var current propertyBag

	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimRight(line, "\r")

		switch line {
		case "BEGIN:VEVENT":
			current = make(propertyBag)
			continue
		case "END:VEVENT":
			if current != nil {
				events = append(events, p.buildEvent(current, strategies)...)
			}
			current = nil
			continue
		}

		if current == nil {
			continue
		}
		storeLine(current, line)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartsAtUTC.Before(events[j].StartsAtUTC)
	})
	return events
}

// storeLine splits one content line at the first colon and records the
// value under the uppercased base key, plus each ;PARAM=VALUE pair under
// a synthesized BASEKEY_PARAM key.
func storeLine(bag propertyBag, line string) {
	head, value, ok := strings.Cut(line, ":")
	if !ok || head == "" {
		return
	}

	parts := strings.Split(head, ";")
	baseKey := strings.ToUpper(parts[0])
	bag[baseKey] = value

	for _, param := range parts[1:] {
		pk, pv, ok := strings.Cut(param, "=")
		if !ok || pk == "" || pv == "" {
			continue
		}
		bag[baseKey+"_"+strings.ToUpper(pk)] = pv
	}
}

// buildEvent tries the strategies in order against a completed bag.
// An RRULE-bearing candidate is expanded into its concrete occurrences.
func (p *Parser) buildEvent(bag propertyBag, strategies []summaryStrategy) []model.ScheduleEvent {
	if bag["SUMMARY"] == "" || bag["DTSTART"] == "" {
		return nil
	}

	for _, st := range strategies {
		if !st.applies(bag) {
			continue
		}
		ev, ok := st.extract(bag)
		if !ok {
			continue
		}
		if rule := bag["RRULE"]; rule != "" {
			return expandRecurring(ev, rule, defaultExpandLimits())
		}
		return []model.ScheduleEvent{ev}
	}
	return nil
}

// ---- delimited format: "F1 | Bahrain Grand Prix | Bahrain | Sakhir | Race"

func appliesDelimited(bag propertyBag) bool {
	return strings.Contains(bag["SUMMARY"], "|")
}

func (p *Parser) extractDelimited(bag propertyBag) (model.ScheduleEvent, bool) {
	parts := strings.Split(bag["SUMMARY"], "|")
	if len(parts) < 5 {
		return model.ScheduleEvent{}, false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	series := model.Series(parts[0])
	if _, ok := p.known[series]; !ok {
		return model.ScheduleEvent{}, false
	}

	session, ok := NormalizeSession(parts[4])
	if !ok {
		return model.ScheduleEvent{}, false
	}

	start, ok := parseICSDateTime(bag["DTSTART"], bag["DTSTART_TZID"])
	if !ok {
		return model.ScheduleEvent{}, false
	}

	country := parts[2]
	circuit := parts[3]

	return model.ScheduleEvent{
		Series:      series,
		Round:       sanitizeRound(parts[1], circuit, country, series),
		Country:     country,
		Circuit:     circuit,
		Session:     session,
		StartsAtUTC: start,
		EndsAtUTC:   parseOptionalEnd(bag),
		UID:         bag["UID"],
	}, true
}

// ---- MotoGP free-text format: "MotoGP Race – Spanish Grand Prix"

func appliesMotoGP(bag propertyBag) bool {
	if motoPrefix.MatchString(bag["SUMMARY"]) {
		return true
	}
	for _, cat := range strings.Split(bag["CATEGORIES"], ",") {
		if strings.EqualFold(strings.TrimSpace(cat), "motogp") {
			return true
		}
	}
	return false
}

func (p *Parser) extractMotoGP(bag propertyBag) (model.ScheduleEvent, bool) {
	const series = model.Series("MotoGP")

	summary := bag["SUMMARY"]
	detail := summary
	roundCandidate := ""
	if pieces := dashSeparator.Split(summary, 2); len(pieces) == 2 {
		detail = pieces[0]
		roundCandidate = strings.TrimSpace(pieces[1])
	}

	sessionCode := strings.TrimSpace(motoPrefix.ReplaceAllString(detail, ""))
	session, ok := NormalizeSession(sessionCode)
	if !ok {
		return model.ScheduleEvent{}, false
	}

	start, ok := parseICSDateTime(bag["DTSTART"], bag["DTSTART_TZID"])
	if !ok {
		return model.ScheduleEvent{}, false
	}

	circuit, country := splitLocation(bag["LOCATION"])

	round := roundCandidate
	if round == "" {
		if line := roundFromDescription(bag["DESCRIPTION"]); line != "" {
			round = line
		} else {
			// Deepest fallback layer; worth flagging for feed-quality
			// review without polluting normal runs.
			appLog.Debug("motogp round synthesized from location",
				"summary", summary, "circuit", circuit, "country", country)
		}
	}
	round = sanitizeRound(round, circuit, country, series)

	return model.ScheduleEvent{
		Series:      series,
		Round:       round,
		Country:     country,
		Circuit:     circuit,
		Session:     session,
		StartsAtUTC: start,
		EndsAtUTC:   parseOptionalEnd(bag),
		UID:         bag["UID"],
	}, true
}

// roundFromDescription searches the DESCRIPTION lines (the feed encodes
// newlines as literal `\n`) for one naming the grand prix, falling back
// to the first line, with leading "MotoGP"/"PT " prefixes stripped.
func roundFromDescription(description string) string {
	if description == "" {
		return ""
	}

	lines := make([]string, 0, 4)
	for _, l := range strings.Split(description, `\n`) {
		if t := strings.TrimSpace(l); t != "" {
			lines = append(lines, t)
		}
	}
	if len(lines) == 0 {
		return ""
	}

	line := lines[0]
	for _, l := range lines {
		if grandPrixText.MatchString(l) {
			line = l
			break
		}
	}

	line = motoPrefix.ReplaceAllString(line, "")
	line = ptPrefix.ReplaceAllString(line, "")
	return strings.TrimSpace(line)
}

// ---- legacy single-series format: "RN365 Bahrain GP - Qualifying"

func (p *Parser) appliesLegacy(bag propertyBag) bool {
	if p.fallback == "" {
		return false
	}
	parts := strings.Split(bag["SUMMARY"], " - ")
	return len(parts) >= 2 && parts[0] != "" && parts[1] != ""
}

func (p *Parser) extractLegacy(bag propertyBag) (model.ScheduleEvent, bool) {
	parts := strings.Split(bag["SUMMARY"], " - ")
	if len(parts) < 2 {
		return model.ScheduleEvent{}, false
	}

	session, ok := NormalizeSession(parts[1])
	if !ok {
		return model.ScheduleEvent{}, false
	}

	start, ok := parseICSDateTime(bag["DTSTART"], bag["DTSTART_TZID"])
	if !ok {
		return model.ScheduleEvent{}, false
	}

	eventName := strings.TrimSpace(rn365Prefix.ReplaceAllString(parts[0], ""))
	circuit := unescapeText(bag["LOCATION"])

	return model.ScheduleEvent{
		Series:      p.fallback,
		Round:       sanitizeRound(eventName, circuit, "", p.fallback),
		Circuit:     circuit,
		Session:     session,
		StartsAtUTC: start,
		EndsAtUTC:   parseOptionalEnd(bag),
		UID:         bag["UID"],
	}, true
}

// ---- shared helpers

// parseICSDateTime parses an ICS date/date-time value. Attempts, in
// order: UTC-suffixed date-time, local date-time in the TZID-named zone
// (UTC when absent), bare date in the same zone. A TZID naming an
// unloadable zone fails the local attempts, dropping the candidate.
func parseICSDateTime(raw, tzid string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse("20060102T150405Z", raw); err == nil {
		return t.UTC(), true
	}

	loc := time.UTC
	if tz := strings.TrimSpace(tzid); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, false
		}
		loc = l
	}

	if t, err := time.ParseInLocation("20060102T150405", raw, loc); err == nil {
		return t.UTC(), true
	}
	if t, err := time.ParseInLocation("20060102", raw, loc); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// parseOptionalEnd reads DTEND, reusing the DTSTART timezone parameter
// when DTEND carries none of its own.
func parseOptionalEnd(bag propertyBag) *time.Time {
	raw := bag["DTEND"]
	if raw == "" {
		return nil
	}
	tzid := bag["DTEND_TZID"]
	if tzid == "" {
		tzid = bag["DTSTART_TZID"]
	}
	t, ok := parseICSDateTime(raw, tzid)
	if !ok {
		return nil
	}
	return &t
}

// unescapeText undoes the ICS text escapes the feeds actually use.
func unescapeText(s string) string {
	s = strings.ReplaceAll(s, `\,`, ",")
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}

// splitLocation splits a LOCATION value into circuit (first segment) and
// country (remaining segments rejoined).
func splitLocation(location string) (circuit, country string) {
	if location == "" {
		return "", ""
	}
	parts := make([]string, 0, 2)
	for _, p := range strings.Split(unescapeText(location), ",") {
		if t := strings.TrimSpace(p); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "", ""
	}
	circuit = parts[0]
	if len(parts) > 1 {
		country = strings.Join(parts[1:], ", ")
	}
	return circuit, country
}

// sanitizeRound collapses internal whitespace and guarantees a non-empty
// round label: country+series, then circuit, then the series name itself.
func sanitizeRound(round, circuit, country string, series model.Series) string {
	cleaned := strings.Join(strings.Fields(round), " ")
	if cleaned != "" {
		return cleaned
	}
	if country != "" {
		return country + " " + string(series)
	}
	if circuit != "" {
		return circuit
	}
	return string(series)
}
