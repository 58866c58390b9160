package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Unit is the granularity of a relative-time phrase.
type Unit string

const (
	UnitMinute Unit = "minute"
	UnitHour   Unit = "hour"
	UnitDay    Unit = "day"
	UnitWeek   Unit = "week"
	UnitMonth  Unit = "month"
	UnitYear   Unit = "year"
)

// Phrases is the injected localized-phrase set used for relative labels
// and countdown text. Copy content is configuration, not code; English
// defaults live in EnglishPhrases.
type Phrases struct {
	Future func(n int, unit Unit) string
	Past   func(n int, unit Unit) string

	CountdownLive      func(relative string) string
	CountdownFinish    func(relative string) string
	CountdownStart     func(relative string) string
	CountdownScheduled string
}

// EnglishPhrases returns the default phrase set.
func EnglishPhrases() Phrases {
	plural := func(n int, unit Unit) string {
		if n == 1 {
			return fmt.Sprintf("%d %s", n, unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	return Phrases{
		Future: func(n int, unit Unit) string { return "in " + plural(n, unit) },
		Past:   func(n int, unit Unit) string { return plural(n, unit) + " ago" },

		CountdownLive:      func(rel string) string { return "Live now" },
		CountdownFinish:    func(rel string) string { return "Finished " + rel },
		CountdownStart:     func(rel string) string { return "Starts " + rel },
		CountdownScheduled: "Scheduled",
	}
}

// ItalianPhrases returns the Italian phrase set.
func ItalianPhrases() Phrases {
	names := map[Unit][2]string{
		UnitMinute: {"minuto", "minuti"},
		UnitHour:   {"ora", "ore"},
		UnitDay:    {"giorno", "giorni"},
		UnitWeek:   {"settimana", "settimane"},
		UnitMonth:  {"mese", "mesi"},
		UnitYear:   {"anno", "anni"},
	}
	plural := func(n int, unit Unit) string {
		forms := names[unit]
		if n == 1 {
			return fmt.Sprintf("%d %s", n, forms[0])
		}
		return fmt.Sprintf("%d %s", n, forms[1])
	}
	return Phrases{
		Future: func(n int, unit Unit) string { return "tra " + plural(n, unit) },
		Past:   func(n int, unit Unit) string { return plural(n, unit) + " fa" },

		CountdownLive:      func(rel string) string { return "In diretta" },
		CountdownFinish:    func(rel string) string { return "Terminata " + rel },
		CountdownStart:     func(rel string) string { return "Inizia " + rel },
		CountdownScheduled: "In programma",
	}
}

// PhrasesFor resolves a locale tag ("en", "it", "it-IT", ...) to its
// phrase set, falling back to English for unknown tags.
func PhrasesFor(locale string) Phrases {
	tag := strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(tag, "-_"); i != -1 {
		tag = tag[:i]
	}
	switch tag {
	case "it":
		return ItalianPhrases()
	default:
		return EnglishPhrases()
	}
}

// RelativeLabel renders the distance between target and base ("now"):
//
//   - a future target under 2 hours away renders as a zero-padded HH:MM
//     clock-style countdown, floored to whole minutes;
//   - otherwise under 2 hours of magnitude, a minute-granularity phrase;
//   - under 48 hours, an hour-granularity phrase;
//   - beyond that, day/week/month/year granularity.
func RelativeLabel(target, base time.Time, phrases Phrases) string {
	diff := target.Sub(base)

	if diff > 0 && diff < 2*time.Hour {
		total := int(diff.Seconds())
		return fmt.Sprintf("%02d:%02d", total/3600, (total%3600)/60)
	}

	abs := diff
	if abs < 0 {
		abs = -abs
	}

	var (
		n    int
		unit Unit
	)
	switch hours := abs.Hours(); {
	case hours < 2:
		n, unit = int(abs.Minutes()), UnitMinute
	case hours < 48:
		n, unit = int(hours), UnitHour
	default:
		days := int(hours / 24)
		switch {
		case days < 7:
			n, unit = days, UnitDay
		case days < 30:
			n, unit = days/7, UnitWeek
		case days < 365:
			n, unit = days/30, UnitMonth
		default:
			n, unit = days/365, UnitYear
		}
	}

	if diff >= 0 {
		return phrases.Future(n, unit)
	}
	return phrases.Past(n, unit)
}
