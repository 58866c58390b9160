package schedule

import "racecal/internal/model"

// CountdownLabel maps a localized event's status and relative labels to
// the display phrase. Pure formatting; all copy comes from the injected
// phrase set.
func CountdownLabel(status model.Status, startRelative, finishRelative string, phrases Phrases) string {
	switch status {
	case model.StatusLive:
		return phrases.CountdownLive(startRelative)
	case model.StatusFinished:
		if finishRelative != "" {
			return phrases.CountdownFinish(finishRelative)
		}
		if startRelative != "" {
			return phrases.CountdownFinish(startRelative)
		}
		return phrases.CountdownScheduled
	default:
		if startRelative != "" {
			return phrases.CountdownStart(startRelative)
		}
		return phrases.CountdownScheduled
	}
}
