package ics

import (
	"context"
	"errors"
	"sort"
	"strings"

	"racecal/internal/model"
)

// ScheduleSource combines the fetcher and the parser into the one-call
// schedule view the web layer and the dispatcher both consume.
type ScheduleSource struct {
	fetcher *Fetcher
	feeds   []Feed
	series  []model.Series
}

// NewScheduleSource builds a source over the configured feeds. series is
// the closed set of recognized championship identifiers.
func NewScheduleSource(fetcher *Fetcher, feeds []Feed, series []model.Series) *ScheduleSource {
	return &ScheduleSource{fetcher: fetcher, feeds: feeds, series: series}
}

// Events fetches and parses every configured feed, returning the merged
// event list sorted by start time. Any feed failure fails the whole call:
// cycle consumers must never act on a partial schedule. A missing feed
// configuration is treated the same way.
func (s *ScheduleSource) Events(ctx context.Context) ([]model.ScheduleEvent, error) {
	if len(s.feeds) == 0 {
		return nil, errors.New("no schedule feeds configured")
	}

	results, errs := s.fetcher.FetchAll(ctx, s.feeds)
	if len(errs) > 0 {
		return nil, aggregate(errs)
	}

	events := make([]model.ScheduleEvent, 0)
	for _, res := range results {
		parser := NewParser(s.series, model.Series(res.Feed.FallbackSeries))
		events = append(events, parser.Parse(string(res.Body))...)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartsAtUTC.Before(events[j].StartsAtUTC)
	})
	return events, nil
}

func aggregate(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	for i, e := range errs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(e.Error())
	}
	return errors.New(b.String())
}
