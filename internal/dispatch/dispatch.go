package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	appLog "racecal/internal/log"
	"racecal/internal/model"
)

// Config tunes a Dispatcher. Zero values fall back to the reference
// deployment's numbers.
type Config struct {
	// OffsetsMinutes are the lead times before an event's start at which
	// a reminder fires.
	OffsetsMinutes []int
	// Window bounds how late a cycle may run and still fire a reminder.
	Window time.Duration
	// BatchSize bounds recipients per push send call.
	BatchSize int
}

func (c *Config) normalize() {
	if len(c.OffsetsMinutes) == 0 {
		c.OffsetsMinutes = []int{120, 5}
	}
	if c.Window <= 0 {
		c.Window = 5 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
}

// Dispatcher runs reminder cycles: for each upcoming event and each lead
// time, it claims the (event, offset) pair exactly once and pushes to the
// subscribed recipients. Multiple overlapping runs are safe; correctness
// rests entirely on the store's atomic create-if-absent.
type Dispatcher struct {
	source ScheduleSource
	store  Store
	tokens TokenStore
	sender Sender
	cfg    Config
}

// New builds a Dispatcher. All collaborators are required.
func New(source ScheduleSource, store Store, tokens TokenStore, sender Sender, cfg Config) *Dispatcher {
	cfg.normalize()
	return &Dispatcher{
		source: source,
		store:  store,
		tokens: tokens,
		sender: sender,
		cfg:    cfg,
	}
}

// Run executes one dispatcher cycle against the given instant. A schedule
// fetch failure aborts the whole cycle; per-pair store failures abort
// only that pair. The error return reflects the cycle-fatal cases so the
// scheduler can log them.
func (d *Dispatcher) Run(ctx context.Context, now time.Time) error {
	events, err := d.source.Events(ctx)
	if err != nil {
		appLog.Error("dispatch cycle aborted: schedule unavailable", err)
		return err
	}
	if len(events) == 0 {
		return nil
	}

	recipients, err := d.tokens.List(ctx)
	if err != nil {
		appLog.Error("dispatch cycle aborted: token scan failed", err)
		return err
	}

	now = now.UTC()
	for _, ev := range events {
		for _, offsetMin := range d.cfg.OffsetsMinutes {
			d.runPair(ctx, ev, offsetMin, recipients, now)
		}
	}
	return nil
}

// runPair handles one (event, offset) pair within a cycle.
func (d *Dispatcher) runPair(ctx context.Context, ev model.ScheduleEvent, offsetMin int, recipients []model.TokenRecord, now time.Time) {
	scheduled := ev.StartsAtUTC.Add(-time.Duration(offsetMin) * time.Minute)
	if now.Before(scheduled) || now.After(scheduled.Add(d.cfg.Window)) {
		return
	}

	eventKey := ev.Key()
	id := eventKey + "_" + strconv.Itoa(offsetMin)

	created, err := d.store.Create(ctx, Record{
		ID:            id,
		EventKey:      eventKey,
		OffsetMinutes: offsetMin,
		Event:         ev,
		ScheduledTime: scheduled,
		Status:        StatusPending,
	})
	if err != nil {
		// Left for reprocessing next cycle only if no record was durably
		// created.
		appLog.Error("dispatch record create failed", err, "dispatch_id", id)
		return
	}
	if !created {
		// Expected when another run won the race or a prior cycle
		// already handled the pair.
		appLog.Debug("dispatch already claimed", "dispatch_id", id)
		return
	}

	targets := make([]string, 0, len(recipients))
	for _, rec := range recipients {
		if rec.Token != "" && rec.WantsSeries(ev.Series) {
			targets = append(targets, rec.Token)
		}
	}
	if len(targets) == 0 {
		if err := d.store.MarkSkipped(ctx, id, "no_targets"); err != nil {
			appLog.Error("dispatch mark skipped failed", err, "dispatch_id", id)
		}
		return
	}

	notif := buildNotification(ev, offsetMin, eventKey)

	var counters Counters
	counters.Targets = len(targets)
	var invalid []string

	for start := 0; start < len(targets); start += d.cfg.BatchSize {
		end := min(start+d.cfg.BatchSize, len(targets))
		batch := targets[start:end]

		res, err := d.sender.Send(ctx, batch, notif)
		if err != nil {
			// Whole-batch failure is tolerated and reflected in the
			// counters, not retried.
			appLog.Error("push batch send failed", err, "dispatch_id", id, "batch_size", len(batch))
			counters.Failure += len(batch)
			continue
		}
		counters.Success += res.SuccessCount
		counters.Failure += res.FailureCount
		invalid = append(invalid, res.InvalidTokens...)
	}

	// Best effort: individual deletion failures are swallowed.
	for _, token := range invalid {
		if err := d.tokens.Delete(ctx, token); err != nil {
			appLog.Debug("invalid token delete failed", "err", err)
		}
	}
	if len(invalid) > 0 {
		appLog.Info("pruned invalid push registrations", "dispatch_id", id, "count", len(invalid))
	}

	if err := d.store.MarkSent(ctx, id, counters); err != nil {
		appLog.Error("dispatch mark sent failed", err, "dispatch_id", id)
		return
	}
	appLog.Info("reminder dispatched",
		"dispatch_id", id,
		"series", ev.Series,
		"session", ev.Session,
		"round", ev.Round,
		"offset_minutes", offsetMin,
		"targets", counters.Targets,
		"success", counters.Success,
		"failure", counters.Failure,
	)
}

// buildNotification assembles the push payload for one reminder.
func buildNotification(ev model.ScheduleEvent, offsetMin int, eventKey string) Notification {
	offsetLabel := leadLabel(offsetMin)
	title := fmt.Sprintf("%s %s", ev.Series, ev.Session)

	body := fmt.Sprintf("Starts in %s.", offsetLabel)
	if ev.Round != "" {
		body = fmt.Sprintf("%s starts in %s.", ev.Round, offsetLabel)
	}

	data := map[string]string{
		"series":        string(ev.Series),
		"session":       string(ev.Session),
		"round":         ev.Round,
		"startsAtUtc":   ev.StartsAtUTC.UTC().Format(time.RFC3339),
		"offsetMinutes": strconv.Itoa(offsetMin),
		"eventKey":      eventKey,
	}
	if ev.Circuit != "" {
		data["circuit"] = ev.Circuit
	}
	if ev.Country != "" {
		data["country"] = ev.Country
	}

	return Notification{Title: title, Body: body, Data: data}
}

// leadLabel humanizes a lead time in minutes: "2 hours", "5 minutes".
func leadLabel(minutes int) string {
	if minutes >= 60 && minutes%60 == 0 {
		hours := minutes / 60
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
