package dispatch

import (
	"context"
	"time"

	"racecal/internal/model"
)

// Status is the lifecycle of one dispatch record. Records move from
// pending to exactly one terminal state and never back.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusSkipped Status = "skipped"
)

// Record is the durable at-most-once marker for one (event, offset)
// reminder attempt.
type Record struct {
	// ID is eventKey + "_" + offset minutes.
	ID            string
	EventKey      string
	OffsetMinutes int
	Event         model.ScheduleEvent
	ScheduledTime time.Time
	Status        Status
}

// Counters summarizes one dispatch's delivery outcome.
type Counters struct {
	Success int
	Failure int
	Targets int
}

// Store persists dispatch records. Create must be atomic create-if-absent:
// of N concurrent attempts with the same ID, exactly one observes created
// == true. This is the only correctness-critical concurrency primitive in
// the dispatcher.
type Store interface {
	Create(ctx context.Context, rec Record) (created bool, err error)
	MarkSent(ctx context.Context, id string, c Counters) error
	MarkSkipped(ctx context.Context, id, reason string) error
}

// TokenStore is the recipient registry.
type TokenStore interface {
	List(ctx context.Context) ([]model.TokenRecord, error)
	// Delete removes a registration by token value; used to prune
	// recipients the push provider reports as no longer valid.
	Delete(ctx context.Context, token string) error
}

// Notification is a push payload: title/body plus a string-keyed data map
// the client app routes on.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// SendResult is the per-batch outcome of a push send. InvalidTokens holds
// the recipients whose registration the provider classified as no longer
// valid (as opposed to transient failures).
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
}

// Sender delivers one notification to a batch of recipient tokens.
type Sender interface {
	Send(ctx context.Context, tokens []string, n Notification) (SendResult, error)
}

// ScheduleSource yields the current schedule for a dispatcher cycle.
type ScheduleSource interface {
	Events(ctx context.Context) ([]model.ScheduleEvent, error)
}
