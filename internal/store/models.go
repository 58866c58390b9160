package store

import (
	"time"

	"github.com/uptrace/bun"
)

// Dispatch is the durable at-most-once marker for one (event, offset)
// reminder. The primary key on dispatch_id is what makes concurrent
// create attempts resolve to a single winner.
type Dispatch struct {
	bun.BaseModel `bun:"table:dispatches,alias:d"`

	ID            string `bun:"dispatch_id,pk" json:"dispatchID"`
	EventKey      string `bun:"event_key,notnull" json:"eventKey"`
	OffsetMinutes int    `bun:"offset_minutes,notnull" json:"offsetMinutes"`
	Status        string `bun:"status,notnull" json:"status"`
	Reason        string `bun:"reason,nullzero" json:"reason,omitempty"`

	// Snapshot of the event at claim time, for operator inspection.
	Series   string    `bun:"series,notnull" json:"series"`
	Session  string    `bun:"session,notnull" json:"session"`
	Round    string    `bun:"round,notnull" json:"round"`
	StartsAt time.Time `bun:"starts_at,notnull" json:"startsAt"`

	ScheduledTime time.Time `bun:"scheduled_time,notnull" json:"scheduledTime"`

	SuccessCount int `bun:"success_count,notnull,default:0" json:"successCount"`
	FailureCount int `bun:"failure_count,notnull,default:0" json:"failureCount"`
	TargetCount  int `bun:"target_count,notnull,default:0" json:"targetCount"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// Token is one push-recipient registration. A NULL subscribed_series
// means "receive all series".
type Token struct {
	bun.BaseModel `bun:"table:push_tokens,alias:t"`

	Token            string   `bun:"token,pk" json:"token"`
	SubscribedSeries []string `bun:"subscribed_series,array,nullzero" json:"subscribedSeries,omitempty"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}
