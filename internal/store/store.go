// Package store backs the dispatch-record and token registries with
// PostgreSQL. The unique-constraint insert on dispatches is the atomic
// create-if-absent primitive the dispatcher's at-most-once guarantee
// rests on.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"racecal/internal/dispatch"
	"racecal/internal/model"
)

// Setup opens a PostgreSQL connection for the given DSN.
func Setup(ctx context.Context, dsn string, debug bool) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

// Store implements the dispatcher's Store and TokenStore over bun.
type Store struct {
	db *bun.DB
}

func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// CreateTables creates the dispatch and token tables if absent.
func (s *Store) CreateTables(ctx context.Context) error {
	tables := []interface{}{
		(*Dispatch)(nil),
		(*Token)(nil),
	}
	for _, table := range tables {
		if _, err := s.db.NewCreateTable().Model(table).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", table, err)
		}
	}
	return nil
}

// Create inserts a pending dispatch record, reporting created == false
// when a record with this ID already exists. ON CONFLICT DO NOTHING makes
// the check-and-create atomic: of N concurrent attempts, exactly one
// inserts a row.
func (s *Store) Create(ctx context.Context, rec dispatch.Record) (bool, error) {
	row := Dispatch{
		ID:            rec.ID,
		EventKey:      rec.EventKey,
		OffsetMinutes: rec.OffsetMinutes,
		Status:        string(rec.Status),
		Series:        string(rec.Event.Series),
		Session:       string(rec.Event.Session),
		Round:         rec.Event.Round,
		StartsAt:      rec.Event.StartsAtUTC,
		ScheduledTime: rec.ScheduledTime,
	}

	res, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (dispatch_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkSent moves a dispatch to its terminal sent state with counters.
func (s *Store) MarkSent(ctx context.Context, id string, c dispatch.Counters) error {
	_, err := s.db.NewUpdate().
		Model((*Dispatch)(nil)).
		Set("status = ?", string(dispatch.StatusSent)).
		Set("success_count = ?", c.Success).
		Set("failure_count = ?", c.Failure).
		Set("target_count = ?", c.Targets).
		Set("updated_at = ?", time.Now().UTC()).
		Where("dispatch_id = ?", id).
		Exec(ctx)
	return err
}

// MarkSkipped moves a dispatch to its terminal skipped state.
func (s *Store) MarkSkipped(ctx context.Context, id, reason string) error {
	_, err := s.db.NewUpdate().
		Model((*Dispatch)(nil)).
		Set("status = ?", string(dispatch.StatusSkipped)).
		Set("reason = ?", reason).
		Set("updated_at = ?", time.Now().UTC()).
		Where("dispatch_id = ?", id).
		Exec(ctx)
	return err
}

// List scans the full token registry.
func (s *Store) List(ctx context.Context) ([]model.TokenRecord, error) {
	var rows []Token
	if err := s.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, err
	}

	out := make([]model.TokenRecord, 0, len(rows))
	for _, row := range rows {
		rec := model.TokenRecord{Token: row.Token}
		if row.SubscribedSeries != nil {
			series := make([]model.Series, 0, len(row.SubscribedSeries))
			for _, s := range row.SubscribedSeries {
				series = append(series, model.Series(s))
			}
			rec.SubscribedSeries = series
		}
		out = append(out, rec)
	}
	return out, nil
}

// Save upserts a token registration.
func (s *Store) Save(ctx context.Context, rec model.TokenRecord) error {
	row := Token{Token: rec.Token}
	if rec.SubscribedSeries != nil {
		row.SubscribedSeries = make([]string, 0, len(rec.SubscribedSeries))
		for _, series := range rec.SubscribedSeries {
			row.SubscribedSeries = append(row.SubscribedSeries, string(series))
		}
	}

	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (token) DO UPDATE").
		Set("subscribed_series = EXCLUDED.subscribed_series").
		Set("updated_at = ?", time.Now().UTC()).
		Exec(ctx)
	return err
}

// Delete removes a token registration.
func (s *Store) Delete(ctx context.Context, token string) error {
	_, err := s.db.NewDelete().
		Model((*Token)(nil)).
		Where("token = ?", token).
		Exec(ctx)
	return err
}
