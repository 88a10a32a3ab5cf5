package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"digest_bot/internal/model"
	"digest_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// Keeps IN lists well below SQLite's bound-parameter limit.
const maxInArgs = 500

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
	qb sq.StatementBuilderType
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Each connection to ":memory:" is a distinct database.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// IsDelivered checks whether an item has already been delivered under group.
func (s *SQLite) IsDelivered(ctx context.Context, source, itemID, group string) (bool, error) {
	query, args, err := s.qb.Select("COUNT(*)").
		From("delivered_items").
		Where(sq.Eq{"source": source, "item_id": itemID, "group_key": group}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check delivered: %w", err)
	}
	return count > 0, nil
}

// RecordDelivered inserts a delivery record; a duplicate is silently ignored.
func (s *SQLite) RecordDelivered(ctx context.Context, rec model.DedupRecord) error {
	at := rec.DeliveredAt
	if at.IsZero() {
		at = time.Now()
	}
	query, args, err := s.qb.Insert("delivered_items").
		Options("OR IGNORE").
		Columns("source", "item_id", "group_key", "title", "delivered_at").
		Values(rec.Source, rec.ItemID, rec.Group, rec.Title, at.UTC().Format(timeLayout)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record delivered: %w", err)
	}
	return nil
}

// Undelivered returns the items that have no delivery record, in input order.
// An id repeated within items is kept only at its first occurrence.
func (s *SQLite) Undelivered(ctx context.Context, source, group string, items []model.RemoteItem) ([]model.RemoteItem, error) {
	if len(items) == 0 {
		return nil, nil
	}

	delivered := make(map[string]bool, len(items))
	for start := 0; start < len(items); start += maxInArgs {
		end := min(start+maxInArgs, len(items))
		ids := make([]string, 0, end-start)
		for _, item := range items[start:end] {
			ids = append(ids, item.ID)
		}

		query, args, err := s.qb.Select("item_id").
			From("delivered_items").
			Where(sq.Eq{"source": source, "group_key": group, "item_id": ids}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build query: %w", err)
		}

		found, err := s.queryStrings(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query delivered: %w", err)
		}
		for _, id := range found {
			delivered[id] = true
		}
	}

	var pending []model.RemoteItem
	for _, item := range items {
		if delivered[item.ID] {
			continue
		}
		delivered[item.ID] = true
		pending = append(pending, item)
	}
	return pending, nil
}

// DeliveredIDs lists the item ids recorded for source under group, oldest first.
func (s *SQLite) DeliveredIDs(ctx context.Context, source, group string) ([]string, error) {
	query, args, err := s.qb.Select("item_id").
		From("delivered_items").
		Where(sq.Eq{"source": source, "group_key": group}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	ids, err := s.queryStrings(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query delivered ids: %w", err)
	}
	return ids, nil
}

// RecordRun appends a finished run to the run log.
func (s *SQLite) RecordRun(ctx context.Context, run *model.Run) error {
	query, args, err := s.qb.Insert("runs").
		Columns("id", "source", "started_at", "ended_at", "outcome", "error",
			"fetched", "summarized", "posted", "failed").
		Values(run.ID, run.Source,
			run.StartedAt.UTC().Format(timeLayout), run.EndedAt.UTC().Format(timeLayout),
			string(run.Outcome), run.Error,
			run.Fetched, run.Summarized, run.Posted, run.Failed).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs of source, newest first.
// An empty source lists runs of every source.
func (s *SQLite) ListRuns(ctx context.Context, source string, limit int) ([]model.Run, error) {
	b := s.qb.Select("id", "source", "started_at", "ended_at", "outcome", "error",
		"fetched", "summarized", "posted", "failed").
		From("runs").
		OrderBy("started_at DESC", "rowid DESC")
	if source != "" {
		b = b.Where(sq.Eq{"source": source})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var started, ended, outcome string
		if err := rows.Scan(&r.ID, &r.Source, &started, &ended, &outcome, &r.Error,
			&r.Fetched, &r.Summarized, &r.Posted, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.EndedAt, _ = time.Parse(timeLayout, ended)
		r.Outcome = model.RunOutcome(outcome)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ReportOrphans stores orphaned items, keeping the first detection time of each.
func (s *SQLite) ReportOrphans(ctx context.Context, orphans []model.Orphan) error {
	if len(orphans) == 0 {
		return nil
	}

	// Four bound parameters per row.
	const rowsPerInsert = maxInArgs / 4
	for start := 0; start < len(orphans); start += rowsPerInsert {
		end := min(start+rowsPerInsert, len(orphans))

		b := s.qb.Insert("orphaned_items").
			Options("OR IGNORE").
			Columns("source", "group_key", "item_id", "detected_at")
		for _, o := range orphans[start:end] {
			at := o.DetectedAt
			if at.IsZero() {
				at = time.Now()
			}
			b = b.Values(o.Source, o.Group, o.ItemID, at.UTC().Format(timeLayout))
		}

		query, args, err := b.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert orphans: %w", err)
		}
	}
	return nil
}

// ListOrphans returns reported orphans for source under group.
func (s *SQLite) ListOrphans(ctx context.Context, source, group string) ([]model.Orphan, error) {
	query, args, err := s.qb.Select("source", "group_key", "item_id", "detected_at").
		From("orphaned_items").
		Where(sq.Eq{"source": source, "group_key": group}).
		OrderBy("item_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orphans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orphans []model.Orphan
	for rows.Next() {
		var o model.Orphan
		var detected string
		if err := rows.Scan(&o.Source, &o.Group, &o.ItemID, &detected); err != nil {
			return nil, fmt.Errorf("scan orphan: %w", err)
		}
		o.DetectedAt, _ = time.Parse(timeLayout, detected)
		orphans = append(orphans, o)
	}
	return orphans, rows.Err()
}

func (s *SQLite) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
