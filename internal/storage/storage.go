// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"digest_bot/internal/model"
)

// DedupStore records which remote items have already been delivered.
// An empty group means the source is not group-partitioned.
type DedupStore interface {
	IsDelivered(ctx context.Context, source, itemID, group string) (bool, error)
	RecordDelivered(ctx context.Context, rec model.DedupRecord) error
	Undelivered(ctx context.Context, source, group string, items []model.RemoteItem) ([]model.RemoteItem, error)
	DeliveredIDs(ctx context.Context, source, group string) ([]string, error)
}

// RunLog keeps the history of orchestrator runs.
type RunLog interface {
	RecordRun(ctx context.Context, run *model.Run) error
	ListRuns(ctx context.Context, source string, limit int) ([]model.Run, error)
}

// OrphanReporter receives items that fell out of their group's live listing.
// Reporting never deletes anything from the destination.
type OrphanReporter interface {
	ReportOrphans(ctx context.Context, orphans []model.Orphan) error
}

// Storage is the interface for all persistence operations.
type Storage interface {
	DedupStore
	RunLog
	OrphanReporter
	ListOrphans(ctx context.Context, source, group string) ([]model.Orphan, error)
	Close() error
}
