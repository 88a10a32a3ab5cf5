// Package pipeline runs one source's fetch, filter, summarize, post and record sequence.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"digest_bot/internal/model"
	"digest_bot/internal/storage"
	"digest_bot/internal/summarize"
)

// DefaultWindow is how far back a flat watcher looks from run start.
const DefaultWindow = 24 * time.Hour

// Summarizer produces digest text for a batch of items.
type Summarizer interface {
	Summarize(ctx context.Context, items []model.RemoteItem, prompt summarize.Prompt) (string, error)
}

// Poster publishes one titled message to a destination reference.
type Poster interface {
	Post(ctx context.Context, destination, title, body string) (model.Receipt, error)
}

// Provisioner resolves group keys to destinations.
type Provisioner interface {
	Reset()
	ResolveOrCreate(ctx context.Context, groupKey string) (model.Destination, error)
}

// Watcher is the scheduled entry point of one source.
type Watcher interface {
	Source() string
	Run(ctx context.Context) (Report, error)
}

// Deps are the collaborators shared by every watcher.
type Deps struct {
	Store      storage.DedupStore
	Summarizer Summarizer
	Poster     Poster
	// Runs receives one entry per run. Optional.
	Runs storage.RunLog
	// Orphans receives orphaned items of grouped sources. Optional.
	Orphans storage.OrphanReporter
	Logger  *slog.Logger
	// Location is used for dates in digest titles. Defaults to UTC.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}
