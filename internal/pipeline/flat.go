package pipeline

import (
	"context"
	"fmt"
	"time"

	"digest_bot/internal/filter"
	"digest_bot/internal/model"
	"digest_bot/internal/summarize"
)

// FetchFunc returns the items of a source created or updated after since.
type FetchFunc func(ctx context.Context, since time.Time) ([]model.RemoteItem, error)

// EnrichFunc completes an item right before it is summarized.
type EnrichFunc func(ctx context.Context, item model.RemoteItem) (model.RemoteItem, error)

// FlatConfig describes a source whose items go to one fixed destination.
type FlatConfig struct {
	// Source scopes dedup records and names the watcher.
	Source string
	// Label appears in the digest title: "每日 <Label> 总结：<date>".
	Label       string
	Fetch       FetchFunc
	Filters     []model.Filter
	Prompt      summarize.Prompt
	Destination string
	// Window defaults to DefaultWindow.
	Window time.Duration
	// PerItem summarizes and posts every item on its own, titled by the item title.
	PerItem bool
	// Enrich runs on undelivered items only. Optional; used in PerItem mode.
	Enrich EnrichFunc
}

// Flat summarizes one window of a source as a daily digest.
type Flat struct {
	cfg  FlatConfig
	deps Deps
}

// NewFlat creates a flat watcher.
func NewFlat(cfg FlatConfig, deps Deps) *Flat {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Flat{cfg: cfg, deps: deps.withDefaults()}
}

// Source returns the source name.
func (f *Flat) Source() string {
	return f.cfg.Source
}

// Title returns the digest title for a run started at t.
func (f *Flat) Title(t time.Time) string {
	return fmt.Sprintf("每日 %s 总结：%s", f.cfg.Label, t.In(f.deps.Location).Format("2006-01-02"))
}

// Run executes one run. The returned error is set only when the run aborted.
func (f *Flat) Run(ctx context.Context) (Report, error) {
	t := newTracker(f.cfg.Source, f.deps.Logger, f.deps.Now)
	f.run(ctx, t)
	r := t.finish(ctx, f.deps.Runs)
	return r, r.Err
}

func (f *Flat) run(ctx context.Context, t *tracker) {
	start := t.report.StartedAt
	since := start.Add(-f.cfg.Window)

	t.enter(StateFetching, "since", since)
	items, err := f.cfg.Fetch(ctx, since)
	if err != nil {
		t.abort(classify(ErrSourceFetch, err))
		return
	}
	t.report.Fetched = len(items)

	t.enter(StateFiltering)
	group := f.dedupGroup(start)
	matched := filter.Apply(items, f.cfg.Filters)
	pending, err := f.deps.Store.Undelivered(ctx, f.cfg.Source, group, matched)
	if err != nil {
		t.abort(fmt.Errorf("filter delivered: %w", err))
		return
	}
	t.report.Filtered = len(pending)
	if len(pending) == 0 {
		t.log.Info("nothing new", "fetched", len(items), "matched", len(matched))
		return
	}

	if f.cfg.PerItem {
		f.runPerItem(ctx, t, pending)
		return
	}

	t.enter(StateSummarizing, "items", len(pending))
	text, err := f.deps.Summarizer.Summarize(ctx, pending, f.cfg.Prompt)
	if err != nil {
		t.abort(classify(ErrSummarization, err))
		return
	}
	t.report.Summarized = len(pending)

	t.enter(StatePosting)
	title := f.Title(start)
	receipt, err := f.deps.Poster.Post(ctx, f.cfg.Destination, title, text)
	if err != nil {
		t.abort(classify(ErrDelivery, err))
		return
	}
	t.report.Posted++
	t.log.Info("digest posted", "title", title, "destination", receipt.DestinationID, "message_id", receipt.MessageID)

	t.enter(StateRecording)
	for _, item := range pending {
		f.record(ctx, t, group, item)
	}
}

// dedupGroup scopes delivery records. A batch digest covers one day, so an item
// updated again on a later day shows up in that day's digest. Items delivered
// one by one are recorded once for good.
func (f *Flat) dedupGroup(start time.Time) string {
	if f.cfg.PerItem {
		return ""
	}
	return start.In(f.deps.Location).Format("2006-01-02")
}

func (f *Flat) runPerItem(ctx context.Context, t *tracker, pending []model.RemoteItem) {
	for _, item := range pending {
		if ctx.Err() != nil {
			t.abort(ctx.Err())
			return
		}
		if err := f.deliverItem(ctx, t, item); err != nil {
			t.report.Failed++
			t.log.Error("deliver item", "item_id", item.ID, "error", err)
			if fatalForRun(err) {
				t.abort(err)
				return
			}
		}
	}
}

func (f *Flat) deliverItem(ctx context.Context, t *tracker, item model.RemoteItem) error {
	if f.cfg.Enrich != nil {
		t.enter(StateFetching, "item_id", item.ID)
		enriched, err := f.cfg.Enrich(ctx, item)
		if err != nil {
			return classify(ErrSourceFetch, err)
		}
		item = enriched
	}

	t.enter(StateSummarizing, "item_id", item.ID)
	text, err := f.deps.Summarizer.Summarize(ctx, []model.RemoteItem{item}, f.cfg.Prompt)
	if err != nil {
		return classify(ErrSummarization, err)
	}
	t.report.Summarized++

	t.enter(StatePosting, "item_id", item.ID)
	if _, err := f.deps.Poster.Post(ctx, f.cfg.Destination, item.Title, text); err != nil {
		return classify(ErrDelivery, err)
	}
	t.report.Posted++

	t.enter(StateRecording, "item_id", item.ID)
	f.record(ctx, t, "", item)
	return nil
}

func (f *Flat) record(ctx context.Context, t *tracker, group string, item model.RemoteItem) {
	rec := model.DedupRecord{
		Source:      f.cfg.Source,
		ItemID:      item.ID,
		Group:       group,
		Title:       item.Title,
		DeliveredAt: f.deps.Now().UTC(),
	}
	if err := f.deps.Store.RecordDelivered(ctx, rec); err != nil {
		t.report.Failed++
		t.log.Error("record delivered", "item_id", item.ID, "error", err)
		return
	}
	t.report.Recorded++
}
