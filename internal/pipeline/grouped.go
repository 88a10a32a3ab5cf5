package pipeline

import (
	"context"
	"fmt"

	"digest_bot/internal/fetcher"
	"digest_bot/internal/filter"
	"digest_bot/internal/model"
	"digest_bot/internal/summarize"
)

// DefaultPageSize is the page size of grouped sources.
const DefaultPageSize = 100

// GroupedConfig describes a source partitioned into groups, each with its own destination.
type GroupedConfig struct {
	Source string
	// Groups lists the live groups, in source order.
	Groups func(ctx context.Context) ([]model.Group, error)
	// Pages returns the paged item listing of one group.
	Pages func(group model.Group, pageSize int) fetcher.PageFunc
	// PageSize defaults to DefaultPageSize.
	PageSize    int
	Filters     []model.Filter
	Prompt      summarize.Prompt
	Provisioner Provisioner
}

// Grouped delivers every new item of every group individually to the group's destination.
type Grouped struct {
	cfg  GroupedConfig
	deps Deps
}

// NewGrouped creates a grouped watcher.
func NewGrouped(cfg GroupedConfig, deps Deps) *Grouped {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Grouped{cfg: cfg, deps: deps.withDefaults()}
}

// Source returns the source name.
func (g *Grouped) Source() string {
	return g.cfg.Source
}

// Run executes one run. Group failures are logged and counted; the returned error is
// set only when the run aborted.
func (g *Grouped) Run(ctx context.Context) (Report, error) {
	t := newTracker(g.cfg.Source, g.deps.Logger, g.deps.Now)
	g.run(ctx, t)
	r := t.finish(ctx, g.deps.Runs)
	return r, r.Err
}

func (g *Grouped) run(ctx context.Context, t *tracker) {
	t.enter(StateFetching)
	groups, err := g.cfg.Groups(ctx)
	if err != nil {
		t.abort(classify(ErrSourceFetch, fmt.Errorf("list groups: %w", err)))
		return
	}
	t.log.Info("groups listed", "count", len(groups))

	g.cfg.Provisioner.Reset()

	for _, group := range groups {
		if ctx.Err() != nil {
			t.abort(ctx.Err())
			return
		}
		if err := g.runGroup(ctx, t, group); err != nil {
			t.report.Failed++
			t.log.Error("group skipped", "group", group.Key, "error", err)
			if fatalForRun(err) {
				t.abort(err)
				return
			}
		}
	}
}

// runGroup processes one group fully. A returned error abandons the group.
func (g *Grouped) runGroup(ctx context.Context, t *tracker, group model.Group) error {
	log := t.log.With("group", group.Key)

	t.enter(StateProvisioning, "group", group.Key)
	dest, err := g.cfg.Provisioner.ResolveOrCreate(ctx, group.Key)
	if err != nil {
		return classify(ErrProvision, err)
	}

	t.enter(StateFetching, "group", group.Key)
	items, err := fetcher.Collect(ctx, g.cfg.Pages(group, g.cfg.PageSize), g.cfg.PageSize)
	if err != nil {
		return classify(ErrSourceFetch, err)
	}
	t.report.Fetched += len(items)

	t.enter(StateFiltering, "group", group.Key)
	pending, err := g.deps.Store.Undelivered(ctx, g.cfg.Source, group.Key, filter.Apply(items, g.cfg.Filters))
	if err != nil {
		return fmt.Errorf("filter delivered: %w", err)
	}
	t.report.Filtered += len(pending)
	log.Info("group listed", "destination", dest.ID, "items", len(items), "pending", len(pending))

	for _, item := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := g.deliverItem(ctx, t, group, dest, item); err != nil {
			t.report.Failed++
			log.Error("deliver item", "item_id", item.ID, "error", err)
			if fatalForRun(err) {
				return err
			}
		}
	}

	return g.reportOrphans(ctx, t, group, items)
}

func (g *Grouped) deliverItem(ctx context.Context, t *tracker, group model.Group, dest model.Destination, item model.RemoteItem) error {
	t.enter(StateSummarizing, "group", group.Key, "item_id", item.ID)
	text, err := g.deps.Summarizer.Summarize(ctx, []model.RemoteItem{item}, g.cfg.Prompt)
	if err != nil {
		return classify(ErrSummarization, err)
	}
	t.report.Summarized++

	t.enter(StatePosting, "group", group.Key, "item_id", item.ID)
	if _, err := g.deps.Poster.Post(ctx, dest.ID, item.Title, text); err != nil {
		return classify(ErrDelivery, err)
	}
	t.report.Posted++

	t.enter(StateRecording, "group", group.Key, "item_id", item.ID)
	rec := model.DedupRecord{
		Source:      g.cfg.Source,
		ItemID:      item.ID,
		Group:       group.Key,
		Title:       item.Title,
		DeliveredAt: g.deps.Now().UTC(),
	}
	if err := g.deps.Store.RecordDelivered(ctx, rec); err != nil {
		return fmt.Errorf("record delivered: %w", err)
	}
	t.report.Recorded++
	return nil
}

// reportOrphans hands delivered ids that are missing from the live listing to the
// orphan reporter. Nothing is removed from the destination.
func (g *Grouped) reportOrphans(ctx context.Context, t *tracker, group model.Group, live []model.RemoteItem) error {
	delivered, err := g.deps.Store.DeliveredIDs(ctx, g.cfg.Source, group.Key)
	if err != nil {
		return fmt.Errorf("list delivered: %w", err)
	}

	ids := Orphans(delivered, live)
	if len(ids) == 0 {
		return nil
	}

	if t.report.Orphans == nil {
		t.report.Orphans = make(map[string][]string)
	}
	t.report.Orphans[group.Key] = ids
	t.log.Warn("orphaned items", "group", group.Key, "count", len(ids), "item_ids", ids)

	if g.deps.Orphans == nil {
		return nil
	}
	now := g.deps.Now().UTC()
	orphans := make([]model.Orphan, len(ids))
	for i, id := range ids {
		orphans[i] = model.Orphan{Source: g.cfg.Source, Group: group.Key, ItemID: id, DetectedAt: now}
	}
	if err := g.deps.Orphans.ReportOrphans(ctx, orphans); err != nil {
		return fmt.Errorf("report orphans: %w", err)
	}
	return nil
}

// Orphans returns the delivered ids absent from live, in delivered order.
func Orphans(delivered []string, live []model.RemoteItem) []string {
	present := make(map[string]struct{}, len(live))
	for _, item := range live {
		present[item.ID] = struct{}{}
	}
	var out []string
	for _, id := range delivered {
		if _, ok := present[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
