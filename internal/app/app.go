// Package app wires configuration into watchers, the scheduler and the Telegram bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"digest_bot/internal/bot"
	"digest_bot/internal/channel"
	"digest_bot/internal/config"
	"digest_bot/internal/credential"
	"digest_bot/internal/distribute"
	"digest_bot/internal/fetcher"
	"digest_bot/internal/model"
	"digest_bot/internal/pipeline"
	"digest_bot/internal/provision"
	"digest_bot/internal/scheduler"
	"digest_bot/internal/storage"
	"digest_bot/internal/summarize"
)

// ErrNoSources is returned when no source is both enabled and fully configured.
var ErrNoSources = errors.New("no source is enabled")

// Digest titles per flat source.
var labels = map[string]string{
	config.SourceIssues:  "Issue",
	config.SourcePulls:   "PR",
	config.SourceCommits: "Commit",
	config.SourcePosts:   "MergeTrain",
	config.SourceFeed:    "RSS",
}

// App owns the watchers of every enabled source.
type App struct {
	cfg      *config.Config
	log      *slog.Logger
	watchers map[string]pipeline.Watcher
	locks    map[string]*sync.Mutex
	sched    *scheduler.Scheduler
	bot      *bot.Bot
}

// clients are the remote adapters shared by all watchers.
type clients struct {
	http       *http.Client
	router     *distribute.Router
	qq         *channel.Client
	bot        *bot.Bot
	github     *fetcher.GitHub
	summarizer *summarize.Summarizer
}

// New builds every enabled source. Sources with missing settings are logged and skipped.
func New(ctx context.Context, cfg *config.Config, store storage.Storage, log *slog.Logger) (*App, error) {
	a := &App{
		cfg:      cfg,
		log:      log,
		watchers: make(map[string]pipeline.Watcher),
		sched:    scheduler.New(cfg.Location, log.With("component", "scheduler"), scheduler.WithRunOnStart(cfg.RunOnStart)),
	}

	var enabled []string
	for _, info := range Sources(cfg) {
		switch {
		case !info.Enabled && len(info.Missing) == 0:
			log.Info("source disabled", "source", info.Name)
		case !info.Enabled:
			log.Warn("source skipped", "source", info.Name, "missing", info.Missing)
		default:
			enabled = append(enabled, info.Name)
		}
	}
	if len(enabled) == 0 {
		return nil, ErrNoSources
	}

	c, err := newClients(ctx, cfg, store, log)
	if err != nil {
		return nil, err
	}
	a.bot = c.bot
	if a.bot != nil {
		a.bot.SetRunner(a)
	}

	deps := pipeline.Deps{
		Store:      store,
		Summarizer: c.summarizer,
		Poster:     c.router,
		Runs:       store,
		Orphans:    store,
		Logger:     log,
		Location:   cfg.Location,
	}

	for _, name := range enabled {
		w, err := a.watcher(name, cfg.Source(name), c, deps)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", name, err)
		}
		a.watchers[name] = w
		a.sched.Add(scheduler.Job{
			Name: name,
			At:   cfg.Source(name).At,
			Run: func(ctx context.Context) error {
				_, err := a.RunSource(ctx, name)
				return err
			},
		})
		log.Info("source enabled", "source", name, "schedule", cfg.Source(name).At)
	}
	a.locks = newLocks(a.watchers)
	return a, nil
}

func newLocks(watchers map[string]pipeline.Watcher) map[string]*sync.Mutex {
	locks := make(map[string]*sync.Mutex, len(watchers))
	for name := range watchers {
		locks[name] = &sync.Mutex{}
	}
	return locks
}

func newClients(ctx context.Context, cfg *config.Config, store storage.Storage, log *slog.Logger) (*clients, error) {
	c := &clients{
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		router: distribute.NewRouter(),
	}

	c.summarizer = summarize.New(
		summarize.NewClient(c.http, summarize.Config{
			APIKey:  cfg.DeepSeek.APIKey,
			BaseURL: cfg.DeepSeek.BaseURL,
			Model:   cfg.DeepSeek.Model,
		}),
		summarize.WithMaxTokens(cfg.DeepSeek.MaxTokens),
	)

	if cfg.QQ.AppID != "" && cfg.QQ.Secret != "" {
		cache := credential.NewCache()
		provider := credential.NewQQBotProvider(c.http, credential.DefaultQQTokenURL, cfg.QQ.AppID, cfg.QQ.Secret)
		qqHTTP := channel.NewHTTPClient(cache.TokenSource(ctx, provider, channel.AuthScheme), cfg.HTTPTimeout)
		c.qq = channel.NewClient(qqHTTP, channel.BaseURL(cfg.QQ.Sandbox),
			channel.WithUnauthorizedHook(func() {
				log.Warn("qq token rejected, dropping cached token")
				cache.Invalidate(provider.Key())
			}))
		c.router.Register(distribute.PlatformQQ, c.qq)
	}

	if cfg.TelegramBotToken != "" {
		b, err := bot.New(cfg.TelegramBotToken, store, nil, cfg, log.With("component", "telegram"))
		if err != nil {
			return nil, err
		}
		c.bot = b
		c.router.Register(distribute.PlatformTelegram, b)
	}

	gh, err := fetcher.NewGitHub(
		fetcher.NewGitHubHTTPClient(ctx, cfg.GitHub.Token, cfg.HTTPTimeout),
		cfg.GitHub.Owner, cfg.GitHub.Repo,
	)
	if err != nil {
		return nil, err
	}
	c.github = gh
	return c, nil
}

func (a *App) watcher(name string, sc config.SourceConfig, c *clients, deps pipeline.Deps) (pipeline.Watcher, error) {
	prompt := summarize.PromptFor(name)
	if sc.Prompt != nil {
		prompt = *sc.Prompt
	}

	flat := pipeline.FlatConfig{
		Source:      name,
		Label:       labels[name],
		Filters:     sc.Filters,
		Prompt:      prompt,
		Destination: sc.Destination,
	}

	switch name {
	case config.SourceIssues:
		flat.Fetch = c.github.Issues
	case config.SourcePulls:
		flat.Fetch = c.github.PullRequests
	case config.SourceCommits:
		flat.Fetch = c.github.Commits
	case config.SourceFeed:
		flat.Fetch = fetcher.NewFeed(c.http, a.cfg.FeedURL).Entries
	case config.SourcePosts:
		bsky := fetcher.NewBluesky(c.http, a.cfg.Bluesky.APIURL, a.cfg.Bluesky.Actor, a.cfg.Bluesky.Tag)
		flat.Fetch = func(ctx context.Context, _ time.Time) ([]model.RemoteItem, error) {
			return bsky.Posts(ctx)
		}
		flat.PerItem = true
		flat.Enrich = bsky.WithThread
	case config.SourceMilestones:
		if c.qq == nil {
			return nil, errors.New("qq client is not configured")
		}
		return pipeline.NewGrouped(pipeline.GroupedConfig{
			Source:      name,
			Groups:      c.github.Milestones,
			Pages:       c.github.MilestonePages,
			Filters:     sc.Filters,
			Prompt:      prompt,
			Provisioner: provision.New(c.qq, a.cfg.QQ.GuildID, a.log.With("source", name)),
		}, deps), nil
	default:
		return nil, fmt.Errorf("unknown source %q", name)
	}

	platform, _ := distribute.ParseRef(sc.Destination)
	if !c.router.Has(platform) {
		return nil, fmt.Errorf("%w: %s", distribute.ErrUnknownPlatform, platform)
	}
	return pipeline.NewFlat(flat, deps), nil
}

// Sources reports every known source with its schedule and configuration state.
func Sources(cfg *config.Config) []bot.SourceInfo {
	infos := make([]bot.SourceInfo, 0, len(config.SourceNames))
	for _, name := range config.SourceNames {
		sc := cfg.Source(name)
		info := bot.SourceInfo{Name: name, Schedule: sc.At.String()}
		if !sc.Disabled {
			info.Missing = cfg.Validate(name)
			info.Enabled = len(info.Missing) == 0
		}
		infos = append(infos, info)
	}
	return infos
}

// Sources implements bot.Runner.
func (a *App) Sources() []bot.SourceInfo {
	return Sources(a.cfg)
}

// RunSource runs one source now. Runs of the same source are serialized.
func (a *App) RunSource(ctx context.Context, source string) (model.Run, error) {
	w, ok := a.watchers[source]
	if !ok {
		return model.Run{}, fmt.Errorf("source %q is not enabled", source)
	}
	mu := a.locks[source]
	mu.Lock()
	defer mu.Unlock()

	report, err := w.Run(ctx)
	return report.Run(), err
}

// Serve runs the scheduler, and the Telegram command loop when a bot is configured,
// until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.sched.Run(ctx)
	})
	if a.bot != nil {
		g.Go(func() error {
			a.bot.Run(ctx)
			return nil
		})
	}
	return g.Wait()
}
