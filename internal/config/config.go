// Package config handles application configuration from environment variables
// and an optional YAML overlay.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"digest_bot/internal/distribute"
	"digest_bot/internal/filter"
	"digest_bot/internal/model"
	"digest_bot/internal/scheduler"
	"digest_bot/internal/summarize"
)

// Source names.
const (
	SourceCommits    = "commits"
	SourcePulls      = "pulls"
	SourcePosts      = "posts"
	SourceFeed       = "feed"
	SourceMilestones = "milestones"
	SourceIssues     = "issues"
)

// SourceNames lists every known source in fire-time order.
var SourceNames = []string{SourceCommits, SourcePulls, SourcePosts, SourceFeed, SourceMilestones, SourceIssues}

const configPathEnv = "DIGEST_CONFIG"

type sourceDefault struct {
	schedule string
	destEnv  string
}

var sourceDefaults = map[string]sourceDefault{
	SourceCommits:    {schedule: "12:00", destEnv: "COMMIT_CHANNEL_ID"},
	SourcePulls:      {schedule: "12:00", destEnv: "PR_CHANNEL_ID"},
	SourcePosts:      {schedule: "12:20", destEnv: "MERGE_TRAIN_CHANNEL_ID"},
	SourceFeed:       {schedule: "12:30", destEnv: "FEED_CHANNEL_ID"},
	SourceMilestones: {schedule: "12:40"},
	SourceIssues:     {schedule: "13:00", destEnv: "ISSUE_CHANNEL_ID"},
}

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string
	Location     *time.Location
	HTTPTimeout  time.Duration
	RunOnStart   bool
	AllowedUsers []int64

	GitHub   GitHubConfig
	DeepSeek DeepSeekConfig
	QQ       QQConfig
	Bluesky  BlueskyConfig
	FeedURL  string

	TelegramBotToken string

	Sources map[string]SourceConfig
}

// GitHubConfig selects the watched repository.
type GitHubConfig struct {
	Token string
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
}

// DeepSeekConfig holds the text-generation API settings.
type DeepSeekConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// QQConfig holds the QQ bot credentials and the guild milestones are provisioned in.
type QQConfig struct {
	AppID   string
	Secret  string
	Sandbox bool
	GuildID string
}

// BlueskyConfig selects the actor and hashtag of merge-train posts.
type BlueskyConfig struct {
	APIURL string `yaml:"api_url"`
	Actor  string `yaml:"actor"`
	Tag    string `yaml:"tag"`
}

// SourceConfig holds the per-source settings.
type SourceConfig struct {
	Disabled    bool              `yaml:"disabled"`
	Schedule    string            `yaml:"schedule"`
	Destination string            `yaml:"destination"`
	Prompt      *summarize.Prompt `yaml:"prompt"`
	Filters     []model.Filter    `yaml:"filters"`

	At scheduler.Daily `yaml:"-"`
}

// fileConfig is the YAML overlay. Secrets are read from the environment only.
type fileConfig struct {
	Timezone string                  `yaml:"timezone"`
	GitHub   GitHubConfig            `yaml:"github"`
	Bluesky  BlueskyConfig           `yaml:"bluesky"`
	FeedURL  string                  `yaml:"feed_url"`
	Sources  map[string]SourceConfig `yaml:"sources"`
}

// Load reads configuration from environment variables, then applies the YAML file
// named by DIGEST_CONFIG when set.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath: envOr("DATABASE_PATH", "./data/digest.db"),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		GitHub: GitHubConfig{
			Token: os.Getenv("GITHUB_TOKEN"),
			Owner: envOr("GITHUB_OWNER", "bevyengine"),
			Repo:  envOr("GITHUB_REPO", "bevy"),
		},
		DeepSeek: DeepSeekConfig{
			APIKey:  os.Getenv("DEEPSEEK_API_KEY"),
			BaseURL: os.Getenv("DEEPSEEK_BASE_URL"),
			Model:   os.Getenv("DEEPSEEK_MODEL"),
		},
		QQ: QQConfig{
			AppID:   os.Getenv("QQ_BOT_APP_ID"),
			Secret:  os.Getenv("QQ_BOT_SECRET"),
			GuildID: os.Getenv("GUILD_ID"),
		},
		Bluesky: BlueskyConfig{
			APIURL: os.Getenv("BSKY_PUB_API_URL"),
			Actor:  os.Getenv("BSKY_ACTOR"),
			Tag:    os.Getenv("BSKY_TAG"),
		},
		FeedURL:          os.Getenv("FEED_URL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		Sources:          make(map[string]SourceConfig, len(SourceNames)),
	}

	var errs []error
	var err error
	timezone := envOr("TIMEZONE", "Asia/Shanghai")
	if cfg.HTTPTimeout, err = envDuration("HTTP_TIMEOUT", 60*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.RunOnStart, err = envBool("RUN_ON_START"); err != nil {
		errs = append(errs, err)
	}
	if cfg.QQ.Sandbox, err = envBool("QQ_BOT_SANDBOX"); err != nil {
		errs = append(errs, err)
	}
	if cfg.DeepSeek.MaxTokens, err = envInt("DEEPSEEK_MAX_TOKENS"); err != nil {
		errs = append(errs, err)
	}
	if cfg.AllowedUsers, err = parseUserIDs(os.Getenv("ALLOWED_USERS")); err != nil {
		errs = append(errs, err)
	}

	for _, name := range SourceNames {
		d := sourceDefaults[name]
		sc := SourceConfig{Schedule: d.schedule}
		if d.destEnv != "" {
			sc.Destination = os.Getenv(d.destEnv)
		}
		cfg.Sources[name] = sc
	}

	if path := os.Getenv(configPathEnv); path != "" {
		fc, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if fc.Timezone != "" {
			timezone = fc.Timezone
		}
		cfg.overlay(fc)
		errs = append(errs, validateSourceNames(fc.Sources)...)
	}

	if cfg.Location, err = time.LoadLocation(timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid TIMEZONE %q: %w", timezone, err))
	}
	for _, name := range SourceNames {
		sc := cfg.Sources[name]
		if sc.At, err = scheduler.ParseDaily(sc.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", name, err))
		}
		for _, f := range sc.Filters {
			if err := filter.Validate(f); err != nil {
				errs = append(errs, fmt.Errorf("source %s: %w", name, err))
			}
		}
		cfg.Sources[name] = sc
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func (c *Config) overlay(fc fileConfig) {
	setIf(&c.GitHub.Owner, fc.GitHub.Owner)
	setIf(&c.GitHub.Repo, fc.GitHub.Repo)
	setIf(&c.Bluesky.APIURL, fc.Bluesky.APIURL)
	setIf(&c.Bluesky.Actor, fc.Bluesky.Actor)
	setIf(&c.Bluesky.Tag, fc.Bluesky.Tag)
	setIf(&c.FeedURL, fc.FeedURL)

	for name, over := range fc.Sources {
		sc, ok := c.Sources[name]
		if !ok {
			continue
		}
		sc.Disabled = over.Disabled
		setIf(&sc.Schedule, over.Schedule)
		setIf(&sc.Destination, over.Destination)
		if over.Prompt != nil {
			sc.Prompt = over.Prompt
		}
		if len(over.Filters) > 0 {
			sc.Filters = over.Filters
		}
		c.Sources[name] = sc
	}
}

func validateSourceNames(sources map[string]SourceConfig) []error {
	var errs []error
	for name := range sources {
		if !slices.Contains(SourceNames, name) {
			errs = append(errs, fmt.Errorf("unknown source %q in config file", name))
		}
	}
	return errs
}

// Source returns the settings of a source.
func (c *Config) Source(name string) SourceConfig {
	return c.Sources[name]
}

// Validate returns the environment variables a source needs but that are unset.
func (c *Config) Validate(source string) []string {
	var missing []string
	need := func(value, key string) {
		if value == "" && !slices.Contains(missing, key) {
			missing = append(missing, key)
		}
	}

	need(c.DeepSeek.APIKey, "DEEPSEEK_API_KEY")

	switch source {
	case SourceIssues, SourcePulls, SourceCommits, SourceMilestones:
		need(c.GitHub.Token, "GITHUB_TOKEN")
	case SourcePosts:
		need(c.Bluesky.Actor, "BSKY_ACTOR")
	case SourceFeed:
		need(c.FeedURL, "FEED_URL")
	}

	if source == SourceMilestones {
		need(c.QQ.GuildID, "GUILD_ID")
		need(c.QQ.AppID, "QQ_BOT_APP_ID")
		need(c.QQ.Secret, "QQ_BOT_SECRET")
		return missing
	}

	sc := c.Sources[source]
	if sc.Destination == "" {
		need("", sourceDefaults[source].destEnv)
		return missing
	}
	switch platform, _ := distribute.ParseRef(sc.Destination); platform {
	case distribute.PlatformTelegram:
		need(c.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	default:
		need(c.QQ.AppID, "QQ_BOT_APP_ID")
		need(c.QQ.Secret, "QQ_BOT_SECRET")
	}
	return missing
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.AllowedUsers, userID)
}

func parseUserIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
		}
		ids = append(ids, uid)
	}
	return ids, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envInt(key string) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return v, nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
