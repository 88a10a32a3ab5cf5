package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"digest_bot/internal/model"
	"digest_bot/internal/scheduler"
	"digest_bot/internal/summarize"
)

var envKeys = []string{
	"DATABASE_PATH", "LOG_LEVEL", "TIMEZONE", "HTTP_TIMEOUT", "RUN_ON_START", "ALLOWED_USERS",
	"GITHUB_TOKEN", "GITHUB_OWNER", "GITHUB_REPO",
	"DEEPSEEK_API_KEY", "DEEPSEEK_BASE_URL", "DEEPSEEK_MODEL", "DEEPSEEK_MAX_TOKENS",
	"QQ_BOT_APP_ID", "QQ_BOT_SECRET", "QQ_BOT_SANDBOX", "GUILD_ID",
	"ISSUE_CHANNEL_ID", "PR_CHANNEL_ID", "COMMIT_CHANNEL_ID", "MERGE_TRAIN_CHANNEL_ID", "FEED_CHANNEL_ID",
	"FEED_URL", "BSKY_PUB_API_URL", "BSKY_ACTOR", "BSKY_TAG",
	"TELEGRAM_BOT_TOKEN", "DIGEST_CONFIG",
}

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func defaultSources() map[string]SourceConfig {
	return map[string]SourceConfig{
		SourceCommits:    {Schedule: "12:00", At: scheduler.Daily{Hour: 12}},
		SourcePulls:      {Schedule: "12:00", At: scheduler.Daily{Hour: 12}},
		SourcePosts:      {Schedule: "12:20", At: scheduler.Daily{Hour: 12, Minute: 20}},
		SourceFeed:       {Schedule: "12:30", At: scheduler.Daily{Hour: 12, Minute: 30}},
		SourceMilestones: {Schedule: "12:40", At: scheduler.Daily{Hour: 12, Minute: 40}},
		SourceIssues:     {Schedule: "13:00", At: scheduler.Daily{Hour: 13}},
	}
}

var ignoreLocation = cmpopts.IgnoreFields(Config{}, "Location")

func TestLoad(t *testing.T) {
	withChannels := defaultSources()
	issues := withChannels[SourceIssues]
	issues.Destination = "1001"
	withChannels[SourceIssues] = issues
	posts := withChannels[SourcePosts]
	posts.Destination = "telegram:-42"
	withChannels[SourcePosts] = posts

	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name: "defaults applied",
			env:  map[string]string{},
			want: &Config{
				DatabasePath: "./data/digest.db",
				LogLevel:     "info",
				HTTPTimeout:  60 * time.Second,
				GitHub:       GitHubConfig{Owner: "bevyengine", Repo: "bevy"},
				Sources:      defaultSources(),
			},
		},
		{
			name: "all values set",
			env: map[string]string{
				"DATABASE_PATH":          "/tmp/digest.db",
				"LOG_LEVEL":              "debug",
				"HTTP_TIMEOUT":           "15s",
				"RUN_ON_START":           "true",
				"ALLOWED_USERS":          " 10 , 20 , ",
				"GITHUB_TOKEN":           "ghp",
				"GITHUB_OWNER":           "me",
				"GITHUB_REPO":            "engine",
				"DEEPSEEK_API_KEY":       "sk",
				"DEEPSEEK_MAX_TOKENS":    "8192",
				"QQ_BOT_APP_ID":          "app",
				"QQ_BOT_SECRET":          "secret",
				"QQ_BOT_SANDBOX":         "1",
				"GUILD_ID":               "guild",
				"ISSUE_CHANNEL_ID":       "1001",
				"MERGE_TRAIN_CHANNEL_ID": "telegram:-42",
				"BSKY_ACTOR":             "alice.bsky.social",
				"TELEGRAM_BOT_TOKEN":     "tok",
			},
			want: &Config{
				DatabasePath:     "/tmp/digest.db",
				LogLevel:         "debug",
				HTTPTimeout:      15 * time.Second,
				RunOnStart:       true,
				AllowedUsers:     []int64{10, 20},
				GitHub:           GitHubConfig{Token: "ghp", Owner: "me", Repo: "engine"},
				DeepSeek:         DeepSeekConfig{APIKey: "sk", MaxTokens: 8192},
				QQ:               QQConfig{AppID: "app", Secret: "secret", Sandbox: true, GuildID: "guild"},
				Bluesky:          BlueskyConfig{Actor: "alice.bsky.social"},
				TelegramBotToken: "tok",
				Sources:          withChannels,
			},
		},
		{name: "invalid user id", env: map[string]string{"ALLOWED_USERS": "123,abc"}, wantErr: true},
		{name: "invalid timeout", env: map[string]string{"HTTP_TIMEOUT": "soon"}, wantErr: true},
		{name: "invalid timezone", env: map[string]string{"TIMEZONE": "Mars/Olympus"}, wantErr: true},
		{name: "invalid bool", env: map[string]string{"RUN_ON_START": "maybe"}, wantErr: true},
		{name: "missing config file", env: map[string]string{"DIGEST_CONFIG": "/nonexistent/digest.yaml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got, ignoreLocation); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff("Asia/Shanghai", got.Location.String()); diff != "" {
				t.Errorf("location mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "digest.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverlay(t *testing.T) {
	path := writeConfig(t, `
timezone: UTC
github:
  owner: fork
bluesky:
  tag: mergetrain
feed_url: https://bevy.org/news/feed.xml
sources:
  issues:
    schedule: "09:15"
    destination: telegram:-100
    prompt:
      role: system
      text: summarize briefly
    filters:
      - kind: exclude
        scope: title
        value: typo
  commits:
    disabled: true
`)
	setEnv(t, map[string]string{"DIGEST_CONFIG": path, "ISSUE_CHANNEL_ID": "1001", "GITHUB_REPO": "bevy"})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff("UTC", cfg.Location.String()); diff != "" {
		t.Errorf("location mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(GitHubConfig{Owner: "fork", Repo: "bevy"}, cfg.GitHub); diff != "" {
		t.Errorf("github mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("mergetrain", cfg.Bluesky.Tag); diff != "" {
		t.Errorf("tag mismatch (-want +got):\n%s", diff)
	}

	wantIssues := SourceConfig{
		Schedule:    "09:15",
		Destination: "telegram:-100",
		Prompt:      &summarize.Prompt{Role: "system", Text: "summarize briefly"},
		Filters:     []model.Filter{{Kind: model.FilterExclude, Scope: model.ScopeTitle, Value: "typo"}},
		At:          scheduler.Daily{Hour: 9, Minute: 15},
	}
	if diff := cmp.Diff(wantIssues, cfg.Source(SourceIssues)); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Source(SourceCommits).Disabled {
		t.Error("commits should be disabled")
	}
}

func TestLoadOverlayErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown source", body: "sources:\n  wiki: {}\n"},
		{name: "bad schedule", body: "sources:\n  issues:\n    schedule: noon\n"},
		{name: "bad filter", body: "sources:\n  issues:\n    filters:\n      - kind: include_re\n        scope: all\n        value: \"(\"\n"},
		{name: "bad yaml", body: "sources: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, map[string]string{"DIGEST_CONFIG": writeConfig(t, tt.body)})
			if _, err := Load(); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	full := &Config{
		GitHub:           GitHubConfig{Token: "ghp"},
		DeepSeek:         DeepSeekConfig{APIKey: "sk"},
		QQ:               QQConfig{AppID: "app", Secret: "s", GuildID: "g"},
		Bluesky:          BlueskyConfig{Actor: "a"},
		FeedURL:          "https://example.com/feed",
		TelegramBotToken: "tok",
		Sources: map[string]SourceConfig{
			SourceIssues: {Destination: "1"},
			SourcePosts:  {Destination: "telegram:1"},
			SourceFeed:   {Destination: "qq:2"},
		},
	}
	empty := &Config{Sources: map[string]SourceConfig{
		SourcePosts: {Destination: "telegram:1"},
	}}

	tests := []struct {
		name   string
		cfg    *Config
		source string
		want   []string
	}{
		{name: "issues complete", cfg: full, source: SourceIssues},
		{name: "posts complete", cfg: full, source: SourcePosts},
		{name: "milestones complete", cfg: full, source: SourceMilestones},
		{name: "pulls missing destination", cfg: full, source: SourcePulls, want: []string{"PR_CHANNEL_ID"}},
		{
			name:   "issues empty",
			cfg:    empty,
			source: SourceIssues,
			want:   []string{"DEEPSEEK_API_KEY", "GITHUB_TOKEN", "ISSUE_CHANNEL_ID"},
		},
		{
			name:   "posts to telegram need its token",
			cfg:    empty,
			source: SourcePosts,
			want:   []string{"DEEPSEEK_API_KEY", "BSKY_ACTOR", "TELEGRAM_BOT_TOKEN"},
		},
		{
			name:   "milestones empty",
			cfg:    empty,
			source: SourceMilestones,
			want:   []string{"DEEPSEEK_API_KEY", "GITHUB_TOKEN", "GUILD_ID", "QQ_BOT_APP_ID", "QQ_BOT_SECRET"},
		},
		{
			name:   "feed empty",
			cfg:    empty,
			source: SourceFeed,
			want:   []string{"DEEPSEEK_API_KEY", "FEED_URL", "FEED_CHANNEL_ID"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.cfg.Validate(tt.source)); diff != "" {
				t.Errorf("Validate(%s) mismatch (-want +got):\n%s", tt.source, diff)
			}
		})
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{
			name:         "empty list allows everyone",
			allowedUsers: nil,
			userID:       42,
			want:         true,
		},
		{
			name:         "user in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       20,
			want:         true,
		},
		{
			name:         "user not in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       99,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			got := cfg.IsUserAllowed(tt.userID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
