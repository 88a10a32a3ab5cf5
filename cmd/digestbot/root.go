package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"digest_bot/internal/config"
	"digest_bot/internal/logging"
	"digest_bot/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:           "digestbot",
	Short:         "Daily project digests for QQ guilds and Telegram",
	Long:          `Collects issues, pull requests, commits, milestones, posts and feed entries, summarizes them and posts the digest on a daily schedule.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// setup loads configuration and builds the logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		return nil, nil, err
	}
	return cfg, logging.New(os.Stderr, cfg.LogLevel), nil
}

func openStore(cfg *config.Config, log *slog.Logger) (*storage.SQLite, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		return nil, err
	}
	return store, nil
}
