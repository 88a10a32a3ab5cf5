package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"digest_bot/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run every enabled source on its daily schedule",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, store, log)
	if err != nil {
		log.Error("build app", "error", err)
		return err
	}

	log.Info("starting digest bot")
	if err := a.Serve(ctx); err != nil {
		log.Error("serve", "error", err)
		return err
	}
	log.Info("digest bot stopped")
	return nil
}
