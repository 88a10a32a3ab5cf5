package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"digest_bot/internal/app"
	"digest_bot/internal/bot"
)

var runCmd = &cobra.Command{
	Use:   "run [source]",
	Short: "Run one source now",
	Long:  `Runs a single source once, outside its schedule. Delivered items are still skipped.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
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

	run, err := a.RunSource(ctx, args[0])
	if run.ID != "" {
		cmd.Println(bot.FormatRun(run))
	}
	return err
}
