package main

import (
	"github.com/spf13/cobra"

	"digest_bot/internal/app"
	"digest_bot/internal/bot"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List sources, their schedule and missing settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		cmd.Print(bot.FormatSources(app.Sources(cfg)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
