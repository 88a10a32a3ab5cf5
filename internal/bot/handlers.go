package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Digest Bot!

Daily digests of issues, pull requests, commits, milestones and posts are
summarized and delivered on schedule.

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Sources:
/sources — list configured sources and their schedule
/run <source> — run a source now

History:
/runs [source] [limit] — recent runs (default 10)
/orphans [source] <group> — items no longer listed in a group

Other:
/chatid — show the destination reference of this chat`)
}

func (b *Bot) handleSources(chatID int64) {
	if b.runner == nil {
		b.reply(chatID, "No sources are attached to this bot.")
		return
	}

	sources := b.runner.Sources()
	msg := tgbotapi.NewMessage(chatID, FormatSources(sources))
	if rows := sourceKeyboard(sources); len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send sources", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleRuns(ctx context.Context, chatID int64, args string) {
	if b.store == nil {
		b.reply(chatID, "Run history is not available.")
		return
	}

	source, limit, err := ParseRunsArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	runs, err := b.store.ListRuns(ctx, source, limit)
	if err != nil {
		b.log.Error("list runs", "source", source, "error", err)
		b.reply(chatID, fmt.Sprintf("Failed to list runs: %v", err))
		return
	}
	b.reply(chatID, FormatRuns(runs))
}

func (b *Bot) handleOrphans(ctx context.Context, chatID int64, args string) {
	if b.store == nil {
		b.reply(chatID, "Orphan reports are not available.")
		return
	}

	source, group, err := ParseOrphansArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	orphans, err := b.store.ListOrphans(ctx, source, group)
	if err != nil {
		b.log.Error("list orphans", "source", source, "group", group, "error", err)
		b.reply(chatID, fmt.Sprintf("Failed to list orphans: %v", err))
		return
	}
	b.reply(chatID, FormatOrphans(source, group, orphans))
}

func (b *Bot) handleRun(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /run <source>")
		return
	}
	if b.runner == nil {
		b.reply(chatID, "No sources are attached to this bot.")
		return
	}

	b.reply(chatID, fmt.Sprintf("Running %s...", args))
	// Runs outside the update loop so other commands still get answers.
	b.runs.Go(func() {
		run, err := b.runner.RunSource(ctx, args)
		if err != nil {
			b.log.Error("manual run", "source", args, "error", err)
			b.reply(chatID, fmt.Sprintf("Run of %s failed: %v", args, err))
			return
		}
		b.reply(chatID, FormatRun(run))
	})
}
