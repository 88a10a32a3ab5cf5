package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cmdSources = "sources"
	cmdRuns    = "runs"
	cmdRun     = "run"
	cmdOrphans = "orphans"
)

// sourceKeyboard offers "run now" and "history" buttons for every enabled source.
func sourceKeyboard(sources []SourceInfo) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, s := range sources {
		if !s.Enabled {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Run "+s.Name, cmdRun+":"+s.Name),
			tgbotapi.NewInlineKeyboardButtonData("History", cmdRuns+":"+s.Name),
		))
	}
	return rows
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, source, ok := strings.Cut(data, ":")
	if !ok || source == "" {
		return
	}

	var userID int64
	var username string
	if cb.From != nil {
		userID, username = cb.From.ID, cb.From.UserName
	}
	b.log.Info("callback",
		"action", action,
		"source", source,
		"chat_id", chatID,
		"user_id", userID,
		"username", username,
	)

	switch action {
	case cmdRun:
		b.handleRun(ctx, chatID, source)
	case cmdRuns:
		b.handleRuns(ctx, chatID, source)
	}
}
