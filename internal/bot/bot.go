// Package bot is the Telegram side of the digest: it posts digests to chats and
// answers a small set of admin commands about runs and orphaned items.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"digest_bot/internal/config"
	"digest_bot/internal/model"
)

// MaxMessageLength is the longest text Telegram accepts in one message.
const MaxMessageLength = 4096

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Store is the read side of persistence used by the admin commands.
type Store interface {
	ListRuns(ctx context.Context, source string, limit int) ([]model.Run, error)
	ListOrphans(ctx context.Context, source, group string) ([]model.Orphan, error)
}

// SourceInfo describes one configured source for /sources.
type SourceInfo struct {
	Name     string
	Schedule string
	Enabled  bool
	Missing  []string
}

// Runner lists sources and triggers one-off runs.
type Runner interface {
	Sources() []SourceInfo
	RunSource(ctx context.Context, source string) (model.Run, error)
}

// Bot posts digests to Telegram chats and handles admin commands.
type Bot struct {
	api    telegramAPI
	store  Store
	runner Runner
	cfg    *config.Config
	log    *slog.Logger
	// runs tracks manual runs started from chat.
	runs sync.WaitGroup
}

// New creates a Bot with the given Telegram token. store and runner may be nil when
// the bot is only used for posting.
func New(token string, store Store, runner Runner, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:    api,
		store:  store,
		runner: runner,
		cfg:    cfg,
		log:    log,
	}, nil
}

// SetRunner attaches the runner used by /run and /sources.
func (b *Bot) SetRunner(r Runner) {
	b.runner = r
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.runs.Wait()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.From == nil || !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// Post sends "title\n\nbody" to the chat identified by chatID, split into as many
// messages as needed. The receipt carries the id of the first message.
func (b *Bot) Post(_ context.Context, chatID, title, body string) (model.Receipt, error) {
	id, err := ParseChatID(chatID)
	if err != nil {
		return model.Receipt{}, err
	}

	parts := SplitMessage(title+"\n\n"+body, MaxMessageLength)
	receipt := model.Receipt{DestinationID: chatID}
	for i, part := range parts {
		msg := tgbotapi.NewMessage(id, part)
		msg.DisableWebPagePreview = true
		sent, err := b.api.Send(msg)
		if err != nil {
			return model.Receipt{}, fmt.Errorf("send message part %d/%d: %w", i+1, len(parts), err)
		}
		if i == 0 {
			receipt.MessageID = strconv.Itoa(sent.MessageID)
		}
	}

	b.log.Debug("posted to telegram", "chat_id", id, "parts", len(parts))
	return receipt, nil
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdSources:
		b.handleSources(chatID)
	case cmdRuns:
		b.handleRuns(ctx, chatID, args)
	case cmdOrphans:
		b.handleOrphans(ctx, chatID, args)
	case cmdRun:
		b.handleRun(ctx, chatID, args)
	case "chatid":
		b.reply(chatID, fmt.Sprintf("This chat: telegram:%d", chatID))
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
