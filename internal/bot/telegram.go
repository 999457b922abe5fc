// telegram.go - Telegram transport for the controller.
package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Handler consumes updates.
type Handler interface {
	Handle(ctx context.Context, u Update)
}

// Telegram polls the Bot API and sends replies. It implements Messenger.
type Telegram struct {
	api *tgbotapi.BotAPI
}

func NewTelegram(token string, debug bool) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	api.Debug = debug

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot connected")

	return &Telegram{api: api}, nil
}

// RegisterCommands publishes the command list shown in Telegram clients.
func (t *Telegram) RegisterCommands() error {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Create or open your account"},
		tgbotapi.BotCommand{Command: "menu", Description: "Main menu"},
		tgbotapi.BotCommand{Command: "balance", Description: "Wallet, spot and futures balances"},
		tgbotapi.BotCommand{Command: "long", Description: "Open a long position"},
		tgbotapi.BotCommand{Command: "short", Description: "Open a short position"},
		tgbotapi.BotCommand{Command: "positions", Description: "Open positions"},
		tgbotapi.BotCommand{Command: "close", Description: "Close a position"},
		tgbotapi.BotCommand{Command: "deposit", Description: "Send USDT to the exchange"},
		tgbotapi.BotCommand{Command: "transfer", Description: "Move spot funds to futures"},
		tgbotapi.BotCommand{Command: "markets", Description: "Browse markets"},
		tgbotapi.BotCommand{Command: "price", Description: "24h ticker of a symbol"},
		tgbotapi.BotCommand{Command: "history", Description: "Recent trades"},
		tgbotapi.BotCommand{Command: "export", Description: "Export your private key"},
		tgbotapi.BotCommand{Command: "language", Description: "Change language"},
		tgbotapi.BotCommand{Command: "cancel", Description: "Cancel the current action"},
		tgbotapi.BotCommand{Command: "help", Description: "All commands"},
	)
	_, err := t.api.Request(cmds)
	return err
}

// Run polls for updates until ctx is done. Each update is handled in its
// own goroutine; the handler serializes per user.
func (t *Telegram) Run(ctx context.Context, h Handler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if upd, ok := convert(update); ok {
				go h.Handle(ctx, upd)
			}
		case <-ctx.Done():
			return
		}
	}
}

func convert(update tgbotapi.Update) (Update, bool) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		return Update{
			UserID:   msg.From.ID,
			ChatID:   msg.Chat.ID,
			Username: msg.From.UserName,
			Text:     msg.Text,
		}, true
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		cb := update.CallbackQuery
		return Update{
			UserID:     cb.From.ID,
			ChatID:     cb.Message.Chat.ID,
			Username:   cb.From.UserName,
			Callback:   cb.Data,
			CallbackID: cb.ID,
		}, true
	}
	return Update{}, false
}

func (t *Telegram) Send(chatID int64, m Message) error {
	msg := tgbotapi.NewMessage(chatID, m.Text)
	if m.Markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	msg.DisableWebPagePreview = true
	if m.Keyboard != nil {
		msg.ReplyMarkup = *m.Keyboard
	}
	_, err := t.api.Send(msg)
	return err
}

func (t *Telegram) AnswerCallback(callbackID, text string) error {
	_, err := t.api.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}
