// Package telegram is the chat channel: it sends notifications with inline
// keyboards and turns incoming updates into notify.Inbound events.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spigell/hh-assistant/internal/models"
	"github.com/spigell/hh-assistant/internal/notify"
	"go.uber.org/zap"
)

const (
	pollTimeout    = 30
	DefaultTimeout = 15 * time.Second
)

type Config struct {
	Debug bool `mapstructure:"debug"`
	// Timeout bounds every outgoing call.
	Timeout time.Duration `mapstructure:"timeout"`
}

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	api     botAPI
	timeout time.Duration
	logger  *zap.Logger
}

var _ notify.Chat = (*Bot)(nil)

func New(token string, cfg Config, logger *zap.Logger) (*Bot, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	// Long polling holds a request open for pollTimeout seconds.
	client := &http.Client{Timeout: cfg.Timeout + pollTimeout*time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	api.Debug = cfg.Debug

	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("telegram bot authorized", zap.String("username", api.Self.UserName))

	return &Bot{api: api, timeout: cfg.Timeout, logger: logger}, nil
}

// call runs fn bounded by the bot timeout and ctx. An abandoned call finishes in the background.
func (b *Bot) call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := b.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send posts the notification body with its choices as an inline keyboard.
func (b *Bot) Send(ctx context.Context, chatID int64, n *models.Notification) (string, error) {
	text := n.Body
	if text == "" {
		text = n.Title
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = n.Format
	msg.DisableWebPagePreview = true
	if kb, ok := keyboard(n.Choices); ok {
		msg.ReplyMarkup = kb
	}

	var sent tgbotapi.Message
	err := b.call(ctx, func() error {
		var err error
		sent, err = b.api.Send(msg)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("send message to chat %d: %w", chatID, err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// Reply sends plain text.
func (b *Bot) Reply(ctx context.Context, chatID int64, text string) error {
	_, err := b.Send(ctx, chatID, &models.Notification{Body: text})
	return err
}

// EditChoices replaces the inline keyboard of a sent message.
func (b *Bot) EditChoices(ctx context.Context, chatID int64, messageID string, choices []models.Choice) error {
	id, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", messageID, err)
	}

	kb, _ := keyboard(choices)
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, id, kb)
	if err := b.call(ctx, func() error { return b.request(edit) }); err != nil {
		return fmt.Errorf("edit keyboard of message %s: %w", messageID, err)
	}
	return nil
}

// Answer acknowledges a button press.
func (b *Bot) Answer(ctx context.Context, callbackID, text string) error {
	answer := tgbotapi.NewCallback(callbackID, text)
	if err := b.call(ctx, func() error { return b.request(answer) }); err != nil {
		return fmt.Errorf("answer callback %s: %w", callbackID, err)
	}
	return nil
}

func (b *Bot) request(c tgbotapi.Chattable) error {
	_, err := b.api.Request(c)
	return err
}

// Listen long-polls for updates and calls handler for each of them until ctx is done.
func (b *Bot) Listen(ctx context.Context, handler notify.Handler) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout

	updates := b.api.GetUpdatesChan(cfg)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			in, ok := inbound(update)
			if !ok {
				continue
			}
			handler(ctx, in)
		}
	}
}

func inbound(update tgbotapi.Update) (notify.Inbound, bool) {
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		in := notify.Inbound{CallbackID: q.ID, Data: q.Data}
		if q.From != nil {
			in.Username = q.From.UserName
		}
		if q.Message != nil && q.Message.Chat != nil {
			in.ChatID = q.Message.Chat.ID
			in.MessageID = strconv.Itoa(q.Message.MessageID)
		}
		return in, in.ChatID != 0
	case update.Message != nil && update.Message.Chat != nil:
		m := update.Message
		in := notify.Inbound{
			ChatID:    m.Chat.ID,
			MessageID: strconv.Itoa(m.MessageID),
			Text:      m.Text,
		}
		if m.From != nil {
			in.Username = m.From.UserName
		}
		if m.IsCommand() {
			in.Command = m.Command()
			in.Args = m.CommandArguments()
		}
		return in, true
	default:
		return notify.Inbound{}, false
	}
}

func keyboard(choices []models.Choice) (tgbotapi.InlineKeyboardMarkup, bool) {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(choices))
	for _, ch := range choices {
		switch {
		case ch.URL != "":
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(ch.Label, ch.URL)))
		case ch.Data != "":
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(ch.Label, ch.Data)))
		}
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}
