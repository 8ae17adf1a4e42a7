// Package telegram adapts the bot to the Telegram Bot API: it renders views
// into photo messages, runs the update loop and owns all chat-level policy
// (allow-list, dialogue answers, self-expiring notifications).
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Anykei/telegram-ha-bot/internal/render"
	"github.com/Anykei/telegram-ha-bot/internal/view"
)

// Bot wraps the raw API client. Every screen is a photo message: a chart
// when the view has one, the placeholder otherwise, so a single
// editMessageMedia call covers both text and chart transitions.
type Bot struct {
	api             *tgbotapi.BotAPI
	notificationTTL time.Duration
}

func New(token string, notificationTTL time.Duration) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	slog.Info("telegram bot authorized", "username", api.Self.UserName)
	return &Bot{api: api, notificationTTL: notificationTTL}, nil
}

func (b *Bot) image(v *view.View) tgbotapi.FileBytes {
	if len(v.Image) > 0 {
		return tgbotapi.FileBytes{Name: "chart.png", Bytes: v.Image}
	}
	return tgbotapi.FileBytes{Name: "menu.png", Bytes: placeholderPNG()}
}

func keyboard(v *view.View) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(v.Keyboard))
	for _, row := range v.Keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// EditView implements render.Messenger.
func (b *Bot) EditView(_ context.Context, chatID int64, messageID int, v *view.View) error {
	media := tgbotapi.NewInputMediaPhoto(b.image(v))
	media.Caption = v.RenderText()
	media.ParseMode = tgbotapi.ModeMarkdownV2

	markup := keyboard(v)
	edit := tgbotapi.EditMessageMediaConfig{
		BaseEdit: tgbotapi.BaseEdit{
			ChatID:      chatID,
			MessageID:   messageID,
			ReplyMarkup: &markup,
		},
		Media: media,
	}
	if _, err := b.api.Request(edit); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return render.ErrNotModified
		}
		return fmt.Errorf("edit message %d: %w", messageID, err)
	}
	return nil
}

// SendView implements render.Messenger.
func (b *Bot) SendView(_ context.Context, chatID int64, v *view.View) (int, error) {
	photo := tgbotapi.NewPhoto(chatID, b.image(v))
	photo.Caption = v.RenderText()
	photo.ParseMode = tgbotapi.ModeMarkdownV2
	photo.ReplyMarkup = keyboard(v)

	msg, err := b.api.Send(photo)
	if err != nil {
		return 0, fmt.Errorf("send menu: %w", err)
	}
	return msg.MessageID, nil
}

// DeleteMessage implements render.Messenger.
func (b *Bot) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	_, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

// Notify sends a transient plain message and schedules its deletion, keeping
// the chat a single-menu surface.
func (b *Bot) Notify(_ context.Context, userID int64, text string) error {
	msg, err := b.api.Send(tgbotapi.NewMessage(userID, text))
	if err != nil {
		return fmt.Errorf("notify user %d: %w", userID, err)
	}
	b.deleteLater(userID, msg.MessageID, b.notificationTTL)
	return nil
}

func (b *Bot) deleteLater(chatID int64, messageID int, after time.Duration) {
	if after <= 0 {
		return
	}
	time.AfterFunc(after, func() {
		if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
			slog.Debug("expiring message delete failed", "chat_id", chatID, "message_id", messageID, "error", err)
		}
	})
}
