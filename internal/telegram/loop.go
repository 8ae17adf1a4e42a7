package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Anykei/telegram-ha-bot/internal/nav"
	"github.com/Anykei/telegram-ha-bot/internal/render"
	"github.com/Anykei/telegram-ha-bot/internal/session"
	"github.com/Anykei/telegram-ha-bot/internal/store"
	"github.com/Anykei/telegram-ha-bot/internal/view"
)

// Loop consumes Telegram updates: button presses drive navigation, plain
// messages answer open dialogues, everything else is deleted to keep the
// chat a single-menu surface.
type Loop struct {
	bot        *Bot
	repo       *store.Repo
	sessions   *session.Store
	resolver   render.Resolver
	reconciler *render.Reconciler
	rootUser   int64
}

func NewLoop(bot *Bot, repo *store.Repo, sessions *session.Store, resolver render.Resolver, rec *render.Reconciler, rootUser int64) *Loop {
	return &Loop{
		bot:        bot,
		repo:       repo,
		sessions:   sessions,
		resolver:   resolver,
		reconciler: rec,
		rootUser:   rootUser,
	}
}

// Run blocks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := l.bot.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			l.bot.api.StopReceivingUpdates()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			switch {
			case upd.CallbackQuery != nil:
				l.handleCallback(ctx, upd.CallbackQuery)
			case upd.Message != nil:
				l.handleMessage(ctx, upd.Message)
			}
		}
	}
}

func (l *Loop) allowed(ctx context.Context, userID int64) bool {
	if userID == l.rootUser {
		return true
	}
	exists, err := l.repo.UserExists(ctx, userID)
	if err != nil {
		slog.Error("allow-list lookup failed", "user_id", userID, "error", err)
		return false
	}
	return exists
}

func (l *Loop) isAdmin(userID int64) bool { return userID == l.rootUser }

func (l *Loop) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	// Answer first so the client stops its spinner whatever happens next.
	if _, err := l.bot.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		slog.Debug("callback answer failed", "error", err)
	}

	userID := cq.From.ID
	if !l.allowed(ctx, userID) {
		return
	}

	// A button press on a menu the store forgot (e.g. after a wipe) adopts
	// that message as the tracked menu.
	if _, ok := l.sessions.Get(userID); !ok && cq.Message != nil {
		l.sessions.Upsert(userID, cq.Message.MessageID, "")
	}

	// Any button press abandons an open dialogue.
	l.sessions.ClearDialogue(userID)

	in := nav.DecodeOrHome(cq.Data)
	l.show(ctx, userID, in)
}

func (l *Loop) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || !msg.Chat.IsPrivate() {
		return
	}
	userID := msg.From.ID

	// User text never stays in the chat; the menu is the only surface.
	defer func() {
		if err := l.bot.DeleteMessage(ctx, msg.Chat.ID, msg.MessageID); err != nil {
			slog.Debug("user message delete failed", "error", err)
		}
	}()

	if !l.allowed(ctx, userID) {
		return
	}

	if msg.IsCommand() {
		if msg.Command() == "start" {
			l.restart(ctx, userID)
		}
		return
	}

	if d, ok := l.sessions.Dialogue(userID); ok && d.Kind != session.DialogueIdle {
		l.handleDialogue(ctx, userID, strings.TrimSpace(msg.Text), d)
	}
}

// restart drops the old menu and sends a fresh one at the bottom of the
// chat.
func (l *Loop) restart(ctx context.Context, userID int64) {
	if sess, ok := l.sessions.Get(userID); ok && sess.LastMessageID != 0 {
		if err := l.bot.DeleteMessage(ctx, userID, sess.LastMessageID); err != nil {
			slog.Debug("old menu delete failed", "user_id", userID, "error", err)
		}
		l.sessions.Upsert(userID, 0, "")
	}
	l.sessions.ClearDialogue(userID)
	l.show(ctx, userID, nav.Home{})
}

func (l *Loop) handleDialogue(ctx context.Context, userID int64, answer string, d session.Dialogue) {
	l.sessions.ClearDialogue(userID)
	if answer == "" {
		return
	}

	switch d.Kind {
	case session.DialogueAwaitingName:
		if len(answer) > 64 {
			answer = answer[:64]
		}
		if err := l.repo.SetDeviceAlias(ctx, d.Device, answer); err != nil {
			slog.Error("rename failed", "device", d.Device, "error", err)
		}
		l.show(ctx, userID, nav.DeviceSettings{Room: d.Room, Device: d.Device})

	case session.DialogueAwaitingStateAlias:
		dev, err := l.repo.DeviceByID(ctx, d.Device)
		if err != nil || dev == nil {
			slog.Warn("state alias target vanished", "device", d.Device, "error", err)
		} else if err := l.repo.SetStateAlias(ctx, dev.EntityID, d.OriginalState, answer); err != nil {
			slog.Error("state alias save failed", "entity", dev.EntityID, "error", err)
		}
		l.show(ctx, userID, nav.DeviceSettings{Room: d.Room, Device: d.Device})

	case session.DialogueAwaitingChartInterval:
		hours, err := parseChartHours(answer)
		if err != nil {
			// Keep the dialogue open and tell the user what went wrong.
			l.sessions.SetDialogue(userID, d)
			if nerr := l.bot.Notify(ctx, userID, err.Error()); nerr != nil {
				slog.Debug("interval hint failed", "error", nerr)
			}
			return
		}
		l.show(ctx, userID, nav.QuickAction{Room: d.Room, Device: d.Device, Cmd: nav.ShowChart(hours, 0)})

	case session.DialogueAwaitingAdminUserID:
		if !l.isAdmin(userID) {
			return
		}
		target, err := strconv.ParseInt(answer, 10, 64)
		if err != nil || target <= 0 {
			l.sessions.SetDialogue(userID, d)
			if nerr := l.bot.Notify(ctx, userID, "Send a numeric Telegram user id."); nerr != nil {
				slog.Debug("admin hint failed", "error", nerr)
			}
			return
		}
		if d.Delete {
			err = l.repo.DeleteUser(ctx, target)
		} else {
			err = l.repo.AddUser(ctx, target)
		}
		if err != nil {
			slog.Error("allow-list update failed", "target", target, "error", err)
		}
		l.show(ctx, userID, nav.AdminUsers{})
	}
}

// show resolves in and delivers the result. Resolution errors surface as an
// alert banner rather than a dead button.
func (l *Loop) show(ctx context.Context, userID int64, in nav.Intent) {
	v, err := l.resolver.Resolve(ctx, in, userID, l.isAdmin(userID))
	if err != nil {
		slog.Error("resolve failed", "user_id", userID, "error", err)
		v = &view.View{Alert: "Something went wrong. Try again."}
	}
	if err := l.reconciler.Apply(ctx, userID, v); err != nil {
		slog.Error("render failed", "user_id", userID, "error", err)
	}
}

// parseChartHours validates a custom chart window answer.
func parseChartHours(answer string) (uint32, error) {
	hours, err := strconv.Atoi(strings.TrimSuffix(answer, "h"))
	if err != nil {
		return 0, errors.New("send a number of hours, e.g. 36")
	}
	if hours < 1 || hours > 24*90 {
		return 0, fmt.Errorf("hours must be between 1 and %d", 24*90)
	}
	return uint32(hours), nil
}
