// Package render reconciles resolved screens against the user's single menu
// message: edit in place when possible, resend and retire the old message
// when not.
package render

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Anykei/telegram-ha-bot/internal/metrics"
	"github.com/Anykei/telegram-ha-bot/internal/nav"
	"github.com/Anykei/telegram-ha-bot/internal/session"
	"github.com/Anykei/telegram-ha-bot/internal/view"
)

// ErrNotModified is returned by a Messenger when an edit would not change
// the message. The reconciler treats it as a successful delivery.
var ErrNotModified = errors.New("render: message not modified")

// Messenger is the transport the reconciler drives. Chat and user IDs are
// the same thing in private chats, which is the only place the bot lives.
type Messenger interface {
	EditView(ctx context.Context, chatID int64, messageID int, v *view.View) error
	SendView(ctx context.Context, chatID int64, v *view.View) (messageID int, err error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Reconciler delivers views and keeps the session store pointing at the
// live menu message.
type Reconciler struct {
	messenger Messenger
	sessions  *session.Store
}

func NewReconciler(m Messenger, sessions *session.Store) *Reconciler {
	return &Reconciler{messenger: m, sessions: sessions}
}

// Apply delivers v to the user. Preference order: edit the tracked message,
// fall back to sending a fresh one and deleting the stale one. The session
// context advances to v's intent unless the view is alert-only (nil intent),
// so a failed action never moves the user's position.
func (r *Reconciler) Apply(ctx context.Context, userID int64, v *view.View) error {
	navContext := r.nextContext(userID, v)

	sess, ok := r.sessions.Get(userID)
	if ok && sess.LastMessageID != 0 {
		err := r.messenger.EditView(ctx, userID, sess.LastMessageID, v)
		switch {
		case err == nil, errors.Is(err, ErrNotModified):
			r.finish(userID, sess.LastMessageID, navContext, v)
			return nil
		default:
			slog.Warn("edit failed, falling back to resend",
				"user_id", userID, "message_id", sess.LastMessageID, "error", err)
			metrics.ResendFallbacks.Inc()
		}
	}

	messageID, err := r.messenger.SendView(ctx, userID, v)
	if err != nil {
		return err
	}
	r.finish(userID, messageID, navContext, v)

	if ok && sess.LastMessageID != 0 {
		r.retire(userID, sess.LastMessageID)
	}
	return nil
}

// nextContext picks the context string the delivered screen leaves behind.
func (r *Reconciler) nextContext(userID int64, v *view.View) string {
	if v.Intent != nil {
		return nav.Encode(v.Intent)
	}
	if sess, ok := r.sessions.Get(userID); ok {
		return sess.Context
	}
	return ""
}

func (r *Reconciler) finish(userID int64, messageID int, navContext string, v *view.View) {
	r.sessions.Upsert(userID, messageID, navContext)
	if v.Dialogue != nil {
		r.sessions.SetDialogue(userID, *v.Dialogue)
	}
	metrics.Renders.Inc()
}

// retire deletes the superseded menu message off the hot path. Best effort:
// Telegram refuses deletes past 48h and that is fine.
func (r *Reconciler) retire(userID int64, messageID int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.messenger.DeleteMessage(ctx, userID, messageID); err != nil {
			slog.Debug("stale menu delete failed", "user_id", userID, "message_id", messageID, "error", err)
		}
	}()
}
