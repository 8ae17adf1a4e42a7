package render

import (
	"context"
	"fmt"

	"github.com/Anykei/telegram-ha-bot/internal/nav"
	"github.com/Anykei/telegram-ha-bot/internal/session"
	"github.com/Anykei/telegram-ha-bot/internal/view"
)

// Resolver turns a navigation intent into a fully built screen.
type Resolver interface {
	Resolve(ctx context.Context, in nav.Intent, userID int64, admin bool) (*view.View, error)
}

// Refresher re-renders a user's current screen from their stored context.
// Event fan-out, the maintenance heartbeat and dialogue completion all go
// through here.
type Refresher struct {
	resolver   Resolver
	sessions   *session.Store
	reconciler *Reconciler
	isAdmin    func(userID int64) bool
}

func NewRefresher(resolver Resolver, sessions *session.Store, rec *Reconciler, isAdmin func(int64) bool) *Refresher {
	return &Refresher{resolver: resolver, sessions: sessions, reconciler: rec, isAdmin: isAdmin}
}

// Refresh rebuilds and redelivers the screen the user is looking at. Users
// without a session are skipped silently. A corrupt stored context degrades
// to the home screen rather than erroring.
func (r *Refresher) Refresh(ctx context.Context, userID int64) error {
	sess, ok := r.sessions.Get(userID)
	if !ok {
		return nil
	}
	in := nav.DecodeOrHome(sess.Context)
	v, err := r.resolver.Resolve(ctx, in, userID, r.isAdmin(userID))
	if err != nil {
		return fmt.Errorf("refresh user %d: %w", userID, err)
	}
	return r.reconciler.Apply(ctx, userID, v)
}
