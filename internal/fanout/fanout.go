// Package fanout ingests hub state changes and pushes their consequences to
// users: screen refreshes for anyone watching the affected room or subscribed
// to the entity, and notification messages for subscribers.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Anykei/telegram-ha-bot/internal/device"
	"github.com/Anykei/telegram-ha-bot/internal/ha"
	"github.com/Anykei/telegram-ha-bot/internal/metrics"
	"github.com/Anykei/telegram-ha-bot/internal/nav"
	"github.com/Anykei/telegram-ha-bot/internal/presentation"
	"github.com/Anykei/telegram-ha-bot/internal/session"
	"github.com/Anykei/telegram-ha-bot/internal/store"
)

// Refresher re-renders one user's current screen.
type Refresher interface {
	Refresh(ctx context.Context, userID int64) error
}

// Notifier delivers a transient notification message to a user.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// Engine owns the bounded ingest queue and the single fan-out worker.
// Ingestion never blocks the listener: when the queue is full the event is
// shed and counted.
type Engine struct {
	repo      *store.Repo
	sessions  *session.Store
	refresher Refresher
	notifier  Notifier
	queue     chan ha.StateChange
}

func New(repo *store.Repo, sessions *session.Store, refresher Refresher, notifier Notifier, capacity int) *Engine {
	if capacity <= 0 {
		capacity = 32
	}
	return &Engine{
		repo:      repo,
		sessions:  sessions,
		refresher: refresher,
		notifier:  notifier,
		queue:     make(chan ha.StateChange, capacity),
	}
}

// Offer enqueues an event without blocking. Implements the listener's sink.
func (e *Engine) Offer(ev ha.StateChange) bool {
	select {
	case e.queue <- ev:
		metrics.EventsIngested.Inc()
		return true
	default:
		metrics.EventsDropped.Inc()
		slog.Warn("event queue full, shedding", "entity", ev.EntityID, "state", ev.NewState)
		return false
	}
}

// Run drains the queue until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.queue:
			e.process(ctx, ev)
		}
	}
}

func (e *Engine) process(ctx context.Context, ev ha.StateChange) {
	if ev.NewState == "" || ev.OldState == ev.NewState {
		return
	}

	roomID, known, err := e.repo.RoomIDByEntity(ctx, ev.EntityID)
	if err != nil {
		slog.Error("room lookup failed", "entity", ev.EntityID, "error", err)
		return
	}
	if !known {
		// Entity outside the registry; nothing to show anyone.
		return
	}

	if err := e.repo.RecordEvent(ctx, ev.EntityID, ev.NewState); err != nil {
		slog.Error("event log write failed", "entity", ev.EntityID, "error", err)
	}

	// Correlates the refresh burst of one event across log lines.
	eventID := uuid.NewString()
	slog.Info("state change",
		"event_id", eventID, "entity", ev.EntityID,
		"from", ev.OldState, "to", ev.NewState)

	subscribers, err := e.repo.Subscribers(ctx, ev.EntityID)
	if err != nil {
		slog.Error("subscriber lookup failed", "event_id", eventID, "entity", ev.EntityID, "error", err)
		subscribers = nil
	}

	e.refreshWatchers(ctx, eventID, roomID, subscribers)
	e.notifySubscribers(ctx, eventID, ev, roomID, subscribers)
}

// refreshWatchers re-renders every affected user: anyone whose session
// context sits inside the affected room, plus every subscriber of the entity
// so their alert header stays current wherever they are. Refreshes run
// concurrently; slow chats do not hold up each other.
func (e *Engine) refreshWatchers(ctx context.Context, eventID string, roomID int64, subscribers []int64) {
	subscribed := make(map[int64]struct{}, len(subscribers))
	for _, userID := range subscribers {
		subscribed[userID] = struct{}{}
	}

	var wg sync.WaitGroup
	for userID, sess := range e.sessions.Snapshot() {
		if _, isSub := subscribed[userID]; !isSub {
			in, err := nav.Decode(sess.Context)
			if err != nil || !watchingRoom(in, roomID) {
				continue
			}
		}
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			if err := e.refresher.Refresh(ctx, userID); err != nil {
				slog.Warn("watcher refresh failed", "event_id", eventID, "user_id", userID, "error", err)
			}
		}(userID)
	}
	wg.Wait()
}

// watchingRoom reports whether the intent shows live state from roomID.
func watchingRoom(in nav.Intent, roomID int64) bool {
	switch it := in.(type) {
	case nav.RoomDetail:
		return it.Room == roomID
	case nav.DeviceControl:
		return it.Room == roomID
	case nav.QuickAction:
		return it.Room == roomID
	default:
		return false
	}
}

func (e *Engine) notifySubscribers(ctx context.Context, eventID string, ev ha.StateChange, roomID int64, subscribers []int64) {
	if len(subscribers) == 0 {
		return
	}

	text := e.composeNotification(ctx, ev, roomID)
	for _, userID := range subscribers {
		if err := e.notifier.Notify(ctx, userID, text); err != nil {
			slog.Warn("notification failed", "event_id", eventID, "user_id", userID, "error", err)
			continue
		}
		metrics.Notifications.Inc()
	}
}

// composeNotification builds the one-line push text: icon, room breadcrumb,
// device name and the humanized new state.
func (e *Engine) composeNotification(ctx context.Context, ev ha.StateChange, roomID int64) string {
	domain := device.Domain(ev.EntityID)

	name := ev.EntityID
	var deviceClass string
	if devices, err := e.repo.DevicesByRoom(ctx, roomID); err == nil {
		for _, d := range devices {
			if d.EntityID == ev.EntityID {
				name = d.DisplayName()
				deviceClass = d.DeviceClass
				break
			}
		}
	}

	roomName := ""
	if room, err := e.repo.RoomByID(ctx, roomID); err == nil && room != nil {
		roomName = room.DisplayName()
	}

	state := ev.NewState
	if alias, ok, err := e.repo.StateAliasFor(ctx, ev.EntityID, ev.NewState); err == nil && ok {
		state = alias
	} else {
		state = presentation.StateValue(domain, deviceClass, ev.NewState)
	}

	icon := presentation.Icon(domain, deviceClass, ev.NewState)
	if roomName != "" {
		return fmt.Sprintf("%s %s · %s: %s", icon, roomName, name, state)
	}
	return fmt.Sprintf("%s %s: %s", icon, name, state)
}
