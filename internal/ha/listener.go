package ha

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

// StateChange is one accepted state_changed event from the hub.
type StateChange struct {
	EntityID     string
	OldState     string
	NewState     string
	FriendlyName string
	DeviceClass  string
}

// Sink receives accepted events. Offer must never block; it reports false
// when the event was shed.
type Sink interface {
	Offer(StateChange) bool
}

// Listener maintains the hub WebSocket subscription. Its connection walks
// Disconnected → Connecting → Authenticating → Subscribed and falls back to
// Disconnected on any I/O error, reconnecting under exponential backoff.
type Listener struct {
	wsURL string
	token string
	sink  Sink

	// dial is swappable for tests.
	dial func(ctx context.Context, url string) (*websocket.Conn, error)
}

func NewListener(baseURL, token string, sink Sink) *Listener {
	return &Listener{
		wsURL: WebsocketURL(baseURL),
		token: token,
		sink:  sink,
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

// WebsocketURL derives the event endpoint from the REST base URL.
func WebsocketURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	u = strings.Replace(u, "http", "ws", 1)
	return u + "/api/websocket"
}

// NewReconnectBackoff is the reconnect policy: 500ms doubling to a 30s cap,
// no jitter so the cadence is predictable in logs.
func NewReconnectBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Run blocks until ctx is cancelled, keeping the subscription alive across
// connection failures. Connectivity errors never propagate out.
func (l *Listener) Run(ctx context.Context) {
	policy := NewReconnectBackoff()
	for {
		if ctx.Err() != nil {
			return
		}
		_, err := l.runConnection(ctx, policy)
		if err != nil && ctx.Err() == nil {
			slog.Warn("hub stream disconnected", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
		wait := policy.NextBackOff()
		slog.Info("hub stream reconnecting", "in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

type wsFrame struct {
	Type  string `json:"type"`
	Event struct {
		EventType string `json:"event_type"`
		Data      struct {
			EntityID string   `json:"entity_id"`
			OldState *wsState `json:"old_state"`
			NewState *wsState `json:"new_state"`
		} `json:"data"`
	} `json:"event"`
}

type wsState struct {
	State      string `json:"state"`
	Attributes struct {
		FriendlyName string `json:"friendly_name"`
		DeviceClass  string `json:"device_class"`
	} `json:"attributes"`
}

// runConnection performs one full connect/auth/subscribe/read cycle. It
// resets the backoff policy once the subscription is confirmed so the next
// failure starts the ladder from the floor again.
func (l *Listener) runConnection(ctx context.Context, policy *backoff.ExponentialBackOff) (subscribed bool, err error) {
	slog.Info("hub stream connecting", "url", l.wsURL)
	conn, err := l.dial(ctx, l.wsURL)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	// Close the socket when ctx dies so the blocking read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	msgID := 1
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return subscribed, err
		}

		var frame wsFrame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
			// Heartbeats and malformed frames are skipped, not fatal.
			continue
		}

		switch frame.Type {
		case "auth_required":
			if err := conn.WriteJSON(map[string]any{"type": "auth", "access_token": l.token}); err != nil {
				return subscribed, err
			}
		case "auth_ok":
			msgID++
			if err := conn.WriteJSON(map[string]any{
				"id":         msgID,
				"type":       "subscribe_events",
				"event_type": "state_changed",
			}); err != nil {
				return subscribed, err
			}
		case "result":
			if !subscribed {
				subscribed = true
				policy.Reset()
				slog.Info("hub stream subscribed")
			}
		case "event":
			if frame.Event.EventType != "state_changed" {
				continue
			}
			data := frame.Event.Data
			ev := StateChange{EntityID: data.EntityID}
			if data.OldState != nil {
				ev.OldState = data.OldState.State
			}
			if data.NewState != nil {
				ev.NewState = data.NewState.State
				ev.FriendlyName = data.NewState.Attributes.FriendlyName
				ev.DeviceClass = data.NewState.Attributes.DeviceClass
			}
			if ev.EntityID == "" {
				continue
			}
			l.sink.Offer(ev)
		}
	}
}
