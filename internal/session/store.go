// Package session tracks the per-user live state: which message currently
// shows the menu, which navigation context it represents, and whether the
// next free-text message answers a prompt. The in-memory map is authoritative
// for the running process; every upsert is mirrored to durable storage on a
// best-effort background write so sessions survive restarts.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Session is the per-user record of the last shown menu message.
type Session struct {
	LastMessageID int
	// Context is the encoded navigation intent currently on screen.
	Context string
	// HeaderEntities are user-pinned entities for the status header. They are
	// preserved across upserts because upserts only replace the live fields.
	HeaderEntities map[string]struct{}
}

// DialogueKind enumerates the free-text prompts a user can be parked in.
type DialogueKind int

const (
	DialogueIdle DialogueKind = iota
	DialogueAwaitingName
	DialogueAwaitingStateAlias
	DialogueAwaitingChartInterval
	DialogueAwaitingAdminUserID
)

// Dialogue marks that the next plain message from the user answers a prompt.
// Dialogue state is ephemeral: it is reset by any completed button press and
// never persisted.
type Dialogue struct {
	Kind          DialogueKind
	Device        int64
	Room          int64
	OriginalState string
	// Delete distinguishes the admin add/remove user prompts.
	Delete bool
}

// Mirror is the durable write-through target for session snapshots.
type Mirror interface {
	SaveSession(ctx context.Context, userID int64, messageID int, navContext string) error
}

// Store is the concurrent session map. Operations on the same key are atomic;
// concurrent writers for the same user resolve by last-writer-wins, which is
// safe because every render is a full re-resolution, not a patch.
type Store struct {
	mirror Mirror

	mu        sync.RWMutex
	sessions  map[int64]Session
	dialogues map[int64]Dialogue
}

// NewStore builds an empty store. mirror may be nil in tests.
func NewStore(mirror Mirror) *Store {
	return &Store{
		mirror:    mirror,
		sessions:  map[int64]Session{},
		dialogues: map[int64]Dialogue{},
	}
}

// Restore seeds the map from persisted rows. It must run before the event
// fan-out and maintenance loops start, otherwise early events find no
// sessions to refresh.
func (s *Store) Restore(rows map[int64]Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uid, sess := range rows {
		if sess.HeaderEntities == nil {
			sess.HeaderEntities = map[string]struct{}{}
		}
		s.sessions[uid] = sess
	}
}

// Get returns a copy of the user's session.
func (s *Store) Get(userID int64) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Upsert replaces the live fields of the user's session, preserving pinned
// header entities, and mirrors the snapshot to durable storage without
// blocking the caller. Mirror failures are logged and swallowed.
func (s *Store) Upsert(userID int64, messageID int, navContext string) {
	s.mu.Lock()
	prev := s.sessions[userID]
	header := prev.HeaderEntities
	if header == nil {
		header = map[string]struct{}{}
	}
	s.sessions[userID] = Session{
		LastMessageID:  messageID,
		Context:        navContext,
		HeaderEntities: header,
	}
	s.mu.Unlock()

	if s.mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.mirror.SaveSession(ctx, userID, messageID, navContext); err != nil {
			slog.Warn("session mirror write failed", "user", userID, "error", err)
		}
	}()
}

// Len reports the number of open sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Snapshot returns a point-in-time copy of all sessions. Callers iterate the
// copy so renders never run under the store lock.
func (s *Store) Snapshot() map[int64]Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]Session, len(s.sessions))
	for uid, sess := range s.sessions {
		out[uid] = sess
	}
	return out
}

// SetDialogue parks the user in a free-text prompt.
func (s *Store) SetDialogue(userID int64, d Dialogue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogues[userID] = d
}

// ClearDialogue returns the user to Idle.
func (s *Store) ClearDialogue(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dialogues, userID)
}

// Dialogue reports the active prompt for the user, if any.
func (s *Store) Dialogue(userID int64) (Dialogue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dialogues[userID]
	return d, ok
}
