package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingMirror struct {
	mu    sync.Mutex
	calls int
	last  string
}

func (m *recordingMirror) SaveSession(_ context.Context, _ int64, _ int, navContext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = navContext
	return nil
}

func TestUpsertPreservesHeaderEntities(t *testing.T) {
	s := NewStore(nil)
	s.Restore(map[int64]Session{
		7: {LastMessageID: 1, Context: "a", HeaderEntities: map[string]struct{}{"sensor.leak": {}}},
	})

	s.Upsert(7, 2, "b")

	got, ok := s.Get(7)
	if !ok {
		t.Fatal("session missing after upsert")
	}
	if got.LastMessageID != 2 || got.Context != "b" {
		t.Fatalf("live fields not replaced: %+v", got)
	}
	if _, ok := got.HeaderEntities["sensor.leak"]; !ok {
		t.Fatalf("pinned header entities lost: %+v", got.HeaderEntities)
	}
}

func TestUpsertMirrorsAsync(t *testing.T) {
	m := &recordingMirror{}
	s := NewStore(m)
	s.Upsert(1, 10, "ctx")

	deadline := time.Now().Add(2 * time.Second)
	for {
		m.mu.Lock()
		calls, last := m.calls, m.last
		m.mu.Unlock()
		if calls == 1 && last == "ctx" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("mirror write not observed: calls=%d last=%q", calls, last)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConcurrentUpsertsLastWriterWins(t *testing.T) {
	s := NewStore(nil)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Upsert(int64(n%4), n, "c")
		}(i)
	}
	wg.Wait()

	if s.Len() != 4 {
		t.Fatalf("expected 4 sessions, got %d", s.Len())
	}
	for uid := int64(0); uid < 4; uid++ {
		if _, ok := s.Get(uid); !ok {
			t.Fatalf("session %d missing", uid)
		}
	}
}

func TestDialogueLifecycle(t *testing.T) {
	s := NewStore(nil)
	if _, ok := s.Dialogue(5); ok {
		t.Fatal("unexpected dialogue for fresh user")
	}
	s.SetDialogue(5, Dialogue{Kind: DialogueAwaitingChartInterval, Device: 9, Room: 3})
	d, ok := s.Dialogue(5)
	if !ok || d.Kind != DialogueAwaitingChartInterval || d.Device != 9 {
		t.Fatalf("dialogue not stored: %+v ok=%v", d, ok)
	}
	s.ClearDialogue(5)
	if _, ok := s.Dialogue(5); ok {
		t.Fatal("dialogue not cleared")
	}
}
