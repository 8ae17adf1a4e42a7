package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Anykei/telegram-ha-bot/internal/nav"
	"github.com/Anykei/telegram-ha-bot/internal/render"
	"github.com/Anykei/telegram-ha-bot/internal/session"
	"github.com/Anykei/telegram-ha-bot/internal/store"
	"github.com/Anykei/telegram-ha-bot/internal/view"
)

func TestParseChartHours(t *testing.T) {
	cases := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"36", 36, false},
		{"36h", 36, false},
		{"1", 1, false},
		{"2160", 2160, false},
		{"0", 0, true},
		{"2161", 0, true},
		{"-5", 0, true},
		{"yesterday", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := parseChartHours(tc.in)
		if tc.wantErr != (err != nil) {
			t.Errorf("parseChartHours(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("parseChartHours(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

type stubResolver struct {
	mu      sync.Mutex
	intents []nav.Intent
}

func (s *stubResolver) Resolve(_ context.Context, in nav.Intent, _ int64, _ bool) (*view.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = append(s.intents, in)
	return &view.View{Text: "ok", Intent: in}, nil
}

func (s *stubResolver) resolved() []nav.Intent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]nav.Intent(nil), s.intents...)
}

type stubMessenger struct {
	nextID int
}

func (m *stubMessenger) EditView(context.Context, int64, int, *view.View) error { return nil }

func (m *stubMessenger) SendView(context.Context, int64, *view.View) (int, error) {
	m.nextID++
	return m.nextID, nil
}

func (m *stubMessenger) DeleteMessage(context.Context, int64, int) error { return nil }

const testRootUser = int64(99)

func newDialogueFixture(t *testing.T) (*Loop, *stubResolver, *store.Repo) {
	t.Helper()
	dsn := "file:loop_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := store.New(db)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	sessions := session.NewStore(nil)
	res := &stubResolver{}
	rec := render.NewReconciler(&stubMessenger{nextID: 100}, sessions)
	return NewLoop(nil, repo, sessions, res, rec, testRootUser), res, repo
}

func seedDevice(t *testing.T, repo *store.Repo) store.Device {
	t.Helper()
	ctx := context.Background()
	if err := repo.SyncDevice(ctx, "light.kitchen", "Kitchen", "Kitchen light", ""); err != nil {
		t.Fatalf("sync: %v", err)
	}
	rooms, err := repo.Rooms(ctx)
	if err != nil || len(rooms) != 1 {
		t.Fatalf("rooms = %v %v", rooms, err)
	}
	devices, err := repo.DevicesByRoom(ctx, rooms[0].ID)
	if err != nil || len(devices) != 1 {
		t.Fatalf("devices = %v %v", devices, err)
	}
	return devices[0]
}

func TestDialogueRenameSavesAliasAndReturns(t *testing.T) {
	l, res, repo := newDialogueFixture(t)
	dev := seedDevice(t, repo)
	ctx := context.Background()

	d := session.Dialogue{Kind: session.DialogueAwaitingName, Device: dev.ID, Room: dev.RoomID}
	l.sessions.SetDialogue(7, d)
	l.handleDialogue(ctx, 7, "Desk lamp", d)

	got, err := repo.DeviceByID(ctx, dev.ID)
	if err != nil || got == nil {
		t.Fatalf("device: %v %v", got, err)
	}
	if got.Alias != "Desk lamp" {
		t.Fatalf("alias = %q, want the submitted name", got.Alias)
	}
	intents := res.resolved()
	if len(intents) != 1 || intents[0] != (nav.Intent)(nav.DeviceSettings{Room: dev.RoomID, Device: dev.ID}) {
		t.Fatalf("resolved = %v, want the device settings screen", intents)
	}
	if _, open := l.sessions.Dialogue(7); open {
		t.Fatal("dialogue still open after the answer")
	}
}

func TestDialogueStateAliasSavesForOriginalState(t *testing.T) {
	l, res, repo := newDialogueFixture(t)
	dev := seedDevice(t, repo)
	ctx := context.Background()

	d := session.Dialogue{
		Kind:          session.DialogueAwaitingStateAlias,
		Device:        dev.ID,
		Room:          dev.RoomID,
		OriginalState: "on",
	}
	l.sessions.SetDialogue(7, d)
	l.handleDialogue(ctx, 7, "Occupied", d)

	alias, ok, err := repo.StateAliasFor(ctx, dev.EntityID, "on")
	if err != nil {
		t.Fatalf("alias lookup: %v", err)
	}
	if !ok || alias != "Occupied" {
		t.Fatalf("alias = %q ok=%v, want the submitted label", alias, ok)
	}
	intents := res.resolved()
	if len(intents) != 1 || intents[0] != (nav.Intent)(nav.DeviceSettings{Room: dev.RoomID, Device: dev.ID}) {
		t.Fatalf("resolved = %v, want the device settings screen", intents)
	}
}

func TestDialogueChartIntervalShowsRequestedWindow(t *testing.T) {
	l, res, repo := newDialogueFixture(t)
	dev := seedDevice(t, repo)

	d := session.Dialogue{Kind: session.DialogueAwaitingChartInterval, Device: dev.ID, Room: dev.RoomID}
	l.sessions.SetDialogue(7, d)
	l.handleDialogue(context.Background(), 7, "36h", d)

	want := nav.QuickAction{Room: dev.RoomID, Device: dev.ID, Cmd: nav.ShowChart(36, 0)}
	intents := res.resolved()
	if len(intents) != 1 || intents[0] != (nav.Intent)(want) {
		t.Fatalf("resolved = %v, want %v", intents, want)
	}
}

func TestDialogueAdminAddsAndDeletesUsers(t *testing.T) {
	l, res, repo := newDialogueFixture(t)
	ctx := context.Background()

	add := session.Dialogue{Kind: session.DialogueAwaitingAdminUserID}
	l.sessions.SetDialogue(testRootUser, add)
	l.handleDialogue(ctx, testRootUser, "12345", add)

	exists, err := repo.UserExists(ctx, 12345)
	if err != nil || !exists {
		t.Fatalf("user not added: exists=%v err=%v", exists, err)
	}

	del := session.Dialogue{Kind: session.DialogueAwaitingAdminUserID, Delete: true}
	l.sessions.SetDialogue(testRootUser, del)
	l.handleDialogue(ctx, testRootUser, "12345", del)

	exists, err = repo.UserExists(ctx, 12345)
	if err != nil || exists {
		t.Fatalf("user not deleted: exists=%v err=%v", exists, err)
	}
	for _, in := range res.resolved() {
		if in != (nav.Intent)(nav.AdminUsers{}) {
			t.Fatalf("resolved %v, want the user list after each answer", in)
		}
	}
}

func TestDialogueAdminIgnoresNonAdmin(t *testing.T) {
	l, res, repo := newDialogueFixture(t)
	ctx := context.Background()

	d := session.Dialogue{Kind: session.DialogueAwaitingAdminUserID}
	l.sessions.SetDialogue(7, d)
	l.handleDialogue(ctx, 7, "12345", d)

	exists, err := repo.UserExists(ctx, 12345)
	if err != nil || exists {
		t.Fatalf("non-admin mutated the allow-list: exists=%v err=%v", exists, err)
	}
	if len(res.resolved()) != 0 {
		t.Fatalf("resolved %v, want nothing", res.resolved())
	}
}

func TestDialogueEmptyAnswerOnlyCloses(t *testing.T) {
	l, res, repo := newDialogueFixture(t)
	dev := seedDevice(t, repo)
	ctx := context.Background()

	d := session.Dialogue{Kind: session.DialogueAwaitingName, Device: dev.ID, Room: dev.RoomID}
	l.sessions.SetDialogue(7, d)
	l.handleDialogue(ctx, 7, "", d)

	if _, open := l.sessions.Dialogue(7); open {
		t.Fatal("dialogue still open")
	}
	if len(res.resolved()) != 0 {
		t.Fatalf("resolved %v, want nothing for an empty answer", res.resolved())
	}
}
