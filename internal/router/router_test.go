package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Anykei/telegram-ha-bot/internal/device"
	"github.com/Anykei/telegram-ha-bot/internal/ha"
	"github.com/Anykei/telegram-ha-bot/internal/nav"
	"github.com/Anykei/telegram-ha-bot/internal/screens"
	"github.com/Anykei/telegram-ha-bot/internal/store"
	"github.com/Anykei/telegram-ha-bot/internal/view"
)

type fakeHub struct {
	states  map[string]string
	history []ha.HistoryPoint
}

func (f *fakeHub) StatesByIDs(_ context.Context, ids []string) ([]ha.Entity, error) {
	var out []ha.Entity
	for _, id := range ids {
		if s, ok := f.states[id]; ok {
			out = append(out, ha.Entity{EntityID: id, State: s})
		}
	}
	return out, nil
}

func (f *fakeHub) History(_ context.Context, _ string, hours uint32, _ int32) (*ha.HistoryResult, error) {
	end := time.Now()
	return &ha.HistoryResult{
		Points: f.history,
		Start:  end.Add(-time.Duration(hours) * time.Hour),
		End:    end,
	}, nil
}

type scriptedExecutor struct {
	result device.Interaction
	calls  []nav.Command
}

func (s *scriptedExecutor) Interact(_ context.Context, _ string, cmd nav.Command) device.Interaction {
	s.calls = append(s.calls, cmd)
	return s.result
}

// fixture seeds a kitchen with one visible light and one visible sensor.
func fixture(t *testing.T) (*Router, *store.Repo, *scriptedExecutor, store.Device, store.Device, int64) {
	t.Helper()
	dsn := "file:router_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	repo, err := store.New(db)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	ctx := context.Background()

	for _, ent := range []struct{ id, class string }{
		{"light.kitchen", ""},
		{"sensor.kitchen_temp", "temperature"},
	} {
		if err := repo.SyncDevice(ctx, ent.id, "Kitchen", "", ent.class); err != nil {
			t.Fatalf("sync: %v", err)
		}
		// New devices start hidden; surface them for control screens.
		if _, err := repo.ToggleHidden(ctx, ent.id); err != nil {
			t.Fatalf("unhide: %v", err)
		}
	}

	rooms, err := repo.Rooms(ctx)
	if err != nil || len(rooms) != 1 {
		t.Fatalf("rooms: %v %v", rooms, err)
	}
	roomID := rooms[0].ID
	devices, err := repo.DevicesByRoom(ctx, roomID)
	if err != nil || len(devices) != 2 {
		t.Fatalf("devices: %v %v", devices, err)
	}
	var light, sensor store.Device
	for _, d := range devices {
		if d.EntityID == "light.kitchen" {
			light = d
		} else {
			sensor = d
		}
	}

	hub := &fakeHub{
		states: map[string]string{
			"light.kitchen":       "on",
			"sensor.kitchen_temp": "21.5",
		},
		history: []ha.HistoryPoint{
			{At: time.Now().Add(-2 * time.Hour), State: "21.0"},
			{At: time.Now().Add(-1 * time.Hour), State: "21.5"},
		},
	}
	exec := &scriptedExecutor{result: device.Interaction{Outcome: device.Processed}}
	builder := screens.NewBuilder(repo, hub)
	return New(repo, builder, exec, 30*time.Minute), repo, exec, light, sensor, roomID
}

func buttonData(v *view.View) []string {
	var out []string
	for _, row := range v.Keyboard {
		for _, b := range row {
			out = append(out, b.Data)
		}
	}
	return out
}

func hasButtonTo(v *view.View, in nav.Intent) bool {
	want := nav.Encode(in)
	for _, data := range buttonData(v) {
		if data == want {
			return true
		}
	}
	return false
}

func TestResolveNilIntentIsHome(t *testing.T) {
	r, _, _, _, _, _ := fixture(t)
	v, err := r.Resolve(context.Background(), nil, 1, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := v.Intent.(nav.Home); !ok {
		t.Fatalf("intent = %#v, want Home", v.Intent)
	}
}

func TestHomeShowsAdminOnlyForAdmins(t *testing.T) {
	r, _, _, _, _, _ := fixture(t)
	ctx := context.Background()

	plain, _ := r.Resolve(ctx, nav.Home{}, 1, false)
	if hasButtonTo(plain, nav.AdminMenu{}) {
		t.Fatal("non-admin home shows admin button")
	}
	admin, _ := r.Resolve(ctx, nav.Home{}, 1, true)
	if !hasButtonTo(admin, nav.AdminMenu{}) {
		t.Fatal("admin home is missing admin button")
	}
}

func TestAdminScreensGateOnAdmin(t *testing.T) {
	r, _, _, _, _, _ := fixture(t)
	v, err := r.Resolve(context.Background(), nav.AdminUsers{}, 1, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := v.Intent.(nav.Home); !ok {
		t.Fatalf("non-admin reached %#v", v.Intent)
	}
}

func TestRoomDetailListsDevicesWithState(t *testing.T) {
	r, _, _, light, _, roomID := fixture(t)
	v, err := r.Resolve(context.Background(), nav.RoomDetail{Room: roomID}, 1, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !hasButtonTo(v, nav.QuickAction{Room: roomID, Device: light.ID, Cmd: nav.Toggle()}) {
		t.Fatal("room screen is missing the light toggle button")
	}
	if rd, ok := v.Intent.(nav.RoomDetail); !ok || rd.Room != roomID {
		t.Fatalf("intent = %#v", v.Intent)
	}
}

func TestQuickActionProcessedRerendersRoom(t *testing.T) {
	r, _, exec, light, _, roomID := fixture(t)
	in := nav.QuickAction{Room: roomID, Device: light.ID, Cmd: nav.Toggle()}
	v, err := r.Resolve(context.Background(), in, 1, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(exec.calls) != 1 || exec.calls[0].Kind != nav.CmdToggle {
		t.Fatalf("executor calls = %+v", exec.calls)
	}
	if rd, ok := v.Intent.(nav.RoomDetail); !ok || rd.Room != roomID {
		t.Fatalf("intent after toggle = %#v, want RoomDetail{%d}", v.Intent, roomID)
	}
}

func TestQuickActionFailureIsAlertOnly(t *testing.T) {
	r, _, exec, light, _, roomID := fixture(t)
	exec.result = device.Interaction{Outcome: device.Failed, Err: errors.New("hub timeout")}

	v, err := r.Resolve(context.Background(), nav.QuickAction{Room: roomID, Device: light.ID, Cmd: nav.Toggle()}, 1, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v.Alert == "" {
		t.Fatal("failed action produced no alert")
	}
	if v.Intent != nil {
		t.Fatalf("alert view advances context to %#v", v.Intent)
	}
}

func TestSensorTapOpensChart(t *testing.T) {
	r, _, exec, _, sensor, roomID := fixture(t)
	exec.result = device.Interaction{Outcome: device.NeedsDetail}

	v, err := r.Resolve(context.Background(), nav.QuickAction{Room: roomID, Device: sensor.ID, Cmd: nav.Toggle()}, 1, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	qa, ok := v.Intent.(nav.QuickAction)
	if !ok || qa.Cmd.Kind != nav.CmdShowChart {
		t.Fatalf("intent = %#v, want chart QuickAction", v.Intent)
	}
	if len(v.Image) == 0 {
		t.Fatal("chart screen has no image")
	}
}

func TestChartIntentSkipsExecutor(t *testing.T) {
	r, _, exec, _, sensor, roomID := fixture(t)
	in := nav.QuickAction{Room: roomID, Device: sensor.ID, Cmd: nav.ShowChart(24, -24)}
	if _, err := r.Resolve(context.Background(), in, 1, false); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(exec.calls) != 0 {
		t.Fatalf("chart navigation hit the executor: %+v", exec.calls)
	}
}

func TestToggleNotifyPersistsAndRerenders(t *testing.T) {
	r, repo, _, light, _, roomID := fixture(t)
	ctx := context.Background()

	v, err := r.Resolve(ctx, nav.ToggleNotify{Room: roomID, Device: light.ID}, 42, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := v.Intent.(nav.DeviceSettings); !ok {
		t.Fatalf("intent = %#v, want DeviceSettings", v.Intent)
	}
	subscribed, err := repo.IsSubscribed(ctx, 42, light.EntityID)
	if err != nil || !subscribed {
		t.Fatalf("subscription not persisted: %v %v", subscribed, err)
	}
}

func TestMissingDeviceFallsBackToRoomList(t *testing.T) {
	r, _, _, _, _, roomID := fixture(t)
	v, err := r.Resolve(context.Background(), nav.QuickAction{Room: roomID, Device: 9999, Cmd: nav.Toggle()}, 1, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !hasButtonTo(v, nav.RoomDetail{Room: roomID}) {
		t.Fatal("fallback screen has no way back to the room")
	}
}

func TestHeaderShowsRecentSubscribedEvents(t *testing.T) {
	r, repo, _, light, _, _ := fixture(t)
	ctx := context.Background()
	if _, err := repo.ToggleSubscription(ctx, 1, light.EntityID); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := repo.RecordEvent(ctx, light.EntityID, "on"); err != nil {
		t.Fatalf("record: %v", err)
	}

	v, err := r.Resolve(ctx, nav.Home{}, 1, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(v.Notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(v.Notifications))
	}
	if v.Notifications[0].Value != "ON" {
		t.Fatalf("header value = %q, want ON", v.Notifications[0].Value)
	}
}
