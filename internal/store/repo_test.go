package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	// Unique in-memory DB per test to avoid cross-test contamination.
	dsn := "file:store_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := New(db)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	return repo
}

func TestSyncDeviceIsIdempotentAndKeepsAlias(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SyncDevice(ctx, "light.kitchen", "kitchen", "Kitchen light", ""); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := repo.SyncDevice(ctx, "light.kitchen", "kitchen", "Kitchen light", ""); err != nil {
		t.Fatalf("re-sync: %v", err)
	}

	roomID, ok, err := repo.RoomIDByEntity(ctx, "light.kitchen")
	if err != nil || !ok {
		t.Fatalf("room lookup: ok=%v err=%v", ok, err)
	}
	devs, err := repo.DevicesByRoom(ctx, roomID)
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if len(devs) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devs))
	}
	if devs[0].DeviceDomain != "light" {
		t.Fatalf("domain not derived: %+v", devs[0])
	}

	// A user rename must survive a re-sync.
	if err := repo.SetDeviceAlias(ctx, devs[0].ID, "Ceiling"); err != nil {
		t.Fatalf("alias: %v", err)
	}
	if err := repo.SyncDevice(ctx, "light.kitchen", "kitchen", "Kitchen light", ""); err != nil {
		t.Fatalf("third sync: %v", err)
	}
	dev, err := repo.DeviceByID(ctx, devs[0].ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if dev.Alias != "Ceiling" {
		t.Fatalf("alias lost on re-sync: %q", dev.Alias)
	}
}

func TestNewDevicesStartHidden(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SyncDevice(ctx, "sensor.attic", "attic", "Attic", "temperature"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	hidden, err := repo.IsHidden(ctx, "sensor.attic")
	if err != nil {
		t.Fatalf("is hidden: %v", err)
	}
	if !hidden {
		t.Fatal("freshly discovered device must start hidden")
	}

	nowHidden, err := repo.ToggleHidden(ctx, "sensor.attic")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if nowHidden {
		t.Fatal("toggle should have unhidden the device")
	}
}

func TestToggleSubscriptionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	on, err := repo.ToggleSubscription(ctx, 42, "light.kitchen")
	if err != nil || !on {
		t.Fatalf("first toggle: on=%v err=%v", on, err)
	}
	subs, err := repo.Subscribers(ctx, "light.kitchen")
	if err != nil || len(subs) != 1 || subs[0] != 42 {
		t.Fatalf("subscribers: %v err=%v", subs, err)
	}
	off, err := repo.ToggleSubscription(ctx, 42, "light.kitchen")
	if err != nil || off {
		t.Fatalf("second toggle: on=%v err=%v", off, err)
	}
	subs, _ = repo.Subscribers(ctx, "light.kitchen")
	if len(subs) != 0 {
		t.Fatalf("expected no subscribers, got %v", subs)
	}
}

func TestActiveAlertsAggregatesAndPurges(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SyncDevice(ctx, "binary_sensor.door", "hallway", "Front door", "door"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, err := repo.ToggleSubscription(ctx, 7, "binary_sensor.door"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := repo.RecordEvent(ctx, "binary_sensor.door", "on"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	// Event on an unrelated entity must not show up.
	if err := repo.RecordEvent(ctx, "light.kitchen", "on"); err != nil {
		t.Fatalf("record: %v", err)
	}

	alerts, err := repo.ActiveAlerts(ctx, 7, 30*time.Minute)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 aggregated alert, got %d", len(alerts))
	}
	if alerts[0].EventCount != 3 || alerts[0].LastState != "on" {
		t.Fatalf("bad aggregation: %+v", alerts[0])
	}
	if alerts[0].Label != "Front door" {
		t.Fatalf("label should use the device alias: %+v", alerts[0])
	}

	// Nothing is old enough to purge yet.
	n, err := repo.PurgeEvents(ctx, time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("purge: n=%d err=%v", n, err)
	}
	// Everything is older than a zero-width window.
	n, err = repo.PurgeEvents(ctx, 0)
	if err != nil || n != 4 {
		t.Fatalf("purge all: n=%d err=%v", n, err)
	}
}

func TestSessionPersistenceRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveSession(ctx, 9, 100, "ctx-a"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.SaveSession(ctx, 9, 101, "ctx-b"); err != nil {
		t.Fatalf("update: %v", err)
	}
	rows, err := repo.Sessions(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 1 || rows[0].MessageID != 101 || rows[0].Context != "ctx-b" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestUserAllowList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ok, err := repo.UserExists(ctx, 5)
	if err != nil || ok {
		t.Fatalf("fresh user: ok=%v err=%v", ok, err)
	}
	if err := repo.AddUser(ctx, 5); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := repo.AddUser(ctx, 5); err != nil {
		t.Fatalf("re-add must be a no-op: %v", err)
	}
	ok, _ = repo.UserExists(ctx, 5)
	if !ok {
		t.Fatal("user missing after add")
	}
	if err := repo.DeleteUser(ctx, 5); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, _ = repo.UserExists(ctx, 5)
	if ok {
		t.Fatal("user still present after delete")
	}
}
