// Package screens builds the individual menu screens. Each builder returns a
// view plus the intent it represents; the router owns the dispatch.
package screens

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Anykei/telegram-ha-bot/internal/charts"
	"github.com/Anykei/telegram-ha-bot/internal/device"
	"github.com/Anykei/telegram-ha-bot/internal/ha"
	"github.com/Anykei/telegram-ha-bot/internal/nav"
	"github.com/Anykei/telegram-ha-bot/internal/presentation"
	"github.com/Anykei/telegram-ha-bot/internal/session"
	"github.com/Anykei/telegram-ha-bot/internal/store"
	"github.com/Anykei/telegram-ha-bot/internal/view"
)

// Mode distinguishes the two room/device hierarchies: tapping devices versus
// configuring them.
type Mode uint8

const (
	ModeControl Mode = iota
	ModeSettings
)

// Hub is the slice of the hub client the screens need.
type Hub interface {
	StatesByIDs(ctx context.Context, entityIDs []string) ([]ha.Entity, error)
	History(ctx context.Context, entityID string, hours uint32, offset int32) (*ha.HistoryResult, error)
}

// Request carries the per-resolution context every builder receives.
type Request struct {
	UserID        int64
	Admin         bool
	Notifications []view.HeaderItem
}

// Builder assembles screens from the repository and live hub state.
type Builder struct {
	repo *store.Repo
	hub  Hub
}

func NewBuilder(repo *store.Repo, hub Hub) *Builder {
	return &Builder{repo: repo, hub: hub}
}

// Home is the top-level menu.
func (b *Builder) Home(req Request) *view.View {
	keyboard := [][]view.Button{
		view.Row(view.Btn("🎛 Control", nav.ControlRooms{})),
		view.Row(view.Btn("⚙️ Settings", nav.SettingsRooms{})),
	}
	if req.Admin {
		keyboard = append(keyboard, view.Row(view.Btn("🛡 Admin", nav.AdminMenu{})))
	}
	return &view.View{
		Notifications: req.Notifications,
		Text:          "Pick a section.",
		Keyboard:      keyboard,
		Intent:        nav.Home{},
	}
}

// Rooms lists rooms in the requested mode.
func (b *Builder) Rooms(ctx context.Context, req Request, mode Mode) (*view.View, error) {
	rooms, err := b.repo.Rooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("rooms screen: %w", err)
	}

	var keyboard [][]view.Button
	for _, room := range rooms {
		label := presentation.RoomLabel(room.DisplayName())
		var target nav.Intent
		if mode == ModeSettings {
			target = nav.SettingsRoom{Room: room.ID}
		} else {
			target = nav.RoomDetail{Room: room.ID}
		}
		keyboard = append(keyboard, view.Row(view.Btn(label, target)))
	}
	keyboard = append(keyboard, view.Row(view.Btn("⬅️ Back", nav.Home{})))

	text := "Pick a room."
	var intent nav.Intent = nav.ControlRooms{}
	if mode == ModeSettings {
		text = "Pick a room to configure."
		intent = nav.SettingsRooms{}
	}
	if len(rooms) == 0 {
		text = "No rooms yet. They appear after the first sync with the hub."
	}
	return &view.View{
		Notifications: req.Notifications,
		Text:          text,
		Keyboard:      keyboard,
		Intent:        intent,
	}, nil
}

// Room shows one room's devices. Control mode hides hidden devices and shows
// live state on every button; settings mode lists everything.
func (b *Builder) Room(ctx context.Context, req Request, roomID int64, mode Mode) (*view.View, error) {
	room, err := b.repo.RoomByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("room screen: %w", err)
	}
	if room == nil {
		return b.Fallback(req, b.roomsIntent(mode), "Room is gone. It may have been removed on the hub."), nil
	}
	devices, err := b.repo.DevicesByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("room screen: %w", err)
	}

	visible := devices[:0:0]
	for _, d := range devices {
		if mode == ModeControl {
			hidden, err := b.repo.IsHidden(ctx, d.EntityID)
			if err != nil {
				return nil, fmt.Errorf("room screen: %w", err)
			}
			if hidden {
				continue
			}
		}
		visible = append(visible, d)
	}
	sort.Slice(visible, func(i, j int) bool {
		return visible[i].DisplayName() < visible[j].DisplayName()
	})

	states := map[string]ha.Entity{}
	if mode == ModeControl && len(visible) > 0 {
		ids := make([]string, len(visible))
		for i, d := range visible {
			ids[i] = d.EntityID
		}
		entities, err := b.hub.StatesByIDs(ctx, ids)
		if err != nil {
			// Live state is decoration; the room stays navigable without it.
			entities = nil
		}
		for _, e := range entities {
			states[e.EntityID] = e
		}
	}

	var keyboard [][]view.Button
	for _, d := range visible {
		keyboard = append(keyboard, view.Row(b.deviceButton(ctx, req, room.ID, d, states, mode)))
	}
	keyboard = append(keyboard, view.Row(view.Btn("⬅️ Back", b.roomsIntent(mode))))

	text := "Tap a device."
	var intent nav.Intent = nav.RoomDetail{Room: roomID}
	if mode == ModeSettings {
		text = "Tap a device to configure it."
		intent = nav.SettingsRoom{Room: roomID}
	}
	if len(visible) == 0 {
		text = "Nothing to show in this room."
	}
	return &view.View{
		Header:        "🚪 *" + presentation.EscapeMarkdownV2(room.DisplayName()) + "*",
		Notifications: req.Notifications,
		Text:          text,
		Keyboard:      keyboard,
		Intent:        intent,
	}, nil
}

func (b *Builder) deviceButton(ctx context.Context, req Request, roomID int64, d store.Device, states map[string]ha.Entity, mode Mode) view.Button {
	if mode == ModeSettings {
		label := presentation.DeviceLabel(d.DisplayName(), d.DeviceDomain, d.DeviceClass, "")
		if hidden, err := b.repo.IsHidden(ctx, d.EntityID); err == nil && hidden {
			label = "🚫 " + label
		}
		return view.Btn(label, nav.DeviceSettings{Room: roomID, Device: d.ID})
	}

	state := ""
	if e, ok := states[d.EntityID]; ok {
		state = e.State
	}
	label := presentation.DeviceLabelWithState(d.DisplayName(), d.DeviceDomain, d.DeviceClass, state)
	return view.Btn(label, nav.QuickAction{Room: roomID, Device: d.ID, Cmd: nav.Toggle()})
}

func (b *Builder) roomsIntent(mode Mode) nav.Intent {
	if mode == ModeSettings {
		return nav.SettingsRooms{}
	}
	return nav.ControlRooms{}
}

// DeviceSettings is the per-device configuration screen.
func (b *Builder) DeviceSettings(ctx context.Context, req Request, roomID, deviceID int64) (*view.View, error) {
	d, err := b.repo.DeviceByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("device settings screen: %w", err)
	}
	if d == nil {
		return b.Fallback(req, nav.SettingsRoom{Room: roomID}, "Device is gone. It may have been removed on the hub."), nil
	}

	subscribed, err := b.repo.IsSubscribed(ctx, req.UserID, d.EntityID)
	if err != nil {
		return nil, fmt.Errorf("device settings screen: %w", err)
	}
	hidden, err := b.repo.IsHidden(ctx, d.EntityID)
	if err != nil {
		return nil, fmt.Errorf("device settings screen: %w", err)
	}

	notifyLabel := "🔔 Notifications: off"
	if subscribed {
		notifyLabel = "🔕 Notifications: on"
	}
	hideLabel := "🙈 Hide from control"
	if hidden {
		hideLabel = "👁 Show in control"
	}

	keyboard := [][]view.Button{
		view.Row(view.Btn(notifyLabel, nav.ToggleNotify{Room: roomID, Device: deviceID})),
		view.Row(view.Btn(hideLabel, nav.ToggleHide{Room: roomID, Device: deviceID})),
		view.Row(view.Btn("✏️ Rename", nav.EditName{Room: roomID, Device: deviceID})),
		view.Row(view.Btn("🏷 Name current state", nav.EditStateAlias{Room: roomID, Device: deviceID})),
		view.Row(view.Btn("⬅️ Back", nav.SettingsRoom{Room: roomID})),
	}
	text := fmt.Sprintf("%s\nEntity: %s", d.DisplayName(), d.EntityID)
	return &view.View{
		Notifications: req.Notifications,
		Text:          text,
		Keyboard:      keyboard,
		Intent:        nav.DeviceSettings{Room: roomID, Device: deviceID},
	}, nil
}

// RenamePrompt switches the user into the rename dialogue.
func (b *Builder) RenamePrompt(ctx context.Context, req Request, roomID, deviceID int64) (*view.View, error) {
	d, err := b.repo.DeviceByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("rename prompt: %w", err)
	}
	if d == nil {
		return b.Fallback(req, nav.SettingsRoom{Room: roomID}, "Device is gone."), nil
	}
	return &view.View{
		Notifications: req.Notifications,
		Text:          fmt.Sprintf("Send a new name for %s.", d.DisplayName()),
		Keyboard: [][]view.Button{
			view.Row(view.Btn("✖️ Cancel", nav.DeviceSettings{Room: roomID, Device: deviceID})),
		},
		Intent:   nav.EditName{Room: roomID, Device: deviceID},
		Dialogue: &session.Dialogue{Kind: session.DialogueAwaitingName, Room: roomID, Device: deviceID},
	}, nil
}

// StateAliasPrompt switches the user into the dialogue teaching a human name
// for the device's current raw state. The raw state is captured now so the
// answer applies to it even if the device changes state mid-dialogue.
func (b *Builder) StateAliasPrompt(ctx context.Context, req Request, roomID, deviceID int64) (*view.View, error) {
	d, err := b.repo.DeviceByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("state alias prompt: %w", err)
	}
	if d == nil {
		return b.Fallback(req, nav.SettingsRoom{Room: roomID}, "Device is gone."), nil
	}

	raw := ""
	if entities, err := b.hub.StatesByIDs(ctx, []string{d.EntityID}); err == nil && len(entities) > 0 {
		raw = entities[0].State
	}
	if raw == "" {
		return b.Fallback(req, nav.DeviceSettings{Room: roomID, Device: deviceID},
			"Current state is unknown; try again when the device reports one."), nil
	}

	return &view.View{
		Notifications: req.Notifications,
		Text:          fmt.Sprintf("State of %s is %q right now. Send the name to show instead.", d.DisplayName(), raw),
		Keyboard: [][]view.Button{
			view.Row(view.Btn("✖️ Cancel", nav.DeviceSettings{Room: roomID, Device: deviceID})),
		},
		Intent: nav.EditStateAlias{Room: roomID, Device: deviceID},
		Dialogue: &session.Dialogue{
			Kind:          session.DialogueAwaitingStateAlias,
			Room:          roomID,
			Device:        deviceID,
			OriginalState: raw,
		},
	}, nil
}

// Chart window presets offered on every chart screen.
var chartPresets = []struct {
	label string
	hours uint32
}{
	{"12h", 12},
	{"24h", 24},
	{"3d", 72},
	{"7d", 168},
}

// SensorChart renders the history chart screen for a sensor.
func (b *Builder) SensorChart(ctx context.Context, req Request, roomID, deviceID int64, hours uint32, offset int32) (*view.View, error) {
	d, err := b.repo.DeviceByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("chart screen: %w", err)
	}
	if d == nil {
		return b.Fallback(req, nav.RoomDetail{Room: roomID}, "Device is gone."), nil
	}
	if hours == 0 {
		hours = 24
	}

	res, err := b.hub.History(ctx, d.EntityID, hours, offset)
	var png []byte
	caption := describeWindow(hours, offset)
	if err != nil {
		caption += "\nHistory is unavailable right now."
	} else {
		png, err = charts.Render(res, d.DisplayName())
		if err != nil {
			png = nil
			caption += "\nNo data in this window."
		}
	}

	chartAt := func(h uint32, off int32) nav.Intent {
		return nav.QuickAction{Room: roomID, Device: deviceID, Cmd: nav.ShowChart(h, off)}
	}

	var presets []view.Button
	for _, p := range chartPresets {
		presets = append(presets, view.Btn(p.label, chartAt(p.hours, 0)))
	}
	keyboard := [][]view.Button{
		view.Row(
			view.Btn("◀️ -24h", chartAt(hours, offset-24)),
			view.Btn("▶️ +24h", chartAt(hours, min32(offset+24, 0))),
		),
		presets,
		view.Row(view.Btn("🕑 Custom", nav.QuickAction{Room: roomID, Device: deviceID, Cmd: nav.Command{Kind: nav.CmdManualInput}})),
		view.Row(view.Btn("⬅️ Back", nav.RoomDetail{Room: roomID})),
	}
	return &view.View{
		Header:        "📈 *" + presentation.EscapeMarkdownV2(d.DisplayName()) + "*",
		Notifications: req.Notifications,
		Text:          caption,
		Keyboard:      keyboard,
		Intent:        nav.QuickAction{Room: roomID, Device: deviceID, Cmd: nav.ShowChart(hours, offset)},
		Image:         png,
	}, nil
}

func describeWindow(hours uint32, offset int32) string {
	var span string
	if hours%24 == 0 && hours >= 24 {
		span = strconv.Itoa(int(hours/24)) + "d"
	} else {
		span = strconv.Itoa(int(hours)) + "h"
	}
	if offset == 0 {
		return fmt.Sprintf("Last %s.", span)
	}
	return fmt.Sprintf("%s window, %dh back.", span, -offset)
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

// ChartIntervalPrompt switches the user into the custom-window dialogue.
func (b *Builder) ChartIntervalPrompt(ctx context.Context, req Request, roomID, deviceID int64) (*view.View, error) {
	d, err := b.repo.DeviceByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("chart interval prompt: %w", err)
	}
	if d == nil {
		return b.Fallback(req, nav.RoomDetail{Room: roomID}, "Device is gone."), nil
	}
	return &view.View{
		Notifications: req.Notifications,
		Text:          "Send a window size in hours, e.g. 36.",
		Keyboard: [][]view.Button{
			view.Row(view.Btn("✖️ Cancel", nav.QuickAction{Room: roomID, Device: deviceID, Cmd: nav.ShowChart(24, 0)})),
		},
		Intent:   nav.QuickAction{Room: roomID, Device: deviceID, Cmd: nav.Command{Kind: nav.CmdManualInput}},
		Dialogue: &session.Dialogue{Kind: session.DialogueAwaitingChartInterval, Room: roomID, Device: deviceID},
	}, nil
}

// Climate is the thermostat screen with stepper buttons around the current
// target temperature.
func (b *Builder) Climate(ctx context.Context, req Request, roomID, deviceID int64) (*view.View, error) {
	d, err := b.repo.DeviceByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("climate screen: %w", err)
	}
	if d == nil {
		return b.Fallback(req, nav.RoomDetail{Room: roomID}, "Device is gone."), nil
	}

	current := float32(20)
	stateText := "unknown"
	if entities, err := b.hub.StatesByIDs(ctx, []string{d.EntityID}); err == nil && len(entities) > 0 {
		stateText = entities[0].State
		if v, err := strconv.ParseFloat(entities[0].State, 32); err == nil {
			current = float32(v)
		}
	}

	setTo := func(target float32) nav.Intent {
		return nav.QuickAction{
			Room:   roomID,
			Device: deviceID,
			Cmd:    nav.Command{Kind: nav.CmdSetTemperature, Temperature: target},
		}
	}
	keyboard := [][]view.Button{
		view.Row(
			view.Btn("➖ 1°", setTo(current-1)),
			view.Btn("➖ 0.5°", setTo(current-0.5)),
			view.Btn("➕ 0.5°", setTo(current+0.5)),
			view.Btn("➕ 1°", setTo(current+1)),
		),
		view.Row(view.Btn("⬅️ Back", nav.RoomDetail{Room: roomID})),
	}
	return &view.View{
		Header:        "🌡 *" + presentation.EscapeMarkdownV2(d.DisplayName()) + "*",
		Notifications: req.Notifications,
		Text:          fmt.Sprintf("Current: %s", presentation.StateValue("climate", d.DeviceClass, stateText)),
		Keyboard:      keyboard,
		Intent:        nav.DeviceControl{Room: roomID, Device: deviceID},
	}, nil
}

// AdminMenu lists administrative actions.
func (b *Builder) AdminMenu(req Request) *view.View {
	return &view.View{
		Notifications: req.Notifications,
		Text:          "Administration.",
		Keyboard: [][]view.Button{
			view.Row(view.Btn("👥 Users", nav.AdminUsers{})),
			view.Row(view.Btn("⬅️ Back", nav.Home{})),
		},
		Intent: nav.AdminMenu{},
	}
}

// AdminUsers shows the allow-list with per-user delete buttons and an add
// prompt.
func (b *Builder) AdminUsers(ctx context.Context, req Request) (*view.View, error) {
	users, err := b.repo.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin users screen: %w", err)
	}

	var lines []string
	var keyboard [][]view.Button
	for _, u := range users {
		lines = append(lines, strconv.FormatInt(u.ID, 10))
		keyboard = append(keyboard, view.Row(
			view.Btn(fmt.Sprintf("🗑 %d", u.ID), nav.AdminDeleteUser{ID: u.ID}),
		))
	}
	keyboard = append(keyboard,
		view.Row(view.Btn("➕ Add user", nav.AdminAddUser{})),
		view.Row(view.Btn("⬅️ Back", nav.AdminMenu{})),
	)

	text := "No users yet."
	if len(lines) > 0 {
		text = "Allowed users:\n" + strings.Join(lines, "\n")
	}
	return &view.View{
		Notifications: req.Notifications,
		Text:          text,
		Keyboard:      keyboard,
		Intent:        nav.AdminUsers{},
	}, nil
}

// AdminAddUserPrompt switches the admin into the add-user dialogue.
func (b *Builder) AdminAddUserPrompt(req Request) *view.View {
	return &view.View{
		Notifications: req.Notifications,
		Text:          "Send the numeric Telegram user id to allow.",
		Keyboard: [][]view.Button{
			view.Row(view.Btn("✖️ Cancel", nav.AdminUsers{})),
		},
		Intent:   nav.AdminAddUser{},
		Dialogue: &session.Dialogue{Kind: session.DialogueAwaitingAdminUserID},
	}
}

// Fallback is shown when a target no longer exists; backTo is the nearest
// surviving list screen of the same hierarchy.
func (b *Builder) Fallback(req Request, backTo nav.Intent, reason string) *view.View {
	return &view.View{
		Notifications: req.Notifications,
		Text:          reason,
		Keyboard: [][]view.Button{
			view.Row(view.Btn("⬅️ Back", backTo)),
		},
		Intent: backTo,
	}
}

// InDev marks screens that exist in navigation but are not built yet.
func (b *Builder) InDev(req Request) *view.View {
	return &view.View{
		Notifications: req.Notifications,
		Text:          "This screen is under construction.",
		Keyboard: [][]view.Button{
			view.Row(view.Btn("⬅️ Back", nav.Home{})),
		},
		Intent: nav.InDev{},
	}
}

// DeviceDetail routes a device tap that needs a detail screen to the right
// builder for its kind.
func (b *Builder) DeviceDetail(ctx context.Context, req Request, roomID, deviceID int64) (*view.View, error) {
	d, err := b.repo.DeviceByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("device detail: %w", err)
	}
	if d == nil {
		return b.Fallback(req, nav.RoomDetail{Room: roomID}, "Device is gone."), nil
	}
	switch device.Classify(d.EntityID) {
	case device.KindClimate:
		return b.Climate(ctx, req, roomID, deviceID)
	case device.KindSensor:
		return b.SensorChart(ctx, req, roomID, deviceID, 24, 0)
	default:
		return b.Room(ctx, req, roomID, ModeControl)
	}
}
