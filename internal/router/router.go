// Package router maps navigation intents to screens. It is the only place
// that knows the full intent surface; everything else deals in views.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Anykei/telegram-ha-bot/internal/device"
	"github.com/Anykei/telegram-ha-bot/internal/nav"
	"github.com/Anykei/telegram-ha-bot/internal/screens"
	"github.com/Anykei/telegram-ha-bot/internal/store"
	"github.com/Anykei/telegram-ha-bot/internal/view"
)

// Executor runs device commands; the router only sees the outcome.
type Executor interface {
	Interact(ctx context.Context, entityID string, cmd nav.Command) device.Interaction
}

// Router resolves intents into views, consulting the repository for the
// alert header and the executor for quick actions.
type Router struct {
	repo        *store.Repo
	builder     *screens.Builder
	executor    Executor
	alertWindow time.Duration
}

func New(repo *store.Repo, builder *screens.Builder, executor Executor, alertWindow time.Duration) *Router {
	return &Router{repo: repo, builder: builder, executor: executor, alertWindow: alertWindow}
}

// Resolve builds the screen for in. Unknown and admin-only intents degrade
// to safe screens instead of erroring; hard errors only come from storage.
func (r *Router) Resolve(ctx context.Context, in nav.Intent, userID int64, admin bool) (*view.View, error) {
	req := screens.Request{
		UserID:        userID,
		Admin:         admin,
		Notifications: r.headerItems(ctx, userID),
	}

	switch it := in.(type) {
	case nil, nav.Home:
		return r.builder.Home(req), nil
	case nav.ControlRooms:
		return r.builder.Rooms(ctx, req, screens.ModeControl)
	case nav.RoomDetail:
		return r.builder.Room(ctx, req, it.Room, screens.ModeControl)
	case nav.DeviceControl:
		return r.builder.DeviceDetail(ctx, req, it.Room, it.Device)
	case nav.QuickAction:
		return r.quickAction(ctx, req, it)
	case nav.SettingsRooms:
		return r.builder.Rooms(ctx, req, screens.ModeSettings)
	case nav.SettingsRoom:
		return r.builder.Room(ctx, req, it.Room, screens.ModeSettings)
	case nav.DeviceSettings:
		return r.builder.DeviceSettings(ctx, req, it.Room, it.Device)
	case nav.ToggleNotify:
		return r.toggleNotify(ctx, req, it)
	case nav.ToggleHide:
		return r.toggleHide(ctx, req, it)
	case nav.EditName:
		return r.builder.RenamePrompt(ctx, req, it.Room, it.Device)
	case nav.EditStateAlias:
		return r.builder.StateAliasPrompt(ctx, req, it.Room, it.Device)
	case nav.AdminMenu:
		if !admin {
			return r.builder.Home(req), nil
		}
		return r.builder.AdminMenu(req), nil
	case nav.AdminUsers:
		if !admin {
			return r.builder.Home(req), nil
		}
		return r.builder.AdminUsers(ctx, req)
	case nav.AdminAddUser:
		if !admin {
			return r.builder.Home(req), nil
		}
		return r.builder.AdminAddUserPrompt(req), nil
	case nav.AdminDeleteUser:
		return r.adminDeleteUser(ctx, req, it, admin)
	case nav.InDev:
		return r.builder.InDev(req), nil
	default:
		slog.Warn("unhandled intent", "intent", fmt.Sprintf("%T", in))
		return r.builder.Home(req), nil
	}
}

// quickAction executes the command, then renders whatever screen the outcome
// calls for. A chart command skips execution entirely: it is pure navigation.
func (r *Router) quickAction(ctx context.Context, req screens.Request, it nav.QuickAction) (*view.View, error) {
	if it.Cmd.Kind == nav.CmdShowChart {
		return r.builder.SensorChart(ctx, req, it.Room, it.Device, it.Cmd.Hours, it.Cmd.Offset)
	}

	d, err := r.repo.DeviceByID(ctx, it.Device)
	if err != nil {
		return nil, fmt.Errorf("quick action: %w", err)
	}
	if d == nil {
		return r.builder.Fallback(req, nav.RoomDetail{Room: it.Room}, "Device is gone. It may have been removed on the hub."), nil
	}

	res := r.executor.Interact(ctx, d.EntityID, it.Cmd)
	switch res.Outcome {
	case device.Processed:
		return r.builder.Room(ctx, req, it.Room, screens.ModeControl)
	case device.NeedsDetail:
		return r.builder.DeviceDetail(ctx, req, it.Room, it.Device)
	case device.NeedsInput:
		return r.builder.ChartIntervalPrompt(ctx, req, it.Room, it.Device)
	default:
		slog.Warn("device command failed", "entity", d.EntityID, "error", res.Err)
		return &view.View{
			Notifications: req.Notifications,
			Alert:         fmt.Sprintf("%s did not respond: %v", d.DisplayName(), res.Err),
			Keyboard: [][]view.Button{
				view.Row(view.Btn("⬅️ Back", nav.RoomDetail{Room: it.Room})),
			},
		}, nil
	}
}

func (r *Router) toggleNotify(ctx context.Context, req screens.Request, it nav.ToggleNotify) (*view.View, error) {
	d, err := r.repo.DeviceByID(ctx, it.Device)
	if err != nil {
		return nil, fmt.Errorf("toggle notify: %w", err)
	}
	if d == nil {
		return r.builder.Fallback(req, nav.SettingsRoom{Room: it.Room}, "Device is gone."), nil
	}
	if _, err := r.repo.ToggleSubscription(ctx, req.UserID, d.EntityID); err != nil {
		return nil, fmt.Errorf("toggle notify: %w", err)
	}
	return r.builder.DeviceSettings(ctx, req, it.Room, it.Device)
}

func (r *Router) toggleHide(ctx context.Context, req screens.Request, it nav.ToggleHide) (*view.View, error) {
	d, err := r.repo.DeviceByID(ctx, it.Device)
	if err != nil {
		return nil, fmt.Errorf("toggle hide: %w", err)
	}
	if d == nil {
		return r.builder.Fallback(req, nav.SettingsRoom{Room: it.Room}, "Device is gone."), nil
	}
	if _, err := r.repo.ToggleHidden(ctx, d.EntityID); err != nil {
		return nil, fmt.Errorf("toggle hide: %w", err)
	}
	return r.builder.DeviceSettings(ctx, req, it.Room, it.Device)
}

func (r *Router) adminDeleteUser(ctx context.Context, req screens.Request, it nav.AdminDeleteUser, admin bool) (*view.View, error) {
	if !admin {
		return r.builder.Home(req), nil
	}
	if err := r.repo.DeleteUser(ctx, it.ID); err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}
	return r.builder.AdminUsers(ctx, req)
}

// headerItems builds the live status block from recent events on subscribed
// entities. Header failures degrade to an empty block, never a dead screen.
func (r *Router) headerItems(ctx context.Context, userID int64) []view.HeaderItem {
	alerts, err := r.repo.ActiveAlerts(ctx, userID, r.alertWindow)
	if err != nil {
		slog.Warn("alert header query failed", "user_id", userID, "error", err)
		return nil
	}
	items := make([]view.HeaderItem, 0, len(alerts))
	for _, a := range alerts {
		domain := device.Domain(a.EntityID)
		items = append(items, view.HeaderItem{
			Icon:       iconFor(domain, a.LastState),
			Label:      a.Label,
			Value:      stateFor(ctx, r.repo, a.EntityID, domain, a.LastState),
			LastUpdate: a.LastUpdated,
		})
	}
	return items
}
