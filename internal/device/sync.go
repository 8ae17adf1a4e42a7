package device

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Anykei/telegram-ha-bot/internal/ha"
	"github.com/Anykei/telegram-ha-bot/internal/store"
)

// AreaLister is the hub surface the registry sync needs.
type AreaLister interface {
	Areas(ctx context.Context) ([]ha.Area, error)
}

// SyncRegistry pulls the hub's area/entity layout into the local registry:
// new rooms and devices are created, vanished devices are archived. User
// data (aliases, subscriptions, hidden flags) is never touched.
func SyncRegistry(ctx context.Context, repo *store.Repo, hub AreaLister) error {
	areas, err := hub.Areas(ctx)
	if err != nil {
		return fmt.Errorf("registry sync: %w", err)
	}

	var seen []string
	synced := 0
	for _, area := range areas {
		if area.Name == "" {
			continue
		}
		for _, e := range area.Entities {
			if Classify(e.EntityID) == KindOther {
				continue
			}
			if err := repo.SyncDevice(ctx, e.EntityID, area.Name, e.Name, e.DeviceClass); err != nil {
				slog.Warn("device sync failed", "entity", e.EntityID, "error", err)
				continue
			}
			seen = append(seen, e.EntityID)
			synced++
		}
	}

	archived, err := repo.ArchiveMissing(ctx, seen)
	if err != nil {
		return fmt.Errorf("registry sync: archive: %w", err)
	}
	slog.Info("registry synced", "devices", synced, "archived", archived)
	return nil
}
