// Package store is the durable SQLite layer: room/device metadata,
// subscriptions, visibility flags, aliases, session snapshots and the device
// event log. Callers treat failures here as non-fatal; the rendering path
// never blocks on storage.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type Repo struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database at path. WAL mode plus
// a busy timeout tolerate SQLite's single-writer limit under the concurrent
// short-lived writes this process produces.
func Open(path string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

func New(db *gorm.DB) (*Repo, error) {
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &Repo{db: db}, nil
}

func ensureSchema(db *gorm.DB) error {
	m := db.Migrator()
	for _, model := range []any{
		&Room{}, &Device{}, &User{}, &Subscription{},
		&HiddenEntity{}, &StateAlias{}, &SessionRow{}, &DeviceEvent{},
	} {
		if m.HasTable(model) {
			continue
		}
		if err := m.CreateTable(model); err != nil {
			return fmt.Errorf("create table %T: %w", model, err)
		}
	}
	return nil
}

// --- Rooms ---

func (r *Repo) Rooms(ctx context.Context) ([]Room, error) {
	var rows []Room
	if err := r.db.WithContext(ctx).Where("hide = ?", false).Order("area asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// RoomByID returns nil without error when the room no longer exists, so
// callers can fall back to a list screen instead of failing.
func (r *Repo) RoomByID(ctx context.Context, id int64) (*Room, error) {
	var row Room
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// SyncRoom upserts an area discovered in HA. An existing room keeps its hide
// flag and alias untouched.
func (r *Repo) SyncRoom(ctx context.Context, area string) error {
	area = strings.TrimSpace(area)
	if area == "" {
		return errors.New("room area is required")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "area"}},
		DoNothing: true,
	}).Create(&Room{Area: area}).Error
}

// --- Devices ---

func (r *Repo) DevicesByRoom(ctx context.Context, roomID int64) ([]Device, error) {
	var rows []Device
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND archived = ?", roomID, false).
		Order("entity_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// DeviceByID mirrors RoomByID's nil-on-missing contract.
func (r *Repo) DeviceByID(ctx context.Context, id int64) (*Device, error) {
	var row Device
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *Repo) RoomIDByEntity(ctx context.Context, entityID string) (int64, bool, error) {
	var row Device
	err := r.db.WithContext(ctx).Select("room_id").Where("entity_id = ?", entityID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return row.RoomID, true, nil
}

// SyncDevice upserts a device discovered in HA under its area's room. The
// user's alias survives re-syncs; only technical fields are refreshed.
// Newly discovered entities start hidden until the user unhides them.
func (r *Repo) SyncDevice(ctx context.Context, entityID, area, friendlyName, deviceClass string) error {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return errors.New("entity_id is required")
	}
	domain, _, found := strings.Cut(entityID, ".")
	if !found {
		domain = "unknown"
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room Room
		if err := tx.First(&room, "area = ?", area).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			room = Room{Area: area}
			if err := tx.Create(&room).Error; err != nil {
				return err
			}
		}

		dev := Device{
			RoomID:       room.ID,
			EntityID:     entityID,
			Alias:        friendlyName,
			DeviceClass:  deviceClass,
			DeviceDomain: domain,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "entity_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"room_id":       room.ID,
				"device_class":  deviceClass,
				"device_domain": domain,
				"archived":      false,
			}),
		}).Create(&dev).Error; err != nil {
			return err
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_id"}},
			DoNothing: true,
		}).Create(&HiddenEntity{EntityID: entityID, Hide: true}).Error
	})
}

// ArchiveMissing marks devices absent from the latest sync as archived.
func (r *Repo) ArchiveMissing(ctx context.Context, seenEntityIDs []string) (int64, error) {
	if len(seenEntityIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&Device{}).
		Where("entity_id NOT IN ? AND archived = ?", seenEntityIDs, false).
		Update("archived", true)
	return res.RowsAffected, res.Error
}

func (r *Repo) SetDeviceAlias(ctx context.Context, deviceID int64, alias string) error {
	return r.db.WithContext(ctx).Model(&Device{}).
		Where("id = ?", deviceID).
		Update("alias", strings.TrimSpace(alias)).Error
}

// --- Subscriptions & visibility ---

func (r *Repo) IsSubscribed(ctx context.Context, userID int64, entityID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Subscription{}).
		Where("user_id = ? AND entity_id = ?", userID, entityID).
		Count(&n).Error
	return n > 0, err
}

// ToggleSubscription flips the push subscription; it reports the new state.
func (r *Repo) ToggleSubscription(ctx context.Context, userID int64, entityID string) (bool, error) {
	subscribed, err := r.IsSubscribed(ctx, userID, entityID)
	if err != nil {
		return false, err
	}
	if subscribed {
		err = r.db.WithContext(ctx).
			Where("user_id = ? AND entity_id = ?", userID, entityID).
			Delete(&Subscription{}).Error
		return false, err
	}
	err = r.db.WithContext(ctx).Create(&Subscription{UserID: userID, EntityID: entityID}).Error
	return true, err
}

func (r *Repo) Subscribers(ctx context.Context, entityID string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&Subscription{}).
		Where("entity_id = ?", entityID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *Repo) IsHidden(ctx context.Context, entityID string) (bool, error) {
	var row HiddenEntity
	err := r.db.WithContext(ctx).First(&row, "entity_id = ?", entityID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return row.Hide, nil
}

// ToggleHidden flips the visibility flag; it reports the new state.
func (r *Repo) ToggleHidden(ctx context.Context, entityID string) (bool, error) {
	var row HiddenEntity
	err := r.db.WithContext(ctx).First(&row, "entity_id = ?", entityID).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
		if err := r.db.WithContext(ctx).Create(&HiddenEntity{EntityID: entityID, Hide: false}).Error; err != nil {
			return false, err
		}
		return false, nil
	}
	newHide := !row.Hide
	err = r.db.WithContext(ctx).Model(&HiddenEntity{}).
		Where("entity_id = ?", entityID).
		Update("hide", newHide).Error
	return newHide, err
}

// --- State aliases ---

func (r *Repo) SetStateAlias(ctx context.Context, entityID, originalState, humanState string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entity_id"}, {Name: "original_state"}},
		DoUpdates: clause.Assignments(map[string]any{"human_state": humanState}),
	}).Create(&StateAlias{EntityID: entityID, OriginalState: originalState, HumanState: humanState}).Error
}

// StateAliases loads the full entity → state → label mapping.
func (r *Repo) StateAliases(ctx context.Context) (map[string]map[string]string, error) {
	var rows []StateAlias
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := map[string]map[string]string{}
	for _, row := range rows {
		inner, ok := out[row.EntityID]
		if !ok {
			inner = map[string]string{}
			out[row.EntityID] = inner
		}
		inner[row.OriginalState] = row.HumanState
	}
	return out, nil
}

func (r *Repo) StateAliasFor(ctx context.Context, entityID, state string) (string, bool, error) {
	var row StateAlias
	err := r.db.WithContext(ctx).
		First(&row, "entity_id = ? AND original_state = ?", entityID, state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return row.HumanState, true, nil
}

// --- Sessions ---

func (r *Repo) SaveSession(ctx context.Context, userID int64, messageID int, navContext string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"message_id": messageID,
			"context":    navContext,
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&SessionRow{UserID: userID, MessageID: messageID, Context: navContext}).Error
}

func (r *Repo) Sessions(ctx context.Context) ([]SessionRow, error) {
	var rows []SessionRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// --- Event log ---

func (r *Repo) RecordEvent(ctx context.Context, entityID, state string) error {
	return r.db.WithContext(ctx).Create(&DeviceEvent{
		EntityID:  entityID,
		State:     state,
		CreatedAt: time.Now().UTC(),
	}).Error
}

// ActiveAlerts aggregates recent events on entities the user subscribes to,
// newest first, labelled with the device alias when one exists.
func (r *Repo) ActiveAlerts(ctx context.Context, userID int64, window time.Duration) ([]Alert, error) {
	since := time.Now().UTC().Add(-window)
	var rows []Alert
	err := r.db.WithContext(ctx).
		Table("device_event_log AS log").
		Select(`log.entity_id,
			COALESCE(NULLIF(d.alias, ''), log.entity_id) AS label,
			log.state AS last_state,
			COUNT(*) AS event_count,
			MAX(log.created_at) AS last_updated`).
		Joins("JOIN subscriptions AS sub ON sub.entity_id = log.entity_id").
		Joins("LEFT JOIN devices AS d ON d.entity_id = log.entity_id").
		Where("sub.user_id = ? AND log.created_at >= ?", userID, since).
		Group("log.entity_id").
		Order("last_updated DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// PurgeEvents deletes log rows older than the retention window.
func (r *Repo) PurgeEvents(ctx context.Context, retention time.Duration) (int64, error) {
	horizon := time.Now().UTC().Add(-retention)
	res := r.db.WithContext(ctx).Where("created_at < ?", horizon).Delete(&DeviceEvent{})
	return res.RowsAffected, res.Error
}

// --- Users ---

func (r *Repo) UserExists(ctx context.Context, userID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Count(&n).Error
	return n > 0, err
}

func (r *Repo) AddUser(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&User{ID: userID, AddedAt: time.Now().UTC()}).Error
}

func (r *Repo) DeleteUser(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Delete(&User{}, "id = ?", userID).Error
}

func (r *Repo) Users(ctx context.Context) ([]User, error) {
	var rows []User
	if err := r.db.WithContext(ctx).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// --- Backup ---

// Backup snapshots the database into a standalone file via VACUUM INTO.
func (r *Repo) Backup(ctx context.Context, path string) error {
	return r.db.WithContext(ctx).Exec("VACUUM INTO ?", path).Error
}
