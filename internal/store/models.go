package store

import "time"

// Room mirrors a Home Assistant area. Area is the technical id; Alias is the
// user-facing rename, if any.
type Room struct {
	ID    int64  `gorm:"primaryKey;autoIncrement"`
	Area  string `gorm:"uniqueIndex;size:128"`
	Alias string `gorm:"size:128"`
	Hide  bool
}

func (Room) TableName() string { return "rooms" }

// DisplayName prefers the alias over the technical area name.
func (r Room) DisplayName() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Area
}

// Device is a controllable or observable HA entity bound to a room.
type Device struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	RoomID       int64  `gorm:"index"`
	EntityID     string `gorm:"uniqueIndex;size:255"`
	Alias        string `gorm:"size:128"`
	DeviceClass  string `gorm:"size:64"`
	DeviceDomain string `gorm:"size:64"`
	Archived     bool
}

func (Device) TableName() string { return "devices" }

// DisplayName prefers the alias over the technical entity id.
func (d Device) DisplayName() string {
	if d.Alias != "" {
		return d.Alias
	}
	return d.EntityID
}

// User is an allow-listed Telegram account.
type User struct {
	ID      int64 `gorm:"primaryKey"`
	AddedAt time.Time
}

func (User) TableName() string { return "users" }

// Subscription marks a user receiving push notifications for an entity.
type Subscription struct {
	UserID   int64  `gorm:"primaryKey"`
	EntityID string `gorm:"primaryKey;size:255"`
}

func (Subscription) TableName() string { return "subscriptions" }

// HiddenEntity stores the per-entity visibility flag. Freshly discovered
// devices are inserted hidden so new clutter never appears unrequested.
type HiddenEntity struct {
	EntityID string `gorm:"primaryKey;size:255"`
	Hide     bool
}

func (HiddenEntity) TableName() string { return "hidden_entities" }

// StateAlias maps one technical state of one entity to a human label.
type StateAlias struct {
	EntityID      string `gorm:"primaryKey;size:255"`
	OriginalState string `gorm:"primaryKey;size:64"`
	HumanState    string `gorm:"size:128"`
}

func (StateAlias) TableName() string { return "state_aliases" }

// SessionRow is the durable snapshot of a live session.
type SessionRow struct {
	UserID    int64  `gorm:"primaryKey"`
	MessageID int
	Context   string `gorm:"size:128"`
	UpdatedAt time.Time
}

func (SessionRow) TableName() string { return "sessions" }

// DeviceEvent is one state change in the time-ordered event log.
type DeviceEvent struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	EntityID  string    `gorm:"index;size:255"`
	State     string    `gorm:"size:64"`
	CreatedAt time.Time `gorm:"index"`
}

func (DeviceEvent) TableName() string { return "device_event_log" }

// Alert is an aggregated event-log row used for the live header.
type Alert struct {
	EntityID    string
	Label       string
	LastState   string
	EventCount  int64
	LastUpdated time.Time
}
