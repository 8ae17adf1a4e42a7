// Package nav defines the navigation intents carried inside Telegram inline
// button callback data, and the compact wire codec for them. Telegram rejects
// callback payloads over 64 bytes, so intents travel as a dense binary tagged
// encoding wrapped in URL-safe base64 rather than JSON.
package nav

// Intent describes which screen to show and with what parameters. Exactly one
// variant is active at a time; Encode/Decode cover every variant exhaustively.
type Intent interface {
	navIntent()
}

// Home is the top-level menu.
type Home struct{}

// ControlRooms lists rooms in control mode.
type ControlRooms struct{}

// RoomDetail shows the devices of one room in control mode.
type RoomDetail struct {
	Room int64
}

// DeviceControl opens the extended control screen of one device.
type DeviceControl struct {
	Room   int64
	Device int64
}

// QuickAction performs a device command directly from a button press.
type QuickAction struct {
	Room   int64
	Device int64
	Cmd    Command
}

// SettingsRooms lists rooms in settings mode.
type SettingsRooms struct{}

// SettingsRoom shows the devices of one room in settings mode.
type SettingsRoom struct {
	Room int64
}

// DeviceSettings shows the per-device settings screen.
type DeviceSettings struct {
	Room   int64
	Device int64
}

// ToggleNotify flips the push-notification subscription for a device.
type ToggleNotify struct {
	Room   int64
	Device int64
}

// ToggleHide flips the hidden flag for a device.
type ToggleHide struct {
	Room   int64
	Device int64
}

// EditName starts the rename dialogue for a device.
type EditName struct {
	Room   int64
	Device int64
}

// EditStateAlias starts the dialogue teaching a human name for the device's
// current raw state.
type EditStateAlias struct {
	Room   int64
	Device int64
}

// AdminMenu lists administrative actions.
type AdminMenu struct{}

// AdminUsers lists allow-listed users.
type AdminUsers struct{}

// AdminAddUser adds a user id to the allow-list.
type AdminAddUser struct {
	ID int64
}

// AdminDeleteUser removes a user id from the allow-list.
type AdminDeleteUser struct {
	ID int64
}

// InDev marks a screen that is not implemented yet.
type InDev struct{}

func (Home) navIntent()            {}
func (ControlRooms) navIntent()    {}
func (RoomDetail) navIntent()      {}
func (DeviceControl) navIntent()   {}
func (QuickAction) navIntent()     {}
func (SettingsRooms) navIntent()   {}
func (SettingsRoom) navIntent()    {}
func (DeviceSettings) navIntent()  {}
func (ToggleNotify) navIntent()    {}
func (ToggleHide) navIntent()      {}
func (EditName) navIntent()        {}
func (AdminMenu) navIntent()       {}
func (AdminUsers) navIntent()      {}
func (AdminAddUser) navIntent()    {}
func (AdminDeleteUser) navIntent() {}
func (InDev) navIntent()           {}
func (EditStateAlias) navIntent()  {}

// CommandKind selects the action QuickAction performs on a device.
type CommandKind uint8

const (
	CmdToggle CommandKind = iota
	CmdTurnOn
	CmdTurnOff
	CmdSetLevel
	CmdSetTemperature
	CmdShowChart
	CmdManualInput
)

// Command is the device command carried by a QuickAction. Only the fields of
// the active kind are meaningful; the rest stay zero and encode as nothing.
type Command struct {
	Kind CommandKind

	// CmdSetLevel
	Level uint8

	// CmdSetTemperature
	Temperature float32

	// CmdShowChart: window size in hours and offset from now (negative = past).
	Hours  uint32
	Offset int32
}

// Toggle is the default command for tap-to-toggle device buttons.
func Toggle() Command { return Command{Kind: CmdToggle} }

// ShowChart builds a history chart command for the given window.
func ShowChart(hours uint32, offset int32) Command {
	return Command{Kind: CmdShowChart, Hours: hours, Offset: offset}
}
