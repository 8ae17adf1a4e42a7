package nav

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Wire tags. Appending a variant means appending a tag here and extending both
// switches in Encode/Decode; never reuse or renumber a tag, sessions persist
// encoded intents across restarts.
const (
	tagHome = iota
	tagControlRooms
	tagRoomDetail
	tagDeviceControl
	tagQuickAction
	tagSettingsRooms
	tagSettingsRoom
	tagDeviceSettings
	tagToggleNotify
	tagToggleHide
	tagEditName
	tagAdminMenu
	tagAdminUsers
	tagAdminAddUser
	tagAdminDeleteUser
	tagInDev
	tagEditStateAlias
)

// ErrDecode reports a malformed or truncated payload. Callers decoding
// top-level navigation treat it as "go Home"; callers decoding a dialogue
// continuation must treat it as fatal for that interaction.
var ErrDecode = errors.New("nav: malformed payload")

var b64 = base64.RawURLEncoding

// Encode serializes an intent into a callback-data safe string. It never
// fails for intents constructed through this package; a nil intent encodes
// as the empty string, which decodes back to Home.
func Encode(in Intent) string {
	if in == nil {
		return ""
	}
	buf := make([]byte, 0, 24)
	switch v := in.(type) {
	case Home:
		buf = append(buf, tagHome)
	case ControlRooms:
		buf = append(buf, tagControlRooms)
	case RoomDetail:
		buf = append(buf, tagRoomDetail)
		buf = binary.AppendVarint(buf, v.Room)
	case DeviceControl:
		buf = append(buf, tagDeviceControl)
		buf = binary.AppendVarint(buf, v.Room)
		buf = binary.AppendVarint(buf, v.Device)
	case QuickAction:
		buf = append(buf, tagQuickAction)
		buf = binary.AppendVarint(buf, v.Room)
		buf = binary.AppendVarint(buf, v.Device)
		buf = appendCommand(buf, v.Cmd)
	case SettingsRooms:
		buf = append(buf, tagSettingsRooms)
	case SettingsRoom:
		buf = append(buf, tagSettingsRoom)
		buf = binary.AppendVarint(buf, v.Room)
	case DeviceSettings:
		buf = append(buf, tagDeviceSettings)
		buf = binary.AppendVarint(buf, v.Room)
		buf = binary.AppendVarint(buf, v.Device)
	case ToggleNotify:
		buf = append(buf, tagToggleNotify)
		buf = binary.AppendVarint(buf, v.Room)
		buf = binary.AppendVarint(buf, v.Device)
	case ToggleHide:
		buf = append(buf, tagToggleHide)
		buf = binary.AppendVarint(buf, v.Room)
		buf = binary.AppendVarint(buf, v.Device)
	case EditName:
		buf = append(buf, tagEditName)
		buf = binary.AppendVarint(buf, v.Room)
		buf = binary.AppendVarint(buf, v.Device)
	case AdminMenu:
		buf = append(buf, tagAdminMenu)
	case AdminUsers:
		buf = append(buf, tagAdminUsers)
	case AdminAddUser:
		buf = append(buf, tagAdminAddUser)
		buf = binary.AppendVarint(buf, v.ID)
	case AdminDeleteUser:
		buf = append(buf, tagAdminDeleteUser)
		buf = binary.AppendVarint(buf, v.ID)
	case InDev:
		buf = append(buf, tagInDev)
	case EditStateAlias:
		buf = append(buf, tagEditStateAlias)
		buf = binary.AppendVarint(buf, v.Room)
		buf = binary.AppendVarint(buf, v.Device)
	default:
		return ""
	}
	return b64.EncodeToString(buf)
}

// Decode parses a callback-data string back into an intent. Every failure
// path returns an error wrapping ErrDecode; Decode never panics.
func Decode(s string) (Intent, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	raw, err := b64.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrDecode)
	}

	r := &reader{buf: raw[1:]}
	var out Intent
	switch raw[0] {
	case tagHome:
		out = Home{}
	case tagControlRooms:
		out = ControlRooms{}
	case tagRoomDetail:
		out = RoomDetail{Room: r.varint()}
	case tagDeviceControl:
		out = DeviceControl{Room: r.varint(), Device: r.varint()}
	case tagQuickAction:
		out = QuickAction{Room: r.varint(), Device: r.varint(), Cmd: r.command()}
	case tagSettingsRooms:
		out = SettingsRooms{}
	case tagSettingsRoom:
		out = SettingsRoom{Room: r.varint()}
	case tagDeviceSettings:
		out = DeviceSettings{Room: r.varint(), Device: r.varint()}
	case tagToggleNotify:
		out = ToggleNotify{Room: r.varint(), Device: r.varint()}
	case tagToggleHide:
		out = ToggleHide{Room: r.varint(), Device: r.varint()}
	case tagEditName:
		out = EditName{Room: r.varint(), Device: r.varint()}
	case tagAdminMenu:
		out = AdminMenu{}
	case tagAdminUsers:
		out = AdminUsers{}
	case tagAdminAddUser:
		out = AdminAddUser{ID: r.varint()}
	case tagAdminDeleteUser:
		out = AdminDeleteUser{ID: r.varint()}
	case tagInDev:
		out = InDev{}
	case tagEditStateAlias:
		out = EditStateAlias{Room: r.varint(), Device: r.varint()}
	default:
		return nil, fmt.Errorf("%w: unknown tag %d", ErrDecode, raw[0])
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, r.err)
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrDecode, len(r.buf))
	}
	return out, nil
}

// DecodeOrHome is the lenient top-level form: any malformed payload collapses
// to the Home screen instead of failing the interaction.
func DecodeOrHome(s string) Intent {
	in, err := Decode(s)
	if err != nil {
		return Home{}
	}
	return in
}

func appendCommand(buf []byte, c Command) []byte {
	buf = append(buf, byte(c.Kind))
	switch c.Kind {
	case CmdSetLevel:
		buf = append(buf, c.Level)
	case CmdSetTemperature:
		buf = binary.AppendUvarint(buf, uint64(math.Float32bits(c.Temperature)))
	case CmdShowChart:
		buf = binary.AppendUvarint(buf, uint64(c.Hours))
		buf = binary.AppendVarint(buf, int64(c.Offset))
	}
	return buf
}

type reader struct {
	buf []byte
	err error
}

func (r *reader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf)
	if n <= 0 {
		r.err = errors.New("truncated varint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.err = errors.New("truncated uvarint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *reader) byte() byte {
	if r.err != nil {
		return 0
	}
	if len(r.buf) == 0 {
		r.err = errors.New("truncated byte")
		return 0
	}
	b := r.buf[0]
	r.buf = r.buf[1:]
	return b
}

func (r *reader) command() Command {
	kind := CommandKind(r.byte())
	if r.err != nil {
		return Command{}
	}
	c := Command{Kind: kind}
	switch kind {
	case CmdToggle, CmdTurnOn, CmdTurnOff, CmdManualInput:
	case CmdSetLevel:
		c.Level = r.byte()
	case CmdSetTemperature:
		c.Temperature = math.Float32frombits(uint32(r.uvarint()))
	case CmdShowChart:
		c.Hours = uint32(r.uvarint())
		c.Offset = int32(r.varint())
	default:
		r.err = fmt.Errorf("unknown command kind %d", kind)
	}
	return c
}
