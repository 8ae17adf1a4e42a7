// Package presentation turns raw Home Assistant states into the strings shown
// on buttons, headers and notifications.
package presentation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Icon picks the emoji for a device given its domain, device class and state.
func Icon(domain, class, state string) string {
	switch domain {
	case "light":
		if state == "on" {
			return "💡"
		}
		return "🌑"
	case "switch":
		if state == "on" {
			return "🔌"
		}
		return "⚪"
	case "binary_sensor":
		if state == "on" {
			return "🔔"
		}
		return "🔕"
	case "climate":
		return "🌡"
	case "sensor":
		switch class {
		case "temperature":
			return "🌡"
		case "humidity":
			return "💧"
		case "battery":
			return "🔋"
		case "power":
			return "⚡"
		default:
			return "📊"
		}
	case "media_player":
		switch state {
		case "playing":
			return "▶️"
		case "paused":
			return "⏸"
		default:
			return "🔈"
		}
	default:
		return "📦"
	}
}

// TranslateState maps technical HA states to short human labels. Unknown
// states pass through unchanged.
func TranslateState(state string) string {
	switch state {
	case "on":
		return "ON"
	case "off":
		return "OFF"
	case "unavailable":
		return "n/a"
	case "home":
		return "Home"
	case "not_home":
		return "Away"
	case "locked":
		return "Locked"
	case "unlocked":
		return "Unlocked"
	default:
		return state
	}
}

// StateValue renders a state with its unit when the state is numeric.
func StateValue(domain, class, state string) string {
	if v, err := strconv.ParseFloat(state, 64); err == nil {
		rounded := fmt.Sprintf("%.2f", v)
		switch domain {
		case "climate":
			return rounded + "°C"
		case "sensor":
			switch class {
			case "temperature":
				return rounded + "°C"
			case "humidity", "battery":
				return rounded + "%"
			case "power":
				return rounded + " W"
			case "energy":
				return rounded + " kWh"
			case "voltage":
				return rounded + " V"
			default:
				return rounded
			}
		default:
			return rounded
		}
	}
	return TranslateState(state)
}

// DeviceLabel builds the button caption without state, e.g. "💡 Desk lamp".
func DeviceLabel(alias, domain, class, state string) string {
	return Icon(domain, class, state) + " " + alias
}

// DeviceLabelWithState adds the current value, e.g. "🌡 Kitchen (22.50°C)".
func DeviceLabelWithState(alias, domain, class, state string) string {
	return fmt.Sprintf("%s %s (%s)", Icon(domain, class, state), alias, StateValue(domain, class, state))
}

// RoomIcon picks an icon from the room name.
func RoomIcon(name string) string {
	switch strings.ToLower(name) {
	case "kitchen":
		return "🍳"
	case "bedroom":
		return "🛌"
	case "bathroom":
		return "🛀"
	case "hallway":
		return "🧥"
	case "living room", "livingroom":
		return "🛋"
	case "nursery", "kids room":
		return "🧸"
	case "office", "study":
		return "🖥"
	default:
		return "🚪"
	}
}

// RoomLabel builds the room button caption, e.g. "🍳 Kitchen".
func RoomLabel(name string) string {
	return RoomIcon(name) + " " + name
}

// RelativeTime renders "how long ago" text for header lines. Fresh events are
// bucketed to 15s so heartbeat refreshes don't flap on every tick.
func RelativeTime(t time.Time) string {
	return relativeSince(t, time.Now())
}

func relativeSince(t, now time.Time) string {
	diff := now.Sub(t)
	seconds := int64(diff.Seconds())
	if seconds < 60 {
		if seconds < 15 {
			return "just now"
		}
		return fmt.Sprintf("%ds ago", (seconds/15)*15)
	}
	if diff < time.Hour {
		return fmt.Sprintf("%dm ago", int64(diff.Minutes()))
	}
	local := t.Local()
	if local.Year() == now.Local().Year() && local.YearDay() == now.Local().YearDay() {
		return local.Format("15:04")
	}
	return local.Format("02 Jan 15:04")
}

// EscapeMarkdownV2 escapes text for Telegram MarkdownV2 parse mode.
func EscapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) * 2)
	for _, c := range text {
		switch c {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
