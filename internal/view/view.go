// Package view holds the platform-neutral description of a rendered screen.
// Screens are produced fresh on every resolution and never mutated afterwards;
// the Telegram layer turns them into actual API calls.
package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/Anykei/telegram-ha-bot/internal/nav"
	"github.com/Anykei/telegram-ha-bot/internal/presentation"
	"github.com/Anykei/telegram-ha-bot/internal/session"
)

const separator = "────────────────────"

// DefaultHeader is shown when a screen does not set its own title.
const DefaultHeader = "🏠 *HA Control*"

// Button is one inline keyboard button; Data carries an encoded nav intent.
type Button struct {
	Text string
	Data string
}

// Btn builds a button whose callback data is the encoded intent.
func Btn(text string, in nav.Intent) Button {
	return Button{Text: text, Data: nav.Encode(in)}
}

// Row wraps buttons into a keyboard row.
func Row(buttons ...Button) []Button { return buttons }

// HeaderItem is one line of the live status header.
type HeaderItem struct {
	Icon       string
	Label      string
	Value      string
	LastUpdate time.Time
}

// View is a fully resolved screen.
type View struct {
	// Header overrides DefaultHeader when set.
	Header string
	// Notifications are the live alert lines rendered under the header.
	Notifications []HeaderItem
	// Text is the screen body.
	Text string
	// Keyboard is the inline keyboard layout.
	Keyboard [][]Button
	// Intent is the navigation context this screen represents; it becomes the
	// session context once the screen is delivered.
	Intent nav.Intent
	// Dialogue, when set, switches the user into a free-text input state.
	Dialogue *session.Dialogue
	// Alert carries an error banner; an alert-only view keeps Intent nil so a
	// failed action never advances the user's position.
	Alert string
	// Image is an optional PNG (history chart) replacing the placeholder.
	Image []byte
}

// RenderText assembles the final MarkdownV2 caption: header, status block,
// alert and body.
func (v *View) RenderText() string {
	header := v.Header
	if header == "" {
		header = DefaultHeader
	}

	var status []string
	for _, item := range v.Notifications {
		status = append(status, fmt.Sprintf("%s %s: %s _%s_",
			item.Icon,
			presentation.EscapeMarkdownV2(item.Label),
			item.Value,
			presentation.EscapeMarkdownV2(presentation.RelativeTime(item.LastUpdate)),
		))
	}

	var body []string
	if v.Alert != "" {
		body = append(body, "⚠️ *ERROR:*\n_"+presentation.EscapeMarkdownV2(v.Alert)+"_")
	}
	if v.Text != "" {
		body = append(body, presentation.EscapeMarkdownV2(v.Text))
	}

	parts := []string{header + "\n" + separator}
	if len(status) > 0 {
		parts = append(parts, strings.Join(status, "\n"), separator)
	}
	if len(body) > 0 {
		parts = append(parts, strings.Join(body, "\n\n"))
	}
	return strings.Join(parts, "\n")
}
