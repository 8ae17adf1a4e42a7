package presentation

import (
	"testing"
	"time"
)

func TestStateValueUnits(t *testing.T) {
	cases := []struct {
		domain, class, state, want string
	}{
		{"sensor", "temperature", "22.5", "22.50°C"},
		{"sensor", "humidity", "41", "41.00%"},
		{"sensor", "power", "1500", "1500.00 W"},
		{"climate", "", "19.5", "19.50°C"},
		{"light", "", "on", "ON"},
		{"switch", "", "off", "OFF"},
		{"lock", "", "locked", "Locked"},
		{"sensor", "", "weird_state", "weird_state"},
	}
	for _, c := range cases {
		if got := StateValue(c.domain, c.class, c.state); got != c.want {
			t.Fatalf("StateValue(%s,%s,%s) = %q, want %q", c.domain, c.class, c.state, got, c.want)
		}
	}
}

func TestRelativeSinceBuckets(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		ago  time.Duration
		want string
	}{
		{5 * time.Second, "just now"},
		{20 * time.Second, "15s ago"},
		{59 * time.Second, "45s ago"},
		{3 * time.Minute, "3m ago"},
		{59 * time.Minute, "59m ago"},
	}
	for _, c := range cases {
		if got := relativeSince(now.Add(-c.ago), now); got != c.want {
			t.Fatalf("relativeSince(-%v) = %q, want %q", c.ago, got, c.want)
		}
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	if got := EscapeMarkdownV2("sensor.temp_1 (raw)"); got != "sensor\\.temp\\_1 \\(raw\\)" {
		t.Fatalf("unexpected escape: %q", got)
	}
}

func TestDeviceLabelWithState(t *testing.T) {
	got := DeviceLabelWithState("Kitchen", "sensor", "temperature", "22.5")
	if got != "🌡 Kitchen (22.50°C)" {
		t.Fatalf("unexpected label: %q", got)
	}
}
