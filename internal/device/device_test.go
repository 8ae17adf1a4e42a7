package device

import (
	"context"
	"errors"
	"testing"

	"github.com/Anykei/telegram-ha-bot/internal/nav"
)

type call struct {
	domain, service, entityID string
	data                      map[string]any
}

type fakeHub struct {
	calls []call
	err   error
}

func (f *fakeHub) CallService(_ context.Context, domain, service, entityID string) error {
	f.calls = append(f.calls, call{domain: domain, service: service, entityID: entityID})
	return f.err
}

func (f *fakeHub) CallServiceData(_ context.Context, domain, service, entityID string, data map[string]any) error {
	f.calls = append(f.calls, call{domain: domain, service: service, entityID: entityID, data: data})
	return f.err
}

func newTestExecutor(hub *fakeHub) *Executor {
	e := NewExecutor(hub)
	e.settle = 0
	return e
}

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"light.kitchen":         KindSwitchable,
		"switch.heater":         KindSwitchable,
		"fan.bedroom":           KindSwitchable,
		"sensor.temp":           KindSensor,
		"binary_sensor.door":    KindSensor,
		"climate.living_room":   KindClimate,
		"media_player.tv":       KindOther,
		"garbage_without_a_dot": KindOther,
	}
	for id, want := range cases {
		if got := Classify(id); got != want {
			t.Errorf("Classify(%q) = %d, want %d", id, got, want)
		}
	}
}

func TestToggleCallsSwitchService(t *testing.T) {
	hub := &fakeHub{}
	e := newTestExecutor(hub)

	res := e.Interact(context.Background(), "light.kitchen", nav.Toggle())
	if res.Outcome != Processed {
		t.Fatalf("outcome = %d, want Processed", res.Outcome)
	}
	if len(hub.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(hub.calls))
	}
	c := hub.calls[0]
	if c.domain != "light" || c.service != "toggle" || c.entityID != "light.kitchen" {
		t.Fatalf("unexpected call: %+v", c)
	}
}

func TestTurnOnAndOffPickServices(t *testing.T) {
	hub := &fakeHub{}
	e := newTestExecutor(hub)

	e.Interact(context.Background(), "switch.heater", nav.Command{Kind: nav.CmdTurnOn})
	e.Interact(context.Background(), "switch.heater", nav.Command{Kind: nav.CmdTurnOff})
	if len(hub.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(hub.calls))
	}
	if hub.calls[0].service != "turn_on" || hub.calls[1].service != "turn_off" {
		t.Fatalf("services = %q, %q", hub.calls[0].service, hub.calls[1].service)
	}
}

func TestSensorTapOpensDetail(t *testing.T) {
	hub := &fakeHub{}
	e := newTestExecutor(hub)

	res := e.Interact(context.Background(), "sensor.outside_temp", nav.Toggle())
	if res.Outcome != NeedsDetail {
		t.Fatalf("outcome = %d, want NeedsDetail", res.Outcome)
	}
	if len(hub.calls) != 0 {
		t.Fatalf("sensor tap made %d hub calls", len(hub.calls))
	}
}

func TestSetLevelSendsBrightness(t *testing.T) {
	hub := &fakeHub{}
	e := newTestExecutor(hub)

	res := e.Interact(context.Background(), "light.kitchen", nav.Command{Kind: nav.CmdSetLevel, Level: 40})
	if res.Outcome != Processed {
		t.Fatalf("outcome = %d, want Processed", res.Outcome)
	}
	c := hub.calls[0]
	if c.service != "turn_on" || c.data["brightness_pct"] != 40 {
		t.Fatalf("unexpected call: %+v", c)
	}
}

func TestSetLevelRejectsNonLight(t *testing.T) {
	hub := &fakeHub{}
	e := newTestExecutor(hub)

	res := e.Interact(context.Background(), "switch.heater", nav.Command{Kind: nav.CmdSetLevel, Level: 40})
	if res.Outcome != Failed || res.Err == nil {
		t.Fatalf("outcome = %+v, want Failed with error", res)
	}
}

func TestSetTemperatureStaysOnThermostat(t *testing.T) {
	hub := &fakeHub{}
	e := newTestExecutor(hub)

	res := e.Interact(context.Background(), "climate.living_room", nav.Command{Kind: nav.CmdSetTemperature, Temperature: 21.5})
	if res.Outcome != NeedsDetail {
		t.Fatalf("outcome = %d, want NeedsDetail", res.Outcome)
	}
	c := hub.calls[0]
	if c.domain != "climate" || c.service != "set_temperature" {
		t.Fatalf("unexpected call: %+v", c)
	}
	if c.data["temperature"] != float32(21.5) {
		t.Fatalf("temperature = %v", c.data["temperature"])
	}
}

func TestHubErrorBecomesFailed(t *testing.T) {
	hub := &fakeHub{err: errors.New("hub unreachable")}
	e := newTestExecutor(hub)

	res := e.Interact(context.Background(), "light.kitchen", nav.Toggle())
	if res.Outcome != Failed || res.Err == nil {
		t.Fatalf("outcome = %+v, want Failed", res)
	}
}

func TestManualInputAsksForChartInterval(t *testing.T) {
	e := newTestExecutor(&fakeHub{})

	res := e.Interact(context.Background(), "sensor.temp", nav.Command{Kind: nav.CmdManualInput})
	if res.Outcome != NeedsInput || res.Input != InputChartInterval {
		t.Fatalf("result = %+v, want NeedsInput(chart interval)", res)
	}
}
