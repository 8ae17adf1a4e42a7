// Package device classifies hub entities and executes quick-action commands
// against them.
package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Anykei/telegram-ha-bot/internal/nav"
)

// Kind groups entity domains by how the bot interacts with them.
type Kind uint8

const (
	// KindSwitchable toggles on tap: light, switch, input_boolean, fan.
	KindSwitchable Kind = iota
	// KindSensor opens a history chart: sensor, binary_sensor.
	KindSensor
	// KindClimate opens the thermostat screen.
	KindClimate
	// KindOther has no quick action.
	KindOther
)

// Domain returns the entity domain, the part before the first dot.
func Domain(entityID string) string {
	if i := strings.IndexByte(entityID, '.'); i >= 0 {
		return entityID[:i]
	}
	return entityID
}

// Classify maps an entity ID to its interaction kind.
func Classify(entityID string) Kind {
	switch Domain(entityID) {
	case "light", "switch", "input_boolean", "fan":
		return KindSwitchable
	case "sensor", "binary_sensor":
		return KindSensor
	case "climate":
		return KindClimate
	default:
		return KindOther
	}
}

// Outcome says how the router should react to a command.
type Outcome uint8

const (
	// Processed: the device acted; re-render the current screen.
	Processed Outcome = iota
	// NeedsDetail: open the device's detail screen (chart, thermostat).
	NeedsDetail
	// NeedsInput: prompt the user for free-form text.
	NeedsInput
	// Failed: show the error as a transient alert.
	Failed
)

// InputKind tells the prompt screen what to ask for.
type InputKind uint8

const (
	InputNone InputKind = iota
	InputChartInterval
)

// Interaction is the result of executing one command.
type Interaction struct {
	Outcome Outcome
	Input   InputKind
	Err     error
}

func processed() Interaction   { return Interaction{Outcome: Processed} }
func needsDetail() Interaction { return Interaction{Outcome: NeedsDetail} }

func failed(err error) Interaction {
	return Interaction{Outcome: Failed, Err: err}
}

// HubClient is the slice of the hub API the executor needs.
type HubClient interface {
	CallService(ctx context.Context, domain, service, entityID string) error
	CallServiceData(ctx context.Context, domain, service, entityID string, data map[string]any) error
}

// Executor turns quick-action commands into hub service calls.
type Executor struct {
	hub HubClient

	// settle is how long to wait after a write before re-reading state, so
	// the refreshed screen shows the post-action value. Overridable in tests.
	settle time.Duration
}

func NewExecutor(hub HubClient) *Executor {
	return &Executor{hub: hub, settle: 500 * time.Millisecond}
}

// Interact executes cmd against the entity and reports what to do next.
func (e *Executor) Interact(ctx context.Context, entityID string, cmd nav.Command) Interaction {
	switch cmd.Kind {
	case nav.CmdToggle, nav.CmdTurnOn, nav.CmdTurnOff:
		return e.switchService(ctx, entityID, cmd.Kind)
	case nav.CmdSetLevel:
		return e.setLevel(ctx, entityID, cmd.Level)
	case nav.CmdSetTemperature:
		return e.setTemperature(ctx, entityID, cmd.Temperature)
	case nav.CmdShowChart:
		return needsDetail()
	case nav.CmdManualInput:
		return Interaction{Outcome: NeedsInput, Input: InputChartInterval}
	default:
		return failed(fmt.Errorf("device: unsupported command %d", cmd.Kind))
	}
}

func (e *Executor) switchService(ctx context.Context, entityID string, kind nav.CommandKind) Interaction {
	domain := Domain(entityID)
	switch Classify(entityID) {
	case KindSwitchable:
	case KindSensor:
		// Sensors have no switch service; the tap opens the chart instead.
		return needsDetail()
	case KindClimate:
		return needsDetail()
	default:
		return failed(fmt.Errorf("device: %s cannot be switched", entityID))
	}

	service := "toggle"
	switch kind {
	case nav.CmdTurnOn:
		service = "turn_on"
	case nav.CmdTurnOff:
		service = "turn_off"
	}
	if err := e.hub.CallService(ctx, domain, service, entityID); err != nil {
		return failed(err)
	}
	e.wait(ctx)
	return processed()
}

func (e *Executor) setLevel(ctx context.Context, entityID string, level uint8) Interaction {
	if Domain(entityID) != "light" {
		return failed(fmt.Errorf("device: %s has no brightness", entityID))
	}
	err := e.hub.CallServiceData(ctx, "light", "turn_on", entityID, map[string]any{
		"brightness_pct": int(level),
	})
	if err != nil {
		return failed(err)
	}
	e.wait(ctx)
	return processed()
}

func (e *Executor) setTemperature(ctx context.Context, entityID string, target float32) Interaction {
	if Domain(entityID) != "climate" {
		return failed(fmt.Errorf("device: %s has no thermostat", entityID))
	}
	err := e.hub.CallServiceData(ctx, "climate", "set_temperature", entityID, map[string]any{
		"temperature": target,
	})
	if err != nil {
		return failed(err)
	}
	e.wait(ctx)
	// Stay on the thermostat screen so the next adjustment is one tap away.
	return needsDetail()
}

func (e *Executor) wait(ctx context.Context) {
	if e.settle <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(e.settle):
	}
}
