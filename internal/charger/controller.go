// internal/charger/controller.go
package charger

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/tamzrod/surplus-charger/internal/log"
)

// Config holds the controller thresholds. Immutable after start.
type Config struct {
	SinglePhaseMinPower  float64 // W
	ThreePhaseMinPower   float64 // W
	BatteryMinChargeSOC  float64 // %
	DefaultChargeCurrent int     // A
	MinCurrent           int     // A, the wallbox rejects less
	MaxCurrent           int     // A, hardware limit
	Voltage              float64 // V per phase
	CurrentOffset        float64 // A added to compensate measurement lag
}

// DefaultConfig returns the go-eCharger / GoodWe defaults.
func DefaultConfig() Config {
	return Config{
		SinglePhaseMinPower:  1400,
		ThreePhaseMinPower:   4100,
		BatteryMinChargeSOC:  6,
		DefaultChargeCurrent: 8,
		MinCurrent:           6,
		MaxCurrent:           14,
		Voltage:              230,
		CurrentOffset:        0.2,
	}
}

// Controller decides charging current and phase mode once per control cycle.
// Owned by the control task; not safe for concurrent use.
type Controller struct {
	cfg Config

	state      State
	chargingOn bool
	lastAmps   int
	lastPhase  PhaseMode

	// unconfirmed is set when the last decided command was not delivered.
	unconfirmed bool
}

// New creates a controller in Idle. After a restart charging is assumed off.
func New(cfg Config) *Controller {
	return &Controller{
		cfg:       cfg,
		state:     StateIdle,
		lastPhase: PhaseAutomatic,
	}
}

// PowerToCurrent converts power to per-phase current plus offset.
// Non-positive power yields 0.
func PowerToCurrent(power float64, phases int, voltage, offset float64) float64 {
	if power <= 0 || phases <= 0 || voltage <= 0 {
		return 0
	}
	return power/(float64(phases)*voltage) + offset
}

// Surplus computes the available PV surplus.
// When the car is already charging its own draw is part of the measured
// house consumption and is added back.
func (c *Controller) Surplus(in Input) float64 {
	switch {
	case in.MeanPPV < c.cfg.SinglePhaseMinPower:
		return 0
	case in.CarState == CarCharging:
		return in.MeanPPV - (in.MeanHouse - in.CarPowerW)
	default:
		return in.MeanPPV - in.MeanHouse
	}
}

// target selects phase mode and clamped current for a given surplus.
func (c *Controller) target(surplus float64) (int, PhaseMode, State) {
	var (
		amps  float64
		phase = PhaseAutomatic
		state = StateIdle
	)

	switch {
	case surplus >= c.cfg.ThreePhaseMinPower:
		amps = PowerToCurrent(surplus, 3, c.cfg.Voltage, c.cfg.CurrentOffset)
		state = StateCharging3Phase
	case surplus >= c.cfg.SinglePhaseMinPower:
		amps = PowerToCurrent(surplus, 1, c.cfg.Voltage, c.cfg.CurrentOffset)
		phase = PhaseSingle
		state = StateCharging1Phase
	}

	a := int(math.Floor(amps))
	if a > c.cfg.MaxCurrent {
		a = c.cfg.MaxCurrent
	}
	if a < 0 {
		a = 0
	}
	return a, phase, state
}

// Evaluate runs one control cycle. It never fails: every numeric input
// maps to a decision.
func (c *Controller) Evaluate(ctx context.Context, in Input) Decision {
	surplus := c.Surplus(in)
	amps, phase, chargeState := c.target(surplus)

	log.Ctx(ctx).DebugContext(ctx, "charger evaluate",
		slog.Float64("meanPPV", in.MeanPPV),
		slog.Float64("meanHouse", in.MeanHouse),
		slog.Float64("soc", in.SOC),
		slog.String("car", in.CarState.String()),
		slog.Float64("carPowerW", in.CarPowerW),
		slog.Float64("surplus", surplus),
		slog.Int("amps", amps),
		slog.String("phase", phase.String()),
	)

	switch {
	case amps >= c.cfg.MinCurrent:
		cmd := Command{Amps: amps, Force: ForceNeutral, Phase: phase}
		c.apply(chargeState, cmd)
		return Decision{
			Command: cmd,
			Send:    true,
			State:   chargeState,
			Surplus: surplus,
			Reason:  fmt.Sprintf("surplus %.0fW -> %dA %s", surplus, amps, phase),
		}

	case in.SOC <= c.cfg.BatteryMinChargeSOC && in.MeanPPV == 0:
		cmd := Command{Amps: c.cfg.DefaultChargeCurrent, Force: ForceNeutral, Phase: PhaseAutomatic}
		c.apply(StateLowSOCOverride, cmd)
		return Decision{
			Command: cmd,
			Send:    true,
			State:   StateLowSOCOverride,
			Surplus: surplus,
			Reason:  fmt.Sprintf("battery low SOC %.0f%%, default %dA", in.SOC, c.cfg.DefaultChargeCurrent),
		}

	default:
		stop := Command{Amps: c.cfg.DefaultChargeCurrent, Force: ForceOff, Phase: PhaseAutomatic}
		send := c.chargingOn || c.unconfirmed
		if c.chargingOn {
			c.apply(StateIdle, stop)
		}
		reason := "no surplus, idle"
		if send {
			reason = "no surplus, stop charging"
		}
		return Decision{
			Command: stop,
			Send:    send,
			State:   StateIdle,
			Surplus: surplus,
			Reason:  reason,
		}
	}
}

func (c *Controller) apply(s State, cmd Command) {
	c.state = s
	c.chargingOn = !cmd.IsStop()
	c.lastAmps = cmd.Amps
	c.lastPhase = cmd.Phase
}

// Acknowledge records the delivery outcome of the last sent decision.
// On failure the intended state is kept and the next cycle re-issues its
// command even when it would otherwise be suppressed.
func (c *Controller) Acknowledge(err error) {
	c.unconfirmed = err != nil
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// ChargingOn reports whether the controller intends the wallbox to charge.
func (c *Controller) ChargingOn() bool { return c.chargingOn }

// LastCommand returns the last decided current and phase mode.
func (c *Controller) LastCommand() (int, PhaseMode) { return c.lastAmps, c.lastPhase }
