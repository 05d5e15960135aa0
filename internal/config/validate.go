// internal/config/validate.go
package config

import (
	"errors"
	"fmt"

	"github.com/tamzrod/surplus-charger/internal/register"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}

	// ------------------------------------------------------------
	// INVERTER SOURCE
	// ------------------------------------------------------------

	inv := cfg.Inverter
	if inv.Device == "" {
		return errors.New("inverter: device is required")
	}
	if inv.Endpoint == "" {
		return fmt.Errorf("inverter %q: endpoint is required", inv.Device)
	}
	if inv.TimeoutMs <= 0 {
		return fmt.Errorf("inverter %q: timeout_ms must be > 0", inv.Device)
	}
	if inv.ReconnectMinMs > inv.ReconnectMaxMs {
		return fmt.Errorf(
			"inverter %q: reconnect_min_ms (%d) exceeds reconnect_max_ms (%d)",
			inv.Device, inv.ReconnectMinMs, inv.ReconnectMaxMs,
		)
	}

	// ------------------------------------------------------------
	// REGISTER SCHEMAS
	// ------------------------------------------------------------

	for _, s := range []register.Schema{inv.Fast, inv.Slow} {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("inverter %q: schema %q: %w", inv.Device, s.Name, err)
		}
	}

	// every telemetry mapping name must come from the fast schema
	fast := names(inv.Fast)
	need := append([]string{inv.Telemetry.BatteryPower, inv.Telemetry.GridPower, inv.Telemetry.BatterySOC},
		inv.Telemetry.PVPower...)
	for _, n := range need {
		if _, ok := fast[n]; !ok {
			return fmt.Errorf(
				"inverter %q: telemetry value %q is not defined in the fast schema",
				inv.Device, n,
			)
		}
	}

	// ------------------------------------------------------------
	// WALLBOX / MQTT
	// ------------------------------------------------------------

	if cfg.MQTT.Broker == "" {
		return errors.New("mqtt: broker is required")
	}
	if cfg.Wallbox.Serial == "" {
		return errors.New("wallbox: serial is required")
	}
	if cfg.MQTT.TimeoutMs <= 0 {
		return errors.New("mqtt: timeout_ms must be > 0")
	}

	// ------------------------------------------------------------
	// INFLUX (OPT-IN)
	// ------------------------------------------------------------

	if cfg.Influx.Enabled {
		if cfg.Influx.URL == "" {
			return errors.New("influx: url is required when enabled")
		}
		if cfg.Influx.Org == "" {
			return errors.New("influx: org is required when enabled")
		}
	}

	// ------------------------------------------------------------
	// CONTROL THRESHOLDS
	// ------------------------------------------------------------

	c := cfg.Control
	if c.SinglePhaseMinPower <= 0 || c.ThreePhaseMinPower <= c.SinglePhaseMinPower {
		return fmt.Errorf(
			"control: need 0 < single_phase_min_power (%v) < three_phase_min_power (%v)",
			c.SinglePhaseMinPower, c.ThreePhaseMinPower,
		)
	}
	if c.MinCurrent <= 0 || c.MinCurrent > c.MaxCurrent {
		return fmt.Errorf("control: need 0 < min_current (%d) <= max_current (%d)", c.MinCurrent, c.MaxCurrent)
	}
	if c.DefaultChargeCurrent < c.MinCurrent || c.DefaultChargeCurrent > c.MaxCurrent {
		return fmt.Errorf(
			"control: default_charge_current (%d) outside [%d, %d]",
			c.DefaultChargeCurrent, c.MinCurrent, c.MaxCurrent,
		)
	}
	if c.Voltage <= 0 {
		return errors.New("control: voltage must be > 0")
	}
	if c.BatteryMinChargeSOC < 0 || c.BatteryMinChargeSOC > 100 {
		return fmt.Errorf("control: battery_min_charge_soc (%v) outside [0, 100]", c.BatteryMinChargeSOC)
	}
	if c.WindowSize <= 0 {
		return errors.New("control: window_size must be > 0")
	}

	// ------------------------------------------------------------
	// SCHEDULE
	// ------------------------------------------------------------

	s := cfg.Schedule
	for name, v := range map[string]int{
		"fast_interval_ms":    s.FastIntervalMs,
		"slow_interval_ms":    s.SlowIntervalMs,
		"control_interval_ms": s.ControlIntervalMs,
		"wallbox_interval_ms": s.WallboxIntervalMs,
		"cycle_timeout_ms":    s.CycleTimeoutMs,
	} {
		if v <= 0 {
			return fmt.Errorf("schedule: %s must be > 0", name)
		}
	}

	return nil
}

// names collects every value name a schema produces.
func names(s register.Schema) map[string]struct{} {
	out := make(map[string]struct{})
	for _, d := range s.Definitions {
		if d.Block {
			for _, e := range d.Entries {
				out[e.Name] = struct{}{}
			}
			continue
		}
		out[d.Name] = struct{}{}
	}
	return out
}
