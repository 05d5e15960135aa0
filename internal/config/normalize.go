// internal/config/normalize.go
package config

import (
	"strings"

	"github.com/tamzrod/surplus-charger/internal/charger"
	"github.com/tamzrod/surplus-charger/internal/telemetry"
)

// Defaults for fields left unset in the YAML file.
const (
	DefaultTimeoutMs      = 3000
	DefaultReconnectMinMs = 2000
	DefaultReconnectMaxMs = 60000

	DefaultWallboxTopicPrefix = "go-eCharger"
	DefaultStatusMaxAgeMs     = 120000

	DefaultInverterBucket = "goodwe"
	DefaultWallboxBucket  = "goe"

	DefaultFastIntervalMs    = 2000
	DefaultSlowIntervalMs    = 10000
	DefaultControlIntervalMs = 30000
	DefaultWallboxIntervalMs = 2000
	DefaultCycleTimeoutMs    = 10000

	DefaultWindowSize = telemetry.DefaultWindowSize
)

// Normalize fills defaults. It is allowed to mutate configuration.
// It MUST be called before Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// INVERTER
	// ------------------------------------------------------------

	inv := &cfg.Inverter
	setInt(&inv.TimeoutMs, DefaultTimeoutMs)
	setInt(&inv.ReconnectMinMs, DefaultReconnectMinMs)
	setInt(&inv.ReconnectMaxMs, DefaultReconnectMaxMs)
	if inv.UnitID == 0 {
		inv.UnitID = 247 // GoodWe ET default
	}
	if inv.Topic == "" && inv.Device != "" {
		inv.Topic = "goodwe/" + inv.Device
	}
	inv.Topic = strings.TrimSuffix(inv.Topic, "/")

	dm := telemetry.DefaultMapping()
	tm := &inv.Telemetry
	if len(tm.PVPower) == 0 {
		tm.PVPower = append([]string(nil), dm.PVPower...)
	}
	setStr(&tm.BatteryPower, dm.BatteryPower)
	setStr(&tm.GridPower, dm.GridPower)
	setStr(&tm.BatterySOC, dm.BatterySOC)

	// ------------------------------------------------------------
	// WALLBOX / MQTT
	// ------------------------------------------------------------

	setStr(&cfg.Wallbox.TopicPrefix, DefaultWallboxTopicPrefix)
	cfg.Wallbox.TopicPrefix = strings.TrimSuffix(cfg.Wallbox.TopicPrefix, "/")
	setInt(&cfg.Wallbox.StatusMaxAgeMs, DefaultStatusMaxAgeMs)

	setStr(&cfg.MQTT.ClientID, "surplusd")
	setInt(&cfg.MQTT.TimeoutMs, DefaultTimeoutMs)

	// ------------------------------------------------------------
	// INFLUX
	// ------------------------------------------------------------

	setStr(&cfg.Influx.InverterBucket, DefaultInverterBucket)
	setStr(&cfg.Influx.WallboxBucket, DefaultWallboxBucket)

	// ------------------------------------------------------------
	// CONTROL
	// ------------------------------------------------------------

	dc := charger.DefaultConfig()
	c := &cfg.Control
	setFloat(&c.SinglePhaseMinPower, dc.SinglePhaseMinPower)
	setFloat(&c.ThreePhaseMinPower, dc.ThreePhaseMinPower)
	setFloat(&c.BatteryMinChargeSOC, dc.BatteryMinChargeSOC)
	setInt(&c.DefaultChargeCurrent, dc.DefaultChargeCurrent)
	setInt(&c.MinCurrent, dc.MinCurrent)
	setInt(&c.MaxCurrent, dc.MaxCurrent)
	setFloat(&c.Voltage, dc.Voltage)
	setFloat(&c.CurrentOffset, dc.CurrentOffset)
	setInt(&c.WindowSize, DefaultWindowSize)

	// ------------------------------------------------------------
	// SCHEDULE
	// ------------------------------------------------------------

	s := &cfg.Schedule
	setInt(&s.FastIntervalMs, DefaultFastIntervalMs)
	setInt(&s.SlowIntervalMs, DefaultSlowIntervalMs)
	setInt(&s.ControlIntervalMs, DefaultControlIntervalMs)
	setInt(&s.WallboxIntervalMs, DefaultWallboxIntervalMs)
	setInt(&s.CycleTimeoutMs, DefaultCycleTimeoutMs)
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

func setStr(v *string, def string) {
	if *v == "" {
		*v = def
	}
}
