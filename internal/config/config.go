// internal/config/config.go
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tamzrod/surplus-charger/internal/register"
)

type Config struct {
	Inverter InverterConfig `yaml:"inverter"`
	Wallbox  WallboxConfig  `yaml:"wallbox"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Influx   InfluxConfig   `yaml:"influx"`
	Control  ControlConfig  `yaml:"control"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// ---- INVERTER (Modbus source) ----

type InverterConfig struct {
	Device    string `yaml:"device"` // serial, used as tag and topic segment
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms"`

	ReconnectMinMs int `yaml:"reconnect_min_ms"`
	ReconnectMaxMs int `yaml:"reconnect_max_ms"`

	// Register schemas. Order of entries is preserved.
	Fast register.Schema `yaml:"fast"`
	Slow register.Schema `yaml:"slow"`

	Telemetry TelemetryConfig `yaml:"telemetry"`

	// MQTT topic prefix for published values, e.g. goodwe/<device>.
	Topic string `yaml:"topic"`
}

// TelemetryConfig names the fast-schema values a sample is derived from.
type TelemetryConfig struct {
	PVPower      []string `yaml:"pv_power"`
	BatteryPower string   `yaml:"battery_power"`
	GridPower    string   `yaml:"grid_power"`
	BatterySOC   string   `yaml:"battery_soc"`
}

// ---- WALLBOX (go-eCharger over MQTT) ----

type WallboxConfig struct {
	Serial      string `yaml:"serial"`
	TopicPrefix string `yaml:"topic_prefix"` // go-eCharger

	// Status older than this is not used for control.
	StatusMaxAgeMs int `yaml:"status_max_age_ms"`
}

// ---- MQTT BROKER ----

type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- INFLUXDB ----

type InfluxConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	Org            string `yaml:"org"`
	Token          string `yaml:"token"`
	InverterBucket string `yaml:"inverter_bucket"`
	WallboxBucket  string `yaml:"wallbox_bucket"`
}

// ---- CONTROL ----

type ControlConfig struct {
	SinglePhaseMinPower  float64 `yaml:"single_phase_min_power"`
	ThreePhaseMinPower   float64 `yaml:"three_phase_min_power"`
	BatteryMinChargeSOC  float64 `yaml:"battery_min_charge_soc"`
	DefaultChargeCurrent int     `yaml:"default_charge_current"`
	MinCurrent           int     `yaml:"min_current"`
	MaxCurrent           int     `yaml:"max_current"`
	Voltage              float64 `yaml:"voltage"`
	CurrentOffset        float64 `yaml:"current_offset"`
	WindowSize           int     `yaml:"window_size"`
}

// ---- SCHEDULE ----

type ScheduleConfig struct {
	FastIntervalMs    int `yaml:"fast_interval_ms"`
	SlowIntervalMs    int `yaml:"slow_interval_ms"`
	ControlIntervalMs int `yaml:"control_interval_ms"`
	WallboxIntervalMs int `yaml:"wallbox_interval_ms"`
	CycleTimeoutMs    int `yaml:"cycle_timeout_ms"`
}

// Load reads and decodes a YAML config file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes YAML config bytes.
func Parse(b []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Inverter.Fast.Name = "fast"
	cfg.Inverter.Slow.Name = "slow"
	return &cfg, nil
}

// Ms converts a millisecond config field.
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
