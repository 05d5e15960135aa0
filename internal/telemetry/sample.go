// internal/telemetry/sample.go
package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingValue reports a decoded value set that cannot produce a Sample.
var ErrMissingValue = errors.New("telemetry: missing value")

// Sample is the fixed-shape record produced once per fast read cycle.
type Sample struct {
	PPV              float64 // W, sum of PV strings
	HouseConsumption float64 // W
	BatterySOC       float64 // %
	BatteryPower     float64 // W, positive when discharging
	GridPower        float64 // W, positive when exporting
	At               time.Time
}

// Mapping names the decoded values a Sample is derived from.
type Mapping struct {
	PVPower      []string
	BatteryPower string
	GridPower    string
	BatterySOC   string
}

// DefaultMapping matches the GoodWe ET register names.
func DefaultMapping() Mapping {
	return Mapping{
		PVPower:      []string{"pv1_power", "pv2_power", "pv3_power", "pv4_power"},
		BatteryPower: "pbattery1",
		GridPower:    "active_power",
		BatterySOC:   "battery_soc",
	}
}

// FromValues derives a Sample:
//
//	ppv   = sum(PVPower...)
//	house = ppv + battery - grid
//
// Any missing name fails the whole sample.
func FromValues(values map[string]float64, m Mapping, at time.Time) (Sample, error) {
	get := func(name string) (float64, error) {
		v, ok := values[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrMissingValue, name)
		}
		return v, nil
	}

	if len(m.PVPower) == 0 {
		return Sample{}, fmt.Errorf("%w: no pv power names mapped", ErrMissingValue)
	}

	var ppv float64
	for _, name := range m.PVPower {
		v, err := get(name)
		if err != nil {
			return Sample{}, err
		}
		ppv += v
	}

	battery, err := get(m.BatteryPower)
	if err != nil {
		return Sample{}, err
	}
	grid, err := get(m.GridPower)
	if err != nil {
		return Sample{}, err
	}
	soc, err := get(m.BatterySOC)
	if err != nil {
		return Sample{}, err
	}

	return Sample{
		PPV:              ppv,
		HouseConsumption: ppv + battery - grid,
		BatterySOC:       soc,
		BatteryPower:     battery,
		GridPower:        grid,
		At:               at,
	}, nil
}
