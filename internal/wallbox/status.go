// internal/wallbox/status.go
package wallbox

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tamzrod/surplus-charger/internal/charger"
)

// nrgTotalPower is the index of the total power (W) in the go-e nrg array:
// U L1..L3,N; I L1..L3; P L1..L3,N,Total; pf L1..L3,N.
const nrgTotalPower = 11

// Status is the latest known wallbox state.
type Status struct {
	CarState        charger.CarState
	Amp             float64
	Force           float64
	PhaseSwitchMode float64
	PowerW          float64 // nrg[11]
	EnergyTotal     float64 // eto, Wh
	EnergyConnected float64 // wh, Wh since car connected
	CableLock       float64
	ChargeLimit     float64
	Phases          float64
	ModelStatus     float64

	UpdatedAt time.Time
}

// Fields returns the status as telemetry fields.
func (s Status) Fields() map[string]float64 {
	return map[string]float64{
		"ampere":          s.Amp,
		"carState":        float64(s.CarState),
		"cableLock":       s.CableLock,
		"chargeLimit":     s.ChargeLimit,
		"energyTotal":     s.EnergyTotal,
		"allowedCharge":   s.Force,
		"energyConnected": s.EnergyConnected,
		"currentEnergy":   s.PowerW,
		"phaseSwitchMode": s.PhaseSwitchMode,
		"phases":          s.Phases,
		"modelStatus":     s.ModelStatus,
	}
}

// Keys is the set of go-e status keys the cache consumes.
var Keys = []string{"car", "amp", "frc", "psm", "nrg", "eto", "wh", "cus", "dwo", "pnp", "modelStatus"}

// Cache holds the wallbox status fed by MQTT callbacks.
// Writers are paho callbacks; readers are the control and logging tasks.
type Cache struct {
	mu     sync.RWMutex
	st     Status
	hasCar bool
	hasNrg bool
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Apply parses one status payload for key and stores it.
// Unknown keys are ignored.
func (c *Cache) Apply(key string, payload []byte, at time.Time) error {
	if key == "nrg" {
		var arr []float64
		if err := json.Unmarshal(payload, &arr); err != nil {
			return fmt.Errorf("wallbox: nrg: %w", err)
		}
		if len(arr) <= nrgTotalPower {
			return fmt.Errorf("wallbox: nrg: %d elements, need %d", len(arr), nrgTotalPower+1)
		}
		c.mu.Lock()
		c.st.PowerW = arr[nrgTotalPower]
		c.st.UpdatedAt = at
		c.hasNrg = true
		c.mu.Unlock()
		return nil
	}

	var dst *float64
	c.mu.Lock()
	defer c.mu.Unlock()

	switch key {
	case "car":
		v, err := parseNumber(payload)
		if err != nil {
			return fmt.Errorf("wallbox: car: %w", err)
		}
		c.st.CarState = charger.CarState(int(v))
		c.st.UpdatedAt = at
		c.hasCar = true
		return nil
	case "amp":
		dst = &c.st.Amp
	case "frc":
		dst = &c.st.Force
	case "psm":
		dst = &c.st.PhaseSwitchMode
	case "eto":
		dst = &c.st.EnergyTotal
	case "wh":
		dst = &c.st.EnergyConnected
	case "cus":
		dst = &c.st.CableLock
	case "dwo":
		dst = &c.st.ChargeLimit
	case "pnp":
		dst = &c.st.Phases
	case "modelStatus":
		dst = &c.st.ModelStatus
	default:
		return nil
	}

	v, err := parseNumber(payload)
	if err != nil {
		return fmt.Errorf("wallbox: %s: %w", key, err)
	}
	*dst = v
	c.st.UpdatedAt = at
	return nil
}

// Status returns the current status. ok is false until both the car
// state and the power array have been received.
func (c *Cache) Status() (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st, c.hasCar && c.hasNrg
}

// parseNumber accepts JSON numbers, booleans and null (as 0).
func parseNumber(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	switch s {
	case "null", "":
		return 0, nil
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	s = strings.Trim(s, `"`)
	return strconv.ParseFloat(s, 64)
}
