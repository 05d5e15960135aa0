// internal/charger/types.go
package charger

import "fmt"

// CarState mirrors the go-eCharger "car" status value.
type CarState int

const (
	CarUnknown  CarState = 0
	CarIdle     CarState = 1
	CarCharging CarState = 2
	CarWaitCar  CarState = 3
	CarComplete CarState = 4
	CarError    CarState = 5
)

func (c CarState) String() string {
	switch c {
	case CarIdle:
		return "idle"
	case CarCharging:
		return "charging"
	case CarWaitCar:
		return "wait_car"
	case CarComplete:
		return "complete"
	case CarError:
		return "error"
	default:
		return "unknown"
	}
}

// ForceState mirrors the go-eCharger "frc" value.
type ForceState int

const (
	ForceNeutral ForceState = 0
	ForceOff     ForceState = 1
	ForceOn      ForceState = 2
)

func (f ForceState) String() string {
	switch f {
	case ForceNeutral:
		return "neutral"
	case ForceOff:
		return "off"
	case ForceOn:
		return "on"
	default:
		return fmt.Sprintf("force(%d)", int(f))
	}
}

// PhaseMode mirrors the go-eCharger "psm" value.
type PhaseMode int

const (
	PhaseAutomatic PhaseMode = 0
	PhaseSingle    PhaseMode = 1
	PhaseThree     PhaseMode = 2
)

func (p PhaseMode) String() string {
	switch p {
	case PhaseAutomatic:
		return "automatic"
	case PhaseSingle:
		return "single"
	case PhaseThree:
		return "three"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the controller's charging state.
type State int

const (
	StateIdle State = iota
	StateCharging3Phase
	StateCharging1Phase
	StateLowSOCOverride
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCharging3Phase:
		return "charging_3phase"
	case StateCharging1Phase:
		return "charging_1phase"
	case StateLowSOCOverride:
		return "low_soc_override"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Command is one atomic wallbox instruction: current, force state and
// phase mode are always decided together.
type Command struct {
	Amps  int
	Force ForceState
	Phase PhaseMode
}

// IsStop reports whether c switches charging off.
func (c Command) IsStop() bool { return c.Force == ForceOff }

// Input is what one control cycle sees.
type Input struct {
	MeanPPV   float64
	MeanHouse float64
	SOC       float64
	CarState  CarState
	CarPowerW float64 // power currently drawn by the car
}

// Decision is the outcome of one Evaluate call.
// Send is false when nothing must reach the wallbox this cycle.
type Decision struct {
	Command Command
	Send    bool
	State   State
	Surplus float64
	Reason  string
}
