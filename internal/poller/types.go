// internal/poller/types.go
package poller

import (
	"fmt"
	"time"

	"github.com/tamzrod/surplus-charger/internal/register"
)

// Client abstracts the Modbus read the poller needs.
// Geometry only: address and quantity in, raw words out.
type Client interface {
	ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) // FC 3
}

// Closer is implemented by clients that hold a connection.
type Closer interface {
	Close() error
}

// Factory dials a new client. ONE attempt per call.
type Factory func() (Client, error)

// PollResult is a snapshot produced by one poll cycle.
type PollResult struct {
	Device string
	Schema string
	At     time.Time

	Values []register.DecodedValue
	Err    error // non-nil means the poll cycle failed
}

// Map returns the decoded values keyed by name.
func (r PollResult) Map() map[string]float64 {
	return register.Values(r.Values)
}

// TransportError wraps a failure of the word source itself,
// as opposed to a decode failure of words that did arrive.
type TransportError struct {
	Device  string
	Name    string
	Address uint16
	Err     error
}

func (e *TransportError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("poller: device %s: transport: %v", e.Device, e.Err)
	}
	return fmt.Sprintf("poller: device %s: read %q at %d: %v", e.Device, e.Name, e.Address, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
