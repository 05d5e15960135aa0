// internal/status/constants.go
package status

// Health and availability values.
// These values are published and MUST NOT be configurable.

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a healthy device.
const HealthOK uint16 = 1

// HealthError represents a device error state.
const HealthError uint16 = 2

// HealthStale represents a stale data state.
const HealthStale uint16 = 3

// ---- LIMITS ----

// MaxSecondsInError is where seconds_in_error saturates. It MUST NOT wrap.
const MaxSecondsInError = 65535

// ---- AVAILABILITY ----

// Availability payloads for the retained status topic.
const (
	Online  = "online"
	Offline = "offline"
)
