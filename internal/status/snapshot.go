// internal/status/snapshot.go
package status

// Snapshot represents exactly what the status writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
}

// Availability maps health to the retained availability payload.
// Only a healthy device is online.
func (s Snapshot) Availability() string {
	if s.Health == HealthOK {
		return Online
	}
	return Offline
}

// Fields returns the snapshot as telemetry fields.
func (s Snapshot) Fields() map[string]float64 {
	return map[string]float64{
		"health":           float64(s.Health),
		"last_error_code":  float64(s.LastErrorCode),
		"seconds_in_error": float64(s.SecondsInError),
	}
}
