// internal/writer/types.go
package writer

import (
	"context"
	"time"
)

// Record is one telemetry point: a measurement with tags and numeric fields.
type Record struct {
	Measurement string
	Bucket      string // empty means the sink's default
	Tags        map[string]string
	Fields      map[string]float64
	At          time.Time
}

// Writer delivers telemetry records to one sink.
type Writer interface {
	Write(ctx context.Context, rec Record) error
}
