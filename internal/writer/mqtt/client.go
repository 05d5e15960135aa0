// internal/writer/mqtt/client.go
package mqtt

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/tamzrod/surplus-charger/internal/broker"
	"github.com/tamzrod/surplus-charger/internal/writer"
)

// Config is minimal sink config.
type Config struct {
	// Measurements maps a measurement to its topic prefix.
	// Records of other measurements are ignored.
	Measurements map[string]string

	// Fields maps a record field to its topic suffix.
	// Only mapped fields are published.
	Fields map[string]string

	Retained bool
	Timeout  time.Duration
}

// Writer publishes selected record fields as plain MQTT values,
// one topic per field: <prefix>/<suffix>.
type Writer struct {
	cfg Config
	pub broker.Publisher
}

// New creates an MQTT sink.
func New(cfg Config, pub broker.Publisher) (*Writer, error) {
	if pub == nil {
		return nil, errors.New("mqtt writer: publisher required")
	}
	return &Writer{cfg: cfg, pub: pub}, nil
}

// Write implements writer.Writer. Fields are published in sorted
// suffix order; every field is attempted.
func (w *Writer) Write(ctx context.Context, rec writer.Record) error {
	prefix, ok := w.cfg.Measurements[rec.Measurement]
	if !ok {
		return nil
	}

	var errs []string
	for _, field := range sortedFields(w.cfg.Fields) {
		v, ok := rec.Fields[field]
		if !ok {
			continue
		}
		topic := prefix + "/" + w.cfg.Fields[field]
		payload := strconv.FormatFloat(v, 'f', -1, 64)
		if err := broker.Publish(ctx, w.pub, w.cfg.Timeout, topic, w.cfg.Retained, payload); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return errors.New("mqtt writer: " + strings.Join(errs, " | "))
	}
	return nil
}
