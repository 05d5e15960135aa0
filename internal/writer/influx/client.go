// internal/writer/influx/client.go
package influx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/tamzrod/surplus-charger/internal/writer"
)

// pointWriter is the slice of api.WriteAPIBlocking the sink uses.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Config is minimal sink config.
type Config struct {
	URL    string
	Org    string
	Token  string
	Bucket string // default bucket
}

// Writer stores records as InfluxDB points, one blocking write per record.
// The deadline comes from the caller's context.
type Writer struct {
	cfg    Config
	client influxdb2.Client

	mu     sync.Mutex
	apis   map[string]pointWriter
	newAPI func(bucket string) pointWriter
}

// New creates an InfluxDB sink. No request is made until the first write.
func New(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, errors.New("influx: url required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("influx: bucket required")
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	w := &Writer{
		cfg:    cfg,
		client: client,
		apis:   make(map[string]pointWriter),
	}
	w.newAPI = func(bucket string) pointWriter {
		return client.WriteAPIBlocking(cfg.Org, bucket)
	}
	return w, nil
}

// Ping checks that the server is reachable.
func (w *Writer) Ping(ctx context.Context) error {
	ok, err := w.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influx: ping: %w", err)
	}
	if !ok {
		return errors.New("influx: ping: server not ready")
	}
	return nil
}

// Write implements writer.Writer.
func (w *Writer) Write(ctx context.Context, rec writer.Record) error {
	bucket := rec.Bucket
	if bucket == "" {
		bucket = w.cfg.Bucket
	}

	fields := make(map[string]interface{}, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}

	p := influxdb2.NewPoint(rec.Measurement, rec.Tags, fields, rec.At)
	if err := w.api(bucket).WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx: write %s to %s: %w", rec.Measurement, bucket, err)
	}
	return nil
}

func (w *Writer) api(bucket string) pointWriter {
	w.mu.Lock()
	defer w.mu.Unlock()

	a, ok := w.apis[bucket]
	if !ok {
		a = w.newAPI(bucket)
		w.apis[bucket] = a
	}
	return a
}

// Close releases the HTTP client.
func (w *Writer) Close() error {
	w.client.Close()
	return nil
}
