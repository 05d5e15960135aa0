// internal/writer/status_writer.go
package writer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tamzrod/surplus-charger/internal/broker"
	"github.com/tamzrod/surplus-charger/internal/status"
)

// StatusWriter is the delivery-only contract for device status.
// It receives a snapshot and publishes it verbatim.
// No logic, no interpretation.
type StatusWriter interface {
	WriteStatus(ctx context.Context, s status.Snapshot) error
}

// deviceStatusWriter publishes device status under <topic>/status/...
// and availability as retained <topic>/status.
type deviceStatusWriter struct {
	topic   string
	pub     broker.Publisher
	timeout time.Duration

	needFull bool
	last     status.Snapshot
}

// NewDeviceStatusWriter builds a status writer for one device topic.
func NewDeviceStatusWriter(topic string, pub broker.Publisher, timeout time.Duration) (StatusWriter, error) {
	if topic == "" {
		return nil, errors.New("status writer: topic required")
	}
	if pub == nil {
		return nil, errors.New("status writer: publisher required")
	}
	return &deviceStatusWriter{
		topic:    topic,
		pub:      pub,
		timeout:  timeout,
		needFull: true, // full re-assert on first successful write
		last: status.Snapshot{
			Health: status.HealthUnknown,
		},
	}, nil
}

// AvailabilityTopic is the retained online/offline topic for a device.
func AvailabilityTopic(topic string) string {
	return topic + "/status"
}

// WriteStatus delivers a device status snapshot.
// Only changed values are published; on any failure the next call
// re-asserts the full set.
func (sw *deviceStatusWriter) WriteStatus(ctx context.Context, s status.Snapshot) error {
	slots := []struct {
		suffix  string
		changed bool
		payload string
	}{
		{"", sw.last.Availability() != s.Availability(), s.Availability()},
		{"/health", sw.last.Health != s.Health, strconv.Itoa(int(s.Health))},
		{"/last_error_code", sw.last.LastErrorCode != s.LastErrorCode, strconv.Itoa(int(s.LastErrorCode))},
		{"/seconds_in_error", sw.last.SecondsInError != s.SecondsInError, strconv.Itoa(int(s.SecondsInError))},
	}

	base := AvailabilityTopic(sw.topic)

	var errs []string
	for _, slot := range slots {
		if !sw.needFull && !slot.changed {
			continue
		}
		if err := broker.Publish(ctx, sw.pub, sw.timeout, base+slot.suffix, true, slot.payload); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		// Any partial failure introduces doubt: re-assert on next call.
		sw.needFull = true
		return fmt.Errorf("status writer: %s", strings.Join(errs, " | "))
	}

	sw.needFull = false
	sw.last = s
	return nil
}
