// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tamzrod/surplus-charger/internal/charger"
	"github.com/tamzrod/surplus-charger/internal/log"
	"github.com/tamzrod/surplus-charger/internal/poller"
	"github.com/tamzrod/surplus-charger/internal/register"
	"github.com/tamzrod/surplus-charger/internal/status"
	"github.com/tamzrod/surplus-charger/internal/telemetry"
	"github.com/tamzrod/surplus-charger/internal/wallbox"
	"github.com/tamzrod/surplus-charger/internal/writer"
)

var (
	// ErrNoWallboxStatus means no complete wallbox status has arrived yet.
	ErrNoWallboxStatus = errors.New("app: no wallbox status yet")

	// ErrStaleWallboxStatus means the last wallbox status is too old to act on.
	ErrStaleWallboxStatus = errors.New("app: wallbox status stale")
)

// SchemaPoller reads one register schema per call.
type SchemaPoller interface {
	PollOnce(ctx context.Context, schema register.Schema) poller.PollResult
}

// WallboxStatus provides the latest cached wallbox status.
type WallboxStatus interface {
	Status() (wallbox.Status, bool)
}

// Deps are the collaborators of one inverter + wallbox pair.
type Deps struct {
	Device string

	Poller  SchemaPoller
	Fast    register.Schema
	Slow    register.Schema
	Mapping telemetry.Mapping

	Aggregator *telemetry.Aggregator
	Controller *charger.Controller

	Wallbox       WallboxStatus
	Commander     wallbox.Commander
	WallboxSerial string
	StatusMaxAge  time.Duration // zero disables the age check

	Sink           writer.Writer
	InverterBucket string
	WallboxBucket  string

	// Inverter health is published through StatusWriter when set.
	InverterHealth *status.Tracker
	StatusWriter   writer.StatusWriter
}

// App owns the per-cycle logic of every periodic task.
type App struct {
	d   Deps
	now func() time.Time
}

// New checks the wiring.
func New(d Deps) (*App, error) {
	switch {
	case d.Device == "":
		return nil, errors.New("app: device required")
	case d.Poller == nil:
		return nil, errors.New("app: poller required")
	case d.Aggregator == nil || d.Controller == nil:
		return nil, errors.New("app: aggregator and controller required")
	case d.Wallbox == nil || d.Commander == nil:
		return nil, errors.New("app: wallbox status and commander required")
	}
	if d.Sink == nil {
		d.Sink = writer.Discard{}
	}
	if d.InverterHealth == nil {
		d.InverterHealth = status.NewTracker(0)
	}
	return &App{d: d, now: time.Now}, nil
}

// FastCycle reads the fast schema, feeds the aggregator and logs the values.
// A failed read or an incomplete sample leaves the aggregator untouched.
func (a *App) FastCycle(ctx context.Context) error {
	res := a.d.Poller.PollOnce(ctx, a.d.Fast)
	a.observeInverter(ctx, res.Err)
	if res.Err != nil {
		return res.Err
	}

	values := res.Map()
	sample, err := telemetry.FromValues(values, a.d.Mapping, res.At)
	if err != nil {
		return fmt.Errorf("app: fast cycle: %w", err)
	}
	a.d.Aggregator.Observe(sample)

	fields := values
	for k, v := range writer.SampleFields(sample) {
		fields[k] = v
	}
	a.write(ctx, writer.Record{
		Measurement: writer.MeasurementInverter,
		Bucket:      a.d.InverterBucket,
		Tags:        writer.DeviceTags(a.d.Device),
		Fields:      fields,
		At:          res.At,
	})
	return nil
}

// SlowCycle reads the slow schema and logs the values.
func (a *App) SlowCycle(ctx context.Context) error {
	res := a.d.Poller.PollOnce(ctx, a.d.Slow)
	if res.Err != nil {
		return res.Err
	}

	a.write(ctx, writer.Record{
		Measurement: writer.MeasurementInverter,
		Bucket:      a.d.InverterBucket,
		Tags:        writer.DeviceTags(a.d.Device),
		Fields:      res.Map(),
		At:          res.At,
	})
	a.write(ctx, writer.Record{
		Measurement: writer.MeasurementStatus,
		Bucket:      a.d.InverterBucket,
		Tags:        writer.DeviceTags(a.d.Device),
		Fields:      a.d.InverterHealth.Snapshot().Fields(),
		At:          res.At,
	})
	return nil
}

// ControlCycle evaluates the controller and delivers its command.
// It does nothing until the first sample has been aggregated.
func (a *App) ControlCycle(ctx context.Context) error {
	snap := a.d.Aggregator.Snapshot()
	if snap.Samples == 0 {
		log.Ctx(ctx).InfoContext(ctx, "control skipped: no inverter samples yet")
		return nil
	}

	st, ok := a.d.Wallbox.Status()
	if !ok {
		return ErrNoWallboxStatus
	}
	if a.d.StatusMaxAge > 0 && a.now().Sub(st.UpdatedAt) > a.d.StatusMaxAge {
		return fmt.Errorf("%w: last update %s", ErrStaleWallboxStatus, st.UpdatedAt.Format(time.RFC3339))
	}

	a.write(ctx, writer.Record{
		Measurement: writer.MeasurementWallbox,
		Bucket:      a.d.WallboxBucket,
		Tags:        writer.DeviceTags(a.d.WallboxSerial),
		Fields:      st.Fields(),
		At:          a.now(),
	})

	d := a.d.Controller.Evaluate(ctx, charger.Input{
		MeanPPV:   snap.MeanPPV,
		MeanHouse: snap.MeanHouseConsumption,
		SOC:       snap.LatestSOC,
		CarState:  st.CarState,
		CarPowerW: st.PowerW,
	})

	logger := log.Ctx(ctx).With(
		slog.String("state", d.State.String()),
		slog.Float64("surplus", d.Surplus),
		slog.Int("amps", d.Command.Amps),
		slog.String("force", d.Command.Force.String()),
		slog.String("phase", d.Command.Phase.String()),
	)
	if !d.Send {
		logger.DebugContext(ctx, d.Reason)
		return nil
	}

	err := a.d.Commander.SendCommand(ctx, d.Command)
	a.d.Controller.Acknowledge(err)
	if err != nil {
		return fmt.Errorf("app: control: %w", err)
	}
	logger.InfoContext(ctx, d.Reason)
	return nil
}

// WallboxPowerCycle logs the current car power.
func (a *App) WallboxPowerCycle(ctx context.Context) error {
	st, ok := a.d.Wallbox.Status()
	if !ok {
		return nil
	}
	a.write(ctx, writer.Record{
		Measurement: writer.MeasurementWallbox,
		Bucket:      a.d.WallboxBucket,
		Tags:        writer.DeviceTags(a.d.WallboxSerial),
		Fields:      map[string]float64{"currentEnergy": st.PowerW},
		At:          a.now(),
	})
	return nil
}

// observeInverter records the poll outcome and publishes health changes.
func (a *App) observeInverter(ctx context.Context, err error) {
	snap, changed := a.d.InverterHealth.Observe(err)
	if a.d.StatusWriter == nil {
		return
	}
	if changed {
		log.Ctx(ctx).InfoContext(ctx, "inverter availability", slog.String("status", snap.Availability()))
	}
	if werr := a.d.StatusWriter.WriteStatus(ctx, snap); werr != nil {
		log.Ctx(ctx).WarnContext(ctx, "status publish failed", slog.Any("error", werr))
	}
}

// write delivers a record. Sink failures never fail a cycle.
func (a *App) write(ctx context.Context, rec writer.Record) {
	if err := a.d.Sink.Write(ctx, rec); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "telemetry write failed",
			slog.String("measurement", rec.Measurement),
			slog.Any("error", err),
		)
	}
}
