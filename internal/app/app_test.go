// internal/app/app_test.go
package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/surplus-charger/internal/charger"
	"github.com/tamzrod/surplus-charger/internal/config"
	"github.com/tamzrod/surplus-charger/internal/poller"
	"github.com/tamzrod/surplus-charger/internal/register"
	"github.com/tamzrod/surplus-charger/internal/status"
	"github.com/tamzrod/surplus-charger/internal/telemetry"
	"github.com/tamzrod/surplus-charger/internal/wallbox"
	"github.com/tamzrod/surplus-charger/internal/writer"
)

type commanderMock struct {
	mock.Mock
}

func (m *commanderMock) SendCommand(ctx context.Context, cmd charger.Command) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

type fakePoller struct {
	results map[string]poller.PollResult
	calls   []string
}

func (f *fakePoller) PollOnce(_ context.Context, s register.Schema) poller.PollResult {
	f.calls = append(f.calls, s.Name)
	return f.results[s.Name]
}

type fakeWallbox struct {
	st wallbox.Status
	ok bool
}

func (f *fakeWallbox) Status() (wallbox.Status, bool) { return f.st, f.ok }

type recordingSink struct {
	recs []writer.Record
	err  error
}

func (r *recordingSink) Write(_ context.Context, rec writer.Record) error {
	r.recs = append(r.recs, rec)
	return r.err
}

type recordingStatus struct {
	snaps []status.Snapshot
}

func (r *recordingStatus) WriteStatus(_ context.Context, s status.Snapshot) error {
	r.snaps = append(r.snaps, s)
	return nil
}

func vals(m map[string]float64) []register.DecodedValue {
	out := make([]register.DecodedValue, 0, len(m))
	for k, v := range m {
		out = append(out, register.DecodedValue{Name: k, Value: v})
	}
	return out
}

func fastResult(pv, house, soc float64) poller.PollResult {
	// house = ppv + battery - grid, battery 0
	return poller.PollResult{
		Device: "inv1",
		Schema: "fast",
		At:     time.Unix(1000, 0),
		Values: vals(map[string]float64{
			"pv1_power":    pv,
			"pv2_power":    0,
			"pv3_power":    0,
			"pv4_power":    0,
			"pbattery1":    0,
			"active_power": pv - house,
			"battery_soc":  soc,
		}),
	}
}

type harness struct {
	app    *App
	poller *fakePoller
	wb     *fakeWallbox
	cmd    *commanderMock
	sink   *recordingSink
	status *recordingStatus
	agg    *telemetry.Aggregator
	ctrl   *charger.Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		poller: &fakePoller{results: map[string]poller.PollResult{}},
		wb:     &fakeWallbox{},
		cmd:    &commanderMock{},
		sink:   &recordingSink{},
		status: &recordingStatus{},
		agg:    telemetry.NewAggregator(10),
		ctrl:   charger.New(charger.DefaultConfig()),
	}

	a, err := New(Deps{
		Device:         "inv1",
		Poller:         h.poller,
		Fast:           register.Schema{Name: "fast"},
		Slow:           register.Schema{Name: "slow"},
		Mapping:        telemetry.DefaultMapping(),
		Aggregator:     h.agg,
		Controller:     h.ctrl,
		Wallbox:        h.wb,
		Commander:      h.cmd,
		WallboxSerial:  "254959",
		StatusMaxAge:   2 * time.Minute,
		Sink:           h.sink,
		InverterBucket: "goodwe",
		WallboxBucket:  "goe",
		StatusWriter:   h.status,
	})
	require.NoError(t, err)
	a.now = func() time.Time { return time.Unix(2000, 0) }
	h.app = a
	return h
}

func TestFastCycle_FeedsAggregatorAndSink(t *testing.T) {
	h := newHarness(t)
	h.poller.results["fast"] = fastResult(5000, 1200, 55)

	require.NoError(t, h.app.FastCycle(context.Background()))

	snap := h.agg.Snapshot()
	assert.Equal(t, 1, snap.Samples)
	assert.Equal(t, 5000.0, snap.MeanPPV)
	assert.Equal(t, 1200.0, snap.MeanHouseConsumption)
	assert.Equal(t, 55.0, snap.LatestSOC)

	require.Len(t, h.sink.recs, 1)
	rec := h.sink.recs[0]
	assert.Equal(t, writer.MeasurementInverter, rec.Measurement)
	assert.Equal(t, "goodwe", rec.Bucket)
	assert.Equal(t, "inv1", rec.Tags["device"])
	assert.Equal(t, 5000.0, rec.Fields["ppv"])
	assert.Equal(t, 1200.0, rec.Fields["house_consumption"])
	assert.Equal(t, 55.0, rec.Fields["battery_soc"])

	require.Len(t, h.status.snaps, 1)
	assert.Equal(t, status.HealthOK, h.status.snaps[0].Health)
}

func TestFastCycle_ReadFailureLeavesAggregatorUntouched(t *testing.T) {
	h := newHarness(t)
	h.poller.results["fast"] = poller.PollResult{Err: &poller.TransportError{Device: "inv1", Err: errors.New("i/o timeout")}}

	err := h.app.FastCycle(context.Background())

	var te *poller.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 0, h.agg.Snapshot().Samples)
	assert.Empty(t, h.sink.recs)
	require.Len(t, h.status.snaps, 1)
	assert.Equal(t, status.HealthError, h.status.snaps[0].Health)
	assert.Equal(t, status.Offline, h.status.snaps[0].Availability())
}

func TestFastCycle_MissingValueSkipsSample(t *testing.T) {
	h := newHarness(t)
	res := fastResult(5000, 1200, 55)
	res.Values = res.Values[:2]
	h.poller.results["fast"] = res

	err := h.app.FastCycle(context.Background())
	assert.ErrorIs(t, err, telemetry.ErrMissingValue)
	assert.Equal(t, 0, h.agg.Snapshot().Samples)
}

func TestFastCycle_SinkFailureDoesNotFailCycle(t *testing.T) {
	h := newHarness(t)
	h.sink.err = errors.New("influx down")
	h.poller.results["fast"] = fastResult(5000, 1200, 55)

	assert.NoError(t, h.app.FastCycle(context.Background()))
	assert.Equal(t, 1, h.agg.Snapshot().Samples)
}

func TestSlowCycle(t *testing.T) {
	h := newHarness(t)
	h.poller.results["slow"] = poller.PollResult{
		At:     time.Unix(1000, 0),
		Values: vals(map[string]float64{"pv_energy_total": 12345.6}),
	}

	require.NoError(t, h.app.SlowCycle(context.Background()))
	require.Len(t, h.sink.recs, 2)
	assert.Equal(t, 12345.6, h.sink.recs[0].Fields["pv_energy_total"])
	assert.Equal(t, writer.MeasurementStatus, h.sink.recs[1].Measurement)
	assert.Equal(t, []string{"slow"}, h.poller.calls)

	h.poller.results["slow"] = poller.PollResult{Err: errors.New("broken pipe")}
	assert.Error(t, h.app.SlowCycle(context.Background()))
}

func TestControlCycle_ColdStartDoesNothing(t *testing.T) {
	h := newHarness(t)
	h.wb.ok = true

	require.NoError(t, h.app.ControlCycle(context.Background()))
	h.cmd.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything)
	assert.Empty(t, h.sink.recs)
}

func TestControlCycle_NoWallboxStatus(t *testing.T) {
	h := newHarness(t)
	h.agg.Observe(telemetry.Sample{PPV: 6000, HouseConsumption: 1200, BatterySOC: 50})

	assert.ErrorIs(t, h.app.ControlCycle(context.Background()), ErrNoWallboxStatus)
	h.cmd.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything)
}

func TestControlCycle_StaleWallboxStatus(t *testing.T) {
	h := newHarness(t)
	h.agg.Observe(telemetry.Sample{PPV: 6000, HouseConsumption: 1200, BatterySOC: 50})
	h.wb.st = wallbox.Status{UpdatedAt: time.Unix(100, 0)}
	h.wb.ok = true

	assert.ErrorIs(t, h.app.ControlCycle(context.Background()), ErrStaleWallboxStatus)
}

func TestControlCycle_SendsCommand(t *testing.T) {
	h := newHarness(t)
	h.agg.Observe(telemetry.Sample{PPV: 6000, HouseConsumption: 1200, BatterySOC: 50})
	h.wb.st = wallbox.Status{CarState: charger.CarIdle, UpdatedAt: time.Unix(1990, 0)}
	h.wb.ok = true

	want := charger.Command{Amps: 7, Force: charger.ForceNeutral, Phase: charger.PhaseAutomatic}
	h.cmd.On("SendCommand", mock.Anything, want).Return(nil).Once()

	require.NoError(t, h.app.ControlCycle(context.Background()))
	h.cmd.AssertExpectations(t)

	assert.Equal(t, charger.StateCharging3Phase, h.ctrl.State())
	require.Len(t, h.sink.recs, 1)
	assert.Equal(t, writer.MeasurementWallbox, h.sink.recs[0].Measurement)
	assert.Equal(t, "254959", h.sink.recs[0].Tags["device"])
}

func TestControlCycle_DeliveryFailureReissuesStop(t *testing.T) {
	h := newHarness(t)
	h.wb.st = wallbox.Status{CarState: charger.CarCharging, UpdatedAt: time.Unix(1990, 0)}
	h.wb.ok = true

	// start charging
	h.agg.Observe(telemetry.Sample{PPV: 6000, HouseConsumption: 1200, BatterySOC: 50})
	h.cmd.On("SendCommand", mock.Anything, mock.MatchedBy(func(c charger.Command) bool { return !c.IsStop() })).Return(nil).Once()
	require.NoError(t, h.app.ControlCycle(context.Background()))

	// surplus collapses; the stop is lost once
	for i := 0; i < 10; i++ {
		h.agg.Observe(telemetry.Sample{PPV: 0, HouseConsumption: 900, BatterySOC: 50})
	}
	isStop := mock.MatchedBy(func(c charger.Command) bool { return c.IsStop() })
	h.cmd.On("SendCommand", mock.Anything, isStop).Return(&wallbox.DeliveryError{Topic: "frc/set", Err: errors.New("timeout")}).Once()
	err := h.app.ControlCycle(context.Background())
	var de *wallbox.DeliveryError
	require.ErrorAs(t, err, &de)

	// re-issued, then suppressed
	h.cmd.On("SendCommand", mock.Anything, isStop).Return(nil).Once()
	require.NoError(t, h.app.ControlCycle(context.Background()))
	require.NoError(t, h.app.ControlCycle(context.Background()))

	h.cmd.AssertExpectations(t)
	h.cmd.AssertNumberOfCalls(t, "SendCommand", 3)
	assert.Equal(t, charger.StateIdle, h.ctrl.State())
}

func TestWallboxPowerCycle(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.app.WallboxPowerCycle(context.Background()))
	assert.Empty(t, h.sink.recs, "nothing to log before the first status")

	h.wb.st = wallbox.Status{PowerW: 6983}
	h.wb.ok = true
	require.NoError(t, h.app.WallboxPowerCycle(context.Background()))
	require.Len(t, h.sink.recs, 1)
	assert.Equal(t, map[string]float64{"currentEnergy": 6983}, h.sink.recs[0].Fields)
	assert.Equal(t, "goe", h.sink.recs[0].Bucket)
}

func TestTasks(t *testing.T) {
	h := newHarness(t)
	cfg := config.ScheduleConfig{
		FastIntervalMs:    2000,
		SlowIntervalMs:    10000,
		ControlIntervalMs: 30000,
		WallboxIntervalMs: 2000,
		CycleTimeoutMs:    10000,
	}

	tasks, health := h.app.Tasks(cfg)
	require.Len(t, tasks, 4)
	require.Len(t, health, 4)

	byName := map[string]time.Duration{}
	for _, task := range tasks {
		byName[task.Name] = task.Timeout
		assert.NotNil(t, task.Health)
	}
	assert.Equal(t, 2*time.Second, byName[TaskFast], "timeout capped by interval")
	assert.Equal(t, 10*time.Second, byName[TaskControl])
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}
