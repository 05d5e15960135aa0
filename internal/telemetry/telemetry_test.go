// internal/telemetry/telemetry_test.go
package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_EvictsOldestFirst(t *testing.T) {
	w := NewWindow(3)
	assert.Equal(t, 0.0, w.Mean())

	for _, v := range []float64{1, 2, 3, 4} {
		w.Push(v)
	}

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []float64{2, 3, 4}, w.Values())
	assert.InDelta(t, 3.0, w.Mean(), 1e-9)
}

func TestWindow_PartialFill(t *testing.T) {
	w := NewWindow(5)
	w.Push(10)
	w.Push(20)

	assert.Equal(t, 2, w.Len())
	assert.Equal(t, 5, w.Cap())
	assert.Equal(t, []float64{10, 20}, w.Values())
	assert.InDelta(t, 15.0, w.Mean(), 1e-9)
}

func TestWindow_MinimumCapacity(t *testing.T) {
	w := NewWindow(0)
	w.Push(1)
	w.Push(7)
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, 7.0, w.Mean())
}

func TestAggregator_ColdStart(t *testing.T) {
	a := NewAggregator(5)

	assert.Equal(t, 0.0, a.MeanPPV())
	assert.Equal(t, 0.0, a.MeanHouseConsumption())
	assert.Equal(t, 0.0, a.LatestSOC())
	assert.Equal(t, 0, a.Snapshot().Samples)
}

func TestAggregator_NPlusOne(t *testing.T) {
	const n = 5
	a := NewAggregator(n)

	for i := 1; i <= n+1; i++ {
		a.Observe(Sample{PPV: float64(i * 100), HouseConsumption: float64(i * 10), BatterySOC: float64(i)})
	}

	assert.Equal(t, n, a.Len())
	// 200..600
	assert.InDelta(t, 400.0, a.MeanPPV(), 1e-9)
	// 20..60
	assert.InDelta(t, 40.0, a.MeanHouseConsumption(), 1e-9)
	// SOC is latest, not averaged
	assert.Equal(t, 6.0, a.LatestSOC())

	snap := a.Snapshot()
	assert.Equal(t, n+1, snap.Samples)
}

func TestAggregator_ConcurrentObserveAndSnapshot(t *testing.T) {
	a := NewAggregator(10)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			a.Observe(Sample{PPV: 1000, HouseConsumption: 500, BatterySOC: 50})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s := a.Snapshot()
			if s.Samples > 0 {
				// every sample is identical, so any consistent view has these means
				assert.Equal(t, 1000.0, s.MeanPPV)
				assert.Equal(t, 500.0, s.MeanHouseConsumption)
			}
		}
	}()
	wg.Wait()
}

func TestFromValues(t *testing.T) {
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	values := map[string]float64{
		"pv1_power":    1000,
		"pv2_power":    1500,
		"pv3_power":    0,
		"pv4_power":    500,
		"pbattery1":    -800, // charging
		"active_power": 1200, // exporting
		"battery_soc":  64,
	}

	s, err := FromValues(values, DefaultMapping(), at)
	require.NoError(t, err)

	assert.Equal(t, 3000.0, s.PPV)
	assert.Equal(t, 3000.0-800-1200, s.HouseConsumption)
	assert.Equal(t, 64.0, s.BatterySOC)
	assert.Equal(t, at, s.At)
}

func TestFromValues_Missing(t *testing.T) {
	values := map[string]float64{"pv1_power": 1000}

	_, err := FromValues(values, DefaultMapping(), time.Now())
	assert.ErrorIs(t, err, ErrMissingValue)

	_, err = FromValues(values, Mapping{}, time.Now())
	assert.ErrorIs(t, err, ErrMissingValue)
}
