// internal/telemetry/aggregator.go
package telemetry

import (
	"sync"
	"time"
)

// DefaultWindowSize is used when no size is configured.
const DefaultWindowSize = 10

// Snapshot is a consistent view of the aggregator at one instant.
type Snapshot struct {
	MeanPPV              float64
	MeanHouseConsumption float64
	LatestSOC            float64
	Samples              int // total observed since start
	LastAt               time.Time
}

// Aggregator keeps rolling means of PV power and house consumption and
// the most recent battery SOC.
// Written by the fast read task, read by the control task.
type Aggregator struct {
	mu sync.Mutex

	ppv   *Window
	house *Window

	meanPPV   float64
	meanHouse float64
	soc       float64
	count     int
	lastAt    time.Time
}

// NewAggregator creates an aggregator with windows of size n.
func NewAggregator(n int) *Aggregator {
	if n <= 0 {
		n = DefaultWindowSize
	}
	return &Aggregator{
		ppv:   NewWindow(n),
		house: NewWindow(n),
	}
}

// Observe appends one sample. SOC is replaced, not averaged.
func (a *Aggregator) Observe(s Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ppv.Push(s.PPV)
	a.house.Push(s.HouseConsumption)
	a.meanPPV = a.ppv.Mean()
	a.meanHouse = a.house.Mean()
	a.soc = s.BatterySOC
	a.count++
	a.lastAt = s.At
}

// MeanPPV returns the rolling mean PV power, 0 before the first sample.
func (a *Aggregator) MeanPPV() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.meanPPV
}

// MeanHouseConsumption returns the rolling mean house consumption, 0 before the first sample.
func (a *Aggregator) MeanHouseConsumption() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.meanHouse
}

// LatestSOC returns the most recent battery SOC, 0 before the first sample.
func (a *Aggregator) LatestSOC() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.soc
}

// Snapshot returns all readers under one lock.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		MeanPPV:              a.meanPPV,
		MeanHouseConsumption: a.meanHouse,
		LatestSOC:            a.soc,
		Samples:              a.count,
		LastAt:               a.lastAt,
	}
}

// Len returns the current window fill.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ppv.Len()
}
