// internal/telemetry/window.go
package telemetry

// Window is a bounded FIFO of the most recent samples of one scalar.
// Oldest is evicted first. Not safe for concurrent use on its own;
// the Aggregator serializes access.
type Window struct {
	buf  []float64
	next int
	size int
	sum  float64
}

// NewWindow returns an empty window holding at most capacity samples.
// A capacity below 1 is treated as 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]float64, capacity)}
}

// Push appends v, evicting the oldest sample when full.
func (w *Window) Push(v float64) {
	if w.size == len(w.buf) {
		w.sum -= w.buf[w.next]
	} else {
		w.size++
	}
	w.buf[w.next] = v
	w.sum += v
	w.next = (w.next + 1) % len(w.buf)

	// Recompute on wrap to keep the running sum from drifting.
	if w.next == 0 {
		w.sum = 0
		for i := 0; i < w.size; i++ {
			w.sum += w.buf[i]
		}
	}
}

// Len returns the number of samples held.
func (w *Window) Len() int { return w.size }

// Cap returns the capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Mean returns the arithmetic mean, or 0 when empty.
func (w *Window) Mean() float64 {
	if w.size == 0 {
		return 0
	}
	return w.sum / float64(w.size)
}

// Values returns the samples oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, 0, w.size)
	start := 0
	if w.size == len(w.buf) {
		start = w.next
	}
	for i := 0; i < w.size; i++ {
		out = append(out, w.buf[(start+i)%len(w.buf)])
	}
	return out
}
