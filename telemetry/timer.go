package telemetry

import (
	"fmt"
	"time"
)

// Timing is the accumulated time spent in one named stage.
type Timing struct {
	Name    string
	Elapsed time.Duration
	Calls   int
}

func (t Timing) String() string {
	return fmt.Sprintf("%s: %.2fms (%d)", t.Name, float64(t.Elapsed.Microseconds())/1000, t.Calls)
}

// Timer accumulates stage durations until Reset. Stages are reported in the
// order they were first started.
type Timer struct {
	now     func() time.Time
	started map[string]time.Time
	totals  map[string]*Timing
	order   []string
}

// NewTimer returns an empty timer using the wall clock.
func NewTimer() *Timer {
	return &Timer{
		now:     time.Now,
		started: make(map[string]time.Time),
		totals:  make(map[string]*Timing),
	}
}

// Start begins timing stage name.
func (t *Timer) Start(name string) {
	t.started[name] = t.now()
}

// Stop ends the running stage name. Stopping a stage that was never
// started does nothing.
func (t *Timer) Stop(name string) {
	begin, ok := t.started[name]
	if !ok {
		return
	}
	delete(t.started, name)
	total, ok := t.totals[name]
	if !ok {
		total = &Timing{Name: name}
		t.totals[name] = total
		t.order = append(t.order, name)
	}
	total.Elapsed += t.now().Sub(begin)
	total.Calls++
}

// Track starts stage name and returns the function that stops it.
func (t *Timer) Track(name string) func() {
	t.Start(name)
	return func() { t.Stop(name) }
}

// Results returns the accumulated timings.
func (t *Timer) Results() []Timing {
	out := make([]Timing, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, *t.totals[name])
	}
	return out
}

// Reset clears every accumulated timing.
func (t *Timer) Reset() {
	t.started = make(map[string]time.Time)
	t.totals = make(map[string]*Timing)
	t.order = nil
}
