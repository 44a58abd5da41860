// Package progress turns day-advance events into completion and ETA
// estimates, and renders them for the terminal.
package progress

import (
	"time"

	"github.com/coswat-global/coswat-orch/internal/domain"
)

const (
	// DefaultWindowSize keeps roughly seven years of daily samples
	DefaultWindowSize = 2557
	// DefaultMinSamples is the number of samples needed before an ETA is reported
	DefaultMinSamples = 40
)

// Snapshot is the state of a run after one day-advance event
type Snapshot struct {
	Date          domain.SimulationDate
	DaysCompleted int
	TotalDays     int
	Samples       int
	ETA           time.Duration
	HasETA        bool
}

// Fraction returns completion in [0,1]
func (s Snapshot) Fraction() float64 {
	if s.TotalDays <= 0 {
		return 0
	}
	return float64(s.DaysCompleted) / float64(s.TotalDays)
}

// Remaining returns the number of days not yet simulated
func (s Snapshot) Remaining() int {
	return s.TotalDays - s.DaysCompleted
}

// Option configures a Tracker
type Option func(*Tracker)

// WithWindowSize overrides the sample window capacity
func WithWindowSize(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.samples = make([]time.Duration, n)
		}
	}
}

// WithMinSamples overrides the ETA stabilisation threshold
func WithMinSamples(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.minSamples = n
		}
	}
}

// Tracker keeps a bounded FIFO window of the wall-clock time between
// consecutive simulated days. The mean is taken over the window only, so the
// estimate follows recent throughput (e.g. contention from sibling runs)
// rather than the lifetime average.
type Tracker struct {
	totalDays  int
	minSamples int

	// ring buffer of inter-event durations
	samples []time.Duration
	head    int
	count   int
	sum     time.Duration

	prev     time.Time
	havePrev bool
	days     int
	lastDate domain.SimulationDate
}

// NewTracker creates a tracker for a run of totalDays simulated days
func NewTracker(totalDays int, opts ...Option) *Tracker {
	t := &Tracker{
		totalDays:  totalDays,
		minSamples: DefaultMinSamples,
		samples:    make([]time.Duration, DefaultWindowSize),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe records one day-advance at wall-clock time now
func (t *Tracker) Observe(date domain.SimulationDate, now time.Time) Snapshot {
	if t.havePrev {
		t.push(now.Sub(t.prev))
	}
	t.prev = now
	t.havePrev = true

	if t.days < t.totalDays {
		t.days++
	}
	t.lastDate = date

	return t.Snapshot()
}

func (t *Tracker) push(d time.Duration) {
	capacity := len(t.samples)
	if t.count == capacity {
		// evict oldest
		t.sum -= t.samples[t.head]
		t.samples[t.head] = d
		t.head = (t.head + 1) % capacity
	} else {
		t.samples[(t.head+t.count)%capacity] = d
		t.count++
	}
	t.sum += d
}

// Snapshot returns the current state without observing anything
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		Date:          t.lastDate,
		DaysCompleted: t.days,
		TotalDays:     t.totalDays,
		Samples:       t.count,
	}
	if t.count >= t.minSamples {
		s.ETA = t.Mean() * time.Duration(t.totalDays-t.days)
		s.HasETA = true
	}
	return s
}

// Mean returns the arithmetic mean of the current window
func (t *Tracker) Mean() time.Duration {
	if t.count == 0 {
		return 0
	}
	return t.sum / time.Duration(t.count)
}

// Samples returns the number of durations currently in the window
func (t *Tracker) Samples() int {
	return t.count
}

// Capacity returns the window size
func (t *Tracker) Capacity() int {
	return len(t.samples)
}

// DaysCompleted returns the number of simulated days observed
func (t *Tracker) DaysCompleted() int {
	return t.days
}
