package domain

import (
	"sort"
	"sync"
	"time"
)

// Batch is a set of RunUnits executed together under bounded concurrency.
// Results are added as units finish; Order records completion order.
type Batch struct {
	ID          string
	Name        string
	Concurrency int
	Units       []RunUnit
	StartedAt   time.Time
	FinishedAt  time.Time

	results map[string]RunResult
	order   []string
	mu      sync.Mutex
}

// BatchSummary counts outcomes in a batch
type BatchSummary struct {
	Total     int
	Completed int
	Failed    int
	TimedOut  int
	Pending   int
}

// NewBatch creates an empty batch for the given units
func NewBatch(id, name string, concurrency int, units []RunUnit) *Batch {
	return &Batch{
		ID:          id,
		Name:        name,
		Concurrency: concurrency,
		Units:       units,
		results:     make(map[string]RunResult, len(units)),
	}
}

// Record stores the result for a unit. A second result for the same
// region is ignored so every unit keeps exactly one entry.
func (b *Batch) Record(r RunResult) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.results[r.Unit.Region]; exists {
		return false
	}
	b.results[r.Unit.Region] = r
	b.order = append(b.order, r.Unit.Region)
	return true
}

// Result returns the result for a region, if recorded
func (b *Batch) Result(region string) (RunResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.results[region]
	return r, ok
}

// Results returns all recorded results in completion order
func (b *Batch) Results() []RunResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RunResult, 0, len(b.order))
	for _, region := range b.order {
		out = append(out, b.results[region])
	}
	return out
}

// ResultsByRegion returns results sorted by region name
func (b *Batch) ResultsByRegion() []RunResult {
	out := b.Results()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Unit.Region < out[j].Unit.Region
	})
	return out
}

// Order returns region names in completion order
func (b *Batch) Order() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Len returns the number of recorded results
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.results)
}

// Summary counts outcomes
func (b *Batch) Summary() BatchSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := BatchSummary{Total: len(b.Units)}
	for _, r := range b.results {
		switch r.Status {
		case RunCompleted:
			s.Completed++
		case RunTimedOut:
			s.TimedOut++
		default:
			s.Failed++
		}
	}
	s.Pending = s.Total - len(b.results)
	return s
}

// Duration returns how long the batch ran
func (b *Batch) Duration() time.Duration {
	if b.StartedAt.IsZero() {
		return 0
	}
	if b.FinishedAt.IsZero() {
		return time.Since(b.StartedAt)
	}
	return b.FinishedAt.Sub(b.StartedAt)
}
