package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/executor"
	"github.com/coswat-global/coswat-orch/internal/progress"
	"github.com/google/uuid"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidConcurrency is returned when the pool bound is not positive
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
	// ErrDuplicateRegion is returned when a batch names a region twice
	ErrDuplicateRegion = errors.New("duplicate region in batch")
	// ErrEmptyBatch is returned when a batch has no units
	ErrEmptyBatch = errors.New("batch has no units")
)

// ResultHook observes each result as its unit finishes. Hooks run on the
// worker goroutine and must be safe for concurrent use.
type ResultHook func(batch *domain.Batch, result domain.RunResult)

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithResultHook adds a hook called once per finished unit
func WithResultHook(h ResultHook) Option {
	return func(o *Orchestrator) {
		o.hooks = append(o.hooks, h)
	}
}

// WithReporter sets the reporter that sees results the orchestrator makes
// itself: units cancelled before launch and runner panics.
func WithReporter(r progress.Reporter) Option {
	return func(o *Orchestrator) {
		o.reporter = r
	}
}

// WithIDGenerator overrides batch ID generation
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		o.newID = fn
	}
}

// WithClock overrides the time source for batch timestamps
func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = fn
	}
}

// Orchestrator runs independent units under a bounded worker pool
type Orchestrator struct {
	runner      executor.Runner
	concurrency int
	hooks       []ResultHook
	reporter    progress.Reporter
	newID       func() string
	now         func() time.Time
}

// NewOrchestrator creates an orchestrator running at most concurrency units
// at once.
func NewOrchestrator(runner executor.Runner, concurrency int, opts ...Option) (*Orchestrator, error) {
	if concurrency <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, concurrency)
	}
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	o := &Orchestrator{
		runner:      runner,
		concurrency: concurrency,
		reporter:    progress.NopReporter{},
		newID:       uuid.NewString,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.reporter == nil {
		o.reporter = progress.NopReporter{}
	}
	return o, nil
}

// Concurrency returns the pool bound
func (o *Orchestrator) Concurrency() int {
	return o.concurrency
}

// Validate rejects batches that cannot be dispatched
func Validate(units []domain.RunUnit) error {
	if len(units) == 0 {
		return ErrEmptyBatch
	}
	seen := make(map[string]bool, len(units))
	for _, u := range units {
		if err := u.Validate(); err != nil {
			return err
		}
		if seen[u.Region] {
			return fmt.Errorf("%w: %s", ErrDuplicateRegion, u.Region)
		}
		seen[u.Region] = true
	}
	return nil
}

// RunBatch runs every unit and blocks until all have a result. A failing
// unit never cancels its siblings; only ctx cancellation stops the batch,
// in which case queued units are recorded as cancelled without launching.
func (o *Orchestrator) RunBatch(ctx context.Context, name string, units []domain.RunUnit) (*domain.Batch, error) {
	if err := Validate(units); err != nil {
		return nil, err
	}

	b := domain.NewBatch(o.newID(), name, o.concurrency, units)
	b.StartedAt = o.now()

	log.Info().Str("component", "batch").Str("batch", b.ID).Str("name", name).
		Int("units", len(units)).Int("concurrency", o.concurrency).Msg("batch started")

	// a plain Group: one unit's failure must not cancel the others
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for _, unit := range units {
		g.Go(func() error {
			o.record(b, o.runUnit(ctx, unit))
			return nil
		})
	}
	g.Wait()

	b.FinishedAt = o.now()
	s := b.Summary()
	log.Info().Str("component", "batch").Str("batch", b.ID).
		Int("completed", s.Completed).Int("failed", s.Failed).Int("timed_out", s.TimedOut).
		Dur("elapsed", b.Duration()).Msg("batch finished")

	return b, nil
}

// runUnit runs one unit, converting a panic in the runner into a failure
func (o *Orchestrator) runUnit(ctx context.Context, unit domain.RunUnit) (result domain.RunResult) {
	started := o.now()
	if ctx.Err() != nil {
		r := domain.Failed(unit, domain.FailureCancelled, "cancelled before launch")
		r.ExitCode = -1
		return executor.Finish(o.reporter, r, started, started)
	}

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			log.Error().Str("component", "batch").Str("region", unit.Region).
				Str("panic", fmt.Sprintf("%v", r)).Str("stack", string(buf[:n])).
				Msg("recovered from panic in runner")
			failed := domain.Failed(unit, domain.FailureRuntime, fmt.Sprintf("panic: %v", r))
			failed.ExitCode = -1
			result = executor.Finish(o.reporter, failed, started, o.now())
		}
	}()

	return o.runner.Run(ctx, unit)
}

func (o *Orchestrator) record(b *domain.Batch, r domain.RunResult) {
	if !b.Record(r) {
		return
	}
	for _, h := range o.hooks {
		o.runHook(h, b, r)
	}
}

// runHook calls h, logging a panic instead of letting it reach the worker
func (o *Orchestrator) runHook(h ResultHook, b *domain.Batch, r domain.RunResult) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("component", "batch").Str("batch", b.ID).Str("region", r.Unit.Region).
				Str("panic", fmt.Sprintf("%v", p)).Msg("recovered from panic in result hook")
		}
	}()
	h(b, r)
}
