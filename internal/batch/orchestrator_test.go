package batch

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// stubRunner fails the configured regions and tracks peak concurrency
type stubRunner struct {
	fail    map[string]bool
	panics  map[string]bool
	delay   time.Duration
	active  atomic.Int32
	peak    atomic.Int32
	mu      sync.Mutex
	started []string
}

func (s *stubRunner) Run(ctx context.Context, unit domain.RunUnit) domain.RunResult {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	s.mu.Lock()
	s.started = append(s.started, unit.Region)
	s.mu.Unlock()

	time.Sleep(s.delay)
	if s.panics[unit.Region] {
		panic("boom")
	}
	if s.fail[unit.Region] {
		return domain.Failed(unit, domain.FailureRuntime, `error signature "forrtl: severe": crash`)
	}
	return domain.Completed(unit, unit.TotalDays())
}

// finishRecorder collects the results handed to Finish
type finishRecorder struct {
	progress.NopReporter
	mu       sync.Mutex
	finished []domain.RunResult
}

func (r *finishRecorder) Finish(result domain.RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, result)
}

func units(regions ...string) []domain.RunUnit {
	out := make([]domain.RunUnit, len(regions))
	for i, r := range regions {
		out[i] = domain.RunUnit{Region: r, WorkDir: "/tmp/" + r, Executable: "swatplus", StartYear: 2001, EndYear: 2001}
	}
	return out
}

func TestNewOrchestrator_RejectsInvalidConcurrency(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := NewOrchestrator(&stubRunner{}, n)
		assert.ErrorIs(t, err, ErrInvalidConcurrency)
	}
	_, err := NewOrchestrator(nil, 1)
	assert.Error(t, err)
}

func TestRunBatch_FiveUnitsTwoFailing(t *testing.T) {
	runner := &stubRunner{
		fail:  map[string]bool{"asia": true, "europe": true},
		delay: 20 * time.Millisecond,
	}
	o, err := NewOrchestrator(runner, 2)
	require.NoError(t, err)

	b, err := o.RunBatch(context.Background(), "global", units("africa", "asia", "europe", "oceania", "south-america"))
	require.NoError(t, err)

	assert.Equal(t, 5, b.Len())
	s := b.Summary()
	assert.Equal(t, 3, s.Completed)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 0, s.Pending)
	assert.LessOrEqual(t, runner.peak.Load(), int32(2))
	assert.Len(t, runner.started, 5)

	r, ok := b.Result("asia")
	require.True(t, ok)
	assert.Equal(t, domain.FailureRuntime, r.Failure)
	assert.False(t, b.FinishedAt.Before(b.StartedAt))
	assert.NotEmpty(t, b.ID)
}

func TestRunBatch_ConcurrencyBound(t *testing.T) {
	for _, limit := range []int{1, 3} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			runner := &stubRunner{delay: 10 * time.Millisecond}
			o, err := NewOrchestrator(runner, limit)
			require.NoError(t, err)

			b, err := o.RunBatch(context.Background(), "b", units("a", "b", "c", "d", "e", "f", "g"))
			require.NoError(t, err)
			assert.Equal(t, 7, b.Len())
			assert.LessOrEqual(t, runner.peak.Load(), int32(limit))
		})
	}
}

func TestRunBatch_PanicIsIsolated(t *testing.T) {
	runner := &stubRunner{panics: map[string]bool{"asia": true}}
	o, err := NewOrchestrator(runner, 2)
	require.NoError(t, err)

	b, err := o.RunBatch(context.Background(), "b", units("africa", "asia", "europe"))
	require.NoError(t, err)

	assert.Equal(t, 3, b.Len())
	r, _ := b.Result("asia")
	assert.Equal(t, domain.RunFailed, r.Status)
	assert.Contains(t, r.Reason, "panic: boom")
	assert.Equal(t, 2, b.Summary().Completed)
}

func TestRunBatch_RejectsBeforeDispatch(t *testing.T) {
	runner := &stubRunner{}
	o, err := NewOrchestrator(runner, 2)
	require.NoError(t, err)

	_, err = o.RunBatch(context.Background(), "b", units("africa", "asia", "africa"))
	assert.ErrorIs(t, err, ErrDuplicateRegion)

	bad := units("africa")
	bad[0].Executable = ""
	_, err = o.RunBatch(context.Background(), "b", bad)
	assert.ErrorIs(t, err, domain.ErrInvalidRunUnit)

	_, err = o.RunBatch(context.Background(), "b", nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	assert.Empty(t, runner.started)
}

func TestRunBatch_CancelledContextRecordsEveryUnit(t *testing.T) {
	runner := &stubRunner{}
	o, err := NewOrchestrator(runner, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b, err := o.RunBatch(ctx, "b", units("a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, 3, b.Len())
	for _, r := range b.Results() {
		assert.Equal(t, domain.FailureCancelled, r.Failure)
	}
	assert.Empty(t, runner.started)
}

func TestRunBatch_CancelledUnitsAreStampedAndReported(t *testing.T) {
	clock := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	rep := &finishRecorder{}
	o, err := NewOrchestrator(&stubRunner{}, 2,
		WithReporter(rep),
		WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b, err := o.RunBatch(ctx, "b", units("a", "b", "c"))
	require.NoError(t, err)

	for _, r := range b.Results() {
		assert.Equal(t, clock, r.StartedAt)
		assert.Equal(t, clock, r.FinishedAt)
		assert.Equal(t, "cancelled before launch", r.Reason)
	}
	assert.Len(t, rep.finished, 3)
}

func TestRunBatch_PanicIsReported(t *testing.T) {
	rep := &finishRecorder{}
	o, err := NewOrchestrator(&stubRunner{panics: map[string]bool{"asia": true}}, 1, WithReporter(rep))
	require.NoError(t, err)

	b, err := o.RunBatch(context.Background(), "b", units("asia"))
	require.NoError(t, err)

	r, _ := b.Result("asia")
	assert.False(t, r.StartedAt.IsZero())
	require.Len(t, rep.finished, 1)
	assert.Contains(t, rep.finished[0].Reason, "panic: boom")
}

func TestRunBatch_PanickingHookIsIsolated(t *testing.T) {
	var calls atomic.Int32
	o, err := NewOrchestrator(&stubRunner{}, 2,
		WithResultHook(func(b *domain.Batch, r domain.RunResult) {
			if r.Unit.Region == "b" {
				panic("store unavailable")
			}
		}),
		WithResultHook(func(b *domain.Batch, r domain.RunResult) {
			calls.Add(1)
		}))
	require.NoError(t, err)

	b, err := o.RunBatch(context.Background(), "b", units("a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, 3, b.Summary().Completed)
	assert.Equal(t, int32(3), calls.Load(), "later hooks still run after a panicking one")
}

func TestRunBatch_ResultHook(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	o, err := NewOrchestrator(&stubRunner{fail: map[string]bool{"b": true}}, 3,
		WithIDGenerator(func() string { return "fixed-id" }),
		WithResultHook(func(b *domain.Batch, r domain.RunResult) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, "fixed-id", b.ID)
			seen[r.Unit.Region]++
		}))
	require.NoError(t, err)

	_, err = o.RunBatch(context.Background(), "b", units("a", "b", "c", "d"))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1, "d": 1}, seen)
}

func TestWriteReport_ListsEveryUnit(t *testing.T) {
	o, err := NewOrchestrator(&stubRunner{fail: map[string]bool{"asia": true}}, 2)
	require.NoError(t, err)
	b, err := o.RunBatch(context.Background(), "global", units("africa", "asia"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, b))
	out := buf.String()

	assert.Contains(t, out, "1 completed, 1 failed, 0 timed out")
	assert.Contains(t, out, "REGION")
	assert.Contains(t, out, "africa")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "failed (runtime)")
	assert.Contains(t, out, "365/365")
	assert.Equal(t, 2+1, strings.Count(out[strings.Index(out, "REGION"):], "\n"))
}

func TestWriteYAML(t *testing.T) {
	o, err := NewOrchestrator(&stubRunner{fail: map[string]bool{"asia": true}}, 1,
		WithIDGenerator(func() string { return "b-1" }))
	require.NoError(t, err)
	b, err := o.RunBatch(context.Background(), "global", units("africa", "asia"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, b))

	var got Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "b-1", got.ID)
	assert.Equal(t, 1, got.Completed)
	assert.Equal(t, 1, got.Failed)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "2001-2001", got.Results[0].Period)
	for _, r := range got.Results {
		if r.Region == "asia" {
			assert.Equal(t, "runtime", r.Failure)
		}
	}
}
