package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func day(n int) domain.SimulationDate {
	d := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return domain.SimulationDate{Day: d.Day(), Month: int(d.Month()), Year: d.Year()}
}

func TestTracker_FirstObservationHasNoSample(t *testing.T) {
	tr := NewTracker(365)

	snap := tr.Observe(day(0), t0)

	assert.Equal(t, 1, snap.DaysCompleted)
	assert.Equal(t, 0, snap.Samples)
	assert.False(t, snap.HasETA)
	assert.Equal(t, time.Duration(0), snap.ETA)
}

func TestTracker_ETAThreshold(t *testing.T) {
	tr := NewTracker(365)
	now := t0
	tr.Observe(day(0), now)

	// samples 1..39: no ETA
	for i := 1; i < DefaultMinSamples; i++ {
		now = now.Add(time.Second)
		snap := tr.Observe(day(i), now)
		require.Equal(t, i, snap.Samples)
		assert.False(t, snap.HasETA, "sample %d should not yield an ETA", i)
	}

	// 40th sample: ETA defined
	now = now.Add(time.Second)
	snap := tr.Observe(day(DefaultMinSamples), now)
	require.Equal(t, DefaultMinSamples, snap.Samples)
	require.True(t, snap.HasETA)
	assert.Equal(t, time.Duration(365-41)*time.Second, snap.ETA)
}

func TestTracker_ETAUsesWindowMeanWithVaryingDurations(t *testing.T) {
	tr := NewTracker(100, WithMinSamples(4), WithWindowSize(4))
	now := t0
	tr.Observe(day(0), now)

	// durations 1s,2s,3s,4s -> mean 2.5s
	for i := 1; i <= 4; i++ {
		now = now.Add(time.Duration(i) * time.Second)
		tr.Observe(day(i), now)
	}
	snap := tr.Snapshot()
	require.True(t, snap.HasETA)
	assert.Equal(t, 2500*time.Millisecond, tr.Mean())
	assert.Equal(t, 2500*time.Millisecond*time.Duration(100-5), snap.ETA)

	// 10s pushes out the 1s sample -> window 2,3,4,10 mean 4.75s
	now = now.Add(10 * time.Second)
	tr.Observe(day(5), now)
	assert.Equal(t, 4750*time.Millisecond, tr.Mean())
	assert.Equal(t, 4, tr.Samples())
}

func TestTracker_WindowIsBounded(t *testing.T) {
	tr := NewTracker(10000)
	now := t0
	for i := 0; i < DefaultWindowSize+500; i++ {
		now = now.Add(time.Millisecond)
		tr.Observe(day(i%365), now)
		require.LessOrEqual(t, tr.Samples(), DefaultWindowSize)
	}
	assert.Equal(t, DefaultWindowSize, tr.Samples())
	assert.Equal(t, DefaultWindowSize, tr.Capacity())
	assert.Equal(t, time.Millisecond, tr.Mean())
}

func TestTracker_DaysMonotonicAndClamped(t *testing.T) {
	tr := NewTracker(5)
	now := t0
	prev := 0
	for i := 0; i < 12; i++ {
		now = now.Add(time.Second)
		snap := tr.Observe(day(i), now)
		assert.GreaterOrEqual(t, snap.DaysCompleted, prev)
		assert.LessOrEqual(t, snap.DaysCompleted, snap.TotalDays)
		prev = snap.DaysCompleted
	}
	assert.Equal(t, 5, tr.DaysCompleted())
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00:00"},
		{59 * time.Second, "0:00:59"},
		{61 * time.Minute, "1:01:00"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "26:03:04"},
		{-5 * time.Second, "0:00:00"},
		{1499 * time.Millisecond, "0:00:01"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatETA(tt.in), "FormatETA(%s)", tt.in)
	}
}

func TestBar(t *testing.T) {
	assert.Equal(t, "[----------]", Bar(0, 100, 10))
	assert.Equal(t, "[#####-----]", Bar(50, 100, 10))
	assert.Equal(t, "[##########]", Bar(100, 100, 10))
	assert.Equal(t, "[##########]", Bar(150, 100, 10))
	assert.Equal(t, "[----------]", Bar(5, 0, 10))
	assert.Len(t, Bar(1, 2, 0), DefaultBarWidth+2)
}

func TestStatusLine(t *testing.T) {
	unit := domain.RunUnit{Region: "africa", StartYear: 2001, EndYear: 2003}
	snap := Snapshot{
		Date:          domain.SimulationDate{Day: 5, Month: 2, Year: 2001},
		DaysCompleted: 36,
		TotalDays:     1095,
		ETA:           90 * time.Second,
		HasETA:        true,
	}
	line := StatusLine(unit, snap, 20)
	assert.Contains(t, line, "[africa]")
	assert.Contains(t, line, "current: 05/02/2001")
	assert.Contains(t, line, "final: 31/12/2003")
	assert.Contains(t, line, "ETA - 0:01:30")

	snap.HasETA = false
	assert.NotContains(t, StatusLine(unit, snap, 20), "ETA")
}

func TestLineReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewLineReporter(&buf, 10)
	unit := domain.RunUnit{Region: "oceania", StartYear: 2001, EndYear: 2001}

	r.Start(unit)
	r.Init(unit, "reading from file.cio")
	r.Progress(unit, Snapshot{Date: day(0), DaysCompleted: 1, TotalDays: 365})
	r.Finish(domain.Completed(unit, 365))

	out := buf.String()
	assert.Contains(t, out, "running SWAT+ for oceania")
	assert.Contains(t, out, "reading from file.cio")
	assert.Contains(t, out, "current: 01/01/2001")
	assert.True(t, strings.Contains(out, "simulation complete for oceania"))
}

func TestTee(t *testing.T) {
	var a, b bytes.Buffer
	r := Tee(NewLineReporter(&a, 10), NewLineReporter(&b, 10), NopReporter{})
	unit := domain.RunUnit{Region: "asia", StartYear: 2001, EndYear: 2001}

	r.Start(unit)
	r.Progress(unit, Snapshot{Date: day(4), DaysCompleted: 5, TotalDays: 365})
	r.Finish(domain.Failed(unit, domain.FailureSilent, "no progress observed"))

	for _, out := range []string{a.String(), b.String()} {
		assert.Contains(t, out, "running SWAT+ for asia")
		assert.Contains(t, out, "current: 05/01/2001")
	}
	assert.Equal(t, a.String(), b.String())
}
