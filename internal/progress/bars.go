package progress

import (
	"fmt"
	"sync"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/gosuri/uiprogress"
)

// BarsReporter draws one live bar per region, suitable for parallel batches
type BarsReporter struct {
	progress *uiprogress.Progress
	bars     map[string]*regionBar
	mu       sync.Mutex
}

type regionBar struct {
	bar    *uiprogress.Bar
	status string
	mu     sync.Mutex
}

func (rb *regionBar) setStatus(s string) {
	rb.mu.Lock()
	rb.status = s
	rb.mu.Unlock()
}

func (rb *regionBar) getStatus() string {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.status
}

// NewBarsReporter creates and starts a multi-bar display on stdout
func NewBarsReporter(width int) *BarsReporter {
	p := uiprogress.New()
	if width > 0 {
		p.Width = width
	}
	p.Start()
	return &BarsReporter{
		progress: p,
		bars:     make(map[string]*regionBar),
	}
}

// Stop flushes and stops the display
func (r *BarsReporter) Stop() {
	r.progress.Stop()
}

func (r *BarsReporter) bar(unit domain.RunUnit) *regionBar {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rb, ok := r.bars[unit.Region]; ok {
		return rb
	}
	total := unit.TotalDays()
	if total <= 0 {
		total = 1
	}
	rb := &regionBar{status: "queued"}
	rb.bar = r.progress.AddBar(total).AppendCompleted().PrependElapsed()
	region := unit.Region
	rb.bar.PrependFunc(func(b *uiprogress.Bar) string {
		return fmt.Sprintf("%-14s", region)
	})
	rb.bar.AppendFunc(func(b *uiprogress.Bar) string {
		return rb.getStatus()
	})
	r.bars[unit.Region] = rb
	return rb
}

func (r *BarsReporter) Start(unit domain.RunUnit) {
	r.bar(unit).setStatus("starting")
}

func (r *BarsReporter) Init(unit domain.RunUnit, text string) {
	r.bar(unit).setStatus("reading inputs")
}

func (r *BarsReporter) Progress(unit domain.RunUnit, snap Snapshot) {
	rb := r.bar(unit)
	rb.bar.Set(snap.DaysCompleted)
	status := snap.Date.String()
	if snap.HasETA {
		status += "  ETA " + FormatETA(snap.ETA)
	}
	rb.setStatus(status)
}

func (r *BarsReporter) Finish(result domain.RunResult) {
	rb := r.bar(result.Unit)
	if result.Succeeded() {
		rb.bar.Set(rb.bar.Total)
		rb.setStatus("done")
		return
	}
	rb.setStatus(fmt.Sprintf("%s: %s", result.Status, result.Reason))
}
