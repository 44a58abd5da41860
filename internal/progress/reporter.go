package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/coswat-global/coswat-orch/internal/domain"
)

// Reporter receives the observable lifecycle of region runs.
// Implementations must be safe for concurrent use by parallel runs.
type Reporter interface {
	Start(unit domain.RunUnit)
	Init(unit domain.RunUnit, text string)
	Progress(unit domain.RunUnit, snap Snapshot)
	Finish(result domain.RunResult)
}

// NopReporter discards everything
type NopReporter struct{}

func (NopReporter) Start(domain.RunUnit)              {}
func (NopReporter) Init(domain.RunUnit, string)       {}
func (NopReporter) Progress(domain.RunUnit, Snapshot) {}
func (NopReporter) Finish(domain.RunResult)           {}

// Tee fans every event out to several reporters
func Tee(reporters ...Reporter) Reporter {
	return teeReporter(reporters)
}

type teeReporter []Reporter

func (t teeReporter) Start(unit domain.RunUnit) {
	for _, r := range t {
		r.Start(unit)
	}
}

func (t teeReporter) Init(unit domain.RunUnit, text string) {
	for _, r := range t {
		r.Init(unit, text)
	}
}

func (t teeReporter) Progress(unit domain.RunUnit, snap Snapshot) {
	for _, r := range t {
		r.Progress(unit, snap)
	}
}

func (t teeReporter) Finish(result domain.RunResult) {
	for _, r := range t {
		r.Finish(result)
	}
}

var (
	doneStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Bold(true)

	initStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))
)

// LineReporter redraws a single status line in place with carriage returns.
// It suits sequential runs; parallel runs should use BarsReporter.
type LineReporter struct {
	out     io.Writer
	width   int
	lastLen int
	mu      sync.Mutex
}

// NewLineReporter writes to out using a bar of the given width
func NewLineReporter(out io.Writer, width int) *LineReporter {
	if width <= 0 {
		width = DefaultBarWidth
	}
	return &LineReporter{out: out, width: width}
}

func (r *LineReporter) Start(unit domain.RunUnit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "\n# running SWAT+ for %s\n", unit.Region)
	r.lastLen = 0
}

func (r *LineReporter) Init(unit domain.RunUnit, text string) {
	r.redraw(initStyle.Render("      > " + text))
}

func (r *LineReporter) Progress(unit domain.RunUnit, snap Snapshot) {
	r.redraw("    " + StatusLine(unit, snap, r.width))
}

func (r *LineReporter) Finish(result domain.RunResult) {
	var msg string
	if result.Succeeded() {
		msg = doneStyle.Render(fmt.Sprintf("    > SWAT+ simulation complete for %s", result.Unit.Region))
	} else {
		msg = failStyle.Render("    ! " + result.String())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clear()
	fmt.Fprintln(r.out, msg)
	r.lastLen = 0
}

func (r *LineReporter) redraw(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clear()
	fmt.Fprint(r.out, line)
	r.lastLen = lipgloss.Width(line)
}

// clear blanks the previous line; must be called with r.mu held
func (r *LineReporter) clear() {
	if r.lastLen > 0 {
		fmt.Fprint(r.out, "\r"+strings.Repeat(" ", r.lastLen)+"\r")
	}
}
