package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/progress"
)

// Sender is satisfied by *tea.Program
type Sender interface {
	Send(msg tea.Msg)
}

// Reporter forwards runner events to a running dashboard
type Reporter struct {
	program Sender
}

var _ progress.Reporter = (*Reporter)(nil)

// NewReporter creates a reporter sending to program
func NewReporter(program Sender) *Reporter {
	return &Reporter{program: program}
}

func (r *Reporter) Start(unit domain.RunUnit) {
	r.program.Send(StartMsg{Unit: unit})
}

func (r *Reporter) Init(unit domain.RunUnit, text string) {
	r.program.Send(InitMsg{Unit: unit, Text: text})
}

func (r *Reporter) Progress(unit domain.RunUnit, snap progress.Snapshot) {
	r.program.Send(ProgressMsg{Unit: unit, Snapshot: snap})
}

func (r *Reporter) Finish(result domain.RunResult) {
	r.program.Send(FinishMsg{Result: result})
}

// Done tells the dashboard the batch is over
func (r *Reporter) Done() {
	r.program.Send(BatchDoneMsg{})
}
