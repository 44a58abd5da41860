package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/progress"
)

// StartMsg is sent when a region's binary is being launched
type StartMsg struct {
	Unit domain.RunUnit
}

// InitMsg carries an initialization line from the binary
type InitMsg struct {
	Unit domain.RunUnit
	Text string
}

// ProgressMsg carries a day-advance snapshot
type ProgressMsg struct {
	Unit     domain.RunUnit
	Snapshot progress.Snapshot
}

// FinishMsg carries a region's terminal result
type FinishMsg struct {
	Result domain.RunResult
}

// BatchDoneMsg is sent once every region has a result
type BatchDoneMsg struct{}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.done && m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		case "j", "down":
			if m.selectedRow < len(m.visible())-1 {
				m.selectedRow++
			}
		case "k", "up":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
		case "tab":
			m.activeTab = (m.activeTab + 1) % 2
			m.selectedRow = 0
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case StartMsg:
		rv := m.region(msg.Unit)
		rv.State = StateRunning
		rv.Started = m.now()
		rv.Snapshot = progress.Snapshot{TotalDays: msg.Unit.TotalDays()}

	case InitMsg:
		m.region(msg.Unit).Init = msg.Text

	case ProgressMsg:
		rv := m.region(msg.Unit)
		rv.State = StateRunning
		rv.Snapshot = msg.Snapshot

	case FinishMsg:
		rv := m.region(msg.Result.Unit)
		if rv.State != StateDone {
			m.finished = append(m.finished, msg.Result.Unit.Region)
		}
		rv.State = StateDone
		r := msg.Result
		rv.Result = &r

	case BatchDoneMsg:
		m.done = true
	}

	return m, nil
}

// visible returns the regions shown on the active tab
func (m Model) visible() []*RegionView {
	var out []*RegionView
	switch m.activeTab {
	case 1: // Results, in completion order
		for _, region := range m.finished {
			out = append(out, m.index[region])
		}
	default:
		for _, r := range m.regions {
			if r.State != StateDone {
				out = append(out, r)
			}
		}
	}
	return out
}
