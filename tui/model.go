package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/progress"
)

// RegionState is where a region is in its lifecycle
type RegionState int

const (
	StateQueued RegionState = iota
	StateRunning
	StateDone
)

// RegionView represents a region in the TUI
type RegionView struct {
	Unit     domain.RunUnit
	State    RegionState
	Init     string
	Snapshot progress.Snapshot
	Started  time.Time
	Result   *domain.RunResult
}

// Model is the TUI application model
type Model struct {
	// Data
	batchName string
	regions   []*RegionView
	index     map[string]*RegionView
	finished  []string

	// Stats
	concurrency int
	done        bool

	// UI state
	width       int
	height      int
	activeTab   int
	selectedRow int
	barWidth    int

	// Quit cancels the batch when the user leaves early
	onQuit func()
	now    func() time.Time
}

// ModelConfig holds initial data for the TUI model
type ModelConfig struct {
	BatchName   string
	Concurrency int
	Units       []domain.RunUnit
	BarWidth    int
	OnQuit      func()
	Now         func() time.Time
}

// NewModel creates a new TUI model with every unit queued
func NewModel(cfg ModelConfig) Model {
	m := Model{
		batchName:   cfg.BatchName,
		concurrency: cfg.Concurrency,
		index:       make(map[string]*RegionView, len(cfg.Units)),
		barWidth:    cfg.BarWidth,
		onQuit:      cfg.OnQuit,
		now:         cfg.Now,
	}
	if m.barWidth <= 0 {
		m.barWidth = progress.DefaultBarWidth
	}
	if m.now == nil {
		m.now = time.Now
	}
	for _, u := range cfg.Units {
		rv := &RegionView{Unit: u, State: StateQueued}
		m.regions = append(m.regions, rv)
		m.index[u.Region] = rv
	}
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// TickMsg triggers a refresh of elapsed times
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// counts returns running, finished, failed region counts
func (m Model) counts() (running, finished, failed int) {
	for _, r := range m.regions {
		switch r.State {
		case StateRunning:
			running++
		case StateDone:
			finished++
			if r.Result != nil && !r.Result.Succeeded() {
				failed++
			}
		}
	}
	return running, finished, failed
}

func (m *Model) region(unit domain.RunUnit) *RegionView {
	if rv, ok := m.index[unit.Region]; ok {
		return rv
	}
	rv := &RegionView{Unit: unit, State: StateQueued}
	m.regions = append(m.regions, rv)
	m.index[unit.Region] = rv
	return rv
}
