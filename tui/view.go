package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/progress"
)

var (
	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	queuedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	warningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))

	tabActiveStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	selectedStyle = lipgloss.NewStyle().
		Bold(true)
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	running, finished, failed := m.counts()
	header := fmt.Sprintf(" CoSWAT %s │ Running: %d/%d │ Done: %d/%d │ Failed: %d ",
		m.batchName, running, m.concurrency, finished, len(m.regions), failed)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	switch m.activeTab {
	case 1:
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderResults()))
	default:
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderRunning()))
	}
	b.WriteString("\n")

	statusBar := " [tab]switch [j/k]select [q]uit "
	if m.done {
		statusBar = " Batch finished │ [tab]switch [q]uit "
	}
	b.WriteString(statusBarStyle.Width(m.width).Render(statusBar))

	return b.String()
}

func (m Model) renderTabs() string {
	tabs := []string{"Regions", "Results"}
	var parts []string
	for i, t := range tabs {
		if i == m.activeTab {
			parts = append(parts, tabActiveStyle.Render(t))
		} else {
			parts = append(parts, tabInactiveStyle.Render(t))
		}
	}
	return " " + strings.Join(parts, "  ")
}

func (m Model) renderRunning() string {
	rows := m.visible()
	if len(rows) == 0 {
		return queuedStyle.Render("No regions pending")
	}

	var lines []string
	for i, r := range rows {
		line := m.formatRegionLine(r)
		if i == m.selectedRow {
			line = selectedStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) formatRegionLine(r *RegionView) string {
	name := fmt.Sprintf("%-16s", truncate(r.Unit.Region, 16))
	if r.State == StateQueued {
		return queuedStyle.Render(name + " queued")
	}

	snap := r.Snapshot
	line := fmt.Sprintf("%s %s %5.1f%%", name, progress.Bar(snap.DaysCompleted, snap.TotalDays, m.barWidth), snap.Fraction()*100)
	if !snap.Date.IsZero() {
		line += fmt.Sprintf("  %s / %s", snap.Date, r.Unit.FinalDate())
	} else if r.Init != "" {
		line += "  " + truncate(r.Init, 40)
	}
	if snap.HasETA {
		line += "  ETA " + progress.FormatETA(snap.ETA)
	}
	if !r.Started.IsZero() {
		line += "  " + formatDuration(m.now().Sub(r.Started))
	}
	return runningStyle.Render(line)
}

func (m Model) renderResults() string {
	rows := m.visible()
	if len(rows) == 0 {
		return queuedStyle.Render("No results yet")
	}

	var lines []string
	for _, r := range rows {
		res := r.Result
		name := fmt.Sprintf("%-16s", truncate(res.Unit.Region, 16))
		switch res.Status {
		case domain.RunCompleted:
			lines = append(lines, runningStyle.Render(fmt.Sprintf("%s ✓ completed  %d/%d days  %s",
				name, res.DaysCompleted, res.TotalDays, formatDuration(res.Elapsed))))
		case domain.RunTimedOut:
			lines = append(lines, warningStyle.Render(fmt.Sprintf("%s ⏱ timed out  %d/%d days  %s",
				name, res.DaysCompleted, res.TotalDays, formatDuration(res.Elapsed))))
		default:
			lines = append(lines, failedStyle.Render(fmt.Sprintf("%s ✗ %s  %s",
				name, res.Failure, truncate(res.Reason, 60))))
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}
