package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/coswat-global/coswat-orch/internal/domain"
)

// DefaultBarWidth is the bar width in cells when none is configured
const DefaultBarWidth = 20

// FormatETA renders a duration as H:MM:SS
func FormatETA(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// Bar renders a bounded-width bar for done/total
func Bar(done, total, width int) string {
	if width <= 0 {
		width = DefaultBarWidth
	}
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// StatusLine renders one progress line for a region
func StatusLine(unit domain.RunUnit, snap Snapshot, width int) string {
	var b strings.Builder
	b.WriteString(Bar(snap.DaysCompleted, snap.TotalDays, width))
	fmt.Fprintf(&b, " %5.1f%%", snap.Fraction()*100)
	if unit.Region != "" {
		fmt.Fprintf(&b, " [%s]", unit.Region)
	}
	fmt.Fprintf(&b, " >>  current: %s - final: %s", snap.Date, unit.FinalDate())
	if snap.HasETA {
		fmt.Fprintf(&b, "  ETA - %s", FormatETA(snap.ETA))
	}
	return b.String()
}
