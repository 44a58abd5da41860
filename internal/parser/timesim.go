package parser

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/coswat-global/coswat-orch/internal/domain"
)

// TimeSimFile is the SWAT+ control file declaring the simulation period
const TimeSimFile = "time.sim"

// ReadTimeSim reads the declared start and end years from a time.sim file.
// The third line holds: day_start yrc_start day_end yrc_end step.
func ReadTimeSim(path string) (domain.RunPeriod, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.RunPeriod{}, err
	}
	return ParseTimeSim(string(content))
}

// ParseTimeSim parses the content of a time.sim file
func ParseTimeSim(content string) (domain.RunPeriod, error) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if len(lines) < 3 {
		return domain.RunPeriod{}, fmt.Errorf("time.sim: expected at least 3 lines, got %d", len(lines))
	}

	fields := strings.Fields(lines[2])
	if len(fields) < 4 {
		return domain.RunPeriod{}, fmt.Errorf("time.sim: expected 5 columns on line 3, got %d", len(fields))
	}

	from, err := strconv.Atoi(fields[1])
	if err != nil {
		return domain.RunPeriod{}, fmt.Errorf("time.sim: parsing yrc_start %q: %w", fields[1], err)
	}
	to, err := strconv.Atoi(fields[3])
	if err != nil {
		return domain.RunPeriod{}, fmt.Errorf("time.sim: parsing yrc_end %q: %w", fields[3], err)
	}
	if from > to {
		return domain.RunPeriod{}, fmt.Errorf("time.sim: start year %d after end year %d", from, to)
	}

	return domain.RunPeriod{StartYear: from, EndYear: to}, nil
}

// FormatTimeSim renders a time.sim file covering whole years of the period
func FormatTimeSim(p domain.RunPeriod) string {
	return fmt.Sprintf("time.sim: written by coswat-orch\n"+
		"day_start  yrc_start   day_end   yrc_end      step  \n"+
		"%8d%10d%10d%10d%10d  ", 0, p.StartYear, 0, p.EndYear, 0)
}

// WriteTimeSim overwrites path with a time.sim for the period
func WriteTimeSim(path string, p domain.RunPeriod) error {
	return os.WriteFile(path, []byte(FormatTimeSim(p)), 0644)
}
