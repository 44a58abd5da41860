package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidRunUnit is returned when a RunUnit fails validation
var ErrInvalidRunUnit = errors.New("invalid run unit")

var runPeriodRegex = regexp.MustCompile(`^\s*(\d{4})\s*-\s*(\d{4})\s*$`)

// RunPeriod is an inclusive range of simulation years
type RunPeriod struct {
	StartYear int
	EndYear   int
}

// ParseRunPeriod parses a string like "2001-2010"
func ParseRunPeriod(s string) (RunPeriod, error) {
	matches := runPeriodRegex.FindStringSubmatch(s)
	if matches == nil {
		return RunPeriod{}, fmt.Errorf("invalid run period %q (expected YYYY-YYYY)", s)
	}
	from, _ := strconv.Atoi(matches[1]) // regex guarantees digits
	to, _ := strconv.Atoi(matches[2])
	if from > to {
		return RunPeriod{}, fmt.Errorf("invalid run period %q: start year after end year", s)
	}
	return RunPeriod{StartYear: from, EndYear: to}, nil
}

// String returns the canonical "YYYY-YYYY" form
func (p RunPeriod) String() string {
	return fmt.Sprintf("%d-%d", p.StartYear, p.EndYear)
}

// RunUnit identifies one independent simulation job (a region).
// It is a value type and is never mutated once built.
type RunUnit struct {
	Region     string
	WorkDir    string
	Executable string
	StartYear  int
	EndYear    int
}

// Validate checks the unit can be handed to a runner
func (u RunUnit) Validate() error {
	if u.Region == "" {
		return fmt.Errorf("%w: region is required", ErrInvalidRunUnit)
	}
	if u.Executable == "" {
		return fmt.Errorf("%w: %s: executable is required", ErrInvalidRunUnit, u.Region)
	}
	if u.StartYear > u.EndYear {
		return fmt.Errorf("%w: %s: start year %d after end year %d",
			ErrInvalidRunUnit, u.Region, u.StartYear, u.EndYear)
	}
	return nil
}

// Period returns the unit's declared simulation period
func (u RunUnit) Period() RunPeriod {
	return RunPeriod{StartYear: u.StartYear, EndYear: u.EndYear}
}

// TotalDays returns the number of simulated days from Jan 1 of the start
// year to Dec 31 of the end year, both inclusive.
func (u RunUnit) TotalDays() int {
	if u.StartYear > u.EndYear {
		return 0
	}
	from := time.Date(u.StartYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(u.EndYear, time.December, 31, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours()/24) + 1
}

// FinalDate returns the last simulated day of the run
func (u RunUnit) FinalDate() SimulationDate {
	return SimulationDate{Day: 31, Month: 12, Year: u.EndYear}
}
