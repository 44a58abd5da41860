package domain

import (
	"fmt"
	"time"
)

// SimulationDate is a calendar day reported by the simulation
type SimulationDate struct {
	Day   int
	Month int
	Year  int
}

// NewSimulationDate validates the triple against the calendar
func NewSimulationDate(day, month, year int) (SimulationDate, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1 {
		return SimulationDate{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return SimulationDate{}, false // e.g. 31/02 normalises into March
	}
	return SimulationDate{Day: day, Month: month, Year: year}, true
}

// IsZero reports whether no date has been set
func (d SimulationDate) IsZero() bool {
	return d == SimulationDate{}
}

// String renders DD/MM/YYYY with day and month zero padded, year unpadded
func (d SimulationDate) String() string {
	return fmt.Sprintf("%02d/%02d/%d", d.Day, d.Month, d.Year)
}

// Event is one classified line of simulation output.
// Exactly one Kind is set per line; Date is only meaningful for
// EventDayAdvance and Signature only for EventError.
type Event struct {
	Kind       EventKind
	Raw        string
	Date       SimulationDate
	Signature  string
	ObservedAt time.Time
}
