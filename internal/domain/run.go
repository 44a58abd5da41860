package domain

import (
	"fmt"
	"time"
)

// RunResult is the terminal record for one RunUnit
type RunResult struct {
	Unit          RunUnit
	Status        RunStatus
	Failure       FailureKind
	Reason        string
	DaysCompleted int
	TotalDays     int
	ExitCode      int
	StartedAt     time.Time
	FinishedAt    time.Time
	Elapsed       time.Duration
}

// Succeeded reports whether the run completed
func (r RunResult) Succeeded() bool {
	return r.Status == RunCompleted
}

// String returns a one-line outcome for reports
func (r RunResult) String() string {
	switch r.Status {
	case RunCompleted:
		return fmt.Sprintf("%s: completed (%d/%d days)", r.Unit.Region, r.DaysCompleted, r.TotalDays)
	case RunTimedOut:
		return fmt.Sprintf("%s: timed out after %s", r.Unit.Region, r.Elapsed.Round(time.Second))
	default:
		return fmt.Sprintf("%s: failed [%s] %s", r.Unit.Region, r.Failure, r.Reason)
	}
}

// Completed builds a successful result
func Completed(unit RunUnit, days int) RunResult {
	return RunResult{
		Unit:          unit,
		Status:        RunCompleted,
		DaysCompleted: days,
		TotalDays:     unit.TotalDays(),
	}
}

// Failed builds a failed result with a reason
func Failed(unit RunUnit, kind FailureKind, reason string) RunResult {
	return RunResult{
		Unit:      unit,
		Status:    RunFailed,
		Failure:   kind,
		Reason:    reason,
		TotalDays: unit.TotalDays(),
	}
}

// TimedOut builds a result for a run that exceeded its deadline
func TimedOut(unit RunUnit, days int) RunResult {
	return RunResult{
		Unit:          unit,
		Status:        RunTimedOut,
		Reason:        "run timeout exceeded",
		DaysCompleted: days,
		TotalDays:     unit.TotalDays(),
	}
}
