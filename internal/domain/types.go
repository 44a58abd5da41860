package domain

// RunStatus represents the terminal state of a region run
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunTimedOut  RunStatus = "timed_out"
)

// FailureKind classifies why a run failed
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureLaunch    FailureKind = "launch"    // binary or working directory unusable
	FailureRuntime   FailureKind = "runtime"   // error signature seen in output
	FailureSilent    FailureKind = "silent"    // stream ended without any progress
	FailureCancelled FailureKind = "cancelled" // context cancelled mid-run
	FailureStep      FailureKind = "step"      // a setup pipeline step failed
)

// EventKind tags a classified output line
type EventKind int

const (
	EventNoise EventKind = iota
	EventInit
	EventDayAdvance
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventInit:
		return "init"
	case EventDayAdvance:
		return "day"
	case EventError:
		return "error"
	default:
		return "noise"
	}
}

// RunMode selects how the external binary is supervised
type RunMode string

const (
	ModeMonitored RunMode = "monitored"
	ModeQuiet     RunMode = "quiet"
	ModeDirect    RunMode = "direct"
)

// ParseRunMode converts a config/flag string to a RunMode
func ParseRunMode(s string) (RunMode, bool) {
	switch s {
	case "monitored", "verbose", "":
		return ModeMonitored, true
	case "quiet":
		return ModeQuiet, true
	case "direct":
		return ModeDirect, true
	default:
		return "", false
	}
}
