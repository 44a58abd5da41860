// Package executor launches the SWAT+ binary for one region and supervises
// it until a terminal RunResult is known.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/parser"
	"github.com/coswat-global/coswat-orch/internal/progress"
	"github.com/phuslu/log"
)

// LogFileName is written into the working directory when LogOutput is set
const LogFileName = "coswat-run.log"

// DefaultPreambleLines is the number of leading lines the short-line
// sentinel never applies to.
const DefaultPreambleLines = 10

// waitDelay bounds how long Wait blocks on output pipes after the process
// has been killed.
const waitDelay = 5 * time.Second

// Runner executes one unit to a terminal result. Per-unit failures are
// reported in the result, never as a panic or error.
type Runner interface {
	Run(ctx context.Context, unit domain.RunUnit) domain.RunResult
}

// Config holds the settings shared by all supervision strategies
type Config struct {
	Mode              domain.RunMode
	ErrorSignatures   []string
	PreambleLines     int
	ShortLineSentinel bool
	Timeout           time.Duration // zero disables the per-run deadline
	LogOutput         bool
	WindowSize        int
	MinSamples        int
	RequiredFiles     []string // must exist in the working directory

	Reporter progress.Reporter
	Stdout   io.Writer // direct mode only
	Stderr   io.Writer // direct mode only
	Now      func() time.Time
}

// DefaultConfig returns a monitored configuration with the default signatures
func DefaultConfig() Config {
	return Config{
		Mode:            domain.ModeMonitored,
		ErrorSignatures: parser.DefaultErrorSignatures,
		PreambleLines:   DefaultPreambleLines,
		WindowSize:      progress.DefaultWindowSize,
		MinSamples:      progress.DefaultMinSamples,
	}
}

func (c Config) withDefaults() Config {
	if c.Reporter == nil {
		c.Reporter = progress.NopReporter{}
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.PreambleLines < 0 {
		c.PreambleLines = 0
	}
	if c.WindowSize <= 0 {
		c.WindowSize = progress.DefaultWindowSize
	}
	if c.MinSamples <= 0 {
		c.MinSamples = progress.DefaultMinSamples
	}
	return c
}

// NewRunner builds the strategy selected by cfg.Mode
func NewRunner(cfg Config) (Runner, error) {
	cfg = cfg.withDefaults()
	switch cfg.Mode {
	case domain.ModeMonitored, "":
		return &MonitoredRunner{cfg: cfg, classifier: parser.NewClassifier(cfg.ErrorSignatures)}, nil
	case domain.ModeQuiet:
		return &QuietRunner{cfg: cfg}, nil
	case domain.ModeDirect:
		return &DirectRunner{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("unknown run mode %q", cfg.Mode)
	}
}

// preflight checks everything that can be checked before launching.
// It returns the executable path to hand to exec.
func preflight(unit domain.RunUnit, required []string) (string, error) {
	if err := unit.Validate(); err != nil {
		return "", err
	}

	info, err := os.Stat(unit.WorkDir)
	if err != nil {
		return "", fmt.Errorf("working directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("working directory %s is not a directory", unit.WorkDir)
	}
	for _, name := range required {
		if _, err := os.Stat(filepath.Join(unit.WorkDir, name)); err != nil {
			return "", fmt.Errorf("missing %s", name)
		}
	}

	return resolveExecutable(unit)
}

// resolveExecutable stats explicit paths (relative ones against the working
// directory) and searches PATH for bare names.
func resolveExecutable(unit domain.RunUnit) (string, error) {
	exe := unit.Executable
	if !strings.ContainsRune(exe, filepath.Separator) && !strings.Contains(exe, "/") {
		path, err := exec.LookPath(exe)
		if err != nil && !errors.Is(err, exec.ErrDot) {
			return "", fmt.Errorf("executable %q: %w", exe, err)
		}
		return path, nil
	}

	if !filepath.IsAbs(exe) {
		exe = filepath.Join(unit.WorkDir, exe)
	}
	info, err := os.Stat(exe)
	if err != nil {
		return "", fmt.Errorf("executable: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("executable %s is a directory", exe)
	}
	return exe, nil
}

// command builds the process for unit. The working directory is set on the
// command; the orchestrator's own cwd is never changed.
func command(ctx context.Context, path string, unit domain.RunUnit) *exec.Cmd {
	cmd := exec.CommandContext(ctx, path)
	cmd.Dir = unit.WorkDir
	cmd.WaitDelay = waitDelay
	return cmd
}

// runContext derives the per-run context, applying the configured timeout
func runContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// interrupted maps a finished context to the matching terminal result.
// ok is false when the run ended on its own.
func interrupted(parent, run context.Context, unit domain.RunUnit, days int) (domain.RunResult, bool) {
	if parent.Err() != nil {
		r := domain.Failed(unit, domain.FailureCancelled, "cancelled")
		r.DaysCompleted = days
		return r, true
	}
	if errors.Is(run.Err(), context.DeadlineExceeded) {
		return domain.TimedOut(unit, days), true
	}
	return domain.RunResult{}, false
}

// exitCode extracts the process exit code; -1 when it is unknown
func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

// stamp fills in timing and exit code and notifies the reporter
func stamp(cfg Config, r domain.RunResult, started time.Time, code int) domain.RunResult {
	r.ExitCode = code
	return Finish(cfg.Reporter, r, started, cfg.Now())
}

// Finish sets the result's timing, logs the outcome and hands the result
// to the reporter. Every terminal result goes through it exactly once per
// supervising layer.
func Finish(reporter progress.Reporter, r domain.RunResult, started, finished time.Time) domain.RunResult {
	r.StartedAt = started
	r.FinishedAt = finished
	r.Elapsed = finished.Sub(started)

	entry := log.Info()
	if !r.Succeeded() {
		entry = log.Warn().Str("failure", string(r.Failure)).Str("reason", r.Reason)
	}
	entry.Str("component", "executor").
		Str("region", r.Unit.Region).
		Str("status", string(r.Status)).
		Int("days", r.DaysCompleted).
		Int("exit_code", r.ExitCode).
		Dur("elapsed", r.Elapsed).
		Msg("run finished")

	if reporter != nil {
		reporter.Finish(r)
	}
	return r
}

// openRunLog creates the raw output log in the working directory
func openRunLog(unit domain.RunUnit) (*os.File, error) {
	return os.Create(filepath.Join(unit.WorkDir, LogFileName))
}

// lockedWriter serialises writes from the stdout and stderr readers
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
