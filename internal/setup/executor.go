// Package setup runs the external preparation steps around a region's model
// run: data download, model initialisation, evaluation and the after-batch
// hook.
package setup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
)

// Step is one external command of the setup pipeline
type Step struct {
	Name    string            `toml:"name"`
	Command string            `toml:"command"`
	Data    bool              `toml:"data"` // downloads inputs; skipped when get_data is off
	Env     map[string]string `toml:"env"`
}

// Validate checks the step can be run
func (s Step) Validate() error {
	if s.Name == "" {
		return errors.New("step name is required")
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("step %s: command is required", s.Name)
	}
	return nil
}

// Vars are the values substituted into step commands
type Vars struct {
	Region  string
	Version string
	Period  string
}

// Expand replaces {region}, {version} and {period} in command
func Expand(command string, v Vars) string {
	return strings.NewReplacer(
		"{region}", v.Region,
		"{version}", v.Version,
		"{period}", v.Period,
	).Replace(command)
}

// OutputCallback is called for each line of output, from both the stdout
// and stderr readers concurrently.
type OutputCallback func(step, stream, line string)

// StepResult is the outcome of one step
type StepResult struct {
	Step     string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Executor runs step commands through the shell in a fixed directory
type Executor struct {
	dir      string
	onOutput OutputCallback
}

// NewExecutor creates an executor running commands in dir
func NewExecutor(dir string, onOutput OutputCallback) *Executor {
	return &Executor{dir: dir, onOutput: onOutput}
}

// RunStep executes a step. A non-zero exit is reported in the result;
// an error means the step could not be run at all.
func (e *Executor) RunStep(ctx context.Context, step Step, vars Vars) (StepResult, error) {
	start := time.Now()
	command := Expand(step.Command, vars)

	log.Debug().Str("component", "setup").Str("step", step.Name).Str("region", vars.Region).
		Str("command", command).Msg("running step")

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = e.dir

	// Set environment
	cmd.Env = os.Environ()
	for k, v := range step.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, Expand(v, vars)))
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return StepResult{}, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return StepResult{}, err
	}

	if err := cmd.Start(); err != nil {
		return StepResult{}, fmt.Errorf("starting step %s: %w", step.Name, err)
	}

	var stdoutBuf, stderrBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.streamOutput(stdout, step.Name, "stdout", &stdoutBuf)
	}()
	go func() {
		defer wg.Done()
		e.streamOutput(stderr, step.Name, "stderr", &stderrBuf)
	}()
	wg.Wait()

	err = cmd.Wait()
	if ctx.Err() != nil {
		return StepResult{}, ctx.Err()
	}
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return StepResult{}, fmt.Errorf("step %s failed: %w", step.Name, err)
		}
		exitCode = exitErr.ExitCode()
	}

	res := StepResult{
		Step:     step.Name,
		ExitCode: exitCode,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(start),
	}
	log.Debug().Str("component", "setup").Str("step", step.Name).Str("region", vars.Region).
		Int("exit_code", exitCode).Dur("elapsed", res.Duration).Msg("step finished")
	return res, nil
}

func (e *Executor) streamOutput(r io.Reader, step, stream string, output *strings.Builder) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		output.WriteString(line + "\n")
		if e.onOutput != nil {
			e.onOutput(step, stream, line)
		}
	}
	io.Copy(io.Discard, r)
}

// RunHook runs a one-off command such as the after-batch hook. A non-zero
// exit is returned as an error.
func (e *Executor) RunHook(ctx context.Context, name, command string, vars Vars) error {
	res, err := e.RunStep(ctx, Step{Name: name, Command: command}, vars)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s: exit %d: %s", name, res.ExitCode, lastLine(res.Stderr))
	}
	return nil
}

// lastLine returns the last non-empty line of s
func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
