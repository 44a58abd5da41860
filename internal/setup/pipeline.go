package setup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/executor"
	"github.com/coswat-global/coswat-orch/internal/progress"
)

// Pipeline prepares a region, runs the model through the wrapped runner and
// then runs the post-run steps. It is itself an executor.Runner, so a batch
// of setups is dispatched exactly like a batch of runs.
type Pipeline struct {
	exec     *Executor
	runner   executor.Runner
	steps    []Step
	post     []Step
	getData  bool
	version  string
	reporter progress.Reporter
	now      func() time.Time
}

// PipelineConfig configures a Pipeline
type PipelineConfig struct {
	Steps     []Step
	PostSteps []Step
	GetData   bool
	Version   string
	Reporter  progress.Reporter // sees step failures; the wrapped runner reports the model run
	Now       func() time.Time
}

// NewPipeline wraps runner with the configured steps
func NewPipeline(exec *Executor, runner executor.Runner, cfg PipelineConfig) *Pipeline {
	p := &Pipeline{
		exec:     exec,
		runner:   runner,
		steps:    cfg.Steps,
		post:     cfg.PostSteps,
		getData:  cfg.GetData,
		version:  cfg.Version,
		reporter: cfg.Reporter,
		now:      cfg.Now,
	}
	if p.reporter == nil {
		p.reporter = progress.NopReporter{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Run implements executor.Runner. The returned result's timing covers the
// whole pipeline, steps included.
func (p *Pipeline) Run(ctx context.Context, unit domain.RunUnit) domain.RunResult {
	vars := Vars{Region: unit.Region, Version: p.version, Period: unit.Period().String()}
	started := p.now()
	p.reporter.Start(unit)

	if r, failed := p.runSteps(ctx, unit, p.steps, vars); failed {
		return executor.Finish(p.reporter, r, started, p.now())
	}

	result := p.runner.Run(ctx, unit)
	if result.Succeeded() {
		if r, failed := p.runSteps(ctx, unit, p.post, vars); failed {
			r.DaysCompleted = result.DaysCompleted
			r.ExitCode = result.ExitCode
			return executor.Finish(p.reporter, r, started, p.now())
		}
	}

	// the runner already reported this result; widen its timing only
	result.StartedAt = started
	result.FinishedAt = p.now()
	result.Elapsed = result.FinishedAt.Sub(started)
	return result
}

func (p *Pipeline) runSteps(ctx context.Context, unit domain.RunUnit, steps []Step, vars Vars) (domain.RunResult, bool) {
	for _, step := range steps {
		if step.Data && !p.getData {
			continue
		}
		res, err := p.exec.RunStep(ctx, step, vars)
		if err != nil {
			var r domain.RunResult
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				r = domain.Failed(unit, domain.FailureCancelled, "cancelled during "+step.Name)
			} else {
				r = domain.Failed(unit, domain.FailureStep, fmt.Sprintf("%s: %v", step.Name, err))
			}
			r.ExitCode = -1
			return r, true
		}
		if res.ExitCode != 0 {
			reason := fmt.Sprintf("%s: exit %d", step.Name, res.ExitCode)
			if tail := lastLine(res.Stderr); tail != "" {
				reason += ": " + tail
			}
			r := domain.Failed(unit, domain.FailureStep, reason)
			r.ExitCode = res.ExitCode
			return r, true
		}
	}
	return domain.RunResult{}, false
}
