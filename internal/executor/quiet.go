package executor

import (
	"context"
	"io"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/phuslu/log"
)

// QuietRunner discards the binary's output and reports completion on exit
type QuietRunner struct {
	cfg Config
}

func (r *QuietRunner) Run(ctx context.Context, unit domain.RunUnit) domain.RunResult {
	return runUnmonitored(ctx, r.cfg, unit, nil, nil)
}

// DirectRunner hands the terminal to the binary without parsing anything
type DirectRunner struct {
	cfg Config
}

func (r *DirectRunner) Run(ctx context.Context, unit domain.RunUnit) domain.RunResult {
	return runUnmonitored(ctx, r.cfg, unit, r.cfg.Stdout, r.cfg.Stderr)
}

// runUnmonitored runs unit to exit. Nothing is observed, so a run that
// exits without being interrupted counts as completed.
func runUnmonitored(ctx context.Context, cfg Config, unit domain.RunUnit, stdout, stderr io.Writer) domain.RunResult {
	started := cfg.Now()
	cfg.Reporter.Start(unit)

	path, err := preflight(unit, cfg.RequiredFiles)
	if err != nil {
		return stamp(cfg, domain.Failed(unit, domain.FailureLaunch, err.Error()), started, -1)
	}

	runCtx, cancel := runContext(ctx, cfg.Timeout)
	defer cancel()

	cmd := command(runCtx, path, unit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if cfg.LogOutput && stdout == nil {
		f, err := openRunLog(unit)
		if err != nil {
			log.Warn().Err(err).Str("component", "executor").Str("region", unit.Region).Msg("cannot create run log")
		} else {
			defer f.Close()
			cmd.Stdout = f
			cmd.Stderr = f
		}
	}

	log.Debug().Str("component", "executor").Str("region", unit.Region).Str("dir", unit.WorkDir).Str("mode", string(cfg.Mode)).Msg("starting SWAT+")
	if err := cmd.Start(); err != nil {
		return stamp(cfg, domain.Failed(unit, domain.FailureLaunch, err.Error()), started, -1)
	}
	err = cmd.Wait()
	code := exitCode(cmd, err)

	if result, ok := interrupted(ctx, runCtx, unit, 0); ok {
		return stamp(cfg, result, started, code)
	}
	return stamp(cfg, domain.Completed(unit, 0), started, code)
}
