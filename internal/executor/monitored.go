package executor

import (
	"context"
	"io"
	"sync"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/parser"
	"github.com/coswat-global/coswat-orch/internal/progress"
	"github.com/phuslu/log"
)

// MonitoredRunner streams the binary's output, reporting progress as
// simulated days advance and failing the run on any error signature.
type MonitoredRunner struct {
	cfg        Config
	classifier *parser.Classifier
}

func (r *MonitoredRunner) Run(ctx context.Context, unit domain.RunUnit) domain.RunResult {
	cfg := r.cfg
	started := cfg.Now()
	cfg.Reporter.Start(unit)

	path, err := preflight(unit, cfg.RequiredFiles)
	if err != nil {
		return stamp(cfg, domain.Failed(unit, domain.FailureLaunch, err.Error()), started, -1)
	}

	runCtx, cancel := runContext(ctx, cfg.Timeout)
	defer cancel()

	var tee io.Writer
	if cfg.LogOutput {
		f, err := openRunLog(unit)
		if err != nil {
			log.Warn().Err(err).Str("component", "executor").Str("region", unit.Region).Msg("cannot create run log")
		} else {
			defer f.Close()
			tee = &lockedWriter{w: f}
		}
	}

	cmd := command(runCtx, path, unit)
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	log.Debug().Str("component", "executor").Str("region", unit.Region).Str("dir", unit.WorkDir).Str("exe", path).Msg("starting SWAT+")
	if err := cmd.Start(); err != nil {
		outW.Close()
		errW.Close()
		return stamp(cfg, domain.Failed(unit, domain.FailureLaunch, err.Error()), started, -1)
	}

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		outW.Close()
		errW.Close()
		waitErr <- err
	}()

	var stderrHit *domain.Event
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		stderrHit = scanSignatures(errR, r.classifier, tee)
	}()

	res := Monitor(outR, unit, MonitorOptions{
		Classifier:        r.classifier,
		Tracker:           progress.NewTracker(unit.TotalDays(), progress.WithWindowSize(cfg.WindowSize), progress.WithMinSamples(cfg.MinSamples)),
		Reporter:          cfg.Reporter,
		PreambleLines:     cfg.PreambleLines,
		ShortLineSentinel: cfg.ShortLineSentinel,
		Tee:               tee,
		Now:               cfg.Now,
	})
	wg.Wait()
	err = <-waitErr
	code := exitCode(cmd, err)

	if res.ReadErr != nil {
		log.Warn().Err(res.ReadErr).Str("component", "executor").Str("region", unit.Region).Msg("output read error")
	}
	if res.StoppedAt > 0 {
		log.Debug().Str("component", "executor").Str("region", unit.Region).Int("line", res.StoppedAt).Msg("short line sentinel stopped parsing")
	}
	if res.Error == nil && stderrHit != nil {
		res.Error = stderrHit
	}

	if res.Error == nil {
		if result, ok := interrupted(ctx, runCtx, unit, res.DaysCompleted); ok {
			return stamp(cfg, result, started, code)
		}
	}
	return stamp(cfg, res.Outcome(unit), started, code)
}
