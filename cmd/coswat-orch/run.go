package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/coswat-global/coswat-orch/internal/batch"
	"github.com/coswat-global/coswat-orch/internal/config"
	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/executor"
	"github.com/coswat-global/coswat-orch/internal/notify"
	"github.com/coswat-global/coswat-orch/internal/progress"
	"github.com/coswat-global/coswat-orch/internal/runstore"
	"github.com/coswat-global/coswat-orch/internal/setup"
	"github.com/coswat-global/coswat-orch/internal/workspace"
	"github.com/coswat-global/coswat-orch/tui"
	"github.com/coswat-global/coswat-orch/web/api"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"
)

var (
	runYears       string
	runMode        string
	runConcurrency int
	runDisplay     string
	runReport      string
	runVersion     string
	runListen      string
	setupNoData    bool
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run [REGION...]",
		Short: "Run SWAT+ for regions (all regions when none are given)",
		RunE:  runRun,
	}
	addBatchFlags(runCmd)
	rootCmd.AddCommand(runCmd)

	// setup command
	setupCmd := &cobra.Command{
		Use:   "setup [REGION...]",
		Short: "Prepare, run and evaluate regions through the setup pipeline",
		RunE:  runSetup,
	}
	addBatchFlags(setupCmd)
	setupCmd.Flags().BoolVar(&setupNoData, "no-data", false, "skip data download steps")
	rootCmd.AddCommand(setupCmd)
}

func addBatchFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runYears, "years", "", "run period override, e.g. 2001-2010 (rewrites time.sim)")
	cmd.Flags().StringVar(&runMode, "mode", "", "supervision mode: monitored, quiet or direct")
	cmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "number of regions run in parallel")
	cmd.Flags().StringVar(&runDisplay, "display", "", "progress display: auto, line, bars, tui or none")
	cmd.Flags().StringVar(&runReport, "report", "", "write the batch report as YAML to this file")
	cmd.Flags().StringVar(&runVersion, "version", "", "model version (CoSWATv<version>)")
	cmd.Flags().StringVar(&runListen, "listen", "", "serve live progress and history on this address, e.g. :8080")
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithLocalFallback(configPath)
}

// applyBatchFlags overrides config values with the flags that were set
func applyBatchFlags(cfg *config.Config) {
	if runMode != "" {
		cfg.Run.Mode = runMode
	}
	if runConcurrency != 0 {
		cfg.General.Concurrency = runConcurrency
	}
	if runDisplay != "" {
		cfg.Display.Style = runDisplay
	}
	if runVersion != "" {
		cfg.General.Version = runVersion
	}
	if setupNoData {
		cfg.Setup.GetData = false
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	return runBatchCommand(cmd, "run", args, false)
}

func runSetup(cmd *cobra.Command, args []string) error {
	return runBatchCommand(cmd, "setup", args, true)
}

func runBatchCommand(cmd *cobra.Command, name string, regions []string, withSetup bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyBatchFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	units, err := buildUnits(cfg, cfg.General.Version, regions, runYears)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := executeBatch(ctx, cfg, batchJob{
		Name:      name,
		Units:     units,
		Display:   cfg.Display.Style,
		WithSetup: withSetup,
		Notify:    true,
		Listen:    runListen,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	if err := batch.WriteReport(os.Stdout, b); err != nil {
		return err
	}
	if runReport != "" {
		if err := batch.ExportYAML(runReport, b); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Printf("\nReport written to %s\n", runReport)
	}

	if s := b.Summary(); s.Completed < s.Total {
		return fmt.Errorf("%d of %d regions did not complete", s.Total-s.Completed, s.Total)
	}
	return nil
}

// buildUnits resolves regions of a model version into run units
func buildUnits(cfg *config.Config, version string, regions []string, years string) ([]domain.RunUnit, error) {
	if cfg.General.ModelSetupDir == "" {
		return nil, fmt.Errorf("general.model_setup_dir is not set")
	}
	period, err := cfg.Period()
	if err != nil {
		return nil, err
	}

	opts := workspace.UnitOptions{
		Executable: cfg.General.Executable,
		Default:    period,
	}
	if years != "" {
		override, err := domain.ParseRunPeriod(years)
		if err != nil {
			return nil, fmt.Errorf("--years: %w", err)
		}
		opts.Override = &override
	}

	layout := workspace.New(cfg.General.ModelSetupDir, version)
	return layout.Units(regions, opts)
}

// batchJob describes one batch invocation
type batchJob struct {
	Name        string
	Units       []domain.RunUnit
	Display     string
	Concurrency int // zero uses general.concurrency
	WithSetup   bool
	Notify      bool
	Listen      string // status API address; empty disables it
}

// executeBatch wires runner, display, history and notifications around
// one orchestrator run.
func executeBatch(ctx context.Context, cfg *config.Config, job batchJob) (*domain.Batch, error) {
	concurrency := job.Concurrency
	if concurrency == 0 {
		concurrency = cfg.General.Concurrency
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	disp, err := newDisplay(cfg, job, concurrency, cancel)
	if err != nil {
		return nil, err
	}

	var opts []batch.Option
	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		log.Warn().Err(err).Str("component", "cli").Str("path", cfg.General.DatabasePath).Msg("run history disabled")
	} else {
		defer store.Close()
		opts = append(opts, batch.WithResultHook(store.ResultHook()))
	}

	reporter := disp.reporter
	if job.Listen != "" && store != nil {
		live := api.NewReporter()
		reporter = progress.Tee(reporter, live)
		server := api.NewServer(store, live, job.Listen)
		go func() {
			if err := server.Start(ctx); err != nil {
				log.Error().Err(err).Str("component", "api").Str("addr", job.Listen).Msg("status API stopped")
			}
		}()
	}

	timeout, err := cfg.RunTimeout()
	if err != nil {
		return nil, err
	}
	runner, err := executor.NewRunner(executor.Config{
		Mode:              cfg.RunMode(),
		ErrorSignatures:   cfg.Run.ErrorSignatures,
		PreambleLines:     cfg.Run.PreambleLines,
		ShortLineSentinel: cfg.Run.ShortLineSentinel,
		Timeout:           timeout,
		LogOutput:         cfg.Run.LogOutput,
		WindowSize:        cfg.Run.WindowSize,
		MinSamples:        cfg.Run.MinSamples,
		RequiredFiles:     []string{workspace.FileCIO},
		Reporter:          reporter,
	})
	if err != nil {
		return nil, err
	}

	var stepExec *setup.Executor
	if job.WithSetup {
		stepExec = setup.NewExecutor(cfg.General.ModelSetupDir, func(step, stream, line string) {
			log.Debug().Str("component", "setup").Str("step", step).Str("stream", stream).Msg(line)
		})
		runner = setup.NewPipeline(stepExec, runner, setup.PipelineConfig{
			Steps:     cfg.Setup.Steps,
			PostSteps: cfg.Setup.PostSteps,
			GetData:   cfg.Setup.GetData,
			Version:   cfg.General.Version,
			Reporter:  reporter,
		})
	}

	opts = append(opts, batch.WithReporter(reporter))

	notifier := newNotifier(cfg)
	if job.Notify && cfg.Notifications.OnFailure {
		opts = append(opts, batch.WithResultHook(notify.FailureHook(notifier)))
	}

	orch, err := batch.NewOrchestrator(runner, concurrency, opts...)
	if err != nil {
		return nil, err
	}

	disp.start()
	b, err := orch.RunBatch(ctx, job.Name, job.Units)
	disp.stop()
	if err != nil {
		return nil, err
	}

	if store != nil {
		if err := store.SaveBatch(b); err != nil {
			log.Warn().Err(err).Str("component", "cli").Str("batch", b.ID).Msg("saving batch history")
		}
	}

	if job.WithSetup && cfg.Setup.AfterBatch != "" && ctx.Err() == nil {
		vars := setup.Vars{Version: cfg.General.Version, Period: cfg.General.RunPeriod}
		if err := stepExec.RunHook(ctx, "after_batch", cfg.Setup.AfterBatch, vars); err != nil {
			log.Error().Err(err).Str("component", "cli").Msg("after-batch hook failed")
		}
	}

	if job.Notify {
		if err := notifier.Send(notify.ForBatch(b)); err != nil {
			log.Warn().Err(err).Str("component", "notify").Msg("sending batch notification")
		}
	}
	return b, nil
}

func newNotifier(cfg *config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	if len(notifiers) == 0 {
		return notify.NoopNotifier{}
	}
	return notify.NewMultiNotifier(notifiers...)
}

// display owns the progress reporter and its lifecycle
type display struct {
	reporter progress.Reporter
	start    func()
	stop     func()
}

// newDisplay picks the progress display for a batch. Direct mode hands the
// terminal to the binary, so nothing is drawn.
func newDisplay(cfg *config.Config, job batchJob, concurrency int, cancel context.CancelFunc) (*display, error) {
	noop := func() {}
	style := job.Display
	if cfg.RunMode() == domain.ModeDirect {
		style = config.DisplayNone
	}
	if style == config.DisplayAuto || style == "" {
		style = config.DisplayBars
		if len(job.Units) == 1 || concurrency == 1 {
			style = config.DisplayLine
		}
	}

	switch style {
	case config.DisplayNone:
		return &display{reporter: progress.NopReporter{}, start: noop, stop: noop}, nil

	case config.DisplayLine:
		return &display{reporter: progress.NewLineReporter(os.Stdout, cfg.Display.BarWidth), start: noop, stop: noop}, nil

	case config.DisplayBars:
		bars := progress.NewBarsReporter(cfg.Display.BarWidth)
		return &display{reporter: bars, start: noop, stop: bars.Stop}, nil

	case config.DisplayTUI:
		model := tui.NewModel(tui.ModelConfig{
			BatchName:   job.Name,
			Concurrency: concurrency,
			Units:       job.Units,
			BarWidth:    cfg.Display.BarWidth,
			OnQuit:      cancel,
		})
		program := tea.NewProgram(model, tea.WithAltScreen())
		reporter := tui.NewReporter(program)
		done := make(chan struct{})
		return &display{
			reporter: reporter,
			start: func() {
				go func() {
					defer close(done)
					if _, err := program.Run(); err != nil {
						log.Error().Err(err).Str("component", "tui").Msg("dashboard stopped")
					}
				}()
			},
			stop: func() {
				reporter.Done()
				<-done
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown display style %q", style)
	}
}
