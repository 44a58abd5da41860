package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/coswat-global/coswat-orch/internal/batch"
	"github.com/coswat-global/coswat-orch/internal/config"
	"github.com/coswat-global/coswat-orch/internal/observer"
	"github.com/coswat-global/coswat-orch/internal/parser"
	"github.com/coswat-global/coswat-orch/internal/runstore"
	"github.com/coswat-global/coswat-orch/internal/workspace"
	"github.com/coswat-global/coswat-orch/web/api"
	"github.com/dustin/go-humanize"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"
)

var (
	regionsVersion string
	historyLimit   int
	historyRegion  string
	scheduleList   bool
	serveAddr      string
)

func init() {
	// regions command
	regionsCmd := &cobra.Command{
		Use:   "regions",
		Short: "List model versions and the regions of a version",
		RunE:  runRegions,
	}
	regionsCmd.Flags().StringVar(&regionsVersion, "version", "", "model version (default from config)")
	rootCmd.AddCommand(regionsCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history [BATCH]",
		Short: "Show past batches, or the results of one batch",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of batches to list")
	historyCmd.Flags().StringVar(&historyRegion, "region", "", "show the latest runs of one region")
	rootCmd.AddCommand(historyCmd)

	// schedule command
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the configured [[schedule]] batches until interrupted",
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().BoolVar(&scheduleList, "list", false, "list schedules and their next run, then exit")
	rootCmd.AddCommand(scheduleCmd)

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run history as a JSON API",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "address to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runRegions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.General.ModelSetupDir == "" {
		return fmt.Errorf("general.model_setup_dir is not set")
	}
	version := cfg.General.Version
	if regionsVersion != "" {
		version = regionsVersion
	}

	versions, err := workspace.Versions(cfg.General.ModelSetupDir)
	if err != nil {
		return err
	}
	fmt.Printf("Versions: %v\n\n", versions)

	layout := workspace.New(cfg.General.ModelSetupDir, version)
	regions, err := layout.Regions()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REGION\tPERIOD\tSTATUS")
	for _, region := range regions {
		period := "-"
		if p, err := parser.ReadTimeSim(filepath.Join(layout.TxtInOut(region), parser.TimeSimFile)); err == nil {
			period = p.String()
		}
		status := "ready"
		if !layout.Runnable(region) {
			status = "cannot run (missing " + workspace.FileCIO + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", region, period, status)
	}
	w.Flush()

	fmt.Printf("\n%d regions in CoSWATv%s\n", len(regions), version)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	switch {
	case historyRegion != "":
		return printRegionHistory(store, historyRegion)
	case len(args) == 1:
		return printBatchResults(store, args[0])
	default:
		return printBatches(store)
	}
}

func printBatches(store *runstore.Store) error {
	batches, err := store.ListBatches(historyLimit)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Println("No batches recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTARTED\tDURATION\tREGIONS\tCOMPLETED\tFAILED\tTIMED OUT")
	for _, b := range batches {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			shortID(b.ID), b.Name, humanize.Time(b.StartedAt), b.Duration().Round(time.Second),
			b.Units, b.Completed, b.Failed, b.TimedOut)
	}
	return w.Flush()
}

func printBatchResults(store *runstore.Store, id string) error {
	b, err := store.GetBatch(id)
	if err != nil {
		return err
	}
	results, err := store.GetBatchResults(b.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Batch %s (%s), started %s\n\n", b.ID, b.Name, b.StartedAt.Format(time.RFC3339))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REGION\tSTATUS\tDAYS\tEXIT\tELAPSED\tREASON")
	for _, r := range results {
		status := string(r.Status)
		if r.Failure != "" {
			status += " (" + string(r.Failure) + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s/%s\t%d\t%s\t%s\n",
			r.Unit.Region, status, humanize.Comma(int64(r.DaysCompleted)), humanize.Comma(int64(r.TotalDays)),
			r.ExitCode, r.Elapsed.Round(time.Second), r.Reason)
	}
	return w.Flush()
}

func printRegionHistory(store *runstore.Store, region string) error {
	results, err := store.RegionHistory(region, historyLimit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Printf("No runs recorded for %s\n", region)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tPERIOD\tSTATUS\tDAYS\tREASON")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
			humanize.Time(r.FinishedAt), r.Unit.Period(), r.Status, r.DaysCompleted, r.TotalDays, r.Reason)
	}
	return w.Flush()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return api.NewServer(store, nil, serveAddr).Start(ctx)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.Schedules) == 0 {
		return fmt.Errorf("no [[schedule]] entries in config")
	}

	sched, err := batch.NewScheduler(cfg.Schedules)
	if err != nil {
		return err
	}

	if scheduleList {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCRON\tREGIONS\tNEXT RUN")
		for _, name := range sched.ListBatches() {
			bc, _ := sched.GetConfig(name)
			regions := "all"
			if len(bc.Regions) > 0 {
				regions = fmt.Sprint(bc.Regions)
			}
			next := sched.NextRun(name)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s (%s)\n", name, bc.Cron, regions, next.Format("2006-01-02 15:04"), humanize.Time(next))
		}
		return w.Flush()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var current atomic.Pointer[config.Config]
	current.Store(cfg)

	path := config.ResolvePath(configPath)
	watcher, err := observer.NewFileWatcher(path, func(p string) {
		reloadSchedules(p, sched, &current)
	})
	if err != nil {
		log.Warn().Err(err).Str("component", "scheduler").Str("path", path).Msg("config reload disabled")
	} else {
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	log.Info().Str("component", "scheduler").Int("schedules", len(cfg.Schedules)).Msg("waiting for scheduled batches")
	sched.Start(ctx, func(ctx context.Context, bc batch.BatchConfig) error {
		return runScheduledBatch(ctx, current.Load(), bc)
	})
	return nil
}

// reloadSchedules applies an edited config file. A config that fails to
// load or validate is ignored and the running schedules stay in place.
func reloadSchedules(path string, sched *batch.Scheduler, current *atomic.Pointer[config.Config]) {
	cfg, err := config.Load(path)
	if err == nil {
		err = cfg.Validate()
	}
	if err == nil {
		err = sched.Replace(cfg.Schedules)
	}
	if err != nil {
		log.Error().Err(err).Str("component", "scheduler").Str("path", path).Msg("ignoring config change")
		return
	}
	current.Store(cfg)
	log.Info().Str("component", "scheduler").Int("schedules", len(cfg.Schedules)).Msg("schedules reloaded")
}

// runScheduledBatch runs one [[schedule]] entry with its own version,
// period and concurrency overrides.
func runScheduledBatch(ctx context.Context, cfg *config.Config, bc batch.BatchConfig) error {
	version := cfg.General.Version
	if bc.Version != "" {
		version = bc.Version
	}

	units, err := buildUnits(cfg, version, bc.Regions, bc.Period)
	if err != nil {
		return err
	}

	b, err := executeBatch(ctx, cfg, batchJob{
		Name:        bc.Name,
		Units:       units,
		Display:     config.DisplayNone,
		Concurrency: bc.Concurrency,
		Notify:      bc.NotifyOnComplete,
	})
	if err != nil {
		return err
	}

	s := b.Summary()
	log.Info().Str("component", "scheduler").Str("batch", bc.Name).Str("id", b.ID).
		Int("completed", s.Completed).Int("failed", s.Failed).Int("timed_out", s.TimedOut).
		Msg("scheduled batch finished")
	return nil
}
