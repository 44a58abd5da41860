package batch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a standard five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler starts configured batches when their cron slot comes due
type Scheduler struct {
	entries  map[string]scheduled
	lastRun  map[string]time.Time
	running  map[string]bool
	now      func() time.Time
	interval time.Duration
	mu       sync.RWMutex
}

type scheduled struct {
	config   BatchConfig
	schedule cron.Schedule
}

// NewScheduler validates configs and creates a scheduler for them
func NewScheduler(configs []BatchConfig) (*Scheduler, error) {
	entries, err := compile(configs)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		entries:  entries,
		lastRun:  make(map[string]time.Time),
		running:  make(map[string]bool),
		now:      time.Now,
		interval: time.Minute,
	}, nil
}

func compile(configs []BatchConfig) (map[string]scheduled, error) {
	entries := make(map[string]scheduled, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		sched, err := ParseCron(cfg.Cron)
		if err != nil {
			return nil, err
		}
		entries[cfg.Name] = scheduled{config: cfg, schedule: sched}
	}
	return entries, nil
}

// Replace swaps in a new set of schedules. Run history is kept for names
// that survive; a batch already running finishes under its old config.
func (s *Scheduler) Replace(configs []BatchConfig) error {
	next, err := compile(configs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = next
	for name := range s.lastRun {
		if _, ok := next[name]; !ok {
			delete(s.lastRun, name)
		}
	}
	return nil
}

// NextRun returns the next scheduled run time for a batch
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	return e.schedule.Next(s.now())
}

// ShouldRun returns true if a batch should run now
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok || s.running[name] {
		return false
	}

	now := s.now()
	lastRun := s.lastRun[name]
	if lastRun.IsZero() {
		// first check: only a slot within the last polling interval counts
		lastRun = now.Add(-s.interval)
	}

	return !now.Before(e.schedule.Next(lastRun))
}

// MarkRunning marks a batch as currently running
func (s *Scheduler) MarkRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
}

// MarkComplete marks a batch as complete
func (s *Scheduler) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = s.now()
}

// GetConfig returns the config for a batch
func (s *Scheduler) GetConfig(name string) (BatchConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e.config, ok
}

// ListBatches returns all batch names, sorted
func (s *Scheduler) ListBatches() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start polls the schedules until ctx is cancelled. Each due batch runs in
// its own goroutine under its max_duration deadline; a batch still running
// is not started again.
func (s *Scheduler) Start(ctx context.Context, runFunc func(context.Context, BatchConfig) error) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range s.ListBatches() {
				if !s.ShouldRun(name) {
					continue
				}
				cfg, _ := s.GetConfig(name)
				s.MarkRunning(name)
				wg.Add(1)
				go func(c BatchConfig) {
					defer wg.Done()
					defer s.MarkComplete(c.Name)

					runCtx, cancel := withDeadline(ctx, c.Deadline())
					defer cancel()

					log.Info().Str("component", "scheduler").Str("batch", c.Name).Msg("scheduled batch starting")
					if err := runFunc(runCtx, c); err != nil {
						log.Error().Err(err).Str("component", "scheduler").Str("batch", c.Name).Msg("scheduled batch failed")
					}
				}(cfg)
			}
		}
	}
}

func withDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
