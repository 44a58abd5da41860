package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coswat-global/coswat-orch/internal/batch"
	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/parser"
	"github.com/coswat-global/coswat-orch/internal/progress"
	"github.com/coswat-global/coswat-orch/internal/setup"
	"github.com/pelletier/go-toml/v2"
)

// LocalConfigName is looked up in the working directory and its parents
const LocalConfigName = ".coswat-orch.toml"

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Run           RunConfig           `toml:"run"`
	Setup         SetupConfig         `toml:"setup"`
	Notifications NotificationsConfig `toml:"notifications"`
	Display       DisplayConfig       `toml:"display"`
	Schedules     []batch.BatchConfig `toml:"schedule"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	ModelSetupDir string `toml:"model_setup_dir"`
	Version       string `toml:"version"`
	RunPeriod     string `toml:"run_period"`
	Executable    string `toml:"executable"`
	Concurrency   int    `toml:"concurrency"`
	DatabasePath  string `toml:"database_path"`
}

// RunConfig holds settings for supervising the model binary
type RunConfig struct {
	Mode              string   `toml:"mode"` // monitored, quiet or direct
	Timeout           string   `toml:"timeout"`
	LogOutput         bool     `toml:"log_output"`
	ShortLineSentinel bool     `toml:"short_line_sentinel"`
	PreambleLines     int      `toml:"preamble_lines"`
	WindowSize        int      `toml:"window_size"`
	MinSamples        int      `toml:"min_samples"`
	ErrorSignatures   []string `toml:"error_signatures"`
}

// SetupConfig holds the per-region preparation pipeline
type SetupConfig struct {
	GetData    bool         `toml:"get_data"`
	Steps      []setup.Step `toml:"steps"`
	PostSteps  []setup.Step `toml:"post_steps"`
	AfterBatch string       `toml:"after_batch"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
	OnFailure    bool   `toml:"on_failure"`
}

// DisplayConfig holds progress display settings
type DisplayConfig struct {
	Style    string `toml:"style"` // auto, line, bars, tui or none
	BarWidth int    `toml:"bar_width"`
}

// Display styles
const (
	DisplayAuto  = "auto"
	DisplayLine  = "line"
	DisplayBars  = "bars"
	DisplayTUI   = "tui"
	DisplayNone  = "none"
	defaultStyle = DisplayAuto
)

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			ModelSetupDir: "",
			Version:       "1.0",
			RunPeriod:     "2001-2010",
			Executable:    "swatplus",
			Concurrency:   4,
			DatabasePath:  filepath.Join(home, ".coswat-orch", "history.db"),
		},
		Run: RunConfig{
			Mode:            string(domain.ModeMonitored),
			LogOutput:       true,
			PreambleLines:   10,
			WindowSize:      2557,
			MinSamples:      40,
			ErrorSignatures: append([]string(nil), parser.DefaultErrorSignatures...),
		},
		Setup: SetupConfig{
			GetData: true,
		},
		Notifications: NotificationsConfig{
			Desktop:   true,
			OnFailure: true,
		},
		Display: DisplayConfig{
			Style:    defaultStyle,
			BarWidth: 20,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Expand paths
	cfg.General.ModelSetupDir = ExpandPath(cfg.General.ModelSetupDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.Executable = ExpandPath(cfg.General.Executable)

	return cfg, nil
}

// LoadWithLocalFallback loads the file chosen by ResolvePath
func LoadWithLocalFallback(explicitPath string) (*Config, error) {
	return Load(ResolvePath(explicitPath))
}

// ResolvePath returns explicitPath when given, otherwise the nearest local
// config, otherwise the default config path.
func ResolvePath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}
	if local := FindLocalConfig(); local != "" {
		return local
	}
	return DefaultConfigPath()
}

// FindLocalConfig walks up from the working directory looking for
// LocalConfigName. It returns "" when none is found.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Save writes the configuration as TOML, creating parent directories
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks values that cannot be caught by the TOML decoder
func (c *Config) Validate() error {
	if c.General.Concurrency <= 0 {
		return fmt.Errorf("general.concurrency: %w: got %d", batch.ErrInvalidConcurrency, c.General.Concurrency)
	}
	if _, err := c.Period(); err != nil {
		return fmt.Errorf("general.run_period: %w", err)
	}
	if _, ok := domain.ParseRunMode(c.Run.Mode); !ok {
		return fmt.Errorf("run.mode: unknown mode %q", c.Run.Mode)
	}
	if _, err := c.RunTimeout(); err != nil {
		return fmt.Errorf("run.timeout: %w", err)
	}
	if c.Run.PreambleLines < 0 {
		return fmt.Errorf("run.preamble_lines: must not be negative, got %d", c.Run.PreambleLines)
	}
	if c.Run.WindowSize < 0 || c.Run.MinSamples < 0 {
		return fmt.Errorf("run.window_size and run.min_samples must not be negative")
	}
	window := c.Run.WindowSize
	if window == 0 {
		window = progress.DefaultWindowSize
	}
	if c.Run.MinSamples > window {
		return fmt.Errorf("run.min_samples (%d) exceeds run.window_size (%d): no ETA would ever be shown", c.Run.MinSamples, window)
	}
	switch c.Display.Style {
	case DisplayAuto, DisplayLine, DisplayBars, DisplayTUI, DisplayNone, "":
	default:
		return fmt.Errorf("display.style: unknown style %q", c.Display.Style)
	}
	for i, s := range c.Setup.Steps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("setup.steps[%d]: %w", i, err)
		}
	}
	for i, s := range c.Setup.PostSteps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("setup.post_steps[%d]: %w", i, err)
		}
	}
	for i := range c.Schedules {
		if err := c.Schedules[i].Validate(); err != nil {
			return fmt.Errorf("schedule %d: %w", i, err)
		}
	}
	return nil
}

// Period returns the configured default run period
func (c *Config) Period() (domain.RunPeriod, error) {
	return domain.ParseRunPeriod(c.General.RunPeriod)
}

// RunMode returns the configured supervision strategy
func (c *Config) RunMode() domain.RunMode {
	mode, ok := domain.ParseRunMode(c.Run.Mode)
	if !ok {
		return domain.ModeMonitored
	}
	return mode
}

// RunTimeout returns the per-run deadline; zero when unset
func (c *Config) RunTimeout() (time.Duration, error) {
	if c.Run.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Run.Timeout)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "coswat-orch", "config.toml")
}
