package executor

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/progress"
)

// scenarioEnv makes the test binary act as a fake SWAT+ executable
const scenarioEnv = "COSWAT_FAKE_SWAT"

func TestMain(m *testing.M) {
	if scenario := os.Getenv(scenarioEnv); scenario != "" {
		os.Exit(fakeSWAT(scenario))
	}
	os.Exit(m.Run())
}

// fakeSWAT mimics the console output of the model binary
func fakeSWAT(scenario string) int {
	fmt.Println("               SWAT+")
	fmt.Println("             Revision 60.5.7")
	fmt.Println("  reading from file.cio")

	switch scenario {
	case "complete":
		printLines(yearLines(2001))
		fmt.Println(" Execution successfully completed")
		return 0
	case "complete-exit-3":
		printLines(yearLines(2001))
		return 3
	case "crash":
		lines := yearLines(2001)
		printLines(lines[:100])
		fmt.Println("forrtl: severe (157): Program Exception - access violation")
		printLines(lines[100:110])
		return 1
	case "stderr-crash":
		printLines(yearLines(2001)[:10])
		fmt.Fprintln(os.Stderr, "Segmentation fault (core dumped)")
		return 139
	case "silent":
		for i := 0; i < 50; i++ {
			fmt.Println("  reading weather file", i)
		}
		return 0
	case "hang":
		printLines(yearLines(2001)[:3])
		time.Sleep(time.Minute)
		return 0
	default:
		fmt.Fprintln(os.Stderr, "unknown scenario", scenario)
		return 2
	}
}

func printLines(lines []string) {
	for _, l := range lines {
		fmt.Println(l)
	}
}

// yearLines returns one Simulation line per day of year
func yearLines(year int) []string {
	var lines []string
	for d := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC); d.Year() == year; d = d.AddDate(0, 0, 1) {
		lines = append(lines, fmt.Sprintf("  Simulation %4d %3d %6d", int(d.Month()), d.Day(), d.Year()))
	}
	return lines
}

func stream(lines ...[]string) *strings.Reader {
	var b strings.Builder
	for _, group := range lines {
		for _, l := range group {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}
	return strings.NewReader(b.String())
}

// fakeClock advances one second per call
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// recordingReporter captures every callback
type recordingReporter struct {
	mu        sync.Mutex
	starts    []string
	inits     []string
	snapshots []progress.Snapshot
	results   []domain.RunResult
}

func (r *recordingReporter) Start(unit domain.RunUnit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, unit.Region)
}

func (r *recordingReporter) Init(unit domain.RunUnit, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inits = append(r.inits, text)
}

func (r *recordingReporter) Progress(unit domain.RunUnit, snap progress.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snap)
}

func (r *recordingReporter) Finish(result domain.RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func unit2001(workDir, exe string) domain.RunUnit {
	return domain.RunUnit{
		Region:     "africa",
		WorkDir:    workDir,
		Executable: exe,
		StartYear:  2001,
		EndYear:    2001,
	}
}
