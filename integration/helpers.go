//go:build integration

package integration

import (
	"os"
	"path/filepath"
	"testing"
)

// fakeSwat is a stand-in for the SWAT+ binary. It prints one simulated
// year, or crashes part-way through when a file named "crash" is present
// in the working directory.
const fakeSwat = `#!/bin/sh
echo " reading from file.cio"
if [ -f crash ]; then
  awk 'BEGIN { for (i = 1; i <= 31; i++) printf " Simulation 1 %d 2001\n", i }'
  echo "forrtl: severe (174): SIGSEGV, segmentation fault occurred"
  exit 1
fi
awk 'BEGIN { split("31 28 31 30 31 30 31 31 30 31 30 31", d, " "); for (m = 1; m <= 12; m++) for (i = 1; i <= d[m]; i++) printf " Simulation %d %d 2001\n", m, i }'
echo " Execution successfully completed"
`

// Region describes one region of a fake model setup
type Region struct {
	Name    string
	FileCIO bool
	Crash   bool
}

// TempDBPath creates a temporary database path for testing
func TempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// TempConfigPath creates a temporary config file path for testing
func TempConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.toml")
}

// FakeExecutable writes the fake SWAT+ script and returns its path
func FakeExecutable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swatplus")
	if err := os.WriteFile(path, []byte(fakeSwat), 0755); err != nil {
		t.Fatalf("Failed to write fake executable: %v", err)
	}
	return path
}

// ModelSetup creates <root>/CoSWATv1.0/<region>/Scenarios/Default/TxtInOut
// for every region and returns root.
func ModelSetup(t *testing.T, regions ...Region) string {
	t.Helper()
	root := t.TempDir()
	for _, r := range regions {
		dir := TxtInOut(root, r.Name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create region dir: %v", err)
		}
		timeSim := "time.sim: written by test\nday_start  yrc_start   day_end   yrc_end      step  \n       0      2001         0      2001         0  \n"
		writeFile(t, filepath.Join(dir, "time.sim"), timeSim)
		if r.FileCIO {
			writeFile(t, filepath.Join(dir, "file.cio"), "file.cio: written by test\n")
		}
		if r.Crash {
			writeFile(t, filepath.Join(dir, "crash"), "")
		}
	}
	return root
}

// TxtInOut returns a region's working directory
func TxtInOut(root, region string) string {
	return filepath.Join(root, "CoSWATv1.0", region, "Scenarios", "Default", "TxtInOut")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}
