//go:build integration

package integration

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// binaryPath builds the CLI into a temp directory
func binaryPath(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake SWAT+ binary is a shell script")
	}

	out := filepath.Join(t.TempDir(), "coswat-orch")
	cmd := exec.Command("go", "build", "-o", out, "../cmd/coswat-orch")
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, b)
	}
	return out
}

// createTestConfig creates a temporary config file for testing
func createTestConfig(t *testing.T, setupDir, executable, dbPath string) string {
	t.Helper()
	configPath := TempConfigPath(t)

	config := `[general]
model_setup_dir = "` + setupDir + `"
version = "1.0"
run_period = "2001-2001"
executable = "` + executable + `"
concurrency = 2
database_path = "` + dbPath + `"

[run]
mode = "monitored"
timeout = "1m"

[notifications]
desktop = false
on_failure = false

[display]
style = "none"
`

	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	return configPath
}

// TestCLI_Regions tests the regions command
func TestCLI_Regions(t *testing.T) {
	binary := binaryPath(t)
	setupDir := ModelSetup(t,
		Region{Name: "africa", FileCIO: true},
		Region{Name: "europe"},
	)
	configPath := createTestConfig(t, setupDir, FakeExecutable(t), TempDBPath(t))

	cmd := exec.Command(binary, "regions", "--config", configPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("regions command failed: %v\n%s", err, out)
	}

	output := string(out)
	for _, want := range []string{"africa", "europe", "2001-2001", "ready", "cannot run (missing file.cio)", "2 regions in CoSWATv1.0"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output, got: %s", want, output)
		}
	}
}

// TestCLI_RunBatch runs three regions: one completes, one crashes and one
// cannot start.
func TestCLI_RunBatch(t *testing.T) {
	binary := binaryPath(t)
	setupDir := ModelSetup(t,
		Region{Name: "africa", FileCIO: true},
		Region{Name: "asia", FileCIO: true, Crash: true},
		Region{Name: "europe"},
	)
	configPath := createTestConfig(t, setupDir, FakeExecutable(t), TempDBPath(t))
	reportPath := filepath.Join(t.TempDir(), "report.yaml")

	cmd := exec.Command(binary, "run", "--config", configPath, "--report", reportPath)
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
		t.Fatalf("run should exit 1 when regions fail, got %v\n%s", err, out)
	}

	output := string(out)
	for _, want := range []string{"1 completed, 2 failed, 0 timed out", "africa", "failed (runtime)", "failed (launch)", "missing file.cio"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output, got: %s", want, output)
		}
	}

	report, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.Contains(string(report), "region: asia") {
		t.Errorf("report missing asia:\n%s", report)
	}

	log, err := os.ReadFile(filepath.Join(TxtInOut(setupDir, "africa"), "coswat-run.log"))
	if err != nil {
		t.Fatalf("run log not written: %v", err)
	}
	if !strings.Contains(string(log), "Simulation 12 31 2001") {
		t.Error("run log should hold the raw model output")
	}

	// history sees the batch
	hist := exec.Command(binary, "history", "--config", configPath)
	out, err = hist.CombinedOutput()
	if err != nil {
		t.Fatalf("history command failed: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "run") || !strings.Contains(string(out), "COMPLETED") {
		t.Errorf("history output: %s", out)
	}

	region := exec.Command(binary, "history", "--config", configPath, "--region", "asia")
	out, err = region.CombinedOutput()
	if err != nil {
		t.Fatalf("history --region failed: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "error signature") {
		t.Errorf("region history output: %s", out)
	}
}

// TestCLI_RunYearsOverride rewrites time.sim before the run
func TestCLI_RunYearsOverride(t *testing.T) {
	binary := binaryPath(t)
	setupDir := ModelSetup(t, Region{Name: "africa", FileCIO: true})
	configPath := createTestConfig(t, setupDir, FakeExecutable(t), TempDBPath(t))

	cmd := exec.Command(binary, "run", "africa", "--config", configPath, "--years", "1999-2001")
	out, _ := cmd.CombinedOutput()

	timeSim, err := os.ReadFile(filepath.Join(TxtInOut(setupDir, "africa"), "time.sim"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(timeSim), "1999") {
		t.Errorf("time.sim not rewritten:\n%s\noutput: %s", timeSim, out)
	}
}

// TestCLI_UnknownRegion fails before anything is launched
func TestCLI_UnknownRegion(t *testing.T) {
	binary := binaryPath(t)
	setupDir := ModelSetup(t, Region{Name: "africa", FileCIO: true})
	configPath := createTestConfig(t, setupDir, FakeExecutable(t), TempDBPath(t))

	cmd := exec.Command(binary, "run", "atlantis", "--config", configPath)
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("expected failure, got: %s", out)
	}
	if !strings.Contains(string(out), "unknown region") {
		t.Errorf("Expected 'unknown region' in output, got: %s", out)
	}
}
