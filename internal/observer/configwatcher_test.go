package observer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[general]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	changes := make(chan string, 10)
	fw, err := NewFileWatcher(path, func(p string) { changes <- p })
	if err != nil {
		t.Fatal(err)
	}
	fw.SetDebounce(100 * time.Millisecond)
	fw.Start(context.Background())
	defer fw.Stop()

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("[general]\nconcurrency = 2\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case got := <-changes:
		if filepath.Base(got) != "config.toml" {
			t.Errorf("callback path = %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	select {
	case <-changes:
		t.Error("burst of writes should be reported once")
	case <-time.After(400 * time.Millisecond):
	}
}

func TestFileWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	changes := make(chan string, 10)
	fw, err := NewFileWatcher(path, func(p string) { changes <- p })
	if err != nil {
		t.Fatal(err)
	}
	fw.SetDebounce(50 * time.Millisecond)
	fw.Start(context.Background())
	defer fw.Stop()

	if err := os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changes:
		t.Errorf("unexpected change for %q", got)
	case <-time.After(300 * time.Millisecond):
	}
}
