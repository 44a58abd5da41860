package api

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/progress"
	"github.com/coswat-global/coswat-orch/internal/runstore"
)

func unit(region string) domain.RunUnit {
	return domain.RunUnit{Region: region, WorkDir: "/data/" + region, Executable: "swatplus", StartYear: 2001, EndYear: 2001}
}

func seededStore(t *testing.T) *runstore.Store {
	t.Helper()
	store, err := runstore.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	b := domain.NewBatch("4f2a9c1e-0000", "global", 2, []domain.RunUnit{unit("africa"), unit("asia")})
	b.StartedAt = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	b.Record(domain.Completed(unit("africa"), 365))
	b.Record(domain.Failed(unit("asia"), domain.FailureRuntime, "error signature \"forrtl: severe\""))
	b.FinishedAt = b.StartedAt.Add(time.Hour)

	if err := store.SaveBatch(b); err != nil {
		t.Fatal(err)
	}
	for _, r := range b.Results() {
		if err := store.RecordResult(b.ID, r); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestListBatchesHandler(t *testing.T) {
	server := NewServer(seededStore(t), nil, ":0")

	w := get(t, server.Handler(), "/api/batches")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}

	var batches []BatchResponse
	if err := json.NewDecoder(w.Body).Decode(&batches); err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 {
		t.Fatalf("Batch count = %d, want 1", len(batches))
	}
	if batches[0].Completed != 1 || batches[0].Failed != 1 || batches[0].Duration != "1h0m0s" {
		t.Errorf("batch = %+v", batches[0])
	}

	if w := get(t, server.Handler(), "/api/batches?limit=x"); w.Code != http.StatusBadRequest {
		t.Errorf("invalid limit: Status = %d, want 400", w.Code)
	}
}

func TestGetBatchHandler(t *testing.T) {
	server := NewServer(seededStore(t), nil, ":0")

	w := get(t, server.Handler(), "/api/batches/4f2a")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	var detail BatchDetailResponse
	if err := json.NewDecoder(w.Body).Decode(&detail); err != nil {
		t.Fatal(err)
	}
	if detail.ID != "4f2a9c1e-0000" || len(detail.Results) != 2 {
		t.Fatalf("detail = %+v", detail)
	}
	if detail.Results[1].Failure != "runtime" || detail.Results[1].Period != "2001-2001" {
		t.Errorf("second result = %+v", detail.Results[1])
	}

	if w := get(t, server.Handler(), "/api/batches/ffff"); w.Code != http.StatusNotFound {
		t.Errorf("unknown batch: Status = %d, want 404", w.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	live := NewReporter()
	server := NewServer(seededStore(t), live, ":0")

	live.Start(unit("africa"))
	live.Progress(unit("africa"), progress.Snapshot{DaysCompleted: 73, TotalDays: 365})
	live.Start(unit("asia"))
	live.Finish(domain.TimedOut(unit("asia"), 12))

	w := get(t, server.Handler(), "/api/status")
	var status StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if !status.Live || status.Running != 1 || status.Done != 1 {
		t.Errorf("status = %+v", status)
	}
	if status.Regions[0].Region != "africa" || math.Abs(status.Regions[0].Percent-20) > 0.001 {
		t.Errorf("africa = %+v", status.Regions[0])
	}
	if status.Regions[1].Status != "timed_out" {
		t.Errorf("asia = %+v", status.Regions[1])
	}

	idle := NewServer(seededStore(t), nil, ":0")
	w = get(t, idle.Handler(), "/api/status")
	if !strings.Contains(w.Body.String(), `"live":false`) {
		t.Errorf("idle status = %s", w.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server := NewServer(seededStore(t), nil, ":0")
	req := httptest.NewRequest("POST", "/api/batches", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d, want 405", w.Code)
	}
}

func TestEventsStreamLiveProgress(t *testing.T) {
	live := NewReporter()
	server := NewServer(seededStore(t), live, ":0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.sseHub.Run(ctx)

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	live.Start(unit("europe"))

	lines := make(chan string, 100)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before the start event")
			}
			if strings.HasPrefix(line, "data: ") {
				if !strings.Contains(line, `"region":"europe"`) {
					t.Errorf("data = %s", line)
				}
				return
			}
		case <-deadline:
			t.Fatal("no event received")
		}
	}
}
