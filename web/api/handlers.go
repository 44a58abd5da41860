package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/runstore"
)

// BatchResponse is the API response for a batch
type BatchResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Concurrency int     `json:"concurrency"`
	Regions     int     `json:"regions"`
	StartedAt   *string `json:"started_at,omitempty"`
	FinishedAt  *string `json:"finished_at,omitempty"`
	Duration    string  `json:"duration"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	TimedOut    int     `json:"timed_out"`
}

// ResultResponse is the API response for one region's result
type ResultResponse struct {
	Region        string `json:"region"`
	Status        string `json:"status"`
	Failure       string `json:"failure,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Period        string `json:"period"`
	DaysCompleted int    `json:"days_completed"`
	TotalDays     int    `json:"total_days"`
	ExitCode      int    `json:"exit_code"`
	Elapsed       string `json:"elapsed"`
}

// BatchDetailResponse is a batch with its results
type BatchDetailResponse struct {
	BatchResponse
	Results []ResultResponse `json:"results"`
}

// StatusResponse is the live state of the batch running in this process
type StatusResponse struct {
	Live    bool           `json:"live"`
	Running int            `json:"running"`
	Done    int            `json:"done"`
	Regions []RegionStatus `json:"regions"`
}

func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func batchToResponse(b runstore.BatchRecord) BatchResponse {
	return BatchResponse{
		ID:          b.ID,
		Name:        b.Name,
		Concurrency: b.Concurrency,
		Regions:     b.Units,
		StartedAt:   formatTime(b.StartedAt),
		FinishedAt:  formatTime(b.FinishedAt),
		Duration:    b.Duration().Round(time.Second).String(),
		Completed:   b.Completed,
		Failed:      b.Failed,
		TimedOut:    b.TimedOut,
	}
}

func resultToResponse(r domain.RunResult) ResultResponse {
	return ResultResponse{
		Region:        r.Unit.Region,
		Status:        string(r.Status),
		Failure:       string(r.Failure),
		Reason:        r.Reason,
		Period:        r.Unit.Period().String(),
		DaysCompleted: r.DaysCompleted,
		TotalDays:     r.TotalDays,
		ExitCode:      r.ExitCode,
		Elapsed:       r.Elapsed.Round(time.Second).String(),
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		status := StatusResponse{Regions: []RegionStatus{}}
		if s.live != nil {
			status.Live = true
			status.Regions = s.live.Snapshot()
			for _, rs := range status.Regions {
				if rs.State == "finished" {
					status.Done++
				} else {
					status.Running++
				}
			}
		}

		writeJSON(w, status)
	}
}

func (s *Server) listBatchesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		batches, err := s.store.ListBatches(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]BatchResponse, len(batches))
		for i, b := range batches {
			responses[i] = batchToResponse(b)
		}

		writeJSON(w, responses)
	}
}

func (s *Server) getBatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		// Extract batch ID or prefix from path: /api/batches/{id}
		id := strings.TrimPrefix(r.URL.Path, "/api/batches/")
		if id == "" {
			writeError(w, http.StatusBadRequest, "batch ID required")
			return
		}

		b, err := s.store.GetBatch(id)
		if errors.Is(err, runstore.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		results, err := s.store.GetBatchResults(b.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := BatchDetailResponse{
			BatchResponse: batchToResponse(b),
			Results:       make([]ResultResponse, len(results)),
		}
		for i, res := range results {
			resp.Results[i] = resultToResponse(res)
		}

		writeJSON(w, resp)
	}
}
