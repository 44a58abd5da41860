package api

import (
	"sort"
	"sync"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/progress"
)

// RegionStatus is the live state of one region
type RegionStatus struct {
	Region        string  `json:"region"`
	State         string  `json:"state"` // running or finished
	Date          string  `json:"date,omitempty"`
	DaysCompleted int     `json:"days_completed"`
	TotalDays     int     `json:"total_days"`
	Percent       float64 `json:"percent"`
	ETA           string  `json:"eta,omitempty"`
	Status        string  `json:"status,omitempty"`
	Failure       string  `json:"failure,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// Reporter keeps the live state of the current batch and broadcasts every
// change to SSE clients.
type Reporter struct {
	regions map[string]*RegionStatus
	hub     *SSEHub
	mu      sync.Mutex
}

var _ progress.Reporter = (*Reporter)(nil)

// NewReporter creates an empty live reporter
func NewReporter() *Reporter {
	return &Reporter{regions: make(map[string]*RegionStatus)}
}

func (r *Reporter) attach(hub *SSEHub) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hub = hub
}

func (r *Reporter) Start(unit domain.RunUnit) {
	r.update("start", unit.Region, func(s *RegionStatus) {
		*s = RegionStatus{Region: unit.Region, State: "running", TotalDays: unit.TotalDays()}
	})
}

func (r *Reporter) Init(unit domain.RunUnit, text string) {}

func (r *Reporter) Progress(unit domain.RunUnit, snap progress.Snapshot) {
	r.update("progress", unit.Region, func(s *RegionStatus) {
		s.State = "running"
		s.Date = snap.Date.String()
		s.DaysCompleted = snap.DaysCompleted
		s.TotalDays = snap.TotalDays
		s.Percent = snap.Fraction() * 100
		s.ETA = ""
		if snap.HasETA {
			s.ETA = progress.FormatETA(snap.ETA)
		}
	})
}

func (r *Reporter) Finish(result domain.RunResult) {
	r.update("finish", result.Unit.Region, func(s *RegionStatus) {
		s.State = "finished"
		s.DaysCompleted = result.DaysCompleted
		s.TotalDays = result.TotalDays
		if result.TotalDays > 0 {
			s.Percent = float64(result.DaysCompleted) / float64(result.TotalDays) * 100
		}
		s.ETA = ""
		s.Status = string(result.Status)
		s.Failure = string(result.Failure)
		s.Reason = result.Reason
	})
}

func (r *Reporter) update(kind, region string, fn func(*RegionStatus)) {
	r.mu.Lock()
	s, ok := r.regions[region]
	if !ok {
		s = &RegionStatus{Region: region}
		r.regions[region] = s
	}
	fn(s)
	snapshot := *s
	hub := r.hub
	r.mu.Unlock()

	if hub != nil {
		hub.Broadcast(SSEEvent{Type: kind, Data: snapshot})
	}
}

// Snapshot returns every region's status sorted by region
func (r *Reporter) Snapshot() []RegionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RegionStatus, 0, len(r.regions))
	for _, s := range r.regions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Region < out[j].Region })
	return out
}
