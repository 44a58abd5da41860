package batch

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// WriteReport prints every unit's outcome, successes included
func WriteReport(w io.Writer, b *domain.Batch) error {
	s := b.Summary()
	fmt.Fprintf(w, "\nBatch %s (%s) finished in %s\n", b.Name, shortID(b.ID), b.Duration().Round(time.Second))
	fmt.Fprintf(w, "  %d completed, %d failed, %d timed out", s.Completed, s.Failed, s.TimedOut)
	if s.Pending > 0 {
		fmt.Fprintf(w, ", %d pending", s.Pending)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REGION\tSTATUS\tDAYS\tELAPSED\tREASON")
	for _, r := range b.ResultsByRegion() {
		reason := r.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s\t%s\n",
			r.Unit.Region, statusLabel(r),
			humanize.Comma(int64(r.DaysCompleted)), humanize.Comma(int64(r.TotalDays)),
			r.Elapsed.Round(time.Second), reason)
	}
	return tw.Flush()
}

func statusLabel(r domain.RunResult) string {
	if r.Status == domain.RunFailed && r.Failure != domain.FailureNone {
		return fmt.Sprintf("%s (%s)", r.Status, r.Failure)
	}
	return string(r.Status)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Report is the exported form of a finished batch
type Report struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Concurrency int            `yaml:"concurrency"`
	StartedAt   time.Time      `yaml:"started_at"`
	FinishedAt  time.Time      `yaml:"finished_at"`
	Duration    string         `yaml:"duration"`
	Completed   int            `yaml:"completed"`
	Failed      int            `yaml:"failed"`
	TimedOut    int            `yaml:"timed_out"`
	Results     []ReportResult `yaml:"results"`
}

// ReportResult is one unit's entry in a Report
type ReportResult struct {
	Region        string `yaml:"region"`
	Period        string `yaml:"period"`
	Status        string `yaml:"status"`
	Failure       string `yaml:"failure,omitempty"`
	Reason        string `yaml:"reason,omitempty"`
	DaysCompleted int    `yaml:"days_completed"`
	TotalDays     int    `yaml:"total_days"`
	ExitCode      int    `yaml:"exit_code"`
	Elapsed       string `yaml:"elapsed"`
}

// NewReport builds the exported form of b, results in completion order
func NewReport(b *domain.Batch) Report {
	s := b.Summary()
	rep := Report{
		ID:          b.ID,
		Name:        b.Name,
		Concurrency: b.Concurrency,
		StartedAt:   b.StartedAt,
		FinishedAt:  b.FinishedAt,
		Duration:    b.Duration().Round(time.Second).String(),
		Completed:   s.Completed,
		Failed:      s.Failed,
		TimedOut:    s.TimedOut,
	}
	for _, r := range b.Results() {
		rep.Results = append(rep.Results, ReportResult{
			Region:        r.Unit.Region,
			Period:        r.Unit.Period().String(),
			Status:        string(r.Status),
			Failure:       string(r.Failure),
			Reason:        r.Reason,
			DaysCompleted: r.DaysCompleted,
			TotalDays:     r.TotalDays,
			ExitCode:      r.ExitCode,
			Elapsed:       r.Elapsed.Round(time.Second).String(),
		})
	}
	return rep
}

// WriteYAML encodes the batch report as YAML
func WriteYAML(w io.Writer, b *domain.Batch) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(NewReport(b)); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}

// ExportYAML writes the batch report to path
func ExportYAML(path string, b *domain.Batch) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteYAML(f, b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
