package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/phuslu/log"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	Region  string // Optional region reference
	BatchID string // Optional batch reference
	Details []Detail
}

// Detail is a labelled value shown alongside the message where the
// channel supports it.
type Detail struct {
	Label string
	Value string
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send delivers to every notifier, joining their errors
func (m *MultiNotifier) Send(n Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// ForResult describes a single region's outcome
func ForResult(r domain.RunResult) Notification {
	n := Notification{
		Title:   fmt.Sprintf("SWAT+ %s: %s", r.Unit.Region, r.Status),
		Region:  r.Unit.Region,
		Details: []Detail{
			{"Period", r.Unit.Period().String()},
			{"Days", fmt.Sprintf("%d/%d", r.DaysCompleted, r.TotalDays)},
			{"Elapsed", r.Elapsed.Round(time.Second).String()},
		},
	}
	switch r.Status {
	case domain.RunCompleted:
		n.Type = NotifySuccess
		n.Message = fmt.Sprintf("%d/%d days simulated in %s", r.DaysCompleted, r.TotalDays, r.Elapsed.Round(time.Second))
	case domain.RunTimedOut:
		n.Type = NotifyWarning
		n.Message = fmt.Sprintf("timed out after %s at %d/%d days", r.Elapsed.Round(time.Second), r.DaysCompleted, r.TotalDays)
	default:
		n.Type = NotifyError
		n.Message = fmt.Sprintf("[%s] %s", r.Failure, r.Reason)
		if r.ExitCode >= 0 {
			n.Details = append(n.Details, Detail{"Exit code", fmt.Sprint(r.ExitCode)})
		}
	}
	return n
}

// ForBatch summarises a finished batch
func ForBatch(b *domain.Batch) Notification {
	s := b.Summary()
	n := Notification{
		Title:   fmt.Sprintf("Batch %s finished", b.Name),
		Message: fmt.Sprintf("%d completed, %d failed, %d timed out in %s", s.Completed, s.Failed, s.TimedOut, b.Duration().Round(time.Second)),
		Type:    NotifySuccess,
		BatchID: b.ID,
		Details: []Detail{
			{"Regions", fmt.Sprint(len(b.Units))},
			{"Concurrency", fmt.Sprint(b.Concurrency)},
		},
	}
	if s.Failed > 0 || s.TimedOut > 0 {
		n.Type = NotifyWarning
		if s.Completed == 0 {
			n.Type = NotifyError
		}
	}
	return n
}

// FailureHook returns a result hook sending a notification for every
// region that did not complete.
func FailureHook(notifier Notifier) func(*domain.Batch, domain.RunResult) {
	return func(b *domain.Batch, r domain.RunResult) {
		if r.Succeeded() {
			return
		}
		n := ForResult(r)
		n.BatchID = b.ID
		if err := notifier.Send(n); err != nil {
			log.Warn().Err(err).Str("component", "notify").Str("region", r.Unit.Region).Msg("failure notification not delivered")
		}
	}
}
