package executor

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/coswat-global/coswat-orch/internal/domain"
	"github.com/coswat-global/coswat-orch/internal/parser"
	"github.com/coswat-global/coswat-orch/internal/progress"
)

// MonitorOptions configures one pass of the output read loop
type MonitorOptions struct {
	Classifier        *parser.Classifier
	Tracker           *progress.Tracker
	Reporter          progress.Reporter
	PreambleLines     int
	ShortLineSentinel bool
	Tee               io.Writer // raw copy of every line read, may be nil
	Now               func() time.Time
}

// MonitorResult summarises a fully consumed output stream
type MonitorResult struct {
	Lines         int
	Advances      int
	DaysCompleted int
	Error         *domain.Event // first error seen
	StoppedAt     int           // line where the short-line sentinel fired, 0 if never
	ReadErr       error
}

// Monitor reads r line by line until end of stream, classifying each line
// and feeding day advances into the tracker. The stream is always consumed
// to the end, even after an error or a sentinel stop, so the producer never
// blocks on a full pipe.
func Monitor(r io.Reader, unit domain.RunUnit, opts MonitorOptions) MonitorResult {
	if opts.Classifier == nil {
		opts.Classifier = parser.NewClassifier(parser.DefaultErrorSignatures)
	}
	if opts.Tracker == nil {
		opts.Tracker = progress.NewTracker(unit.TotalDays())
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.NopReporter{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var res MonitorResult
	parsing := true

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		res.Lines++
		if opts.Tee != nil {
			io.WriteString(opts.Tee, line+"\n")
		}
		if !parsing {
			continue
		}

		if opts.ShortLineSentinel && res.Lines > opts.PreambleLines && len(strings.Fields(line)) < 2 {
			parsing = false
			res.StoppedAt = res.Lines
			continue
		}

		ev := opts.Classifier.Classify(line)
		ev.ObservedAt = opts.Now()
		switch ev.Kind {
		case domain.EventInit:
			opts.Reporter.Init(unit, ev.Raw)
		case domain.EventDayAdvance:
			res.Advances++
			opts.Reporter.Progress(unit, opts.Tracker.Observe(ev.Date, ev.ObservedAt))
		case domain.EventError:
			if res.Error == nil {
				res.Error = &ev
			}
		}
	}
	if err := scanner.Err(); err != nil {
		res.ReadErr = err
		io.Copy(io.Discard, r)
	}

	res.DaysCompleted = opts.Tracker.DaysCompleted()
	return res
}

// Outcome maps the consumed stream to a terminal result
func (m MonitorResult) Outcome(unit domain.RunUnit) domain.RunResult {
	switch {
	case m.Error != nil:
		r := domain.Failed(unit, domain.FailureRuntime, errorReason(*m.Error))
		r.DaysCompleted = m.DaysCompleted
		return r
	case m.Advances > 0:
		return domain.Completed(unit, m.DaysCompleted)
	default:
		return domain.Failed(unit, domain.FailureSilent, "no progress observed")
	}
}

func errorReason(ev domain.Event) string {
	return fmt.Sprintf("error signature %q: %s", ev.Signature, ev.Raw)
}

// scanSignatures drains r, returning the first line carrying an error
// signature. Progress is never read from this stream.
func scanSignatures(r io.Reader, c *parser.Classifier, tee io.Writer) *domain.Event {
	var hit *domain.Event

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if tee != nil {
			io.WriteString(tee, line+"\n")
		}
		if hit != nil {
			continue
		}
		if sig, ok := c.MatchSignature(line); ok {
			hit = &domain.Event{Kind: domain.EventError, Raw: strings.TrimSpace(line), Signature: sig}
		}
	}
	if scanner.Err() != nil {
		io.Copy(io.Discard, r)
	}
	return hit
}
