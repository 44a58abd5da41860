// Package parser turns raw SWAT+ console output and TxtInOut control files
// into domain values.
package parser

import (
	"strconv"
	"strings"

	"github.com/coswat-global/coswat-orch/internal/domain"
)

const (
	simulationToken = "Simulation"
	readingToken    = "reading"
)

// DefaultErrorSignatures are substrings emitted by the OS or the Fortran
// runtime when the model binary crashes.
var DefaultErrorSignatures = []string{
	"ntdll.dll",
	"forrtl: severe",
	"Segmentation fault",
}

// Classifier maps one output line to exactly one event. It never fails:
// anything it cannot interpret is noise.
type Classifier struct {
	signatures []string
}

// NewClassifier creates a classifier using the given error signatures.
// Empty signatures are dropped; a nil slice disables error detection.
func NewClassifier(signatures []string) *Classifier {
	sigs := make([]string, 0, len(signatures))
	for _, s := range signatures {
		if s != "" {
			sigs = append(sigs, s)
		}
	}
	return &Classifier{signatures: sigs}
}

// Signatures returns the configured error signatures
func (c *Classifier) Signatures() []string {
	out := make([]string, len(c.signatures))
	copy(out, c.signatures)
	return out
}

// Classify interprets a single line of output
func (c *Classifier) Classify(line string) domain.Event {
	ev := domain.Event{Kind: domain.EventNoise, Raw: strings.TrimSpace(line)}

	// A crash marker outranks anything else on the same line
	if sig, ok := c.MatchSignature(line); ok {
		ev.Kind = domain.EventError
		ev.Signature = sig
		return ev
	}

	fields := strings.Fields(line)
	if idx := indexOf(fields, simulationToken); idx >= 0 {
		if date, ok := parseDate(fields[idx+1:]); ok {
			ev.Kind = domain.EventDayAdvance
			ev.Date = date
		}
		return ev
	}

	if indexOf(fields, readingToken) >= 0 {
		ev.Kind = domain.EventInit
	}
	return ev
}

// MatchSignature reports the first error signature contained in line
func (c *Classifier) MatchSignature(line string) (string, bool) {
	for _, sig := range c.signatures {
		if strings.Contains(line, sig) {
			return sig, true
		}
	}
	return "", false
}

// parseDate reads month, day, year from the tokens following "Simulation"
func parseDate(fields []string) (domain.SimulationDate, bool) {
	if len(fields) < 3 {
		return domain.SimulationDate{}, false
	}
	month, err := strconv.Atoi(fields[0])
	if err != nil {
		return domain.SimulationDate{}, false
	}
	day, err := strconv.Atoi(fields[1])
	if err != nil {
		return domain.SimulationDate{}, false
	}
	year, err := strconv.Atoi(fields[2])
	if err != nil {
		return domain.SimulationDate{}, false
	}
	return domain.NewSimulationDate(day, month, year)
}

func indexOf(fields []string, token string) int {
	for i, f := range fields {
		if f == token {
			return i
		}
	}
	return -1
}
