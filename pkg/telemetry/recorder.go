// Package telemetry records generation traces and reader scores with an
// external observability backend.
//
// Every call is best effort. A Tracer wraps an optional Recorder and turns
// each failure into "no trace" plus a log line, so callers never branch on
// telemetry errors.
package telemetry

import (
	"context"
	"time"
)

// Score names understood by the evaluation tooling
const (
	ScoreUserRating  = "user_rating"
	ScoreUserComment = "user_comment"
)

// Trace is the root of one generation event
type Trace struct {
	ID        string
	Name      string
	Input     string
	Metadata  map[string]string
	Timestamp time.Time
}

// Generation is a single LLM call inside a trace
type Generation struct {
	ID        string
	TraceID   string
	Name      string
	Model     string
	Input     string
	Output    string
	Error     string // set when the call failed; Output is then empty
	StartTime time.Time
	EndTime   time.Time
}

// Failed reports whether the generation ended with an error status
func (g Generation) Failed() bool {
	return g.Error != ""
}

// Score is reader feedback attached to a trace. Numeric scores use Value;
// free-text scores use Text.
type Score struct {
	ID      string
	TraceID string
	Name    string
	Value   float64
	Text    string
	Comment string
}

// IsText reports whether the score carries free text instead of a number
func (s Score) IsText() bool {
	return s.Text != ""
}

// Recorder is a telemetry backend
type Recorder interface {
	CreateTrace(ctx context.Context, trace Trace) error
	RecordGeneration(ctx context.Context, gen Generation) error
	RecordScore(ctx context.Context, score Score) error
	Name() string
}
