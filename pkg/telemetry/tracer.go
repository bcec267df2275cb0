package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultCallTimeout = 10 * time.Second

// Tracer is the call-site facade over an optional Recorder. A nil Tracer or
// one built without a Recorder is valid and records nothing.
type Tracer struct {
	recorder Recorder
	logger   *zap.Logger
	timeout  time.Duration
	newID    func() string
}

// NewTracer wraps recorder, which may be nil when telemetry is not configured
func NewTracer(recorder Recorder, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{
		recorder: recorder,
		logger:   logger,
		timeout:  defaultCallTimeout,
		newID:    func() string { return uuid.NewString() },
	}
}

// Enabled reports whether a backend is configured
func (t *Tracer) Enabled() bool {
	return t != nil && t.recorder != nil
}

// Begin opens a trace and returns its id, or "" when telemetry is disabled
// or the backend rejected the call.
func (t *Tracer) Begin(ctx context.Context, name, input string, metadata map[string]string) string {
	if !t.Enabled() {
		return ""
	}
	trace := Trace{
		ID:        t.newID(),
		Name:      name,
		Input:     input,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.recorder.CreateTrace(callCtx, trace); err != nil {
		t.logger.Warn("telemetry trace not created",
			zap.String("backend", t.recorder.Name()), zap.Error(err))
		return ""
	}
	return trace.ID
}

// Generation records gen under traceID. It reports false when nothing was
// recorded, in which case the trace must not be used for feedback.
func (t *Tracer) Generation(ctx context.Context, traceID string, gen Generation) bool {
	if !t.Enabled() || traceID == "" {
		return false
	}
	gen.TraceID = traceID
	if gen.ID == "" {
		gen.ID = t.newID()
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.recorder.RecordGeneration(callCtx, gen); err != nil {
		t.logger.Warn("telemetry generation not recorded",
			zap.String("backend", t.recorder.Name()),
			zap.String("trace_id", traceID),
			zap.Error(err))
		return false
	}
	return true
}

// Score attaches score to traceID and reports whether it was accepted
func (t *Tracer) Score(ctx context.Context, traceID string, score Score) bool {
	if !t.Enabled() || traceID == "" {
		return false
	}
	score.TraceID = traceID
	if score.ID == "" {
		score.ID = t.newID()
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.recorder.RecordScore(callCtx, score); err != nil {
		t.logger.Warn("telemetry score not recorded",
			zap.String("backend", t.recorder.Name()),
			zap.String("trace_id", traceID),
			zap.String("score", score.Name),
			zap.Error(err))
		return false
	}
	return true
}
