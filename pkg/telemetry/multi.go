package telemetry

import (
	"context"
	"errors"
	"strings"
)

// Multi fans every call out to several recorders. A call fails if any
// backend fails, so a trace is only used for feedback when all of them hold it.
type Multi []Recorder

// Combine returns nil for no recorders, the recorder itself for one, and a
// Multi otherwise.
func Combine(recorders ...Recorder) Recorder {
	var live Multi
	for _, r := range recorders {
		if r != nil {
			live = append(live, r)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	default:
		return live
	}
}

func (m Multi) CreateTrace(ctx context.Context, trace Trace) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.CreateTrace(ctx, trace))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordGeneration(ctx context.Context, gen Generation) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordGeneration(ctx, gen))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordScore(ctx context.Context, score Score) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordScore(ctx, score))
	}
	return errors.Join(errs...)
}

func (m Multi) Name() string {
	names := make([]string, 0, len(m))
	for _, r := range m {
		names = append(names, r.Name())
	}
	return strings.Join(names, "+")
}
