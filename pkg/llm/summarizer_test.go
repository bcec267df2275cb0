package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valentinpelus/linkbrief/pkg/telemetry"
)

type fakeProvider struct {
	output string
	err    error
	prompt string
}

func (p *fakeProvider) Generate(_ context.Context, prompt string) (string, error) {
	p.prompt = prompt
	return p.output, p.err
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-1" }

type fakeRecorder struct {
	traces      []telemetry.Trace
	generations []telemetry.Generation
	traceErr    error
	genErr      error
}

func (r *fakeRecorder) CreateTrace(_ context.Context, trace telemetry.Trace) error {
	if r.traceErr != nil {
		return r.traceErr
	}
	r.traces = append(r.traces, trace)
	return nil
}

func (r *fakeRecorder) RecordGeneration(_ context.Context, gen telemetry.Generation) error {
	if r.genErr != nil {
		return r.genErr
	}
	r.generations = append(r.generations, gen)
	return nil
}

func (r *fakeRecorder) RecordScore(context.Context, telemetry.Score) error { return nil }
func (r *fakeRecorder) Name() string                                       { return "fake" }

func TestSummarizeWithoutTelemetry(t *testing.T) {
	provider := &fakeProvider{output: "<b>Brief</b>"}
	s := NewSummarizer(provider, nil, "T: {text}", nil)

	res := s.Summarize(context.Background(), "https://example.com", "body")

	assert.Equal(t, "<b>Brief</b>", res.Summary)
	assert.Nil(t, res.Err)
	assert.Empty(t, res.TraceID)
	assert.Equal(t, "T: body", provider.prompt)
}

func TestSummarizeRecordsGeneration(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewSummarizer(&fakeProvider{output: "ok"}, telemetry.NewTracer(rec, nil), "{text}", nil)

	res := s.Summarize(context.Background(), "https://example.com/a", "body")

	require.NotEmpty(t, res.TraceID)
	require.Len(t, rec.traces, 1)
	require.Len(t, rec.generations, 1)
	assert.Equal(t, res.TraceID, rec.traces[0].ID)
	assert.Equal(t, "https://example.com/a", rec.traces[0].Metadata["url"])
	assert.Equal(t, res.TraceID, rec.generations[0].TraceID)
	assert.Equal(t, "ok", rec.generations[0].Output)
	assert.False(t, rec.generations[0].Failed())
}

func TestSummarizeTelemetryFailureDropsTrace(t *testing.T) {
	t.Run("trace rejected", func(t *testing.T) {
		rec := &fakeRecorder{traceErr: errors.New("down")}
		s := NewSummarizer(&fakeProvider{output: "ok"}, telemetry.NewTracer(rec, nil), "{text}", nil)

		res := s.Summarize(context.Background(), "u", "t")
		assert.Equal(t, "ok", res.Summary)
		assert.Empty(t, res.TraceID)
	})

	t.Run("generation rejected", func(t *testing.T) {
		rec := &fakeRecorder{genErr: errors.New("down")}
		s := NewSummarizer(&fakeProvider{output: "ok"}, telemetry.NewTracer(rec, nil), "{text}", nil)

		res := s.Summarize(context.Background(), "u", "t")
		assert.Equal(t, "ok", res.Summary)
		assert.Empty(t, res.TraceID)
	})
}

func TestSummarizeClassifiesFailure(t *testing.T) {
	rec := &fakeRecorder{}
	provider := &fakeProvider{err: &StatusError{Provider: "fake", StatusCode: 429, Message: "slow down"}}
	s := NewSummarizer(provider, telemetry.NewTracer(rec, nil), "{text}", nil)

	res := s.Summarize(context.Background(), "u", "t")

	require.NotNil(t, res.Err)
	assert.Equal(t, ClientRateLimited, res.Err.Kind)
	assert.Empty(t, res.Summary)
	assert.Empty(t, res.TraceID)
	require.Len(t, rec.generations, 1)
	assert.True(t, rec.generations[0].Failed())
}
