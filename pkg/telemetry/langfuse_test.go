package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedBatch struct {
	Batch []struct {
		ID   string         `json:"id"`
		Type string         `json:"type"`
		Body map[string]any `json:"body"`
	} `json:"batch"`
}

func newLangfuseServer(t *testing.T, status int, response string, got *capturedBatch) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/public/ingestion", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "pk", user)
		assert.Equal(t, "sk", pass)
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLangfuseRecordScore(t *testing.T) {
	var got capturedBatch
	srv := newLangfuseServer(t, http.StatusMultiStatus, `{"successes":[{"id":"x","status":201}],"errors":[]}`, &got)
	c := NewLangfuseClient(srv.URL+"/", "pk", "sk")

	err := c.RecordScore(context.Background(), Score{ID: "s1", TraceID: "t1", Name: ScoreUserRating, Value: 1, Comment: "up"})
	require.NoError(t, err)

	require.Len(t, got.Batch, 1)
	assert.Equal(t, "score-create", got.Batch[0].Type)
	assert.NotEmpty(t, got.Batch[0].ID)
	assert.Equal(t, "t1", got.Batch[0].Body["traceId"])
	assert.Equal(t, "BOOLEAN", got.Batch[0].Body["dataType"])
	assert.Equal(t, float64(1), got.Batch[0].Body["value"])
	assert.Equal(t, "up", got.Batch[0].Body["comment"])
}

func TestLangfuseTextScore(t *testing.T) {
	var got capturedBatch
	srv := newLangfuseServer(t, http.StatusMultiStatus, `{"successes":[],"errors":[]}`, &got)
	c := NewLangfuseClient(srv.URL, "pk", "sk")

	require.NoError(t, c.RecordScore(context.Background(), Score{ID: "s", TraceID: "t1", Name: ScoreUserComment, Text: "too long"}))
	assert.Equal(t, "CATEGORICAL", got.Batch[0].Body["dataType"])
	assert.Equal(t, "too long", got.Batch[0].Body["value"])
}

func TestLangfuseFailedGeneration(t *testing.T) {
	var got capturedBatch
	srv := newLangfuseServer(t, http.StatusMultiStatus, `{"successes":[],"errors":[]}`, &got)
	c := NewLangfuseClient(srv.URL, "pk", "sk")

	now := time.Now()
	err := c.RecordGeneration(context.Background(), Generation{
		ID: "g", TraceID: "t1", Name: "summarize", Model: "m", Input: "p",
		Error: "overloaded", StartTime: now, EndTime: now,
	})
	require.NoError(t, err)
	assert.Equal(t, "generation-create", got.Batch[0].Type)
	assert.Equal(t, "ERROR", got.Batch[0].Body["level"])
	assert.NotContains(t, got.Batch[0].Body, "output")
}

func TestLangfuseErrors(t *testing.T) {
	srv := newLangfuseServer(t, http.StatusUnauthorized, `{"message":"bad keys"}`, nil)
	c := NewLangfuseClient(srv.URL, "pk", "sk")
	assert.ErrorContains(t, c.CreateTrace(context.Background(), Trace{ID: "t"}), "status 401")

	srv = newLangfuseServer(t, http.StatusMultiStatus, `{"successes":[],"errors":[{"id":"x","status":400,"message":"invalid body"}]}`, nil)
	c = NewLangfuseClient(srv.URL, "pk", "sk")
	assert.ErrorContains(t, c.CreateTrace(context.Background(), Trace{ID: "t"}), "invalid body")
}

func TestNewLangfuseClientDefaultsHost(t *testing.T) {
	c := NewLangfuseClient("", "pk", "sk")
	assert.Equal(t, defaultLangfuseHost, c.host)
	assert.Equal(t, "langfuse", c.Name())
}
