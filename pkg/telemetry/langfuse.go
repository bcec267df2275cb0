package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultLangfuseHost = "https://cloud.langfuse.com"

// LangfuseClient sends events to the Langfuse ingestion API
// Reference: https://api.reference.langfuse.com/#tag/ingestion
type LangfuseClient struct {
	host      string
	publicKey string
	secretKey string
	client    *http.Client
}

// NewLangfuseClient creates a Langfuse recorder. host defaults to Langfuse cloud.
func NewLangfuseClient(host, publicKey, secretKey string) *LangfuseClient {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		host = defaultLangfuseHost
	}
	return &LangfuseClient{
		host:      host,
		publicKey: publicKey,
		secretKey: secretKey,
		client:    &http.Client{Timeout: defaultCallTimeout},
	}
}

// Name returns the backend name
func (c *LangfuseClient) Name() string {
	return "langfuse"
}

type langfuseEvent struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Body      any    `json:"body"`
}

type langfuseBatch struct {
	Batch []langfuseEvent `json:"batch"`
}

type langfuseIngestionResponse struct {
	Successes []struct {
		ID     string `json:"id"`
		Status int    `json:"status"`
	} `json:"successes"`
	Errors []struct {
		ID      string `json:"id"`
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"errors"`
}

// CreateTrace sends a trace-create event
func (c *LangfuseClient) CreateTrace(ctx context.Context, trace Trace) error {
	body := map[string]any{
		"id":        trace.ID,
		"name":      trace.Name,
		"input":     trace.Input,
		"timestamp": trace.Timestamp.Format(time.RFC3339Nano),
	}
	if len(trace.Metadata) > 0 {
		body["metadata"] = trace.Metadata
	}
	return c.ingest(ctx, "trace-create", body)
}

// RecordGeneration sends a generation-create event
func (c *LangfuseClient) RecordGeneration(ctx context.Context, gen Generation) error {
	body := map[string]any{
		"id":        gen.ID,
		"traceId":   gen.TraceID,
		"name":      gen.Name,
		"model":     gen.Model,
		"input":     gen.Input,
		"startTime": gen.StartTime.Format(time.RFC3339Nano),
		"endTime":   gen.EndTime.Format(time.RFC3339Nano),
	}
	if gen.Failed() {
		body["level"] = "ERROR"
		body["statusMessage"] = gen.Error
	} else {
		body["output"] = gen.Output
	}
	return c.ingest(ctx, "generation-create", body)
}

// RecordScore sends a score-create event. Numeric scores are BOOLEAN,
// free-text scores are CATEGORICAL.
func (c *LangfuseClient) RecordScore(ctx context.Context, score Score) error {
	body := map[string]any{
		"id":      score.ID,
		"traceId": score.TraceID,
		"name":    score.Name,
	}
	if score.IsText() {
		body["value"] = score.Text
		body["dataType"] = "CATEGORICAL"
	} else {
		body["value"] = score.Value
		body["dataType"] = "BOOLEAN"
	}
	if score.Comment != "" {
		body["comment"] = score.Comment
	}
	return c.ingest(ctx, "score-create", body)
}

func (c *LangfuseClient) ingest(ctx context.Context, eventType string, body any) error {
	payload := langfuseBatch{
		Batch: []langfuseEvent{{
			ID:        uuid.NewString(),
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Type:      eventType,
			Body:      body,
		}},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", eventType, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/public/ingestion", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.publicKey, c.secretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", eventType, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("langfuse returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result langfuseIngestionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to parse langfuse response: %w", err)
	}
	if len(result.Errors) > 0 {
		e := result.Errors[0]
		return fmt.Errorf("langfuse rejected %s (status %d): %s", eventType, e.Status, e.Message)
	}
	return nil
}
