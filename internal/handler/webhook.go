package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/valentinpelus/linkbrief/pkg/types"
	"go.uber.org/zap"
)

const maxUpdateBytes = 1 << 20

// WebhookHandler receives updates pushed by Telegram
type WebhookHandler struct {
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(dispatcher *Dispatcher, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// HandleWebhook processes incoming webhook requests
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST method is allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBytes))
	if err != nil {
		h.logger.Warn("failed to read request body", zap.Error(err))
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var update types.Update
	if err := json.Unmarshal(body, &update); err != nil {
		h.logger.Warn("failed to parse update", zap.Error(err))
		http.Error(w, "Failed to parse update", http.StatusBadRequest)
		return
	}

	h.logger.Debug("received update", zap.Int("update_id", update.UpdateID))

	// Telegram redelivers updates until it gets a 200, so acknowledge
	// before the pipeline runs.
	h.dispatcher.Dispatch(context.WithoutCancel(r.Context()), update)

	w.WriteHeader(http.StatusOK)
}

// StatsFunc reports runtime counters for the health endpoint
type StatsFunc func() map[string]int

// HandleHealth handles health check requests
func HandleHealth(stats StatsFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "healthy"}
		if stats != nil {
			resp["stats"] = stats()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}
}
