package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alienxp03/parley/internal/events"
)

// streamTimeout caps how long one SSE connection is held open.
const streamTimeout = 30 * time.Minute

// handleDebateStream streams debate events using Server-Sent Events.
// Events are forwarded live from the broker; the connection closes once the
// debate reaches a terminal event.
func (h *Handler) handleDebateStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	slog.Debug("New debate stream connection", "id", id, "remote_addr", r.RemoteAddr)

	// Set headers for SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("Streaming unsupported: ResponseWriter does not implement http.Flusher")
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	debate, err := h.storage.GetDebate(id)
	if err != nil {
		slog.Error("Failed to get debate for stream", "id", id, "error", err)
		h.sendSSEError(w, flusher, "Failed to get debate")
		return
	}
	if debate == nil {
		slog.Warn("Debate not found for stream", "id", id)
		h.sendSSEError(w, flusher, "Debate not found")
		return
	}

	// Subscribe before announcing the connection so no event slips between.
	ch, cancel := h.broker.Subscribe(id)
	defer cancel()

	h.sendSSEEvent(w, flusher, "connected", map[string]string{
		"debate_id": id,
		"status":    string(debate.Status),
	})

	// Already finished: nothing more will be published.
	if debate.Status.Terminal() {
		h.sendSSEEvent(w, flusher, events.TypeDebateCompleted, map[string]string{
			"debate_id": id,
			"status":    string(debate.Status),
		})
		return
	}

	ctx, cancelCtx := context.WithTimeout(r.Context(), streamTimeout)
	defer cancelCtx()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Stream context done", "id", id)
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			h.sendSSEEvent(w, flusher, event.Type, event.Data)
			if event.Type == events.TypeDebateCompleted || event.Type == events.TypeChainAborted {
				slog.Debug("Debate finished during stream", "id", id, "event", event.Type)
				return
			}
		}
	}
}

// sendSSEEvent sends a server-sent event.
func (h *Handler) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		slog.Error("Failed to marshal SSE data", "error", err)
		return
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		slog.Error("Failed to write SSE event", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		slog.Error("Failed to write SSE data", "error", err)
		return
	}
	flusher.Flush()
}

// sendSSEError sends an error event.
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, message string) {
	errorData := map[string]string{"message": message}
	h.sendSSEEvent(w, flusher, "error", errorData)
}
