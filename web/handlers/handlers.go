// Package handlers provides the JSON API for debates.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alienxp03/parley/internal/config"
	"github.com/alienxp03/parley/internal/core"
	"github.com/alienxp03/parley/internal/events"
	"github.com/alienxp03/parley/internal/export"
	"github.com/alienxp03/parley/internal/openrouter"
	"github.com/alienxp03/parley/internal/storage"
)

// DebateStarter kicks off a debate chain. *scheduler.Scheduler implements it.
type DebateStarter interface {
	Begin(ctx context.Context, debateID string) error
}

// ModelService exposes the model catalog. *openrouter.Client implements it.
type ModelService interface {
	ListModels(ctx context.Context) []openrouter.Model
	ValidateModels(ctx context.Context, modelIDs []string) []openrouter.ValidationResult
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	storage  storage.Storage
	broker   *events.Broker
	starter  DebateStarter
	models   ModelService
	defaults config.DefaultsConfig
}

// New creates a new Handler.
func New(store storage.Storage, broker *events.Broker, starter DebateStarter, models ModelService, defaults config.DefaultsConfig) *Handler {
	return &Handler{
		storage:  store,
		broker:   broker,
		starter:  starter,
		models:   models,
		defaults: defaults,
	}
}

// Routes builds the router with all API routes registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/debates", h.handleCreateDebate)
		r.Get("/debates", h.handleListDebates)
		r.Get("/debates/{id}", h.handleGetDebate)
		r.Delete("/debates/{id}", h.handleDeleteDebate)
		r.Post("/debates/{id}/stop", h.handleStopDebate)
		r.Get("/debates/{id}/stream", h.handleDebateStream)
		r.Get("/debates/{id}/export/{format}", h.handleExportDebate)

		r.Get("/models", h.handleListModels)
		r.Post("/models/validate", h.handleValidateModels)
	})

	return r
}

type createParticipant struct {
	Role        string `json:"role"`
	ModelID     string `json:"model_id"`
	DisplayName string `json:"display_name"`
	Persona     string `json:"persona,omitempty"`
	VoiceName   string `json:"voice_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type createDebateRequest struct {
	Topic        string              `json:"topic"`
	Description  string              `json:"description"`
	Language     string              `json:"language"`
	Participants []createParticipant `json:"participants"`
	LengthPreset string              `json:"length_preset"`
	NumRounds    int                 `json:"num_rounds"`
	Intensity    int                 `json:"intensity"`
}

func (h *Handler) handleCreateDebate(w http.ResponseWriter, r *http.Request) {
	var req createDebateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		h.jsonError(w, "topic is required", http.StatusBadRequest)
		return
	}

	participants := make([]core.Participant, 0, len(req.Participants))
	moderators, debaters := 0, 0
	for i, p := range req.Participants {
		if p.ModelID == "" {
			h.jsonError(w, fmt.Sprintf("participant %d: model_id is required", i), http.StatusBadRequest)
			return
		}
		role := core.ParticipantRole(p.Role)
		switch role {
		case core.RoleModerator:
			moderators++
		case core.RoleDebater:
			debaters++
		default:
			h.jsonError(w, fmt.Sprintf("participant %d: unknown role %q", i, p.Role), http.StatusBadRequest)
			return
		}
		name := p.DisplayName
		if name == "" {
			name = p.ModelID
		}
		participants = append(participants, core.Participant{
			Role:        role,
			ModelID:     p.ModelID,
			DisplayName: name,
			Persona:     p.Persona,
			VoiceName:   p.VoiceName,
			AvatarURL:   p.AvatarURL,
		})
	}
	if debaters == 0 {
		h.jsonError(w, "at least one debater is required", http.StatusBadRequest)
		return
	}
	if moderators > 1 {
		h.jsonError(w, "at most one moderator is allowed", http.StatusBadRequest)
		return
	}

	language := req.Language
	if language == "" {
		language = h.defaults.Language
	}
	numRounds := req.NumRounds
	if numRounds <= 0 {
		numRounds = h.defaults.NumRounds
	}
	intensity := req.Intensity
	if intensity <= 0 {
		intensity = h.defaults.Intensity
	}
	preset := core.LengthPreset(req.LengthPreset)
	if preset == "" {
		preset = core.LengthPreset(h.defaults.LengthPreset)
	}

	debate := &core.Debate{
		ID:     core.GenerateID(),
		Title:  core.DefaultTitle(req.Topic),
		Status: core.StatusQueued,
		Config: core.DebateConfig{
			Topic:        req.Topic,
			Description:  strings.TrimSpace(req.Description),
			Language:     language,
			Participants: participants,
			LengthPreset: preset,
			NumRounds:    numRounds,
			Intensity:    intensity,
		},
		CreatedAt: time.Now(),
	}

	if err := h.storage.CreateDebate(debate); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.starter.Begin(r.Context(), debate.ID); err != nil {
		slog.Error("Failed to schedule debate start", "debate_id", debate.ID, "error", err)
		h.jsonError(w, "failed to start debate", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(debate)
}

func (h *Handler) handleListDebates(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	if limit <= 0 {
		limit = 20
	}

	debates, err := h.storage.ListDebates(limit, offset)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.json(w, debates)
}

func (h *Handler) handleGetDebate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	debate, err := h.storage.GetDebate(id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if debate == nil {
		h.jsonError(w, "debate not found", http.StatusNotFound)
		return
	}

	turns, err := h.storage.ListTurns(id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.json(w, map[string]interface{}{
		"debate": debate,
		"turns":  turns,
	})
}

func (h *Handler) handleDeleteDebate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	debate, err := h.storage.GetDebate(id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if debate == nil {
		h.jsonError(w, "debate not found", http.StatusNotFound)
		return
	}

	if err := h.storage.DeleteDebate(id); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleStopDebate marks a debate stopped. The running chain observes the
// status at its next step and aborts.
func (h *Handler) handleStopDebate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	debate, err := h.storage.GetDebate(id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if debate == nil {
		h.jsonError(w, "debate not found", http.StatusNotFound)
		return
	}
	if debate.Status.Terminal() {
		h.jsonError(w, "debate already finished", http.StatusConflict)
		return
	}

	if err := h.storage.UpdateStatus(id, core.StatusStopped); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.json(w, map[string]string{
		"debate_id": id,
		"status":    string(core.StatusStopped),
	})
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	models := h.models.ListModels(r.Context())
	h.json(w, map[string]interface{}{
		"data":      models,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleValidateModels(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Models []string `json:"models"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Models) == 0 {
		h.jsonError(w, "models is required", http.StatusBadRequest)
		return
	}

	h.json(w, map[string]interface{}{
		"results": h.models.ValidateModels(r.Context(), req.Models),
	})
}

func (h *Handler) handleExportDebate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format := chi.URLParam(r, "format")

	debate, err := h.storage.GetDebate(id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if debate == nil {
		h.jsonError(w, "debate not found", http.StatusNotFound)
		return
	}

	turns, err := h.storage.ListTurns(id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	exporter, err := export.GetExporter(export.Format(format))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	filename := export.GenerateFilename(debate, exporter.FileExtension())

	switch format {
	case "pdf":
		w.Header().Set("Content-Type", "application/pdf")
	case "json":
		w.Header().Set("Content-Type", "application/json")
	default:
		w.Header().Set("Content-Type", "text/markdown")
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))

	if err := exporter.Export(debate, turns, w); err != nil {
		slog.Error("Export failed", "debate_id", id, "format", format, "error", err)
		http.Error(w, "Export failed", http.StatusInternalServerError)
	}
}

func (h *Handler) json(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
