// Package api implements the API Façade (spec.md C10, §4.9): the four
// HTTP endpoints a client uses to start, stop, inspect, and browse
// pulses. Grounded on the teacher's resource-handler idiom
// (pkg/incident/handler.go): chi sub-router, DecodeAndValidate,
// Respond/RespondError, domain errors mapped to HTTP status by kind.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pulsekeeper/pulsekeeper/internal/domainerr"
	"github.com/pulsekeeper/pulsekeeper/internal/httpserver"
	"github.com/pulsekeeper/pulsekeeper/internal/pulse"
	"github.com/pulsekeeper/pulsekeeper/internal/store"
)

// Repo is the subset of *pulse.Repository the façade needs.
type Repo interface {
	CreateStarted(ctx context.Context, p pulse.StartedPulse) error
	GetStarted(ctx context.Context, userID string) (pulse.StartedPulse, error)
	Stop(ctx context.Context, userID, reflection, reflectionEmotion string, stoppedAt time.Time) (pulse.StoppedPulse, error)
	ListArchived(ctx context.Context, userID string, limit int64) ([]pulse.ArchivedPulse, error)
}

// Publisher hands a freshly stopped pulse to the lifecycle stream.
type Publisher interface {
	Publish(ctx context.Context, pulseID, userID string) error
}

// Handler serves the pulse lifecycle HTTP surface.
type Handler struct {
	repo   Repo
	stream Publisher
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(repo Repo, stream Publisher, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, stream: stream, logger: logger}
}

// Routes returns a chi.Router with the pulse lifecycle routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/start-pulse", func(r chi.Router) {
		r.Post("/", h.handleStartPulse)
		r.Get("/", h.handleGetStartedPulse)
	})
	r.Post("/stop-pulse", h.handleStopPulse)
	r.Get("/ingested-pulses", h.handleListIngested)
	return r
}

// StartPulseRequest is the POST /start-pulse body (spec.md §4.9).
type StartPulseRequest struct {
	Intent          string   `json:"intent" validate:"required,min=1,max=500"`
	DurationSeconds int64    `json:"duration_seconds" validate:"required,gt=0"`
	IntentEmotion   string   `json:"intent_emotion,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	IsPublic        bool     `json:"is_public,omitempty"`
}

func (h *Handler) handleStartPulse(w http.ResponseWriter, r *http.Request) {
	var req StartPulseRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	userID := httpserver.UserIDFromContext(r.Context())
	p := pulse.StartedPulse{
		UserID:          userID,
		PulseID:         uuid.NewString(),
		Intent:          req.Intent,
		StartTime:       time.Now().UTC(),
		DurationSeconds: req.DurationSeconds,
		IntentEmotion:   req.IntentEmotion,
		Tags:            req.Tags,
		IsPublic:        req.IsPublic,
	}

	if err := h.repo.CreateStarted(r.Context(), p); err != nil {
		if errors.Is(err, domainerr.ErrAlreadyStarted) {
			httpserver.RespondError(w, http.StatusConflict, "already_started", "a pulse is already running")
			return
		}
		h.logger.Error("starting pulse", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to start pulse")
		return
	}

	httpserver.Respond(w, http.StatusOK, p)
}

func (h *Handler) handleGetStartedPulse(w http.ResponseWriter, r *http.Request) {
	userID := httpserver.UserIDFromContext(r.Context())
	p, err := h.repo.GetStarted(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domainerr.ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_started", "no pulse is currently running")
			return
		}
		h.logger.Error("getting started pulse", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get started pulse")
		return
	}

	now := time.Now().UTC()
	elapsed := now.Sub(p.StartTime).Seconds()
	remaining := float64(p.DurationSeconds) - elapsed
	if remaining < 0 {
		remaining = 0
	}

	httpserver.Respond(w, http.StatusOK, struct {
		pulse.StartedPulse
		RemainingSeconds int64     `json:"remaining_seconds"`
		ServerTime       time.Time `json:"server_time"`
	}{
		StartedPulse:     p,
		RemainingSeconds: int64(remaining),
		ServerTime:       now,
	})
}

// StopPulseRequest is the POST /stop-pulse body (spec.md §4.9).
type StopPulseRequest struct {
	Reflection        string     `json:"reflection" validate:"required,min=1,max=5000"`
	ReflectionEmotion string     `json:"reflection_emotion,omitempty"`
	StoppedAt         *time.Time `json:"stopped_at,omitempty"`
}

func (h *Handler) handleStopPulse(w http.ResponseWriter, r *http.Request) {
	var req StopPulseRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	userID := httpserver.UserIDFromContext(r.Context())
	stoppedAt := time.Now().UTC()
	if req.StoppedAt != nil {
		stoppedAt = req.StoppedAt.UTC()
	}

	stopped, err := h.repo.Stop(r.Context(), userID, req.Reflection, req.ReflectionEmotion, stoppedAt)
	if err != nil {
		if errors.Is(err, domainerr.ErrNotStarted) {
			httpserver.RespondError(w, http.StatusConflict, "not_started", "no pulse is currently running")
			return
		}
		h.logger.Error("stopping pulse", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to stop pulse")
		return
	}

	if err := h.stream.Publish(r.Context(), stopped.PulseID, stopped.UserID); err != nil {
		// The row is durably stored; a missed publish is recovered by the
		// orchestrator's stale-entry reclaim, not by failing this request.
		h.logger.Error("publishing stopped pulse to stream", "pulse_id", stopped.PulseID, "error", err)
	}

	httpserver.Respond(w, http.StatusOK, stopped)
}

func (h *Handler) handleListIngested(w http.ResponseWriter, r *http.Request) {
	limit := int64(20)
	if raw := r.URL.Query().Get("nb_items"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "nb_items must be a positive integer")
			return
		}
		limit = n
	}
	if limit > 100 {
		limit = 100
	}

	userID := httpserver.UserIDFromContext(r.Context())
	items, err := h.repo.ListArchived(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("listing ingested pulses", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list ingested pulses")
		return
	}

	httpserver.Respond(w, http.StatusOK, items)
}

var _ Publisher = (*store.Stream)(nil)
