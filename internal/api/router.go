package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/repository"
	"github.com/terencetsy/maillayer-contactsync/internal/syncerr"
)

// SyncService interface for dependency injection
type SyncService interface {
	EnqueueSync(ctx context.Context, integrationID string, syncID *string) (*models.ContactSyncJob, error)
	GetLastResult(ctx context.Context, integrationID string, syncID *string) (*models.SyncResult, error)
}

type Handler struct {
	syncs SyncService
}

func NewHandler(syncs SyncService) *Handler {
	return &Handler{syncs: syncs}
}

// NewRouter mounts the sync endpoints, health and the metrics handler.
func NewRouter(h *Handler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", h.Health)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/integrations/{integrationID}", func(r chi.Router) {
		r.Post("/sync", h.EnqueueSync)
		r.Get("/result", h.GetLastResult)
		r.Post("/syncs/{syncID}/sync", h.EnqueueSync)
		r.Get("/syncs/{syncID}/result", h.GetLastResult)
	})

	return r
}

// NewServer wraps the router in an http.Server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

type enqueueResponse struct {
	JobID   string                      `json:"jobId"`
	JobKey  string                      `json:"jobKey"`
	Status  models.ContactSyncJobStatus `json:"status"`
	Trigger models.SyncTrigger          `json:"trigger"`
}

type resultResponse struct {
	IntegrationID string             `json:"integrationId"`
	SyncID        *string            `json:"syncId,omitempty"`
	Result        *models.SyncResult `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// EnqueueSync (POST /integrations/{integrationID}[/syncs/{syncID}]/sync)
func (h *Handler) EnqueueSync(w http.ResponseWriter, r *http.Request) {
	integrationID := chi.URLParam(r, "integrationID")
	syncID := optionalParam(r, "syncID")

	job, err := h.syncs.EnqueueSync(r.Context(), integrationID, syncID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, enqueueResponse{
		JobID:   job.ID,
		JobKey:  job.JobKey,
		Status:  job.Status,
		Trigger: job.Trigger,
	})
}

// GetLastResult (GET /integrations/{integrationID}[/syncs/{syncID}]/result)
func (h *Handler) GetLastResult(w http.ResponseWriter, r *http.Request) {
	integrationID := chi.URLParam(r, "integrationID")
	syncID := optionalParam(r, "syncID")

	res, err := h.syncs.GetLastResult(r.Context(), integrationID, syncID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resultResponse{
		IntegrationID: integrationID,
		SyncID:        syncID,
		Result:        res,
	})
}

func optionalParam(r *http.Request, name string) *string {
	v := chi.URLParam(r, name)
	if v == "" {
		return nil
	}
	return &v
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrIntegrationNotFound),
		errors.Is(err, repository.ErrTableSyncNotFound),
		errors.Is(err, repository.ErrContactListNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case syncerr.IsConfiguration(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Kind: string(syncerr.KindConfiguration)})
	default:
		log.Error().
			Err(err).
			Str("requestId", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
