// Package rest serves application status over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/logger"
	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/validate"
	"github.com/kubilitics/kubilitics-appstatus/internal/search"
	"github.com/kubilitics/kubilitics-appstatus/internal/service"
	"github.com/kubilitics/kubilitics-appstatus/internal/topology"
)

// Handler manages HTTP request handlers
type Handler struct {
	statusService service.AppStatusService
	log           *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(ss service.AppStatusService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{statusService: ss, log: log.Named("rest")}
}

// SetupRoutes configures API routes
func SetupRoutes(router *mux.Router, h *Handler) {
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/topology/status", h.GetStatus).Methods(http.MethodPost)
	api.HandleFunc("/topology/status/refresh", h.RefreshStatus).Methods(http.MethodPost)
	api.HandleFunc("/topology/status/pending", h.PendingStatus).Methods(http.MethodPost)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)
}

// GetStatus handles POST /api/v1/topology/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	st, err := h.statusService.GetStatus(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// RefreshStatus handles POST /api/v1/topology/status/refresh
func (h *Handler) RefreshStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	st, err := h.statusService.Refresh(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// PendingStatus handles POST /api/v1/topology/status/pending
func (h *Handler) PendingStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	st, err := h.statusService.Pending(req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (*models.TopologyRequest, bool) {
	var req models.TopologyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"Invalid request body: "+err.Error(), logger.RequestIDFromContext(r.Context()))
		return nil, false
	}
	return &req, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := logger.RequestIDFromContext(r.Context())
	switch {
	case errors.Is(err, validate.ErrInvalidRequest):
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), reqID)
	case errors.Is(err, topology.ErrStaleRefresh):
		respondErrorWithCode(w, http.StatusConflict, ErrCodeStale, err.Error(), reqID)
	case errors.Is(err, search.ErrCircuitOpen):
		respondErrorWithCode(w, http.StatusServiceUnavailable, ErrCodeCircuitBreaker, err.Error(), reqID)
	case errors.Is(err, context.DeadlineExceeded):
		respondErrorWithCode(w, http.StatusGatewayTimeout, ErrCodeTimeout, "status refresh timed out", reqID)
	default:
		logger.WithRequestID(r.Context(), h.log).Error("status refresh failed", zap.Error(err))
		respondErrorWithCode(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to compute application status", reqID)
	}
}
