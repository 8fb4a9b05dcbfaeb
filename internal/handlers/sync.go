package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ralfizdigital/retailease-license/internal/middleware"
	"github.com/ralfizdigital/retailease-license/internal/services"
)

// SyncHandler serves the sync bookkeeping endpoints of §4.H. Conflict
// resolution happens device-side; this is pure durable history.
type SyncHandler struct {
	sync    *services.SyncSessionLog
	tenants *services.TenantStore
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(sync *services.SyncSessionLog, tenants *services.TenantStore) *SyncHandler {
	return &SyncHandler{sync: sync, tenants: tenants}
}

// Start handles POST /sync/start.
func (h *SyncHandler) Start(w http.ResponseWriter, r *http.Request) {
	lic := middleware.License(r.Context())
	if lic == nil {
		respondError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "authorization header is required")
		return
	}
	counter := middleware.Counter(r.Context())
	if counter == nil {
		respondError(w, http.StatusNotFound, "COUNTER_NOT_FOUND", "caller has no bound counter")
		return
	}

	var req struct {
		SyncType      string `json:"sync_type"`
		SyncDirection string `json:"sync_direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	business, err := h.tenants.GetByLicense(r.Context(), lic.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log, err := h.sync.Start(r.Context(), business.ID, counter.ID, req.SyncType, req.SyncDirection)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondCreated(w, log)
}

// Complete handles POST /sync/{id}/complete.
func (h *SyncHandler) Complete(w http.ResponseWriter, r *http.Request) {
	syncID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "sync id must be a valid UUID")
		return
	}

	var req struct {
		RecordsUploaded   int                    `json:"records_uploaded"`
		RecordsDownloaded int                    `json:"records_downloaded"`
		ConflictsDetected int                    `json:"conflicts_detected"`
		ConflictsResolved int                    `json:"conflicts_resolved"`
		Details           map[string]interface{} `json:"details"`
		Status            string                 `json:"status"`
		ErrorMessage      string                 `json:"error_message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	if req.Status == "" {
		req.Status = "completed"
	}

	stats := services.CompleteStats{
		RecordsUploaded:   req.RecordsUploaded,
		RecordsDownloaded: req.RecordsDownloaded,
		ConflictsDetected: req.ConflictsDetected,
		ConflictsResolved: req.ConflictsResolved,
		Details:           req.Details,
	}

	log, err := h.sync.Complete(r.Context(), syncID, stats, req.Status, req.ErrorMessage)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, log)
}

// History handles GET /sync/history.
func (h *SyncHandler) History(w http.ResponseWriter, r *http.Request) {
	lic := middleware.License(r.Context())
	if lic == nil {
		respondError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "authorization header is required")
		return
	}

	business, err := h.tenants.GetByLicense(r.Context(), lic.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	var counterID *uuid.UUID
	if counter := middleware.Counter(r.Context()); counter != nil {
		counterID = &counter.ID
	}

	limit := 50
	logs, err := h.sync.History(r.Context(), business.ID, counterID, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, map[string]interface{}{"history": logs})
}
