package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ralfizdigital/retailease-license/internal/middleware"
	"github.com/ralfizdigital/retailease-license/internal/services"
)

// BusinessHandler serves the tenant endpoints of §4.F: Business
// registration/lookup and Counter listing/updates. Every route here is
// token-gated, so the caller's License (and, once provisioned, Counter) is
// always available from the request context.
type BusinessHandler struct {
	tenants *services.TenantStore
}

// NewBusinessHandler creates a new BusinessHandler.
func NewBusinessHandler(tenants *services.TenantStore) *BusinessHandler {
	return &BusinessHandler{tenants: tenants}
}

// Register handles POST /business/register: upserts the Business owned by
// the caller's License.
func (h *BusinessHandler) Register(w http.ResponseWriter, r *http.Request) {
	lic := middleware.License(r.Context())
	if lic == nil {
		respondError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "authorization header is required")
		return
	}

	var fields services.BusinessFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	var callerActivationID *uuid.UUID
	if counter := middleware.Counter(r.Context()); counter != nil {
		callerActivationID = &counter.ActivationID
	}

	business, counter, err := h.tenants.RegisterOrUpdateBusiness(r.Context(), lic.ID, fields, callerActivationID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, map[string]interface{}{"business": business, "counter": counter})
}

// Get handles GET /business: the caller's own Business record.
func (h *BusinessHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	respondSuccess(w, business)
}

// ListCounters handles GET /counters.
func (h *BusinessHandler) ListCounters(w http.ResponseWriter, r *http.Request) {
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

	var callerCounterID *uuid.UUID
	if counter := middleware.Counter(r.Context()); counter != nil {
		callerCounterID = &counter.ID
	}

	counters, err := h.tenants.ListCounters(r.Context(), business.ID, callerCounterID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, map[string]interface{}{"counters": counters})
}

// UpdateCounter handles POST /counters/{id}.
func (h *BusinessHandler) UpdateCounter(w http.ResponseWriter, r *http.Request) {
	counterID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "counter id must be a valid UUID")
		return
	}

	var fields services.CounterFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	counter, err := h.tenants.UpdateCounter(r.Context(), counterID, fields)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, counter)
}

// DeactivateCounter handles DELETE /counters/{id}.
func (h *BusinessHandler) DeactivateCounter(w http.ResponseWriter, r *http.Request) {
	counterID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "counter id must be a valid UUID")
		return
	}

	if err := h.tenants.DeactivateCounter(r.Context(), counterID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, map[string]bool{"success": true})
}
