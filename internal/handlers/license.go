package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ralfizdigital/retailease-license/internal/middleware"
	"github.com/ralfizdigital/retailease-license/internal/services"
)

// LicenseHandler serves the license lifecycle endpoints of SPEC_FULL.md
// §4.I: validate, check, refresh, deactivate, renew, by-email, plus the
// public key and app config endpoints that live alongside them.
type LicenseHandler struct {
	keys         *services.KeyStore
	licenses     *services.LicenseService
	activations  *services.ActivationManager
	appConfig    *services.AppConfigStore
	adminKeyHash string
	graceDays    int
}

// NewLicenseHandler creates a new LicenseHandler.
func NewLicenseHandler(keys *services.KeyStore, licenses *services.LicenseService, activations *services.ActivationManager, appConfig *services.AppConfigStore, adminKeyHash string, graceDays int) *LicenseHandler {
	return &LicenseHandler{
		keys:         keys,
		licenses:     licenses,
		activations:  activations,
		appConfig:    appConfig,
		adminKeyHash: adminKeyHash,
		graceDays:    graceDays,
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}

// Validate handles POST /license/validate.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LicenseCode string `json:"license_code"`
		MachineID   string `json:"machine_id"`
		MachineName string `json:"machine_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	if req.LicenseCode == "" || req.MachineID == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "license_code and machine_id are required")
		return
	}

	lic, activation, err := h.activations.ValidateAndActivate(r.Context(), req.LicenseCode, req.MachineID, req.MachineName, clientIP(r))
	if err != nil {
		status, _ := errStatusCode(err)
		respondJSON(w, status, map[string]interface{}{"valid": false, "error": err.Error()})
		return
	}

	now := time.Now().UTC()
	respondSuccess(w, map[string]interface{}{
		"valid":           true,
		"license":         lic,
		"activation":      activation,
		"days_remaining":  h.licenses.DaysRemaining(lic, now),
		"in_grace_period": h.licenses.InGracePeriod(lic, now, h.graceDays),
	})
}

// Check handles POST /license/check.
func (h *LicenseHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LicenseID       string     `json:"license_id"`
		MachineID       string     `json:"machine_id"`
		LastKnownExpiry *time.Time `json:"last_known_expiry"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	licenseID, err := uuid.Parse(req.LicenseID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "license_id must be a valid UUID")
		return
	}

	lic, err := h.licenses.Get(r.Context(), licenseID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	now := time.Now().UTC()
	valid := h.licenses.IsValid(lic, now)
	inGrace := h.licenses.InGracePeriod(lic, now, h.graceDays)

	if !valid && !inGrace {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"valid":      false,
			"expired":    true,
			"status":     lic.Status,
			"valid_until": lic.ValidUntil,
		})
		return
	}

	renewed := req.LastKnownExpiry != nil && lic.ValidUntil.After(*req.LastKnownExpiry)

	respondSuccess(w, map[string]interface{}{
		"valid":           valid || inGrace,
		"days_remaining":  h.licenses.DaysRemaining(lic, now),
		"valid_until":     lic.ValidUntil,
		"renewed":         renewed,
		"in_grace_period": inGrace,
	})
}

// Refresh handles POST /license/refresh. Every license-state outcome is a
// 200 (only a malformed request or an unknown license gets a 4xx); the
// status field, not the HTTP status, is authoritative per §9.
func (h *LicenseHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LicenseID string `json:"license_id"`
		MachineID string `json:"machine_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	licenseID, err := uuid.Parse(req.LicenseID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "license_id must be a valid UUID")
		return
	}

	snapshot, err := h.activations.Refresh(r.Context(), licenseID, req.MachineID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, map[string]interface{}{
		"success":         true,
		"valid":           snapshot.Status == "active",
		"status":          snapshot.Status,
		"in_grace_period": snapshot.InGrace,
		"license":         snapshot.License,
	})
}

// Deactivate handles POST /license/deactivate.
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LicenseID string `json:"license_id"`
		MachineID string `json:"machine_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	licenseID, err := uuid.Parse(req.LicenseID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "license_id must be a valid UUID")
		return
	}

	if err := h.activations.Deactivate(r.Context(), licenseID, req.MachineID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, map[string]bool{"success": true})
}

// Renew handles POST /license/renew, gated by a constant-time comparison of
// the caller-supplied admin_key against the server's bcrypt hash.
func (h *LicenseHandler) Renew(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LicenseID        string `json:"license_id"`
		AdminKey         string `json:"admin_key"`
		ExtendDays       int    `json:"extend_days"`
		PaymentReference string `json:"payment_reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	if !h.verifyAdminKey(req.AdminKey) {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin key")
		return
	}

	licenseID, err := uuid.Parse(req.LicenseID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "license_id must be a valid UUID")
		return
	}

	before, err := h.licenses.Get(r.Context(), licenseID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	oldValidUntil := before.ValidUntil

	lic, err := h.licenses.Renew(r.Context(), licenseID, req.ExtendDays, req.PaymentReference)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, map[string]interface{}{
		"success": true,
		"license": map[string]interface{}{
			"old_valid_until": oldValidUntil,
			"new_valid_until": lic.ValidUntil,
			"renewal_count":   lic.RenewalCount,
		},
	})
}

// verifyAdminKey compares the caller-supplied key against the configured
// bcrypt hash. An empty server-side hash always rejects.
func (h *LicenseHandler) verifyAdminKey(key string) bool {
	if h.adminKeyHash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(h.adminKeyHash), []byte(key)) == nil
}

// ByEmail handles GET /license/by-email?email=....
func (h *LicenseHandler) ByEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "email is required")
		return
	}

	lic, err := h.licenses.FindByEmail(r.Context(), email)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, lic)
}

// PublicKey handles GET /public-key.
func (h *LicenseHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	kp, err := h.keys.ActiveKeyPair(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"public_key": kp.PublicKey})
}

// GetConfig handles GET /config: the public, unauthenticated AppConfig blob.
func (h *LicenseHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.appConfig.Get(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, cfg)
}

// UpdateConfig handles POST /admin/config, gated the same way as /license/renew.
func (h *LicenseHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AdminKey string `json:"admin_key"`
		services.ConfigFields
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	if !h.verifyAdminKey(req.AdminKey) {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin key")
		return
	}

	cfg, err := h.appConfig.Update(r.Context(), req.ConfigFields)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, cfg)
}

// Status handles the token-gated GET /status: the caller's own license and
// counter snapshot, resolved entirely from the bearer token's AuthContext.
func (h *LicenseHandler) Status(w http.ResponseWriter, r *http.Request) {
	lic := middleware.License(r.Context())
	if lic == nil {
		respondError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "authorization header is required")
		return
	}

	now := time.Now().UTC()
	respondSuccess(w, map[string]interface{}{
		"license":         lic,
		"counter":         middleware.Counter(r.Context()),
		"valid":           h.licenses.IsValid(lic, now),
		"in_grace_period": h.licenses.InGracePeriod(lic, now, h.graceDays),
		"days_remaining":  h.licenses.DaysRemaining(lic, now),
	})
}
