package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/ralfizdigital/retailease-license/internal/middleware"
	"github.com/ralfizdigital/retailease-license/internal/services"
)

// AuthHandler serves the device-authentication endpoints of §4.E:
// /authenticate mints the bearer token, /logout revokes it.
type AuthHandler struct {
	tokens *services.TokenAuthenticator
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(tokens *services.TokenAuthenticator) *AuthHandler {
	return &AuthHandler{tokens: tokens}
}

// Authenticate handles POST /authenticate.
func (h *AuthHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LicenseID   string `json:"license_id"`
		MachineID   string `json:"machine_id"`
		MachineName string `json:"machine_name"`
		DeviceType  string `json:"device_type"`
		OSInfo      string `json:"os_info"`
		AppVersion  string `json:"app_version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	if req.MachineID == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "machine_id is required")
		return
	}

	licenseID, err := uuid.Parse(req.LicenseID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "license_id must be a valid UUID")
		return
	}

	result, err := h.tokens.Authenticate(r.Context(), licenseID, req.MachineID, req.MachineName, req.DeviceType, req.OSInfo, req.AppVersion)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, map[string]interface{}{
		"token":    result.Token,
		"business": result.Business,
		"counter":  result.Counter,
	})
}

// Logout handles the token-gated POST /logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth := middleware.FromContext(r.Context())
	if auth == nil || auth.Token == nil {
		respondError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "authorization header is required")
		return
	}

	if err := h.tokens.Logout(r.Context(), auth.Token.ID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, map[string]bool{"success": true})
}
