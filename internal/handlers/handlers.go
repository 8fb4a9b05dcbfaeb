package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/ralfizdigital/retailease-license/internal/services"
	pkglicense "github.com/ralfizdigital/retailease-license/pkg/license"
)

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// respondError emits the canonical `{"error":"...", "code":"..."}` envelope
// of SPEC_FULL.md §7.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": message, "code": code})
}

func respondSuccess(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, data)
}

func respondCreated(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusCreated, data)
}

// errStatusCode maps a service-layer sentinel error to its HTTP status and
// canonical §7 code. Unrecognized errors collapse to an opaque SERVER_ERROR;
// callers never string-match an error message.
func errStatusCode(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrLicenseNotFound):
		return http.StatusNotFound, "LICENSE_NOT_FOUND"
	case errors.Is(err, pkglicense.ErrMalformed), errors.Is(err, pkglicense.ErrInvalidSignature):
		return http.StatusBadRequest, "MALFORMED_CODE"
	case errors.Is(err, pkglicense.ErrExpired):
		return http.StatusBadRequest, "EXPIRED"
	case errors.Is(err, pkglicense.ErrNotYetValid):
		return http.StatusBadRequest, "NOT_YET_VALID"
	case errors.Is(err, services.ErrLicenseRevoked):
		return http.StatusForbidden, "REVOKED"
	case errors.Is(err, services.ErrLicenseSuspended):
		return http.StatusForbidden, "SUSPENDED"
	case errors.Is(err, services.ErrLicenseExpired):
		return http.StatusBadRequest, "EXPIRED"
	case errors.Is(err, services.ErrLicenseInvalidForDevice):
		return http.StatusForbidden, "LICENSE_INVALID"
	case errors.Is(err, services.ErrMaxActivationsReached):
		return http.StatusForbidden, "MAX_ACTIVATIONS"
	case errors.Is(err, services.ErrDeviceDeactivated):
		return http.StatusForbidden, "DEVICE_DEACTIVATED"
	case errors.Is(err, services.ErrActivationNotFound):
		return http.StatusNotFound, "ACTIVATION_NOT_FOUND"
	case errors.Is(err, services.ErrBusinessNotFound):
		return http.StatusNotFound, "BUSINESS_NOT_FOUND"
	case errors.Is(err, services.ErrCounterNotFound):
		return http.StatusNotFound, "COUNTER_NOT_FOUND"
	case errors.Is(err, services.ErrBackupNotFound):
		return http.StatusNotFound, "BACKUP_NOT_FOUND"
	case errors.Is(err, services.ErrChecksumMismatch):
		return http.StatusBadRequest, "CHECKSUM_MISMATCH"
	case errors.Is(err, services.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"
	case errors.Is(err, services.ErrSyncLogNotFound):
		return http.StatusNotFound, "SYNC_NOT_FOUND"
	case errors.Is(err, services.ErrNoActiveKey):
		return http.StatusInternalServerError, "NO_ACTIVE_KEY"
	case errors.Is(err, services.ErrTokenNotFound):
		return http.StatusUnauthorized, "INVALID_TOKEN"
	case errors.Is(err, services.ErrTokenExpired):
		return http.StatusUnauthorized, "TOKEN_EXPIRED"
	default:
		return http.StatusInternalServerError, "SERVER_ERROR"
	}
}

// respondServiceError logs unexpected faults and maps known sentinels to
// their §7 status/code before writing the response.
func respondServiceError(w http.ResponseWriter, err error) {
	status, code := errStatusCode(err)
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		respondError(w, status, code, "an internal error occurred")
		return
	}
	respondError(w, status, code, err.Error())
}
