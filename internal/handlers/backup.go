package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ralfizdigital/retailease-license/internal/middleware"
	"github.com/ralfizdigital/retailease-license/internal/services"
)

// BackupHandler serves the backup endpoints of §4.G.
type BackupHandler struct {
	backups *services.BackupIngestor
	tenants *services.TenantStore
}

// NewBackupHandler creates a new BackupHandler.
func NewBackupHandler(backups *services.BackupIngestor, tenants *services.TenantStore) *BackupHandler {
	return &BackupHandler{backups: backups, tenants: tenants}
}

func (h *BackupHandler) callerBusiness(r *http.Request) (uuid.UUID, error) {
	lic := middleware.License(r.Context())
	if lic == nil {
		return uuid.UUID{}, fmt.Errorf("missing license")
	}
	business, err := h.tenants.GetByLicense(r.Context(), lic.ID)
	if err != nil {
		return uuid.UUID{}, err
	}
	return business.ID, nil
}

// Upload handles POST /backups/upload: a multipart `file` plus metadata
// fields. The form is parsed in full (parts beyond 32 MiB spill to temporary
// files) before the file part is passed to BackupIngestor.Ingest.
func (h *BackupHandler) Upload(w http.ResponseWriter, r *http.Request) {
	businessID, err := h.callerBusiness(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.backups.MaxBytes())
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "upload exceeds the configured size limit")
			return
		}
		respondError(w, http.StatusBadRequest, "NO_FILE", "failed to parse multipart form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "NO_FILE", "file field is required")
		return
	}
	defer file.Close()

	var counterID *uuid.UUID
	if counter := middleware.Counter(r.Context()); counter != nil {
		counterID = &counter.ID
	}

	dbVersion, _ := strconv.Atoi(r.FormValue("db_version"))
	var recordCounts map[string]int64
	if raw := r.FormValue("record_counts"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &recordCounts)
	}

	args := services.UploadArgs{
		BusinessID:   businessID,
		CounterID:    counterID,
		CounterName:  r.FormValue("counter_name"),
		BackupType:   r.FormValue("backup_type"),
		AppVersion:   r.FormValue("app_version"),
		DBVersion:    dbVersion,
		RecordCounts: recordCounts,
		Notes:        r.FormValue("notes"),
		Checksum:     r.FormValue("checksum"),
	}
	if counter := middleware.Counter(r.Context()); args.CounterName == "" && counter != nil {
		args.CounterName = counter.Name
	}

	backup, err := h.backups.Ingest(r.Context(), args, file)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, map[string]interface{}{"success": true, "backup": backup})
}

// List handles GET /backups.
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	businessID, err := h.callerBusiness(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	limit := 50
	if l, parseErr := strconv.Atoi(r.URL.Query().Get("limit")); parseErr == nil && l > 0 && l <= 200 {
		limit = l
	}
	offset := 0
	if o, parseErr := strconv.Atoi(r.URL.Query().Get("offset")); parseErr == nil && o >= 0 {
		offset = o
	}

	backups, err := h.backups.List(r.Context(), businessID, r.URL.Query().Get("type"), limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, map[string]interface{}{"backups": backups})
}

// Download handles GET /backups/{id}: streams the blob and surfaces its
// integrity metadata via X-Checksum / X-File-Size headers.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	backupID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "backup id must be a valid UUID")
		return
	}

	backup, err := h.backups.Get(r.Context(), backupID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	f, err := h.backups.Open(backup)
	if err != nil {
		respondServiceError(w, fmt.Errorf("backup blob unavailable: %w", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, backup.Filename))
	w.Header().Set("X-Checksum", backup.Checksum)
	w.Header().Set("X-File-Size", strconv.FormatInt(backup.FileSize, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

// Delete handles POST /backups/{id}/delete.
func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	backupID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "backup id must be a valid UUID")
		return
	}

	if err := h.backups.Delete(r.Context(), backupID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, map[string]bool{"success": true})
}

// Cleanup handles POST /backups/cleanup.
func (h *BackupHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	businessID, err := h.callerBusiness(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	var req struct {
		Keep int    `json:"keep"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	if req.Keep <= 0 {
		req.Keep = 10
	}

	deleted, err := h.backups.Cleanup(r.Context(), businessID, req.Keep, req.Type)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, map[string]interface{}{"success": true, "deleted": deleted})
}
