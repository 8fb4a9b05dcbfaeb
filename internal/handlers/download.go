package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ralfizdigital/retailease-license/internal/services"
)

// DownloadHandler serves the public, unauthenticated release-distribution
// endpoints of §4.K: a device without an activated license must still be
// able to discover and fetch its installer.
type DownloadHandler struct {
	releases  *services.ReleaseDistributor
	appConfig *services.AppConfigStore
}

// NewDownloadHandler creates a new DownloadHandler.
func NewDownloadHandler(releases *services.ReleaseDistributor, appConfig *services.AppConfigStore) *DownloadHandler {
	return &DownloadHandler{releases: releases, appConfig: appConfig}
}

// List handles GET /downloads?product=....
func (h *DownloadHandler) List(w http.ResponseWriter, r *http.Request) {
	product := r.URL.Query().Get("product")
	if product == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "product is required")
		return
	}

	releases, err := h.releases.ListReleases(r.Context(), product)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, map[string]interface{}{"releases": releases})
}

// GetURL handles GET /downloads/{product}/{version}/{platform}: a
// presigned, time-limited installer URL, falling back to the configured
// app_update_url when no storage backend holds the object.
func (h *DownloadHandler) GetURL(w http.ResponseWriter, r *http.Request) {
	product := chi.URLParam(r, "product")
	version := chi.URLParam(r, "version")
	platform := chi.URLParam(r, "platform")

	var fallback string
	if cfg, err := h.appConfig.Get(r.Context()); err == nil {
		fallback = cfg.AppUpdateURL
	}

	download, err := h.releases.GenerateDownloadURL(r.Context(), product, version, platform, fallback)
	if err != nil {
		respondError(w, http.StatusNotFound, "SERVER_ERROR", err.Error())
		return
	}

	respondSuccess(w, download)
}
