// src/handlers/backup_handler.go
package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/BanziSeo/habiOS-sub002/src/backup"
	"github.com/BanziSeo/habiOS-sub002/src/logger"
)

// BackupHandler drives archive creation and restore.
type BackupHandler struct {
	engine *backup.Engine
}

func NewBackupHandler(engine *backup.Engine) *BackupHandler {
	return &BackupHandler{engine: engine}
}

func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	path, err := h.engine.Create(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("Backup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "backup could not be created")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

type restoreRequest struct {
	Path string `json:"path"`
}

func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := decodeJSONBody(w, r, &req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "restore path is required")
		return
	}
	log := logger.FromContext(r.Context())

	// Old backups were a bare database file, not an archive.
	var err error
	if strings.EqualFold(filepath.Ext(req.Path), ".zip") {
		err = h.engine.Restore(r.Context(), req.Path)
	} else {
		err = h.engine.RestoreLegacy(r.Context(), req.Path)
	}
	if err != nil {
		log.Error("Restore failed", "path", req.Path, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "restore failed; the previous database was kept")
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *BackupHandler) Info(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}
	info, err := backup.ReadInfo(path)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "not a readable backup archive")
		return
	}
	writeJSON(w, http.StatusOK, info)
}
