// src/handlers/settings_handler.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/BanziSeo/habiOS-sub002/src/settings"
	"github.com/go-chi/chi/v5"
)

type SettingsHandler struct {
	store *settings.Store
}

func NewSettingsHandler(store *settings.Store) *SettingsHandler {
	return &SettingsHandler{store: store}
}

func (h *SettingsHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Keys())
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	var value json.RawMessage
	if err := h.store.Get(chi.URLParam(r, "key"), &value); err != nil {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}
	writeJSON(w, http.StatusOK, value)
}

func (h *SettingsHandler) Set(w http.ResponseWriter, r *http.Request) {
	var value json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		writeError(w, http.StatusBadRequest, "setting value must be valid JSON")
		return
	}
	if err := h.store.Set(chi.URLParam(r, "key"), value); err != nil {
		writeError(w, http.StatusInternalServerError, "setting could not be saved")
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *SettingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(chi.URLParam(r, "key")); err != nil {
		writeError(w, http.StatusInternalServerError, "setting could not be removed")
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
