// src/handlers/import_handler.go
package handlers

import (
	"net/http"

	"github.com/BanziSeo/habiOS-sub002/src/config"
	"github.com/BanziSeo/habiOS-sub002/src/importer"
	"github.com/BanziSeo/habiOS-sub002/src/logger"
	"github.com/BanziSeo/habiOS-sub002/src/models"
	"github.com/BanziSeo/habiOS-sub002/src/parsers"
)

// ImportHandler accepts broker CSV uploads, parses them into an import
// batch and hands the batch to the import engine.
type ImportHandler struct {
	engine *importer.Engine
}

func NewImportHandler(engine *importer.Engine) *ImportHandler {
	return &ImportHandler{engine: engine}
}

// ImportCSV handles a multipart upload. Expected form fields: "file" (the
// CSV), "accountId", "mode" (REPLACE or APPEND) and optionally "source"
// naming the parser.
func (h *ImportHandler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxImportBytes)
	if err := r.ParseMultipartForm(config.Cfg.MaxImportBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}

	accountID := r.FormValue("accountId")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "accountId is required")
		return
	}
	mode := r.FormValue("mode")
	if mode == "" {
		mode = models.ImportModeReplace
	}
	source := r.FormValue("source")
	if source == "" {
		source = "brokercsv"
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	parser, err := parsers.GetParser(source)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown import source")
		return
	}

	batch, err := parser.Parse(file, accountID)
	if err != nil {
		log.Warn("CSV parse failed", "file", header.Filename, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "the file could not be parsed as a trade export")
		return
	}
	batch.Mode = mode
	batch.AccountID = accountID

	result, err := h.engine.Import(r.Context(), batch)
	if err != nil {
		log.Error("Import failed", "accountID", accountID, "error", err)
		// The engine guarantees nothing was applied; surface its
		// zero-count result rather than a bare error.
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ImportBatch accepts a pre-parsed batch as JSON, for callers that build
// the batch themselves.
func (h *ImportHandler) ImportBatch(w http.ResponseWriter, r *http.Request) {
	var batch models.ImportBatch
	if err := decodeJSONBody(w, r, &batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid import batch payload")
		return
	}
	result, err := h.engine.Import(r.Context(), batch)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
