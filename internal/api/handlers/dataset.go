// Package handlers holds the HTTP handlers of the dataset server. The
// server is read only: every endpoint answers from the published
// tables on disk.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/samutus/warframe-market-collector/internal/publish"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// DatasetHandler serves the published analytics tables
// ⭐ SSOT: dataset read endpoints live in this struct only
type DatasetHandler struct {
	analyticsDir string
	logger       *logger.Logger
}

// NewDatasetHandler creates a new dataset handler.
func NewDatasetHandler(analyticsDir string, log *logger.Logger) *DatasetHandler {
	return &DatasetHandler{
		analyticsDir: analyticsDir,
		logger:       log,
	}
}

// Dir returns the analytics directory the handler reads from.
func (h *DatasetHandler) Dir() string {
	return h.analyticsDir
}

// GetSets returns the sets index, optionally filtered by platform.
// GET /api/sets?platform=pc
func (h *DatasetHandler) GetSets(w http.ResponseWriter, r *http.Request) {
	entries, err := publish.ReadIndex(h.analyticsDir)
	if err != nil {
		h.respondReadError(w, err, "sets index")
		return
	}

	if platform := r.URL.Query().Get("platform"); platform != "" {
		filtered := make([]publish.IndexEntry, 0, len(entries))
		for _, e := range entries {
			if e.Platform == platform {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	respondJSON(w, http.StatusOK, entries)
}

// SetDetail is one set's index rows together with its latest part
// alignment.
type SetDetail struct {
	Index []publish.IndexEntry `json:"index"`
	Parts []publish.PartEntry  `json:"parts"`
}

// GetSet returns one set's index rows and parts.
// GET /api/sets/{set_url}
func (h *DatasetHandler) GetSet(w http.ResponseWriter, r *http.Request) {
	setURL := mux.Vars(r)["set_url"]

	entries, err := publish.ReadIndex(h.analyticsDir)
	if err != nil {
		h.respondReadError(w, err, "sets index")
		return
	}

	detail := SetDetail{
		Index: make([]publish.IndexEntry, 0, 1),
		Parts: make([]publish.PartEntry, 0, 4),
	}
	for _, e := range entries {
		if e.SetURL == setURL {
			detail.Index = append(detail.Index, e)
		}
	}
	if len(detail.Index) == 0 {
		respondError(w, http.StatusNotFound, "Unknown set")
		return
	}

	parts, err := publish.ReadParts(h.analyticsDir)
	if err != nil {
		h.respondReadError(w, err, "parts table")
		return
	}
	for _, p := range parts {
		if p.SetURL == setURL {
			detail.Parts = append(detail.Parts, p)
		}
	}

	respondJSON(w, http.StatusOK, detail)
}

// GetTimeseries returns one set's published daily series.
// GET /api/sets/{set_url}/timeseries
func (h *DatasetHandler) GetTimeseries(w http.ResponseWriter, r *http.Request) {
	setURL := mux.Vars(r)["set_url"]

	entries, err := publish.ReadTimeseries(h.analyticsDir, setURL)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			respondError(w, http.StatusNotFound, "No published series for set")
			return
		}
		h.respondReadError(w, err, "timeseries")
		return
	}

	respondJSON(w, http.StatusOK, entries)
}

// GetParts returns one set's latest part alignment rows.
// GET /api/sets/{set_url}/parts
func (h *DatasetHandler) GetParts(w http.ResponseWriter, r *http.Request) {
	setURL := mux.Vars(r)["set_url"]

	parts, err := publish.ReadParts(h.analyticsDir)
	if err != nil {
		h.respondReadError(w, err, "parts table")
		return
	}

	matched := make([]publish.PartEntry, 0, 4)
	for _, p := range parts {
		if p.SetURL == setURL {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		respondError(w, http.StatusNotFound, "Unknown set")
		return
	}

	respondJSON(w, http.StatusOK, matched)
}

// StatusResponse summarizes the published dataset.
type StatusResponse struct {
	Published bool       `json:"published"`
	Sets      int        `json:"sets"`
	Parts     int        `json:"parts"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// GetStatus reports whether a dataset is published and how big it is.
// GET /api/status
func (h *DatasetHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	entries, err := publish.ReadIndex(h.analyticsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			respondJSON(w, http.StatusOK, StatusResponse{})
			return
		}
		h.respondReadError(w, err, "sets index")
		return
	}

	parts, err := publish.ReadParts(h.analyticsDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		h.respondReadError(w, err, "parts table")
		return
	}

	status := StatusResponse{
		Published: true,
		Sets:      len(entries),
		Parts:     len(parts),
	}
	if info, err := os.Stat(publish.IndexPath(h.analyticsDir)); err == nil {
		mtime := info.ModTime().UTC()
		status.UpdatedAt = &mtime
	}

	respondJSON(w, http.StatusOK, status)
}

// respondReadError maps a table read failure: an unpublished dataset
// answers 404, anything else 500.
func (h *DatasetHandler) respondReadError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, os.ErrNotExist) {
		respondError(w, http.StatusNotFound, "Dataset not published yet")
		return
	}
	h.logger.WithError(err).Error("Failed to read " + what)
	respondError(w, http.StatusInternalServerError, "Failed to read "+what)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
