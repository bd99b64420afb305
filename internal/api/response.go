package api

import (
	"encoding/json"
	"net/http"

	"github.com/rewired-gh/skupricer/internal/logger"
)

// Response represents a standard API response.
type Response struct {
	Success bool  `json:"success"`
	Data    any   `json:"data,omitempty"`
	Meta    *Meta `json:"meta,omitempty"`
}

// Meta describes list responses.
type Meta struct {
	Total          int    `json:"total"`
	CatalogVersion uint64 `json:"catalog_version,omitempty"`
	Stale          bool   `json:"stale,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data any, meta *Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(Response{Success: true, Data: data, Meta: meta}); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}

// ok sends a 200 OK response.
func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data, nil)
}

// writeError sends an error response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := FromError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		logger.Error("[%s] %s %s failed: %v", RequestIDFrom(r.Context()), r.Method, r.URL.Path, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode)
	_, _ = w.Write(apiErr.ToJSON())
}
