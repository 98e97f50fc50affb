// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// Handler serves the routes that are not part of the sync set.
type Handler struct {
	version string
}

// New creates a new Handler instance.
func New(version string) *Handler {
	return &Handler{version: version}
}

// Endpoint describes one sync route in the catalogue.
type Endpoint struct {
	Method      string   `json:"method"`
	Path        string   `json:"path"`
	Params      []string `json:"params,omitempty"`
	Produces    string   `json:"produces"`
	Description string   `json:"description"`
}

// Catalogue is the help document served at the sync root.
type Catalogue struct {
	Service   string     `json:"service"`
	Version   string     `json:"version"`
	Auth      string     `json:"auth"`
	Endpoints []Endpoint `json:"endpoints"`
}

// Help lists the sync endpoints. It does not require credentials.
// GET /openpdv/host
func (h *Handler) Help(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Catalogue{
		Service:   "openpdv-host",
		Version:   h.version,
		Auth:      "HTTP Basic (identifier:secret) or X-Device-Serial/X-Device-Key",
		Endpoints: Endpoints(),
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "resource not found", r.URL.Path)
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed", r.Method)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, cause string) {
	writeJSON(w, status, ErrorResponse{Message: message, Cause: cause})
}
