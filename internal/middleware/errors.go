package middleware

import (
	"encoding/json"
	"net/http"
)

// errorBody mirrors the error envelope written by the handlers.
type errorBody struct {
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, cause string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Message: message, Cause: cause})
}
