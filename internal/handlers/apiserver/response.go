// Package apiserver holds the REST surface: accounts, conversations,
// message history, scheduled messages and media upload.
package apiserver

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the common error body for all API endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		// Headers are already sent; an encode failure here cannot be
		// reported to the client anymore.
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, ErrorResponse{Error: message})
}
