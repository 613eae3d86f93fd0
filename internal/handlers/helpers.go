package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/benvon/smart-tasks/internal/logger"
)

// maxClientMessage bounds error messages returned to clients
const maxClientMessage = 200

// envelope is the body shape of every operator endpoint response
type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, envelope{Success: true, Data: data})
}

// respondJSONError writes an error body. message is stripped of control characters and truncated.
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	writeEnvelope(w, status, envelope{
		Error:   errorType,
		Message: logger.SanitizeString(message, maxClientMessage),
	})
}
