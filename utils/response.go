package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope is the common part of every JSON response. Handlers embed it so
// payload fields sit next to success and message.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func OK(message string) Envelope { return Envelope{Success: true, Message: message} }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}

// WriteError writes {"success": false, "message": message}.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Envelope{Message: message})
}
