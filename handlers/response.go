package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/serisow/sagefemme/services/rag_service"
)

func writeJSON(w http.ResponseWriter, logger *slog.Logger, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", slog.String("error", err.Error()))
	}
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// statusForError maps a service error to the HTTP status returned to the
// client.
func statusForError(err error) int {
	switch {
	case errors.Is(err, rag_service.ErrInvalidQuery), errors.Is(err, rag_service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, rag_service.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, rag_service.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
