package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/serisow/sagefemme/models"
	"github.com/serisow/sagefemme/services/rag_service"
)

// SearchRequest represents the incoming search request
type SearchRequest struct {
	Query       string   `json:"query"`
	Limit       int      `json:"limit"`
	DocumentIDs []string `json:"documentIds"`
}

// DocumentSearchHandler handles document similarity search requests
type DocumentSearchHandler struct {
	retriever *rag_service.Retriever
	logger    *slog.Logger
}

func NewDocumentSearchHandler(retriever *rag_service.Retriever, logger *slog.Logger) *DocumentSearchHandler {
	return &DocumentSearchHandler{
		retriever: retriever,
		logger:    logger,
	}
}

func (h *DocumentSearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request body",
			slog.String("error", err.Error()))
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	results, err := h.retriever.Search(r.Context(), req.Query, req.Limit, req.DocumentIDs)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Document search failed", slog.String("error", err.Error()))
		}
		writeJSONError(w, err.Error(), status)
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}

	writeJSON(w, h.logger, results)
}
