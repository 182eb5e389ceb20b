package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/serisow/sagefemme/services/rag_service"
)

type AskRequest struct {
	Question       string                      `json:"question"`
	Strict         bool                        `json:"strict"`
	DocumentIDs    []string                    `json:"documentIds"`
	Limit          int                         `json:"limit"`
	PatientContext *rag_service.PatientContext `json:"patientContext"`
}

type InsightRequest struct {
	Term           string                      `json:"term"`
	PatientContext *rag_service.PatientContext `json:"patientContext"`
}

// AssistantHandler exposes grounded question answering and quick clinical
// insights.
type AssistantHandler struct {
	advisor *rag_service.Advisor
	logger  *slog.Logger
}

func NewAssistantHandler(advisor *rag_service.Advisor, logger *slog.Logger) *AssistantHandler {
	return &AssistantHandler{
		advisor: advisor,
		logger:  logger,
	}
}

func (h *AssistantHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.advisor.Ask(r.Context(), rag_service.AskRequest{
		Question:       req.Question,
		Strict:         req.Strict,
		DocumentIDs:    req.DocumentIDs,
		Limit:          req.Limit,
		PatientContext: req.PatientContext,
	})
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Assistant answer failed", slog.String("error", err.Error()))
		}
		writeJSONError(w, err.Error(), status)
		return
	}

	writeJSON(w, h.logger, resp)
}

func (h *AssistantHandler) Insight(w http.ResponseWriter, r *http.Request) {
	var req InsightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	insight, err := h.advisor.Insight(r.Context(), req.Term, req.PatientContext)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Clinical insight failed", slog.String("error", err.Error()))
		}
		writeJSONError(w, err.Error(), status)
		return
	}

	writeJSON(w, h.logger, map[string]string{"insight": insight})
}
