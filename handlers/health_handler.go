package handlers

import (
	"log/slog"
	"net/http"
)

// Capability is anything that can report whether it is configured.
type Capability interface {
	IsAvailable() bool
}

type HealthResponse struct {
	Status     string `json:"status"`
	Storage    bool   `json:"storage"`
	Embeddings bool   `json:"embeddings"`
	Extraction bool   `json:"extraction"`
	Generation bool   `json:"generation"`
}

// HealthHandler reports liveness and which capabilities are configured.
// A missing capability does not make the service unhealthy.
type HealthHandler struct {
	Storage    Capability
	Embeddings Capability
	Extraction Capability
	Generation Capability
	logger     *slog.Logger
}

func NewHealthHandler(storage, embeddings, extraction, generation Capability, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		Storage:    storage,
		Embeddings: embeddings,
		Extraction: extraction,
		Generation: generation,
		logger:     logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, HealthResponse{
		Status:     "ok",
		Storage:    available(h.Storage),
		Embeddings: available(h.Embeddings),
		Extraction: available(h.Extraction),
		Generation: available(h.Generation),
	})
}

func available(c Capability) bool {
	return c != nil && c.IsAvailable()
}
