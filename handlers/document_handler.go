package handlers

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/serisow/sagefemme/models"
	"github.com/serisow/sagefemme/services/rag_service"
)

const defaultMaxUploadBytes = 20 << 20

// DocumentHandler serves the document library: upload, listing, lookup and
// deletion.
type DocumentHandler struct {
	processor      *rag_service.Processor
	store          rag_service.DocumentStore
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewDocumentHandler(processor *rag_service.Processor, store rag_service.DocumentStore, maxUploadBytes int64, logger *slog.Logger) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &DocumentHandler{
		processor:      processor,
		store:          store,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Received file upload request")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, "Failed to parse multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, "File is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		writeJSONError(w, "Document name is required", http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		writeJSONError(w, "Failed to read file", http.StatusInternalServerError)
		return
	}

	h.logger.Debug("Starting document ingestion",
		slog.String("filename", header.Filename),
		slog.String("content_type", header.Header.Get("Content-Type")),
		slog.Int64("size", header.Size))

	doc, err := h.processor.Ingest(r.Context(), rag_service.IngestRequest{
		Data:       buf.Bytes(),
		Filename:   header.Filename,
		MimeType:   header.Header.Get("Content-Type"),
		Name:       name,
		UploadedBy: strings.TrimSpace(r.FormValue("uploadedBy")),
	})
	if err != nil {
		h.logger.Error("Upload failed",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()))
		writeJSONError(w, err.Error(), statusForError(err))
		return
	}

	writeJSON(w, h.logger, doc)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListDocuments(r.Context())
	if err != nil {
		h.logger.Error("Failed to list documents", slog.String("error", err.Error()))
		writeJSONError(w, "Failed to list documents", statusForError(err))
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, h.logger, docs)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	doc, err := h.store.GetDocument(r.Context(), id)
	if err != nil {
		if !errors.Is(err, rag_service.ErrDocumentNotFound) {
			h.logger.Error("Failed to fetch document",
				slog.String("document_id", id),
				slog.String("error", err.Error()))
		}
		writeJSONError(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, h.logger, doc)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.store.DeleteDocument(r.Context(), id); err != nil {
		h.logger.Error("Failed to delete document",
			slog.String("document_id", id),
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to delete document", statusForError(err))
		return
	}

	h.logger.Info("Document deleted", slog.String("document_id", id))
	writeJSON(w, h.logger, map[string]bool{"success": true})
}
