package rag_service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/serisow/sagefemme/models"
)

var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":  "application/vnd.oasis.opendocument.text",
	".rtf":  "application/rtf",
	".html": "text/html",
	".htm":  "text/html",
	".txt":  "text/plain",
	".md":   "text/markdown",
}

// DetectMimeType keeps the declared type unless it is missing or generic,
// in which case the file extension decides.
func DetectMimeType(filename, declared string) string {
	declared = normalizeMimeType(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if mime, ok := mimeTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mime
	}
	if declared == "" {
		return "application/octet-stream"
	}
	return declared
}

// IsSupportedFile reports whether the extension of filename is one the
// extractor knows how to read.
func IsSupportedFile(filename string) bool {
	_, ok := mimeTypes[strings.ToLower(filepath.Ext(filename))]
	return ok
}

type IngestRequest struct {
	Data       []byte
	Filename   string
	MimeType   string
	Name       string
	UploadedBy string
}

type ProcessorOption func(*Processor)

// WithDeduplication makes Ingest return the existing document when one
// with identical extracted text is already stored.
func WithDeduplication(enabled bool) ProcessorOption {
	return func(p *Processor) {
		p.deduplicate = enabled
	}
}

func WithChunker(c *Chunker) ProcessorOption {
	return func(p *Processor) {
		p.chunker = c
	}
}

// Processor runs the ingestion pipeline: extract, chunk, embed, then
// persist the document and its chunks in one write.
type Processor struct {
	store       DocumentStore
	extractor   *TextExtractor
	chunker     *Chunker
	embedder    Embedder
	logger      *slog.Logger
	deduplicate bool
}

func NewProcessor(store DocumentStore, extractor *TextExtractor, embedder Embedder, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:     store,
		extractor: extractor,
		chunker:   NewChunker(),
		embedder:  embedder,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest stores req as a searchable document. Nothing is written unless
// extraction, chunking and embedding all succeed.
func (p *Processor) Ingest(ctx context.Context, req IngestRequest) (*models.Document, error) {
	if p.store == nil || !p.store.IsAvailable() {
		return nil, ErrStorageUnavailable
	}

	mimeType := DetectMimeType(req.Filename, req.MimeType)
	logger := p.logger.With(
		slog.String("filename", req.Filename),
		slog.String("mime_type", mimeType))

	var stats models.IngestStats

	extractStart := time.Now()
	text, err := p.extractor.Extract(ctx, req.Data, mimeType)
	if err != nil {
		logger.Error("Text extraction failed", slog.String("error", err.Error()))
		return nil, err
	}
	stats.ProcessingStats.ExtractionTime = time.Since(extractStart)
	stats.WordCount = len(strings.Fields(text))
	stats.CharacterCount = len([]rune(text))

	hash := ContentHash(text)
	if p.deduplicate {
		existing, err := p.store.FindDocumentByHash(ctx, hash)
		switch {
		case err == nil:
			logger.Info("Duplicate upload, returning existing document",
				slog.String("document_id", existing.ID))
			return existing, nil
		case !errors.Is(err, ErrDocumentNotFound):
			return nil, err
		}
	}

	chunkStart := time.Now()
	chunks := p.chunker.Chunk(text)
	stats.ProcessingStats.ChunkingTime = time.Since(chunkStart)
	if len(chunks) == 0 {
		logger.Warn("Document too short to be indexed", slog.Int("character_count", stats.CharacterCount))
		return nil, ErrDocumentTooShort
	}

	embedStart := time.Now()
	embeddings, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		logger.Error("Failed to generate embeddings",
			slog.Int("chunk_count", len(chunks)),
			slog.String("error", err.Error()))
		return nil, err
	}
	stats.ProcessingStats.EmbeddingTime = time.Since(embedStart)

	for i := range chunks {
		chunks[i] = cleanChunk(chunks[i])
	}

	storeStart := time.Now()
	doc, err := p.store.CreateDocumentWithChunks(ctx, models.DocumentMeta{
		Name:             req.Name,
		FileType:         mimeType,
		OriginalFilename: req.Filename,
		UploadedBy:       req.UploadedBy,
		ContentHash:      hash,
	}, text, chunks, embeddings)
	if err != nil {
		logger.Error("Failed to store document", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	stats.ProcessingStats.StorageTime = time.Since(storeStart)
	stats.ChunkCount = len(chunks)

	logger.Info("Document processed successfully",
		slog.String("document_id", doc.ID),
		slog.Int("word_count", stats.WordCount),
		slog.Int("character_count", stats.CharacterCount),
		slog.Int("chunk_count", stats.ChunkCount),
		slog.Duration("extraction_time", stats.ProcessingStats.ExtractionTime),
		slog.Duration("chunking_time", stats.ProcessingStats.ChunkingTime),
		slog.Duration("embedding_time", stats.ProcessingStats.EmbeddingTime),
		slog.Duration("storage_time", stats.ProcessingStats.StorageTime))

	return doc, nil
}

// ContentHash is the hex sha256 of the extracted text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cleanChunk(chunk string) string {
	return strings.TrimSpace(strings.ReplaceAll(chunk, "\x00", ""))
}
