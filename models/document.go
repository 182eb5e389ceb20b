package models

import "time"

// Document is an uploaded reference document (protocol, guideline, leaflet).
// ContentText is only populated when a single document is fetched.
type Document struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	FileType         string    `json:"file_type"`
	OriginalFilename string    `json:"original_filename"`
	ContentText      string    `json:"content_text,omitempty"`
	ContentHash      string    `json:"content_hash,omitempty"`
	UploadedBy       *string   `json:"uploaded_by"`
	ChunkCount       int       `json:"chunk_count,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DocumentMeta is what the caller knows about a document before it is stored.
type DocumentMeta struct {
	Name             string
	FileType         string
	OriginalFilename string
	UploadedBy       string
	ContentHash      string
}

type Chunk struct {
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
}

type SearchResult struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	ChunkContent string  `json:"chunk_content"`
	Similarity   float64 `json:"similarity"`
}
