package models

import "time"

type ProcessingStats struct {
	ExtractionTime time.Duration `json:"extraction_time"`
	ChunkingTime   time.Duration `json:"chunking_time"`
	EmbeddingTime  time.Duration `json:"embedding_time"`
	StorageTime    time.Duration `json:"storage_time"`
}

// IngestStats summarises one ingestion run. It is logged, not persisted.
type IngestStats struct {
	WordCount       int             `json:"word_count"`
	CharacterCount  int             `json:"character_count"`
	ChunkCount      int             `json:"chunk_count"`
	Deduplicated    bool            `json:"deduplicated"`
	ProcessingStats ProcessingStats `json:"processing_stats"`
}
