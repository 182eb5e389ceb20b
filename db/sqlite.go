package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (creating if needed) the SQLite database at path and
// applies the schema. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// One connection: SQLite serialises writers and ":memory:" is per connection.
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range SQLiteSchemaStatements() {
		if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
		}
	}
	return sqlDB, nil
}

func SQLiteSchemaStatements() []string {
	return []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			file_type TEXT NOT NULL,
			original_filename TEXT NOT NULL,
			content_text TEXT NOT NULL,
			content_hash TEXT,
			uploaded_by TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_content_hash ON documents (content_hash)`,
		`CREATE TABLE IF NOT EXISTS document_chunks (
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL,
			UNIQUE (document_id, chunk_index)
		)`,
	}
}
