package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// InitSchema creates the universities table and its lookup index.
// Statements are idempotent, so opening a published snapshot is safe.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS universities (
			name TEXT NOT NULL,
			city TEXT NOT NULL,
			passing_score INTEGER NOT NULL CHECK (passing_score >= 0),
			link TEXT,
			specialty TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create universities table: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_universities_specialty
		ON universities(specialty, passing_score DESC)
	`); err != nil {
		return fmt.Errorf("failed to create universities index: %w", err)
	}

	return nil
}
