package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedDev inserts a starter user so a fresh dev environment has a
// registration target without going through the front end first.
func SeedDev(ctx context.Context, db *sql.DB) error {
	now := time.Now().UTC().UnixMilli()

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO users(student_id, name, created_at_ms)
VALUES ('B12345', 'Dev Student', ?);`, now); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	return nil
}
