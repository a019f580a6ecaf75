package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/moli-lab/limen/internal/db"
	"github.com/moli-lab/limen/internal/limen/store"
)

type SessionStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewSessionStore(db *sql.DB, writer *dbpkg.Worker) *SessionStore {
	return &SessionStore{db: db, writer: writer}
}

func (s *SessionStore) Get(ctx context.Context, studentID string) (store.SessionRecord, error) {
	var rec store.SessionRecord
	var firstUID sql.NullString
	var step int
	var expiresMs, createdMs int64

	err := s.db.QueryRowContext(ctx, `
SELECT student_id, first_uid, step, expires_at_ms, created_at_ms
FROM registration_sessions
WHERE student_id = ?;
`, studentID).Scan(&rec.StudentID, &firstUID, &step, &expiresMs, &createdMs)
	if err == sql.ErrNoRows {
		return store.SessionRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.SessionRecord{}, fmt.Errorf("session Get query: %w", err)
	}

	if firstUID.Valid {
		rec.FirstUID = firstUID.String
	}
	rec.Step = store.SessionStep(step)
	rec.ExpiresAt = time.UnixMilli(expiresMs).UTC()
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, nil
}

func (s *SessionStore) Put(ctx context.Context, rec store.SessionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var firstUID any
	if rec.FirstUID != "" {
		firstUID = rec.FirstUID
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO registration_sessions(student_id, first_uid, step, expires_at_ms, created_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(student_id) DO UPDATE SET
  first_uid     = excluded.first_uid,
  step          = excluded.step,
  expires_at_ms = excluded.expires_at_ms;
`, rec.StudentID, firstUID, int(rec.Step), rec.ExpiresAt.UTC().UnixMilli(), rec.CreatedAt.UTC().UnixMilli()); err != nil {
			return fmt.Errorf("session Put upsert: %w", err)
		}
		return nil
	})
}

func (s *SessionStore) Delete(ctx context.Context, studentID string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM registration_sessions WHERE student_id = ?;
`, studentID); err != nil {
			return fmt.Errorf("session Delete: %w", err)
		}
		return nil
	})
}

// DeleteExpired removes stale sessions. Uses the expiry index for an
// efficient range scan.
func (s *SessionStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM registration_sessions WHERE expires_at_ms <= ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("DeleteExpired: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
