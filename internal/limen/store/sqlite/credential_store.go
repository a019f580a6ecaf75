package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/moli-lab/limen/internal/db"
	"github.com/moli-lab/limen/internal/limen/store"
)

type CredentialStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewCredentialStore(db *sql.DB, writer *dbpkg.Worker) *CredentialStore {
	return &CredentialStore{db: db, writer: writer}
}

func (s *CredentialStore) CreateUser(ctx context.Context, rec store.UserRecord) error {
	studentID := strings.TrimSpace(rec.StudentID)
	if studentID == "" {
		return fmt.Errorf("CreateUser: empty student_id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	createdMs := rec.CreatedAt.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM users WHERE student_id = ?;`, studentID,
		).Scan(&one)
		if err == nil {
			return store.ErrAlreadyExists
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("CreateUser check: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO users(student_id, name, created_at_ms) VALUES (?, ?, ?);
`, studentID, rec.Name, createdMs); err != nil {
			return fmt.Errorf("CreateUser insert: %w", err)
		}
		return nil
	})
}

func (s *CredentialStore) GetUser(ctx context.Context, studentID string) (store.UserRecord, error) {
	var rec store.UserRecord
	var createdMs int64

	err := s.db.QueryRowContext(ctx, `
SELECT student_id, name, created_at_ms FROM users WHERE student_id = ?;
`, studentID).Scan(&rec.StudentID, &rec.Name, &createdMs)
	if err == sql.ErrNoRows {
		return store.UserRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.UserRecord{}, fmt.Errorf("GetUser query: %w", err)
	}

	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, nil
}

func (s *CredentialStore) ResolveCard(ctx context.Context, rfidUID string) (store.UserRecord, error) {
	var rec store.UserRecord
	var createdMs int64

	err := s.db.QueryRowContext(ctx, `
SELECT u.student_id, u.name, u.created_at_ms
FROM user_cards c
JOIN users u ON u.student_id = c.student_id
WHERE c.rfid_uid = ?;
`, rfidUID).Scan(&rec.StudentID, &rec.Name, &createdMs)
	if err == sql.ErrNoRows {
		return store.UserRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.UserRecord{}, fmt.Errorf("ResolveCard query: %w", err)
	}

	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, nil
}

// BindCard inserts the binding after an in-transaction existence check.
// The single-writer worker serializes all write transactions, so
// check-then-insert cannot race; the UNIQUE index on rfid_uid remains as
// a backstop.
func (s *CredentialStore) BindCard(ctx context.Context, studentID, rfidUID string) error {
	studentID = strings.TrimSpace(studentID)
	rfidUID = strings.TrimSpace(rfidUID)
	if studentID == "" || rfidUID == "" {
		return fmt.Errorf("BindCard: empty student_id or rfid_uid")
	}
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return bindCardTx(ctx, tx, studentID, rfidUID, nowMs)
	})
}

// bindCardTx is shared with the Registrar so the final bind of a
// registration can run inside the same transaction as the session delete
// and log append.
func bindCardTx(ctx context.Context, tx *sql.Tx, studentID, rfidUID string, nowMs int64) error {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM user_cards WHERE rfid_uid = ?;`, rfidUID,
	).Scan(&one)
	if err == nil {
		return store.ErrAlreadyBound
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("BindCard check: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO user_cards(student_id, rfid_uid, created_at_ms) VALUES (?, ?, ?);
`, studentID, rfidUID, nowMs); err != nil {
		return fmt.Errorf("BindCard insert: %w", err)
	}
	return nil
}

func (s *CredentialStore) UnbindCard(ctx context.Context, studentID, rfidUID string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM user_cards WHERE student_id = ? AND rfid_uid = ?;
`, studentID, rfidUID)
		if err != nil {
			return fmt.Errorf("UnbindCard delete: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *CredentialStore) CardsFor(ctx context.Context, studentID string) ([]store.CardRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, student_id, rfid_uid, created_at_ms
FROM user_cards
WHERE student_id = ?
ORDER BY id;
`, studentID)
	if err != nil {
		return nil, fmt.Errorf("CardsFor query: %w", err)
	}
	defer rows.Close()

	var out []store.CardRecord
	for rows.Next() {
		var rec store.CardRecord
		var createdMs int64
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.RFIDUID, &createdMs); err != nil {
			return nil, fmt.Errorf("CardsFor scan: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("CardsFor rows: %w", err)
	}
	return out, nil
}
