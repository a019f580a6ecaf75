package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/moli-lab/limen/internal/db"
	"github.com/moli-lab/limen/internal/limen/store"
)

type AccessLogStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessLogStore(db *sql.DB, writer *dbpkg.Worker) *AccessLogStore {
	return &AccessLogStore{db: db, writer: writer}
}

func (s *AccessLogStore) Record(ctx context.Context, rec store.AccessLogRecord) (int64, error) {
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	atMs := rec.At.UTC().UnixMilli()

	var studentID any
	if rec.StudentID != nil {
		studentID = *rec.StudentID
	}

	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO access_logs(student_id, rfid_uid, action, at_ms) VALUES (?, ?, ?, ?);
`, studentID, rec.RFIDUID, string(rec.Action), atMs)
		if err != nil {
			return fmt.Errorf("Record insert: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("Record last id: %w", err)
		}
		return nil
	})
	return id, err
}

func (s *AccessLogStore) LastGrantedAction(ctx context.Context, studentID string) (store.Action, error) {
	var action string
	err := s.db.QueryRowContext(ctx, `
SELECT action FROM access_logs
WHERE student_id = ? AND action IN ('entry','exit')
ORDER BY at_ms DESC, id DESC
LIMIT 1;
`, studentID).Scan(&action)
	if err == sql.ErrNoRows {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("LastGrantedAction query: %w", err)
	}
	return store.Action(action), nil
}

func (s *AccessLogStore) EventsBetween(ctx context.Context, from, to time.Time) ([]store.AccessLogRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, student_id, rfid_uid, action, at_ms
FROM access_logs
WHERE at_ms >= ? AND at_ms < ?
ORDER BY at_ms, id;
`, from.UTC().UnixMilli(), to.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("EventsBetween query: %w", err)
	}
	defer rows.Close()

	var out []store.AccessLogRecord
	for rows.Next() {
		var rec store.AccessLogRecord
		var studentID sql.NullString
		var action string
		var atMs int64
		if err := rows.Scan(&rec.ID, &studentID, &rec.RFIDUID, &action, &atMs); err != nil {
			return nil, fmt.Errorf("EventsBetween scan: %w", err)
		}
		if studentID.Valid {
			sid := studentID.String
			rec.StudentID = &sid
		}
		rec.Action = store.Action(action)
		rec.At = time.UnixMilli(atMs).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EventsBetween rows: %w", err)
	}
	return out, nil
}
