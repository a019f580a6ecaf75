package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/moli-lab/limen/internal/db"
)

type Registrar struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewRegistrar(db *sql.DB, writer *dbpkg.Worker) *Registrar {
	return &Registrar{db: db, writer: writer}
}

// CompleteBind creates the binding, deletes the registration session, and
// appends the bind event in a single transaction, so a crash cannot leave
// a binding without its audit row or a session that already produced a
// binding.
func (r *Registrar) CompleteBind(ctx context.Context, studentID, rfidUID string, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	atMs := at.UTC().UnixMilli()

	return r.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := bindCardTx(ctx, tx, studentID, rfidUID, atMs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
DELETE FROM registration_sessions WHERE student_id = ?;
`, studentID); err != nil {
			return fmt.Errorf("CompleteBind delete session: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_logs(student_id, rfid_uid, action, at_ms) VALUES (?, ?, 'bind', ?);
`, studentID, rfidUID, atMs); err != nil {
			return fmt.Errorf("CompleteBind insert log: %w", err)
		}

		return nil
	})
}
