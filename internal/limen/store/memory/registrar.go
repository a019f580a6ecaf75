package memory

import (
	"context"
	"time"

	"github.com/moli-lab/limen/internal/limen/store"
)

// Registrar composes the three memory stores. The dispatcher's
// serialization makes the multi-store sequence effectively atomic here;
// true transactionality is the sqlite implementation's job.
type Registrar struct {
	creds    *CredentialStore
	sessions *SessionStore
	logs     *AccessLogStore
}

func NewRegistrar(creds *CredentialStore, sessions *SessionStore, logs *AccessLogStore) *Registrar {
	return &Registrar{creds: creds, sessions: sessions, logs: logs}
}

func (r *Registrar) CompleteBind(ctx context.Context, studentID, rfidUID string, at time.Time) error {
	if err := r.creds.BindCard(ctx, studentID, rfidUID); err != nil {
		return err
	}
	if err := r.sessions.Delete(ctx, studentID); err != nil {
		return err
	}

	sid := studentID
	_, err := r.logs.Record(ctx, store.AccessLogRecord{
		StudentID: &sid,
		RFIDUID:   rfidUID,
		Action:    store.ActionBind,
		At:        at,
	})
	return err
}
