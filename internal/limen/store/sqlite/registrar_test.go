package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moli-lab/limen/internal/limen/store"
	sqlitestore "github.com/moli-lab/limen/internal/limen/store/sqlite"
)

func TestRegistrar_CompleteBind_AllEffectsInOneStep(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	cs := sqlitestore.NewCredentialStore(conn, w)
	ss := sqlitestore.NewSessionStore(conn, w)
	reg := sqlitestore.NewRegistrar(conn, w)
	ctx := context.Background()
	seedUser(t, conn, "B12345", "Alice Chen")

	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	if err := ss.Put(ctx, store.SessionRecord{
		StudentID: "B12345", FirstUID: "AA11", Step: store.StepAwaitingSecond, ExpiresAt: at.Add(time.Minute),
	}); err != nil {
		t.Fatalf("Put session: %v", err)
	}

	if err := reg.CompleteBind(ctx, "B12345", "AA11", at); err != nil {
		t.Fatalf("CompleteBind: %v", err)
	}

	owner, err := cs.ResolveCard(ctx, "AA11")
	if err != nil || owner.StudentID != "B12345" {
		t.Errorf("expected binding for B12345, got %v / %v", owner, err)
	}
	if _, err := ss.Get(ctx, "B12345"); !errors.Is(err, store.ErrNotFound) {
		t.Error("session must be deleted")
	}

	var count int
	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM access_logs WHERE action = 'bind' AND student_id = ?;`, "B12345",
	).Scan(&count); err != nil {
		t.Fatalf("count bind logs: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 bind log, got %d", count)
	}
}

func TestRegistrar_CompleteBind_ConflictLeavesNoEffects(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	cs := sqlitestore.NewCredentialStore(conn, w)
	ss := sqlitestore.NewSessionStore(conn, w)
	reg := sqlitestore.NewRegistrar(conn, w)
	ctx := context.Background()
	seedUser(t, conn, "B12345", "Alice Chen")
	seedUser(t, conn, "C99999", "Bob Wu")

	if err := cs.BindCard(ctx, "C99999", "BB22"); err != nil {
		t.Fatalf("BindCard: %v", err)
	}
	if err := ss.Put(ctx, store.SessionRecord{
		StudentID: "B12345", FirstUID: "BB22", Step: store.StepAwaitingSecond,
		ExpiresAt: time.Now().UTC().Add(time.Minute),
	}); err != nil {
		t.Fatalf("Put session: %v", err)
	}

	err := reg.CompleteBind(ctx, "B12345", "BB22", time.Now().UTC())
	if !errors.Is(err, store.ErrAlreadyBound) {
		t.Fatalf("expected ErrAlreadyBound, got %v", err)
	}

	// The whole transaction rolled back: session intact, no bind log.
	if _, err := ss.Get(ctx, "B12345"); err != nil {
		t.Errorf("session must survive a rolled-back bind: %v", err)
	}
	var count int
	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM access_logs WHERE action = 'bind';`,
	).Scan(&count); err != nil {
		t.Fatalf("count bind logs: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no bind log, got %d", count)
	}
	if owner, err := cs.ResolveCard(ctx, "BB22"); err != nil || owner.StudentID != "C99999" {
		t.Error("BB22 must stay bound to C99999")
	}
}
