package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/moli-lab/limen/internal/limen/store"
	sqlitestore "github.com/moli-lab/limen/internal/limen/store/sqlite"
)

func TestAccessLogStore_Record_NullStudentForDeny(t *testing.T) {
	conn := openTestDB(t)
	ls := sqlitestore.NewAccessLogStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	id, err := ls.Record(ctx, store.AccessLogRecord{
		RFIDUID: "FFFF",
		Action:  store.ActionDeny,
		At:      time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == 0 {
		t.Error("expected a row id")
	}

	var studentID sql.NullString
	if err := conn.QueryRowContext(ctx,
		`SELECT student_id FROM access_logs WHERE id = ?;`, id,
	).Scan(&studentID); err != nil {
		t.Fatalf("query row: %v", err)
	}
	if studentID.Valid {
		t.Errorf("expected NULL student_id, got %q", studentID.String)
	}
}

func TestAccessLogStore_LastGrantedAction(t *testing.T) {
	conn := openTestDB(t)
	ls := sqlitestore.NewAccessLogStore(conn, newTestWriter(t, conn))
	ctx := context.Background()
	seedUser(t, conn, "B12345", "Alice Chen")

	if _, err := ls.LastGrantedAction(ctx, "B12345"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no grants, got %v", err)
	}

	sid := "B12345"
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	seed := []struct {
		action store.Action
		at     time.Time
	}{
		{store.ActionEntry, base},
		{store.ActionExit, base.Add(time.Hour)},
		{store.ActionEntry, base.Add(2 * time.Hour)},
		// bind and deny rows must not influence the alternation.
		{store.ActionBind, base.Add(3 * time.Hour)},
	}
	for _, ev := range seed {
		rec := store.AccessLogRecord{StudentID: &sid, RFIDUID: "AA11", Action: ev.action, At: ev.at}
		if _, err := ls.Record(ctx, rec); err != nil {
			t.Fatalf("Record %s: %v", ev.action, err)
		}
	}

	last, err := ls.LastGrantedAction(ctx, "B12345")
	if err != nil {
		t.Fatalf("LastGrantedAction: %v", err)
	}
	if last != store.ActionEntry {
		t.Errorf("expected entry, got %s", last)
	}
}

func TestAccessLogStore_EventsBetween_WindowIsHalfOpen(t *testing.T) {
	conn := openTestDB(t)
	ls := sqlitestore.NewAccessLogStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	from := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	for _, at := range []time.Time{
		from.Add(-time.Second), // before
		from,                   // included
		to.Add(-time.Second),   // included
		to,                     // excluded
	} {
		if _, err := ls.Record(ctx, store.AccessLogRecord{
			RFIDUID: "FFFF", Action: store.ActionDeny, At: at,
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	events, err := ls.EventsBetween(ctx, from, to)
	if err != nil {
		t.Fatalf("EventsBetween: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events in window, got %d", len(events))
	}
	if !events[0].At.Equal(from) {
		t.Errorf("expected first event at window start, got %s", events[0].At)
	}
}
