package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/moli-lab/limen/internal/limen/service"
	"github.com/moli-lab/limen/internal/limen/store"
	"github.com/moli-lab/limen/internal/limen/store/memory"
)

func seedEvent(t *testing.T, logs *memory.AccessLogStore, studentID string, action store.Action, at time.Time) {
	t.Helper()
	rec := store.AccessLogRecord{RFIDUID: "AA11", Action: action, At: at}
	if studentID != "" {
		sid := studentID
		rec.StudentID = &sid
	}
	if _, err := logs.Record(context.Background(), rec); err != nil {
		t.Fatalf("seed event: %v", err)
	}
}

func newReporter(creds *memory.CredentialStore, logs *memory.AccessLogStore) *service.Reporter {
	return service.NewReporter(logs, creds, &recordingPublisher{}, 22, testLogger())
}

func TestDailyReport_CountsAndTopVisitor(t *testing.T) {
	creds := memory.NewCredentialStore()
	logs := memory.NewAccessLogStore()
	_ = creds.CreateUser(context.Background(), store.UserRecord{StudentID: "B12345", Name: "Alice Chen"})
	_ = creds.CreateUser(context.Background(), store.UserRecord{StudentID: "C99999", Name: "Bob Wu"})

	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	seedEvent(t, logs, "B12345", store.ActionEntry, day.Add(9*time.Hour))
	seedEvent(t, logs, "B12345", store.ActionExit, day.Add(12*time.Hour))
	seedEvent(t, logs, "B12345", store.ActionEntry, day.Add(14*time.Hour))
	seedEvent(t, logs, "B12345", store.ActionExit, day.Add(16*time.Hour))
	seedEvent(t, logs, "C99999", store.ActionEntry, day.Add(10*time.Hour))
	seedEvent(t, logs, "C99999", store.ActionExit, day.Add(20*time.Hour))
	seedEvent(t, logs, "", store.ActionDeny, day.Add(11*time.Hour))
	// Outside the window; must be ignored.
	seedEvent(t, logs, "C99999", store.ActionEntry, day.AddDate(0, 0, 1).Add(time.Hour))

	rep, err := newReporter(creds, logs).DailyReport(context.Background(), day)
	if err != nil {
		t.Fatalf("DailyReport: %v", err)
	}

	if rep.Date != "2026-08-24" {
		t.Errorf("unexpected date %s", rep.Date)
	}
	if rep.Entries != 3 || rep.Denies != 1 {
		t.Errorf("expected 3 entries / 1 deny, got %d / %d", rep.Entries, rep.Denies)
	}
	if rep.TopVisitor == nil || rep.TopVisitor.StudentID != "B12345" || rep.TopVisitor.Entries != 2 {
		t.Errorf("unexpected top visitor: %+v", rep.TopVisitor)
	}
	if rep.LatestDeparture == nil || rep.LatestDeparture.StudentID != "C99999" {
		t.Errorf("unexpected latest departure: %+v", rep.LatestDeparture)
	}
	if rep.TopVisitor.Name != "Alice Chen" {
		t.Errorf("expected resolved name, got %q", rep.TopVisitor.Name)
	}
}

func TestWeeklyReport_RanksByDwell(t *testing.T) {
	creds := memory.NewCredentialStore()
	logs := memory.NewAccessLogStore()

	end := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC) // a Sunday
	monday := end.AddDate(0, 0, -5)

	// Alice: 3h + 2h across two days. Bob: 4h in one sitting.
	seedEvent(t, logs, "B12345", store.ActionEntry, monday.Add(9*time.Hour))
	seedEvent(t, logs, "B12345", store.ActionExit, monday.Add(12*time.Hour))
	seedEvent(t, logs, "B12345", store.ActionEntry, monday.AddDate(0, 0, 1).Add(13*time.Hour))
	seedEvent(t, logs, "B12345", store.ActionExit, monday.AddDate(0, 0, 1).Add(15*time.Hour))
	seedEvent(t, logs, "C99999", store.ActionEntry, monday.Add(10*time.Hour))
	seedEvent(t, logs, "C99999", store.ActionExit, monday.Add(14*time.Hour))
	// A trailing unpaired entry contributes nothing.
	seedEvent(t, logs, "C99999", store.ActionEntry, monday.AddDate(0, 0, 2).Add(23*time.Hour))

	rep, err := newReporter(creds, logs).WeeklyReport(context.Background(), end)
	if err != nil {
		t.Fatalf("WeeklyReport: %v", err)
	}

	if len(rep.Dwell) != 2 {
		t.Fatalf("expected 2 ranked users, got %d", len(rep.Dwell))
	}
	if rep.Dwell[0].StudentID != "B12345" || rep.Dwell[0].TotalSeconds != 5*3600 {
		t.Errorf("unexpected first rank: %+v", rep.Dwell[0])
	}
	if rep.Dwell[1].StudentID != "C99999" || rep.Dwell[1].TotalSeconds != 4*3600 {
		t.Errorf("unexpected second rank: %+v", rep.Dwell[1])
	}
}
