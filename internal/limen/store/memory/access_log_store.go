package memory

import (
	"context"
	"sync"
	"time"

	"github.com/moli-lab/limen/internal/limen/store"
)

// AccessLogStore is an in-memory append-only scan log.
type AccessLogStore struct {
	mu     sync.Mutex
	events []store.AccessLogRecord
}

func NewAccessLogStore() *AccessLogStore {
	return &AccessLogStore{}
}

func (s *AccessLogStore) Record(_ context.Context, rec store.AccessLogRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	rec.ID = int64(len(s.events) + 1)
	s.events = append(s.events, rec)
	return rec.ID, nil
}

func (s *AccessLogStore) LastGrantedAction(_ context.Context, studentID string) (store.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if ev.StudentID == nil || *ev.StudentID != studentID {
			continue
		}
		if ev.Action == store.ActionEntry || ev.Action == store.ActionExit {
			return ev.Action, nil
		}
	}
	return "", store.ErrNotFound
}

func (s *AccessLogStore) EventsBetween(_ context.Context, from, to time.Time) ([]store.AccessLogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.AccessLogRecord
	for _, ev := range s.events {
		if !ev.At.Before(from) && ev.At.Before(to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Events returns a copy of all recorded events. Test-only helper.
func (s *AccessLogStore) Events() []store.AccessLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.AccessLogRecord, len(s.events))
	copy(out, s.events)
	return out
}
