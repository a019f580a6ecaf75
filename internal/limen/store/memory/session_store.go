package memory

import (
	"context"
	"sync"
	"time"

	"github.com/moli-lab/limen/internal/limen/store"
)

type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]store.SessionRecord
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]store.SessionRecord)}
}

func (s *SessionStore) Get(_ context.Context, studentID string) (store.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[studentID]
	if !ok {
		return store.SessionRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *SessionStore) Put(_ context.Context, rec store.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.sessions[rec.StudentID] = rec
	return nil
}

func (s *SessionStore) Delete(_ context.Context, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, studentID)
	return nil
}

func (s *SessionStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, rec := range s.sessions {
		if !rec.ExpiresAt.After(cutoff) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}
