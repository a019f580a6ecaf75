// Package memory holds in-memory store implementations for tests and dev
// environments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/moli-lab/limen/internal/limen/store"
)

type CredentialStore struct {
	mu     sync.RWMutex
	users  map[string]store.UserRecord
	cards  map[string]store.CardRecord // keyed by rfid_uid
	nextID int64
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		users: make(map[string]store.UserRecord),
		cards: make(map[string]store.CardRecord),
	}
}

func (s *CredentialStore) CreateUser(_ context.Context, rec store.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[rec.StudentID]; ok {
		return store.ErrAlreadyExists
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.users[rec.StudentID] = rec
	return nil
}

func (s *CredentialStore) GetUser(_ context.Context, studentID string) (store.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[studentID]
	if !ok {
		return store.UserRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *CredentialStore) ResolveCard(_ context.Context, rfidUID string) (store.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	card, ok := s.cards[rfidUID]
	if !ok {
		return store.UserRecord{}, store.ErrNotFound
	}
	user, ok := s.users[card.StudentID]
	if !ok {
		return store.UserRecord{}, store.ErrNotFound
	}
	return user, nil
}

func (s *CredentialStore) BindCard(_ context.Context, studentID, rfidUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindLocked(studentID, rfidUID)
}

func (s *CredentialStore) bindLocked(studentID, rfidUID string) error {
	if _, ok := s.cards[rfidUID]; ok {
		return store.ErrAlreadyBound
	}
	s.nextID++
	s.cards[rfidUID] = store.CardRecord{
		ID:        s.nextID,
		StudentID: studentID,
		RFIDUID:   rfidUID,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *CredentialStore) UnbindCard(_ context.Context, studentID, rfidUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[rfidUID]
	if !ok || card.StudentID != studentID {
		return store.ErrNotFound
	}
	delete(s.cards, rfidUID)
	return nil
}

func (s *CredentialStore) CardsFor(_ context.Context, studentID string) ([]store.CardRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.CardRecord
	for _, card := range s.cards {
		if card.StudentID == studentID {
			out = append(out, card)
		}
	}
	return out, nil
}
