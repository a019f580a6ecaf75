package store

import (
	"context"
	"time"
)

type UserRecord struct {
	StudentID string
	Name      string
	CreatedAt time.Time
}

type CardRecord struct {
	ID        int64
	StudentID string
	RFIDUID   string
	CreatedAt time.Time
}

// CredentialStore maps users to their bound cards. A card is bound to at
// most one user at any time; BindCard enforces that atomically and fails
// with ErrAlreadyBound for any existing binding, even to the same user.
type CredentialStore interface {
	CreateUser(ctx context.Context, rec UserRecord) error
	GetUser(ctx context.Context, studentID string) (UserRecord, error)

	// ResolveCard returns the user a card is bound to, or ErrNotFound.
	ResolveCard(ctx context.Context, rfidUID string) (UserRecord, error)

	BindCard(ctx context.Context, studentID, rfidUID string) error
	UnbindCard(ctx context.Context, studentID, rfidUID string) error
	CardsFor(ctx context.Context, studentID string) ([]CardRecord, error)
}
