package store

import (
	"context"
	"time"
)

type SessionStep int

const (
	StepAwaitingFirst SessionStep = iota
	StepAwaitingSecond
)

// SessionRecord tracks one in-flight two-scan registration. FirstUID is
// empty until the first scan is captured.
type SessionRecord struct {
	StudentID string
	FirstUID  string
	Step      SessionStep
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionStore holds at most one registration session per student.
type SessionStore interface {
	Get(ctx context.Context, studentID string) (SessionRecord, error)
	Put(ctx context.Context, rec SessionRecord) error
	Delete(ctx context.Context, studentID string) error

	// DeleteExpired removes sessions whose expiry is at or before cutoff,
	// returning how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
