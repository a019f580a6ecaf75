package store

import (
	"context"
	"time"
)

type Action string

const (
	ActionEntry    Action = "entry"
	ActionExit     Action = "exit"
	ActionDeny     Action = "deny"
	ActionBind     Action = "bind"
	ActionBindFail Action = "bind-fail"
)

// AccessLogRecord is one row of the append-only scan audit log.
// StudentID is nil for unknown-card denials.
type AccessLogRecord struct {
	ID        int64
	StudentID *string
	RFIDUID   string
	Action    Action
	At        time.Time
}

// AccessLogStore persists scan outcomes. The log is append-only: no
// update or delete operation is exposed, and corrections are modeled as
// new compensating events.
type AccessLogStore interface {
	Record(ctx context.Context, rec AccessLogRecord) (int64, error)

	// LastGrantedAction returns the most recent entry/exit action logged
	// for the user, or ErrNotFound if none. Drives the entry/exit
	// alternation policy.
	LastGrantedAction(ctx context.Context, studentID string) (Action, error)

	// EventsBetween returns events with from <= at < to, in log order.
	EventsBetween(ctx context.Context, from, to time.Time) ([]AccessLogRecord, error)
}
