// Package notify publishes door events to an external channel,
// best-effort. A failed publish is logged and dropped; it never blocks or
// invalidates the access decision that produced it.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindEntry        Kind = "entry"
	KindExit         Kind = "exit"
	KindDeny         Kind = "deny"
	KindScanAgain    Kind = "scan_again"
	KindBindOK       Kind = "bind_ok"
	KindBindConflict Kind = "bind_conflict"
	KindBindMismatch Kind = "bind_mismatch"
	KindReport       Kind = "report"
)

type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	StudentID string    `json:"student_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	CardUID   string    `json:"rfid_uid,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// NewEvent returns an Event with a fresh id and timestamp; callers fill
// in the payload fields.
func NewEvent(kind Kind) Event {
	return Event{
		ID:   uuid.NewString(),
		Kind: kind,
		At:   time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
