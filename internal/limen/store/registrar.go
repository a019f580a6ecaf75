package store

import (
	"context"
	"time"
)

// Registrar finalizes a successful two-scan registration: create the card
// binding, delete the session, and append the bind event, all in one
// atomic step. Fails with ErrAlreadyBound without any of those effects if
// the card is bound to anyone by the time the step runs.
type Registrar interface {
	CompleteBind(ctx context.Context, studentID, rfidUID string, at time.Time) error
}
