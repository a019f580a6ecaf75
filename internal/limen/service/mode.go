package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/moli-lab/limen/internal/limen/store"
)

// ErrModeConflict is returned when registration mode is requested while
// already active for a different student.
var ErrModeConflict = errors.New("registration mode already active for another student")

// Mode is the process-wide operating mode. The zero value is NORMAL.
type Mode struct {
	Registering bool
	StudentID   string
}

// ModeController owns the NORMAL/REGISTER toggle and the registration
// inactivity timer. Its mutex is the single serialization point for
// everything that touches mode or session state: scan handling, the
// enable/disable calls, and the timer callback all take it, so a scan and
// a timer firing concurrently are strictly ordered and the loser observes
// the already-mutated state.
//
// Session lifetime is owned solely by the expiry timestamp and explicit
// transitions; a front-end disconnect is never cause to abort.
type ModeController struct {
	mu       sync.Mutex
	mode     Mode
	timer    *time.Timer
	sessions store.SessionStore
	timeout  time.Duration
	logger   *log.Logger
	now      func() time.Time
}

func NewModeController(sessions store.SessionStore, timeout time.Duration, logger *log.Logger) *ModeController {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ModeController{
		sessions: sessions,
		timeout:  timeout,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EnableRegistration switches to REGISTER_MODE for the given student and
// creates (or resets) their session at the first-scan step. Enabling
// again for the same student restarts the handshake; enabling for a
// different student while one is active fails with ErrModeConflict.
func (mc *ModeController) EnableRegistration(ctx context.Context, studentID string) (Mode, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.mode.Registering && mc.mode.StudentID != studentID {
		return mc.mode, ErrModeConflict
	}

	now := mc.now()
	rec := store.SessionRecord{
		StudentID: studentID,
		Step:      store.StepAwaitingFirst,
		ExpiresAt: now.Add(mc.timeout),
		CreatedAt: now,
	}
	if err := mc.sessions.Put(ctx, rec); err != nil {
		return mc.mode, err
	}

	mc.mode = Mode{Registering: true, StudentID: studentID}
	mc.scheduleLocked(rec.ExpiresAt)
	mc.logger.Printf("register mode enabled for %s (expires %s)", studentID, rec.ExpiresAt.Format(time.RFC3339))
	return mc.mode, nil
}

// DisableRegistration reverts to NORMAL and deletes the active session,
// if any.
func (mc *ModeController) DisableRegistration(ctx context.Context) (Mode, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if !mc.mode.Registering {
		return mc.mode, nil
	}

	studentID := mc.mode.StudentID
	if err := mc.sessions.Delete(ctx, studentID); err != nil {
		return mc.mode, err
	}
	mc.finishLocked()
	mc.logger.Printf("register mode disabled for %s", studentID)
	return mc.mode, nil
}

func (mc *ModeController) Current() Mode {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.mode
}

// scheduleLocked (re)arms the inactivity timer for the given expiry.
// Every state-advancing scan calls this, so the timer always tracks the
// session's current expiry. Caller must hold mu.
func (mc *ModeController) scheduleLocked(expiresAt time.Time) {
	if mc.timer != nil {
		mc.timer.Stop()
	}
	d := expiresAt.Sub(mc.now())
	if d < 0 {
		d = 0
	}
	mc.timer = time.AfterFunc(d, mc.expire)
}

// finishLocked reverts to NORMAL and cancels the timer. Caller must hold
// mu and have dealt with the session row.
func (mc *ModeController) finishLocked() {
	if mc.timer != nil {
		mc.timer.Stop()
		mc.timer = nil
	}
	mc.mode = Mode{}
}

// expire is the timer callback. It re-checks under the mutex: if a scan
// advanced the session in the meantime it reschedules; if the session is
// already gone it only reverts the mode.
func (mc *ModeController) expire() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if !mc.mode.Registering {
		return
	}
	studentID := mc.mode.StudentID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := mc.sessions.Get(ctx, studentID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Session already promoted or deleted; just drop the mode.
	case err != nil:
		mc.logger.Printf("register timeout: session lookup for %s: %v", studentID, err)
		return
	case sess.ExpiresAt.After(mc.now()):
		mc.scheduleLocked(sess.ExpiresAt)
		return
	default:
		if err := mc.sessions.Delete(ctx, studentID); err != nil {
			mc.logger.Printf("register timeout: delete session for %s: %v", studentID, err)
			return
		}
	}

	mc.finishLocked()
	mc.logger.Printf("register mode timed out for %s", studentID)
}
