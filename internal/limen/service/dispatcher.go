package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/moli-lab/limen/internal/limen/store"
	"github.com/moli-lab/limen/internal/lock"
	"github.com/moli-lab/limen/internal/notify"
)

var ErrInvalidCardUID = errors.New("rfid_uid is required")

type Outcome string

const (
	OutcomeEntryGranted Outcome = "entry_granted"
	OutcomeExitGranted  Outcome = "exit_granted"
	OutcomeDenied       Outcome = "denied"
	OutcomeScanAgain    Outcome = "scan_again"
	OutcomeBindSuccess  Outcome = "bind_success"
	OutcomeBindConflict Outcome = "bind_conflict"
	OutcomeBindMismatch Outcome = "bind_mismatch"
)

type ScanResult struct {
	Outcome   Outcome
	StudentID string
	Name      string
	Action    store.Action // the logged action, if any
}

// Dispatcher routes each raw card read either to entry/exit authorization
// or to the two-scan registration handshake, depending on the current
// mode. All scans serialize through the mode controller's mutex, so a
// second scan always observes the state left by the first.
type Dispatcher struct {
	modes     *ModeController
	creds     store.CredentialStore
	sessions  store.SessionStore
	logs      store.AccessLogStore
	registrar store.Registrar
	actuator  lock.Actuator
	notifier  notify.Publisher
	logger    *log.Logger
	pulse     time.Duration
	now       func() time.Time
}

type DispatcherConfig struct {
	Modes     *ModeController
	Creds     store.CredentialStore
	Sessions  store.SessionStore
	Logs      store.AccessLogStore
	Registrar store.Registrar
	Actuator  lock.Actuator
	Notifier  notify.Publisher
	Logger    *log.Logger

	// PulseDuration is how long the strike stays open on a grant.
	// Defaults to 3 seconds.
	PulseDuration time.Duration
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.PulseDuration <= 0 {
		cfg.PulseDuration = 3 * time.Second
	}
	return &Dispatcher{
		modes:     cfg.Modes,
		creds:     cfg.Creds,
		sessions:  cfg.Sessions,
		logs:      cfg.Logs,
		registrar: cfg.Registrar,
		actuator:  cfg.Actuator,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
		pulse:     cfg.PulseDuration,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleScan processes one card read. Recoverable conditions (unknown
// card, bind conflict, mismatch, expired session) resolve to an outcome
// and a nil error; a returned error means storage failed and the scan
// failed closed as DENIED.
func (d *Dispatcher) HandleScan(ctx context.Context, cardUID string, observedAt time.Time) (ScanResult, error) {
	cardUID = strings.TrimSpace(cardUID)
	if cardUID == "" {
		return ScanResult{}, ErrInvalidCardUID
	}
	if observedAt.IsZero() {
		observedAt = d.now()
	}

	d.modes.mu.Lock()
	defer d.modes.mu.Unlock()

	if mode := d.modes.mode; mode.Registering {
		return d.handleRegistration(ctx, mode.StudentID, cardUID, observedAt)
	}
	return d.handleNormal(ctx, cardUID, observedAt)
}

// handleNormal authorizes an entry/exit. The grant itself is the log
// append: the pulse and the notification fire only after that row is
// committed, so a crash cannot open the door without a trace.
//
// Entry vs exit is derived by alternation on the user's last granted
// action; with no external exit signal this is what makes the weekly
// dwell pairing possible.
func (d *Dispatcher) handleNormal(ctx context.Context, cardUID string, at time.Time) (ScanResult, error) {
	user, err := d.creds.ResolveCard(ctx, cardUID)
	if errors.Is(err, store.ErrNotFound) {
		if _, lerr := d.logs.Record(ctx, store.AccessLogRecord{
			RFIDUID: cardUID,
			Action:  store.ActionDeny,
			At:      at,
		}); lerr != nil {
			return ScanResult{Outcome: OutcomeDenied}, fmt.Errorf("record deny: %w", lerr)
		}

		ev := notify.NewEvent(notify.KindDeny)
		ev.CardUID = cardUID
		ev.Message = "unknown card"
		d.publish(ev)

		return ScanResult{Outcome: OutcomeDenied, Action: store.ActionDeny}, nil
	}
	if err != nil {
		// Fail closed: with credential state unknown there is no safe
		// default other than a locked door.
		return ScanResult{Outcome: OutcomeDenied}, fmt.Errorf("resolve card: %w", err)
	}

	action := store.ActionEntry
	last, err := d.logs.LastGrantedAction(ctx, user.StudentID)
	if err == nil && last == store.ActionEntry {
		action = store.ActionExit
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return ScanResult{Outcome: OutcomeDenied}, fmt.Errorf("last action: %w", err)
	}

	sid := user.StudentID
	if _, err := d.logs.Record(ctx, store.AccessLogRecord{
		StudentID: &sid,
		RFIDUID:   cardUID,
		Action:    action,
		At:        at,
	}); err != nil {
		return ScanResult{Outcome: OutcomeDenied}, fmt.Errorf("record %s: %w", action, err)
	}

	if err := d.actuator.Pulse(ctx, d.pulse); err != nil {
		// Surfaced in the log only; no automatic re-pulse.
		d.logger.Printf("pulse for %s: %v", user.StudentID, err)
	}

	outcome := OutcomeEntryGranted
	kind := notify.KindEntry
	msg := fmt.Sprintf("%s (%s) entered", user.Name, user.StudentID)
	if action == store.ActionExit {
		outcome = OutcomeExitGranted
		kind = notify.KindExit
		msg = fmt.Sprintf("%s (%s) left", user.Name, user.StudentID)
	}

	ev := notify.NewEvent(kind)
	ev.StudentID = user.StudentID
	ev.Name = user.Name
	ev.CardUID = cardUID
	ev.Message = msg
	d.publish(ev)

	return ScanResult{
		Outcome:   outcome,
		StudentID: user.StudentID,
		Name:      user.Name,
		Action:    action,
	}, nil
}

// handleRegistration advances the two-scan handshake for the student the
// mode is scoped to. An expired session is treated exactly as an absent
// one: a fresh first-scan session is started while the mode persists.
func (d *Dispatcher) handleRegistration(ctx context.Context, studentID, cardUID string, at time.Time) (ScanResult, error) {
	now := d.now()

	sess, err := d.sessions.Get(ctx, studentID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		sess = d.freshSession(studentID, now)
	case err != nil:
		return ScanResult{Outcome: OutcomeDenied}, fmt.Errorf("get session: %w", err)
	case !sess.ExpiresAt.After(now):
		sess = d.freshSession(studentID, now)
	}

	switch sess.Step {
	case store.StepAwaitingFirst:
		return d.handleFirstScan(ctx, sess, cardUID, at, now)
	default:
		return d.handleSecondScan(ctx, sess, cardUID, at, now)
	}
}

func (d *Dispatcher) freshSession(studentID string, now time.Time) store.SessionRecord {
	return store.SessionRecord{
		StudentID: studentID,
		Step:      store.StepAwaitingFirst,
		ExpiresAt: now.Add(d.modes.timeout),
		CreatedAt: now,
	}
}

func (d *Dispatcher) handleFirstScan(ctx context.Context, sess store.SessionRecord, cardUID string, at, now time.Time) (ScanResult, error) {
	// Reject a card someone already holds before capturing it, so the
	// handshake fails fast instead of at the second scan.
	if conflict, err := d.cardTaken(ctx, cardUID); err != nil {
		return ScanResult{Outcome: OutcomeDenied}, err
	} else if conflict {
		return d.bindConflict(ctx, sess, cardUID, at, now)
	}

	sess.FirstUID = cardUID
	sess.Step = store.StepAwaitingSecond
	sess.ExpiresAt = now.Add(d.modes.timeout)
	if err := d.sessions.Put(ctx, sess); err != nil {
		return ScanResult{Outcome: OutcomeDenied}, fmt.Errorf("save session: %w", err)
	}
	d.modes.scheduleLocked(sess.ExpiresAt)

	ev := notify.NewEvent(notify.KindScanAgain)
	ev.StudentID = sess.StudentID
	ev.CardUID = cardUID
	ev.Message = "first scan captured, please scan the same card again"
	d.publish(ev)

	return ScanResult{Outcome: OutcomeScanAgain, StudentID: sess.StudentID}, nil
}

func (d *Dispatcher) handleSecondScan(ctx context.Context, sess store.SessionRecord, cardUID string, at, now time.Time) (ScanResult, error) {
	if conflict, err := d.cardTaken(ctx, cardUID); err != nil {
		return ScanResult{Outcome: OutcomeDenied}, err
	} else if conflict {
		return d.bindConflict(ctx, sess, cardUID, at, now)
	}

	if cardUID != sess.FirstUID {
		// Read error model: the confirmation must literally repeat the
		// first scan. Restart from step one automatically.
		sess.FirstUID = ""
		sess.Step = store.StepAwaitingFirst
		sess.ExpiresAt = now.Add(d.modes.timeout)
		if err := d.sessions.Put(ctx, sess); err != nil {
			return ScanResult{Outcome: OutcomeDenied}, fmt.Errorf("reset session: %w", err)
		}
		d.modes.scheduleLocked(sess.ExpiresAt)

		ev := notify.NewEvent(notify.KindBindMismatch)
		ev.StudentID = sess.StudentID
		ev.CardUID = cardUID
		ev.Message = "scans did not match, rescan from step one"
		d.publish(ev)

		return ScanResult{Outcome: OutcomeBindMismatch, StudentID: sess.StudentID}, nil
	}

	err := d.registrar.CompleteBind(ctx, sess.StudentID, cardUID, at)
	if errors.Is(err, store.ErrAlreadyBound) {
		// Lost a race with another binding; same recovery as a conflict.
		return d.bindConflict(ctx, sess, cardUID, at, now)
	}
	if err != nil {
		return ScanResult{Outcome: OutcomeDenied}, fmt.Errorf("complete bind: %w", err)
	}
	d.modes.finishLocked()

	name := ""
	if user, uerr := d.creds.GetUser(ctx, sess.StudentID); uerr == nil {
		name = user.Name
	}

	ev := notify.NewEvent(notify.KindBindOK)
	ev.StudentID = sess.StudentID
	ev.Name = name
	ev.CardUID = cardUID
	ev.Message = fmt.Sprintf("card bound for %s", sess.StudentID)
	d.publish(ev)

	return ScanResult{
		Outcome:   OutcomeBindSuccess,
		StudentID: sess.StudentID,
		Name:      name,
		Action:    store.ActionBind,
	}, nil
}

// bindConflict records the failed attempt and restarts the handshake at
// the first-scan step. The mode stays REGISTER for the same student.
func (d *Dispatcher) bindConflict(ctx context.Context, sess store.SessionRecord, cardUID string, at, now time.Time) (ScanResult, error) {
	sid := sess.StudentID
	if _, err := d.logs.Record(ctx, store.AccessLogRecord{
		StudentID: &sid,
		RFIDUID:   cardUID,
		Action:    store.ActionBindFail,
		At:        at,
	}); err != nil {
		return ScanResult{Outcome: OutcomeDenied}, fmt.Errorf("record bind-fail: %w", err)
	}

	sess.FirstUID = ""
	sess.Step = store.StepAwaitingFirst
	sess.ExpiresAt = now.Add(d.modes.timeout)
	if err := d.sessions.Put(ctx, sess); err != nil {
		return ScanResult{Outcome: OutcomeDenied}, fmt.Errorf("reset session: %w", err)
	}
	d.modes.scheduleLocked(sess.ExpiresAt)

	ev := notify.NewEvent(notify.KindBindConflict)
	ev.StudentID = sess.StudentID
	ev.CardUID = cardUID
	ev.Message = "card already bound, rescan with a different card"
	d.publish(ev)

	return ScanResult{Outcome: OutcomeBindConflict, StudentID: sess.StudentID}, nil
}

// cardTaken reports whether the card is bound to anyone. Any existing
// binding conflicts, matching the store's bind semantics.
func (d *Dispatcher) cardTaken(ctx context.Context, cardUID string) (bool, error) {
	_, err := d.creds.ResolveCard(ctx, cardUID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve card: %w", err)
	}
	return true, nil
}

// publish hands the event to the notifier. Publishers are non-blocking;
// a failure here is logged and dropped, never affecting the scan.
func (d *Dispatcher) publish(ev notify.Event) {
	if err := d.notifier.Publish(context.Background(), ev); err != nil {
		d.logger.Printf("notify %s: %v", ev.Kind, err)
	}
}
