package service_test

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/moli-lab/limen/internal/limen/service"
	"github.com/moli-lab/limen/internal/limen/store"
	"github.com/moli-lab/limen/internal/limen/store/memory"
	"github.com/moli-lab/limen/internal/notify"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// fakeActuator records pulses instead of driving hardware.
type fakeActuator struct {
	mu     sync.Mutex
	pulses []time.Duration
}

func (f *fakeActuator) Pulse(_ context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulses = append(f.pulses, d)
	return nil
}

func (f *fakeActuator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pulses)
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []notify.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notify.Kind, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

// fixture wires a dispatcher over memory stores.
type fixture struct {
	creds    *memory.CredentialStore
	logs     *memory.AccessLogStore
	sessions *memory.SessionStore
	modes    *service.ModeController
	disp     *service.Dispatcher
	actuator *fakeActuator
	pub      *recordingPublisher
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()

	logger := testLogger()
	creds := memory.NewCredentialStore()
	logs := memory.NewAccessLogStore()
	sessions := memory.NewSessionStore()
	modes := service.NewModeController(sessions, timeout, logger)
	actuator := &fakeActuator{}
	pub := &recordingPublisher{}

	disp := service.NewDispatcher(service.DispatcherConfig{
		Modes:     modes,
		Creds:     creds,
		Sessions:  sessions,
		Logs:      logs,
		Registrar: memory.NewRegistrar(creds, sessions, logs),
		Actuator:  actuator,
		Notifier:  pub,
		Logger:    logger,
	})

	return &fixture{
		creds:    creds,
		logs:     logs,
		sessions: sessions,
		modes:    modes,
		disp:     disp,
		actuator: actuator,
		pub:      pub,
	}
}

func (f *fixture) addUser(t *testing.T, studentID, name string) {
	t.Helper()
	if err := f.creds.CreateUser(context.Background(), store.UserRecord{StudentID: studentID, Name: name}); err != nil {
		t.Fatalf("CreateUser %s: %v", studentID, err)
	}
}

func (f *fixture) bindCard(t *testing.T, studentID, uid string) {
	t.Helper()
	if err := f.creds.BindCard(context.Background(), studentID, uid); err != nil {
		t.Fatalf("BindCard %s -> %s: %v", uid, studentID, err)
	}
}

func (f *fixture) scan(t *testing.T, uid string) service.ScanResult {
	t.Helper()
	res, err := f.disp.HandleScan(context.Background(), uid, time.Time{})
	if err != nil {
		t.Fatalf("HandleScan %s: %v", uid, err)
	}
	return res
}

func (f *fixture) countAction(action store.Action) int {
	n := 0
	for _, ev := range f.logs.Events() {
		if ev.Action == action {
			n++
		}
	}
	return n
}
