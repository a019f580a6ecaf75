// Package lock adapts an "open the door" decision into a timed pulse on
// the physical strike. The electrical driver itself is a collaborator
// behind the Driver interface.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrActuator reports that the lock hardware did not confirm an
// operation. Callers log and surface it but must not retry the open
// automatically, to avoid unintended double-pulses.
var ErrActuator = errors.New("lock actuator failure")

// Driver is the hardware boundary.
type Driver interface {
	Open() error
	Close() error
}

// Actuator fires a single timed open pulse.
type Actuator interface {
	Pulse(ctx context.Context, d time.Duration) error
}

// NopDriver is a stand-in for environments without lock hardware.
type NopDriver struct{}

func (NopDriver) Open() error  { return nil }
func (NopDriver) Close() error { return nil }

// Pulser drives the open window. Pulse is idempotent while the window is
// open: a re-trigger restarts the window rather than stacking a second
// open or shortening the current one.
type Pulser struct {
	mu     sync.Mutex
	driver Driver
	logger *log.Logger
	timer  *time.Timer
	open   bool
}

func NewPulser(driver Driver, logger *log.Logger) *Pulser {
	return &Pulser{driver: driver, logger: logger}
}

func (p *Pulser) Pulse(_ context.Context, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.open {
		p.timer.Stop()
		p.timer.Reset(d)
		return nil
	}

	if err := p.driver.Open(); err != nil {
		return fmt.Errorf("%w: open: %v", ErrActuator, err)
	}
	p.open = true
	p.timer = time.AfterFunc(d, p.release)
	return nil
}

// IsOpen reports whether the open window is active.
func (p *Pulser) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Shutdown closes the strike immediately if a window is still open.
func (p *Pulser) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return
	}
	p.timer.Stop()
	p.closeLocked()
}

func (p *Pulser) release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return
	}
	p.closeLocked()
}

func (p *Pulser) closeLocked() {
	p.open = false
	if err := p.driver.Close(); err != nil {
		p.logger.Printf("lock close: %v", err)
	}
}
