package service

import (
	"context"
	"log"
	"time"

	"github.com/moli-lab/limen/internal/limen/store"
)

// SessionSweeper periodically deletes expired registration sessions. The
// inactivity timer handles the live session; the sweeper is the safety
// net for rows a crash left behind. Deleting an expired row out from
// under a scan is safe because the dispatcher treats an expired session
// exactly like an absent one.
//
// An interval of 0 uses the default; a negative interval disables the
// sweeper.
type SessionSweeper struct {
	sessions store.SessionStore
	interval time.Duration
	logger   *log.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewSessionSweeper(sessions store.SessionStore, interval time.Duration, logger *log.Logger) *SessionSweeper {
	if interval == 0 {
		interval = 5 * time.Minute
	}
	return &SessionSweeper{
		sessions: sessions,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins the background loop: one immediate sweep to clear any
// backlog, then one per interval until ctx is cancelled or Stop is
// called.
func (s *SessionSweeper) Start(ctx context.Context) {
	if s.interval < 0 {
		s.logger.Printf("session sweeper disabled")
		close(s.done)
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
	s.logger.Printf("session sweeper started (interval=%s)", s.interval)
}

// Stop signals the sweeper to exit and waits for it to finish.
func (s *SessionSweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *SessionSweeper) loop(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *SessionSweeper) sweep(ctx context.Context) {
	deleted, err := s.sessions.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Printf("session sweep error: %v", err)
		return
	}
	if deleted > 0 {
		s.logger.Printf("session sweep: deleted %d expired sessions", deleted)
	}
}
