package cartclient

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultSyncInterval is the reconciliation period used when none is configured.
const DefaultSyncInterval = 30 * time.Second

var (
	ErrSchedulerRunning = errors.New("cartclient: scheduler already running")
	errInvalidInterval  = errors.New("cartclient: sync interval must be positive")
)

// Scheduler runs a tick immediately and then on a fixed interval until its
// context is cancelled or Stop is called.
type Scheduler struct {
	interval time.Duration
	tick     func(context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler returns a stopped scheduler.
func NewScheduler(interval time.Duration, tick func(context.Context)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errInvalidInterval
	}
	return &Scheduler{interval: interval, tick: tick}, nil
}

// Start launches the loop. The loop ends when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrSchedulerRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.run(loopCtx, done)
	return nil
}

// Stop cancels the loop and waits for an in-progress tick to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.tick(ctx)
		}
	}
}
