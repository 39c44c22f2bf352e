package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// janitor periodically sweeps expired entries out of the store.
type janitor struct {
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// StartJanitor begins the periodic expiry sweep. Calling it while a
// janitor is already running is a no-op.
func (s *Store) StartJanitor() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.janitor != nil {
		return
	}

	j := &janitor{
		interval: s.config.SweepInterval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.janitor = j

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if removed := s.CleanupExpired(); removed > 0 {
					s.logger.Debug("swept expired entries", zap.Int("removed", removed))
				}
			case <-j.stopCh:
				return
			}
		}
	}()
}

// StopJanitor stops the sweep and waits for it to exit.
func (s *Store) StopJanitor() {
	s.mu.Lock()
	j := s.janitor
	s.janitor = nil
	s.mu.Unlock()

	if j == nil {
		return
	}
	j.stopOnce.Do(func() { close(j.stopCh) })
	<-j.done
}
