package util

import (
	"log"
	"sync"
	"time"
)

// Stopwatch measures one scoped section. Stop is idempotent so it can be
// deferred and also called early.
//
//	sw := util.StartStopwatch("batch")
//	defer sw.Stop()
type Stopwatch struct {
	mu      sync.Mutex
	name    string
	start   time.Time
	elapsed time.Duration
	stopped bool
	logf    func(format string, args ...any)
}

func StartStopwatch(name string) *Stopwatch {
	return &Stopwatch{name: name, start: time.Now()}
}

// Logged makes Stop report the elapsed time through log.Printf.
func (s *Stopwatch) Logged() *Stopwatch {
	s.logf = log.Printf
	return s
}

func (s *Stopwatch) Stop() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return s.elapsed
	}
	s.stopped = true
	s.elapsed = time.Since(s.start)
	if s.logf != nil {
		s.logf("%s took %v", s.name, s.elapsed)
	}
	return s.elapsed
}

// Elapsed returns the running time, or the final time once stopped.
func (s *Stopwatch) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return s.elapsed
	}
	return time.Since(s.start)
}
