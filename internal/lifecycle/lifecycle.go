// Package lifecycle tracks process-level state the health endpoint reports.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// State records when the process started, whether it is draining and how
// many requests are being served.
type State struct {
	started      time.Time
	shuttingDown atomic.Bool
	inFlight     atomic.Int64
}

// New returns a State started at now.
func New(now time.Time) *State {
	return &State{started: now}
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT is received;
// health returns 503 shutting-down while true.
func (s *State) SetShuttingDown(v bool) {
	s.shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining and should not
// receive new traffic.
func (s *State) IsShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Uptime returns the time elapsed since start, measured at now.
func (s *State) Uptime(now time.Time) time.Duration {
	return now.Sub(s.started)
}

// RequestStarted and RequestFinished bracket every served request.
func (s *State) RequestStarted() {
	s.inFlight.Add(1)
}

func (s *State) RequestFinished() {
	s.inFlight.Add(-1)
}

// InFlight returns the number of requests currently being served.
func (s *State) InFlight() int64 {
	return s.inFlight.Load()
}
