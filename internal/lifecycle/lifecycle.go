package lifecycle

import (
	"sync/atomic"
	"time"
)

// State holds process lifecycle flags shared between main and the health handler.
type State struct {
	startedAt    time.Time
	shuttingDown atomic.Bool
}

// NewState returns a State that started at startedAt.
func NewState(startedAt time.Time) *State {
	return &State{startedAt: startedAt}
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT is received.
// The health handler returns 503 with status shutting-down while true.
func (s *State) SetShuttingDown(v bool) {
	s.shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func (s *State) IsShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Uptime returns the time elapsed since startedAt, measured at now.
func (s *State) Uptime(now time.Time) time.Duration {
	return now.Sub(s.startedAt)
}
