package driver

import "sync/atomic"

// Stats are the scheduler's live counters. They are updated with atomics and
// may lag the true state by one tick; treat them as monitoring data, not
// synchronization.
type Stats struct {
	idle    atomic.Int64
	live    atomic.Int64
	workers atomic.Int64
}

// IdleTasks returns the number of parked mixers.
func (s *Stats) IdleTasks() int64 { return s.idle.Load() }

// LiveTasks returns the number of mixers on workers.
func (s *Stats) LiveTasks() int64 { return s.live.Load() }

// Workers returns the number of live worker threads.
func (s *Stats) Workers() int64 { return s.workers.Load() }
