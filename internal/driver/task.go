package driver

import (
	"time"
)

// TaskID identifies a mixer across scheduler tiers. IDs wrap.
type TaskID uint64

// WorkerID identifies a live worker. IDs start at 1 and wrap; zero means
// "no worker" in exclusion checks.
type WorkerID uint64

// ParkedMixer is an idle mixer plus the RTP counters that must survive the
// park so the peer observes one continuous session.
type ParkedMixer struct {
	id    TaskID
	mixer *Mixer

	ssrc      uint32
	sequence  uint16
	timestamp uint32
	parkTime  time.Time
	lastCost  time.Duration

	// primed is set once RTP counters have been randomized; later
	// promotions resume them instead.
	primed bool

	// exclude is the worker a spilled task must not return to.
	exclude WorkerID
}
