// Package tracks holds the per-track state machine, the user-facing track
// handle, and the event system the driver fires ticks into.
package tracks

import (
	"time"

	"github.com/google/uuid"
)

// PlayMode is the play state of a track. Stop, End, and Errored are
// absorbing: once a track is done it is removed and cannot be revived.
type PlayMode int

const (
	// Play means the track mixes audio every cycle.
	Play PlayMode = iota
	// Pause keeps the track resident without mixing.
	Pause
	// Stop marks the track for removal at the user's request.
	Stop
	// End marks natural end of stream.
	End
	// Errored marks removal due to a decode or source error.
	Errored
)

// IsOnGoing reports whether the track still occupies a mixer slot.
func (m PlayMode) IsOnGoing() bool { return m == Play || m == Pause }

// IsDone reports whether the state is terminal.
func (m PlayMode) IsDone() bool { return !m.IsOnGoing() }

func (m PlayMode) String() string {
	switch m {
	case Play:
		return "play"
	case Pause:
		return "pause"
	case Stop:
		return "stop"
	case End:
		return "end"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// LoopState counts the remaining rewinds of a track.
type LoopState struct {
	// Infinite loops forever; Remaining is ignored.
	Infinite bool
	// Remaining is the number of rewinds left.
	Remaining int
}

// LoopFinite loops n more times before ending.
func LoopFinite(n int) LoopState { return LoopState{Remaining: n} }

// LoopInfinite loops until stopped.
func LoopInfinite() LoopState { return LoopState{Infinite: true} }

// ShouldLoop reports whether end-of-stream rewinds, and returns the
// decremented state.
func (l LoopState) ShouldLoop() (LoopState, bool) {
	if l.Infinite {
		return l, true
	}
	if l.Remaining > 0 {
		l.Remaining--
		return l, true
	}
	return l, false
}

// ReadyState describes how far an input has been promoted.
type ReadyState int

const (
	// Uninitialised inputs are still lazy.
	Uninitialised ReadyState = iota
	// Preparing inputs have a promotion in flight.
	Preparing
	// Playable inputs are parsed and decodable.
	Playable
)

func (r ReadyState) String() string {
	switch r {
	case Uninitialised:
		return "uninitialised"
	case Preparing:
		return "preparing"
	case Playable:
		return "playable"
	default:
		return "unknown"
	}
}

// State is a point-in-time snapshot of a track, as returned to handles and
// included in event contexts.
type State struct {
	UUID     uuid.UUID
	Mode     PlayMode
	Volume   float32
	Loops    LoopState
	Ready    ReadyState
	Position time.Duration
	PlayTime time.Duration
}
