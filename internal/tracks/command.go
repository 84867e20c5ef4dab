package tracks

import (
	"time"
)

// Command is a track control message travelling from a handle to the mixer.
// Commands from one handle are observed in FIFO order.
type Command interface {
	command()
}

// SetMode switches between Play and Pause, or requests Stop.
type SetMode struct {
	Mode PlayMode
}

// SetVolume changes the track volume starting with the next cycle. The value
// is not clamped.
type SetVolume struct {
	Volume float32
}

// Seek schedules a seek through the input's format reader. Done resolves
// with the outcome once the new position is reached.
type Seek struct {
	Target time.Duration
	Done   chan error
}

// AddEvent attaches a handler to this track. Core-only events are rejected
// by the handle before a command is ever sent.
type AddEvent struct {
	Event   Event
	Handler Handler
}

// Do runs a synchronous closure against a view of the track on the mixer
// thread. The closure must not block.
type Do struct {
	Fn func(view *View)
}

// Request asks for a state snapshot.
type Request struct {
	Reply chan State
}

// SetLoops changes the loop state. Inputs that cannot seek reject looping
// through Done.
type SetLoops struct {
	Loops LoopState
	Done  chan error
}

// MakePlayable promotes a lazy input to a live, parsed one. Done resolves on
// completion.
type MakePlayable struct {
	Done chan error
}

func (SetMode) command()      {}
func (SetVolume) command()    {}
func (Seek) command()         {}
func (AddEvent) command()     {}
func (Do) command()           {}
func (Request) command()      {}
func (SetLoops) command()     {}
func (MakePlayable) command() {}

// View is the window a Do closure gets onto a track. Volume and Loops may be
// written; the rest is a snapshot.
type View struct {
	State    State
	Volume   *float32
	Loops    *LoopState
	Seekable bool
}
