package tracks

import (
	"time"

	"github.com/google/uuid"

	"github.com/Raikerian/go-discord-voice/internal/input"
	"github.com/Raikerian/go-discord-voice/internal/queue"
)

// Track is the mixer-owned state of one audio source. Handles never touch a
// Track directly; they go through the command queue.
type Track struct {
	Input  *input.Input
	Mode   PlayMode
	Volume float32
	Loops  LoopState
	Ready  ReadyState
	UUID   uuid.UUID

	// Position is the current media position; it may jump on seek or loop.
	// PlayTime is the accumulated time spent playing and only ever grows.
	Position time.Duration
	PlayTime time.Duration

	// Err is the cause of the Errored state.
	Err error

	Commands *queue.Queue[Command]
}

// New creates a track over an input, playing at full volume, along with the
// handle controlling it.
func New(in *input.Input) (*Track, *Handle) {
	ready := Uninitialised
	if in.IsPlayable() {
		ready = Playable
	}
	t := &Track{
		Input:    in,
		Mode:     Play,
		Volume:   1.0,
		Ready:    ready,
		UUID:     uuid.New(),
		Commands: queue.New[Command](),
	}
	h := &Handle{
		commands: t.Commands,
		uuid:     t.UUID,
		seekable: in.Seekable(),
	}
	return t, h
}

// State captures a snapshot for handles and event contexts.
func (t *Track) State() State {
	return State{
		UUID:     t.UUID,
		Mode:     t.Mode,
		Volume:   t.Volume,
		Loops:    t.Loops,
		Ready:    t.Ready,
		Position: t.Position,
		PlayTime: t.PlayTime,
	}
}

// View builds the window handed to Do closures.
func (t *Track) View() *View {
	return &View{
		State:    t.State(),
		Volume:   &t.Volume,
		Loops:    &t.Loops,
		Seekable: t.Input.Seekable(),
	}
}
