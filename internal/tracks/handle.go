package tracks

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Raikerian/go-discord-voice/internal/queue"
)

var (
	// ErrFinished is returned when the track has been removed and can no
	// longer accept commands.
	ErrFinished = errors.New("track is no longer playing")
	// ErrGlobalEventOnTrack is returned when a core-only event is attached
	// to a track.
	ErrGlobalEventOnTrack = errors.New("core events cannot be attached to a track")
	// ErrSeekUnsupported is returned for seek or loop requests on inputs
	// that cannot rewind.
	ErrSeekUnsupported = errors.New("track input does not support seeking")
)

// Handle controls a track from outside the mixer. Handles are cheap to clone
// and safe for concurrent use.
type Handle struct {
	commands *queue.Queue[Command]
	uuid     uuid.UUID
	seekable bool
}

// UUID identifies the track.
func (h *Handle) UUID() uuid.UUID { return h.uuid }

// Seekable reports whether seek and loop requests can succeed, as known at
// creation time.
func (h *Handle) Seekable() bool { return h.seekable }

func (h *Handle) send(c Command) error {
	if err := h.commands.Send(c); err != nil {
		return ErrFinished
	}
	return nil
}

// Play resumes playback.
func (h *Handle) Play() error { return h.send(SetMode{Mode: Play}) }

// Pause pauses playback, keeping the track resident.
func (h *Handle) Pause() error { return h.send(SetMode{Mode: Pause}) }

// Stop stops the track; the mixer removes it on its next pass. Terminal.
func (h *Handle) Stop() error { return h.send(SetMode{Mode: Stop}) }

// SetVolume changes the track volume from the next cycle on.
func (h *Handle) SetVolume(volume float32) error {
	return h.send(SetVolume{Volume: volume})
}

// Seek requests a jump to the target position. The returned channel resolves
// with the attempt's outcome once the new position is reached.
func (h *Handle) Seek(target time.Duration) (<-chan error, error) {
	if !h.seekable {
		return nil, ErrSeekUnsupported
	}
	done := make(chan error, 1)
	if err := h.send(Seek{Target: target, Done: done}); err != nil {
		return nil, err
	}
	return done, nil
}

// AddEvent attaches a handler to this track. Core events are global-only and
// rejected here.
func (h *Handle) AddEvent(ev Event, handler Handler) error {
	if ev.IsCoreOnly() {
		return ErrGlobalEventOnTrack
	}
	return h.send(AddEvent{Event: ev, Handler: handler})
}

// Do runs fn with a view of the track on the mixer thread. fn must not block.
func (h *Handle) Do(fn func(view *View)) error {
	return h.send(Do{Fn: fn})
}

// GetInfo returns a channel resolving to a state snapshot.
func (h *Handle) GetInfo() (<-chan State, error) {
	reply := make(chan State, 1)
	if err := h.send(Request{Reply: reply}); err != nil {
		return nil, err
	}
	return reply, nil
}

// SetLoops changes the loop behaviour. Inputs that cannot seek reject
// looping.
func (h *Handle) SetLoops(loops LoopState) (<-chan error, error) {
	done := make(chan error, 1)
	if err := h.send(SetLoops{Loops: loops, Done: done}); err != nil {
		return nil, err
	}
	return done, nil
}

// MakePlayable promotes a lazy input to a live, parsed one ahead of playback.
func (h *Handle) MakePlayable() (<-chan error, error) {
	done := make(chan error, 1)
	if err := h.send(MakePlayable{Done: done}); err != nil {
		return nil, err
	}
	return done, nil
}
