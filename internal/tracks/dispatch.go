package tracks

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-voice/internal/queue"
)

// Dispatcher is the event thread: it owns one EventStore per live track plus
// a global store, and advances timed handlers on the mixer's tick.
type Dispatcher struct {
	logger *zap.Logger
	inbox  *queue.Queue[dispatchMessage]
}

type dispatchMessage interface {
	dispatch(d *dispatcherState)
}

type dispatcherState struct {
	logger *zap.Logger
	global *EventStore
	tracks map[uuid.UUID]*trackEntry
}

type trackEntry struct {
	store  *EventStore
	state  State
	handle *Handle
}

// NewDispatcher starts the event thread.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		logger: logger,
		inbox:  queue.New[dispatchMessage](),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	state := &dispatcherState{
		logger: d.logger,
		global: NewEventStore(),
		tracks: make(map[uuid.UUID]*trackEntry),
	}
	for {
		msg, ok := d.inbox.Recv()
		if !ok {
			d.logger.Debug("Event dispatcher shutting down")
			return
		}
		msg.dispatch(state)
	}
}

// Close stops the event thread. Messages sent afterwards are dropped.
func (d *Dispatcher) Close() { d.inbox.Close() }

// send returns an error only when the dispatcher has shut down; the mixer
// treats that as an events failure and asks the core for a rebuild.
func (d *Dispatcher) send(m dispatchMessage) error { return d.inbox.Send(m) }

// AddGlobal attaches a handler in the global scope.
func (d *Dispatcher) AddGlobal(ev Event, h Handler) error {
	return d.send(msgAddGlobal{ev: ev, handler: h})
}

// AddTrack attaches a handler to a track's scope.
func (d *Dispatcher) AddTrack(track uuid.UUID, ev Event, h Handler) error {
	return d.send(msgAddTrack{track: track, ev: ev, handler: h})
}

// NewTrack registers a track when the mixer adopts it.
func (d *Dispatcher) NewTrack(state State, handle *Handle) error {
	return d.send(msgNewTrack{state: state, handle: handle})
}

// RemoveTrack drops a track's store once the mixer removes it.
func (d *Dispatcher) RemoveTrack(track uuid.UUID) error {
	return d.send(msgRemoveTrack{track: track})
}

// TrackStateChange fires the track event matching a state transition, in the
// same cycle the mixer applied it.
func (d *Dispatcher) TrackStateChange(track uuid.UUID, ev TrackEvent, state State) error {
	return d.send(msgTrackState{change: stateChange{track: track, event: ev, state: state}})
}

// Tick advances timed handlers; the mixer sends one per cycle with fresh
// track snapshots.
func (d *Dispatcher) Tick(states []State) error {
	return d.send(msgTick{now: time.Now(), states: states})
}

// FireCore fires a global core event.
func (d *Dispatcher) FireCore(ev CoreEvent, ctx *Context) error {
	c := *ctx
	c.Core = &ev
	return d.send(msgCore{ev: ev, ctx: &c})
}

type msgAddGlobal struct {
	ev      Event
	handler Handler
}

func (m msgAddGlobal) dispatch(d *dispatcherState) {
	d.global.Add(time.Now(), m.ev, m.handler)
}

type msgAddTrack struct {
	track   uuid.UUID
	ev      Event
	handler Handler
}

func (m msgAddTrack) dispatch(d *dispatcherState) {
	entry, ok := d.tracks[m.track]
	if !ok {
		d.logger.Debug("Dropping event for unknown track",
			zap.String("track_id", m.track.String()))
		return
	}
	entry.store.Add(time.Now(), m.ev, m.handler)
}

type msgNewTrack struct {
	state  State
	handle *Handle
}

func (m msgNewTrack) dispatch(d *dispatcherState) {
	d.tracks[m.state.UUID] = &trackEntry{
		store:  NewEventStore(),
		state:  m.state,
		handle: m.handle,
	}
}

type msgRemoveTrack struct {
	track uuid.UUID
}

func (m msgRemoveTrack) dispatch(d *dispatcherState) {
	delete(d.tracks, m.track)
}

type msgTrackState struct {
	change stateChange
}

func (m msgTrackState) dispatch(d *dispatcherState) {
	entry, ok := d.tracks[m.change.track]
	if !ok {
		return
	}
	entry.state = m.change.state

	local := &Context{
		Tracks:  []State{m.change.state},
		Handles: []*Handle{entry.handle},
	}
	entry.store.FireTrack(m.change.event, local)
	d.global.FireTrack(m.change.event, d.allTracks())
}

type msgTick struct {
	now    time.Time
	states []State
}

func (m msgTick) dispatch(d *dispatcherState) {
	for _, st := range m.states {
		if entry, ok := d.tracks[st.UUID]; ok {
			entry.state = st
		}
	}
	ctx := d.allTracks()
	d.global.Tick(m.now, ctx)
	for _, entry := range d.tracks {
		entry.store.Tick(m.now, &Context{
			Tracks:  []State{entry.state},
			Handles: []*Handle{entry.handle},
		})
	}
}

type msgCore struct {
	ev  CoreEvent
	ctx *Context
}

func (m msgCore) dispatch(d *dispatcherState) {
	d.global.FireCore(m.ev, m.ctx)
}

func (d *dispatcherState) allTracks() *Context {
	ctx := &Context{
		Tracks:  make([]State, 0, len(d.tracks)),
		Handles: make([]*Handle, 0, len(d.tracks)),
	}
	for _, entry := range d.tracks {
		ctx.Tracks = append(ctx.Tracks, entry.state)
		ctx.Handles = append(ctx.Handles, entry.handle)
	}
	return ctx
}
