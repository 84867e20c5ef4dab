package tracks

import (
	"container/heap"
	"time"
)

// EventStore holds the handlers attached to one scope (a track, or the
// global scope) and the firing times of its timed handlers.
type EventStore struct {
	track map[TrackEvent][]Handler
	core  map[CoreEvent][]Handler
	timed timedHeap
}

// NewEventStore creates an empty store.
func NewEventStore() *EventStore {
	return &EventStore{
		track: make(map[TrackEvent][]Handler),
		core:  make(map[CoreEvent][]Handler),
	}
}

type timedHandler struct {
	due     time.Time
	period  time.Duration // zero for delayed
	handler Handler
}

type timedHeap []*timedHandler

func (h timedHeap) Len() int            { return len(h) }
func (h timedHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h timedHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timedHeap) Push(x any)         { *h = append(*h, x.(*timedHandler)) }
func (h *timedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Add attaches a handler to the store.
func (s *EventStore) Add(now time.Time, ev Event, h Handler) {
	switch ev.kind {
	case kindTrack:
		s.track[ev.Track] = append(s.track[ev.Track], h)
	case kindCore:
		s.core[ev.Core] = append(s.core[ev.Core], h)
	case kindPeriodic:
		heap.Push(&s.timed, &timedHandler{
			due:     now.Add(ev.Period + ev.Phase),
			period:  ev.Period,
			handler: h,
		})
	case kindDelayed:
		heap.Push(&s.timed, &timedHandler{due: now.Add(ev.Delay), handler: h})
	}
}

// FireTrack runs the handlers attached to a track event.
func (s *EventStore) FireTrack(ev TrackEvent, ctx *Context) {
	s.track[ev] = fire(s.track[ev], ctx)
}

// FireCore runs the handlers attached to a core event.
func (s *EventStore) FireCore(ev CoreEvent, ctx *Context) {
	s.core[ev] = fire(s.core[ev], ctx)
}

// Tick fires every due timed handler; periodic handlers that do not cancel
// re-arm themselves.
func (s *EventStore) Tick(now time.Time, ctx *Context) {
	for s.timed.Len() > 0 && !s.timed[0].due.After(now) {
		th := heap.Pop(&s.timed).(*timedHandler)
		cancel := th.handler.Act(ctx)
		if th.period > 0 && !cancel {
			th.due = th.due.Add(th.period)
			heap.Push(&s.timed, th)
		}
	}
}

func fire(handlers []Handler, ctx *Context) []Handler {
	kept := handlers[:0]
	for _, h := range handlers {
		if !h.Act(ctx) {
			kept = append(kept, h)
		}
	}
	// Drop references past the new length.
	for i := len(kept); i < len(handlers); i++ {
		handlers[i] = nil
	}
	return kept
}
