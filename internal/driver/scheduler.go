package driver

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-voice/internal/config"
	"github.com/Raikerian/go-discord-voice/internal/queue"
	"github.com/Raikerian/go-discord-voice/pkg/audio"
)

// liveBudget is the per-tick compute budget a worker may spend before it
// stops accepting tasks: 90% of the frame length.
var liveBudget = audio.FrameLength * 9 / 10

// defaultCullDelay is how long a worker may sit empty before the idle tier
// reaps it.
const defaultCullDelay = 60 * time.Second

// Scheduler multiplexes many idle calls onto one bookkeeping goroutine and
// promotes mixers with live audio onto dedicated workers, packed by count
// and compute cost.
type Scheduler struct {
	logger    *zap.Logger
	strategy  config.SchedulerConfig
	cullDelay time.Duration
	inbox     *queue.Queue[schedMessage]
	stats     *Stats
}

type schedMessage interface {
	sched()
}

// schedAddTask registers a freshly created mixer in the idle tier.
type schedAddTask struct {
	mixer *Mixer
}

// schedCmd is a forwarded command for a parked mixer.
type schedCmd struct {
	id  TaskID
	msg Message
}

// schedReturn hands a mixer back from a worker: parked again, or spilled for
// re-placement elsewhere.
type schedReturn struct {
	from    WorkerID
	parked  *ParkedMixer // nil when the task terminated on the worker
	spilled bool
}

func (schedAddTask) sched() {}
func (schedCmd) sched()     {}
func (schedReturn) sched()  {}

// NewScheduler starts the idle tier.
func NewScheduler(strategy config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	if strategy.MaxPerThread <= 0 {
		strategy.MaxPerThread = 16
	}
	s := &Scheduler{
		logger:    logger,
		strategy:  strategy,
		cullDelay: defaultCullDelay,
		inbox:     queue.New[schedMessage](),
		stats:     &Stats{},
	}
	go s.runIdle()
	return s
}

// Stats returns the scheduler's counters.
func (s *Scheduler) Stats() *Stats { return s.stats }

// Register adopts a mixer into the idle tier. Called once per driver.
func (s *Scheduler) Register(m *Mixer) {
	_ = s.inbox.Send(schedAddTask{mixer: m})
}

// Close shuts the scheduler down. Remaining mixers are destroyed.
func (s *Scheduler) Close() { s.inbox.Close() }

// workerRecord is the scheduler-side view of one worker.
type workerRecord struct {
	id         WorkerID
	inbox      *queue.Queue[*ParkedMixer]
	lastCost   *atomic.Int64
	liveCount  int
	emptySince time.Time
}

type idleState struct {
	s          *Scheduler
	tasks      map[TaskID]*ParkedMixer
	workers    []*workerRecord
	nextTask   TaskID
	nextWorker WorkerID
}

func (s *Scheduler) runIdle() {
	st := &idleState{
		s:     s,
		tasks: make(map[TaskID]*ParkedMixer),
	}
	ticker := time.NewTicker(audio.FrameLength)
	defer ticker.Stop()

	msgs := make(chan schedMessage, 1)
	go func() {
		for {
			msg, ok := s.inbox.Recv()
			if !ok {
				close(msgs)
				return
			}
			msgs <- msg
		}
	}()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				st.shutdown()
				return
			}
			st.handle(msg)
		case now := <-ticker.C:
			st.tick(now)
		}
	}
}

func (st *idleState) handle(msg schedMessage) {
	switch v := msg.(type) {
	case schedAddTask:
		st.nextTask++ // wraps
		parked := &ParkedMixer{
			id:       st.nextTask,
			mixer:    v.mixer,
			parkTime: time.Now(),
		}
		st.park(parked)
		st.s.logger.Debug("Mixer registered",
			zap.Uint64("task_id", uint64(parked.id)),
			zap.Int64("idle_tasks", st.s.stats.IdleTasks()))
	case schedCmd:
		st.applyCmd(v)
	case schedReturn:
		st.takeBack(v)
	}
}

func (st *idleState) park(parked *ParkedMixer) {
	st.tasks[parked.id] = parked
	st.s.stats.idle.Add(1)
	st.spawnForwarder(parked)
}

// spawnForwarder pipes the mixer's command channel into the idle inbox. The
// forwarder exits the moment it passes on a command that could make the
// mixer live, so ownership questions are settled here, with the mixer in
// hand.
func (st *idleState) spawnForwarder(parked *ParkedMixer) {
	id := parked.id
	mixerInbox := parked.mixer.inbox
	schedInbox := st.s.inbox
	go func() {
		for {
			msg, ok := mixerInbox.Recv()
			if !ok {
				return
			}
			if err := schedInbox.Send(schedCmd{id: id, msg: msg}); err != nil {
				return
			}
			if couldMakeLive(msg) {
				return
			}
		}
	}()
}

func (st *idleState) applyCmd(cmd schedCmd) {
	parked, ok := st.tasks[cmd.id]
	if !ok {
		return
	}
	if exit := parked.mixer.handleMessage(cmd.msg); exit {
		delete(st.tasks, cmd.id)
		st.s.stats.idle.Add(-1)
		parked.mixer.destroy()
		return
	}
	if parked.mixer.shouldLive() {
		delete(st.tasks, cmd.id)
		st.s.stats.idle.Add(-1)
		st.promote(parked)
		return
	}
	if couldMakeLive(cmd.msg) {
		// The forwarder stood down for nothing; restart it.
		st.spawnForwarder(parked)
	}
}

// promote moves a mixer onto a worker with room in both count and compute
// budget, creating one when nothing fits. A spilled task never lands back on
// the worker it came from.
func (st *idleState) promote(parked *ParkedMixer) {
	parked.mixer.setSpeaking(true)

	for {
		rec := st.pickWorker(parked)
		if rec == nil {
			rec = st.spawnWorker()
		}
		if err := rec.inbox.Send(parked); err != nil {
			// The worker thread died; drop the record and try again.
			st.removeWorker(rec.id)
			continue
		}
		rec.liveCount++
		rec.emptySince = time.Time{}
		parked.exclude = 0
		st.s.stats.live.Add(1)
		st.s.logger.Debug("Mixer promoted",
			zap.Uint64("task_id", uint64(parked.id)),
			zap.Uint64("worker_id", uint64(rec.id)))
		return
	}
}

func (st *idleState) pickWorker(parked *ParkedMixer) *workerRecord {
	for _, rec := range st.workers {
		if rec.id == parked.exclude {
			continue
		}
		if rec.liveCount >= st.s.strategy.MaxPerThread {
			continue
		}
		if time.Duration(rec.lastCost.Load())+parked.lastCost >= liveBudget {
			continue
		}
		return rec
	}
	return nil
}

func (st *idleState) spawnWorker() *workerRecord {
	st.nextWorker++
	if st.nextWorker == 0 {
		st.nextWorker = 1
	}
	rec := &workerRecord{
		id:       st.nextWorker,
		inbox:    queue.New[*ParkedMixer](),
		lastCost: &atomic.Int64{},
	}
	st.workers = append(st.workers, rec)
	st.s.stats.workers.Add(1)

	w := &worker{
		id:       rec.id,
		logger:   st.s.logger.With(zap.Uint64("worker_id", uint64(rec.id))),
		inbox:    rec.inbox,
		sched:    st.s.inbox,
		lastCost: rec.lastCost,
	}
	go w.run()
	st.s.logger.Debug("Worker spawned", zap.Uint64("worker_id", uint64(rec.id)))
	return rec
}

func (st *idleState) removeWorker(id WorkerID) {
	for i, rec := range st.workers {
		if rec.id == id {
			rec.inbox.Close()
			st.workers[i] = st.workers[len(st.workers)-1]
			st.workers = st.workers[:len(st.workers)-1]
			st.s.stats.workers.Add(-1)
			return
		}
	}
}

func (st *idleState) takeBack(ret schedReturn) {
	for _, rec := range st.workers {
		if rec.id == ret.from {
			rec.liveCount--
			if rec.liveCount == 0 {
				rec.emptySince = time.Now()
			}
			break
		}
	}
	st.s.stats.live.Add(-1)
	if ret.parked == nil {
		return
	}
	if ret.spilled && ret.parked.mixer.shouldLive() {
		st.promote(ret.parked)
		return
	}
	ret.parked.exclude = 0
	st.park(ret.parked)
}

// tick is the idle tier's 20 ms interval: parked mixers advance their
// command, keepalive, and event clocks, and workers that have sat empty past
// the cull delay are reaped.
func (st *idleState) tick(now time.Time) {
	for id, parked := range st.tasks {
		m := parked.mixer
		m.processTracks(now)
		m.tick(now)
		if m.shouldLive() {
			delete(st.tasks, id)
			st.s.stats.idle.Add(-1)
			st.promote(parked)
		}
	}

	for i := 0; i < len(st.workers); {
		rec := st.workers[i]
		if rec.liveCount == 0 && !rec.emptySince.IsZero() && now.Sub(rec.emptySince) > st.s.cullDelay {
			st.s.logger.Debug("Culling empty worker", zap.Uint64("worker_id", uint64(rec.id)))
			st.removeWorker(rec.id)
			continue
		}
		i++
	}
}

func (st *idleState) shutdown() {
	for _, parked := range st.tasks {
		parked.mixer.destroy()
	}
	for _, rec := range st.workers {
		rec.inbox.Close()
	}
}
