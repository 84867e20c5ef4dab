package driver

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-voice/internal/queue"
	"github.com/Raikerian/go-discord-voice/pkg/audio"
	"github.com/Raikerian/go-discord-voice/pkg/rtpframe"
)

const (
	// packetsPerBlock is how many packet slots one allocation holds.
	packetsPerBlock = 16

	// memoryCullTimer is how long a packet block may sit unused before the
	// worker frees it.
	memoryCullTimer = 10 * time.Second
)

// worker is a dedicated goroutine running the 20 ms cycle for every mixer
// packed onto it. It owns the mixers and their packet slots outright; the
// scheduler only ever talks to it through its inbox.
type worker struct {
	id       WorkerID
	logger   *zap.Logger
	inbox    *queue.Queue[*ParkedMixer]
	sched    *queue.Queue[schedMessage]
	lastCost *atomic.Int64
}

// liveTask pairs a mixer with its packet slot bookkeeping.
type liveTask struct {
	id      TaskID
	mixer   *Mixer
	sendLen int
}

type workerState struct {
	tasks      []*liveTask
	blocks     [][]byte
	blockEmpty []time.Time
}

// slot returns packet slot i, allocating its block on demand.
func (ws *workerState) slot(i int) []byte {
	block := i / packetsPerBlock
	for block >= len(ws.blocks) {
		ws.blocks = append(ws.blocks, make([]byte, packetsPerBlock*audio.VoicePacketMax))
		ws.blockEmpty = append(ws.blockEmpty, time.Time{})
	}
	off := (i % packetsPerBlock) * audio.VoicePacketMax
	return ws.blocks[block][off : off+audio.VoicePacketMax]
}

func (w *worker) run() {
	ws := &workerState{}
	deadline := time.Now().Add(audio.FrameLength)

	for {
		// Admit newly scheduled tasks. With nothing to mix, block until the
		// scheduler sends one or culls this worker.
		if !w.admit(ws, len(ws.tasks) == 0) {
			w.teardown(ws)
			return
		}
		if len(ws.tasks) == 0 {
			continue
		}

		start := time.Now()

		// Drain commands, then demote tasks that no longer need a slot:
		// poisoned, out of audio, or disconnected.
		for i := 0; i < len(ws.tasks); {
			task := ws.tasks[i]
			exit := false
			for {
				msg, ok := task.mixer.inbox.TryRecv()
				if !ok {
					break
				}
				if task.mixer.handleMessage(msg) {
					exit = true
					break
				}
			}
			task.mixer.processTracks(start)

			switch {
			case exit:
				task.mixer.destroy()
				w.remove(ws, i)
				_ = w.sched.Send(schedReturn{from: w.id})
			case !task.mixer.shouldLive():
				parked := w.extract(ws, i, start)
				w.remove(ws, i)
				_ = w.sched.Send(schedReturn{from: w.id, parked: parked})
			default:
				i++
			}
		}

		// Mix every surviving task into its packet slot.
		for i, task := range ws.tasks {
			total, err := task.mixer.prepare(ws.slot(i))
			if err != nil {
				task.mixer.connError(err)
				total = 0
			}
			task.sendLen = total
		}

		cost := time.Since(start)
		w.lastCost.Store(int64(cost))

		// Shed load when the tick overran its budget.
		if cost > liveBudget && len(ws.tasks) > 1 {
			i := len(ws.tasks) - 1
			parked := w.extract(ws, i, start)
			parked.exclude = w.id
			w.remove(ws, i)
			_ = w.sched.Send(schedReturn{from: w.id, parked: parked, spilled: true})
			w.logger.Debug("Spilled task over compute budget",
				zap.Duration("cost", cost),
				zap.Uint64("task_id", uint64(parked.id)))
		}

		w.cullBlocks(ws, start)

		// Pace: sleep to the common deadline. A missed deadline sends
		// immediately and advances by a single step only.
		now := time.Now()
		if now.Before(deadline) {
			time.Sleep(deadline.Sub(now))
		}
		deadline = deadline.Add(audio.FrameLength)
		if deadline.Before(time.Now()) {
			deadline = time.Now()
		}

		// Send and advance RTP counters in the slot headers.
		for i, task := range ws.tasks {
			if task.sendLen == 0 || task.mixer.conn == nil {
				continue
			}
			slot := ws.slot(i)
			pkt := make([]byte, task.sendLen)
			copy(pkt, slot[:task.sendLen])
			if err := task.mixer.conn.udp.send(pkt); err != nil {
				task.mixer.connError(err)
				continue
			}
			rtpframe.AdvanceInPlace(slot, audio.TimestampStep)
		}

		// Fire audio events and keepalives.
		tickNow := time.Now()
		for _, task := range ws.tasks {
			task.mixer.tick(tickNow)
		}
	}
}

// admit pulls scheduled tasks from the inbox. It returns false when the
// scheduler has closed this worker down.
func (w *worker) admit(ws *workerState, blocking bool) bool {
	if blocking {
		parked, ok := w.inbox.Recv()
		if ok {
			w.addTask(ws, parked)
		}
	}
	for {
		parked, ok := w.inbox.TryRecv()
		if !ok {
			break
		}
		w.addTask(ws, parked)
	}
	return !w.inbox.Closed()
}

// addTask installs a parked mixer: its packet slot gets a fresh header with
// the parked sequence number and the timestamp advanced by elapsed media
// time, so the peer sees continuous media time across the idle period.
func (w *worker) addTask(ws *workerState, parked *ParkedMixer) {
	idx := len(ws.tasks)
	slot := ws.slot(idx)

	ssrc := parked.ssrc
	if parked.mixer.conn != nil {
		ssrc = parked.mixer.conn.ssrc
	}
	var header rtpframe.Header
	if !parked.primed {
		header = rtpframe.NewHeader(ssrc)
		parked.primed = true
	} else {
		header = rtpframe.Header{Sequence: parked.sequence, Timestamp: parked.timestamp, SSRC: ssrc}
		header.AdvanceBy(time.Since(parked.parkTime), audio.SampleRate)
	}
	header.WriteTo(slot)

	ws.tasks = append(ws.tasks, &liveTask{id: parked.id, mixer: parked.mixer})
	block := idx / packetsPerBlock
	ws.blockEmpty[block] = time.Time{}
}

// extract parks a task, pulling its RTP counters back out of the slot header.
func (w *worker) extract(ws *workerState, i int, now time.Time) *ParkedMixer {
	task := ws.tasks[i]
	header := rtpframe.Parse(ws.slot(i))
	cost := time.Duration(w.lastCost.Load())
	if n := len(ws.tasks); n > 1 {
		cost /= time.Duration(n)
	}
	return &ParkedMixer{
		id:        task.id,
		mixer:     task.mixer,
		ssrc:      header.SSRC,
		sequence:  header.Sequence,
		timestamp: header.Timestamp,
		parkTime:  now,
		lastCost:  cost,
		primed:    true,
	}
}

// remove swap-removes task i. The freed slot is about to hold the formerly
// last task, whose RTP counters live in its old slot header, so the header
// region is copied across before the swap takes effect.
func (w *worker) remove(ws *workerState, i int) {
	last := len(ws.tasks) - 1
	if i != last {
		copy(ws.slot(i)[:rtpframe.HeaderSize], ws.slot(last)[:rtpframe.HeaderSize])
		ws.tasks[i] = ws.tasks[last]
	}
	ws.tasks[last] = nil
	ws.tasks = ws.tasks[:last]

	firstEmpty := (len(ws.tasks) + packetsPerBlock - 1) / packetsPerBlock
	for b := firstEmpty; b < len(ws.blocks); b++ {
		if ws.blockEmpty[b].IsZero() {
			ws.blockEmpty[b] = time.Now()
		}
	}
}

// cullBlocks frees packet blocks that have been whole-block unused for
// memoryCullTimer.
func (w *worker) cullBlocks(ws *workerState, now time.Time) {
	needed := (len(ws.tasks) + packetsPerBlock - 1) / packetsPerBlock
	for len(ws.blocks) > needed {
		last := len(ws.blocks) - 1
		if ws.blockEmpty[last].IsZero() || now.Sub(ws.blockEmpty[last]) < memoryCullTimer {
			break
		}
		ws.blocks[last] = nil
		ws.blocks = ws.blocks[:last]
		ws.blockEmpty = ws.blockEmpty[:last]
	}
}

func (w *worker) teardown(ws *workerState) {
	for _, task := range ws.tasks {
		task.mixer.destroy()
	}
	w.logger.Debug("Worker exiting")
}
