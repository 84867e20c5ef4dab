package driver

import (
	"time"
)

// playoutWindow bounds how far ahead of the drain point a packet may land.
// Anything further out is dropped.
const playoutWindow = 64

// decodeFrameSizes is the ladder of assumed packet durations, in samples per
// channel at 48 kHz: 20, 30, 40, 60, 120 ms. Packets above 120 ms are
// rejected as illegal.
var decodeFrameSizes = []int{960, 1440, 1920, 2880, 5760}

type playoutMode int

const (
	// playoutFill buffers quietly until enough packets arrive.
	playoutFill playoutMode = iota
	// playoutDrain emits one packet per tick.
	playoutDrain
)

type storedPacket struct {
	timestamp uint32
	opus      []byte
}

// playoutBuffer is the jitter buffer of one SSRC: a window of slots indexed
// by sequence offset from the next packet to play, plus the silence and
// decode-size state that rides along.
type playoutBuffer struct {
	slots    []*storedPacket
	occupied int
	mode     playoutMode

	haveSeq bool
	nextSeq uint16

	haveTimestamp bool
	lastTimestamp uint32

	silentFrames int
	speaking     bool

	decodeSizeIdx int

	fillTarget   int
	pruneTime    time.Time
	disconnected bool
}

func newPlayoutBuffer(fillTarget, spike int) *playoutBuffer {
	return &playoutBuffer{
		slots:      make([]*storedPacket, 0, fillTarget+spike),
		fillTarget: fillTarget,
	}
}

// insert files a packet into its slot. Late packets and packets beyond the
// window are dropped. Reaching the fill target flips the buffer to draining.
func (b *playoutBuffer) insert(seq uint16, timestamp uint32, opus []byte) {
	if !b.haveSeq {
		b.haveSeq = true
		b.nextSeq = seq
	}
	delta := int(int16(seq - b.nextSeq))
	if delta < 0 || delta >= playoutWindow {
		return
	}
	for len(b.slots) <= delta {
		b.slots = append(b.slots, nil)
	}
	if b.slots[delta] == nil {
		b.occupied++
	}
	stored := &storedPacket{timestamp: timestamp, opus: append([]byte(nil), opus...)}
	b.slots[delta] = stored

	if b.mode == playoutFill && b.occupied >= b.fillTarget {
		b.mode = playoutDrain
	}
}

// pop takes the next packet off the buffer for this tick. emit is false when
// the buffer is filling (or refilling after a gap); lost marks a missing
// packet whose slot advanced anyway.
func (b *playoutBuffer) pop() (pkt *storedPacket, lost, emit bool) {
	if b.mode == playoutFill {
		return nil, false, false
	}
	if len(b.slots) == 0 {
		// Underflow: buffer again before resuming.
		b.mode = playoutFill
		return nil, false, false
	}

	head := b.slots[0]
	if head != nil && b.haveTimestamp {
		if int32(head.timestamp-b.lastTimestamp) > 960 {
			// A timestamp gap with contiguous sequence numbers means the
			// sender went quiet; refill and re-baseline media time before
			// playing on.
			b.mode = playoutFill
			b.haveTimestamp = false
			return nil, false, false
		}
	}

	b.slots = b.slots[1:]
	b.nextSeq++
	if head == nil {
		b.lastTimestamp += 960
		return nil, true, true
	}
	b.occupied--
	b.lastTimestamp = head.timestamp
	b.haveTimestamp = true
	return head, false, true
}

// observeSilence tracks the run of silent frames and reports speaking
// transitions: +1 to start, -1 to stop, 0 for no change.
func (b *playoutBuffer) observeSilence(silent bool) int {
	if silent {
		b.silentFrames++
		if b.silentFrames == silenceRunLength && b.speaking {
			b.speaking = false
			return -1
		}
		return 0
	}
	started := !b.speaking
	b.silentFrames = 0
	b.speaking = true
	if started {
		return 1
	}
	return 0
}

const silenceRunLength = 5
