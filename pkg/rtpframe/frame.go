// Package rtpframe builds the outgoing RTP framing used by Discord voice:
// a fixed 12-byte header with version 2 and the dynamic Opus payload type,
// plus the sequence/timestamp bookkeeping rules that survive idle periods.
package rtpframe

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

const (
	// HeaderSize is the fixed RTP header length. Discord voice never uses
	// CSRC entries on the send path.
	HeaderSize = 12

	// Version is the one (and only) RTP version.
	Version = 2

	// PayloadType is the dynamic payload type carrying Opus audio per
	// Discord convention.
	PayloadType = 120
)

// versionFlags is the first header octet: V=2, no padding, no extension.
const versionFlags = Version << 6 // 0x80

// Header tracks the mutable RTP counters of one session.
type Header struct {
	Sequence  uint16
	Timestamp uint32
	SSRC      uint32
}

// NewHeader creates a header for an SSRC with randomized sequence and
// timestamp starting points.
func NewHeader(ssrc uint32) Header {
	var seed [6]byte
	_, _ = rand.Read(seed[:])
	return Header{
		Sequence:  binary.BigEndian.Uint16(seed[0:2]),
		Timestamp: binary.BigEndian.Uint32(seed[2:6]),
		SSRC:      ssrc,
	}
}

// WriteTo serializes the header into the first HeaderSize bytes of b.
func (h Header) WriteTo(b []byte) {
	b[0] = versionFlags
	b[1] = PayloadType
	binary.BigEndian.PutUint16(b[2:4], h.Sequence)
	binary.BigEndian.PutUint32(b[4:8], h.Timestamp)
	binary.BigEndian.PutUint32(b[8:12], h.SSRC)
}

// Advance steps the counters after one packet send: sequence by one,
// timestamp by rate/framerate samples. Both wrap.
func (h *Header) Advance(timestampStep uint32) {
	h.Sequence++
	h.Timestamp += timestampStep
}

// AdvanceBy moves the timestamp forward by elapsed media time at the given
// sample rate. Used on idle-to-live promotion so the peer observes continuous
// media time across the park.
func (h *Header) AdvanceBy(elapsed time.Duration, sampleRate int) {
	h.Timestamp += uint32(elapsed.Seconds() * float64(sampleRate))
}

// AdvanceInPlace steps the counters of a serialized header directly, for
// packet slots whose header bytes are authoritative.
func AdvanceInPlace(b []byte, timestampStep uint32) {
	binary.BigEndian.PutUint16(b[2:4], binary.BigEndian.Uint16(b[2:4])+1)
	binary.BigEndian.PutUint32(b[4:8], binary.BigEndian.Uint32(b[4:8])+timestampStep)
}

// Parse reads the counters back out of a serialized header. Used when a
// packet slot is recycled and its header bytes are authoritative.
func Parse(b []byte) Header {
	return Header{
		Sequence:  binary.BigEndian.Uint16(b[2:4]),
		Timestamp: binary.BigEndian.Uint32(b[4:8]),
		SSRC:      binary.BigEndian.Uint32(b[8:12]),
	}
}
