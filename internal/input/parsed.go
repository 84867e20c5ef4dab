package input

import (
	"time"
)

// CodecID identifies a codec understood by the decoder registry.
type CodecID int

const (
	// CodecOpus carries pre-encoded Opus frames, eligible for passthrough.
	CodecOpus CodecID = iota
	// CodecPCMS16LE carries raw signed 16-bit little-endian PCM.
	CodecPCMS16LE
	// CodecPCMF32LE carries raw 32-bit little-endian float PCM.
	CodecPCMF32LE
)

func (c CodecID) String() string {
	switch c {
	case CodecOpus:
		return "opus"
	case CodecPCMS16LE:
		return "pcm_s16le"
	case CodecPCMF32LE:
		return "pcm_f32le"
	default:
		return "unknown"
	}
}

// TrackInfo describes one track inside a container.
type TrackInfo struct {
	Codec      CodecID
	SampleRate int
	Channels   int
	// Duration is the total track length, zero when the container does not
	// know it.
	Duration time.Duration
}

// Packet is one coded unit read from a container.
type Packet struct {
	// Track is the container track the packet belongs to. The mixer skips
	// packets whose track does not match the chosen one.
	Track int
	// Data is the coded payload, valid until the next NextPacket call.
	Data []byte
	// SampleCount is the number of frames per channel the packet decodes to,
	// when the container knows it.
	SampleCount int
}

// FormatReader demuxes a container into packets.
type FormatReader interface {
	// Tracks lists the container's tracks.
	Tracks() []TrackInfo
	// DefaultTrack is the index of the track to play.
	DefaultTrack() int
	// NextPacket returns the next packet, or io.EOF at end of stream. The
	// returned packet is reused by subsequent calls.
	NextPacket() (*Packet, error)
	// Seekable reports whether Seek can succeed.
	Seekable() bool
	// Seek moves the read position to the packet containing target and
	// returns the timestamp actually reached. ErrSeekUnsupported when the
	// underlying source cannot seek.
	Seek(target time.Duration) (time.Duration, error)
}

// Frame is decoded planar audio at the source's native rate.
type Frame struct {
	// Planes holds one sample slice per channel, equal lengths.
	Planes [][]float32
	// Rate is the sample rate of the frame.
	Rate int
}

// SampleCount returns the per-channel frame count.
func (f *Frame) SampleCount() int {
	if len(f.Planes) == 0 {
		return 0
	}
	return len(f.Planes[0])
}

// Decoder turns packets into PCM frames.
type Decoder interface {
	// Decode decodes one packet. The returned frame is reused by subsequent
	// calls.
	Decode(p *Packet) (*Frame, error)
	// Reset drops internal prediction state, used after seeks.
	Reset()
}

// Parsed is a fully probed input: a format reader, the chosen track, and a
// decoder for it.
type Parsed struct {
	Reader  FormatReader
	Decoder Decoder
	TrackID int
	Info    TrackInfo
	Meta    *Metadata
}

// Seekable reports whether the format reader can honour seeks.
func (p *Parsed) Seekable() bool {
	return p.Reader.Seekable()
}

// Seek repositions the reader and resets decoder state.
func (p *Parsed) Seek(target time.Duration) (time.Duration, error) {
	got, err := p.Reader.Seek(target)
	if err != nil {
		return 0, err
	}
	p.Decoder.Reset()
	return got, nil
}
