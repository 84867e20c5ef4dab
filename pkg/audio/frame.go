// Package audio provides the fixed-format frame arithmetic shared by the
// mixer and the input pipeline: 48 kHz, 20 ms frames, planar float32 mixing.
package audio

import "time"

const (
	// SampleRate is the sample rate of audio sent to Discord.
	SampleRate = 48000

	// FrameRate is the number of audio frames sent per second.
	FrameRate = 50

	// FrameLength is the wall-clock length of one audio frame.
	FrameLength = time.Second / FrameRate

	// MonoFrameSize is the number of samples per channel in one frame.
	MonoFrameSize = SampleRate / FrameRate

	// StereoFrameSize is the number of interleaved samples in one stereo frame.
	StereoFrameSize = 2 * MonoFrameSize

	// TimestampStep is the RTP timestamp advance per sent packet. It is
	// independent of channel count.
	TimestampStep = MonoFrameSize

	// VoicePacketMax is the maximum size of an outgoing voice packet, kept a
	// safe amount below the Ethernet MTU.
	VoicePacketMax = 1460

	// KeepaliveInterval is the gap between UDP keepalive frames. Discord fires
	// these every 5 seconds irrespective of outgoing traffic.
	KeepaliveInterval = 5 * time.Second

	// ResampleOutputFrameSize is the number of 48 kHz output samples produced
	// by one resampler pass. Two passes fill one frame.
	ResampleOutputFrameSize = MonoFrameSize / 2

	// PassthroughStrikeLimit is the number of non-20ms Opus frames tolerated
	// from a source before passthrough is blocked for its track.
	PassthroughStrikeLimit = 3

	// DefaultBitrate is the default Opus encoder bitrate in bits per second.
	DefaultBitrate = 128_000

	// SilenceFrameCount is the number of explicit silent frames sent after
	// audio stops, so the receive side can ramp the decoder down cleanly.
	SilenceFrameCount = 5
)

// SilentFrame is the canonical Opus silent frame, used to signal speech start
// and end and to prevent decoder glitching.
var SilentFrame = [3]byte{0xF8, 0xFF, 0xFE}

// IsSilentFrame reports whether an Opus payload is the silence sentinel.
func IsSilentFrame(payload []byte) bool {
	return len(payload) == 3 &&
		payload[0] == SilentFrame[0] &&
		payload[1] == SilentFrame[1] &&
		payload[2] == SilentFrame[2]
}

// MixMode selects the output channel layout of a mixer.
type MixMode int

const (
	// Stereo mixes into two planes and encodes two channels.
	Stereo MixMode = iota
	// Mono mixes into a single plane.
	Mono
)

// Channels returns the number of output channels for the mode.
func (m MixMode) Channels() int {
	if m == Mono {
		return 1
	}
	return 2
}

// SampleCount returns the number of interleaved samples in one frame.
func (m MixMode) SampleCount() int {
	return m.Channels() * MonoFrameSize
}

func (m MixMode) String() string {
	if m == Mono {
		return "mono"
	}
	return "stereo"
}
