package tracks

import (
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// TrackEvent identifies state transitions of a single track.
type TrackEvent int

const (
	// TrackPlay fires when a track starts or resumes playing.
	TrackPlay TrackEvent = iota
	// TrackPause fires when a track is paused.
	TrackPause
	// TrackEnd fires when a track finishes or is stopped.
	TrackEnd
	// TrackLoop fires each time a track rewinds for a loop.
	TrackLoop
	// TrackError fires when a track enters the Errored state.
	TrackError
	// TrackPlayable fires when a lazy input finishes parsing.
	TrackPlayable
)

func (e TrackEvent) String() string {
	switch e {
	case TrackPlay:
		return "play"
	case TrackPause:
		return "pause"
	case TrackEnd:
		return "end"
	case TrackLoop:
		return "loop"
	case TrackError:
		return "error"
	case TrackPlayable:
		return "playable"
	default:
		return "unknown"
	}
}

// CoreEvent identifies global driver happenings. Core events cannot be
// attached to individual tracks.
type CoreEvent int

const (
	// CoreSpeakingStateUpdate fires on a gateway speaking-state change.
	CoreSpeakingStateUpdate CoreEvent = iota
	// CoreVoiceTick fires once per 20 ms receive tick.
	CoreVoiceTick
	// CoreRtpPacket fires per received RTP packet.
	CoreRtpPacket
	// CoreRtcpPacket fires per received RTCP packet.
	CoreRtcpPacket
	// CoreClientDisconnect fires when another user leaves the channel.
	CoreClientDisconnect
	// CoreDriverConnect fires when a connection is established.
	CoreDriverConnect
	// CoreDriverReconnect fires when a connection is re-established.
	CoreDriverReconnect
	// CoreDriverDisconnect fires when the connection is lost.
	CoreDriverDisconnect
)

// Event selects what a handler is attached to.
type Event struct {
	kind eventKind

	Track TrackEvent
	Core  CoreEvent

	// Period re-arms the handler on an interval.
	Period time.Duration
	// Phase optionally delays the first periodic firing.
	Phase time.Duration
	// Delay fires the handler once after a duration.
	Delay time.Duration
}

type eventKind int

const (
	kindTrack eventKind = iota
	kindCore
	kindPeriodic
	kindDelayed
)

// OnTrack selects a track state-change event.
func OnTrack(e TrackEvent) Event { return Event{kind: kindTrack, Track: e} }

// OnCore selects a global driver event.
func OnCore(e CoreEvent) Event { return Event{kind: kindCore, Core: e} }

// Periodic fires repeatedly with the given period after an optional phase.
func Periodic(period, phase time.Duration) Event {
	return Event{kind: kindPeriodic, Period: period, Phase: phase}
}

// Delayed fires once after d.
func Delayed(d time.Duration) Event { return Event{kind: kindDelayed, Delay: d} }

// IsCoreOnly reports whether the event may only be registered globally.
func (e Event) IsCoreOnly() bool { return e.kind == kindCore }

// Context is what a handler observes when fired.
type Context struct {
	// Track snapshots cover the track the handler is attached to, or every
	// track for global handlers on track events.
	Tracks []State
	// Handles parallels Tracks for handlers that need to issue commands.
	Handles []*Handle

	// Core is set for core events.
	Core *CoreEvent

	// Voice carries the decoded receive tick for CoreVoiceTick.
	Voice *VoiceTick

	// Speaking carries the delta for CoreSpeakingStateUpdate.
	Speaking *SpeakingUpdate

	// Rtp carries the parsed packet for CoreRtpPacket.
	Rtp *rtp.Packet

	// Rtcp carries the parsed compound packet for CoreRtcpPacket.
	Rtcp []rtcp.Packet

	// Disconnect carries the SSRC for CoreClientDisconnect.
	Disconnect *uint32
}

// VoiceTick is one 20 ms of received audio across all speakers.
type VoiceTick struct {
	// Speaking maps SSRC to its decoded or raw packet data for this tick.
	Speaking map[uint32]*VoiceData
	// Silent lists SSRCs known but silent this tick.
	Silent []uint32
}

// VoiceData is one speaker's contribution to a tick.
type VoiceData struct {
	// PCM is the decoded audio, nil unless decoding is enabled.
	PCM []int16
	// Opus is the raw payload, nil when decryption is disabled.
	Opus []byte
	// Missed marks a lost packet synthesized from silence.
	Missed bool
}

// SpeakingUpdate reports a speaker starting or stopping.
type SpeakingUpdate struct {
	SSRC     uint32
	Speaking bool
}

// Handler reacts to events. Returning true detaches the handler, which is how
// periodic handlers cancel themselves.
type Handler interface {
	Act(ctx *Context) bool
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx *Context) bool

// Act implements Handler.
func (f HandlerFunc) Act(ctx *Context) bool { return f(ctx) }

// stateChange is sent by the mixer to the event thread when a track changes
// state inside a cycle.
type stateChange struct {
	track uuid.UUID
	event TrackEvent
	state State
}
