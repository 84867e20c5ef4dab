package driver

import (
	"github.com/google/uuid"

	"github.com/Raikerian/go-discord-voice/internal/config"
	"github.com/Raikerian/go-discord-voice/internal/tracks"
	"github.com/Raikerian/go-discord-voice/pkg/audio"
)

// Message is a control message on a mixer's command channel. The driver owns
// the sending side; whichever scheduler tier currently owns the mixer drains
// the receiving side.
type Message interface {
	mixerMessage()
}

// MsgAddTrack hands a new track to the mixer.
type MsgAddTrack struct {
	Track  *tracks.Track
	Handle *tracks.Handle
}

// MsgSetConn installs an established connection. Installation precedes any
// packet transmission on that connection.
type MsgSetConn struct {
	Conn *MixerConnection
}

// MsgDropConn drops the active connection; the mixer keeps running muted.
type MsgDropConn struct{}

// MsgSetMixMode switches mono/stereo output.
type MsgSetMixMode struct {
	Mode audio.MixMode
}

// MsgSetConfig replaces the mixer's configuration snapshot. The crypto mode
// of an active session is immutable and ignored here.
type MsgSetConfig struct {
	Config *config.Config
}

// MsgSetBitrate adjusts the Opus encoder bitrate.
type MsgSetBitrate struct {
	Bitrate int
}

// MsgMute keeps the mixing clock running but sends only silence.
type MsgMute struct {
	Mute bool
}

// MsgAddGlobalEvent attaches a handler in the driver's global event scope.
type MsgAddGlobalEvent struct {
	Event   tracks.Event
	Handler tracks.Handler
}

// MsgTrackReady reports the outcome of an off-thread input promotion.
type MsgTrackReady struct {
	Track uuid.UUID
	Err   error
}

// MsgPoison terminates the mixer; sent when the driver is dropped.
type MsgPoison struct{}

func (MsgAddTrack) mixerMessage()       {}
func (MsgSetConn) mixerMessage()        {}
func (MsgDropConn) mixerMessage()       {}
func (MsgSetMixMode) mixerMessage()     {}
func (MsgSetConfig) mixerMessage()      {}
func (MsgSetBitrate) mixerMessage()     {}
func (MsgMute) mixerMessage()           {}
func (MsgAddGlobalEvent) mixerMessage() {}
func (MsgTrackReady) mixerMessage()     {}
func (MsgPoison) mixerMessage()         {}

// couldMakeLive reports whether a message might flip an idle mixer into its
// live state. The idle tier's forwarder exits as soon as it sees one so the
// promotion decision happens with the mixer in hand.
func couldMakeLive(m Message) bool {
	switch m.(type) {
	case MsgAddTrack, MsgSetConn, MsgTrackReady, MsgPoison:
		return true
	default:
		return false
	}
}
