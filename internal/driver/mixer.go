package driver

import (
	"context"
	"encoding/binary"
	"time"

	"go.uber.org/zap"
	"layeh.com/gopus"

	"github.com/Raikerian/go-discord-voice/internal/config"
	"github.com/Raikerian/go-discord-voice/internal/input"
	"github.com/Raikerian/go-discord-voice/internal/queue"
	"github.com/Raikerian/go-discord-voice/internal/tracks"
	"github.com/Raikerian/go-discord-voice/pkg/audio"
	"github.com/Raikerian/go-discord-voice/pkg/crypto"
	"github.com/Raikerian/go-discord-voice/pkg/rtpframe"
)

// eventSink is the slice of the dispatcher the receive pipeline needs.
type eventSink interface {
	FireCore(ev tracks.CoreEvent, ctx *tracks.Context) error
}

// Mixer is the compute-bound heart of one call: it owns the track list, the
// Opus encoder, the mix buffers, and (when connected) the session's crypto
// and transport handles. Exactly one scheduler tier owns a Mixer at any time.
type Mixer struct {
	logger   *zap.Logger
	config   *config.Config
	inbox    *queue.Queue[Message]
	events   *tracks.Dispatcher
	disposer *Disposer
	codecs   *input.CodecRegistry
	formats  *input.FormatRegistry

	conn          *MixerConnection
	muted         bool
	speaking      bool
	preventEvents bool
	connFailure   bool

	mixMode     audio.MixMode
	encoder     *gopus.Encoder
	bitrate     int
	planar      *audio.Planar
	interleaved []int16
	soft        audio.SoftClip

	tracks        []*trackContext
	silenceFrames uint8
	nextKeepalive time.Time
	kaPacket      [8]byte

	stateScratch []tracks.State
}

func newMixer(cfg *config.Config, events *tracks.Dispatcher, disposer *Disposer, codecs *input.CodecRegistry, formats *input.FormatRegistry, logger *zap.Logger) (*Mixer, error) {
	m := &Mixer{
		logger:   logger,
		config:   cfg,
		inbox:    queue.New[Message](),
		events:   events,
		disposer: disposer,
		codecs:   codecs,
		formats:  formats,
		mixMode:  cfg.MixMode,
		bitrate:  cfg.Bitrate,
		tracks:   make([]*trackContext, 0, cfg.PreallocatedTracks),
	}
	if err := m.rebuildEncoder(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mixer) rebuildEncoder() error {
	enc, err := gopus.NewEncoder(audio.SampleRate, m.mixMode.Channels(), gopus.Audio)
	if err != nil {
		return err
	}
	enc.SetBitrate(m.bitrate)
	m.encoder = enc
	m.planar = audio.NewPlanar(m.mixMode.Channels())
	m.interleaved = make([]int16, m.mixMode.SampleCount())
	return nil
}

// shouldLive reports whether the mixer needs a worker slot: an installed
// connection plus audio (tracks or pending silence frames) to send.
func (m *Mixer) shouldLive() bool {
	return m.conn != nil && (len(m.tracks) > 0 || m.silenceFrames > 0)
}

// handleMessage applies one control message. The returned exit flag is set
// for poison or a closed channel; the mixer must then be torn down.
func (m *Mixer) handleMessage(msg Message) (exit bool) {
	switch v := msg.(type) {
	case MsgAddTrack:
		m.addTrack(v.Track, v.Handle)
	case MsgSetConn:
		m.installConn(v.Conn)
	case MsgDropConn:
		m.dropConn()
	case MsgSetMixMode:
		if v.Mode != m.mixMode {
			m.mixMode = v.Mode
			if err := m.rebuildEncoder(); err != nil {
				m.logger.Error("Rebuilding encoder failed", zap.Error(err))
			}
		}
	case MsgSetConfig:
		// Crypto mode is immutable during an active session.
		next := v.Config.Clone()
		next.CryptoMode = m.config.CryptoMode
		m.config = next
		if next.MixMode != m.mixMode {
			m.mixMode = next.MixMode
			if err := m.rebuildEncoder(); err != nil {
				m.logger.Error("Rebuilding encoder failed", zap.Error(err))
			}
		}
	case MsgSetBitrate:
		m.bitrate = v.Bitrate
		m.encoder.SetBitrate(v.Bitrate)
	case MsgMute:
		m.muted = v.Mute
	case MsgAddGlobalEvent:
		if err := m.events.AddGlobal(v.Event, v.Handler); err != nil {
			m.preventEvents = true
		}
	case MsgTrackReady:
		m.finishReady(v)
	case MsgPoison:
		return true
	}
	return false
}

func (m *Mixer) addTrack(t *tracks.Track, h *tracks.Handle) {
	tc := &trackContext{track: t, handle: h}
	m.tracks = append(m.tracks, tc)
	if !m.preventEvents {
		if err := m.events.NewTrack(t.State(), h); err != nil {
			m.preventEvents = true
		}
	}
	m.fireTrackEvent(tc, tracks.TrackPlay)
	m.logger.Debug("Track added",
		zap.String("track_id", t.UUID.String()),
		zap.Int("track_count", len(m.tracks)))
}

func (m *Mixer) installConn(conn *MixerConnection) {
	if m.conn != nil {
		m.conn.close(m.disposer)
	}
	m.conn = conn
	m.connFailure = false
	m.nextKeepalive = time.Now()
	binary.LittleEndian.PutUint32(m.kaPacket[:4], conn.ssrc)
	m.fireCore(tracks.CoreDriverConnect, &tracks.Context{})
}

func (m *Mixer) dropConn() {
	if m.conn == nil {
		return
	}
	m.conn.close(m.disposer)
	m.conn = nil
	m.speaking = false
	m.fireCore(tracks.CoreDriverDisconnect, &tracks.Context{})
}

// connError records a transport fault. The mixer keeps mixing as muted until
// the core installs a replacement connection.
func (m *Mixer) connError(err error) {
	m.logger.Warn("Voice connection failed", zap.Error(err))
	m.dropConn()
	m.connFailure = true
}

// destroy releases everything the mixer owns via the disposer.
func (m *Mixer) destroy() {
	for _, tc := range m.tracks {
		tc.track.Commands.Close()
		m.disposer.Dispose(trackResources{tc.track.Input})
	}
	m.tracks = nil
	if m.conn != nil {
		m.conn.close(m.disposer)
		m.conn = nil
	}
	m.inbox.Close()
}

// trackResources wraps an input so large decoder state drops off-thread.
type trackResources struct {
	input *input.Input
}

// processTracks drains every track's command channel, retries deferred input
// promotions, and removes finished tracks. Runs once per cycle, and on each
// idle tick for parked mixers.
func (m *Mixer) processTracks(now time.Time) {
	for _, tc := range m.tracks {
		for {
			cmd, ok := tc.track.Commands.TryRecv()
			if !ok {
				break
			}
			m.applyTrackCommand(tc, cmd)
		}
		if tc.track.Mode == tracks.Play && tc.track.Ready == tracks.Uninitialised &&
			!tc.readying && (tc.retryAt.IsZero() || !now.Before(tc.retryAt)) {
			m.startReady(tc, nil)
		}
	}
	m.reapTracks()
}

func (m *Mixer) reapTracks() {
	for i := 0; i < len(m.tracks); {
		tc := m.tracks[i]
		if !tc.track.Mode.IsDone() {
			i++
			continue
		}
		switch tc.track.Mode {
		case tracks.Errored:
			m.fireTrackEvent(tc, tracks.TrackError)
		default:
			m.fireTrackEvent(tc, tracks.TrackEnd)
		}
		if !m.preventEvents {
			_ = m.events.RemoveTrack(tc.track.UUID)
		}
		tc.track.Commands.Close()
		m.disposer.Dispose(trackResources{tc.track.Input})

		last := len(m.tracks) - 1
		m.tracks[i] = m.tracks[last]
		m.tracks[last] = nil
		m.tracks = m.tracks[:last]
	}
}

func (m *Mixer) applyTrackCommand(tc *trackContext, cmd tracks.Command) {
	t := tc.track
	switch v := cmd.(type) {
	case tracks.SetMode:
		if t.Mode.IsDone() {
			return
		}
		prev := t.Mode
		t.Mode = v.Mode
		switch {
		case v.Mode == tracks.Play && prev != tracks.Play:
			m.fireTrackEvent(tc, tracks.TrackPlay)
		case v.Mode == tracks.Pause && prev != tracks.Pause:
			m.fireTrackEvent(tc, tracks.TrackPause)
		}
	case tracks.SetVolume:
		t.Volume = v.Volume
	case tracks.Seek:
		err := m.seekTrack(tc, v.Target)
		if v.Done != nil {
			v.Done <- err
		}
	case tracks.AddEvent:
		if err := m.events.AddTrack(t.UUID, v.Event, v.Handler); err != nil {
			m.preventEvents = true
		}
	case tracks.Do:
		view := t.View()
		v.Fn(view)
	case tracks.Request:
		v.Reply <- t.State()
	case tracks.SetLoops:
		if !t.Input.Seekable() {
			v.Done <- tracks.ErrSeekUnsupported
			return
		}
		t.Loops = v.Loops
		v.Done <- nil
	case tracks.MakePlayable:
		if t.Ready == tracks.Playable {
			v.Done <- nil
			return
		}
		m.startReady(tc, v.Done)
	}
}

// startReady dispatches input promotion to a blocking goroutine; the result
// comes back through the mixer's own command channel.
func (m *Mixer) startReady(tc *trackContext, done chan error) {
	if done != nil {
		tc.readyWaiters = append(tc.readyWaiters, done)
	}
	if tc.readying {
		return
	}
	tc.readying = true
	tc.track.Ready = tracks.Preparing

	in := tc.track.Input
	id := tc.track.UUID
	inbox := m.inbox
	codecs, formats := m.codecs, m.formats
	go func() {
		err := in.MakePlayable(context.Background(), codecs, formats)
		_ = inbox.Send(MsgTrackReady{Track: id, Err: err})
	}()
}

func (m *Mixer) finishReady(msg MsgTrackReady) {
	var tc *trackContext
	for _, cand := range m.tracks {
		if cand.track.UUID == msg.Track {
			tc = cand
			break
		}
	}
	if tc == nil {
		return
	}
	tc.readying = false

	switch err := msg.Err.(type) {
	case nil:
		tc.track.Ready = tracks.Playable
		m.fireTrackEvent(tc, tracks.TrackPlayable)
	case *input.RetryIn:
		tc.track.Ready = tracks.Uninitialised
		tc.retryAt = time.Now().Add(err.After)
		m.logger.Info("Input creation rate limited",
			zap.String("track_id", tc.track.UUID.String()),
			zap.Duration("retry_in", err.After))
	default:
		m.errorTrack(tc, msg.Err)
	}
	for _, done := range tc.readyWaiters {
		done <- msg.Err
	}
	tc.readyWaiters = nil
}

func (m *Mixer) seekTrack(tc *trackContext, target time.Duration) error {
	parsed, err := tc.track.Input.Parsed()
	if err != nil {
		return err
	}
	got, err := parsed.Seek(target)
	if err != nil {
		return err
	}
	tc.track.Position = got
	tc.resetDecodeState()
	tc.passthroughBlocked = false
	tc.passthroughStrikes = 0
	return nil
}

func (m *Mixer) errorTrack(tc *trackContext, err error) {
	tc.track.Mode = tracks.Errored
	tc.track.Err = err
	m.logger.Warn("Track errored",
		zap.String("track_id", tc.track.UUID.String()),
		zap.Error(err))
}

// tick fires keepalives and advances the event clock. Runs once per cycle on
// workers and once per idle interval for parked mixers.
func (m *Mixer) tick(now time.Time) {
	if m.conn != nil && !now.Before(m.nextKeepalive) {
		pkt := make([]byte, len(m.kaPacket))
		copy(pkt, m.kaPacket[:])
		if err := m.conn.udp.send(pkt); err != nil {
			m.connError(err)
		} else {
			m.nextKeepalive = m.nextKeepalive.Add(audio.KeepaliveInterval)
			if m.nextKeepalive.Before(now) {
				m.nextKeepalive = now.Add(audio.KeepaliveInterval)
			}
		}
	}

	if m.preventEvents {
		return
	}
	m.stateScratch = m.stateScratch[:0]
	for _, tc := range m.tracks {
		m.stateScratch = append(m.stateScratch, tc.track.State())
	}
	if err := m.events.Tick(m.stateScratch); err != nil {
		m.preventEvents = true
	}
}

func (m *Mixer) fireTrackEvent(tc *trackContext, ev tracks.TrackEvent) {
	if m.preventEvents {
		return
	}
	if err := m.events.TrackStateChange(tc.track.UUID, ev, tc.track.State()); err != nil {
		m.preventEvents = true
	}
}

func (m *Mixer) fireCore(ev tracks.CoreEvent, ctx *tracks.Context) {
	if m.preventEvents {
		return
	}
	if err := m.events.FireCore(ev, ctx); err != nil {
		m.preventEvents = true
	}
}

func (m *Mixer) setSpeaking(speaking bool) {
	if m.speaking == speaking || m.conn == nil {
		return
	}
	m.speaking = speaking
	if m.conn.gateway != nil {
		if err := m.conn.gateway.Speaking(speaking); err != nil {
			m.logger.Debug("Speaking update failed", zap.Error(err))
		}
	}
	m.fireCore(tracks.CoreSpeakingStateUpdate, &tracks.Context{
		Speaking: &tracks.SpeakingUpdate{SSRC: m.conn.ssrc, Speaking: speaking},
	})
}

// prepare runs steps 2-6 of the cycle against a packet slot whose RTP header
// is already in place: mix, silence policy, encode, nonce, seal. It returns
// the total packet length, or zero when nothing should be sent this tick.
func (m *Mixer) prepare(pkt []byte) (int, error) {
	if m.conn == nil {
		return 0, nil
	}

	trailer := m.conn.crypto.Mode().TrailerSize()
	payload := pkt[rtpframe.HeaderSize+crypto.TagSize:]
	payloadMax := audio.VoicePacketMax - rtpframe.HeaderSize - crypto.TagSize - trailer

	var plainLen int
	kind, mixLen := m.mixTracks(payload, payloadMax)
	switch {
	case kind == mixPassthrough:
		plainLen = mixLen
	case mixLen > 0:
		if m.config.UseSoftclip {
			m.soft.Apply(m.planar)
		}
		n := m.planar.Interleave(m.interleaved)
		opus, err := m.encoder.Encode(m.interleaved[:n], audio.MonoFrameSize, payloadMax)
		if err != nil {
			return 0, err
		}
		plainLen = copy(payload, opus)
	default:
		// Silence: wind down with explicit silent frames, then go quiet.
		if m.silenceFrames == 0 {
			m.setSpeaking(false)
			return 0, nil
		}
		m.silenceFrames--
		plainLen = copy(payload, audio.SilentFrame[:])
	}

	if kind == mixPassthrough || mixLen > 0 {
		m.silenceFrames = audio.SilenceFrameCount
		m.setSpeaking(true)
	}

	return m.conn.crypto.EncryptInPlace(pkt, rtpframe.HeaderSize, plainLen)
}
