package driver

import (
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-voice/internal/input"
	"github.com/Raikerian/go-discord-voice/internal/tracks"
	"github.com/Raikerian/go-discord-voice/pkg/audio"
)

type mixKind int

const (
	mixNone mixKind = iota
	mixMixed
	mixPassthrough
)

// passthroughVolumeEpsilon bounds how far from unity a track's volume may be
// while still qualifying for passthrough.
const passthroughVolumeEpsilon = 1e-4

// trackContext is the mixer-side decode state of one track: the partially
// consumed frame, the resampler and its pending input, and the passthrough
// strike counter.
type trackContext struct {
	track  *tracks.Track
	handle *tracks.Handle

	frame    *input.Frame
	framePos int

	pending *input.Packet

	resampler   *audio.Resampler
	resampleIn  [][]float32
	resampleOut [][]float32
	resampleLen int

	passthroughStrikes uint8
	passthroughBlocked bool

	readying     bool
	retryAt      time.Time
	readyWaiters []chan error
}

func (tc *trackContext) resetDecodeState() {
	tc.frame = nil
	tc.framePos = 0
	tc.pending = nil
	tc.resampleLen = 0
}

// nextPacket returns the buffered packet from a failed passthrough attempt,
// or reads on until a packet of the chosen track appears.
func (tc *trackContext) nextPacket(parsed *input.Parsed) (*input.Packet, error) {
	if tc.pending != nil {
		pkt := tc.pending
		tc.pending = nil
		return pkt, nil
	}
	for {
		pkt, err := parsed.Reader.NextPacket()
		if err != nil {
			return nil, err
		}
		if pkt.Track == parsed.TrackID {
			return pkt, nil
		}
	}
}

// mixTracks runs §4.4 across all playing tracks: either a single Opus track
// short-circuits into the payload slot verbatim, or every track accumulates
// into the planar buffer. The second return is the passthrough byte count or
// the per-channel sample count mixed. The planar buffer is cleared first.
func (m *Mixer) mixTracks(payload []byte, payloadMax int) (mixKind, int) {
	m.planar.Clear()
	if m.muted {
		return mixNone, 0
	}

	var playing []*trackContext
	for _, tc := range m.tracks {
		if tc.track.Mode == tracks.Play && tc.track.Ready == tracks.Playable && !tc.readying {
			playing = append(playing, tc)
		}
	}
	if len(playing) == 0 {
		return mixNone, 0
	}

	if len(playing) == 1 {
		tc := playing[0]
		vol := tc.track.Volume
		if !tc.passthroughBlocked && vol > 1-passthroughVolumeEpsilon && vol < 1+passthroughVolumeEpsilon {
			if parsed, err := tc.track.Input.Parsed(); err == nil && parsed.Info.Codec == input.CodecOpus {
				if n, ok := m.tryPassthrough(tc, parsed, payload, payloadMax); ok {
					return mixPassthrough, n
				}
				// No buffered packet means the attempt hit end of stream
				// (loop rewind or track end); nothing to decode this tick.
				if tc.pending == nil {
					return mixNone, 0
				}
			}
		}
	}

	mixed := 0
	for _, tc := range playing {
		produced := m.mixOne(tc)
		if produced > mixed {
			mixed = produced
		}
	}
	if mixed == 0 {
		return mixNone, 0
	}
	return mixMixed, mixed
}

// tryPassthrough copies one raw Opus frame into the payload slot. A frame of
// the wrong duration records a strike, and PassthroughStrikeLimit strikes
// block the fast path for this track; a frame that cannot fit the slot
// blocks it instantly. On rejection the packet stays buffered for the decode
// path.
func (m *Mixer) tryPassthrough(tc *trackContext, parsed *input.Parsed, payload []byte, payloadMax int) (int, bool) {
	pkt, err := tc.nextPacket(parsed)
	if err != nil {
		m.endOfStream(tc, err)
		return 0, false
	}

	if pkt.SampleCount != audio.MonoFrameSize {
		tc.pending = pkt
		tc.passthroughStrikes++
		if tc.passthroughStrikes >= audio.PassthroughStrikeLimit {
			tc.passthroughBlocked = true
			m.logger.Debug("Passthrough blocked: bad frame sizes",
				zap.String("track_id", tc.track.UUID.String()),
				zap.Int("sample_count", pkt.SampleCount))
		}
		return 0, false
	}
	if len(pkt.Data) > payloadMax {
		tc.pending = pkt
		tc.passthroughBlocked = true
		m.logger.Debug("Passthrough blocked: frame exceeds packet budget",
			zap.String("track_id", tc.track.UUID.String()),
			zap.Int("frame_bytes", len(pkt.Data)))
		return 0, false
	}

	n := copy(payload, pkt.Data)
	m.advanceClock(tc, audio.MonoFrameSize)
	return n, true
}

// mixOne fills up to one frame of the planar accumulator from a track,
// decoding and resampling as needed.
func (m *Mixer) mixOne(tc *trackContext) int {
	parsed, err := tc.track.Input.Parsed()
	if err != nil {
		return 0
	}
	vol := tc.track.Volume

	produced := 0
	for produced < audio.MonoFrameSize {
		if tc.frame == nil || tc.framePos >= tc.frame.SampleCount() {
			pkt, err := tc.nextPacket(parsed)
			if err != nil {
				produced += m.drainResampler(tc, produced, vol)
				m.endOfStream(tc, err)
				break
			}
			frame, err := parsed.Decoder.Decode(pkt)
			if err != nil {
				m.errorTrack(tc, err)
				break
			}
			tc.frame = frame
			tc.framePos = 0
		}

		if tc.frame.Rate == audio.SampleRate {
			n := tc.frame.SampleCount() - tc.framePos
			if rest := audio.MonoFrameSize - produced; n > rest {
				n = rest
			}
			m.planar.MixIn(tc.frame.Planes, tc.framePos, produced, n, vol)
			tc.framePos += n
			produced += n
			continue
		}

		if err := m.stageResampler(tc); err != nil {
			m.errorTrack(tc, err)
			break
		}
		req := tc.resampler.RequiredInput()
		n := req - tc.resampleLen
		if avail := tc.frame.SampleCount() - tc.framePos; n > avail {
			n = avail
		}
		for ch := range tc.resampleIn {
			copy(tc.resampleIn[ch][tc.resampleLen:tc.resampleLen+n], tc.frame.Planes[ch][tc.framePos:tc.framePos+n])
		}
		tc.resampleLen += n
		tc.framePos += n

		if tc.resampleLen == req {
			tc.resampler.Process(tc.resampleIn, 0, tc.resampleOut, 0)
			tc.resampleLen = 0
			take := audio.ResampleOutputFrameSize
			if rest := audio.MonoFrameSize - produced; take > rest {
				take = rest
			}
			m.planar.MixIn(tc.resampleOut, 0, produced, take, vol)
			produced += take
		}
	}

	m.advanceClock(tc, produced)
	return produced
}

// stageResampler builds or replaces the track's resampler and scratch planes
// to match the current frame's format.
func (m *Mixer) stageResampler(tc *trackContext) error {
	channels := len(tc.frame.Planes)
	if tc.resampler != nil && tc.resampler.Channels() == channels && tc.frame.Rate == tc.resampleRate() {
		return nil
	}
	rs, err := audio.NewResampler(tc.frame.Rate, channels)
	if err != nil {
		return err
	}
	tc.resampler = rs
	tc.resampleLen = 0
	tc.resampleIn = make([][]float32, channels)
	tc.resampleOut = make([][]float32, channels)
	for ch := range tc.resampleIn {
		tc.resampleIn[ch] = make([]float32, rs.RequiredInput())
		tc.resampleOut[ch] = make([]float32, audio.ResampleOutputFrameSize)
	}
	return nil
}

func (tc *trackContext) resampleRate() int {
	if tc.resampler == nil {
		return 0
	}
	return tc.resampler.RequiredInput() * 100
}

// drainResampler flushes partial resampler input at end of stream: the block
// is zero-padded, processed once, and only the frames covered by real input
// are mixed.
func (m *Mixer) drainResampler(tc *trackContext, produced int, vol float32) int {
	if tc.resampler == nil || tc.resampleLen == 0 {
		return 0
	}
	req := tc.resampler.RequiredInput()
	for ch := range tc.resampleIn {
		for i := tc.resampleLen; i < req; i++ {
			tc.resampleIn[ch][i] = 0
		}
	}
	tc.resampler.Process(tc.resampleIn, 0, tc.resampleOut, 0)
	valid := tc.resampleLen * audio.ResampleOutputFrameSize / req
	tc.resampleLen = 0
	if rest := audio.MonoFrameSize - produced; valid > rest {
		valid = rest
	}
	m.planar.MixIn(tc.resampleOut, 0, produced, valid, vol)
	return valid
}

// endOfStream applies loop semantics: rewind while loops remain, otherwise
// the track ends. Read errors other than EOF error the track.
func (m *Mixer) endOfStream(tc *trackContext, err error) {
	if !errors.Is(err, io.EOF) {
		m.errorTrack(tc, err)
		return
	}
	next, loop := tc.track.Loops.ShouldLoop()
	if loop {
		tc.track.Loops = next
		if err := m.seekTrack(tc, 0); err != nil {
			m.errorTrack(tc, err)
			return
		}
		tc.track.Position = 0
		m.fireTrackEvent(tc, tracks.TrackLoop)
		return
	}
	tc.track.Mode = tracks.End
}

// advanceClock moves the track clocks by the media time just played.
// position may jump elsewhere on seek or loop; play time only ever grows.
func (m *Mixer) advanceClock(tc *trackContext, samples int) {
	if samples <= 0 {
		return
	}
	d := time.Duration(samples) * time.Second / audio.SampleRate
	tc.track.Position += d
	tc.track.PlayTime += d
}
