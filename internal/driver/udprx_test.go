package driver

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"layeh.com/gopus"

	"github.com/Raikerian/go-discord-voice/internal/config"
	"github.com/Raikerian/go-discord-voice/internal/tracks"
	"github.com/Raikerian/go-discord-voice/pkg/audio"
	"github.com/Raikerian/go-discord-voice/pkg/crypto"
	"github.com/Raikerian/go-discord-voice/pkg/rtpframe"
)

// eventRecorder captures the core events the receive pipeline fires.
type eventRecorder struct {
	mu    sync.Mutex
	rtp   []*rtp.Packet
	rtcp  [][]rtcp.Packet
	ticks []*tracks.VoiceTick
}

func (r *eventRecorder) FireCore(ev tracks.CoreEvent, ctx *tracks.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch ev {
	case tracks.CoreRtpPacket:
		clone := *ctx.Rtp
		clone.Payload = append([]byte(nil), ctx.Rtp.Payload...)
		r.rtp = append(r.rtp, &clone)
	case tracks.CoreRtcpPacket:
		r.rtcp = append(r.rtcp, ctx.Rtcp)
	case tracks.CoreVoiceTick:
		r.ticks = append(r.ticks, ctx.Voice)
	}
	return nil
}

func (r *eventRecorder) rtpCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rtp)
}

func (r *eventRecorder) rtcpCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rtcp)
}

// voiceData scans the recorded ticks for the first payload of an SSRC.
func (r *eventRecorder) voiceData(ssrc uint32) *tracks.VoiceData {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tick := range r.ticks {
		if data, ok := tick.Speaking[ssrc]; ok {
			return data
		}
	}
	return nil
}

// newTestRx stands the receive pipeline up over an in-memory pipe; packets
// written to the returned conn arrive on the rx socket.
func newTestRx(t *testing.T, mode config.DecodeMode) (*udpRx, *eventRecorder, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	cfg := config.Default()
	cfg.DecodeMode = mode

	sink := &eventRecorder{}
	rx := newUDPRx(server, cfg, crypto.NewState(crypto.Normal, testKey()), sink, zap.NewNop())
	t.Cleanup(func() {
		rx.stop()
		client.Close()
		server.Close()
	})
	return rx, sink, client
}

// sealRTP builds one encrypted voice packet the way the send side does.
func sealRTP(t *testing.T, cs *crypto.State, seq uint16, ts, ssrc uint32, payload []byte) []byte {
	t.Helper()
	pkt := make([]byte, rtpframe.HeaderSize+crypto.TagSize+len(payload)+cs.Mode().TrailerSize())
	rtpframe.Header{Sequence: seq, Timestamp: ts, SSRC: ssrc}.WriteTo(pkt)
	copy(pkt[rtpframe.HeaderSize+crypto.TagSize:], payload)
	total, err := cs.EncryptInPlace(pkt, rtpframe.HeaderSize, len(payload))
	require.NoError(t, err)
	return pkt[:total]
}

func TestRxDemuxesAndDecryptsRTP(t *testing.T) {
	_, sink, conn := newTestRx(t, config.DecodeDecrypt)
	cs := crypto.NewState(crypto.Normal, testKey())

	const ssrc = 0xABCD
	payloads := make([][]byte, 8)
	for i := range payloads {
		payloads[i] = []byte{byte(i), byte(i + 1), byte(i + 2), byte(i + 3)}
		_, err := conn.Write(sealRTP(t, cs, uint16(i), uint32(i)*960, ssrc, payloads[i]))
		require.NoError(t, err)
	}

	// Every packet surfaces as a parsed, decrypted RTP event.
	require.Eventually(t, func() bool { return sink.rtpCount() == len(payloads) },
		2*time.Second, 10*time.Millisecond)
	sink.mu.Lock()
	for i, p := range sink.rtp {
		assert.Equal(t, uint32(ssrc), p.SSRC)
		assert.Equal(t, uint16(i), p.SequenceNumber)
		assert.Equal(t, payloads[i], p.Payload)
	}
	sink.mu.Unlock()

	// Once the playout buffer fills, ticks carry the raw Opus through.
	require.Eventually(t, func() bool { return sink.voiceData(ssrc) != nil },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, payloads[0], sink.voiceData(ssrc).Opus)
}

func TestRxDropsUndecryptablePackets(t *testing.T) {
	_, sink, conn := newTestRx(t, config.DecodeDecrypt)

	// Valid-looking RTP header over garbage ciphertext.
	junk := make([]byte, 64)
	rtpframe.Header{Sequence: 1, SSRC: 5}.WriteTo(junk)
	_, err := conn.Write(junk)
	require.NoError(t, err)

	// The session survives; a good packet still goes through.
	cs := crypto.NewState(crypto.Normal, testKey())
	_, err = conn.Write(sealRTP(t, cs, 2, 960, 5, []byte{0x42}))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sink.rtpCount() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestRxDemuxesRTCP(t *testing.T) {
	_, sink, conn := newTestRx(t, config.DecodeDecrypt)
	cs := crypto.NewState(crypto.Normal, testKey())

	rr := rtcp.ReceiverReport{SSRC: 99}
	raw, err := rr.Marshal()
	require.NoError(t, err)

	// RTCP travels with an 8-byte cleartext header, the rest sealed.
	pkt := make([]byte, 8+crypto.TagSize+len(raw)-8)
	copy(pkt, raw[:8])
	copy(pkt[8+crypto.TagSize:], raw[8:])
	total, err := cs.EncryptInPlace(pkt, 8, len(raw)-8)
	require.NoError(t, err)
	_, err = conn.Write(pkt[:total])
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sink.rtcpCount() == 1 },
		2*time.Second, 10*time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.rtcp[0], 1)
	got, ok := sink.rtcp[0][0].(*rtcp.ReceiverReport)
	require.True(t, ok)
	assert.Equal(t, uint32(99), got.SSRC)
}

func TestRxDecodesOpusWhenConfigured(t *testing.T) {
	_, sink, conn := newTestRx(t, config.DecodeFull)
	cs := crypto.NewState(crypto.Normal, testKey())

	enc, err := gopus.NewEncoder(audio.SampleRate, 2, gopus.Audio)
	require.NoError(t, err)
	pcm := make([]int16, audio.StereoFrameSize)
	frame, err := enc.Encode(pcm, audio.MonoFrameSize, 4000)
	require.NoError(t, err)

	const ssrc = 7
	for i := 0; i < 8; i++ {
		_, err := conn.Write(sealRTP(t, cs, uint16(i), uint32(i)*960, ssrc, frame))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return sink.voiceData(ssrc) != nil },
		2*time.Second, 10*time.Millisecond)
	data := sink.voiceData(ssrc)
	assert.Len(t, data.PCM, audio.StereoFrameSize, "20 ms stereo PCM per tick")
	assert.False(t, data.Missed)
}

func TestDecodeSizeLadderClimbs(t *testing.T) {
	rx, _, _ := newTestRx(t, config.DecodeFull)

	enc, err := gopus.NewEncoder(audio.SampleRate, 2, gopus.Audio)
	require.NoError(t, err)
	pcm := make([]int16, 2880*2)
	frame, err := enc.Encode(pcm, 2880, 4000) // 60 ms
	require.NoError(t, err)

	b := newPlayoutBuffer(5, 3)
	decoded, err := rx.decode(1, b, frame)
	require.NoError(t, err)
	assert.Equal(t, 2880*2, len(decoded), "ladder climbs until the frame fits")
	assert.Equal(t, 2880, decodeFrameSizes[b.decodeSizeIdx])
}

func TestDecodeLadderExhaustsOnGarbage(t *testing.T) {
	rx, _, _ := newTestRx(t, config.DecodeFull)

	// A code-3 TOC with a zero frame count is invalid at every rung.
	b := newPlayoutBuffer(5, 3)
	_, err := rx.decode(1, b, []byte{0xFF, 0x00})
	assert.Error(t, err, "undecodable data fails after the 120 ms rung")
	assert.Equal(t, len(decodeFrameSizes)-1, b.decodeSizeIdx)
}

func TestConcealLossMatchesDecodeSize(t *testing.T) {
	rx, _, _ := newTestRx(t, config.DecodeFull)

	b := newPlayoutBuffer(5, 3)
	b.decodeSizeIdx = 2 // 40 ms
	pcm := rx.concealLoss(1, b)
	assert.Len(t, pcm, 1920*2)
	for _, s := range pcm {
		assert.Equal(t, int16(0), s)
	}
}
