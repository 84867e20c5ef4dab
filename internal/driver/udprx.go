package driver

import (
	"net"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"go.uber.org/zap"
	"layeh.com/gopus"

	"github.com/Raikerian/go-discord-voice/internal/config"
	"github.com/Raikerian/go-discord-voice/internal/queue"
	"github.com/Raikerian/go-discord-voice/internal/tracks"
	"github.com/Raikerian/go-discord-voice/pkg/audio"
	"github.com/Raikerian/go-discord-voice/pkg/crypto"
)

// prunePeriod is how often the rx task sweeps out stale SSRC state.
const prunePeriod = 5 * time.Second

// disconnectGrace keeps a departed user's buffer around long enough to drain
// in-flight tail audio.
const disconnectGrace = time.Second

// decoderCacheSize bounds the number of concurrent per-SSRC decoders.
const decoderCacheSize = 128

// rxPacket is one demuxed, decrypted inbound voice packet.
type rxPacket struct {
	header  rtp.Header
	payload []byte
}

// udpRx is the receive half of a connection: it demuxes RTP from RTCP,
// decrypts, buffers per-SSRC playout state, and emits one VoiceTick every
// 20 ms with decoded audio and speaking transitions.
type udpRx struct {
	conn   net.Conn
	cfg    *config.Config
	crypto *crypto.State
	events eventSink
	logger *zap.Logger

	packets     chan rxPacket
	disconnects *queue.Queue[uint32]
	done        chan struct{}

	playouts map[uint32]*playoutBuffer
	decoders *expirable.LRU[uint32, *gopus.Decoder]
}

func newUDPRx(conn net.Conn, cfg *config.Config, cs *crypto.State, events eventSink, logger *zap.Logger) *udpRx {
	rx := &udpRx{
		conn:        conn,
		cfg:         cfg,
		crypto:      cs,
		events:      events,
		logger:      logger,
		packets:     make(chan rxPacket, 64),
		disconnects: queue.New[uint32](),
		done:        make(chan struct{}),
		playouts:    make(map[uint32]*playoutBuffer),
		decoders:    expirable.NewLRU[uint32, *gopus.Decoder](decoderCacheSize, nil, cfg.DecodeStateTimeout),
	}
	go rx.readLoop()
	go rx.tickLoop()
	return rx
}

func (rx *udpRx) stop() {
	close(rx.done)
	rx.disconnects.Close()
}

// notifyDisconnect flags an SSRC as departed; its buffer drains for a grace
// period and is then pruned.
func (rx *udpRx) notifyDisconnect(ssrc uint32) {
	_ = rx.disconnects.Send(ssrc)
}

// readLoop pulls datagrams off the socket and demuxes them. Malformed or
// undecryptable packets are dropped; they are never fatal to the session.
func (rx *udpRx) readLoop() {
	buf := make([]byte, 2*audio.VoicePacketMax)
	for {
		select {
		case <-rx.done:
			return
		default:
		}

		n, err := rx.conn.Read(buf)
		if err != nil {
			return
		}
		if n < 8 {
			continue
		}

		if isRTCP(buf[1]) {
			rx.handleRTCP(buf[:n])
			continue
		}
		rx.handleRTP(buf[:n])
	}
}

// isRTCP matches the RTCP packet-type range 200-204 occupying the second
// octet where RTP carries marker + payload type.
func isRTCP(b byte) bool { return b >= 200 && b <= 204 }

func (rx *udpRx) handleRTP(pkt []byte) {
	if rx.cfg.DecodeMode == config.DecodePass {
		var parsed rtp.Packet
		if err := parsed.Unmarshal(append([]byte(nil), pkt...)); err != nil {
			return
		}
		rx.fireRtp(&parsed)
		return
	}

	// The extension header, when present, is encrypted along with the
	// payload, so decryption uses the fixed 12-byte header (the nonce source in Normal mode) as
	// cleartext and the full parse happens afterwards.
	plain, err := rx.crypto.DecryptInPlace(pkt, 12)
	if err != nil {
		rx.logger.Debug("Dropping undecryptable packet", zap.Error(err))
		return
	}

	full := make([]byte, 0, 12+len(plain))
	full = append(full, pkt[:12]...)
	full = append(full, plain...)

	var parsed rtp.Packet
	if err := parsed.Unmarshal(full); err != nil {
		rx.logger.Debug("Dropping malformed RTP packet", zap.Error(err))
		return
	}
	rx.fireRtp(&parsed)

	select {
	case rx.packets <- rxPacket{header: parsed.Header, payload: parsed.Payload}:
	default:
		rx.logger.Debug("Receive queue full, dropping packet",
			zap.Uint32("ssrc", parsed.SSRC))
	}
}

func (rx *udpRx) handleRTCP(pkt []byte) {
	body := pkt
	if rx.cfg.DecodeMode != config.DecodePass {
		plain, err := rx.crypto.DecryptInPlace(pkt, 8)
		if err != nil {
			return
		}
		full := make([]byte, 0, 8+len(plain))
		full = append(full, pkt[:8]...)
		full = append(full, plain...)
		body = full
	}
	packets, err := rtcp.Unmarshal(body)
	if err != nil {
		return
	}
	_ = rx.events.FireCore(tracks.CoreRtcpPacket, &tracks.Context{Rtcp: packets})
}

func (rx *udpRx) fireRtp(p *rtp.Packet) {
	_ = rx.events.FireCore(tracks.CoreRtpPacket, &tracks.Context{Rtp: p})
}

// tickLoop owns the playout state: inserts arrive from the read loop, and a
// 20 ms ticker drains one packet per SSRC into a VoiceTick.
func (rx *udpRx) tickLoop() {
	ticker := time.NewTicker(audio.FrameLength)
	defer ticker.Stop()
	nextPrune := time.Now().Add(prunePeriod)

	for {
		select {
		case <-rx.done:
			return
		case pkt := <-rx.packets:
			rx.insert(pkt)
		case now := <-ticker.C:
			rx.drainDisconnects(now)
			rx.emitTick()
			if !now.Before(nextPrune) {
				rx.prune(now)
				nextPrune = now.Add(prunePeriod)
			}
		}
	}
}

func (rx *udpRx) insert(pkt rxPacket) {
	b, ok := rx.playouts[pkt.header.SSRC]
	if !ok {
		b = newPlayoutBuffer(rx.cfg.PlayoutBufferLength, rx.cfg.PlayoutSpikeLength)
		rx.playouts[pkt.header.SSRC] = b
	}
	b.insert(pkt.header.SequenceNumber, pkt.header.Timestamp, pkt.payload)
	if !b.disconnected {
		b.pruneTime = time.Now().Add(rx.cfg.DecodeStateTimeout)
	}
}

func (rx *udpRx) drainDisconnects(now time.Time) {
	for {
		ssrc, ok := rx.disconnects.TryRecv()
		if !ok {
			return
		}
		if b, exists := rx.playouts[ssrc]; exists {
			b.disconnected = true
			b.pruneTime = now.Add(disconnectGrace)
		}
		_ = rx.events.FireCore(tracks.CoreClientDisconnect, &tracks.Context{Disconnect: &ssrc})
	}
}

func (rx *udpRx) emitTick() {
	tick := &tracks.VoiceTick{Speaking: make(map[uint32]*tracks.VoiceData)}

	for ssrc, b := range rx.playouts {
		pkt, lost, emit := b.pop()
		if !emit {
			tick.Silent = append(tick.Silent, ssrc)
			continue
		}

		data := &tracks.VoiceData{}
		switch {
		case lost:
			data.Missed = true
			if rx.cfg.DecodeMode == config.DecodeFull {
				data.PCM = rx.concealLoss(ssrc, b)
			}
		default:
			data.Opus = pkt.opus
			silent := audio.IsSilentFrame(pkt.opus)
			switch b.observeSilence(silent) {
			case 1:
				rx.fireSpeaking(ssrc, true)
			case -1:
				rx.fireSpeaking(ssrc, false)
			}
			if rx.cfg.DecodeMode == config.DecodeFull {
				pcm, err := rx.decode(ssrc, b, pkt.opus)
				if err != nil {
					rx.logger.Debug("Inbound decode failed",
						zap.Uint32("ssrc", ssrc), zap.Error(err))
					tick.Silent = append(tick.Silent, ssrc)
					continue
				}
				data.PCM = pcm
			}
		}
		tick.Speaking[ssrc] = data
	}

	if len(tick.Speaking) == 0 && len(tick.Silent) == 0 {
		return
	}
	_ = rx.events.FireCore(tracks.CoreVoiceTick, &tracks.Context{Voice: tick})
}

func (rx *udpRx) fireSpeaking(ssrc uint32, speaking bool) {
	_ = rx.events.FireCore(tracks.CoreSpeakingStateUpdate, &tracks.Context{
		Speaking: &tracks.SpeakingUpdate{SSRC: ssrc, Speaking: speaking},
	})
}

func (rx *udpRx) decoderFor(ssrc uint32) (*gopus.Decoder, error) {
	if dec, ok := rx.decoders.Get(ssrc); ok {
		return dec, nil
	}
	dec, err := gopus.NewDecoder(audio.SampleRate, 2)
	if err != nil {
		return nil, err
	}
	rx.decoders.Add(ssrc, dec)
	return dec, nil
}

// decode walks the packet-duration ladder: a decode failure assumed to be a
// short PCM buffer bumps the expected size and retries, up to 120 ms.
func (rx *udpRx) decode(ssrc uint32, b *playoutBuffer, opus []byte) ([]int16, error) {
	dec, err := rx.decoderFor(ssrc)
	if err != nil {
		return nil, err
	}
	for {
		pcm, err := dec.Decode(opus, decodeFrameSizes[b.decodeSizeIdx], false)
		if err == nil {
			return pcm, nil
		}
		if b.decodeSizeIdx+1 >= len(decodeFrameSizes) {
			return nil, err
		}
		b.decodeSizeIdx++
	}
}

// concealLoss synthesizes silence for a lost slot at the current decode
// size, keeping downstream sample clocks steady.
func (rx *udpRx) concealLoss(ssrc uint32, b *playoutBuffer) []int16 {
	return make([]int16, decodeFrameSizes[b.decodeSizeIdx]*2)
}

func (rx *udpRx) prune(now time.Time) {
	for ssrc, b := range rx.playouts {
		if !b.pruneTime.IsZero() && now.After(b.pruneTime) {
			delete(rx.playouts, ssrc)
			rx.decoders.Remove(ssrc)
			rx.logger.Debug("Pruned inactive SSRC", zap.Uint32("ssrc", ssrc))
		}
	}
}
