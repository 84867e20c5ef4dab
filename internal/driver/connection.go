package driver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-voice/internal/config"
	"github.com/Raikerian/go-discord-voice/pkg/crypto"
)

// ErrNotConnected is returned for operations that need an active session.
var ErrNotConnected = errors.New("driver has no active connection")

// ConnectionInfo is everything the voice handshake produced that the core
// consumes: the identity tuple plus the session key, SSRC, and UDP peer.
// It is immutable once a session is established and replaced wholesale on
// reconnect. Token is secret and never logged.
type ConnectionInfo struct {
	ChannelID discord.ChannelID // zero when not in a channel
	GuildID   discord.GuildID
	UserID    discord.UserID
	Endpoint  string // voice server UDP address, host:port
	SessionID string
	Token     string

	SSRC      uint32
	SecretKey [crypto.KeySize]byte
}

// Gateway is the voice websocket half the core talks back to: speaking-state
// updates. Implementations belong to the host SDK adapter.
type Gateway interface {
	Speaking(speaking bool) error
}

// VoiceStateUpdater is the request surface the core emits towards the host
// gateway: "update voice state for guild G to channel C". The join/handshake
// layer that satisfies it lives outside the core.
type VoiceStateUpdater interface {
	UpdateVoiceState(ctx context.Context, guildID discord.GuildID, channelID discord.ChannelID, selfMute, selfDeaf bool) error
}

// MixerConnection is the transmit state of one established session: the
// cipher, the UDP tx task, the receive pipeline, and the gateway handle.
type MixerConnection struct {
	ssrc    uint32
	crypto  *crypto.State
	udp     *udpTx
	rx      *udpRx
	gateway Gateway
}

// SSRC returns the session's sender identifier.
func (c *MixerConnection) SSRC() uint32 { return c.ssrc }

func (c *MixerConnection) close(disposer *Disposer) {
	if c.rx != nil {
		c.rx.stop()
	}
	c.udp.close()
	disposer.Dispose(c.udp.conn)
}

// connect dials the voice UDP endpoint with the configured retry strategy and
// assembles a MixerConnection. It blocks until the session is up, the retry
// budget is spent, or ctx expires.
func connect(ctx context.Context, cfg *config.Config, info ConnectionInfo, gw Gateway, events eventSink, logger *zap.Logger) (*MixerConnection, error) {
	if cfg.DriverTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DriverTimeout)
		defer cancel()
	}

	var (
		conn net.Conn
		err  error
	)
	dialer := net.Dialer{}
	for attempt := 0; attempt < cfg.DriverRetry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(cfg.DriverRetry.Delay(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		conn, err = dialer.DialContext(ctx, "udp", info.Endpoint)
		if err == nil {
			break
		}
		logger.Warn("Voice UDP dial failed",
			zap.String("endpoint", info.Endpoint),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	if err != nil {
		return nil, fmt.Errorf("dialing voice endpoint: %w", err)
	}

	mc := &MixerConnection{
		ssrc:    info.SSRC,
		crypto:  crypto.NewState(cfg.CryptoMode, info.SecretKey),
		udp:     newUDPTx(conn, logger),
		gateway: gw,
	}
	mc.rx = newUDPRx(conn, cfg, crypto.NewState(cfg.CryptoMode, info.SecretKey), events, logger)

	logger.Info("Voice UDP session established",
		zap.String("endpoint", info.Endpoint),
		zap.Uint32("ssrc", info.SSRC),
		zap.String("crypto_mode", cfg.CryptoMode.String()))
	return mc, nil
}
