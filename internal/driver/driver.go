// Package driver contains the audio driver core: the mixer and its 20 ms
// cycle, the two-tier scheduler, the UDP transmit and receive tasks, and the
// disposer. A Driver is the user-facing handle to one call's mixer.
package driver

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-voice/internal/config"
	"github.com/Raikerian/go-discord-voice/internal/input"
	"github.com/Raikerian/go-discord-voice/internal/queue"
	"github.com/Raikerian/go-discord-voice/internal/tracks"
	"github.com/Raikerian/go-discord-voice/pkg/audio"
)

// Driver controls one voice call. It owns the sending half of the mixer's
// command channel; the scheduler owns the mixer itself. Closing the driver
// poisons the mixer.
type Driver struct {
	logger   *zap.Logger
	config   *config.Config
	events   *tracks.Dispatcher
	disposer *Disposer
	inbox    *queue.Queue[Message]

	mu     sync.Mutex
	rx     *udpRx
	closed bool
}

// New creates a driver and registers its mixer with the scheduler in the
// idle tier. The configuration is cloned; later mutation of cfg has no
// effect.
func New(cfg *config.Config, sched *Scheduler, logger *zap.Logger) (*Driver, error) {
	cfg = cfg.Clone()
	cfg.Validate()

	events := tracks.NewDispatcher(logger)
	disposer := DefaultDisposer()

	mixer, err := newMixer(cfg, events, disposer, input.DefaultCodecs(), input.DefaultFormats(), logger)
	if err != nil {
		events.Close()
		return nil, err
	}

	d := &Driver{
		logger:   logger,
		config:   cfg,
		events:   events,
		disposer: disposer,
		inbox:    mixer.inbox,
	}
	sched.Register(mixer)
	return d, nil
}

func (d *Driver) send(msg Message) error {
	if err := d.inbox.Send(msg); err != nil {
		return ErrNotConnected
	}
	return nil
}

// Connect establishes the UDP session described by info and installs it on
// the mixer. It blocks until the session is up or the retry budget or
// driver timeout is exhausted.
func (d *Driver) Connect(ctx context.Context, info ConnectionInfo, gw Gateway) error {
	d.mu.Lock()
	cfg := d.config
	d.mu.Unlock()
	conn, err := connect(ctx, cfg, info, gw, d.events, d.logger)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.rx = conn.rx
	d.mu.Unlock()
	return d.send(MsgSetConn{Conn: conn})
}

// Leave drops the connection. Tracks stay resident and the mixer idles.
func (d *Driver) Leave() error {
	d.mu.Lock()
	d.rx = nil
	d.mu.Unlock()
	return d.send(MsgDropConn{})
}

// Play adds a track over the input and returns its handle. The input is
// promoted to playable in the background if it is still lazy.
func (d *Driver) Play(in *input.Input) (*tracks.Handle, error) {
	t, h := tracks.New(in)
	if err := d.send(MsgAddTrack{Track: t, Handle: h}); err != nil {
		return nil, err
	}
	return h, nil
}

// AddEvent attaches a handler in the driver's global scope. Both track and
// core events are accepted here.
func (d *Driver) AddEvent(ev tracks.Event, handler tracks.Handler) error {
	return d.events.AddGlobal(ev, handler)
}

// SetMute silences the driver while keeping its clocks running.
func (d *Driver) SetMute(mute bool) error {
	return d.send(MsgMute{Mute: mute})
}

// SetBitrate adjusts the Opus encoder bitrate.
func (d *Driver) SetBitrate(bitrate int) error {
	return d.send(MsgSetBitrate{Bitrate: bitrate})
}

// SetMixMode switches mono/stereo output.
func (d *Driver) SetMixMode(mode audio.MixMode) error {
	return d.send(MsgSetMixMode{Mode: mode})
}

// SetConfig replaces the mixer's configuration snapshot. The crypto mode of
// an active session cannot be changed.
func (d *Driver) SetConfig(cfg *config.Config) error {
	cfg = cfg.Clone()
	cfg.Validate()
	d.mu.Lock()
	d.config = cfg
	d.mu.Unlock()
	return d.send(MsgSetConfig{Config: cfg})
}

// NotifyDisconnect tells the receive pipeline that the user behind an SSRC
// left; its tail audio drains for a grace period before state is reclaimed.
func (d *Driver) NotifyDisconnect(ssrc uint32) {
	d.mu.Lock()
	rx := d.rx
	d.mu.Unlock()
	if rx != nil {
		rx.notifyDisconnect(ssrc)
	}
}

// Close poisons the mixer and tears down the event thread. Commands issued
// after Close report ErrNotConnected; track handles report their channels
// closed.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.rx = nil
	d.mu.Unlock()

	err := d.send(MsgPoison{})
	d.events.Close()
	return err
}
