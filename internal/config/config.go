// Package config provides configuration loading and management for the voice
// driver. A Config is cloned into every mixer; mutating a Config after a
// driver has been created has no effect on that driver.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Raikerian/go-discord-voice/pkg/audio"
	"github.com/Raikerian/go-discord-voice/pkg/crypto"
)

// DecodeMode controls how far inbound voice packets are processed.
type DecodeMode int

const (
	// DecodeDecrypt decrypts packets but leaves the Opus payload untouched.
	// This is the default.
	DecodeDecrypt DecodeMode = iota
	// DecodePass forwards packets still encrypted.
	DecodePass
	// DecodeFull decrypts and decodes packets into PCM.
	DecodeFull
)

func (m DecodeMode) String() string {
	switch m {
	case DecodePass:
		return "pass"
	case DecodeDecrypt:
		return "decrypt"
	case DecodeFull:
		return "decode"
	default:
		return "unknown"
	}
}

// SchedulerConfig selects the live-mixer packing strategy.
type SchedulerConfig struct {
	// MaxPerThread is the maximum number of live mixers packed onto one
	// worker, subject to the compute budget.
	MaxPerThread int `yaml:"max_per_thread"`
}

// Config holds every recognized driver option.
type Config struct {
	// CryptoMode selects the packet nonce scheme. It is immutable for the
	// lifetime of an active session.
	CryptoMode crypto.Mode `yaml:"crypto_mode"`

	// DecodeMode controls inbound packet handling.
	DecodeMode DecodeMode `yaml:"decode_mode"`

	// DecodeStateTimeout is the idle duration after which an SSRC's decoder
	// state is reclaimed.
	DecodeStateTimeout time.Duration `yaml:"decode_state_timeout"`

	// PlayoutBufferLength is the minimum number of buffered packets before a
	// playout buffer starts draining.
	PlayoutBufferLength int `yaml:"playout_buffer_length"`

	// PlayoutSpikeLength is extra pre-allocated playout capacity for bursts.
	PlayoutSpikeLength int `yaml:"playout_spike_length"`

	// GatewayTimeout bounds the wait for a voice-server handshake reply.
	// Validate replaces zero with the 10 s default.
	GatewayTimeout time.Duration `yaml:"gateway_timeout"`

	// MixMode selects mono or stereo output.
	MixMode audio.MixMode `yaml:"mix_mode"`

	// PreallocatedTracks is the initial track list capacity per mixer.
	PreallocatedTracks int `yaml:"preallocated_tracks"`

	// UseSoftclip applies a soft clipper to the mix before encoding.
	UseSoftclip bool `yaml:"use_softclip"`

	// DriverTimeout bounds the wait to establish a UDP session.
	// Validate replaces zero with the 10 s default; a negative value
	// disables the timeout.
	DriverTimeout time.Duration `yaml:"driver_timeout"`

	// DriverRetry governs reconnection attempts of the UDP session.
	DriverRetry Retry `yaml:"driver_retry"`

	// Scheduler selects the live-mixer packing strategy.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Bitrate is the Opus encoder bitrate in bits per second.
	Bitrate int `yaml:"bitrate"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Default returns a configuration with every option at its default.
func Default() *Config {
	cfg := &Config{UseSoftclip: true}
	cfg.Validate()
	return cfg
}

// Validate fills unset fields with their defaults.
func (c *Config) Validate() {
	if c.DecodeStateTimeout == 0 {
		c.DecodeStateTimeout = time.Minute
	}
	if c.PlayoutBufferLength == 0 {
		c.PlayoutBufferLength = 5
	}
	if c.PlayoutSpikeLength == 0 {
		c.PlayoutSpikeLength = 3
	}
	if c.GatewayTimeout == 0 {
		c.GatewayTimeout = 10 * time.Second
	}
	if c.PreallocatedTracks == 0 {
		c.PreallocatedTracks = 1
	}
	if c.DriverTimeout == 0 {
		c.DriverTimeout = 10 * time.Second
	}
	if c.Scheduler.MaxPerThread == 0 {
		c.Scheduler.MaxPerThread = 16
	}
	if c.Bitrate == 0 {
		c.Bitrate = audio.DefaultBitrate
	}
	c.DriverRetry.validate()
}

// Clone returns an independent copy for a mixer to own.
func (c *Config) Clone() *Config {
	dup := *c
	return &dup
}

// LoadConfig reads a YAML configuration file and applies defaults.
func LoadConfig(filePath string) (*Config, error) {
	// #nosec G304 - filePath is provided by application during startup, not user input
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{UseSoftclip: true}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Validate()
	return cfg, nil
}
