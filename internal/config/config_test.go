package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raikerian/go-discord-voice/internal/config"
	"github.com/Raikerian/go-discord-voice/pkg/audio"
	"github.com/Raikerian/go-discord-voice/pkg/crypto"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, crypto.Normal, cfg.CryptoMode)
	assert.Equal(t, config.DecodeDecrypt, cfg.DecodeMode)
	assert.Equal(t, time.Minute, cfg.DecodeStateTimeout)
	assert.Equal(t, 5, cfg.PlayoutBufferLength)
	assert.Equal(t, 3, cfg.PlayoutSpikeLength)
	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, audio.Stereo, cfg.MixMode)
	assert.Equal(t, 1, cfg.PreallocatedTracks)
	assert.True(t, cfg.UseSoftclip)
	assert.Equal(t, 10*time.Second, cfg.DriverTimeout)
	assert.Equal(t, 16, cfg.Scheduler.MaxPerThread)
	assert.Equal(t, audio.DefaultBitrate, cfg.Bitrate)

	assert.Equal(t, 250*time.Millisecond, cfg.DriverRetry.MinDelay)
	assert.Equal(t, 10*time.Second, cfg.DriverRetry.MaxDelay)
	assert.Equal(t, 0.1, cfg.DriverRetry.Jitter)
	assert.Equal(t, 5, cfg.DriverRetry.MaxAttempts)
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := config.Default()
	dup := cfg.Clone()
	dup.PlayoutBufferLength = 99
	assert.Equal(t, 5, cfg.PlayoutBufferLength)
}

func TestRetryDelayBackoffAndJitter(t *testing.T) {
	cfg := config.Default()
	r := cfg.DriverRetry

	for attempt := 0; attempt < r.MaxAttempts; attempt++ {
		d := r.Delay(attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Duration(float64(r.MaxDelay)*1.11))
	}

	// The first delay stays within jitter of the minimum.
	d := r.Delay(0)
	assert.InDelta(t, float64(r.MinDelay), float64(d), 0.11*float64(r.MinDelay))
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("playout_buffer_length: 8\n"), 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.PlayoutBufferLength)
	assert.Equal(t, 16, cfg.Scheduler.MaxPerThread)
	assert.True(t, cfg.UseSoftclip)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
