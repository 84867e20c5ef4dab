package tracks_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-voice/internal/input"
	"github.com/Raikerian/go-discord-voice/internal/tracks"
)

func TestPlayModeTerminality(t *testing.T) {
	assert.True(t, tracks.Play.IsOnGoing())
	assert.True(t, tracks.Pause.IsOnGoing())
	for _, mode := range []tracks.PlayMode{tracks.Stop, tracks.End, tracks.Errored} {
		assert.True(t, mode.IsDone(), mode.String())
	}
}

func TestLoopStateDecrements(t *testing.T) {
	l := tracks.LoopFinite(2)

	l, ok := l.ShouldLoop()
	assert.True(t, ok)
	assert.Equal(t, 1, l.Remaining)

	l, ok = l.ShouldLoop()
	assert.True(t, ok)
	assert.Equal(t, 0, l.Remaining)

	_, ok = l.ShouldLoop()
	assert.False(t, ok)
}

func TestLoopInfiniteNeverExhausts(t *testing.T) {
	l := tracks.LoopInfinite()
	for i := 0; i < 100; i++ {
		var ok bool
		l, ok = l.ShouldLoop()
		require.True(t, ok)
	}
}

func TestNewTrackDefaults(t *testing.T) {
	in := input.NewLazy(input.NewMemory(nil, "pcm"))
	tr, h := tracks.New(in)

	assert.Equal(t, tracks.Play, tr.Mode)
	assert.Equal(t, float32(1.0), tr.Volume)
	assert.Equal(t, tracks.Uninitialised, tr.Ready)
	assert.Equal(t, tr.UUID, h.UUID())

	st := tr.State()
	assert.Equal(t, tr.UUID, st.UUID)
	assert.Equal(t, time.Duration(0), st.Position)
}

func TestHandleCommandsArriveInOrder(t *testing.T) {
	in := input.NewLazy(input.NewMemory(nil, "pcm"))
	tr, h := tracks.New(in)

	require.NoError(t, h.Pause())
	require.NoError(t, h.SetVolume(0.25))
	require.NoError(t, h.Play())

	cmd, ok := tr.Commands.TryRecv()
	require.True(t, ok)
	assert.Equal(t, tracks.SetMode{Mode: tracks.Pause}, cmd)

	cmd, ok = tr.Commands.TryRecv()
	require.True(t, ok)
	assert.Equal(t, tracks.SetVolume{Volume: 0.25}, cmd)

	cmd, ok = tr.Commands.TryRecv()
	require.True(t, ok)
	assert.Equal(t, tracks.SetMode{Mode: tracks.Play}, cmd)
}

func TestHandleRejectsCoreEvents(t *testing.T) {
	in := input.NewLazy(input.NewMemory(nil, "pcm"))
	_, h := tracks.New(in)

	err := h.AddEvent(tracks.OnCore(tracks.CoreVoiceTick), tracks.HandlerFunc(func(*tracks.Context) bool {
		return false
	}))
	assert.ErrorIs(t, err, tracks.ErrGlobalEventOnTrack)
}

func TestHandleAfterMixerDeath(t *testing.T) {
	in := input.NewLazy(input.NewMemory(nil, "pcm"))
	tr, h := tracks.New(in)
	tr.Commands.Close()

	assert.ErrorIs(t, h.Stop(), tracks.ErrFinished)
	_, err := h.GetInfo()
	assert.ErrorIs(t, err, tracks.ErrFinished)
}

func TestEventStoreFireAndDetach(t *testing.T) {
	store := tracks.NewEventStore()
	now := time.Now()

	var fired int
	store.Add(now, tracks.OnTrack(tracks.TrackLoop), tracks.HandlerFunc(func(*tracks.Context) bool {
		fired++
		return fired >= 2 // detach on second firing
	}))

	ctx := &tracks.Context{}
	store.FireTrack(tracks.TrackLoop, ctx)
	store.FireTrack(tracks.TrackLoop, ctx)
	store.FireTrack(tracks.TrackLoop, ctx)
	assert.Equal(t, 2, fired)
}

func TestEventStorePeriodicRearms(t *testing.T) {
	store := tracks.NewEventStore()
	base := time.Now()

	var fired int
	store.Add(base, tracks.Periodic(20*time.Millisecond, 0), tracks.HandlerFunc(func(*tracks.Context) bool {
		fired++
		return false
	}))

	ctx := &tracks.Context{}
	store.Tick(base.Add(10*time.Millisecond), ctx)
	assert.Equal(t, 0, fired)

	store.Tick(base.Add(25*time.Millisecond), ctx)
	assert.Equal(t, 1, fired)

	store.Tick(base.Add(65*time.Millisecond), ctx)
	assert.Equal(t, 3, fired, "missed periods catch up")
}

func TestEventStoreDelayedFiresOnce(t *testing.T) {
	store := tracks.NewEventStore()
	base := time.Now()

	var fired int
	store.Add(base, tracks.Delayed(50*time.Millisecond), tracks.HandlerFunc(func(*tracks.Context) bool {
		fired++
		return false
	}))

	ctx := &tracks.Context{}
	store.Tick(base.Add(100*time.Millisecond), ctx)
	store.Tick(base.Add(200*time.Millisecond), ctx)
	assert.Equal(t, 1, fired)
}

func TestDispatcherTrackLifecycle(t *testing.T) {
	d := tracks.NewDispatcher(zap.NewNop())
	defer d.Close()

	in := input.NewLazy(input.NewMemory(nil, "pcm"))
	tr, h := tracks.New(in)
	require.NoError(t, d.NewTrack(tr.State(), h))

	var plays atomic.Int32
	require.NoError(t, d.AddTrack(tr.UUID, tracks.OnTrack(tracks.TrackPlay), tracks.HandlerFunc(func(ctx *tracks.Context) bool {
		if assert.Len(t, ctx.Tracks, 1) {
			assert.Equal(t, tr.UUID, ctx.Tracks[0].UUID)
		}
		plays.Add(1)
		return false
	})))

	require.NoError(t, d.TrackStateChange(tr.UUID, tracks.TrackPlay, tr.State()))
	require.Eventually(t, func() bool { return plays.Load() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestDispatcherGlobalSeesTrackEvents(t *testing.T) {
	d := tracks.NewDispatcher(zap.NewNop())
	defer d.Close()

	var ends atomic.Int32
	require.NoError(t, d.AddGlobal(tracks.OnTrack(tracks.TrackEnd), tracks.HandlerFunc(func(*tracks.Context) bool {
		ends.Add(1)
		return false
	})))

	in := input.NewLazy(input.NewMemory(nil, "pcm"))
	tr, h := tracks.New(in)
	require.NoError(t, d.NewTrack(tr.State(), h))
	require.NoError(t, d.TrackStateChange(tr.UUID, tracks.TrackEnd, tr.State()))

	require.Eventually(t, func() bool { return ends.Load() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestDispatcherClosedReportsError(t *testing.T) {
	d := tracks.NewDispatcher(zap.NewNop())
	d.Close()
	err := d.Tick(nil)
	assert.Error(t, err)
}
