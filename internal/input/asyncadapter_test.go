package input_test

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raikerian/go-discord-voice/internal/input"
)

// flakySource yields data in small chunks and fails once at failAt bytes.
type flakySource struct {
	mu     sync.Mutex
	data   []byte
	pos    int
	failAt int
	failed bool
	closed bool
}

func (f *flakySource) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pos >= len(f.data) {
		return 0, io.EOF
	}
	if f.failAt > 0 && !f.failed && f.pos >= f.failAt {
		f.failed = true
		return 0, errors.New("connection reset")
	}
	n := 16
	if rest := len(f.data) - f.pos; n > rest {
		n = rest
	}
	copy(p, f.data[f.pos:f.pos+n])
	f.pos += n
	return n, nil
}

func (f *flakySource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// sliceResumer re-opens the shared backing data at an offset.
type sliceResumer struct {
	data []byte
}

func (r *sliceResumer) TryResume(offset int64) (io.ReadCloser, error) {
	return &flakySource{data: r.data[offset:]}, nil
}

func testPayload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 31)
	}
	return data
}

func TestAdapterDeliversAllBytes(t *testing.T) {
	data := testPayload(4096)
	a := input.NewAsyncAdapter(&flakySource{data: data}, nil)
	defer a.Close()

	got, err := io.ReadAll(a)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestAdapterResumesAfterReadFailure(t *testing.T) {
	data := testPayload(4096)
	src := &flakySource{data: data, failAt: 1000}
	a := input.NewAsyncAdapter(src, &sliceResumer{data: data})
	defer a.Close()

	got, err := io.ReadAll(a)
	require.NoError(t, err)
	assert.Equal(t, data, got, "resume must continue at the failure offset")
}

func TestAdapterFatalWithoutResumer(t *testing.T) {
	data := testPayload(4096)
	a := input.NewAsyncAdapter(&flakySource{data: data, failAt: 1000}, nil)
	defer a.Close()

	_, err := io.ReadAll(a)
	assert.Error(t, err)
}

func TestAdapterSeek(t *testing.T) {
	data := testPayload(8192)
	a := input.NewAsyncAdapter(&flakySource{data: data}, &sliceResumer{data: data})
	defer a.Close()

	head := make([]byte, 100)
	_, err := io.ReadFull(a, head)
	require.NoError(t, err)

	pos, err := a.Seek(4000, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), pos)

	rest, err := io.ReadAll(a)
	require.NoError(t, err)
	assert.Equal(t, data[4000:], rest)
}

func TestAdapterSeekCurrent(t *testing.T) {
	data := testPayload(8192)
	a := input.NewAsyncAdapter(&flakySource{data: data}, &sliceResumer{data: data})
	defer a.Close()

	head := make([]byte, 1000)
	_, err := io.ReadFull(a, head)
	require.NoError(t, err)

	pos, err := a.Seek(1000, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), pos)

	next := make([]byte, 10)
	_, err = io.ReadFull(a, next)
	require.NoError(t, err)
	assert.Equal(t, data[2000:2010], next)
}

func TestAdapterSeekUnsupportedWithoutResumer(t *testing.T) {
	a := input.NewAsyncAdapter(&flakySource{data: testPayload(64)}, nil)
	defer a.Close()

	assert.False(t, a.Seekable())
	_, err := a.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, input.ErrSeekUnsupported)
}

func TestAdapterCloseUnblocksReader(t *testing.T) {
	blocker := &flakySource{data: nil} // immediate EOF
	a := input.NewAsyncAdapter(blocker, nil)

	_, err := io.ReadAll(a)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = a.Read(make([]byte, 1))
	assert.ErrorIs(t, err, input.ErrAdapterClosed)
}
