package dca_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raikerian/go-discord-voice/pkg/dca"
)

func buildDCA(t *testing.T, meta string, frames ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(dca.Magic[:])
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(len(meta))))
	buf.WriteString(meta)
	for _, frame := range frames {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, int16(len(frame))))
		buf.Write(frame)
	}
	return buf.Bytes()
}

const testMeta = `{"dca":{"version":1,"tool":{"name":"dca-rs","version":"0.1"}},` +
	`"opus":{"mode":"music","sample_rate":48000,"frame_size":960,"channels":2},` +
	`"info":{"title":"test tone","artist":"nobody"}}`

func TestReadsMetadataAndFrames(t *testing.T) {
	frames := [][]byte{{0x01, 0x02, 0x03}, {0x04}, {0x05, 0x06}}
	stream := buildDCA(t, testMeta, frames...)

	r, err := dca.NewReader(bytes.NewReader(stream))
	require.NoError(t, err)

	meta := r.Metadata()
	assert.Equal(t, 1, meta.DCA.Version)
	assert.Equal(t, 48000, meta.Opus.SampleRate)
	assert.Equal(t, 960, meta.Opus.FrameSize)
	assert.Equal(t, 2, meta.Opus.Channels)
	assert.Equal(t, "test tone", meta.Info.Title)
	assert.Equal(t, 960, r.FrameSize())

	for _, want := range frames {
		got, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestBadMagic(t *testing.T) {
	stream := buildDCA(t, testMeta)
	stream[0] = 'X'
	_, err := dca.NewReader(bytes.NewReader(stream))
	assert.ErrorIs(t, err, dca.ErrBadMagic)
}

func TestMetadataTooShort(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(dca.Magic[:])
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(1)))
	buf.WriteByte('{')
	_, err := dca.NewReader(bytes.NewReader(buf.Bytes()))
	assert.Error(t, err)
}

func TestNegativeFrameLength(t *testing.T) {
	stream := buildDCA(t, testMeta)
	var buf bytes.Buffer
	buf.Write(stream)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, int16(-5)))

	r, err := dca.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, dca.ErrInvalidFrame)
}

func TestTruncatedFrame(t *testing.T) {
	stream := buildDCA(t, testMeta, []byte{1, 2, 3})
	r, err := dca.NewReader(bytes.NewReader(stream[:len(stream)-1]))
	require.NoError(t, err)
	_, err = r.Next()
	assert.Error(t, err)
}

func TestFrameSizeDefault(t *testing.T) {
	stream := buildDCA(t, `{"dca":{"version":1}}`)
	r, err := dca.NewReader(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, 960, r.FrameSize())
}
