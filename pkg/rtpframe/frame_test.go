package rtpframe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Raikerian/go-discord-voice/pkg/rtpframe"
)

func TestHeaderLayout(t *testing.T) {
	h := rtpframe.Header{Sequence: 0x0102, Timestamp: 0x03040506, SSRC: 0x0708090A}
	var b [rtpframe.HeaderSize]byte
	h.WriteTo(b[:])

	assert.Equal(t, byte(0x80), b[0], "version 2, no padding, no extension")
	assert.Equal(t, byte(120), b[1], "dynamic opus payload type")
	assert.Equal(t, []byte{0x01, 0x02}, b[2:4])
	assert.Equal(t, []byte{0x03, 0x04, 0x05, 0x06}, b[4:8])
	assert.Equal(t, []byte{0x07, 0x08, 0x09, 0x0A}, b[8:12])
}

func TestAdvanceStepsAndWraps(t *testing.T) {
	h := rtpframe.Header{Sequence: 0xFFFF, Timestamp: 0xFFFFFF00}
	h.Advance(960)
	assert.Equal(t, uint16(0), h.Sequence)
	var step uint32 = 960
	assert.Equal(t, uint32(0xFFFFFF00)+step, h.Timestamp)
}

func TestAdvanceSequencePerPacket(t *testing.T) {
	h := rtpframe.NewHeader(42)
	seq0, ts0 := h.Sequence, h.Timestamp
	for i := 0; i < 50; i++ {
		h.Advance(960)
	}
	assert.Equal(t, seq0+50, h.Sequence)
	assert.Equal(t, ts0+50*960, h.Timestamp)
}

func TestAdvanceByMediaTime(t *testing.T) {
	h := rtpframe.Header{Timestamp: 1000}
	h.AdvanceBy(time.Second, 48000)
	assert.Equal(t, uint32(1000+48000), h.Timestamp)

	h.AdvanceBy(20*time.Millisecond, 48000)
	assert.Equal(t, uint32(1000+48000+960), h.Timestamp)
}

func TestAdvanceInPlaceMatchesParse(t *testing.T) {
	h := rtpframe.Header{Sequence: 7, Timestamp: 1234, SSRC: 99}
	var b [rtpframe.HeaderSize]byte
	h.WriteTo(b[:])

	rtpframe.AdvanceInPlace(b[:], 960)
	got := rtpframe.Parse(b[:])
	assert.Equal(t, uint16(8), got.Sequence)
	assert.Equal(t, uint32(1234+960), got.Timestamp)
	assert.Equal(t, uint32(99), got.SSRC)
}

func TestNewHeaderRandomizesCounters(t *testing.T) {
	a := rtpframe.NewHeader(1)
	b := rtpframe.NewHeader(1)
	assert.True(t, a.Sequence != b.Sequence || a.Timestamp != b.Timestamp,
		"two fresh headers should not share both counters")
}
