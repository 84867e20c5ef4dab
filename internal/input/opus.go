package input

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/Raikerian/go-discord-voice/pkg/audio"
)

// maxOpusFrame is the largest Opus frame duration in samples at 48 kHz
// (120 ms), used when a packet does not declare its sample count.
const maxOpusFrame = 5760

// opusDecoder decodes Opus packets to planar float32 at 48 kHz using gopus.
type opusDecoder struct {
	dec      *gopus.Decoder
	channels int
	frame    Frame
}

func newOpusDecoder(info TrackInfo) (Decoder, error) {
	channels := info.Channels
	if channels == 0 {
		channels = 2
	}
	dec, err := gopus.NewDecoder(audio.SampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("creating opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec, channels: channels}, nil
}

func (d *opusDecoder) Decode(p *Packet) (*Frame, error) {
	frameSize := p.SampleCount
	if frameSize <= 0 {
		frameSize = maxOpusFrame
	}
	pcm, err := d.dec.Decode(p.Data, frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	d.frame.Planes = audio.Deinterleave(pcm, d.channels)
	d.frame.Rate = audio.SampleRate
	return &d.frame, nil
}

func (d *opusDecoder) Reset() {
	// gopus exposes no state reset, so rebuild the decoder.
	if dec, err := gopus.NewDecoder(audio.SampleRate, d.channels); err == nil {
		d.dec = dec
	}
}
