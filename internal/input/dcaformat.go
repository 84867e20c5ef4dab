package input

import (
	"io"
	"time"

	"github.com/Raikerian/go-discord-voice/pkg/audio"
	"github.com/Raikerian/go-discord-voice/pkg/dca"
)

// dcaReader adapts the DCA1 container to the format layer. Frames are Opus,
// so parsed DCA inputs qualify for the passthrough fast path.
type dcaReader struct {
	src   *BufferedSource
	inner *dca.Reader
	info  TrackInfo
	start int64
	pos   time.Duration
	pkt   Packet
}

// ProbeDCA recognizes the "DCA1" magic.
func ProbeDCA(_ Hint, src *BufferedSource) (FormatReader, error) {
	head, err := src.Peek(4)
	if err != nil || [4]byte(head) != dca.Magic {
		return nil, ErrUnknownFormat
	}

	start := src.Pos()
	inner, err := dca.NewReader(src)
	if err != nil {
		return nil, err
	}

	meta := inner.Metadata()
	info := TrackInfo{Codec: CodecOpus, SampleRate: audio.SampleRate, Channels: 2}
	if meta.Opus.SampleRate > 0 {
		info.SampleRate = meta.Opus.SampleRate
	}
	if meta.Opus.Channels > 0 {
		info.Channels = meta.Opus.Channels
	}
	return &dcaReader{src: src, inner: inner, info: info, start: start}, nil
}

func (d *dcaReader) Tracks() []TrackInfo { return []TrackInfo{d.info} }
func (d *dcaReader) DefaultTrack() int   { return 0 }

// Metadata surfaces the container's JSON header as aux metadata.
func (d *dcaReader) Metadata() *Metadata {
	meta := d.inner.Metadata()
	return &Metadata{
		Title:      meta.Info.Title,
		Artist:     meta.Info.Artist,
		SampleRate: d.info.SampleRate,
		Channels:   d.info.Channels,
		SourceURL:  meta.Origin.URL,
	}
}

// frameDuration is the media time of one stored frame.
func (d *dcaReader) frameDuration() time.Duration {
	return time.Duration(d.inner.FrameSize()) * time.Second / time.Duration(d.info.SampleRate)
}

func (d *dcaReader) NextPacket() (*Packet, error) {
	frame, err := d.inner.Next()
	if err != nil {
		return nil, err
	}
	d.pos += d.frameDuration()
	d.pkt = Packet{Track: 0, Data: frame, SampleCount: d.inner.FrameSize()}
	return &d.pkt, nil
}

func (d *dcaReader) Seekable() bool { return d.src.Seekable() }

// Seek rewinds to the container start and skips frames forward. DCA has no
// index, so this is the only way to reach an arbitrary position.
func (d *dcaReader) Seek(target time.Duration) (time.Duration, error) {
	if !d.src.Seekable() {
		return 0, ErrSeekUnsupported
	}
	if err := d.src.SeekTo(d.start); err != nil {
		return 0, err
	}
	inner, err := dca.NewReader(d.src)
	if err != nil {
		return 0, err
	}
	d.inner = inner
	d.pos = 0
	step := d.frameDuration()
	for d.pos+step <= target {
		if _, err := d.inner.Next(); err != nil {
			if err == io.EOF {
				break
			}
			return 0, err
		}
		d.pos += step
	}
	return d.pos, nil
}
