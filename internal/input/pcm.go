package input

import (
	"encoding/binary"
	"io"
	"math"
	"time"
)

// rawPCMReader frames a headerless PCM byte stream into 20 ms packets.
type rawPCMReader struct {
	src   *BufferedSource
	info  TrackInfo
	start int64
	pkt   Packet
	buf   []byte
}

// ProbeRawPCM accepts streams whose hint names a raw sample format. There is
// nothing to sniff, so the hint is authoritative: "pcm"/"s16le" for 16-bit,
// "f32"/"f32le" for float. Rate and channels default to 48 kHz stereo.
func ProbeRawPCM(hint Hint, src *BufferedSource) (FormatReader, error) {
	var codec CodecID
	switch hint.Extension {
	case "pcm", "s16le", "raw":
		codec = CodecPCMS16LE
	case "f32", "f32le":
		codec = CodecPCMF32LE
	default:
		return nil, ErrUnknownFormat
	}
	return newRawPCMReader(src, TrackInfo{Codec: codec, SampleRate: 48000, Channels: 2}), nil
}

func newRawPCMReader(src *BufferedSource, info TrackInfo) *rawPCMReader {
	return &rawPCMReader{src: src, info: info, start: src.Pos()}
}

func (r *rawPCMReader) bytesPerSample() int {
	if r.info.Codec == CodecPCMF32LE {
		return 4
	}
	return 2
}

func (r *rawPCMReader) Tracks() []TrackInfo { return []TrackInfo{r.info} }
func (r *rawPCMReader) DefaultTrack() int   { return 0 }

func (r *rawPCMReader) NextPacket() (*Packet, error) {
	frames := r.info.SampleRate / 50
	want := frames * r.info.Channels * r.bytesPerSample()
	if cap(r.buf) < want {
		r.buf = make([]byte, want)
	}
	n, err := io.ReadFull(r.src, r.buf[:want])
	if n == 0 {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, err
	}
	stride := r.info.Channels * r.bytesPerSample()
	n -= n % stride
	if n == 0 {
		return nil, io.EOF
	}
	r.pkt = Packet{Track: 0, Data: r.buf[:n], SampleCount: n / stride}
	return &r.pkt, nil
}

func (r *rawPCMReader) Seekable() bool { return r.src.Seekable() }

func (r *rawPCMReader) Seek(target time.Duration) (time.Duration, error) {
	if !r.src.Seekable() {
		return 0, ErrSeekUnsupported
	}
	frame := int64(target.Seconds() * float64(r.info.SampleRate))
	off := r.start + frame*int64(r.info.Channels*r.bytesPerSample())
	if err := r.src.SeekTo(off); err != nil {
		return 0, err
	}
	return time.Duration(frame) * time.Second / time.Duration(r.info.SampleRate), nil
}

// pcmDecoder converts raw sample bytes into planar float frames.
type pcmDecoder struct {
	info  TrackInfo
	frame Frame
}

func newPCMDecoder(info TrackInfo) (Decoder, error) {
	return &pcmDecoder{info: info}, nil
}

func (d *pcmDecoder) Decode(p *Packet) (*Frame, error) {
	ch := d.info.Channels
	bps := 2
	if d.info.Codec == CodecPCMF32LE {
		bps = 4
	}
	frames := len(p.Data) / (ch * bps)

	if len(d.frame.Planes) != ch {
		d.frame.Planes = make([][]float32, ch)
	}
	for c := range d.frame.Planes {
		if cap(d.frame.Planes[c]) < frames {
			d.frame.Planes[c] = make([]float32, frames)
		}
		d.frame.Planes[c] = d.frame.Planes[c][:frames]
	}

	for i := 0; i < frames; i++ {
		for c := 0; c < ch; c++ {
			off := (i*ch + c) * bps
			if bps == 4 {
				bits := binary.LittleEndian.Uint32(p.Data[off:])
				d.frame.Planes[c][i] = math.Float32frombits(bits)
			} else {
				s := int16(binary.LittleEndian.Uint16(p.Data[off:]))
				d.frame.Planes[c][i] = float32(s) / 32768
			}
		}
	}
	d.frame.Rate = d.info.SampleRate
	return &d.frame, nil
}

func (d *pcmDecoder) Reset() {}
