package input

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// wavReader demuxes RIFF/WAVE files carrying integer or float PCM.
type wavReader struct {
	pcm *rawPCMReader
}

// ProbeWAV recognizes RIFF/WAVE streams, parses the fmt chunk, and frames the
// data chunk as raw PCM.
func ProbeWAV(_ Hint, src *BufferedSource) (FormatReader, error) {
	head, err := src.Peek(12)
	if err != nil || string(head[0:4]) != "RIFF" || string(head[8:12]) != "WAVE" {
		return nil, ErrUnknownFormat
	}
	if _, err := src.Discard(12); err != nil {
		return nil, err
	}

	var info TrackInfo
	var dataLen uint32
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(src, chunk[:]); err != nil {
			return nil, fmt.Errorf("wav: reading chunk header: %w", err)
		}
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch string(chunk[0:4]) {
		case "fmt ":
			fmtBody := make([]byte, size)
			if _, err := io.ReadFull(src, fmtBody); err != nil {
				return nil, fmt.Errorf("wav: reading fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(fmtBody[0:2])
			channels := int(binary.LittleEndian.Uint16(fmtBody[2:4]))
			rate := int(binary.LittleEndian.Uint32(fmtBody[4:8]))
			bits := binary.LittleEndian.Uint16(fmtBody[14:16])

			switch {
			case format == 1 && bits == 16:
				info = TrackInfo{Codec: CodecPCMS16LE, SampleRate: rate, Channels: channels}
			case format == 3 && bits == 32:
				info = TrackInfo{Codec: CodecPCMF32LE, SampleRate: rate, Channels: channels}
			default:
				return nil, fmt.Errorf("wav: unsupported sample format %d/%d-bit", format, bits)
			}
		case "data":
			dataLen = size
			bps := 2
			if info.Codec == CodecPCMF32LE {
				bps = 4
			}
			if info.SampleRate > 0 && dataLen > 0 {
				frames := int64(dataLen) / int64(info.Channels*bps)
				info.Duration = time.Duration(frames) * time.Second / time.Duration(info.SampleRate)
			}
			return &wavReader{pcm: newRawPCMReader(src, info)}, nil
		default:
			if _, err := src.Discard(int(size)); err != nil {
				return nil, fmt.Errorf("wav: skipping chunk: %w", err)
			}
		}
	}
}

func (w *wavReader) Tracks() []TrackInfo              { return w.pcm.Tracks() }
func (w *wavReader) DefaultTrack() int                { return 0 }
func (w *wavReader) NextPacket() (*Packet, error)     { return w.pcm.NextPacket() }
func (w *wavReader) Seekable() bool                   { return w.pcm.Seekable() }
func (w *wavReader) Seek(t time.Duration) (time.Duration, error) { return w.pcm.Seek(t) }
