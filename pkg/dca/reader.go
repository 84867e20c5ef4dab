// Package dca reads the DCA1 container: a "DCA1" magic, a little-endian
// int32 metadata length, JSON metadata, then Opus frames each prefixed with
// a little-endian int16 length.
package dca

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
)

// Magic identifies a DCA1 stream.
var Magic = [4]byte{'D', 'C', 'A', '1'}

var (
	// ErrBadMagic is returned when the stream does not start with "DCA1".
	ErrBadMagic = errors.New("dca: bad magic")
	// ErrInvalidFrame is returned for a negative frame length marker.
	ErrInvalidFrame = errors.New("dca: invalid frame length")
)

// Metadata is the JSON header of a DCA1 file.
type Metadata struct {
	DCA struct {
		Version int `json:"version"`
		Tool    struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"tool"`
	} `json:"dca"`
	Opus struct {
		Mode       string `json:"mode"`
		SampleRate int    `json:"sample_rate"`
		FrameSize  int    `json:"frame_size"`
		AbrBitrate int    `json:"abr"`
		VBR        bool   `json:"vbr"`
		Channels   int    `json:"channels"`
	} `json:"opus"`
	Info struct {
		Title  string `json:"title"`
		Artist string `json:"artist"`
		Album  string `json:"album"`
		Genre  string `json:"genre"`
	} `json:"info"`
	Origin struct {
		Source   string `json:"source"`
		Bitrate  int    `json:"abr"`
		Channels int    `json:"channels"`
		Encoding string `json:"encoding"`
		URL      string `json:"url"`
	} `json:"origin"`
}

// Reader decodes frames from a DCA1 stream sequentially.
type Reader struct {
	src   io.Reader
	meta  Metadata
	frame []byte
}

// NewReader validates the magic, parses the metadata block, and positions the
// reader at the first frame.
func NewReader(src io.Reader) (*Reader, error) {
	var magic [4]byte
	if _, err := io.ReadFull(src, magic[:]); err != nil {
		return nil, fmt.Errorf("dca: reading magic: %w", err)
	}
	if magic != Magic {
		return nil, ErrBadMagic
	}

	var metaLen int32
	if err := binary.Read(src, binary.LittleEndian, &metaLen); err != nil {
		return nil, fmt.Errorf("dca: reading metadata length: %w", err)
	}
	if metaLen < 2 {
		return nil, fmt.Errorf("dca: metadata length %d too small", metaLen)
	}

	raw := make([]byte, metaLen)
	if _, err := io.ReadFull(src, raw); err != nil {
		return nil, fmt.Errorf("dca: reading metadata: %w", err)
	}

	r := &Reader{src: src}
	if err := sonic.Unmarshal(raw, &r.meta); err != nil {
		return nil, fmt.Errorf("dca: parsing metadata: %w", err)
	}
	return r, nil
}

// Metadata returns the parsed JSON header.
func (r *Reader) Metadata() Metadata { return r.meta }

// FrameSize returns the per-channel sample count of each frame, defaulting
// to 20 ms at 48 kHz when the header does not say.
func (r *Reader) FrameSize() int {
	if r.meta.Opus.FrameSize > 0 {
		return r.meta.Opus.FrameSize
	}
	return 960
}

// Next returns the next Opus frame. The returned slice is reused by
// subsequent calls. io.EOF signals a clean end of stream.
func (r *Reader) Next() ([]byte, error) {
	var frameLen int16
	if err := binary.Read(r.src, binary.LittleEndian, &frameLen); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	if frameLen < 0 {
		return nil, ErrInvalidFrame
	}

	if cap(r.frame) < int(frameLen) {
		r.frame = make([]byte, frameLen)
	}
	r.frame = r.frame[:frameLen]
	if _, err := io.ReadFull(r.src, r.frame); err != nil {
		return nil, fmt.Errorf("dca: reading frame: %w", err)
	}
	return r.frame, nil
}
