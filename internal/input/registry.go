package input

import (
	"fmt"
	"strings"
)

// DecoderFactory builds a decoder for a probed track.
type DecoderFactory func(info TrackInfo) (Decoder, error)

// CodecRegistry maps codec identifiers to decoder factories. Registries are
// built at initialisation and treated as read-only afterwards.
type CodecRegistry struct {
	factories map[CodecID]DecoderFactory
}

// NewCodecRegistry creates an empty registry.
func NewCodecRegistry() *CodecRegistry {
	return &CodecRegistry{factories: make(map[CodecID]DecoderFactory)}
}

// Register adds a factory for a codec, replacing any existing one.
func (r *CodecRegistry) Register(id CodecID, f DecoderFactory) {
	r.factories[id] = f
}

// New builds a decoder for the track, or fails for unknown codecs.
func (r *CodecRegistry) New(info TrackInfo) (Decoder, error) {
	f, ok := r.factories[info.Codec]
	if !ok {
		return nil, fmt.Errorf("no decoder registered for codec %s", info.Codec)
	}
	return f(info)
}

// ProbeFunc inspects a stream and returns a format reader, or
// ErrUnknownFormat to let the next probe try. Probes must only Peek, never
// consume, until they commit to the format.
type ProbeFunc func(hint Hint, src *BufferedSource) (FormatReader, error)

// FormatRegistry holds the ordered list of container probes.
type FormatRegistry struct {
	probes []ProbeFunc
}

// NewFormatRegistry creates an empty registry.
func NewFormatRegistry() *FormatRegistry {
	return &FormatRegistry{}
}

// Register appends a probe.
func (r *FormatRegistry) Register(p ProbeFunc) {
	r.probes = append(r.probes, p)
}

// Probe runs each registered probe in order until one recognizes the stream.
func (r *FormatRegistry) Probe(hint Hint, src *BufferedSource) (FormatReader, error) {
	hint.Extension = strings.ToLower(strings.TrimPrefix(hint.Extension, "."))
	for _, probe := range r.probes {
		reader, err := probe(hint, src)
		if err == ErrUnknownFormat {
			continue
		}
		if err != nil {
			return nil, err
		}
		return reader, nil
	}
	return nil, ErrUnknownFormat
}

// DefaultCodecs returns the stock codec registry: Opus plus the raw PCM
// sample formats.
func DefaultCodecs() *CodecRegistry {
	r := NewCodecRegistry()
	r.Register(CodecOpus, newOpusDecoder)
	r.Register(CodecPCMS16LE, newPCMDecoder)
	r.Register(CodecPCMF32LE, newPCMDecoder)
	return r
}

// DefaultFormats returns the stock format registry: DCA1, WAV, and the
// hint-driven raw PCM fallback.
func DefaultFormats() *FormatRegistry {
	r := NewFormatRegistry()
	r.Register(ProbeDCA)
	r.Register(ProbeWAV)
	r.Register(ProbeRawPCM)
	return r
}
