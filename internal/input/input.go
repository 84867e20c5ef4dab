// Package input models audio sources for the driver: lazily created or live
// streams, the Raw -> Wrapped -> Parsed promotion ladder, codec and format
// registries, and the async-to-sync byte stream adapter.
package input

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSeekUnsupported is returned when a source cannot seek.
	ErrSeekUnsupported = errors.New("input does not support seeking")
	// ErrUnknownFormat is returned when no registered probe recognizes a
	// stream.
	ErrUnknownFormat = errors.New("unknown container format")
	// ErrStreamNotLive is returned when an operation requires a created
	// stream but the input is still lazy.
	ErrStreamNotLive = errors.New("input has not been created yet")
)

// RetryIn signals that source creation was rate limited and should be retried
// after the given delay.
type RetryIn struct {
	After time.Duration
}

func (r *RetryIn) Error() string {
	return "source asked for retry in " + r.After.String()
}

// Input is an audio source in one of two states: Lazy holds only the recipe
// to create a stream; Live holds a created stream (plus the recipe, when one
// exists, for later re-creation). A live stream climbs the one-way promotion
// ladder Raw -> Wrapped -> Parsed.
type Input struct {
	compose Compose
	live    *LiveInput
}

// NewLazy wraps a recipe whose stream is created on first use.
func NewLazy(c Compose) *Input {
	return &Input{compose: c}
}

// NewLive wraps an already created stream.
func NewLive(stream *AudioStream, c Compose) *Input {
	return &Input{compose: c, live: &LiveInput{raw: stream}}
}

// IsLive reports whether the stream has been created.
func (i *Input) IsLive() bool { return i.live != nil }

// IsPlayable reports whether the input has been fully parsed.
func (i *Input) IsPlayable() bool { return i.live != nil && i.live.parsed != nil }

// Compose returns the creation recipe, which may be nil for live-only inputs.
func (i *Input) Compose() Compose { return i.compose }

// Live returns the live half of the input, or ErrStreamNotLive.
func (i *Input) Live() (*LiveInput, error) {
	if i.live == nil {
		return nil, ErrStreamNotLive
	}
	return i.live, nil
}

// MakeLive creates the stream from the recipe if the input is still lazy.
// Lazy composes that declare ShouldCreateAsync are awaited on the calling
// goroutine; the driver dispatches this whole call onto a blocking worker.
func (i *Input) MakeLive(ctx context.Context) error {
	if i.live != nil {
		return nil
	}
	var (
		stream *AudioStream
		err    error
	)
	if i.compose.ShouldCreateAsync() {
		stream, err = i.compose.CreateAsync(ctx)
	} else {
		stream, err = i.compose.Create()
	}
	if err != nil {
		return err
	}
	i.live = &LiveInput{raw: stream}
	return nil
}

// MakePlayable creates the stream if needed, then probes and parses it with
// the given registries. It is the full Lazy -> Parsed promotion.
func (i *Input) MakePlayable(ctx context.Context, codecs *CodecRegistry, formats *FormatRegistry) error {
	if err := i.MakeLive(ctx); err != nil {
		return err
	}
	return i.live.promote(codecs, formats)
}

// Parsed returns the parsed stage of a playable input.
func (i *Input) Parsed() (*Parsed, error) {
	if i.live == nil || i.live.parsed == nil {
		return nil, ErrStreamNotLive
	}
	return i.live.parsed, nil
}

// Seekable reports whether a seek request could succeed. Lazy inputs are
// considered seekable because they can always be re-created from the recipe.
func (i *Input) Seekable() bool {
	if i.live == nil {
		return i.compose != nil
	}
	if i.live.parsed != nil {
		return i.live.parsed.Seekable()
	}
	return i.live.raw.Source.Seekable()
}

// LiveInput is a created stream and its position on the promotion ladder.
type LiveInput struct {
	raw     *AudioStream
	wrapped *BufferedSource
	parsed  *Parsed
}

// promote climbs the remaining ladder steps: wrap the raw source with a
// probe-friendly buffered reader, then probe the container and build the
// decoder for the chosen track.
func (l *LiveInput) promote(codecs *CodecRegistry, formats *FormatRegistry) error {
	if l.parsed != nil {
		return nil
	}
	if l.wrapped == nil {
		l.wrapped = NewBufferedSource(l.raw.Source)
	}

	reader, err := formats.Probe(l.raw.Hint, l.wrapped)
	if err != nil {
		return err
	}

	trackID := reader.DefaultTrack()
	info := reader.Tracks()[trackID]

	dec, err := codecs.New(info)
	if err != nil {
		return err
	}

	l.parsed = &Parsed{
		Reader:  reader,
		Decoder: dec,
		TrackID: trackID,
		Info:    info,
	}
	if described, ok := reader.(interface{ Metadata() *Metadata }); ok {
		l.parsed.Meta = described.Metadata()
	}
	return nil
}
