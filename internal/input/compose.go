package input

import (
	"context"
	"errors"
	"time"
)

// ErrNoMetadata is returned by composes that cannot describe their source.
var ErrNoMetadata = errors.New("no metadata available for this source")

// Compose is the recipe for creating an audio stream. Implementations declare
// whether creation must happen on the async runtime (network sources) or may
// be dispatched to a blocking worker (local files).
type Compose interface {
	// Create builds the stream synchronously. Called on a blocking worker.
	Create() (*AudioStream, error)

	// CreateAsync builds the stream using async I/O.
	CreateAsync(ctx context.Context) (*AudioStream, error)

	// ShouldCreateAsync picks which of the two creation paths is used.
	ShouldCreateAsync() bool

	// AuxMetadata describes the source without creating it, when possible.
	AuxMetadata() (*Metadata, error)
}

// AudioStream is a created but not yet parsed source.
type AudioStream struct {
	Source MediaSource
	Hint   Hint
}

// Hint carries out-of-band format information used to order probes.
type Hint struct {
	Extension string
	MimeType  string
}

// Metadata describes an audio source. Fields are zero when unknown.
type Metadata struct {
	Title      string
	Artist     string
	Duration   time.Duration
	SampleRate int
	Channels   int
	StartTime  time.Duration
	SourceURL  string
}
