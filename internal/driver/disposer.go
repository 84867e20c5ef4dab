package driver

import (
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-voice/internal/queue"
)

// Disposer is a long-lived goroutine that takes ownership of values whose
// release may block (decoders, file handles, network readers) so that audio
// workers only ever pay for a queue send.
type Disposer struct {
	logger *zap.Logger
	inbox  *queue.Queue[any]
}

var (
	defaultDisposer     *Disposer
	defaultDisposerOnce sync.Once
)

// DefaultDisposer returns the process-wide disposer.
func DefaultDisposer() *Disposer {
	defaultDisposerOnce.Do(func() {
		defaultDisposer = NewDisposer(zap.NewNop())
	})
	return defaultDisposer
}

// NewDisposer starts a disposer thread.
func NewDisposer(logger *zap.Logger) *Disposer {
	d := &Disposer{logger: logger, inbox: queue.New[any]()}
	go d.run()
	return d
}

func (d *Disposer) run() {
	for {
		item, ok := d.inbox.Recv()
		if !ok {
			return
		}
		if closer, isCloser := item.(io.Closer); isCloser {
			if err := closer.Close(); err != nil {
				d.logger.Debug("Disposal close failed", zap.Error(err))
			}
		}
		// Dropping the reference here is the point: the garbage collector
		// does the rest off the audio path.
	}
}

// Dispose hands a value to the disposer. Safe to call from the hot path.
func (d *Disposer) Dispose(v any) {
	if v == nil {
		return
	}
	if err := d.inbox.Send(v); err != nil {
		// Disposer gone; release inline as a last resort.
		if closer, ok := v.(io.Closer); ok {
			_ = closer.Close()
		}
	}
}

// Close stops the disposer.
func (d *Disposer) Close() { d.inbox.Close() }
