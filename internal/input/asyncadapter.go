package input

import (
	"errors"
	"io"
	"sync"
)

// Resumable is implemented by stream factories that can re-open their source
// at a byte offset, e.g. an HTTP source issuing a Range request. The adapter
// uses it both for transparent recovery from mid-stream read failures and to
// honour seeks.
type Resumable interface {
	// TryResume opens a fresh stream positioned at offset bytes.
	TryResume(offset int64) (io.ReadCloser, error)
}

// ErrAdapterClosed is returned from reads after Close.
var ErrAdapterClosed = errors.New("async adapter closed")

// defaultRingSize buffers ten seconds of typical web audio.
const defaultRingSize = 512 * 1024

// AsyncAdapter bridges a source whose natural interface is asynchronous into
// the synchronous decode path. A producer goroutine drains the source into a
// fixed ring buffer, blocking when the ring is full; the consumer side
// satisfies MediaSource against the ring, waiting on a signal when it runs
// dry. Seeks run a small sub-protocol: the consumer posts a request, the
// producer abandons its stream, the ring is dropped, and the source is
// re-opened at the target offset.
type AsyncAdapter struct {
	mu       sync.Mutex
	canRead  *sync.Cond
	canWrite *sync.Cond

	ring  []byte
	head  int // consumer index
	tail  int // producer index
	count int

	finished bool
	err      error
	closed   bool

	// seek sub-protocol state
	seekWant int64 // -1 when no seek pending
	seekErr  error
	seekGen  int

	consumerPos int64
	producerPos int64

	src     io.ReadCloser
	resume  Resumable
	seekRes bool
}

// NewAsyncAdapter starts the producer over src. resume may be nil, in which
// case read failures are fatal and the adapter is not seekable.
func NewAsyncAdapter(src io.ReadCloser, resume Resumable) *AsyncAdapter {
	a := &AsyncAdapter{
		ring:     make([]byte, defaultRingSize),
		src:      src,
		resume:   resume,
		seekWant: -1,
		seekRes:  resume != nil,
	}
	a.canRead = sync.NewCond(&a.mu)
	a.canWrite = sync.NewCond(&a.mu)
	go a.produce()
	return a
}

// produce is the async half: it reads the source into a scratch buffer and
// moves bytes into the ring as space opens up.
func (a *AsyncAdapter) produce() {
	scratch := make([]byte, 32*1024)
	for {
		a.mu.Lock()
		// A finished producer stays parked here to serve later seeks.
		for (a.count == len(a.ring) || a.finished) && a.seekWant < 0 && !a.closed {
			a.canWrite.Wait()
		}
		if a.closed {
			a.mu.Unlock()
			a.src.Close()
			return
		}
		if a.seekWant >= 0 {
			target := a.seekWant
			a.mu.Unlock()

			a.src.Close()
			stream, err := a.resume.TryResume(target)

			a.mu.Lock()
			// SeekClear: drop everything buffered before the jump.
			a.head, a.tail, a.count = 0, 0, 0
			a.finished = false
			a.err = nil
			if err != nil {
				a.seekErr = err
				a.finished = true
			} else {
				a.src = stream
				a.seekErr = nil
				a.producerPos = target
				a.consumerPos = target
			}
			a.seekWant = -1
			a.seekGen++
			a.canRead.Broadcast()
			a.mu.Unlock()
			continue
		}
		a.mu.Unlock()

		n, err := a.src.Read(scratch)

		a.mu.Lock()
		if n > 0 && a.seekWant < 0 {
			a.push(scratch[:n])
			a.producerPos += int64(n)
			a.canRead.Broadcast()
		}
		if err != nil && a.seekWant < 0 {
			if err != io.EOF && a.resume != nil {
				if stream, rerr := a.resume.TryResume(a.producerPos); rerr == nil {
					a.src.Close()
					a.src = stream
					a.mu.Unlock()
					continue
				}
			}
			a.finished = true
			if err != io.EOF {
				a.err = err
			}
			a.canRead.Broadcast()
			a.mu.Unlock()
			continue
		}
		a.mu.Unlock()
	}
}

// push moves bytes into the ring. Caller holds the lock and has ensured
// capacity for at least part of b; surplus bytes wait for the next loop.
func (a *AsyncAdapter) push(b []byte) {
	for len(b) > 0 {
		free := len(a.ring) - a.count
		if free == 0 {
			for a.count == len(a.ring) && !a.closed && a.seekWant < 0 {
				a.canWrite.Wait()
			}
			if a.closed || a.seekWant >= 0 {
				return
			}
			continue
		}
		n := free
		if n > len(b) {
			n = len(b)
		}
		first := copy(a.ring[a.tail:], b[:n])
		if first < n {
			copy(a.ring, b[first:n])
		}
		a.tail = (a.tail + n) % len(a.ring)
		a.count += n
		b = b[n:]
	}
}

// Read satisfies io.Reader on the sync side.
func (a *AsyncAdapter) Read(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.count == 0 {
		if a.closed {
			return 0, ErrAdapterClosed
		}
		if a.finished {
			if a.err != nil {
				return 0, a.err
			}
			return 0, io.EOF
		}
		a.canRead.Wait()
	}

	n := a.count
	if n > len(p) {
		n = len(p)
	}
	first := copy(p[:n], a.ring[a.head:min(a.head+n, len(a.ring))])
	if first < n {
		copy(p[first:n], a.ring)
	}
	a.head = (a.head + n) % len(a.ring)
	a.count -= n
	a.consumerPos += int64(n)
	a.canWrite.Broadcast()
	return n, nil
}

// Seekable reports whether the source can be re-opened at an offset.
func (a *AsyncAdapter) Seekable() bool { return a.seekRes }

// Seek implements io.Seeker for resumable sources. Only SeekStart and
// SeekCurrent are meaningful; the stream length is unknown.
func (a *AsyncAdapter) Seek(offset int64, whence int) (int64, error) {
	if !a.seekRes {
		return 0, ErrSeekUnsupported
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, ErrAdapterClosed
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = a.consumerPos + offset
	default:
		return 0, ErrSeekUnsupported
	}

	gen := a.seekGen
	a.seekWant = target
	a.canWrite.Broadcast()
	for a.seekGen == gen && !a.closed {
		a.canRead.Wait()
	}
	if a.closed {
		return 0, ErrAdapterClosed
	}
	if a.seekErr != nil {
		return 0, a.seekErr
	}
	return target, nil
}

// Close stops the producer and releases the source. The underlying stream is
// closed here as well so a producer blocked in Read wakes up.
func (a *AsyncAdapter) Close() error {
	a.mu.Lock()
	a.closed = true
	src := a.src
	a.canRead.Broadcast()
	a.canWrite.Broadcast()
	a.mu.Unlock()
	return src.Close()
}
