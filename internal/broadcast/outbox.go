// Package broadcast fans outbound event frames to sessions. Each session
// owns a bounded outbox drained by its connection's write pump; pushes
// never block, so one slow client cannot stall delivery to anyone else.
package broadcast

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Push after the outbox has been closed.
var ErrClosed = errors.New("broadcast: outbox closed")

// ErrFull is returned by Push when the recipient's buffer is exhausted;
// the router responds by disconnecting that recipient.
var ErrFull = errors.New("broadcast: outbox full")

// Outbox is a session's bounded outbound frame queue. Frames are
// delivered to the write pump in push order (per-recipient FIFO).
type Outbox struct {
	id     string
	frames chan []byte
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox with the given buffer size.
//
// Precondition: id must be non-empty.
func NewOutbox(id string, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Outbox{
		id:     id,
		frames: make(chan []byte, bufferSize),
	}
}

// ID returns the owning session id.
func (o *Outbox) ID() string {
	return o.id
}

// Push enqueues a frame without blocking.
//
// Postcondition: Returns nil, ErrClosed, or ErrFull. The frame is either
// enqueued in FIFO order or not at all.
func (o *Outbox) Push(frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	select {
	case o.frames <- frame:
		return nil
	default:
		return ErrFull
	}
}

// Frames returns the read-only frame channel drained by the write pump.
// The channel is closed when the outbox is closed.
func (o *Outbox) Frames() <-chan []byte {
	return o.frames
}

// Close closes the outbox. Idempotent; later pushes return ErrClosed.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.frames)
	}
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
