package broadcast

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Router delivers pre-encoded frames to registered session outboxes in
// three modes: everyone, everyone-but-one, and one or two named sessions.
// Delivery to a single recipient preserves enqueue order; no ordering is
// guaranteed across recipients.
type Router struct {
	logger     *zap.Logger
	bufferSize int
	// onOverflow is invoked (on its own goroutine) for a session whose
	// outbox overflowed; the hub disconnects that session.
	onOverflow func(sessionID string)

	mu       sync.RWMutex
	outboxes map[string]*Outbox
}

// NewRouter creates an empty Router.
//
// Precondition: logger must be non-nil; onOverflow may be nil (overflow
// then only drops the frame).
func NewRouter(bufferSize int, logger *zap.Logger, onOverflow func(sessionID string)) *Router {
	return &Router{
		logger:     logger,
		bufferSize: bufferSize,
		onOverflow: onOverflow,
		outboxes:   make(map[string]*Outbox),
	}
}

// Register creates and tracks an outbox for the session, replacing and
// closing any previous one under the same id.
func (r *Router) Register(sessionID string) *Outbox {
	o := NewOutbox(sessionID, r.bufferSize)

	r.mu.Lock()
	prev := r.outboxes[sessionID]
	r.outboxes[sessionID] = o
	r.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return o
}

// Unregister removes and closes the session's outbox. Idempotent.
func (r *Router) Unregister(sessionID string) {
	r.mu.Lock()
	o := r.outboxes[sessionID]
	delete(r.outboxes, sessionID)
	r.mu.Unlock()

	if o != nil {
		o.Close()
	}
}

// Broadcast delivers the frame to every registered session.
func (r *Router) Broadcast(frame []byte) {
	for _, o := range r.snapshot() {
		r.push(o, frame)
	}
}

// BroadcastExcept delivers the frame to every session except one.
func (r *Router) BroadcastExcept(exceptID string, frame []byte) {
	for _, o := range r.snapshot() {
		if o.ID() == exceptID {
			continue
		}
		r.push(o, frame)
	}
}

// Send delivers the frame to a single session.
//
// Postcondition: Returns false if the session has no registered outbox.
func (r *Router) Send(sessionID string, frame []byte) bool {
	r.mu.RLock()
	o := r.outboxes[sessionID]
	r.mu.RUnlock()

	if o == nil {
		return false
	}
	r.push(o, frame)
	return true
}

// SendPair delivers an identical frame to two sessions (private chat:
// sender and recipient).
func (r *Router) SendPair(a, b string, frame []byte) {
	r.Send(a, frame)
	if b != a {
		r.Send(b, frame)
	}
}

// Registered reports whether the session currently has an outbox.
func (r *Router) Registered(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.outboxes[sessionID]
	return ok
}

func (r *Router) snapshot() []*Outbox {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Outbox, 0, len(r.outboxes))
	for _, o := range r.outboxes {
		out = append(out, o)
	}
	return out
}

func (r *Router) push(o *Outbox, frame []byte) {
	err := o.Push(frame)
	switch {
	case err == nil:
		return
	case errors.Is(err, ErrFull):
		r.logger.Warn("outbox overflow, disconnecting slow session",
			zap.String("session", o.ID()),
		)
		if r.onOverflow != nil {
			go r.onOverflow(o.ID())
		}
	case errors.Is(err, ErrClosed):
		// Session is going away; the departure broadcast races its
		// teardown. Nothing to do.
	}
}
