// Package control implements the ControlRouter capability: a bounded,
// single-writer queue of client->device control frames with a
// never-drop-essential back-pressure policy, generalized from the
// teacher's writeFull/controlMu-guarded direct write
// (scrcpy_session.go) into an explicit queue so a slow device control
// socket can't block the client's WebSocket read loop.
package control

import (
	"sync"

	"github.com/simba-remote/gateway/internal/logging"
	"github.com/simba-remote/gateway/internal/metrics"
	"github.com/simba-remote/gateway/internal/wire"
)

// DefaultQueueSize is the bounded channel depth from spec.md §4.5.
const DefaultQueueSize = 1024

// Writer is the subset of Session a Router needs to deliver frames.
type Writer interface {
	WriteControl(b []byte) error
}

type queuedFrame struct {
	data      []byte
	essential bool
}

// Router serializes writes to one session's device control socket. Enqueue
// is safe to call from any goroutine (the client's WebSocket read loop);
// Run must be started exactly once and drives the single writer.
type Router struct {
	writer Writer
	log    *logging.Logger

	onDraining func(error) // invoked once, on the first write error

	mu       sync.Mutex
	queue    []queuedFrame
	signal   chan struct{}
	closed   bool
	notified bool
}

// New builds a Router. onDraining is called at most once, with the write
// error that ended the router; it should transition the owning session to
// Draining.
func New(writer Writer, log *logging.Logger, onDraining func(error)) *Router {
	return &Router{
		writer:     writer,
		log:        log,
		onDraining: onDraining,
		signal:     make(chan struct{}, 1),
	}
}

// Enqueue admits a raw control frame. Malformed frames (no payload) are
// dropped with a log line. When the queue is full, the oldest non-essential
// frame is evicted to make room; if every queued frame is essential, the
// incoming frame is dropped instead (essential frames already queued take
// priority over a new one).
func (r *Router) Enqueue(frame []byte) {
	if !wire.ValidateControlFrame(frame) {
		r.log.Error("control: dropped malformed frame (len=%d)", len(frame))
		return
	}
	msgType := frame[0]
	var action uint8
	if len(frame) > 1 {
		action = frame[1]
	}
	essential := wire.IsEssential(msgType, action)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if len(r.queue) >= DefaultQueueSize {
		if idx := firstNonEssential(r.queue); idx >= 0 {
			r.queue = append(r.queue[:idx], r.queue[idx+1:]...)
			metrics.CtrlFramesDropped.Add(1)
		} else if !essential {
			r.mu.Unlock()
			metrics.CtrlFramesDropped.Add(1)
			return
		} else {
			r.mu.Unlock()
			metrics.CtrlFramesDropped.Add(1)
			r.log.Error("control: queue saturated with essential frames, dropping newest")
			return
		}
	}
	r.queue = append(r.queue, queuedFrame{data: frame, essential: essential})
	notify := !r.notified
	r.notified = true
	r.mu.Unlock()

	if notify {
		select {
		case r.signal <- struct{}{}:
		default:
		}
	}
}

func firstNonEssential(q []queuedFrame) int {
	for i, f := range q {
		if !f.essential {
			return i
		}
	}
	return -1
}

func (r *Router) dequeueAll() []queuedFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.queue
	r.queue = nil
	r.notified = false
	return q
}

// Run drains the queue until Close is called or a write fails. It blocks
// the calling goroutine; callers should run it via safego.Go.
func (r *Router) Run() {
	for {
		<-r.signal
		for _, f := range r.dequeueAll() {
			if r.isClosed() {
				return
			}
			if err := r.writer.WriteControl(f.data); err != nil {
				metrics.CtrlWritesErr.Add(1)
				r.fail(err)
				return
			}
			metrics.CtrlWritesOK.Add(1)
		}
		if r.isClosed() {
			return
		}
	}
}

func (r *Router) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Router) fail(err error) {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	if r.onDraining != nil {
		r.onDraining(err)
	}
}

// Close stops the router without treating it as a write failure (used on
// normal session teardown).
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
}
