package gateway

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/simba-remote/gateway/internal/control"
	"github.com/simba-remote/gateway/internal/logging"
	"github.com/simba-remote/gateway/internal/media"
)

// mediaQueueDepth bounds how many outstanding binary frames a connection
// will buffer before MediaPump's own back-pressure policy (driven by
// BufferedBytes) should already have started dropping non-essential
// frames; this is a hard backstop, not the primary policy.
const mediaQueueDepth = 2048

// ClientConnection is one accepted WebSocket client: a single-writer
// wrapper around *websocket.Conn plus the bookkeeping CommandHub and
// MediaPump need (commandId-less JSON replies, binary envelope delivery,
// and the currently attached session's ControlRouter). Satisfies
// state.Client, command.Sender, media.Sink, and control.Writer's
// dependents reach it only through those narrow interfaces.
type ClientConnection struct {
	id   string
	conn *websocket.Conn
	log  *logging.Logger

	writeMu sync.Mutex

	queue       chan []byte
	queuedBytes int64 // atomic

	mu        sync.Mutex
	scid      string
	router    *control.Router
	videoPump *media.Pump

	closeOnce sync.Once
	closed    chan struct{}
}

func newClientConnection(id string, conn *websocket.Conn, log *logging.Logger) *ClientConnection {
	c := &ClientConnection{
		id:     id,
		conn:   conn,
		log:    log,
		queue:  make(chan []byte, mediaQueueDepth),
		closed: make(chan struct{}),
	}
	go c.drainQueue()
	return c
}

func (c *ClientConnection) drainQueue() {
	for frame := range c.queue {
		c.writeMu.Lock()
		err := c.conn.WriteMessage(websocket.BinaryMessage, frame)
		c.writeMu.Unlock()
		atomic.AddInt64(&c.queuedBytes, -int64(len(frame)))
		if err != nil {
			c.log.Error("client %s: write binary: %v", c.id, err)
			return
		}
	}
}

// ID satisfies state.Client.
func (c *ClientConnection) ID() string { return c.id }

// Close closes the underlying connection exactly once; safe to call from
// both the read-loop's deferred cleanup and an external cascade.
func (c *ClientConnection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		close(c.queue)
		c.conn.Close()
	})
}

// WriteBinary satisfies media.Sink. The send is non-blocking: if the
// backstop queue is saturated the frame is dropped, since MediaPump should
// already have stopped sending non-essential frames well before this.
func (c *ClientConnection) WriteBinary(frame []byte) error {
	select {
	case c.queue <- frame:
		atomic.AddInt64(&c.queuedBytes, int64(len(frame)))
		return nil
	default:
		c.log.Error("client %s: backstop queue saturated, dropping frame", c.id)
		return nil
	}
}

// BufferedBytes satisfies media.Sink, backing the back-pressure decision.
func (c *ClientConnection) BufferedBytes() int {
	return int(atomic.LoadInt64(&c.queuedBytes))
}

// WriteJSON satisfies media.Sink's event-notification path (resolutionChange).
func (c *ClientConnection) WriteJSON(event string, payload any) error {
	body := map[string]any{"type": event}
	if m, ok := payload.(map[string]int); ok {
		for k, v := range m {
			body[k] = v
		}
	} else if payload != nil {
		body["payload"] = payload
	}
	return c.SendJSON(body)
}

// SendJSON satisfies command.Sender: a direct, mutex-serialized write,
// since control-plane replies are low-volume and must never be dropped.
func (c *ClientConnection) SendJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// attachedSCID/setControlRouter/clearControlRouter track which session's
// ControlRouter (if any) owns this connection's inbound binary frames.
func (c *ClientConnection) attachedSCID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scid
}

func (c *ClientConnection) controlRouter() *control.Router {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.router
}

func (c *ClientConnection) setControlRouter(scid string, r *control.Router) {
	c.mu.Lock()
	c.scid, c.router = scid, r
	c.mu.Unlock()
}

// setVideoPump/videoPumpFor let a later webrtcOffer command attach a
// webrtcpreview.Preview's RTP observer to the already-running video pump
// for this client's current session.
func (c *ClientConnection) setVideoPump(scid string, pump *media.Pump) {
	c.mu.Lock()
	if c.scid == scid {
		c.videoPump = pump
	}
	c.mu.Unlock()
}

func (c *ClientConnection) videoPumpFor(scid string) *media.Pump {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scid != scid {
		return nil
	}
	return c.videoPump
}

// clearControlRouter removes the router only if it still belongs to scid,
// so a stale cleanup from an old session can't clobber a newer one.
func (c *ClientConnection) clearControlRouter(scid string) *control.Router {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scid != scid {
		return nil
	}
	r := c.router
	c.scid, c.router, c.videoPump = "", nil, nil
	return r
}
