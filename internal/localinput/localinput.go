// Package localinput implements the optional local OTG input bridge: the
// gateway process itself can forward host keyboard/mouse events into a
// session's ControlRouter queue, standing in for a remote browser client
// when the gateway runs on the same machine as a physical OTG adapter.
// Event capture is the teacher's goapp/input/handler.go Capture loop
// (SDL2 polling) generalized to emit properly encoded scrcpy control
// frames instead of the teacher's untyped Event slice, and to offer a
// second, host-relay mode built on the same handler.go's SendKey/robotgo
// example for setups where the OTG adapter itself is the thing actually
// talking to the device.
package localinput

import (
	"time"

	"github.com/go-vgo/robotgo"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/simba-remote/gateway/internal/logging"
	"github.com/simba-remote/gateway/internal/safego"
	"github.com/simba-remote/gateway/internal/wire"
)

// Event is a simplified host input event, matching the teacher's
// handler.go Event shape.
type Event struct {
	Type   string // "key" or "mouse"
	Key    sdl.Keycode
	Down   bool
	Button uint8
	X, Y   int32
}

// Capture polls SDL for every pending keyboard/mouse event and converts
// each to an Event, draining the queue the same way handler.go's Capture
// does.
func Capture() []Event {
	var events []Event
	for e := sdl.PollEvent(); e != nil; e = sdl.PollEvent() {
		switch ev := e.(type) {
		case *sdl.KeyboardEvent:
			if ev.Type == sdl.KEYDOWN || ev.Type == sdl.KEYUP {
				events = append(events, Event{Type: "key", Key: ev.Keysym.Sym, Down: ev.Type == sdl.KEYDOWN})
			}
		case *sdl.MouseButtonEvent:
			events = append(events, Event{Type: "mouse", Button: ev.Button, Down: ev.Type == sdl.MOUSEBUTTONDOWN, X: ev.X, Y: ev.Y})
		case *sdl.MouseMotionEvent:
			if ev.State != 0 {
				events = append(events, Event{Type: "mouse", Button: sdl.BUTTON_LEFT, Down: true, X: ev.X, Y: ev.Y})
			}
		}
	}
	return events
}

// Enqueuer is the subset of control.Router a Bridge needs: admitting a
// raw device control frame from a producer other than a client's
// WebSocket binary frames.
type Enqueuer interface {
	Enqueue(frame []byte)
}

// ScreenSize reports the current device video dimensions, mirroring
// session.Session's Dimensions accessor, used to size INJECT_TOUCH_EVENT
// frames.
type ScreenSize interface {
	Dimensions() (w, h uint16)
}

// Mode selects how a Bridge delivers a captured key event.
type Mode int

const (
	// ModeControlFrame encodes captured events as scrcpy control frames
	// and enqueues them on the session's ControlRouter, exactly as a
	// browser client's WebSocket binary frames would be.
	ModeControlFrame Mode = iota
	// ModeHostRelay taps the corresponding key on the host OS via
	// robotgo instead, for setups where a physical OTG adapter is wired
	// to the host and does the actual device injection; the gateway
	// never touches the ControlRouter in this mode.
	ModeHostRelay
)

const localPointerID uint64 = 0

// Bridge polls SDL2 for host input on a fixed tick and, per Mode, either
// encodes it into the attached session's ControlRouter queue or relays
// it to the host OS via robotgo. It is an alternate control producer,
// not a UI: nothing here renders a window.
type Bridge struct {
	router Enqueuer
	screen ScreenSize
	mode   Mode
	log    *logging.Logger

	stop    chan struct{}
	stopped chan struct{}
}

// New builds a Bridge targeting router's queue and screen's current
// video dimensions.
func New(router Enqueuer, screen ScreenSize, mode Mode, log *logging.Logger) *Bridge {
	return &Bridge{router: router, screen: screen, mode: mode, log: log}
}

// Run starts the capture loop in a background goroutine and returns
// immediately. It must only be called once per Bridge, from a process
// where SDL has already been initialized for video (sdl.Init).
func (b *Bridge) Run() {
	b.stop = make(chan struct{})
	b.stopped = make(chan struct{})
	safego.Go("localinput-capture", b.pollLoop)
}

// Stop ends the capture loop and waits for it to exit.
func (b *Bridge) Stop() {
	if b.stop == nil {
		return
	}
	close(b.stop)
	<-b.stopped
}

func (b *Bridge) pollLoop() {
	defer close(b.stopped)
	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			for _, ev := range Capture() {
				b.handle(ev)
			}
		}
	}
}

func (b *Bridge) handle(ev Event) {
	switch ev.Type {
	case "key":
		b.handleKey(ev)
	case "mouse":
		b.handleMouse(ev)
	}
}

func (b *Bridge) handleKey(ev Event) {
	code, ok := androidKeycode(ev.Key)
	if !ok {
		return
	}
	switch b.mode {
	case ModeHostRelay:
		name, ok := robotgoKeyName(ev.Key)
		if !ok || !ev.Down {
			return
		}
		robotgo.KeyTap(name)
	default:
		action := wire.KeyActionUp
		if ev.Down {
			action = wire.KeyActionDown
		}
		b.router.Enqueue(wire.BuildKeycodeFrame(action, code, 0, 0))
	}
}

func (b *Bridge) handleMouse(ev Event) {
	if b.mode == ModeHostRelay {
		// Host-relay mode only forwards key events: a robotgo mouse tap
		// would move the operator's own cursor, not the device's.
		return
	}
	w, h := b.screen.Dimensions()
	if w == 0 || h == 0 {
		b.log.Debug("localinput: dropping mouse event, session has no known dimensions yet")
		return
	}
	action := wire.TouchActionUp
	if ev.Down {
		action = wire.TouchActionDown
	}
	b.router.Enqueue(wire.BuildTouchFrame(action, localPointerID, ev.X, ev.Y, w, h, 1.0, 0, 0))
}
