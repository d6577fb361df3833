// Package gateway implements the ClientGateway capability: the WebSocket
// front door every client connects through, generalized from the
// teacher's gorilla/websocket signaling loop (main_save.go) from a single
// demo connection into the multi-client, multi-session fan-out spec.md
// §3 describes. One ClientConnection dispatches its text frames to
// CommandHub and its binary frames to whichever session's ControlRouter
// it currently owns, and fans a session's video/audio sockets out through
// MediaPump once CommandHub starts one on its behalf.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/simba-remote/gateway/internal/command"
	"github.com/simba-remote/gateway/internal/control"
	"github.com/simba-remote/gateway/internal/localinput"
	"github.com/simba-remote/gateway/internal/logging"
	"github.com/simba-remote/gateway/internal/media"
	"github.com/simba-remote/gateway/internal/safego"
	"github.com/simba-remote/gateway/internal/session"
	"github.com/simba-remote/gateway/internal/state"
)

// Gateway accepts WebSocket clients and wires each one to the shared
// CommandHub, SessionManager, and State.
type Gateway struct {
	hub      *command.Hub
	sessions *session.Manager
	state    *state.State
	log      *logging.Logger
	upgrader websocket.Upgrader

	localInputMode *localinput.Mode
	localBridges   sync.Map // scid -> *localinput.Bridge
}

// New builds a Gateway. CheckOrigin is left permissive, matching the
// teacher's demo upgrader — spec.md names no origin policy.
func New(hub *command.Hub, sessions *session.Manager, st *state.State) *Gateway {
	return &Gateway{
		hub:      hub,
		sessions: sessions,
		state:    st,
		log:      logging.New("gateway", logging.LevelInfo),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// EnableLocalInput turns on the local OTG input bridge: every session
// started from here on gets a localinput.Bridge feeding its
// ControlRouter (or relaying to the host OS, per mode) from this
// process's own SDL2-captured input, for the desktop-shell's privileged
// launch mode where the gateway and the operator's keyboard/mouse are on
// the same machine. Returns g for chaining at startup.
func (g *Gateway) EnableLocalInput(mode localinput.Mode) *Gateway {
	g.localInputMode = &mode
	return g
}

// Handler returns the http.HandlerFunc to mount at the client WebSocket
// endpoint (e.g. "/ws").
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.log.Error("upgrade: %v", err)
			return
		}
		g.serve(conn)
	}
}

func (g *Gateway) serve(wsConn *websocket.Conn) {
	id := uuid.NewString()
	client := newClientConnection(id, wsConn, g.log)
	g.state.AddClient(client)
	g.log.Info("client %s connected", id)

	defer func() {
		g.sessions.DisconnectClient(id)
		g.state.RemoveClient(id)
		client.Close()
		g.log.Info("client %s disconnected", id)
	}()

	for {
		msgType, data, err := wsConn.ReadMessage()
		if err != nil {
			return
		}
		switch msgType {
		case websocket.TextMessage:
			if isWebRTCOffer(data) {
				g.handleWebRTCOffer(client, data)
				continue
			}
			g.hub.Handle(context.Background(), id, data, client)
			g.syncSessionWiring(client)
		case websocket.BinaryMessage:
			if router := client.controlRouter(); router != nil {
				router.Enqueue(data)
			}
			// No attached session: binary control frames are silently
			// dropped, per spec.md §4.7.
		}
	}
}

// syncSessionWiring brings client's attached ControlRouter/MediaPumps in
// line with whatever session.Manager now reports for this client,
// following a command that may have started or ended one. Idempotent:
// a no-op once the two are already in sync.
func (g *Gateway) syncSessionWiring(client *ClientConnection) {
	sess, ok := g.sessions.SessionForClient(client.ID())
	if !ok {
		scid := client.attachedSCID()
		if router := client.clearControlRouter(scid); router != nil {
			router.Close()
		}
		g.stopLocalInput(scid)
		return
	}
	if client.attachedSCID() == sess.SCID {
		return
	}

	router := control.New(sess, g.log, func(err error) {
		g.log.Error("session %s: control draining: %v", sess.SCID, err)
		g.sessions.Cleanup(sess.SCID)
	})
	client.setControlRouter(sess.SCID, router)
	safego.Go("control-router-"+sess.SCID, router.Run)
	g.startLocalInput(sess, router)

	if sess.Options.Video {
		pump := g.runPump(sess, media.KindVideo, sess.VideoConn(), client)
		client.setVideoPump(sess.SCID, pump)
	}
	if conn := sess.AudioConn(); conn != nil {
		g.runPump(sess, media.KindAudio, conn, client)
	}
}

// startLocalInput attaches a localinput.Bridge to a newly wired session
// when EnableLocalInput has been called, feeding router the same way a
// browser client's binary WebSocket frames would.
func (g *Gateway) startLocalInput(sess *session.Session, router *control.Router) {
	if g.localInputMode == nil {
		return
	}
	bridge := localinput.New(router, sess, *g.localInputMode, g.log)
	g.localBridges.Store(sess.SCID, bridge)
	bridge.Run()
}

func (g *Gateway) stopLocalInput(scid string) {
	v, ok := g.localBridges.LoadAndDelete(scid)
	if !ok {
		return
	}
	v.(*localinput.Bridge).Stop()
}

// runPump starts one MediaPump and, when its read loop ends (device
// socket closed, EOF, or another read error; sink write errors are only
// logged by the pump), cleans the session up — mirroring the teacher's per-socket goroutine
// that tore the whole session down on a streaming error.
func (g *Gateway) runPump(sess *session.Session, kind media.Kind, socket media.Socket, client *ClientConnection) *media.Pump {
	var pump *media.Pump
	if kind == media.KindVideo {
		pump = media.NewWithProbe(kind, socket, client, sess, g.log)
	} else {
		pump = media.New(kind, socket, client, g.log)
	}
	safego.Go(fmt.Sprintf("media-pump-%s-%s", kind, sess.SCID), func() {
		if err := pump.Run(); err != nil {
			g.log.Debug("session %s: %s pump ended: %v", sess.SCID, kind, err)
		}
		g.sessions.Cleanup(sess.SCID)
	})
	return pump
}
