package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/simba-remote/gateway/adb"
	"github.com/simba-remote/gateway/internal/apperr"
	"github.com/simba-remote/gateway/internal/logging"
	"github.com/simba-remote/gateway/internal/safego"
	"github.com/simba-remote/gateway/internal/session/displaymode"
	"github.com/simba-remote/gateway/internal/state"
)

// HandshakeTimeout bounds how long the acceptance phase waits for each of
// the three device sockets to appear and complete its handshake.
const HandshakeTimeout = 10 * time.Second

// RemoteServerPath is the fixed path the server jar is pushed to on every
// device, per createSession step 3.
const RemoteServerPath = "/data/local/tmp/simba-server.jar"

// Manager is the SessionManager: it creates and tears down Sessions
// against one shared adb.Bus and state.State.
type Manager struct {
	bus           *adb.Bus
	state         *state.State
	log           *logging.Logger
	basePort      int
	localJarPath  string
	liveSessions  int64
	ownerByClient sync.Map // clientID -> scid, enforces AlreadyAttached
}

// NewManager builds a Manager. basePort is SERVER_PORT_BASE; localJarPath
// is the on-host path to the streaming server jar to push.
func NewManager(bus *adb.Bus, st *state.State, basePort int, localJarPath string) *Manager {
	return &Manager{
		bus:          bus,
		state:        st,
		log:          logging.New("session", logging.LevelInfo),
		basePort:     basePort,
		localJarPath: localJarPath,
	}
}

// CreateRequest bundles createSession's parameters.
type CreateRequest struct {
	ClientID    string
	DeviceID    string
	Options     Options
	DisplayMode string
	DisplayOpts displaymode.Options
	AndroidMajor int
}

// CreateSession runs the full provisioning → handshake pipeline and
// returns a Running session, or tears everything down and returns an
// error on any failure.
func (m *Manager) CreateSession(ctx context.Context, req CreateRequest) (*Session, error) {
	if _, already := m.ownerByClient.Load(req.ClientID); already {
		return nil, apperr.ErrAlreadyAttached
	}

	if req.AndroidMajor < 11 {
		req.Options.Audio = false
	}

	scid := newSCID()
	sctx, cancel := context.WithCancel(ctx)
	sess := &Session{
		SCID:         scid,
		DeviceID:     req.DeviceID,
		OwnerClientID: req.ClientID,
		DisplayMode:  req.DisplayMode,
		Options:      req.Options,
		AndroidMajor: req.AndroidMajor,
		log:          logging.New("session."+scid, logging.LevelInfo),
		phase:        PhaseProvisioning,
		cancel:       cancel,
	}

	precondition, err := displaymode.For(m.bus, m, req.DisplayMode, req.DisplayOpts)
	if err != nil {
		cancel()
		return nil, err
	}

	rollback := func() {
		sess.Close()
		m.ownerByClient.Delete(req.ClientID)
	}

	sess.setPhase(PhasePushing)
	if err := m.bus.Push(sctx, req.DeviceID, m.localJarPath, RemoteServerPath); err != nil {
		cancel()
		return nil, fmt.Errorf("create session: %w", err)
	}

	port, err := m.allocatePort()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create session: %w", err)
	}
	sess.LocalPort = port

	socketName := "scrcpy_" + scid
	existing, err := m.bus.ReverseList(sctx, req.DeviceID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create session: %w", err)
	}
	if !containsReverse(existing, socketName) {
		if err := m.bus.ReverseAdd(sctx, req.DeviceID, socketName, port); err != nil {
			cancel()
			return nil, fmt.Errorf("create session: %w", err)
		}
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		m.bus.ReverseRemove(sctx, req.DeviceID, socketName)
		cancel()
		return nil, fmt.Errorf("create session: listen: %w", err)
	}

	// Apply before ServerOption: overlay's ServerOption needs the display
	// id Apply discovers by diffing ListDisplays before/after the
	// precondition runs. Every other mode's ServerOption is independent
	// of Apply, so this ordering is safe for all of them too.
	cleanupDisplay, err := precondition.Apply(sctx, req.DeviceID)
	if err != nil {
		ln.Close()
		m.bus.ReverseRemove(sctx, req.DeviceID, socketName)
		cancel()
		return nil, fmt.Errorf("create session: %w", err)
	}
	sess.cleanupDisplay = cleanupDisplay

	displayOption, err := precondition.ServerOption(sctx, req.DeviceID)
	if err != nil {
		cleanupDisplay(sctx)
		ln.Close()
		m.bus.ReverseRemove(sctx, req.DeviceID, socketName)
		cancel()
		return nil, fmt.Errorf("create session: %w", err)
	}

	sess.setPhase(PhaseServerSpawning)
	shellCmd := m.buildServerCommand(scid, req.Options, displayOption)
	logs, err := m.bus.Shell(sctx, req.DeviceID, shellCmd)
	if err != nil {
		ln.Close()
		cleanupDisplay(sctx)
		m.bus.ReverseRemove(sctx, req.DeviceID, socketName)
		cancel()
		return nil, fmt.Errorf("create session: %w", err)
	}
	safego.Go("server-log-drain", func() { drainLogs(sess.log, logs) })

	sess.setPhase(PhaseAwaitingSocket)
	sockets, err := acceptSockets(ln, req.Options, HandshakeTimeout)
	ln.Close()
	if err != nil {
		cleanupDisplay(sctx)
		m.bus.ReverseRemove(sctx, req.DeviceID, socketName)
		cancel()
		return nil, fmt.Errorf("create session: %w", err)
	}
	sess.sockets = sockets

	if err := sess.runHandshake(sctx); err != nil {
		rollback()
		m.bus.ReverseRemove(sctx, req.DeviceID, socketName)
		return nil, fmt.Errorf("create session: %w", err)
	}

	sess.onClose = func(s *Session) {
		m.ownerByClient.Delete(s.OwnerClientID)
		m.bus.ReverseRemove(context.Background(), s.DeviceID, "scrcpy_"+s.SCID)
		atomic.AddInt64(&m.liveSessions, -1)
	}

	sess.setPhase(PhaseRunning)
	m.ownerByClient.Store(req.ClientID, scid)
	atomic.AddInt64(&m.liveSessions, 1)
	m.state.AddSession(sess)
	m.log.Info("session %s running for device %s on port %d", scid, req.DeviceID, port)
	return sess, nil
}

// Cleanup ends a session by scid, idempotently (cleanupSession). State's
// RemoveSession already calls Session.Close, which runs the display-mode
// cleanup and the onClose hook that removes the reverse tunnel.
func (m *Manager) Cleanup(scid string) {
	m.state.RemoveSession(scid)
}

// SessionForClient looks up the session currently owned by a client, if
// any, per the "one client, at most one session" invariant.
func (m *Manager) SessionForClient(clientID string) (*Session, bool) {
	v, ok := m.ownerByClient.Load(clientID)
	if !ok {
		return nil, false
	}
	sess, ok := m.state.GetSession(v.(string))
	if !ok {
		return nil, false
	}
	concrete, ok := sess.(*Session)
	return concrete, ok
}

// DisconnectClient tears down the session owned by a client, if any,
// reporting whether one was found (disconnect is idempotent either way).
func (m *Manager) DisconnectClient(clientID string) bool {
	sess, ok := m.SessionForClient(clientID)
	if !ok {
		return false
	}
	m.Cleanup(sess.SCID)
	return true
}

func (m *Manager) allocatePort() (int, error) {
	live := int(atomic.LoadInt64(&m.liveSessions))
	start := m.basePort + (live % 1000)
	for attempt := 0; attempt < 1000; attempt++ {
		port := start + attempt
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			ln.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("allocate port: no free port found starting at %d", start)
}

func (m *Manager) buildServerCommand(scid string, opts Options, displayOption string) string {
	tokens := []string{
		fmt.Sprintf("video=%v", opts.Video),
		fmt.Sprintf("audio=%v", opts.Audio),
		fmt.Sprintf("control=%v", opts.Control),
		fmt.Sprintf("scid=%s", scid),
	}
	if opts.MaxFPS > 0 {
		tokens = append(tokens, fmt.Sprintf("max_fps=%d", opts.MaxFPS))
	}
	if opts.VideoBitRate > 0 {
		tokens = append(tokens, fmt.Sprintf("video_bit_rate=%d", opts.VideoBitRate))
	}
	if opts.PowerOn {
		tokens = append(tokens, "power_on=true")
	}
	if opts.PowerOffOnClose {
		tokens = append(tokens, "power_off_on_close=true")
	}
	if opts.DisplayID != 0 {
		tokens = append(tokens, fmt.Sprintf("display_id=%d", opts.DisplayID))
	}
	if opts.CaptureOrientation != "" {
		tokens = append(tokens, fmt.Sprintf("capture_orientation=%s", opts.CaptureOrientation))
	}
	if opts.LogLevel != "" {
		tokens = append(tokens, fmt.Sprintf("log_level=%s", opts.LogLevel))
	}
	if displayOption != "" {
		tokens = append(tokens, displayOption)
	}
	return fmt.Sprintf("CLASSPATH=%s app_process / com.genymobile.scrcpy.Server 3.3.2 %s",
		RemoteServerPath, strings.Join(tokens, " "))
}

var displayListPattern = regexp.MustCompile(`--display-id=(\d+)\s*\(([^)]+)\)`)

// ListDisplays satisfies displaymode.DisplayLister and backs CommandHub's
// getDisplayList: it spawns the streaming server jar in list-mode with a
// fresh scid (no sockets are accepted; the server prints its display
// table and exits) and parses the "--display-id=<n> (<resolution>)" lines
// spec.md's getDisplayList entry names.
func (m *Manager) ListDisplays(ctx context.Context, deviceID string) ([]displaymode.Display, error) {
	cmd := fmt.Sprintf("CLASSPATH=%s app_process / com.genymobile.scrcpy.Server 3.3.2 list_displays=true scid=%s",
		RemoteServerPath, newSCID())
	out, err := m.bus.ShellCollect(ctx, deviceID, cmd)
	if err != nil {
		return nil, fmt.Errorf("list displays: %w", err)
	}
	var displays []displaymode.Display
	for _, match := range displayListPattern.FindAllStringSubmatch(out, -1) {
		id, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		displays = append(displays, displaymode.Display{ID: id, Resolution: match[2]})
	}
	return displays, nil
}

func containsReverse(list []string, socketName string) bool {
	needle := "localabstract:" + socketName
	for _, l := range list {
		if strings.Contains(l, needle) {
			return true
		}
	}
	return false
}

// acceptSockets accepts up to three connections in order
// {video, audio, control}, each within timeout, skipping any channel
// disabled in opts.
func acceptSockets(ln net.Listener, opts Options, timeout time.Duration) (Sockets, error) {
	var sockets Sockets
	accept := func(label string) (net.Conn, error) {
		type result struct {
			conn net.Conn
			err  error
		}
		ch := make(chan result, 1)
		safego.Go("accept-"+label, func() {
			c, err := ln.Accept()
			ch <- result{c, err}
		})
		select {
		case r := <-ch:
			if r.err != nil {
				return nil, fmt.Errorf("accept %s socket: %w: %v", label, apperr.ErrHandshakeTimeout, r.err)
			}
			if tcp, ok := r.conn.(*net.TCPConn); ok {
				tcp.SetNoDelay(true)
			}
			return r.conn, nil
		case <-time.After(timeout):
			return nil, fmt.Errorf("accept %s socket: %w", label, apperr.ErrHandshakeTimeout)
		}
	}

	if opts.Video {
		c, err := accept("video")
		if err != nil {
			return Sockets{}, err
		}
		sockets.Video = c
	}
	if opts.Audio {
		c, err := accept("audio")
		if err != nil {
			if sockets.Video != nil {
				sockets.Video.Close()
			}
			return Sockets{}, err
		}
		sockets.Audio = c
	}
	if opts.Control {
		c, err := accept("control")
		if err != nil {
			if sockets.Video != nil {
				sockets.Video.Close()
			}
			if sockets.Audio != nil {
				sockets.Audio.Close()
			}
			return Sockets{}, err
		}
		sockets.Control = c
	}
	return sockets, nil
}

func drainLogs(log *logging.Logger, rc interface {
	Read([]byte) (int, error)
	Close() error
}) {
	defer rc.Close()
	buf := make([]byte, 4096)
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			log.Debug("device server: %s", strings.TrimSpace(string(buf[:n])))
		}
		if err != nil {
			return
		}
	}
}

// newSCID returns a 31-bit random identifier formatted as 8 lowercase hex
// chars, per spec.md §3's SessionId definition.
func newSCID() string {
	b := make([]byte, 4)
	var n uint32
	if _, err := rand.Read(b); err != nil {
		n = uint32(time.Now().UnixNano()) & 0x7fffffff
	} else {
		n = (uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])) & 0x7fffffff
	}
	return fmt.Sprintf("%08x", n)
}
