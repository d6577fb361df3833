// Package session implements the SessionManager capability: the
// provisioning/handshake/running/draining lifecycle of one adb-backed
// on-device streaming server, generalized from the teacher's single
// global ScrcpySession (scrcpy_session.go) into a map[scid]*Session per
// internal/device/manager.go's consolidation pattern.
package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/simba-remote/gateway/internal/logging"
	"github.com/simba-remote/gateway/internal/session/displaymode"
	"github.com/simba-remote/gateway/internal/wire"
)

// Phase is a session's position in its lifecycle state machine.
type Phase string

const (
	PhaseProvisioning   Phase = "provisioning"
	PhasePushing        Phase = "pushing"
	PhaseServerSpawning Phase = "server_spawning"
	PhaseAwaitingSocket Phase = "awaiting_sockets"
	PhaseRunning        Phase = "running"
	PhaseDraining       Phase = "draining"
	PhaseClosed         Phase = "closed"
)

// Options mirrors the on-device server's key=value launch options (§6).
type Options struct {
	Video              bool
	Audio              bool
	Control            bool
	MaxFPS             int
	VideoBitRate        int
	PowerOn             bool
	PowerOffOnClose     bool
	DisplayID           int
	NewDisplay          string
	CaptureOrientation  string
	LogLevel            string
}

// Sockets holds the three TCP connections accepted from the device server.
type Sockets struct {
	Video   net.Conn
	Audio   net.Conn
	Control net.Conn
}

// Session is one live (or tearing-down) adb-backed streaming session.
type Session struct {
	SCID          string
	DeviceID      string
	OwnerClientID string
	DisplayMode   string
	Options       Options
	LocalPort     int
	AndroidMajor  int

	TurnScreenOffRequested bool

	log *logging.Logger

	mu            sync.RWMutex
	phase         Phase
	sockets       Sockets
	audioEnabled  bool
	deviceName    string
	videoW, videoH uint16
	lastSPS       []byte
	lastPPS       []byte
	lastKeyframe  []byte

	cleanupDisplay displaymode.Cleanup
	onClose        func(s *Session) // invoked once, outside the lock

	cancel context.CancelFunc
}

// ID satisfies state.Session.
func (s *Session) ID() string { return s.SCID }

// Phase reports the session's current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// Dimensions reports the most recently observed video width/height.
func (s *Session) Dimensions() (w, h uint16) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.videoW, s.videoH
}

// SetDimensions records a new width/height (runHandshake calls it with the
// size from the video codec header), returning whether it changed from the
// previously observed value.
func (s *Session) SetDimensions(w, h uint16) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = w != s.videoW || h != s.videoH
	s.videoW, s.videoH = w, h
	return changed
}

// LastSPS/SetLastSPS read and replace the most recently seen SPS NAL, the
// same field WriteNALU updates whenever an SPS passes through it.
func (s *Session) LastSPS() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSPS
}

func (s *Session) SetLastSPS(sps []byte) {
	s.mu.Lock()
	s.lastSPS = append([]byte(nil), sps...)
	s.mu.Unlock()
}

// annexBStartCode is reinserted between NAL units reconstructed for
// decode; internal/wire.SplitAnnexBNALUs strips start codes on the way
// in, so anything handed back to an Annex-B-speaking decoder needs them
// restored.
var annexBStartCode = []byte{0, 0, 0, 1}

// LastConfigAndKeyframe returns the most recent video config (SPS
// immediately followed by PPS, start codes restored) and the most
// recent keyframe access unit, the pair startFrameProbe needs to decode
// a diagnostics thumbnail. Either may be nil if no video has streamed
// yet or no PPS has been observed.
func (s *Session) LastConfigAndKeyframe() (config, keyframe []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.lastSPS) == 0 || len(s.lastPPS) == 0 {
		return nil, s.lastKeyframe
	}
	config = append(append([]byte{}, annexBStartCode...), s.lastSPS...)
	config = append(append(config, annexBStartCode...), s.lastPPS...)
	return config, s.lastKeyframe
}

// WriteNALU satisfies media.RTPObserver (duck-typed to avoid session
// importing the media package): every video Pump attaches its owning
// Session as a permanent, always-on probe observer alongside whatever
// transient RTPObserver a WebRTC preview later attaches, so
// startFrameProbe always has the latest config+keyframe pair to decode
// regardless of whether WebRTC is in use.
func (s *Session) WriteNALU(nalu []byte, keyFrame bool, pts uint64) {
	if len(nalu) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case wire.IsSPS(nalu):
		s.lastSPS = append([]byte(nil), nalu...)
	case wire.IsPPS(nalu):
		s.lastPPS = append([]byte(nil), nalu...)
	case keyFrame:
		s.lastKeyframe = append(append([]byte{}, annexBStartCode...), nalu...)
	}
}

// DeviceName reports the name the device server sent on the video
// socket's handshake record, empty until that handshake completes.
func (s *Session) DeviceName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceName
}

// AudioEnabled reports whether the audio socket's handshake reported a
// real codec (as opposed to CodecDisabled).
func (s *Session) AudioEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audioEnabled
}

// VideoConn/AudioConn/ControlConn expose the underlying sockets to the
// pumps and the control router; callers must not hold onto them past
// Close.
func (s *Session) VideoConn() net.Conn   { return s.sockets.Video }
func (s *Session) AudioConn() net.Conn   { return s.sockets.Audio }
func (s *Session) ControlConn() net.Conn { return s.sockets.Control }

// WriteControl serializes a write to the device control socket. A single
// writer per session is assumed upstream (package control enforces this);
// this just guards against concurrent calls during teardown.
func (s *Session) WriteControl(b []byte) error {
	s.mu.RLock()
	conn := s.sockets.Control
	s.mu.RUnlock()
	if conn == nil || len(b) == 0 {
		return nil
	}
	_, err := conn.Write(b)
	return err
}

// RequestKeyframe sends TYPE_RESET_VIDEO to prompt a keyframe, mirroring
// ScrcpySession.RequestKeyframe.
func (s *Session) RequestKeyframe() {
	const controlMsgResetVideo = 17
	if err := s.WriteControl([]byte{controlMsgResetVideo}); err != nil {
		s.log.Error("request keyframe: %v", err)
	}
}

// Close transitions the session to Draining then Closed: closes control
// first (to unblock the device server), then media sockets, runs the
// display-mode cleanup, and invokes the registered onClose hook exactly
// once. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.phase == PhaseClosed {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseDraining
	sockets := s.sockets
	cleanupDisplay := s.cleanupDisplay
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sockets.Control != nil {
		sockets.Control.Close()
	}
	if sockets.Video != nil {
		sockets.Video.Close()
	}
	if sockets.Audio != nil {
		sockets.Audio.Close()
	}
	if cleanupDisplay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := cleanupDisplay(ctx); err != nil {
			s.log.Error("display-mode cleanup: %v", err)
		}
		cancel()
	}

	s.mu.Lock()
	s.phase = PhaseClosed
	onClose := s.onClose
	s.onClose = nil
	s.mu.Unlock()
	if onClose != nil {
		onClose(s)
	}
}

// runHandshake performs WireProtocol.handshake on the three sockets in
// order {video if enabled, audio if enabled, control if enabled}, per
// SessionManager's createSession step 7. Enabled/disabled per Options.
// Every accepted socket starts with the same one-byte dummy read, not
// just video — an unconsumed leading 0x00 on audio/control would
// otherwise corrupt the very next read on that socket. Handshake reads
// on every socket must finish within HandshakeTimeout; the read deadline
// is lifted again when runHandshake returns.
func (s *Session) runHandshake(ctx context.Context) error {
	for _, c := range []net.Conn{s.sockets.Video, s.sockets.Audio, s.sockets.Control} {
		if c != nil {
			c.SetReadDeadline(time.Now().Add(HandshakeTimeout))
			defer c.SetReadDeadline(time.Time{})
		}
	}

	if s.sockets.Video != nil {
		if err := wire.ReadDummyByte(s.sockets.Video); err != nil {
			return err
		}
		name, err := wire.ReadDeviceName(s.sockets.Video)
		if err != nil {
			return err
		}
		codec, w, h, err := wire.ReadVideoCodecHeader(s.sockets.Video)
		if err != nil {
			return err
		}
		if err := wire.CheckVideoCodec(codec); err != nil {
			return fmt.Errorf("device %q video codec %s: %w", name, wire.CodecName(codec), err)
		}
		s.mu.Lock()
		s.deviceName = name
		s.mu.Unlock()
		s.SetDimensions(w, h)
		s.log.Info("device %q video %s %dx%d", name, wire.CodecName(codec), w, h)
	}

	if s.sockets.Audio != nil {
		if err := wire.ReadDummyByte(s.sockets.Audio); err != nil {
			return err
		}
		codec, err := wire.ReadAudioCodecHeader(s.sockets.Audio)
		if err != nil {
			return err
		}
		enabled, err := wire.CheckAudioCodec(codec)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.audioEnabled = enabled
		s.mu.Unlock()
		if !enabled {
			s.sockets.Audio.Close()
			s.sockets.Audio = nil
		}
	}

	if s.sockets.Control != nil {
		if err := wire.ReadDummyByte(s.sockets.Control); err != nil {
			return err
		}
	}

	return nil
}
