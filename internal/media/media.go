// Package media implements the MediaPump capability: one pump per device
// media socket, reading framed units and re-emitting them as client
// envelopes with a bounded-buffer back-pressure policy, generalized from
// the teacher's processFrameLoop/StartRTPSender keyframe-wait machine
// (internal/stream/processor.go) re-pointed from an RTP sender to the
// binary envelope encoder in internal/wire.
package media

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/simba-remote/gateway/internal/logging"
	"github.com/simba-remote/gateway/internal/metrics"
	"github.com/simba-remote/gateway/internal/wire"
)

// MaxClientBufferBytes is the back-pressure threshold: once a client
// sink reports more than this many buffered bytes, non-essential frames
// are dropped instead of queued.
const MaxClientBufferBytes = 8 * 1024 * 1024

// Sink is the subset of a client connection a Pump needs: a binary frame
// writer, a JSON event writer (for resolutionChange), and a buffered-byte
// gauge for the back-pressure decision.
type Sink interface {
	WriteBinary(frame []byte) error
	WriteJSON(event string, payload any) error
	BufferedBytes() int
}

// Socket is the subset of net.Conn a pump reads from.
type Socket interface {
	io.Reader
}

// Kind distinguishes the two pump flavors, since their envelope encoding
// and drop policy differ.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// RTPObserver receives the same H264 Annex-B NALUs a video Pump decodes,
// alongside (not instead of) its normal Sink delivery — the hook the
// opt-in WebRTC preview transport attaches through, since it re-packetizes
// NALUs into RTP rather than the WS binary envelope.
type RTPObserver interface {
	WriteNALU(nalu []byte, keyFrame bool, pts uint64)
}

// Pump reads one device media socket and writes client envelopes to sink
// until the socket errors or EOFs.
type Pump struct {
	kind   Kind
	socket Socket
	sink   Sink
	log    *logging.Logger
	rtp    atomic.Value // RTPObserver
	probe  RTPObserver

	width, height uint16
}

// New returns a Pump for the given kind.
func New(kind Kind, socket Socket, sink Sink, log *logging.Logger) *Pump {
	return &Pump{kind: kind, socket: socket, sink: sink, log: log}
}

// NewWithProbe is New plus a permanent, always-on secondary NALU
// observer — unlike SetRTPObserver's slot (which a WebRTC preview may
// attach/detach later), probe is set once before Run starts and is
// never swapped, so it needs no synchronization. Used to keep a
// session's LastConfigAndKeyframe populated for startFrameProbe
// regardless of whether any WebRTC preview is ever negotiated.
func NewWithProbe(kind Kind, socket Socket, sink Sink, probe RTPObserver, log *logging.Logger) *Pump {
	return &Pump{kind: kind, socket: socket, sink: sink, probe: probe, log: log}
}

// SetRTPObserver attaches or replaces the secondary NALU observer (video
// pumps only). Safe to call at any time, including after Run has started
// — a client may negotiate the WebRTC side-channel after streaming over
// WebSocket has already begun.
func (p *Pump) SetRTPObserver(o RTPObserver) {
	p.rtp.Store(rtpObserverBox{o})
}

func (p *Pump) rtpObserver() RTPObserver {
	v, _ := p.rtp.Load().(rtpObserverBox)
	return v.o
}

// rtpObserverBox lets a nil-able interface value live inside atomic.Value,
// which rejects storing inconsistent concrete types across calls.
type rtpObserverBox struct{ o RTPObserver }

// Run reads units until error/EOF, returning the terminal error (never nil
// on return — callers should transition the owning session to Draining).
func (p *Pump) Run() error {
	for {
		unit, zeroLength, err := wire.ReadUnit(p.socket)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return fmt.Errorf("media pump (%s): %w", p.kind, err)
		}
		if zeroLength {
			p.log.Error("%s: dropped zero-length unit, no envelope emitted", p.kind)
			continue
		}

		if p.kind == KindVideo {
			p.handleVideoUnit(unit)
		} else {
			p.handleAudioUnit(unit)
		}
	}
}

func (p *Pump) handleVideoUnit(unit wire.Unit) {
	metrics.FramesRead.Add(1)
	metrics.BytesRead.Add(int64(len(unit.Data)))

	if unit.IsConfig {
		nalus := wire.SplitAnnexBNALUs(unit.Data)
		var sps []byte
		for _, n := range nalus {
			if wire.IsSPS(n) {
				sps = n
				metrics.NaluSPS.Add(1)
				break
			}
		}
		if sps != nil {
			if w, h, ok := wire.ParseSPSDimensions(sps); ok {
				if changed := p.setDimensions(w, h); changed {
					if err := p.sink.WriteJSON("resolutionChange", map[string]int{"width": int(w), "height": int(h)}); err != nil {
						p.log.Error("write resolutionChange: %v", err)
					}
				}
			}
		}
		frame, err := wire.EncodeH264Config(unit.Data)
		if err != nil {
			p.log.Error("encode h264 config: %v", err)
			return
		}
		// Configs are never dropped under back-pressure.
		if err := p.sink.WriteBinary(frame); err != nil {
			p.log.Error("write h264 config: %v", err)
		}
		for _, n := range nalus {
			p.notifyObservers(n, false, unit.PTS)
		}
		return
	}

	keyFrame := wire.IsIDR(wire.FirstNALU(unit.Data))
	if keyFrame {
		metrics.NaluIDR.Add(1)
	}
	if !keyFrame && p.sink.BufferedBytes() > MaxClientBufferBytes {
		metrics.FramesDropped.Add(1)
		p.log.Debug("video: dropped delta frame, buffered=%d", p.sink.BufferedBytes())
		return
	}
	frame := wire.EncodeH264Frame(keyFrame, unit.PTS, unit.Data)
	if err := p.sink.WriteBinary(frame); err != nil {
		p.log.Error("write h264 frame: %v", err)
	}
	p.notifyObservers(unit.Data, keyFrame, unit.PTS)
}

// notifyObservers forwards one decoded NALU to both observer slots: the
// permanent probe (if any) and whatever transient RTPObserver is
// currently attached.
func (p *Pump) notifyObservers(nalu []byte, keyFrame bool, pts uint64) {
	if p.probe != nil {
		p.probe.WriteNALU(nalu, keyFrame, pts)
	}
	if obs := p.rtpObserver(); obs != nil {
		obs.WriteNALU(nalu, keyFrame, pts)
	}
}

func (p *Pump) handleAudioUnit(unit wire.Unit) {
	metrics.FramesRead.Add(1)
	metrics.BytesRead.Add(int64(len(unit.Data)))

	if unit.IsConfig {
		frame := wire.EncodeAACConfig(unit.Data)
		if err := p.sink.WriteBinary(frame); err != nil {
			p.log.Error("write aac config: %v", err)
		}
		return
	}
	if p.sink.BufferedBytes() > MaxClientBufferBytes {
		metrics.FramesDropped.Add(1)
		p.log.Debug("audio: dropped frame, buffered=%d", p.sink.BufferedBytes())
		return
	}
	frame := wire.EncodeAACFrame(unit.PTS, unit.Data)
	if err := p.sink.WriteBinary(frame); err != nil {
		p.log.Error("write aac frame: %v", err)
	}
}

func (p *Pump) setDimensions(w, h uint16) bool {
	changed := w != p.width || h != p.height
	p.width, p.height = w, h
	return changed
}
