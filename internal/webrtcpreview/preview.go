// Package webrtcpreview implements the opt-in WebRTC side-channel: a
// lower-latency preview transport offered alongside the WebSocket binary
// feed when a client sends a "webrtcOffer" action for its running session, reusing the
// teacher's RTP packetization and PLI/FIR keyframe-request loop
// (handlers_gin.go's handleOfferGin, rtp.go's sendNALUAccessUnitAtTS)
// generalized from a package-level client map into one Preview per
// session.
package webrtcpreview

import (
	"fmt"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"

	"github.com/simba-remote/gateway/internal/logging"
	"github.com/simba-remote/gateway/internal/safego"
)

// rtpMTU matches the teacher's packetizer MTU (rtp.go / handlers_gin.go).
const rtpMTU = 1200

// h264PayloadType is the dynamic RTP payload type negotiated for the
// H264 track, mirroring handlers_gin.go's fixed assignment.
const h264PayloadType = 96

// Preview is one client's WebRTC side-channel: a PeerConnection carrying
// one H264 RTP video track plus an RTCP reader watching for PLI/FIR, and
// a DataChannel carrying control-plane frames as an alternative to the
// WebSocket binary path.
type Preview struct {
	pc         *webrtc.PeerConnection
	track      *webrtc.TrackLocalStaticRTP
	packetizer rtp.Packetizer
	log        *logging.Logger

	onKeyframeRequest func()
	onControlFrame    func([]byte)
}

// Options configures the callbacks a Preview drives in response to
// RTCP/DataChannel events, decoupling this package from session/control.
type Options struct {
	// OnKeyframeRequest is invoked whenever the peer sends a PLI or FIR,
	// matching handlers_gin.go's deviceSession.Session.RequestKeyframe.
	OnKeyframeRequest func()
	// OnControlFrame is invoked for every binary DataChannel message,
	// treated exactly like a WebSocket binary control frame.
	OnControlFrame func(frame []byte)
}

// Answer negotiates a new Preview against offer, returning the SDP answer
// to send back to the client. The returned Preview is already accepting
// WriteNALU calls and forwarding RTCP/DataChannel events to opts'
// callbacks.
func Answer(offer webrtc.SessionDescription, opts Options, log *logging.Logger) (*Preview, *webrtc.SessionDescription, error) {
	m := webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     webrtc.MimeTypeH264,
			ClockRate:    90000,
			SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			RTCPFeedback: []webrtc.RTCPFeedback{{Type: "nack"}, {Type: "nack", Parameter: "pli"}, {Type: "ccm", Parameter: "fir"}},
		},
		PayloadType: h264PayloadType,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, nil, fmt.Errorf("register h264 codec: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(&m))
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, nil, fmt.Errorf("new peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		"video", "simba-remote",
	)
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("new video track: %w", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("add track: %w", err)
	}

	p := &Preview{
		pc:   pc,
		track: track,
		packetizer: rtp.NewPacketizer(
			rtpMTU,
			h264PayloadType,
			uint32(randomSSRC()),
			&codecs.H264Payloader{},
			rtp.NewRandomSequencer(),
			90000,
		),
		log:               log,
		onKeyframeRequest: opts.OnKeyframeRequest,
		onControlFrame:    opts.OnControlFrame,
	}

	safego.Go("webrtc-rtcp-reader", func() { p.readRTCP(sender) })

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if p.onControlFrame != nil {
				p.onControlFrame(msg.Data)
			}
		})
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("create answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	if p.onKeyframeRequest != nil {
		p.onKeyframeRequest()
	}
	return p, pc.LocalDescription(), nil
}

// readRTCP watches the track sender for PLI/FIR and requests a keyframe
// for each, mirroring handlers_gin.go's rtcp-reader goroutine.
func (p *Preview) readRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		pkts, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				if p.onKeyframeRequest != nil {
					p.onKeyframeRequest()
				}
			}
		}
	}
}

// WriteNALU satisfies media.RTPObserver: it packetizes one H264 Annex-B
// NALU and writes the resulting RTP packets to the video track, marking
// the final packet of each call (a whole access unit for a video frame;
// each config NALU arrives in a call of its own) so downstream jitter
// buffers know a boundary was reached.
func (p *Preview) WriteNALU(nalu []byte, keyFrame bool, pts uint64) {
	if len(nalu) == 0 {
		return
	}
	ts := ptsToRTPTimestamp(pts)
	pkts := p.packetizer.Packetize(nalu, 0)
	for i, pkt := range pkts {
		pkt.Timestamp = ts
		pkt.Marker = i == len(pkts)-1
		if err := p.track.WriteRTP(pkt); err != nil {
			p.log.Error("write rtp: %v", err)
			return
		}
	}
}

// Close tears down the peer connection.
func (p *Preview) Close() error {
	return p.pc.Close()
}

func randomSSRC() uint32 {
	return uint32(time.Now().UnixNano())
}

// ptsToRTPTimestamp converts scrcpy's microsecond PTS to the 90kHz RTP
// clock the negotiated H264 video track uses.
func ptsToRTPTimestamp(pts uint64) uint32 {
	return uint32(pts * 90000 / 1_000_000)
}
