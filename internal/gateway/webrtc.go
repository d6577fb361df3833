package gateway

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/simba-remote/gateway/internal/webrtcpreview"
)

type webrtcOfferEnvelope struct {
	Action    string                    `json:"action"`
	CommandID string                    `json:"commandId"`
	Offer     webrtc.SessionDescription `json:"offer"`
}

func isWebRTCOffer(data []byte) bool {
	var env struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return false
	}
	return env.Action == "webrtcOffer"
}

func (g *Gateway) replyWebRTCError(client *ClientConnection, commandID, message string) {
	if err := client.SendJSON(map[string]any{"type": "error", "commandId": commandID, "message": message}); err != nil {
		g.log.Error("reply webrtcOffer error: %v", err)
	}
}

// handleWebRTCOffer negotiates the opt-in WebRTC preview transport
// (requested by a separate "webrtcOffer" action message) for the client's
// currently running session, attaching the resulting Preview as a
// secondary RTP observer on the live video MediaPump so both the
// WebSocket binary feed and the WebRTC track keep receiving frames.
func (g *Gateway) handleWebRTCOffer(client *ClientConnection, raw []byte) {
	var env webrtcOfferEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.replyWebRTCError(client, env.CommandID, "malformed webrtcOffer: "+err.Error())
		return
	}

	sess, ok := g.sessions.SessionForClient(client.ID())
	if !ok {
		g.replyWebRTCError(client, env.CommandID, "no active session")
		return
	}

	preview, answer, err := webrtcpreview.Answer(env.Offer, webrtcpreview.Options{
		OnKeyframeRequest: sess.RequestKeyframe,
		OnControlFrame: func(frame []byte) {
			if router := client.controlRouter(); router != nil {
				router.Enqueue(frame)
			}
		},
	}, g.log)
	if err != nil {
		g.replyWebRTCError(client, env.CommandID, err.Error())
		return
	}

	pump := client.videoPumpFor(sess.SCID)
	if pump == nil {
		preview.Close()
		g.replyWebRTCError(client, env.CommandID, "no active video pump for this session")
		return
	}
	pump.SetRTPObserver(preview)

	if err := client.SendJSON(map[string]any{"type": "webrtcAnswer", "commandId": env.CommandID, "answer": answer}); err != nil {
		g.log.Error("reply webrtcAnswer: %v", err)
	}
}
