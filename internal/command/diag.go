package command

import (
	"encoding/base64"

	"github.com/simba-remote/gateway/internal/diag"
)

// handleStartFrameProbe is startHarTrace's debug sibling: it decodes the
// client's currently running session's most recent video config+keyframe
// pair to a small thumbnail and returns it inline, instead of starting a
// long-running capture like startDiagnostics/startHarTrace do. There is
// no matching "stop" command since nothing keeps running afterward.
func (h *Hub) handleStartFrameProbe(clientID string, env envelope, sender Sender) {
	sess, ok := h.sessions.SessionForClient(clientID)
	if !ok {
		h.replyError(sender, env.CommandID, "no active session")
		return
	}
	config, keyframe := sess.LastConfigAndKeyframe()
	if len(config) == 0 || len(keyframe) == 0 {
		h.replyError(sender, env.CommandID, "no video frame observed yet for this session")
		return
	}

	png, err := diag.DecodeThumbnail(config, keyframe)
	if err != nil {
		h.replyError(sender, env.CommandID, "frame probe: "+err.Error())
		return
	}

	h.reply(sender, "diagnosticsResponse", env.CommandID, map[string]any{
		"success":   true,
		"thumbnail": base64.StdEncoding.EncodeToString(png),
	})
}
