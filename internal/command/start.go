package command

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/simba-remote/gateway/internal/apperr"
	"github.com/simba-remote/gateway/internal/session"
	"github.com/simba-remote/gateway/internal/session/displaymode"
)

type startRequest struct {
	DeviceID           string `json:"deviceId"`
	Video              bool   `json:"video"`
	Audio              bool   `json:"audio"`
	Control            bool   `json:"control"`
	MaxFPS             int    `json:"maxFps"`
	BitRate            int    `json:"bitrate"`
	PowerOn            bool   `json:"powerOn"`
	TurnScreenOff      bool   `json:"turnScreenOff"`
	DisplayMode        string `json:"displayMode"`
	Resolution         string `json:"resolution"` // "WxH", for overlay/native_taskbar
	DPI                string `json:"dpi"`
	CaptureOrientation string `json:"captureOrientation"`
}

// handleStart runs createSession (spec.md §4.3) and reports the resulting
// device/video/audio metadata events, or a JSON error on any failure.
func (h *Hub) handleStart(ctx context.Context, clientID string, raw json.RawMessage, env envelope, sender Sender) {
	var req startRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.replyError(sender, env.CommandID, "malformed start: "+err.Error())
		return
	}
	if req.DeviceID == "" {
		h.replyError(sender, env.CommandID, "deviceId required")
		return
	}
	if req.DisplayMode == "" {
		req.DisplayMode = displaymode.Default
	}

	major, err := h.androidMajor(ctx, req.DeviceID)
	if err != nil {
		h.replyError(sender, env.CommandID, "device major version: "+err.Error())
		return
	}

	width, height := parseResolution(req.Resolution)
	dpi := parseDPIValue(req.DPI)

	createReq := session.CreateRequest{
		ClientID: clientID,
		DeviceID: req.DeviceID,
		Options: session.Options{
			Video:              req.Video,
			Audio:              req.Audio,
			Control:            req.Control,
			MaxFPS:             req.MaxFPS,
			VideoBitRate:       req.BitRate,
			PowerOn:            req.PowerOn,
			PowerOffOnClose:    req.TurnScreenOff,
			CaptureOrientation: req.CaptureOrientation,
		},
		DisplayMode: req.DisplayMode,
		DisplayOpts: displaymode.Options{
			Width:  width,
			Height: height,
			DPI:    dpi,
		},
		AndroidMajor: major,
	}

	sess, err := h.sessions.CreateSession(ctx, createReq)
	if err != nil {
		h.replyStartError(sender, env.CommandID, err)
		return
	}

	if req.Audio && !sess.Options.Audio {
		h.reply(sender, "status", env.CommandID, map[string]any{"success": true, "message": "Audio disabled (Android < 11)"})
	}

	if name := sess.DeviceName(); name != "" {
		h.reply(sender, "deviceName", "", map[string]any{"name": name})
	}

	w, hgt := sess.Dimensions()
	h.reply(sender, "videoInfo", "", map[string]any{"width": w, "height": hgt})
	if sess.AudioEnabled() {
		h.reply(sender, "audioInfo", "", map[string]any{"codecId": 0x00616163})
	}
	h.reply(sender, "status", env.CommandID, map[string]any{"success": true, "message": "Streaming started", "scid": sess.SCID})
}

func (h *Hub) replyStartError(sender Sender, commandID string, err error) {
	switch {
	case errors.Is(err, apperr.ErrAlreadyAttached):
		h.replyError(sender, commandID, "client already has an active session")
	default:
		h.replyError(sender, commandID, err.Error())
	}
}

func parseResolution(s string) (w, h int) {
	for i := 0; i < len(s); i++ {
		if s[i] == 'x' || s[i] == 'X' {
			w = atoiSafe(s[:i])
			h = atoiSafe(s[i+1:])
			return
		}
	}
	return 0, 0
}

func parseDPIValue(s string) int {
	return atoiSafe(s)
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
