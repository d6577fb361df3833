package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// handleAdbCommand dispatches the adbCommand sub-actions (display/WM
// operations), sharing the outer commandId but replying with a type named
// after the sub action, per spec.md §4.6's "<commandType>Response".
func (h *Hub) handleAdbCommand(ctx context.Context, clientID string, raw json.RawMessage, env envelope, sender Sender) {
	var req struct {
		CommandType string `json:"commandType"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		DPI         int    `json:"dpi"`
		Enable      bool   `json:"enable"`
		Degrees     int    `json:"degrees"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		h.replyError(sender, env.CommandID, "malformed adbCommand: "+err.Error())
		return
	}
	deviceID, ok := h.resolveDeviceID(clientID, raw)
	if !ok {
		h.replyError(sender, env.CommandID, "no active device")
		return
	}
	respType := req.CommandType + "Response"

	switch req.CommandType {
	case "getDisplayList":
		displays, err := h.sessions.ListDisplays(ctx, deviceID)
		if err != nil {
			h.replyError(sender, env.CommandID, err.Error())
			return
		}
		h.reply(sender, respType, env.CommandID, map[string]any{"success": true, "displays": displays})

	case "setOverlay":
		if !req.Enable {
			if _, err := h.bus.ShellCollect(ctx, deviceID, `settings put global overlay_display_devices ""`); err != nil {
				h.replyError(sender, env.CommandID, err.Error())
				return
			}
			h.reply(sender, respType, env.CommandID, map[string]any{"success": true, "enabled": false})
			return
		}
		spec := fmt.Sprintf("%dx%d/%d", req.Width, req.Height, req.DPI)
		if _, err := h.bus.ShellCollect(ctx, deviceID, "settings put global overlay_display_devices "+spec); err != nil {
			h.replyError(sender, env.CommandID, err.Error())
			return
		}
		h.reply(sender, respType, env.CommandID, map[string]any{"success": true, "enabled": true})

	case "setWmSize":
		if req.Width <= 0 || req.Height <= 0 {
			if _, err := h.bus.ShellCollect(ctx, deviceID, "wm size reset"); err != nil {
				h.replyError(sender, env.CommandID, err.Error())
				return
			}
		} else if _, err := h.bus.ShellCollect(ctx, deviceID, fmt.Sprintf("wm size %dx%d", req.Width, req.Height)); err != nil {
			h.replyError(sender, env.CommandID, err.Error())
			return
		}
		h.reply(sender, respType, env.CommandID, map[string]any{"success": true})

	case "setWmDensity":
		if req.DPI <= 0 {
			if _, err := h.bus.ShellCollect(ctx, deviceID, "wm density reset"); err != nil {
				h.replyError(sender, env.CommandID, err.Error())
				return
			}
		} else if _, err := h.bus.ShellCollect(ctx, deviceID, fmt.Sprintf("wm density %d", req.DPI)); err != nil {
			h.replyError(sender, env.CommandID, err.Error())
			return
		}
		h.reply(sender, respType, env.CommandID, map[string]any{"success": true})

	case "adbRotateScreen":
		h.saveRotationState(ctx, deviceID)
		if _, err := h.bus.ShellCollect(ctx, deviceID, "settings put system accelerometer_rotation 0"); err != nil {
			h.replyError(sender, env.CommandID, err.Error())
			return
		}
		orientation := (req.Degrees / 90) % 4
		if orientation < 0 {
			orientation += 4
		}
		if _, err := h.bus.ShellCollect(ctx, deviceID, fmt.Sprintf("settings put system user_rotation %d", orientation)); err != nil {
			h.replyError(sender, env.CommandID, err.Error())
			return
		}
		h.reply(sender, respType, env.CommandID, map[string]any{"success": true, "orientation": orientation})

	case "cleanupAdb":
		h.cleanupAdbState(ctx, deviceID)
		h.reply(sender, respType, env.CommandID, map[string]any{"success": true})

	default:
		h.replyError(sender, env.CommandID, "unknown adbCommand commandType: "+req.CommandType)
	}
}

// saveRotationState caches the device's current user_rotation and
// accelerometer_rotation the first time it's seen, so cleanupAdb can
// restore them later (spec.md §4.6 notes).
func (h *Hub) saveRotationState(ctx context.Context, deviceID string) {
	h.rotationMu.Lock()
	_, cached := h.rotationCache[deviceID]
	h.rotationMu.Unlock()
	if cached {
		return
	}
	userRotation, _ := h.bus.ShellCollect(ctx, deviceID, "settings get system user_rotation")
	accelRotation, _ := h.bus.ShellCollect(ctx, deviceID, "settings get system accelerometer_rotation")
	h.rotationMu.Lock()
	h.rotationCache[deviceID] = rotationState{
		userRotation:          strings.TrimSpace(userRotation),
		accelerometerRotation: strings.TrimSpace(accelRotation),
	}
	h.rotationMu.Unlock()
}

// cleanupAdbState restores any cached rotation state and clears the
// overlay display, mirroring cleanupSession step 5's display-mode cleanup
// but callable directly from CommandHub for a manual cleanupAdb request.
func (h *Hub) cleanupAdbState(ctx context.Context, deviceID string) {
	h.rotationMu.Lock()
	saved, ok := h.rotationCache[deviceID]
	delete(h.rotationCache, deviceID)
	h.rotationMu.Unlock()
	if ok {
		if saved.userRotation != "" {
			h.bus.ShellCollect(ctx, deviceID, "settings put system user_rotation "+saved.userRotation)
		}
		if saved.accelerometerRotation != "" {
			h.bus.ShellCollect(ctx, deviceID, "settings put system accelerometer_rotation "+saved.accelerometerRotation)
		}
	}
	h.bus.ShellCollect(ctx, deviceID, `settings put global overlay_display_devices ""`)
}
