package command

import (
	"context"
	"encoding/json"

	"github.com/simba-remote/gateway/internal/safego"
)

// handleStartAdbShell opens one interactive adb shell per client (spec.md
// §4.6 "One per client") and starts a background reader that streams each
// output line as adbShellOutput.
func (h *Hub) handleStartAdbShell(clientID string, env envelope, sender Sender) {
	deviceID, ok := h.resolveDeviceID(clientID, nil)
	if !ok {
		h.replyError(sender, env.CommandID, "no active device")
		return
	}
	shell, err := h.bus.OpenInteractiveShell(context.Background(), deviceID)
	if err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}
	h.state.SetShell(clientID, shell)

	safego.Go("adb-shell-reader-"+clientID, func() {
		for shell.Output.Scan() {
			h.reply(sender, "adbShellOutput", "", map[string]any{"line": shell.Output.Text()})
		}
	})

	h.reply(sender, "status", env.CommandID, map[string]any{"success": true, "message": "shell started"})
}

// handleAdbShellInput writes one line to the client's open shell, echoing
// it back as an adbShellOutput "$ ..." line per spec.md §4.6.
func (h *Hub) handleAdbShellInput(clientID string, raw json.RawMessage, env envelope, sender Sender) {
	var req struct {
		Input string `json:"input"`
	}
	_ = json.Unmarshal(raw, &req)

	shellIface, ok := h.state.GetShell(clientID)
	if !ok {
		h.replyError(sender, env.CommandID, "no active shell")
		return
	}
	shell, ok := shellIface.(interface{ Write(string) error })
	if !ok {
		h.replyError(sender, env.CommandID, "shell does not support input")
		return
	}
	if err := shell.Write(req.Input); err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}
	h.reply(sender, "adbShellOutput", "", map[string]any{"line": "$ " + req.Input})
}

func (h *Hub) handleStopAdbShell(clientID string, env envelope, sender Sender) {
	_ = h.state.StopShell(clientID)
	h.reply(sender, "status", env.CommandID, map[string]any{"success": true, "message": "shell stopped"})
}
