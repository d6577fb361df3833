package command

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/simba-remote/gateway/internal/safego"
)

// harOutputDir is where startHarTrace writes the collector's .har file,
// relative to the process working directory.
const harOutputDir = "output/har_files"

// harProcess wraps the external HAR collector script, escalating to
// termination if it doesn't exit within 1s of the "STOP" write, per
// spec.md §4.6.
type harProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	done   chan struct{}
}

func (h *harProcess) Stop() error {
	io.WriteString(h.stdin, "STOP\n")
	select {
	case <-h.done:
		return nil
	case <-time.After(1 * time.Second):
		h.cmd.Process.Kill()
		<-h.done
		return nil
	}
}

// handleStartHarTrace spawns the external HAR collector
// (python3 har_collection.py <url> <harPath> <captureTime> <deviceId>),
// writing under harOutputDir, and streams its stdout as harTraceStatus
// lines until it exits.
func (h *Hub) handleStartHarTrace(clientID string, raw json.RawMessage, env envelope, sender Sender) {
	var req struct {
		URL         string `json:"url"`
		HarFilename string `json:"harFilename"`
		CaptureTime int    `json:"captureTime"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.URL == "" {
		h.replyError(sender, env.CommandID, "url required")
		return
	}
	if req.HarFilename == "" {
		req.HarFilename = "chrome_har_output.har"
	}
	if req.CaptureTime <= 0 {
		req.CaptureTime = 100
	}
	deviceID, ok := h.resolveDeviceID(clientID, raw)
	if !ok {
		h.replyError(sender, env.CommandID, "no active device")
		return
	}

	if err := os.MkdirAll(harOutputDir, 0o755); err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}
	harPath := filepath.Join(harOutputDir, req.HarFilename)

	cmd := exec.Command("python3", "har_collection.py", req.URL, harPath, fmt.Sprintf("%d", req.CaptureTime), deviceID)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}
	if err := cmd.Start(); err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}

	proc := &harProcess{cmd: cmd, stdin: stdin, done: make(chan struct{})}
	h.state.SetHarTrace(clientID, proc)

	safego.Go("har-trace-"+clientID, func() {
		defer close(proc.done)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			h.reply(sender, "harTraceStatus", "", map[string]any{"line": scanner.Text()})
		}
		cmd.Wait()
		h.reply(sender, "harTraceResponse", "", map[string]any{"success": true, "harFilename": req.HarFilename})
	})

	h.reply(sender, "status", env.CommandID, map[string]any{"success": true, "message": "HAR trace started"})
}

func (h *Hub) handleStopHarTrace(clientID string, env envelope, sender Sender) {
	_ = h.state.StopHarTrace(clientID)
}
