package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/simba-remote/gateway/internal/safego"
)

// diagnosticsOutputDir is where startDiagnostics writes its logcat capture,
// relative to the process working directory.
const diagnosticsOutputDir = "output/diagnostics"

// diagnosticsProcess streams logcat for one device to a log file until
// Stop is called, satisfying state.DiagnosticsProcess.
type diagnosticsProcess struct {
	cancel context.CancelFunc
	logcat io.ReadCloser
	file   *os.File
	done   chan struct{}
}

func (d *diagnosticsProcess) Stop() error {
	d.cancel()
	d.logcat.Close()
	<-d.done
	return d.file.Close()
}

var diagDeviceOwner sync.Map // deviceID -> clientID, enforces "at most one per device"

// handleStartDiagnostics collects the requested one-shot snapshots, then
// starts a logcat stream to a log file until stopDiagnostics or the
// client disconnects.
func (h *Hub) handleStartDiagnostics(clientID string, raw json.RawMessage, env envelope, sender Sender) {
	var req struct {
		Diagnostics []string `json:"diagnostics"`
	}
	_ = json.Unmarshal(raw, &req)

	deviceID, ok := h.resolveDeviceID(clientID, raw)
	if !ok {
		h.replyError(sender, env.CommandID, "no active device")
		return
	}
	if owner, busy := diagDeviceOwner.LoadOrStore(deviceID, clientID); busy && owner.(string) != clientID {
		h.replyError(sender, env.CommandID, "diagnostics already running for this device")
		return
	}

	snapshots := make(map[string]string, len(req.Diagnostics))
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	for _, name := range req.Diagnostics {
		cmd, ok := diagnosticSnapshotCommands[name]
		if !ok {
			continue
		}
		out, err := h.bus.ShellCollect(ctx, deviceID, cmd)
		if err != nil {
			snapshots[name] = "error: " + err.Error()
			continue
		}
		snapshots[name] = strings.TrimSpace(out)
	}
	cancel()

	if err := os.MkdirAll(diagnosticsOutputDir, 0o755); err != nil {
		diagDeviceOwner.Delete(deviceID)
		h.replyError(sender, env.CommandID, err.Error())
		return
	}
	logPath := filepath.Join(diagnosticsOutputDir, fmt.Sprintf("device_diagnostics_%s_%d.log", sanitizeFilename(deviceID), time.Now().UnixNano()))
	file, err := os.Create(logPath)
	if err != nil {
		diagDeviceOwner.Delete(deviceID)
		h.replyError(sender, env.CommandID, err.Error())
		return
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	logcat, err := h.bus.Shell(runCtx, deviceID, "logcat")
	if err != nil {
		runCancel()
		file.Close()
		diagDeviceOwner.Delete(deviceID)
		h.replyError(sender, env.CommandID, err.Error())
		return
	}

	proc := &diagnosticsProcess{cancel: runCancel, logcat: logcat, file: file, done: make(chan struct{})}
	safego.Go("diagnostics-logcat-"+deviceID, func() {
		defer close(proc.done)
		io.Copy(file, logcat)
	})
	h.state.SetDiagnostics(clientID, proc)

	h.reply(sender, "diagnosticsResponse", env.CommandID, map[string]any{
		"success":   true,
		"snapshots": snapshots,
		"logPath":   logPath,
	})
}

func (h *Hub) handleStopDiagnostics(clientID string, env envelope, sender Sender) {
	deviceID, _ := h.resolveDeviceID(clientID, nil)
	_ = h.state.StopDiagnostics(clientID)
	if deviceID != "" {
		diagDeviceOwner.Delete(deviceID)
	}
	h.reply(sender, "diagnosticsResponse", env.CommandID, map[string]any{"success": true})
	h.reply(sender, "diagnosticsStopped", "", map[string]any{"success": true})
}

var diagnosticSnapshotCommands = map[string]string{
	"battery": "dumpsys battery",
	"wifi":    "dumpsys wifi | grep Wi-Fi.is",
	"display": "dumpsys display",
	"meminfo": "dumpsys meminfo",
	"cpuinfo": "dumpsys cpuinfo",
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ':' || r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, s)
}
