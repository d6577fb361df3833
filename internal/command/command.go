// Package command implements the CommandHub capability: request/response
// JSON commands with commandId correlation and a bounded timeout,
// generalized from the teacher's gin `func(c *gin.Context)` handler shape
// (handlers_gin.go) adapted from one-shot HTTP replies to WebSocket JSON
// replies that always carry a mirrored commandId (spec.md §3).
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/simba-remote/gateway/adb"
	"github.com/simba-remote/gateway/internal/logging"
	"github.com/simba-remote/gateway/internal/metrics"
	"github.com/simba-remote/gateway/internal/session"
	"github.com/simba-remote/gateway/internal/state"
)

// DefaultTimeout is the request/response bound for ADB-backed commands
// (spec.md §5 "ADB command request/response: default 15s").
const DefaultTimeout = 15 * time.Second

// Sender delivers one JSON response (or streamed event) to the owning
// client connection. Implemented by gateway.ClientConnection; kept as a
// narrow local interface so this package never imports internal/gateway.
type Sender interface {
	SendJSON(v any) error
}

// envelope is the minimal shape every inbound command shares.
type envelope struct {
	Action    string `json:"action"`
	CommandID string `json:"commandId"`
}

// Hub dispatches inbound JSON commands to their handlers, enforcing the
// default timeout and commandId echo.
type Hub struct {
	bus      *adb.Bus
	sessions *session.Manager
	state    *state.State
	log      *logging.Logger
	timeout  time.Duration

	rotationMu    sync.Mutex
	rotationCache map[string]rotationState // deviceID -> saved rotation
	volumeMaxMu   sync.Mutex
	volumeMaxCache map[string]int // clientID:deviceID -> device max volume
}

type rotationState struct {
	userRotation         string
	accelerometerRotation string
}

// NewHub builds a Hub. bus/sessions/state are shared with the rest of the
// gateway; the Hub never mutates session or client registration directly,
// only through sessions.Manager and state.State's own methods.
func NewHub(bus *adb.Bus, sessions *session.Manager, st *state.State) *Hub {
	return &Hub{
		bus:            bus,
		sessions:       sessions,
		state:          st,
		log:            logging.New("command", logging.LevelInfo),
		timeout:        DefaultTimeout,
		rotationCache:  make(map[string]rotationState),
		volumeMaxCache: make(map[string]int),
	}
}

// Handle parses and dispatches one inbound JSON command from clientID,
// sending its response(s) through sender. It never returns an error to the
// caller — all failures are reported as a JSON error response instead, per
// spec.md's "any error during provisioning ... surfaces to the owner as
// JSON error{message}" policy generalized to every command.
func (h *Hub) Handle(ctx context.Context, clientID string, raw json.RawMessage, sender Sender) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.reply(sender, "error", "", map[string]any{"message": "malformed command: " + err.Error()})
		return
	}

	metrics.CommandsInFlight.Add(1)
	defer metrics.CommandsInFlight.Add(-1)

	cctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	switch env.Action {
	case "getAdbDevices":
		h.handleGetAdbDevices(cctx, env, sender)
	case "start":
		h.handleStart(cctx, clientID, raw, env, sender)
	case "disconnect":
		h.handleDisconnect(clientID, env, sender)
	case "volume":
		h.handleVolume(cctx, clientID, raw, env, sender)
	case "getVolume":
		h.handleGetVolume(cctx, clientID, env, sender)
	case "navAction":
		h.handleNavAction(cctx, clientID, raw, env, sender)
	case "wifiToggle":
		h.handleWifiToggle(cctx, clientID, raw, env, sender)
	case "getWifiStatus":
		h.handleGetWifiStatus(cctx, clientID, env, sender)
	case "getBatteryLevel":
		h.handleGetBatteryLevel(cctx, clientID, env, sender)
	case "launchApp":
		h.handleLaunchApp(cctx, clientID, raw, env, sender)
	case "adbCommand":
		h.handleAdbCommand(cctx, clientID, raw, env, sender)
	case "startDiagnostics":
		h.handleStartDiagnostics(clientID, raw, env, sender)
	case "stopDiagnostics":
		h.handleStopDiagnostics(clientID, env, sender)
	case "startHarTrace":
		h.handleStartHarTrace(clientID, raw, env, sender)
	case "stopHarTrace":
		h.handleStopHarTrace(clientID, env, sender)
	case "startAdbShell":
		h.handleStartAdbShell(clientID, env, sender)
	case "adbShellInput":
		h.handleAdbShellInput(clientID, raw, env, sender)
	case "stopAdbShell":
		h.handleStopAdbShell(clientID, env, sender)
	case "startFrameProbe":
		h.handleStartFrameProbe(clientID, env, sender)
	default:
		h.reply(sender, "error", env.CommandID, map[string]any{"message": "unknown action: " + env.Action})
	}

	if cctx.Err() == context.DeadlineExceeded {
		metrics.CommandTimeouts.Add(1)
	}
}

// reply sends {type, commandId?, ...fields}. fields may be nil.
func (h *Hub) reply(sender Sender, respType, commandID string, fields map[string]any) {
	body := map[string]any{"type": respType}
	if commandID != "" {
		body["commandId"] = commandID
	}
	for k, v := range fields {
		body[k] = v
	}
	if err := sender.SendJSON(body); err != nil {
		h.log.Error("reply %s: %v", respType, err)
	}
}

func (h *Hub) replyError(sender Sender, commandID, message string) {
	h.reply(sender, "error", commandID, map[string]any{"success": false, "message": message})
}

// resolveDeviceID resolves the device a device-scoped command targets:
// an explicit "deviceId" field in the payload wins, otherwise the client's
// current session's device, per spec.md §4.6 commands that don't require
// an active stream (volume/wifi/battery/nav can be issued standalone).
func (h *Hub) resolveDeviceID(clientID string, raw json.RawMessage) (string, bool) {
	var withDevice struct {
		DeviceID string `json:"deviceId"`
	}
	_ = json.Unmarshal(raw, &withDevice)
	if withDevice.DeviceID != "" {
		return withDevice.DeviceID, true
	}
	if sess, ok := h.sessions.SessionForClient(clientID); ok {
		return sess.DeviceID, true
	}
	return "", false
}

func (h *Hub) handleGetAdbDevices(ctx context.Context, env envelope, sender Sender) {
	devices, err := h.bus.List(ctx)
	if err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}
	list := make([]map[string]string, 0, len(devices))
	for _, d := range devices {
		list = append(list, map[string]string{"id": d.ID, "state": string(d.State)})
	}
	h.reply(sender, "adbDevicesList", env.CommandID, map[string]any{"success": true, "devices": list})
}

func (h *Hub) handleDisconnect(clientID string, env envelope, sender Sender) {
	if h.sessions.DisconnectClient(clientID) {
		h.reply(sender, "status", env.CommandID, map[string]any{"success": true, "message": "Streaming stopped"})
		return
	}
	h.reply(sender, "status", env.CommandID, map[string]any{"success": true, "message": "No active stream to stop"})
}

func (h *Hub) handleVolume(ctx context.Context, clientID string, raw json.RawMessage, env envelope, sender Sender) {
	var req struct {
		Value int `json:"value"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.Value < 0 || req.Value > 100 {
		h.replyError(sender, env.CommandID, "volume requires 0..100 value")
		return
	}
	deviceID, ok := h.resolveDeviceID(clientID, raw)
	if !ok {
		h.replyError(sender, env.CommandID, "no active device")
		return
	}
	maxVol, err := h.deviceMaxVolume(ctx, clientID, deviceID)
	if err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}
	target := (req.Value * maxVol) / 100
	major, _ := h.androidMajor(ctx, deviceID)
	var cmd string
	if major >= 11 {
		cmd = fmt.Sprintf("cmd media_session volume --stream 3 --set %d", target)
	} else {
		cmd = fmt.Sprintf("media volume --stream 3 --set %d", target)
	}
	if _, err := h.bus.ShellCollect(ctx, deviceID, cmd); err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}
	h.reply(sender, "volumeResponse", env.CommandID, map[string]any{"success": true, "value": req.Value})
}

func (h *Hub) handleGetVolume(ctx context.Context, clientID string, env envelope, sender Sender) {
	deviceID, ok := h.resolveDeviceID(clientID, nil)
	if !ok {
		h.replyError(sender, env.CommandID, "no active device")
		return
	}
	maxVol, err := h.deviceMaxVolume(ctx, clientID, deviceID)
	if err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}
	out, err := h.bus.ShellCollect(ctx, deviceID, "media volume --stream 3 --get")
	if err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}
	current := parseTrailingInt(out)
	pct := 0
	if maxVol > 0 {
		pct = (current * 100) / maxVol
	}
	h.reply(sender, "volumeInfo", env.CommandID, map[string]any{"success": true, "value": pct})
}

func (h *Hub) deviceMaxVolume(ctx context.Context, clientID, deviceID string) (int, error) {
	key := clientID + ":" + deviceID
	h.volumeMaxMu.Lock()
	if v, ok := h.volumeMaxCache[key]; ok {
		h.volumeMaxMu.Unlock()
		return v, nil
	}
	h.volumeMaxMu.Unlock()

	out, err := h.bus.ShellCollect(ctx, deviceID, "media volume --stream 3 --get")
	if err != nil {
		return 0, err
	}
	max := parseMaxVolume(out)
	if max <= 0 {
		max = 15 // Android's conventional default STREAM_MUSIC max
	}
	h.volumeMaxMu.Lock()
	h.volumeMaxCache[key] = max
	h.volumeMaxMu.Unlock()
	return max, nil
}

var navKeycodes = map[string]string{
	"back":    "4",
	"home":    "3",
	"recents": "187",
	"power":   "26",
	"volup":   "24",
	"voldown": "25",
	"menu":    "82",
}

func (h *Hub) handleNavAction(ctx context.Context, clientID string, raw json.RawMessage, env envelope, sender Sender) {
	var req struct {
		Key string `json:"key"`
	}
	_ = json.Unmarshal(raw, &req)
	keycode, ok := navKeycodes[req.Key]
	if !ok {
		h.replyError(sender, env.CommandID, "invalid nav key: "+req.Key)
		return
	}
	deviceID, ok := h.resolveDeviceID(clientID, raw)
	if !ok {
		h.replyError(sender, env.CommandID, "no active device")
		return
	}
	if _, err := h.bus.ShellCollect(ctx, deviceID, "input keyevent "+keycode); err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}
	h.reply(sender, "navResponse", env.CommandID, map[string]any{"success": true, "key": req.Key})
}

func (h *Hub) handleWifiToggle(ctx context.Context, clientID string, raw json.RawMessage, env envelope, sender Sender) {
	var req struct {
		Enable bool `json:"enable"`
	}
	_ = json.Unmarshal(raw, &req)
	deviceID, ok := h.resolveDeviceID(clientID, raw)
	if !ok {
		h.replyError(sender, env.CommandID, "no active device")
		return
	}
	verb := "disable"
	if req.Enable {
		verb = "enable"
	}
	if _, err := h.bus.ShellCollect(ctx, deviceID, "svc wifi "+verb); err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}

	confirmed := false
	for i := 0; i < 10; i++ {
		out, err := h.bus.ShellCollect(ctx, deviceID, "dumpsys wifi | grep Wi-Fi.is")
		if err == nil && strings.Contains(strings.ToLower(out), map[bool]string{true: "enabled", false: "disabled"}[req.Enable]) {
			confirmed = true
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if !confirmed {
		h.replyError(sender, env.CommandID, "wifi toggle confirmation timed out")
		return
	}

	ssid := ""
	if req.Enable {
		for i := 0; i < 15; i++ {
			out, err := h.bus.ShellCollect(ctx, deviceID, "dumpsys wifi | grep 'mWifiInfo SSID'")
			if err == nil {
				if s := extractSSID(out); s != "" {
					ssid = s
					break
				}
			}
			time.Sleep(500 * time.Millisecond)
		}
	}
	h.reply(sender, "wifiResponse", env.CommandID, map[string]any{"success": true, "enabled": req.Enable, "ssid": ssid})
}

func (h *Hub) handleGetWifiStatus(ctx context.Context, clientID string, env envelope, sender Sender) {
	deviceID, ok := h.resolveDeviceID(clientID, nil)
	if !ok {
		h.replyError(sender, env.CommandID, "no active device")
		return
	}
	out, err := h.bus.ShellCollect(ctx, deviceID, "dumpsys wifi | grep Wi-Fi.is")
	if err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}
	enabled := strings.Contains(strings.ToLower(out), "enabled")
	h.reply(sender, "wifiStatus", env.CommandID, map[string]any{"success": true, "enabled": enabled})
}

func (h *Hub) handleGetBatteryLevel(ctx context.Context, clientID string, env envelope, sender Sender) {
	deviceID, ok := h.resolveDeviceID(clientID, nil)
	if !ok {
		h.replyError(sender, env.CommandID, "no active device")
		return
	}
	out, err := h.bus.ShellCollect(ctx, deviceID, "dumpsys battery | grep level")
	if err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}
	level := parseTrailingInt(out)
	if level < 0 || level > 100 {
		h.replyError(sender, env.CommandID, fmt.Sprintf("battery level out of range: %d", level))
		return
	}
	h.reply(sender, "batteryInfo", env.CommandID, map[string]any{"success": true, "level": level})
}

func (h *Hub) handleLaunchApp(ctx context.Context, clientID string, raw json.RawMessage, env envelope, sender Sender) {
	var req struct {
		PackageName string `json:"packageName"`
	}
	_ = json.Unmarshal(raw, &req)
	if req.PackageName == "" {
		h.replyError(sender, env.CommandID, "packageName required")
		return
	}
	deviceID, ok := h.resolveDeviceID(clientID, raw)
	if !ok {
		h.replyError(sender, env.CommandID, "no active device")
		return
	}
	cmd := fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", req.PackageName)
	if _, err := h.bus.ShellCollect(ctx, deviceID, cmd); err != nil {
		h.replyError(sender, env.CommandID, err.Error())
		return
	}
	h.reply(sender, "launchAppResponse", env.CommandID, map[string]any{"success": true, "packageName": req.PackageName})
}

// androidMajor queries and parses the device's major SDK release version.
func (h *Hub) androidMajor(ctx context.Context, deviceID string) (int, error) {
	out, err := h.bus.ShellCollect(ctx, deviceID, "getprop ro.build.version.release")
	if err != nil {
		return 0, err
	}
	out = strings.TrimSpace(out)
	// "release" may be e.g. "13" or "8.1.0"; take the leading integer.
	if idx := strings.IndexByte(out, '.'); idx >= 0 {
		out = out[:idx]
	}
	major, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("parse android release %q: %w", out, err)
	}
	return major, nil
}

func parseTrailingInt(s string) int {
	fields := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == ':' || r == ' ' || r == '\n' || r == '\r' || r == ','
	})
	for i := len(fields) - 1; i >= 0; i-- {
		if n, err := strconv.Atoi(strings.TrimSpace(fields[i])); err == nil {
			return n
		}
	}
	return -1
}

func parseMaxVolume(out string) int {
	// "media volume --stream 3 --get" prints e.g. "- STREAM_MUSIC:\n   Muted: false\n   Min: 0\n   Max: 15\n   Current: ...".
	idx := strings.Index(out, "Max:")
	if idx < 0 {
		return 0
	}
	rest := strings.TrimSpace(out[idx+len("Max:"):])
	end := strings.IndexAny(rest, " \n\r")
	if end >= 0 {
		rest = rest[:end]
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return n
}

func extractSSID(out string) string {
	idx := strings.Index(out, "SSID:")
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(out[idx+len("SSID:"):])
	if end := strings.IndexAny(rest, ",\n\r"); end >= 0 {
		rest = rest[:end]
	}
	rest = strings.Trim(rest, `"`)
	if rest == "<unknown ssid>" {
		return ""
	}
	return rest
}
