package command

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/simba-remote/gateway/internal/session"
	"github.com/simba-remote/gateway/internal/state"
)

type fakeSender struct {
	replies []map[string]any
}

func (f *fakeSender) SendJSON(v any) error {
	f.replies = append(f.replies, v.(map[string]any))
	return nil
}

func (f *fakeSender) last() map[string]any {
	if len(f.replies) == 0 {
		return nil
	}
	return f.replies[len(f.replies)-1]
}

func newTestHub() *Hub {
	st := state.New()
	sessions := session.NewManager(nil, st, 27200, "")
	return NewHub(nil, sessions, st)
}

func TestHandleMalformedTopLevelJSON(t *testing.T) {
	h := newTestHub()
	sender := &fakeSender{}
	h.Handle(context.Background(), "client1", json.RawMessage(`not json`), sender)

	got := sender.last()
	if got["type"] != "error" {
		t.Fatalf("expected error reply, got %v", got)
	}
}

func TestHandleUnknownAction(t *testing.T) {
	h := newTestHub()
	sender := &fakeSender{}
	h.Handle(context.Background(), "client1", json.RawMessage(`{"action":"doesNotExist","commandId":"1"}`), sender)

	got := sender.last()
	if got["type"] != "error" || got["commandId"] != "1" {
		t.Fatalf("expected error reply echoing commandId, got %v", got)
	}
}

func TestHandleDisconnectWithNoActiveSession(t *testing.T) {
	h := newTestHub()
	sender := &fakeSender{}
	h.Handle(context.Background(), "client1", json.RawMessage(`{"action":"disconnect","commandId":"1"}`), sender)

	got := sender.last()
	if got["type"] != "status" || got["message"] != "No active stream to stop" {
		t.Fatalf("expected no-op disconnect status, got %v", got)
	}
}

func TestHandleStartRequiresDeviceID(t *testing.T) {
	h := newTestHub()
	sender := &fakeSender{}
	h.Handle(context.Background(), "client1", json.RawMessage(`{"action":"start","commandId":"1"}`), sender)

	got := sender.last()
	if got["type"] != "error" || got["message"] != "deviceId required" {
		t.Fatalf("expected deviceId required error, got %v", got)
	}
}

func TestHandleVolumeRejectsOutOfRangeValue(t *testing.T) {
	h := newTestHub()
	sender := &fakeSender{}
	h.Handle(context.Background(), "client1", json.RawMessage(`{"action":"volume","commandId":"1","value":150}`), sender)

	got := sender.last()
	if got["type"] != "error" {
		t.Fatalf("expected error reply for out-of-range volume, got %v", got)
	}
}

func TestHandleNavActionRejectsInvalidKey(t *testing.T) {
	h := newTestHub()
	sender := &fakeSender{}
	h.Handle(context.Background(), "client1", json.RawMessage(`{"action":"navAction","commandId":"1","key":"bogus"}`), sender)

	got := sender.last()
	if got["type"] != "error" {
		t.Fatalf("expected error reply for invalid nav key, got %v", got)
	}
}

func TestHandleLaunchAppRequiresPackageName(t *testing.T) {
	h := newTestHub()
	sender := &fakeSender{}
	h.Handle(context.Background(), "client1", json.RawMessage(`{"action":"launchApp","commandId":"1"}`), sender)

	got := sender.last()
	if got["type"] != "error" || got["message"] != "packageName required" {
		t.Fatalf("expected packageName required error, got %v", got)
	}
}

func TestHandleAdbCommandNoActiveDevice(t *testing.T) {
	h := newTestHub()
	sender := &fakeSender{}
	h.Handle(context.Background(), "client1", json.RawMessage(`{"action":"adbCommand","commandId":"1","commandType":"getDisplayList"}`), sender)

	got := sender.last()
	if got["type"] != "error" || got["message"] != "no active device" {
		t.Fatalf("expected no active device error, got %v", got)
	}
}

func TestHandleAdbCommandUnknownCommandType(t *testing.T) {
	h := newTestHub()
	sender := &fakeSender{}
	h.Handle(context.Background(), "client1", json.RawMessage(`{"action":"adbCommand","commandId":"1","commandType":"bogus","deviceId":"dev1"}`), sender)

	got := sender.last()
	if got["type"] != "error" {
		t.Fatalf("expected error for unknown commandType, got %v", got)
	}
}

func TestHandleStartFrameProbeNoActiveSession(t *testing.T) {
	h := newTestHub()
	sender := &fakeSender{}
	h.Handle(context.Background(), "client1", json.RawMessage(`{"action":"startFrameProbe","commandId":"1"}`), sender)

	got := sender.last()
	if got["type"] != "error" || got["message"] != "no active session" {
		t.Fatalf("expected no active session error, got %v", got)
	}
}

func TestResolveDeviceIDPrefersExplicitPayload(t *testing.T) {
	h := newTestHub()
	id, ok := h.resolveDeviceID("client1", json.RawMessage(`{"deviceId":"dev1"}`))
	if !ok || id != "dev1" {
		t.Fatalf("expected explicit deviceId to win, got id=%q ok=%v", id, ok)
	}
}

func TestResolveDeviceIDFallsBackToSessionThenFails(t *testing.T) {
	h := newTestHub()
	if _, ok := h.resolveDeviceID("client1", json.RawMessage(`{}`)); ok {
		t.Fatal("expected resolution to fail with no deviceId and no session")
	}
}

func TestParseTrailingInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"level: 87", 87},
		{"  level:100  ", 100},
		{"no digits here", -1},
		{"", -1},
	}
	for _, tt := range tests {
		if got := parseTrailingInt(tt.in); got != tt.want {
			t.Errorf("parseTrailingInt(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseMaxVolume(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"- STREAM_MUSIC:\n   Muted: false\n   Min: 0\n   Max: 15\n   Current: 7", 15},
		{"no max field here", 0},
	}
	for _, tt := range tests {
		if got := parseMaxVolume(tt.in); got != tt.want {
			t.Errorf("parseMaxVolume(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestExtractSSID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`mWifiInfo SSID: "MyNetwork", BSSID: ...`, "MyNetwork"},
		{`mWifiInfo SSID: <unknown ssid>`, ""},
		{"no ssid field", ""},
	}
	for _, tt := range tests {
		if got := extractSSID(tt.in); got != tt.want {
			t.Errorf("extractSSID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"emulator-5554", "emulator-5554"},
		{"192.168.1.5:5555", "192.168.1.5_5555"},
		{"a b/c\\d", "a_b_c_d"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
