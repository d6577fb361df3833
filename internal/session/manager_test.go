package session

import (
	"regexp"
	"strings"
	"testing"
)

func TestNewSCIDFormat(t *testing.T) {
	scid := newSCID()
	if !regexp.MustCompile(`^[0-9a-f]{8}$`).MatchString(scid) {
		t.Errorf("scid %q is not 8 lowercase hex chars", scid)
	}
}

func TestNewSCIDIsRandom(t *testing.T) {
	a, b := newSCID(), newSCID()
	if a == b {
		t.Error("expected two scids to differ (flaky only if RNG repeats, astronomically unlikely)")
	}
}

func TestContainsReverse(t *testing.T) {
	list := []string{"localabstract:scrcpy_abc123 tcp:27200", "localabstract:other tcp:1"}
	if !containsReverse(list, "scrcpy_abc123") {
		t.Error("expected existing reverse tunnel to be found")
	}
	if containsReverse(list, "scrcpy_missing") {
		t.Error("expected missing tunnel to not be found")
	}
}

func TestBuildServerCommandIncludesCoreOptions(t *testing.T) {
	m := &Manager{}
	opts := Options{Video: true, Audio: true, Control: true, MaxFPS: 30, VideoBitRate: 4_000_000}
	cmd := m.buildServerCommand("abc12345", opts, "")

	for _, want := range []string{
		"video=true", "audio=true", "control=true", "scid=abc12345",
		"max_fps=30", "video_bit_rate=4000000", RemoteServerPath,
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("command %q missing %q", cmd, want)
		}
	}
}

func TestBuildServerCommandAppendsDisplayOption(t *testing.T) {
	m := &Manager{}
	cmd := m.buildServerCommand("abc12345", Options{}, "display_id=2")
	if !strings.Contains(cmd, "display_id=2") {
		t.Errorf("expected display option in command, got %q", cmd)
	}
}

func TestAllocatePortStartsFromBaseWhenNoSessionsLive(t *testing.T) {
	m := &Manager{basePort: 27300}
	port, err := m.allocatePort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if port < 27300 {
		t.Errorf("port = %d, want >= 27300", port)
	}
}
