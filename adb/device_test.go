package adb

import "testing"

func TestParseDevicesOutput(t *testing.T) {
	out := "List of devices attached\n" +
		"192.168.66.102:5555\tdevice\n" +
		"emulator-5554\toffline\n" +
		"\n"

	devices := parseDevicesOutput(out)
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	if devices[0].ID != "192.168.66.102:5555" || devices[0].State != StateDevice {
		t.Errorf("device 0 = %+v", devices[0])
	}
	if devices[1].ID != "emulator-5554" || devices[1].State != StateOffline {
		t.Errorf("device 1 = %+v", devices[1])
	}
}

func TestParseDevicesOutputEmpty(t *testing.T) {
	devices := parseDevicesOutput("List of devices attached\n")
	if len(devices) != 0 {
		t.Fatalf("got %d devices, want 0", len(devices))
	}
}

func TestBusArgsIncludesSerialOnlyWhenRequested(t *testing.T) {
	b := &Bus{opts: Options{ServerHost: "127.0.0.1", ServerPort: 5037}}

	withSerial := b.args(true, "ABC123", "shell", "echo hi")
	want := []string{"-H", "127.0.0.1", "-P", "5037", "-s", "ABC123", "shell", "echo hi"}
	if !equalStrings(withSerial, want) {
		t.Errorf("args with serial = %v, want %v", withSerial, want)
	}

	noSerial := b.args(false, "ABC123", "devices")
	want2 := []string{"-H", "127.0.0.1", "-P", "5037", "devices"}
	if !equalStrings(noSerial, want2) {
		t.Errorf("args without serial = %v, want %v", noSerial, want2)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
