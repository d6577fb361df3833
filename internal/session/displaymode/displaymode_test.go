package displaymode

import (
	"context"
	"testing"
)

type fakeBus struct {
	responses map[string]string
	calls     []string
}

func (f *fakeBus) ShellCollect(ctx context.Context, deviceID, command string) (string, error) {
	f.calls = append(f.calls, command)
	return f.responses[command], nil
}

type fakeLister struct {
	calls int
	pages [][]Display
}

func (f *fakeLister) ListDisplays(ctx context.Context, deviceID string) ([]Display, error) {
	i := f.calls
	f.calls++
	if i >= len(f.pages) {
		return f.pages[len(f.pages)-1], nil
	}
	return f.pages[i], nil
}

func TestForDefaultIsNoop(t *testing.T) {
	p, err := For(&fakeBus{}, nil, Default, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cleanup, err := p.Apply(context.Background(), "dev1")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

func TestForUnknownMode(t *testing.T) {
	if _, err := For(&fakeBus{}, nil, "bogus", Options{}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestDexServerOption(t *testing.T) {
	p, _ := For(&fakeBus{}, nil, Dex, Options{})
	opt, err := p.ServerOption(context.Background(), "dev1")
	if err != nil || opt != "display_id=2" {
		t.Errorf("opt=%q err=%v", opt, err)
	}
}

func TestVirtualRequiresNewDisplay(t *testing.T) {
	p, _ := For(&fakeBus{}, nil, Virtual, Options{})
	if _, err := p.Apply(context.Background(), "dev1"); err == nil {
		t.Fatal("expected error when new_display is empty")
	}
}

func TestVirtualServerOption(t *testing.T) {
	p, _ := For(&fakeBus{}, nil, Virtual, Options{NewDisplay: "1280x720/240"})
	opt, err := p.ServerOption(context.Background(), "dev1")
	if err != nil || opt != "new_display=1280x720/240" {
		t.Errorf("opt=%q err=%v", opt, err)
	}
}

func TestNativeTaskbarMagicDPIClampsDownOnly(t *testing.T) {
	bus := &fakeBus{responses: map[string]string{
		"settings get system user_rotation":        "0",
		"settings get system accelerometer_rotation": "1",
	}}
	p, _ := For(bus, nil, NativeTaskbar, Options{Width: 1080, Height: 2400, DPI: 480})
	nt := p.(*nativeTaskbar)

	// magic = round(2400/600*160) = round(640) = 640
	if got := nt.magicDPI(); got != 640 {
		t.Errorf("magicDPI = %d, want 640", got)
	}
	// requested 480 < magic 640: no clamp, stays 480
	if got := nt.effectiveDPI(); got != 480 {
		t.Errorf("effectiveDPI = %d, want 480 (no clamp needed)", got)
	}
}

func TestNativeTaskbarMagicDPIClampsWhenRequestedHigher(t *testing.T) {
	bus := &fakeBus{responses: map[string]string{
		"settings get system user_rotation":        "0",
		"settings get system accelerometer_rotation": "1",
	}}
	// H=600 -> magic = round(600/600*160) = 160; requested 320 > 160, clamp down.
	p, _ := For(bus, nil, NativeTaskbar, Options{Width: 1080, Height: 600, DPI: 320})
	nt := p.(*nativeTaskbar)
	if got := nt.magicDPI(); got != 160 {
		t.Errorf("magicDPI = %d, want 160", got)
	}
	if got := nt.effectiveDPI(); got != 160 {
		t.Errorf("effectiveDPI = %d, want 160 (clamped down)", got)
	}
}

func TestNativeTaskbarApplyFlipsDimensionsAndRestoresOnCleanup(t *testing.T) {
	bus := &fakeBus{responses: map[string]string{
		"settings get system user_rotation":        "1",
		"settings get system accelerometer_rotation": "0",
	}}
	p, _ := For(bus, nil, NativeTaskbar, Options{Width: 1080, Height: 2400, DPI: 480})
	cleanup, err := p.Apply(context.Background(), "dev1")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	foundSize := false
	for _, c := range bus.calls {
		if c == "wm size 2400x1080" {
			foundSize = true
		}
	}
	if !foundSize {
		t.Errorf("expected flipped wm size call, got calls: %v", bus.calls)
	}

	if err := cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	restoredRotation := false
	for _, c := range bus.calls {
		if c == "settings put system user_rotation 1" {
			restoredRotation = true
		}
	}
	if !restoredRotation {
		t.Errorf("expected rotation restore call, got calls: %v", bus.calls)
	}
}

func TestOverlayApplyDiscoversNewDisplayIDFromLister(t *testing.T) {
	bus := &fakeBus{}
	lister := &fakeLister{pages: [][]Display{
		{{ID: 0, Resolution: "1080x2400"}},
		{{ID: 0, Resolution: "1080x2400"}, {ID: 3, Resolution: "1600x900"}},
	}}
	p, _ := For(bus, lister, Overlay, Options{Width: 1600, Height: 900, DPI: 240})
	if _, err := p.Apply(context.Background(), "dev1"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if lister.calls != 2 {
		t.Fatalf("expected getDisplayList called twice, got %d", lister.calls)
	}

	opt, err := p.ServerOption(context.Background(), "dev1")
	if err != nil {
		t.Fatalf("server option: %v", err)
	}
	if opt != "display_id=3" {
		t.Errorf("opt = %q, want display_id=3", opt)
	}

	foundPut := false
	for _, c := range bus.calls {
		if c == "settings put global overlay_display_devices 1600x900/240" {
			foundPut = true
		}
	}
	if !foundPut {
		t.Errorf("expected overlay_display_devices precondition call, got %v", bus.calls)
	}
}

func TestOverlayApplyFailsWhenNoNewDisplayAppears(t *testing.T) {
	lister := &fakeLister{pages: [][]Display{
		{{ID: 0, Resolution: "1080x2400"}},
		{{ID: 0, Resolution: "1080x2400"}},
	}}
	p, _ := For(&fakeBus{}, lister, Overlay, Options{Width: 1600, Height: 900, DPI: 240})
	if _, err := p.Apply(context.Background(), "dev1"); err == nil {
		t.Fatal("expected error when no new display id appears")
	}
}

func TestOverlayServerOptionBeforeApplyFails(t *testing.T) {
	p, _ := For(&fakeBus{}, &fakeLister{pages: [][]Display{{}}}, Overlay, Options{})
	if _, err := p.ServerOption(context.Background(), "dev1"); err == nil {
		t.Fatal("expected error calling ServerOption before Apply")
	}
}
