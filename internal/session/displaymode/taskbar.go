package displaymode

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// nativeTaskbar flips width/height (landscape desktop with a taskbar along
// the short edge) and derives a "magic DPI": round(H/600*160), clamping
// the requested DPI down to it if it would otherwise be higher. This
// formula rounds before clamping and only ever adjusts DPI downward —
// preserved exactly as the source computes it, not tightened.
type nativeTaskbar struct {
	bus  busRunner
	opts Options

	priorUserRotation        string
	priorAccelerometerRotate string
}

func (n *nativeTaskbar) magicDPI() int {
	return int(math.Round(float64(n.opts.Height) / 600 * 160))
}

func (n *nativeTaskbar) effectiveDPI() int {
	magic := n.magicDPI()
	if n.opts.DPI > magic {
		return magic
	}
	return n.opts.DPI
}

func (n *nativeTaskbar) Apply(ctx context.Context, deviceID string) (Cleanup, error) {
	rot, err := n.bus.ShellCollect(ctx, deviceID, "settings get system user_rotation")
	if err != nil {
		return nil, fmt.Errorf("native_taskbar: read user_rotation: %w", err)
	}
	n.priorUserRotation = strings.TrimSpace(rot)

	accel, err := n.bus.ShellCollect(ctx, deviceID, "settings get system accelerometer_rotation")
	if err != nil {
		return nil, fmt.Errorf("native_taskbar: read accelerometer_rotation: %w", err)
	}
	n.priorAccelerometerRotate = strings.TrimSpace(accel)

	flippedW, flippedH := n.opts.Height, n.opts.Width
	sizeCmd := fmt.Sprintf("wm size %dx%d", flippedW, flippedH)
	if _, err := n.bus.ShellCollect(ctx, deviceID, sizeCmd); err != nil {
		return nil, fmt.Errorf("native_taskbar: %w", err)
	}
	densityCmd := fmt.Sprintf("wm density %d", n.effectiveDPI())
	if _, err := n.bus.ShellCollect(ctx, deviceID, densityCmd); err != nil {
		return nil, fmt.Errorf("native_taskbar: %w", err)
	}

	cleanup := func(ctx context.Context) error {
		var firstErr error
		run := func(cmd string) {
			if _, err := n.bus.ShellCollect(ctx, deviceID, cmd); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		run("wm size reset")
		run("wm density reset")
		if n.priorUserRotation != "" {
			run("settings put system user_rotation " + n.priorUserRotation)
		}
		if n.priorAccelerometerRotate != "" {
			run("settings put system accelerometer_rotation " + n.priorAccelerometerRotate)
		}
		return firstErr
	}
	return cleanup, nil
}

func (n *nativeTaskbar) ServerOption(ctx context.Context, deviceID string) (string, error) {
	return "", nil
}
