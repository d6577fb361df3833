package displaymode

import (
	"context"
	"fmt"
)

// overlay creates a secondary display via settings put global
// overlay_display_devices, then diffs two DisplayLister calls (before and
// after) to find the new display's id, per spec.md scenario 3: "calls
// getDisplayList twice to discover the new id, passes display_id=<new> to
// the device server."
type overlay struct {
	bus    busRunner
	lister DisplayLister
	opts   Options

	newDisplayID int
}

func (o *overlay) Apply(ctx context.Context, deviceID string) (Cleanup, error) {
	before, err := o.lister.ListDisplays(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("overlay: list displays before precondition: %w", err)
	}

	spec := fmt.Sprintf("%dx%d/%d", o.opts.Width, o.opts.Height, o.opts.DPI)
	cmd := fmt.Sprintf("settings put global overlay_display_devices %s", spec)
	if _, err := o.bus.ShellCollect(ctx, deviceID, cmd); err != nil {
		return nil, fmt.Errorf("overlay precondition: %w", err)
	}

	after, err := o.lister.ListDisplays(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("overlay: list displays after precondition: %w", err)
	}
	id, ok := newDisplayID(before, after)
	if !ok {
		return nil, fmt.Errorf("overlay: no new display id appeared after precondition")
	}
	o.newDisplayID = id

	cleanup := func(ctx context.Context) error {
		_, err := o.bus.ShellCollect(ctx, deviceID, "settings put global overlay_display_devices \"\"")
		return err
	}
	return cleanup, nil
}

// ServerOption returns display_id=<the id Apply discovered>; Apply must
// run first (displaymode.For's caller is required to call Apply before
// ServerOption for this reason).
func (o *overlay) ServerOption(ctx context.Context, deviceID string) (string, error) {
	if o.newDisplayID == 0 {
		return "", fmt.Errorf("overlay: server option requested before precondition applied")
	}
	return fmt.Sprintf("display_id=%d", o.newDisplayID), nil
}

// newDisplayID returns an id present in after but absent from before (the
// last one in after's order if there are several), and whether any such id
// was found.
func newDisplayID(before, after []Display) (int, bool) {
	seen := make(map[int]bool, len(before))
	for _, d := range before {
		seen[d.ID] = true
	}
	id, found := 0, false
	for _, d := range after {
		if !seen[d.ID] {
			id, found = d.ID, true
		}
	}
	return id, found
}
