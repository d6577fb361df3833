package displaymode

import (
	"context"
	"fmt"
)

// virtual has no ADB precondition: the server itself creates the virtual
// display when given new_display=<W>x<H>/<DPI> as a launch option.
type virtual struct {
	opts Options
}

func (v *virtual) Apply(ctx context.Context, deviceID string) (Cleanup, error) {
	if v.opts.NewDisplay == "" {
		return nil, fmt.Errorf("virtual display mode requires new_display")
	}
	return func(context.Context) error { return nil }, nil
}

func (v *virtual) ServerOption(ctx context.Context, deviceID string) (string, error) {
	return "new_display=" + v.opts.NewDisplay, nil
}
