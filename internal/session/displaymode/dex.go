package displaymode

import "context"

// dex targets Samsung DeX's secondary display (id 2) directly; nothing to
// set up or tear down beforehand.
type dex struct{}

func (d *dex) Apply(ctx context.Context, deviceID string) (Cleanup, error) {
	return func(context.Context) error { return nil }, nil
}

func (d *dex) ServerOption(ctx context.Context, deviceID string) (string, error) {
	return "display_id=2", nil
}
