// Package displaymode implements the precondition/cleanup ADB command
// pairs each displayMode requires before and after an on-device server
// run, grounded on the scoped-acquisition pattern spec.md §9 calls for:
// every precondition has a matching cleanup guaranteed to run on any exit
// path, mirroring how the teacher pairs adb.Device.Reverse with the
// session's own Close.
package displaymode

import (
	"context"
	"fmt"

	"github.com/simba-remote/gateway/adb"
)

// Mode names as accepted in a session's start options.
const (
	Default       = "default"
	Overlay       = "overlay"
	Virtual       = "virtual"
	Dex           = "dex"
	NativeTaskbar = "native_taskbar"
)

// Options carries the fields of a session's start request that a
// precondition needs to build its adb command line.
type Options struct {
	Width, Height int
	DPI           int
	NewDisplay    string // "<W>x<H>/<DPI>" for virtual mode
}

// Cleanup reverses whatever a Precondition applied. It must be safe to
// call even if Apply partially failed.
type Cleanup func(ctx context.Context) error

// Display is one entry from the streaming server's list-mode output:
// a display id paired with its reported resolution.
type Display struct {
	ID         int
	Resolution string
}

// DisplayLister enumerates the device's currently known displays, the
// capability the overlay precondition needs to discover the id of the
// display it just created (session.Manager implements this against the
// streaming server's own list-mode, since that's the only on-device
// source of truth for ids and resolutions together).
type DisplayLister interface {
	ListDisplays(ctx context.Context, deviceID string) ([]Display, error)
}

// Precondition is a scoped display-mode setup: Apply runs the adb commands
// needed before the device server starts and returns a Cleanup to
// guarantee they're rolled back on any exit path (handshake failure,
// disconnect, or normal session end).
type Precondition interface {
	Apply(ctx context.Context, deviceID string) (Cleanup, error)
	// ServerOption returns the extra "key=value" token (if any) that must
	// be appended to the on-device server's option string, e.g.
	// "display_id=2" for dex.
	ServerOption(ctx context.Context, deviceID string) (string, error)
}

// busRunner is the minimal adb.Bus surface displaymode needs, satisfied by
// *adb.Bus; kept as an interface so tests can fake it.
type busRunner interface {
	ShellCollect(ctx context.Context, deviceID, command string) (string, error)
}

var _ busRunner = (*adb.Bus)(nil)

// For reports the Precondition for a display mode name; Default has no
// precondition commands and always returns a no-op. lister is only
// consulted by Overlay.
func For(bus busRunner, lister DisplayLister, mode string, opts Options) (Precondition, error) {
	switch mode {
	case "", Default:
		return noop{}, nil
	case Overlay:
		return &overlay{bus: bus, lister: lister, opts: opts}, nil
	case Virtual:
		return &virtual{opts: opts}, nil
	case NativeTaskbar:
		return &nativeTaskbar{bus: bus, opts: opts}, nil
	case Dex:
		return &dex{}, nil
	default:
		return nil, fmt.Errorf("displaymode: unknown mode %q", mode)
	}
}

type noop struct{}

func (noop) Apply(ctx context.Context, deviceID string) (Cleanup, error) {
	return func(context.Context) error { return nil }, nil
}
func (noop) ServerOption(ctx context.Context, deviceID string) (string, error) { return "", nil }
