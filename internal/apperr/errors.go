// Package apperr defines the sentinel error taxonomy shared across the
// gateway. Components wrap these with fmt.Errorf("...: %w", ErrX) and
// callers branch on errors.Is, per the cleanup-policy split demanded by the
// session lifecycle (spec.md §7 / SPEC_FULL.md §9).
package apperr

import (
	"errors"
	"strconv"
)

var (
	// Provisioning-phase errors: fail start() before any socket exists, no
	// display-mode rollback required.
	ErrAdbUnavailable     = errors.New("adb unavailable")
	ErrDeviceUnavailable  = errors.New("device unavailable")
	ErrPushFailed         = errors.New("push server failed")
	ErrReverseSetupFailed = errors.New("reverse tunnel setup failed")
	ErrServerSpawnFailed  = errors.New("device server spawn failed")

	// Handshake-phase errors: fail start() after some sockets may exist;
	// partial sockets and display-mode preconditions must be rolled back.
	ErrHandshakeBadDummy = errors.New("handshake: bad dummy byte")
	ErrHandshakeTimeout  = errors.New("handshake: timed out")
	ErrUnsupportedCodec  = errors.New("handshake: unsupported codec")

	// Running-phase errors: drain the session, non-fatal to the process.
	ErrSocketReset      = errors.New("socket reset")
	ErrSocketWriteError = errors.New("socket write error")

	// Per-command errors: reported on the command's response only.
	ErrCommandTimeout    = errors.New("command timed out")
	ErrCommandShellError = errors.New("command shell error")

	// Single-message errors: the offending message is dropped, connection
	// survives.
	ErrProtocolViolation = errors.New("protocol violation")

	// Session/client bookkeeping.
	ErrAlreadyAttached  = errors.New("client already attached to a session")
	ErrNoSuchSession    = errors.New("no such session")
	ErrNoSuchClient     = errors.New("no such client")
	ErrConnectionClosed = errors.New("connection closed")
)

// ShellError distinguishes a nonzero shell exit status from a transport
// failure reaching the device at all — the cleanup policy differs for each
// (SPEC_FULL.md §9 / Design Notes): a shell error is local to the one
// command, a transport error invalidates the whole device connection.
type ShellError struct {
	Cmd      string
	ExitCode int
	Output   string
	Err      error
}

func (e *ShellError) Error() string {
	if e.Err != nil {
		return "shell transport error running " + e.Cmd + ": " + e.Err.Error()
	}
	return "shell command exited " + strconv.Itoa(e.ExitCode) + ": " + e.Cmd
}

func (e *ShellError) Unwrap() error {
	if e.Err != nil {
		return errors.Join(ErrCommandShellError, e.Err)
	}
	return ErrCommandShellError
}

// IsTransport reports whether the failure never reached a shell exit code
// (adb itself failed, the device dropped, etc.) as opposed to the remote
// command simply returning nonzero.
func (e *ShellError) IsTransport() bool { return e.Err != nil }
