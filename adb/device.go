// Package adb implements the DeviceBus capability: the thin, cancellable
// surface over the adb client binary that the rest of the gateway uses to
// enumerate devices, push the streaming server, open reverse tunnels and
// run shell commands. It never interprets scrcpy's own wire protocol — see
// package wire for that.
package adb

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/simba-remote/gateway/internal/apperr"
)

// State mirrors the second column of `adb devices -l`.
type State string

const (
	StateDevice       State = "device"
	StateUnauthorized State = "unauthorized"
	StateOffline      State = "offline"
)

// Device is a single entry from `adb devices`.
type Device struct {
	ID    string // serial, or host:port for a network device
	State State
}

// Options configure how the adb client is invoked.
type Options struct {
	// BinPath overrides adb binary resolution (see ResolveBinaryPath).
	BinPath string
	// ServerHost/ServerPort target a specific adb server; zero values use
	// adb's own defaults (127.0.0.1:5037).
	ServerHost string
	ServerPort int
}

// Bus is the DeviceBus implementation wrapping the local adb client.
type Bus struct {
	opts Options
	bin  string
}

// ResolveBinaryPath picks an adb executable: ADB_PATH env var, then a
// bundled per-OS path under ./assets/platform-tools, then PATH lookup.
// Returns apperr.ErrAdbUnavailable if none is usable.
func ResolveBinaryPath() (string, error) {
	if p := os.Getenv("ADB_PATH"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	bundled := bundledPath()
	if _, err := os.Stat(bundled); err == nil {
		return bundled, nil
	}

	if p, err := exec.LookPath("adb"); err == nil {
		return p, nil
	}

	return "", fmt.Errorf("resolve adb binary: %w", apperr.ErrAdbUnavailable)
}

func bundledPath() string {
	name := "adb"
	if runtime.GOOS == "windows" {
		name = "adb.exe"
	}
	return fmt.Sprintf("assets/platform-tools/%s/%s", runtime.GOOS, name)
}

// NewBus verifies adb is reachable and starts its server if needed.
func NewBus(opts Options) (*Bus, error) {
	bin := opts.BinPath
	if bin == "" {
		resolved, err := ResolveBinaryPath()
		if err != nil {
			return nil, err
		}
		bin = resolved
	}
	b := &Bus{opts: opts, bin: bin}

	cmd := exec.Command(b.bin, b.args(false, "", "start-server")...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("start adb server: %w (%s)", apperr.ErrAdbUnavailable, trimOutput(out, err))
	}
	return b, nil
}

func (b *Bus) args(includeSerial bool, serial string, extra ...string) []string {
	args := make([]string, 0, 4+len(extra))
	if b.opts.ServerHost != "" {
		args = append(args, "-H", b.opts.ServerHost)
	}
	if b.opts.ServerPort != 0 {
		args = append(args, "-P", strconv.Itoa(b.opts.ServerPort))
	}
	if includeSerial && serial != "" {
		args = append(args, "-s", serial)
	}
	args = append(args, extra...)
	return args
}

func trimOutput(out []byte, err error) string {
	s := strings.TrimSpace(string(out))
	if s == "" {
		return err.Error()
	}
	return s
}

// List enumerates all devices visible to adb, across every state.
func (b *Bus) List(ctx context.Context) ([]Device, error) {
	cmd := exec.CommandContext(ctx, b.bin, b.args(false, "", "devices")...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w: %s", apperr.ErrAdbUnavailable, trimOutput(out, err))
	}
	return parseDevicesOutput(string(out)), nil
}

// parseDevicesOutput parses the tab-separated body of `adb devices`:
//
//	List of devices attached
//	192.168.66.102:5555	device
//	emulator-5554	offline
func parseDevicesOutput(output string) []Device {
	var devices []Device
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		devices = append(devices, Device{ID: parts[0], State: State(parts[1])})
	}
	return devices
}

// Push uploads a local file to a path on the device.
func (b *Bus) Push(ctx context.Context, deviceID, localPath, remotePath string) error {
	cmd := exec.CommandContext(ctx, b.bin, b.args(true, deviceID, "push", localPath, remotePath)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("push %s: %w: %s", localPath, apperr.ErrPushFailed, trimOutput(out, err))
	}
	return nil
}

// ReverseList returns the reverse tunnels currently registered for a device,
// as raw "<remote> <local>" strings from `adb reverse --list`.
func (b *Bus) ReverseList(ctx context.Context, deviceID string) ([]string, error) {
	cmd := exec.CommandContext(ctx, b.bin, b.args(true, deviceID, "reverse", "--list")...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("reverse --list: %w: %s", apperr.ErrReverseSetupFailed, trimOutput(out, err))
	}
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// ReverseAdd forwards a device-side abstract socket name to a host TCP port.
func (b *Bus) ReverseAdd(ctx context.Context, deviceID, socketName string, localPort int) error {
	remote := "localabstract:" + socketName
	local := "tcp:" + strconv.Itoa(localPort)
	cmd := exec.CommandContext(ctx, b.bin, b.args(true, deviceID, "reverse", remote, local)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("reverse add %s: %w: %s", socketName, apperr.ErrReverseSetupFailed, trimOutput(out, err))
	}
	return nil
}

// ReverseRemove tears down a previously added reverse tunnel. A tunnel that
// is already gone is not treated as an error, since this is cleanup.
func (b *Bus) ReverseRemove(ctx context.Context, deviceID, socketName string) error {
	remote := "localabstract:" + socketName
	cmd := exec.CommandContext(ctx, b.bin, b.args(true, deviceID, "reverse", "--remove", remote)...)
	cmd.CombinedOutput()
	return nil
}

// ShellCollect runs a command to completion and returns its combined
// stdout+stderr. It distinguishes a nonzero exit status (ShellError,
// local to the command) from adb itself failing to reach the device
// (ShellError, transport) per the split error taxonomy.
func (b *Bus) ShellCollect(ctx context.Context, deviceID, command string) (string, error) {
	cmd := exec.CommandContext(ctx, b.bin, b.args(true, deviceID, "shell", command)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return string(out), &apperr.ShellError{Cmd: command, ExitCode: exitErr.ExitCode(), Output: string(out)}
		}
		return string(out), &apperr.ShellError{Cmd: command, Err: err}
	}
	return string(out), nil
}

// shellReadCloser joins a piped stdout with the owning command so Close
// both closes the pipe and reaps the process.
type shellReadCloser struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (c *shellReadCloser) Close() error {
	err1 := c.ReadCloser.Close()
	err2 := c.cmd.Wait()
	if err1 != nil {
		return err1
	}
	return err2
}

// Shell starts a command on the device and streams its stdout; its stderr
// goes to the gateway's own stderr.
// The returned ReadCloser must be closed by the caller to reap the process;
// cancelling ctx terminates the underlying adb invocation.
func (b *Bus) Shell(ctx context.Context, deviceID, command string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, b.bin, b.args(true, deviceID, "shell", command)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("shell %s: %w", command, err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("shell %s: %w: %v", command, apperr.ErrServerSpawnFailed, err)
	}
	return &shellReadCloser{ReadCloser: stdout, cmd: cmd}, nil
}

// InteractiveShell is a live `adb shell` session with piped stdin/stdout,
// backing CommandHub's startAdbShell/adbShellInput/stopAdbShell.
type InteractiveShell struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	Output *bufio.Scanner
}

// OpenInteractiveShell spawns `adb -s <device> shell` and returns a session
// whose Output scanner yields one line per call to Scan.
func (b *Bus) OpenInteractiveShell(ctx context.Context, deviceID string) (*InteractiveShell, error) {
	cmd := exec.CommandContext(ctx, b.bin, b.args(true, deviceID, "shell")...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("interactive shell: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("interactive shell: %w", err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("interactive shell: %w: %v", apperr.ErrServerSpawnFailed, err)
	}
	return &InteractiveShell{cmd: cmd, stdin: stdin, Output: bufio.NewScanner(stdout)}, nil
}

// Write sends a line of input, appending the trailing newline.
func (s *InteractiveShell) Write(line string) error {
	_, err := io.WriteString(s.stdin, line+"\n")
	return err
}

// Close ends the shell session.
func (s *InteractiveShell) Close() error {
	s.stdin.Close()
	return s.cmd.Wait()
}
