/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: runner.go
Description: ADB-backed command runner for the Akaylee Spoofer. Implements the
CommandRunner channel over `adb -s <serial> shell`, with root execution via su,
per-command timeouts, and classification of transport loss versus ordinary command
failure. Robust output handling for reliable automation.
*/

package adb

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kleascm/akaylee-spoofer/pkg/interfaces"
)

// channelLossMarkers are adb stderr fragments that indicate the transport
// to the device is gone, as opposed to a command that merely failed
var channelLossMarkers = []string{
	"device not found",
	"device offline",
	"no devices/emulators found",
	"device still connecting",
	"connection reset",
}

// Runner executes shell commands on Android devices through the adb binary
type Runner struct {
	ADBPath string // Path to the adb binary
}

// NewRunner creates a runner using the given adb binary path
func NewRunner(adbPath string) *Runner {
	if adbPath == "" {
		adbPath = "adb"
	}
	return &Runner{ADBPath: adbPath}
}

// Run executes a shell command on the device
func (r *Runner) Run(ctx context.Context, deviceID string, timeout time.Duration, args ...string) (*interfaces.CommandResult, error) {
	full := append([]string{"-s", deviceID, "shell"}, args...)
	return r.invoke(ctx, timeout, full)
}

// RunAsRoot executes a shell command on the device under su. The command
// is re-quoted into a single string for `su 0 -c`, escaping characters
// the device shell would otherwise interpret.
func (r *Runner) RunAsRoot(ctx context.Context, deviceID string, timeout time.Duration, args ...string) (*interfaces.CommandResult, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command for root execution")
	}
	full := []string{"-s", deviceID, "shell", "su", "0", "-c", quoteForShell(args)}
	return r.invoke(ctx, timeout, full)
}

// invoke runs the adb binary and classifies the outcome
func (r *Runner) invoke(ctx context.Context, timeout time.Duration, args []string) (*interfaces.CommandResult, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, r.ADBPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &interfaces.CommandResult{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	if cmdCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}
	// Caller cancellation, not a per-command timeout. The killed process
	// surfaces as an ExitError, so classify before the exit-code path.
	if cmdCtx.Err() == context.Canceled {
		return result, context.Canceled
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// adb itself could not run or the transport dropped
			return result, fmt.Errorf("adb invocation failed: %w", err)
		}
	}

	if isChannelLoss(result.Stderr) {
		return result, fmt.Errorf("%s: %w", result.Stderr, interfaces.ErrChannelLost)
	}
	return result, nil
}

// isChannelLoss reports whether stderr indicates transport loss
func isChannelLoss(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range channelLossMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// quoteForShell joins command arguments into a single-quoted string safe
// to pass through `su 0 -c`
func quoteForShell(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		escaped := strings.ReplaceAll(arg, "'", `'\''`)
		if strings.ContainsAny(escaped, " &|;()<>$`\\\"!*?#") {
			escaped = "'" + escaped + "'"
		}
		quoted[i] = escaped
	}
	return strings.Join(quoted, " ")
}

// ListDevices returns the serials of attached devices in the "device"
// state, skipping unauthorized and offline entries
func (r *Runner) ListDevices(ctx context.Context, timeout time.Duration) ([]string, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, r.ADBPath, "devices")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	var devices []string
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "device" {
			devices = append(devices, fields[0])
		}
	}
	return devices, nil
}
