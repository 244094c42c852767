/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: detector.go
Description: Device capability detector for the Akaylee Spoofer. Probes a device for
root access, resetprop provider, multi-user support, Android version, storage, and
unlock state using independent, concurrently-run read-only probes. A probe that times
out or errors records the capability as absent; partial detection never aborts a session.
*/

package device

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/akaylee-spoofer/pkg/interfaces"
)

// maxUsersPattern matches the long form of `pm get-max-users` output
var maxUsersPattern = regexp.MustCompile(`(?i)Maximum supported users:\s*(\d+)`)

// providerProbe describes one resetprop provider marker check
type providerProbe struct {
	provider interfaces.ResetpropProvider
	args     []string
}

// providerProbes is evaluated in priority order: Magisk, then APatch,
// then KernelSU
var providerProbes = []providerProbe{
	{interfaces.ProviderMagisk, []string{"which", "magisk"}},
	{interfaces.ProviderAPatch, []string{"ls", "/data/adb/apd"}},
	{interfaces.ProviderKernelSU, []string{"ls", "/data/adb/ksud"}},
}

// Detector probes devices for their capability snapshot
type Detector struct {
	runner       interfaces.CommandRunner
	logger       *logrus.Logger
	probeTimeout time.Duration
}

// NewDetector creates a capability detector. Each probe runs with its own
// timeout so one slow query cannot starve the rest.
func NewDetector(runner interfaces.CommandRunner, logger *logrus.Logger, probeTimeout time.Duration) *Detector {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Detector{runner: runner, logger: logger, probeTimeout: probeTimeout}
}

// Detect runs the full probe set against a device and returns the
// snapshot. Detection never fails: probes that error or time out simply
// leave their capability absent.
func (d *Detector) Detect(ctx context.Context, deviceID string) *interfaces.DeviceCapabilities {
	caps := &interfaces.DeviceCapabilities{
		DeviceID:   deviceID,
		Provider:   interfaces.ProviderNone,
		DetectedAt: time.Now(),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	probes := []func(context.Context, string, *interfaces.DeviceCapabilities, *sync.Mutex){
		d.probeSDKVersion,
		d.probeRootAndProvider,
		d.probeMultiUser,
		d.probeStorage,
		d.probeUnlockState,
	}

	for _, probe := range probes {
		wg.Add(1)
		go func(p func(context.Context, string, *interfaces.DeviceCapabilities, *sync.Mutex)) {
			defer wg.Done()
			p(ctx, deviceID, caps, &mu)
		}(probe)
	}
	wg.Wait()

	d.logger.WithFields(logrus.Fields{
		"device":     deviceID,
		"root":       caps.RootAccess,
		"provider":   caps.Provider,
		"multi_user": caps.MultiUserSupport,
		"sdk":        caps.SDKVersion,
	}).Info("Capability detection completed")

	return caps
}

// probeSDKVersion reads ro.build.version.sdk and derives ephemeral-user
// support (Android 8.0, SDK 26+)
func (d *Detector) probeSDKVersion(ctx context.Context, deviceID string, caps *interfaces.DeviceCapabilities, mu *sync.Mutex) {
	result, err := d.runner.Run(ctx, deviceID, d.probeTimeout, "getprop", "ro.build.version.sdk")
	if err != nil || !result.Ok() {
		return
	}
	sdk, convErr := strconv.Atoi(strings.TrimSpace(result.Stdout))
	if convErr != nil {
		return
	}

	mu.Lock()
	caps.SDKVersion = sdk
	caps.EphemeralUserSupport = sdk >= 26
	mu.Unlock()
}

// probeRootAndProvider checks for root via a harmless privileged command,
// then probes each known provider's marker in priority order. The
// resetprop utility must also be reachable for a provider to count.
func (d *Detector) probeRootAndProvider(ctx context.Context, deviceID string, caps *interfaces.DeviceCapabilities, mu *sync.Mutex) {
	result, err := d.runner.RunAsRoot(ctx, deviceID, d.probeTimeout, "id")
	if err != nil || !result.Ok() || !strings.Contains(result.Stdout, "uid=0") {
		return
	}

	mu.Lock()
	caps.RootAccess = true
	mu.Unlock()

	resetprop, err := d.runner.RunAsRoot(ctx, deviceID, d.probeTimeout, "which", "resetprop")
	if err != nil || !resetprop.Ok() || resetprop.Stdout == "" {
		return
	}

	for _, probe := range providerProbes {
		marker, err := d.runner.RunAsRoot(ctx, deviceID, d.probeTimeout, probe.args...)
		if err == nil && marker.Ok() {
			mu.Lock()
			caps.Provider = probe.provider
			caps.ResetpropPath = resetprop.Stdout
			mu.Unlock()
			return
		}
	}
}

// probeMultiUser queries pm get-max-users, falling back to the global
// multi_user_enabled setting when the platform reports a single user
func (d *Detector) probeMultiUser(ctx context.Context, deviceID string, caps *interfaces.DeviceCapabilities, mu *sync.Mutex) {
	result, err := d.runner.Run(ctx, deviceID, d.probeTimeout, "pm", "get-max-users")
	if err != nil || !result.Ok() {
		return
	}

	maxUsers := 0
	if m := maxUsersPattern.FindStringSubmatch(result.Stdout); m != nil {
		maxUsers, _ = strconv.Atoi(m[1])
	} else if n, convErr := strconv.Atoi(strings.TrimSpace(result.Stdout)); convErr == nil {
		maxUsers = n
	}

	mu.Lock()
	caps.MaxUsers = maxUsers
	mu.Unlock()

	if maxUsers > 1 {
		mu.Lock()
		caps.MultiUserSupport = true
		mu.Unlock()
		return
	}

	if maxUsers == 1 {
		setting, err := d.runner.Run(ctx, deviceID, d.probeTimeout, "settings", "get", "global", "multi_user_enabled")
		if err == nil && setting.Ok() && strings.TrimSpace(setting.Stdout) == "1" {
			mu.Lock()
			caps.MultiUserSupport = true
			mu.Unlock()
		}
	}
}

// probeStorage parses free space on /data from df output
func (d *Detector) probeStorage(ctx context.Context, deviceID string, caps *interfaces.DeviceCapabilities, mu *sync.Mutex) {
	result, err := d.runner.Run(ctx, deviceID, d.probeTimeout, "df", "/data")
	if err != nil || !result.Ok() {
		return
	}

	lines := strings.Split(result.Stdout, "\n")
	if len(lines) < 2 {
		return
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 4 {
		return
	}

	// df on Android reports 1K blocks; the available column is fourth
	availKB, convErr := strconv.ParseInt(fields[3], 10, 64)
	if convErr != nil {
		return
	}

	mu.Lock()
	caps.FreeStorageMB = availKB / 1024
	mu.Unlock()
}

// probeUnlockState checks boot completion and the keyguard, best effort
func (d *Detector) probeUnlockState(ctx context.Context, deviceID string, caps *interfaces.DeviceCapabilities, mu *sync.Mutex) {
	boot, err := d.runner.Run(ctx, deviceID, d.probeTimeout, "getprop", "sys.boot_completed")
	if err != nil || !boot.Ok() || strings.TrimSpace(boot.Stdout) != "1" {
		return
	}

	unlocked := true
	keyguard, err := d.runner.Run(ctx, deviceID, d.probeTimeout, "dumpsys", "window")
	if err == nil && keyguard.Ok() {
		if strings.Contains(keyguard.Stdout, "mKeyguardShowing=true") ||
			strings.Contains(keyguard.Stdout, "isStatusBarKeyguard=true") {
			unlocked = false
		}
	}

	mu.Lock()
	caps.Unlocked = unlocked
	mu.Unlock()
}
