/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: detector_test.go
Description: Tests for the capability detector. Covers the full rooted Magisk
path, provider priority fallthrough, the no-root path, the multi-user setting
fallback, and partial probe failure leaving capabilities absent.
*/

package device_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/kleascm/akaylee-spoofer/pkg/device"
	"github.com/kleascm/akaylee-spoofer/pkg/interfaces"
)

// probeRunner answers scripted probe commands. Probes run concurrently, so
// every method takes the lock. Unscripted commands fail, which the detector
// must treat as the capability being absent.
type probeRunner struct {
	mu        sync.Mutex
	responses map[string]*interfaces.CommandResult
	calls     []string
}

func newProbeRunner() *probeRunner {
	return &probeRunner{responses: make(map[string]*interfaces.CommandResult)}
}

func (r *probeRunner) script(command, stdout string) {
	r.responses[command] = &interfaces.CommandResult{Stdout: stdout}
}

func (r *probeRunner) run(args []string) (*interfaces.CommandResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	command := strings.Join(args, " ")
	r.calls = append(r.calls, command)
	if result, ok := r.responses[command]; ok {
		return result, nil
	}
	return &interfaces.CommandResult{ExitCode: 1, Stderr: "unscripted: " + command}, nil
}

func (r *probeRunner) Run(_ context.Context, _ string, _ time.Duration, args ...string) (*interfaces.CommandResult, error) {
	return r.run(args)
}

func (r *probeRunner) RunAsRoot(_ context.Context, _ string, _ time.Duration, args ...string) (*interfaces.CommandResult, error) {
	return r.run(append([]string{"su"}, args...))
}

func (r *probeRunner) called(command string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c == command {
			return true
		}
	}
	return false
}

func newDetector(runner *probeRunner) *device.Detector {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return device.NewDetector(runner, logger, time.Second)
}

// TestDetectRootedMagiskDevice covers the full happy path for a rooted
// Magisk device with multi-user support
func TestDetectRootedMagiskDevice(t *testing.T) {
	runner := newProbeRunner()
	runner.script("getprop ro.build.version.sdk", "34")
	runner.script("su id", "uid=0(root) gid=0(root) context=u:r:magisk:s0")
	runner.script("su which resetprop", "/data/adb/magisk/resetprop")
	runner.script("su which magisk", "/data/adb/magisk/magisk")
	runner.script("pm get-max-users", "Maximum supported users: 4")
	runner.script("df /data", "Filesystem     1K-blocks     Used Available Use% Mounted on\n/dev/block/dm-5 59069708 28435100  30634608  49% /data")
	runner.script("getprop sys.boot_completed", "1")
	runner.script("dumpsys window", "mKeyguardShowing=false")

	caps := newDetector(runner).Detect(context.Background(), "emulator-5554")

	assert.Equal(t, "emulator-5554", caps.DeviceID)
	assert.Equal(t, 34, caps.SDKVersion)
	assert.True(t, caps.EphemeralUserSupport)
	assert.True(t, caps.RootAccess)
	assert.Equal(t, interfaces.ProviderMagisk, caps.Provider)
	assert.Equal(t, "/data/adb/magisk/resetprop", caps.ResetpropPath)
	assert.Equal(t, 4, caps.MaxUsers)
	assert.True(t, caps.MultiUserSupport)
	assert.Equal(t, int64(30634608/1024), caps.FreeStorageMB)
	assert.True(t, caps.Unlocked)
	assert.True(t, caps.CanSpoof())
}

// TestDetectProviderPriority falls through Magisk and APatch to KernelSU
func TestDetectProviderPriority(t *testing.T) {
	runner := newProbeRunner()
	runner.script("su id", "uid=0(root) gid=0(root)")
	runner.script("su which resetprop", "/data/adb/ksu/bin/resetprop")
	runner.script("su ls /data/adb/ksud", "/data/adb/ksud")

	caps := newDetector(runner).Detect(context.Background(), "dev")

	assert.Equal(t, interfaces.ProviderKernelSU, caps.Provider)
	assert.True(t, runner.called("su which magisk"))
	assert.True(t, runner.called("su ls /data/adb/apd"))
}

// TestDetectNoRoot skips provider probes entirely when su is unavailable
func TestDetectNoRoot(t *testing.T) {
	runner := newProbeRunner()
	runner.script("getprop ro.build.version.sdk", "33")
	runner.script("su id", "uid=2000(shell) gid=2000(shell)")

	caps := newDetector(runner).Detect(context.Background(), "dev")

	assert.False(t, caps.RootAccess)
	assert.Equal(t, interfaces.ProviderNone, caps.Provider)
	assert.Empty(t, caps.ResetpropPath)
	assert.False(t, runner.called("su which resetprop"))
	assert.False(t, caps.CanSpoof())
}

// TestDetectMultiUserSettingFallback consults the global setting when the
// platform reports a single-user maximum
func TestDetectMultiUserSettingFallback(t *testing.T) {
	runner := newProbeRunner()
	runner.script("pm get-max-users", "1")
	runner.script("settings get global multi_user_enabled", "1")

	caps := newDetector(runner).Detect(context.Background(), "dev")

	assert.Equal(t, 1, caps.MaxUsers)
	assert.True(t, caps.MultiUserSupport)
}

// TestDetectPartialFailure leaves failed probes' capabilities absent
// instead of aborting detection
func TestDetectPartialFailure(t *testing.T) {
	runner := newProbeRunner()
	// Only the SDK probe is scripted; everything else fails.
	runner.script("getprop ro.build.version.sdk", "30")

	caps := newDetector(runner).Detect(context.Background(), "dev")

	assert.Equal(t, 30, caps.SDKVersion)
	assert.True(t, caps.EphemeralUserSupport)
	assert.False(t, caps.RootAccess)
	assert.False(t, caps.MultiUserSupport)
	assert.Equal(t, int64(0), caps.FreeStorageMB)
	assert.False(t, caps.Unlocked)
}

// TestDetectLockedDevice reports the keyguard state
func TestDetectLockedDevice(t *testing.T) {
	runner := newProbeRunner()
	runner.script("getprop sys.boot_completed", "1")
	runner.script("dumpsys window", "  mKeyguardShowing=true\n  mSystemBooted=true")

	caps := newDetector(runner).Detect(context.Background(), "dev")
	assert.False(t, caps.Unlocked)
}
