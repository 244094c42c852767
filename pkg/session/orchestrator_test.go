/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: orchestrator_test.go
Description: Tests for the session orchestrator. Runs full pipelines against
an in-memory virtual device farm covering multi-device spoofing, root
validation failures, channel loss mid-batch, idempotent restoration, and
finalization decisions.
*/

package session_test

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleascm/akaylee-spoofer/pkg/interfaces"
	"github.com/kleascm/akaylee-spoofer/pkg/ledger"
	"github.com/kleascm/akaylee-spoofer/pkg/logging"
	"github.com/kleascm/akaylee-spoofer/pkg/patterns"
	"github.com/kleascm/akaylee-spoofer/pkg/session"
)

// virtualDevice simulates one Android device: a mutable property store,
// user profiles, and the probe surface the detector expects. lostAfter
// triggers total channel loss once that many property writes land.
type virtualDevice struct {
	mu          sync.Mutex
	rooted      bool
	multiUser   bool
	props       map[string]string
	users       map[int]string
	nextUserID  int
	currentUser int
	writes      int
	lostAfter   int
	lost        bool
}

func newVirtualDevice(rooted, multiUser bool, props map[string]string) *virtualDevice {
	copied := make(map[string]string, len(props))
	for k, v := range props {
		copied[k] = v
	}
	return &virtualDevice{
		rooted:     rooted,
		multiUser:  multiUser,
		props:      copied,
		users:      map[int]string{0: "Owner"},
		nextUserID: 10,
	}
}

func ok(stdout string) (*interfaces.CommandResult, error) {
	return &interfaces.CommandResult{Stdout: stdout}, nil
}

func (d *virtualDevice) handle(root bool, args []string) (*interfaces.CommandResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return nil, fmt.Errorf("device gone: %w", interfaces.ErrChannelLost)
	}

	cmd := strings.Join(args, " ")
	switch {
	case root && cmd == "id":
		if d.rooted {
			return ok("uid=0(root) gid=0(root)")
		}
		return ok("uid=2000(shell) gid=2000(shell)")

	case root && cmd == "which resetprop":
		if d.rooted {
			return ok("/data/adb/magisk/resetprop")
		}
		return &interfaces.CommandResult{ExitCode: 1}, nil

	case root && cmd == "which magisk":
		if d.rooted {
			return ok("/data/adb/magisk/magisk")
		}
		return &interfaces.CommandResult{ExitCode: 1}, nil

	case root && args[0] == "resetprop":
		return d.resetprop(args[1:])

	case root && args[0] == "settings":
		return ok("")

	case args[0] == "getprop":
		return ok(d.props[args[1]])

	case cmd == "pm get-max-users":
		if d.multiUser {
			return ok("Maximum supported users: 4")
		}
		return ok("1")

	case cmd == "settings get global multi_user_enabled":
		return ok("0")

	case cmd == "df /data":
		return ok("Filesystem 1K-blocks Used Available Use% Mounted on\n/dev/block/dm-5 59069708 28435100 2097152 49% /data")

	case cmd == "dumpsys window":
		return ok("mKeyguardShowing=false")

	case args[0] == "pm" && args[1] == "create-user":
		id := d.nextUserID
		d.nextUserID++
		d.users[id] = args[len(args)-1]
		return ok(fmt.Sprintf("Success: created user id %d", id))

	case args[0] == "pm" && args[1] == "remove-user":
		id, _ := strconv.Atoi(args[2])
		delete(d.users, id)
		return ok("Success: removed user")

	case cmd == "pm list users":
		var b strings.Builder
		b.WriteString("Users:\n")
		for id, name := range d.users {
			fmt.Fprintf(&b, "\tUserInfo{%d:%s:410}", id, name)
			if id == d.currentUser {
				b.WriteString(" running")
			}
			b.WriteString("\n")
		}
		return ok(b.String())

	case args[0] == "am" && args[1] == "switch-user":
		d.currentUser, _ = strconv.Atoi(args[2])
		return ok("")

	case cmd == "am get-current-user":
		return ok(strconv.Itoa(d.currentUser))
	}

	return &interfaces.CommandResult{ExitCode: 1, Stderr: "unhandled: " + cmd}, nil
}

func (d *virtualDevice) resetprop(args []string) (*interfaces.CommandResult, error) {
	if args[0] == "--delete" {
		delete(d.props, args[1])
		return ok("")
	}
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		args = args[1:]
	}
	if len(args) < 2 {
		return &interfaces.CommandResult{ExitCode: 1, Stderr: "usage"}, nil
	}

	if d.lostAfter > 0 && d.writes >= d.lostAfter {
		d.lost = true
		return nil, fmt.Errorf("write failed: %w", interfaces.ErrChannelLost)
	}
	d.props[args[0]] = args[1]
	d.writes++
	return ok("")
}

func (d *virtualDevice) properties() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := make(map[string]string, len(d.props))
	for k, v := range d.props {
		copied[k] = v
	}
	return copied
}

func (d *virtualDevice) userCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users)
}

// deviceFarm routes runner calls to virtual devices by serial
type deviceFarm struct {
	devices map[string]*virtualDevice
}

func (f *deviceFarm) Run(_ context.Context, deviceID string, _ time.Duration, args ...string) (*interfaces.CommandResult, error) {
	dev, found := f.devices[deviceID]
	if !found {
		return nil, fmt.Errorf("device %s: %w", deviceID, interfaces.ErrChannelLost)
	}
	return dev.handle(false, args)
}

func (f *deviceFarm) RunAsRoot(_ context.Context, deviceID string, _ time.Duration, args ...string) (*interfaces.CommandResult, error) {
	dev, found := f.devices[deviceID]
	if !found {
		return nil, fmt.Errorf("device %s: %w", deviceID, interfaces.ErrChannelLost)
	}
	return dev.handle(true, args)
}

func stockProps() map[string]string {
	return map[string]string{
		"ro.build.version.sdk": "34",
		"sys.boot_completed":   "1",
		"ro.product.model":     "Pixel 3",
		"ro.product.brand":     "google",
		"ro.serialno":          "ORIG1234",
		"ro.build.fingerprint": "google/blueline/blueline:12/SP1A.210812.016/7679548:user/release-keys",
	}
}

func testConfig() *interfaces.SpoofConfig {
	config := interfaces.DefaultSpoofConfig()
	config.CommandTimeout = time.Second
	config.ProbeTimeout = time.Second
	config.VerifySleep = 0
	config.RetryBackoff = 0
	config.UserSwitchTimeout = time.Second
	config.PoolSize = 2
	config.MinStorageMB = 100
	return config
}

func newTestOrchestrator(t *testing.T, config *interfaces.SpoofConfig, farm *deviceFarm) (*session.Orchestrator, *ledger.FileStore) {
	t.Helper()
	store, err := ledger.NewFileStore(t.TempDir())
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	orch := session.NewOrchestrator(config, farm, patterns.DefaultStore(), store, logger)
	orch.SetSeed(42)
	return orch, store
}

// TestRunMultiDeviceCompleted spoofs two rooted devices concurrently and
// completes both sessions with profiles and applied identities
func TestRunMultiDeviceCompleted(t *testing.T) {
	farm := &deviceFarm{devices: map[string]*virtualDevice{
		"dev-a": newVirtualDevice(true, true, stockProps()),
		"dev-b": newVirtualDevice(true, true, stockProps()),
	}}
	orch, store := newTestOrchestrator(t, testConfig(), farm)

	sessions := orch.Run(context.Background(), []string{"dev-a", "dev-b"})
	require.Len(t, sessions, 2)

	for i, deviceID := range []string{"dev-a", "dev-b"} {
		s := sessions[i]
		assert.Equal(t, deviceID, s.DeviceID, "result order follows input order")
		assert.Equal(t, session.StateCompleted, s.State)
		require.NotNil(t, s.Fingerprint)
		require.NotNil(t, s.Profile)
		assert.True(t, s.Profile.Ephemeral)
		assert.NotEmpty(t, s.Results)

		counts := s.OutcomeCounts()
		assert.Greater(t, counts[interfaces.OutcomeSuccess], 0)
		assert.Equal(t, 0, counts[interfaces.OutcomeFailed])
	}

	// The spoofed value is live on the device
	assert.Equal(t, sessions[0].Fingerprint.Model.Model, farm.devices["dev-a"].properties()["ro.product.model"])

	report := orch.Report()
	require.Len(t, report, 2)
	assert.Equal(t, sessions[0].Results, report["dev-a"])

	devices, err := store.Devices()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dev-a", "dev-b"}, devices)
}

// TestRunSeededSessionsAreDeterministic checks the per-device generator
// seeding produces the same identity across runs
func TestRunSeededSessionsAreDeterministic(t *testing.T) {
	run := func() string {
		farm := &deviceFarm{devices: map[string]*virtualDevice{
			"dev-a": newVirtualDevice(true, true, stockProps()),
		}}
		orch, _ := newTestOrchestrator(t, testConfig(), farm)
		sessions := orch.Run(context.Background(), []string{"dev-a"})
		require.Equal(t, session.StateCompleted, sessions[0].State)
		return sessions[0].Fingerprint.BuildFingerprint
	}

	assert.Equal(t, run(), run())
}

// TestRunNoRootFails rejects the device before any mutation
func TestRunNoRootFails(t *testing.T) {
	farm := &deviceFarm{devices: map[string]*virtualDevice{
		"dev-a": newVirtualDevice(false, true, stockProps()),
	}}
	orch, store := newTestOrchestrator(t, testConfig(), farm)

	sessions := orch.Run(context.Background(), []string{"dev-a"})
	require.Len(t, sessions, 1)

	assert.Equal(t, session.StateFailed, sessions[0].State)
	assert.Contains(t, sessions[0].Error, "no root access")

	devices, err := store.Devices()
	require.NoError(t, err)
	assert.Empty(t, devices, "no ledger is written for a rejected device")
}

// TestRunChannelLostInterrupted keeps the partial ledger when the device
// vanishes mid-batch
func TestRunChannelLostInterrupted(t *testing.T) {
	dev := newVirtualDevice(true, false, stockProps())
	dev.lostAfter = 3
	farm := &deviceFarm{devices: map[string]*virtualDevice{"dev-a": dev}}

	config := testConfig()
	orch, store := newTestOrchestrator(t, config, farm)

	sessions := orch.Run(context.Background(), []string{"dev-a"})
	require.Len(t, sessions, 1)
	s := sessions[0]

	assert.Equal(t, session.StateInterrupted, s.State)
	assert.True(t, s.HasPendingLedger())

	counts := s.OutcomeCounts()
	assert.Equal(t, 3, counts[interfaces.OutcomeSuccess])
	assert.Greater(t, counts[interfaces.OutcomeAborted], 0)

	// Backups survive on disk for a later restore
	entries, err := store.Load("dev-a")
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

// TestRestoreDeviceRoundTrip returns the device to its pre-spoof property
// state, deleting keys that were originally unset
func TestRestoreDeviceRoundTrip(t *testing.T) {
	original := stockProps()
	dev := newVirtualDevice(true, false, original)
	farm := &deviceFarm{devices: map[string]*virtualDevice{"dev-a": dev}}

	config := testConfig()
	config.CheckMultiuserSupport = true // Device is single-user, spoof in owner context
	orch, store := newTestOrchestrator(t, config, farm)

	sessions := orch.Run(context.Background(), []string{"dev-a"})
	require.Equal(t, session.StateCompleted, sessions[0].State)
	require.NotEqual(t, original, dev.properties(), "spoof must change the property store")

	results, err := orch.RestoreDevice(context.Background(), "dev-a")
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	assert.Equal(t, original, dev.properties(), "restore must return the exact original state")

	devices, err := store.Devices()
	require.NoError(t, err)
	assert.Empty(t, devices, "ledger is cleared after a full restore")
}

// TestRestoreDeviceNoLedgerIsNoop makes repeated restoration safe
func TestRestoreDeviceNoLedgerIsNoop(t *testing.T) {
	farm := &deviceFarm{devices: map[string]*virtualDevice{
		"dev-a": newVirtualDevice(true, false, stockProps()),
	}}
	orch, _ := newTestOrchestrator(t, testConfig(), farm)

	results, err := orch.RestoreDevice(context.Background(), "dev-a")
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TestFinalizeAutoCleanupRestores restores and tears down profiles when
// auto-cleanup is configured
func TestFinalizeAutoCleanupRestores(t *testing.T) {
	original := stockProps()
	dev := newVirtualDevice(true, true, original)
	farm := &deviceFarm{devices: map[string]*virtualDevice{"dev-a": dev}}

	config := testConfig()
	config.AutoCleanup = true
	orch, store := newTestOrchestrator(t, config, farm)

	sessions := orch.Run(context.Background(), []string{"dev-a"})
	require.Equal(t, session.StateCompleted, sessions[0].State)
	require.NotNil(t, sessions[0].Profile)
	require.Equal(t, 2, dev.userCount(), "owner plus the session profile")

	require.NoError(t, orch.Finalize(context.Background(), nil))

	assert.Equal(t, original, dev.properties())
	assert.Equal(t, 1, dev.userCount(), "session profile removed")

	devices, err := store.Devices()
	require.NoError(t, err)
	assert.Empty(t, devices)
}

// TestFinalizeRestoresNetworkSerialDevice finalizes a device addressed
// over adb-over-network, whose serial contains ':' and therefore differs
// from its sanitized ledger filename
func TestFinalizeRestoresNetworkSerialDevice(t *testing.T) {
	const serial = "192.168.0.10:5555"
	original := stockProps()
	dev := newVirtualDevice(true, false, original)
	farm := &deviceFarm{devices: map[string]*virtualDevice{serial: dev}}

	config := testConfig()
	config.AutoCleanup = true
	config.CheckMultiuserSupport = true // Device is single-user, spoof in owner context
	orch, store := newTestOrchestrator(t, config, farm)

	sessions := orch.Run(context.Background(), []string{serial})
	require.Equal(t, session.StateCompleted, sessions[0].State)
	require.NotEqual(t, original, dev.properties())

	// Enumeration yields the true serial, not the filename form
	devices, err := store.Devices()
	require.NoError(t, err)
	assert.Equal(t, []string{serial}, devices)

	require.NoError(t, orch.Finalize(context.Background(), nil))
	assert.Equal(t, original, dev.properties())

	devices, err = store.Devices()
	require.NoError(t, err)
	assert.Empty(t, devices)
}

// TestFinalizePersistsByDefault leaves the ledger on disk when
// auto-cleanup is off
func TestFinalizePersistsByDefault(t *testing.T) {
	dev := newVirtualDevice(true, false, stockProps())
	farm := &deviceFarm{devices: map[string]*virtualDevice{"dev-a": dev}}

	config := testConfig()
	config.AutoCleanup = false
	orch, store := newTestOrchestrator(t, config, farm)

	sessions := orch.Run(context.Background(), []string{"dev-a"})
	require.Equal(t, session.StateCompleted, sessions[0].State)

	require.NoError(t, orch.Finalize(context.Background(), nil))

	devices, err := store.Devices()
	require.NoError(t, err)
	assert.Equal(t, []string{"dev-a"}, devices)
}

// TestFinalizeExplicitDecisionOverridesDefault restores one device on an
// explicit per-device decision despite the persist default
func TestFinalizeExplicitDecisionOverridesDefault(t *testing.T) {
	original := stockProps()
	dev := newVirtualDevice(true, false, original)
	farm := &deviceFarm{devices: map[string]*virtualDevice{"dev-a": dev}}

	config := testConfig()
	config.AutoCleanup = false
	orch, store := newTestOrchestrator(t, config, farm)

	sessions := orch.Run(context.Background(), []string{"dev-a"})
	require.Equal(t, session.StateCompleted, sessions[0].State)

	require.NoError(t, orch.Finalize(context.Background(), map[string]session.Decision{
		"dev-a": session.DecisionRestore,
	}))

	assert.Equal(t, original, dev.properties())
	devices, err := store.Devices()
	require.NoError(t, err)
	assert.Empty(t, devices)
}

// TestEventLogCapturesSessionLifecycle routes apply, session, and restore
// events through the structured spoofer log and reads them back with the
// log analyzer
func TestEventLogCapturesSessionLifecycle(t *testing.T) {
	logDir := t.TempDir()
	events, err := logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.LogLevelDebug,
		Format:    logging.LogFormatCustom,
		OutputDir: logDir,
		MaxFiles:  5,
		MaxSize:   10 * 1024 * 1024,
		Timestamp: true,
	})
	require.NoError(t, err)

	dev := newVirtualDevice(true, true, stockProps())
	farm := &deviceFarm{devices: map[string]*virtualDevice{"dev-a": dev}}
	orch, _ := newTestOrchestrator(t, testConfig(), farm)
	orch.SetEventLog(events)

	sessions := orch.Run(context.Background(), []string{"dev-a"})
	require.Equal(t, session.StateCompleted, sessions[0].State)

	_, err = orch.RestoreDevice(context.Background(), "dev-a")
	require.NoError(t, err)
	require.NoError(t, events.Close())

	analysis, err := logging.NewLogAnalyzer(logDir).AnalyzeLogs()
	require.NoError(t, err)
	assert.EqualValues(t, 1, analysis.SessionCount)
	assert.EqualValues(t, 1, analysis.RestoreCount)
	assert.EqualValues(t, len(sessions[0].Results), analysis.ApplyCount)
}

// TestProfileOnlySession completes without touching properties when
// spoofing is disabled
func TestProfileOnlySession(t *testing.T) {
	original := stockProps()
	dev := newVirtualDevice(true, true, original)
	farm := &deviceFarm{devices: map[string]*virtualDevice{"dev-a": dev}}

	config := testConfig()
	config.EnableSpoofing = false
	orch, store := newTestOrchestrator(t, config, farm)

	sessions := orch.Run(context.Background(), []string{"dev-a"})
	require.Len(t, sessions, 1)

	assert.Equal(t, session.StateCompleted, sessions[0].State)
	assert.Nil(t, sessions[0].Fingerprint)
	require.NotNil(t, sessions[0].Profile)
	assert.Equal(t, original, dev.properties())

	devices, err := store.Devices()
	require.NoError(t, err)
	assert.Empty(t, devices)
}
