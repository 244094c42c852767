/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: manager_test.go
Description: Tests for the profile lifecycle manager. Covers the multi-user
precondition, ephemeral fallback, bounded creation retries with injected zero
backoff, user-limit bypass via eviction, switch validation, deletion semantics,
and pm list users parsing.
*/

package profiles_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleascm/akaylee-spoofer/pkg/interfaces"
	"github.com/kleascm/akaylee-spoofer/pkg/profiles"
)

// scriptRunner replays canned results per command line. The last queued
// result for a command repeats once the queue drains, which models
// steady-state platform responses during polling.
type scriptRunner struct {
	mu        sync.Mutex
	responses map[string][]*interfaces.CommandResult
	calls     []string
}

func newScriptRunner() *scriptRunner {
	return &scriptRunner{responses: make(map[string][]*interfaces.CommandResult)}
}

func (r *scriptRunner) script(command string, results ...*interfaces.CommandResult) {
	r.responses[command] = append(r.responses[command], results...)
}

func (r *scriptRunner) run(args []string) (*interfaces.CommandResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	command := strings.Join(args, " ")
	r.calls = append(r.calls, command)

	queue := r.responses[command]
	if len(queue) == 0 {
		return &interfaces.CommandResult{ExitCode: 1, Stderr: "unscripted: " + command}, nil
	}
	result := queue[0]
	if len(queue) > 1 {
		r.responses[command] = queue[1:]
	}
	return result, nil
}

func (r *scriptRunner) Run(_ context.Context, _ string, _ time.Duration, args ...string) (*interfaces.CommandResult, error) {
	return r.run(args)
}

func (r *scriptRunner) RunAsRoot(_ context.Context, _ string, _ time.Duration, args ...string) (*interfaces.CommandResult, error) {
	return r.run(append([]string{"su"}, args...))
}

func (r *scriptRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *scriptRunner) called(command string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c == command {
			return true
		}
	}
	return false
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func multiUserCaps() *interfaces.DeviceCapabilities {
	return &interfaces.DeviceCapabilities{
		DeviceID:             "emulator-5554",
		MultiUserSupport:     true,
		EphemeralUserSupport: true,
		MaxUsers:             4,
	}
}

// TestCreateRequiresMultiUser fails before issuing any platform command
func TestCreateRequiresMultiUser(t *testing.T) {
	runner := newScriptRunner()
	manager := profiles.NewManager(runner, quietLogger(), time.Second)

	caps := &interfaces.DeviceCapabilities{DeviceID: "emulator-5554", MultiUserSupport: false}
	_, err := manager.Create(context.Background(), caps, profiles.CreateOptions{Label: "testuser"})
	require.Error(t, err)

	var createErr *interfaces.ProfileCreateError
	require.ErrorAs(t, err, &createErr)
	assert.Contains(t, createErr.Reason, "does not support multiple users")
	assert.Equal(t, 0, runner.callCount())
}

// TestCreateEphemeralSuccess provisions an ephemeral user and parses the
// platform-assigned id
func TestCreateEphemeralSuccess(t *testing.T) {
	runner := newScriptRunner()
	runner.script("pm create-user --ephemeral testuser",
		&interfaces.CommandResult{Stdout: "Success: created user id 10"})

	manager := profiles.NewManager(runner, quietLogger(), time.Second)
	rec, err := manager.Create(context.Background(), multiUserCaps(), profiles.CreateOptions{
		Ephemeral: true,
		Label:     "testuser",
	})
	require.NoError(t, err)

	assert.Equal(t, 10, rec.UserID)
	assert.True(t, rec.Ephemeral)
	assert.Equal(t, profiles.StateActive, rec.State)
}

// TestCreateEphemeralFallback downgrades to a permanent user on platforms
// that predate ephemeral users
func TestCreateEphemeralFallback(t *testing.T) {
	runner := newScriptRunner()
	runner.script("pm create-user testuser",
		&interfaces.CommandResult{Stdout: "Success: created user id 11"})

	caps := multiUserCaps()
	caps.EphemeralUserSupport = false

	manager := profiles.NewManager(runner, quietLogger(), time.Second)
	rec, err := manager.Create(context.Background(), caps, profiles.CreateOptions{
		Ephemeral: true,
		Label:     "testuser",
	})
	require.NoError(t, err)

	assert.False(t, rec.Ephemeral)
	assert.Equal(t, 11, rec.UserID)
}

// TestCreateRetriesExhausted retries within the budget with injected
// zero-delay backoff and then reports a typed error
func TestCreateRetriesExhausted(t *testing.T) {
	runner := newScriptRunner()
	runner.script("pm create-user testuser",
		&interfaces.CommandResult{ExitCode: 1, Stderr: "Error: couldn't create User"})

	manager := profiles.NewManager(runner, quietLogger(), time.Second)
	var slept int
	manager.SetSleep(func(time.Duration) { slept++ })

	_, err := manager.Create(context.Background(), multiUserCaps(), profiles.CreateOptions{
		Label:   "testuser",
		Retries: 3,
		Backoff: 2 * time.Second,
	})
	require.Error(t, err)

	var createErr *interfaces.ProfileCreateError
	require.ErrorAs(t, err, &createErr)
	assert.Equal(t, 3, createErr.Attempts)
	assert.Equal(t, 2, slept) // No backoff after the final attempt
}

// TestCreateBypassUserLimit evicts the oldest non-running profile and
// retries the creation once
func TestCreateBypassUserLimit(t *testing.T) {
	runner := newScriptRunner()
	runner.script("pm create-user testuser",
		&interfaces.CommandResult{ExitCode: 1, Stderr: "Error: cannot add user. maximum user limit reached"},
		&interfaces.CommandResult{Stdout: "Success: created user id 12"})
	runner.script("pm list users",
		&interfaces.CommandResult{Stdout: "Users:\n\tUserInfo{0:Owner:c13} running\n\tUserInfo{10:old_spoof:410}\n\tUserInfo{11:newer_spoof:410}"})
	runner.script("pm remove-user 10", &interfaces.CommandResult{Stdout: "Success: removed user"})

	manager := profiles.NewManager(runner, quietLogger(), time.Second)
	rec, err := manager.Create(context.Background(), multiUserCaps(), profiles.CreateOptions{
		Label:            "testuser",
		BypassUserLimits: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 12, rec.UserID)
	assert.True(t, runner.called("pm remove-user 10"), "oldest profile should be evicted")
}

// TestCreateWithSwitchValidation polls until the platform confirms the
// switch took effect
func TestCreateWithSwitchValidation(t *testing.T) {
	runner := newScriptRunner()
	runner.script("pm create-user testuser",
		&interfaces.CommandResult{Stdout: "Success: created user id 10"})
	runner.script("am switch-user 10", &interfaces.CommandResult{})
	runner.script("am get-current-user",
		&interfaces.CommandResult{Stdout: "0"},
		&interfaces.CommandResult{Stdout: "0"},
		&interfaces.CommandResult{Stdout: "10"})

	manager := profiles.NewManager(runner, quietLogger(), time.Second)
	manager.SetSleep(func(time.Duration) {})

	rec, err := manager.Create(context.Background(), multiUserCaps(), profiles.CreateOptions{
		Label:         "testuser",
		Validate:      true,
		SwitchTimeout: 30 * time.Second,
		PollInterval:  time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, profiles.StateActive, rec.State)
}

// TestCreateSwitchValidationTimeout cleans up the partially created user
// when the switch never takes effect
func TestCreateSwitchValidationTimeout(t *testing.T) {
	runner := newScriptRunner()
	runner.script("pm create-user testuser",
		&interfaces.CommandResult{Stdout: "Success: created user id 10"})
	runner.script("am switch-user 10", &interfaces.CommandResult{})
	runner.script("am get-current-user", &interfaces.CommandResult{Stdout: "0"})
	runner.script("pm remove-user 10", &interfaces.CommandResult{Stdout: "Success: removed user"})

	manager := profiles.NewManager(runner, quietLogger(), time.Second)
	manager.SetSleep(func(time.Duration) {})

	rec, err := manager.Create(context.Background(), multiUserCaps(), profiles.CreateOptions{
		Label:         "testuser",
		Validate:      true,
		SwitchTimeout: time.Nanosecond,
		PollInterval:  time.Millisecond,
	})
	require.Error(t, err)

	var createErr *interfaces.ProfileCreateError
	require.ErrorAs(t, err, &createErr)
	assert.Contains(t, createErr.Reason, "switch validation failed")
	assert.Equal(t, profiles.StateFailed, rec.State)
	assert.True(t, runner.called("pm remove-user 10"), "partially created user should be cleaned up")
}

// TestCreateSetsRandomAndroidID issues the settings write for new profiles
func TestCreateSetsRandomAndroidID(t *testing.T) {
	runner := newScriptRunner()
	runner.script("pm create-user testuser",
		&interfaces.CommandResult{Stdout: "Success: created user id 10"})

	manager := profiles.NewManager(runner, quietLogger(), time.Second)
	_, err := manager.Create(context.Background(), multiUserCaps(), profiles.CreateOptions{
		Label:           "testuser",
		RandomAndroidID: true,
	})
	require.NoError(t, err)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	found := false
	for _, call := range runner.calls {
		if strings.HasPrefix(call, "su settings --user 10 put secure android_id ") {
			found = true
			// 16 lowercase hex digits
			id := call[strings.LastIndex(call, " ")+1:]
			assert.Regexp(t, "^[0-9a-f]{16}$", id)
		}
	}
	assert.True(t, found, "android_id should be randomized for the new profile")
}

// TestDeleteEphemeralBestEffort transitions to deleted even when the
// platform reports a removal failure
func TestDeleteEphemeralBestEffort(t *testing.T) {
	runner := newScriptRunner()
	runner.script("am get-current-user", &interfaces.CommandResult{Stdout: "0"})
	runner.script("pm remove-user 10",
		&interfaces.CommandResult{ExitCode: 1, Stderr: "Error: couldn't remove user"})

	manager := profiles.NewManager(runner, quietLogger(), time.Second)
	rec := &profiles.Record{DeviceID: "emulator-5554", UserID: 10, Ephemeral: true, State: profiles.StateActive}

	require.NoError(t, manager.Delete(context.Background(), rec))
	assert.Equal(t, profiles.StateDeleted, rec.State)
}

// TestDeletePermanentFailure keeps the record in failed state when a
// permanent profile cannot be removed
func TestDeletePermanentFailure(t *testing.T) {
	runner := newScriptRunner()
	runner.script("am get-current-user", &interfaces.CommandResult{Stdout: "0"})
	runner.script("pm remove-user 10",
		&interfaces.CommandResult{ExitCode: 1, Stderr: "Error: couldn't remove user"})

	manager := profiles.NewManager(runner, quietLogger(), time.Second)
	rec := &profiles.Record{DeviceID: "emulator-5554", UserID: 10, Ephemeral: false, State: profiles.StateActive}

	err := manager.Delete(context.Background(), rec)
	require.Error(t, err)
	assert.Equal(t, profiles.StateFailed, rec.State)
}

// TestDeleteSwitchesBackToOwner leaves the active profile before removal
func TestDeleteSwitchesBackToOwner(t *testing.T) {
	runner := newScriptRunner()
	runner.script("am get-current-user",
		&interfaces.CommandResult{Stdout: "10"},
		&interfaces.CommandResult{Stdout: "0"})
	runner.script("am switch-user 0", &interfaces.CommandResult{})
	runner.script("pm remove-user 10", &interfaces.CommandResult{Stdout: "Success: removed user"})

	manager := profiles.NewManager(runner, quietLogger(), time.Second)
	manager.SetSleep(func(time.Duration) {})
	rec := &profiles.Record{DeviceID: "emulator-5554", UserID: 10, Ephemeral: true, State: profiles.StateActive}

	require.NoError(t, manager.Delete(context.Background(), rec))
	assert.True(t, runner.called("am switch-user 0"))
	assert.Equal(t, profiles.StateDeleted, rec.State)
}

// TestListParsesUserInfo parses the pm list users block format
func TestListParsesUserInfo(t *testing.T) {
	runner := newScriptRunner()
	runner.script("pm list users", &interfaces.CommandResult{
		Stdout: "Users:\n\tUserInfo{0:Owner:c13} running\n\tUserInfo{10:spoof_20240110:410}\n\tUserInfo{11:Guest:404} running",
	})

	manager := profiles.NewManager(runner, quietLogger(), time.Second)
	users, err := manager.List(context.Background(), "emulator-5554")
	require.NoError(t, err)
	require.Len(t, users, 3)

	assert.Equal(t, 0, users[0].ID)
	assert.Equal(t, "Owner", users[0].Name)
	assert.True(t, users[0].Running)

	assert.Equal(t, 10, users[1].ID)
	assert.Equal(t, "spoof_20240110", users[1].Name)
	assert.False(t, users[1].Running)

	assert.Equal(t, 11, users[2].ID)
	assert.True(t, users[2].Running)
}
