/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: manager.go
Description: User profile lifecycle manager for the Akaylee Spoofer. Creates, switches
to, validates, and deletes Android user profiles through the command channel, with
bounded retry budgets, optional switch validation, user-limit bypass via single-eviction,
and fingerprint assignment through the property application engine.
*/

package profiles

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/akaylee-spoofer/pkg/fingerprint"
	"github.com/kleascm/akaylee-spoofer/pkg/interfaces"
	"github.com/kleascm/akaylee-spoofer/pkg/ledger"
	"github.com/kleascm/akaylee-spoofer/pkg/props"
)

var (
	createdUserPattern = regexp.MustCompile(`Success:\s*created user id\s*(\d+)`)
	userInfoPattern    = regexp.MustCompile(`UserInfo\{(\d+):([^:]*):(\w+)\}(\s+running)?`)
)

// userLimitMarkers are platform error fragments indicating the profile
// count limit was hit
var userLimitMarkers = []string{
	"maximum user limit",
	"max users",
	"user limit reached",
	"cannot add user",
}

// CreateOptions controls one profile creation attempt
type CreateOptions struct {
	Ephemeral        bool          // Request an ephemeral profile
	Label            string        // Custom label; empty derives one from the clock
	Validate         bool          // Switch to the new profile and confirm it took effect
	Retries          int           // Bounded creation attempts
	Backoff          time.Duration // Wait between attempts (zero in tests)
	SwitchTimeout    time.Duration // Budget for switch validation polling
	PollInterval     time.Duration // Poll spacing during switch validation
	BypassUserLimits bool          // Evict the oldest non-essential profile on limit errors
	RandomAndroidID  bool          // Assign a random android_id to the new profile
}

// Manager drives profile lifecycle operations on devices
type Manager struct {
	runner  interfaces.CommandRunner
	logger  *logrus.Logger
	timeout time.Duration
	sleep   func(time.Duration) // Injectable for test determinism
	rng     *rand.Rand
}

// NewManager creates a profile lifecycle manager
func NewManager(runner interfaces.CommandRunner, logger *logrus.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		runner:  runner,
		logger:  logger,
		timeout: timeout,
		sleep:   time.Sleep,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetSleep overrides the backoff sleeper, used by tests to run retry
// loops without real delays
func (m *Manager) SetSleep(fn func(time.Duration)) {
	m.sleep = fn
}

// Create provisions a new user profile. Fails immediately with a
// ProfileCreateError when the device lacks multi-user support, before any
// platform command is issued. Ephemeral requests silently fall back to
// permanent (with a warning) when the platform predates ephemeral users.
func (m *Manager) Create(ctx context.Context, caps *interfaces.DeviceCapabilities, opts CreateOptions) (*Record, error) {
	if !caps.MultiUserSupport {
		return nil, &interfaces.ProfileCreateError{
			DeviceID: caps.DeviceID,
			Reason:   "device does not support multiple users",
		}
	}

	ephemeral := opts.Ephemeral
	if ephemeral && !caps.EphemeralUserSupport {
		m.logger.WithField("device", caps.DeviceID).Warn("Ephemeral users unsupported (SDK < 26), creating permanent profile")
		ephemeral = false
	}

	label := opts.Label
	if label == "" {
		label = "spoof_" + time.Now().Format("20060102_150405")
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = 1
	}

	rec := &Record{
		DeviceID:  caps.DeviceID,
		Label:     label,
		Ephemeral: ephemeral,
		CreatedAt: time.Now(),
		State:     StateAbsent,
	}
	if err := rec.transition(StateCreating); err != nil {
		return nil, err
	}

	var lastReason string
	for attempt := 1; attempt <= retries; attempt++ {
		userID, reason, err := m.createOnce(ctx, caps.DeviceID, label, ephemeral, opts.BypassUserLimits)
		if err != nil {
			rec.State = StateFailed
			return rec, err
		}
		if userID >= 0 {
			rec.UserID = userID
			m.logger.WithFields(logrus.Fields{
				"device": caps.DeviceID, "user_id": userID, "ephemeral": ephemeral, "label": label,
			}).Info("User profile created")

			if opts.RandomAndroidID {
				m.setRandomAndroidID(ctx, caps.DeviceID, userID)
			}

			if opts.Validate {
				if err := rec.transition(StateSwitchPending); err != nil {
					return rec, err
				}
				if err := m.switchWithValidation(ctx, caps.DeviceID, userID, opts.SwitchTimeout, opts.PollInterval); err != nil {
					if errors.Is(err, interfaces.ErrChannelLost) {
						rec.State = StateFailed
						return rec, err
					}
					m.cleanupFailedCreation(ctx, caps.DeviceID, userID)
					rec.State = StateFailed
					return rec, &interfaces.ProfileCreateError{
						DeviceID: caps.DeviceID,
						Reason:   fmt.Sprintf("created user %d but switch validation failed: %v", userID, err),
						Attempts: attempt,
					}
				}
			}
			if err := rec.transition(StateActive); err != nil {
				return rec, err
			}
			return rec, nil
		}

		lastReason = reason
		m.logger.WithFields(logrus.Fields{
			"device": caps.DeviceID, "attempt": attempt, "reason": reason,
		}).Warn("Profile creation attempt failed")
		if attempt < retries && opts.Backoff > 0 {
			m.sleep(opts.Backoff)
		}
	}

	rec.State = StateFailed
	return rec, &interfaces.ProfileCreateError{
		DeviceID: caps.DeviceID,
		Reason:   lastReason,
		Attempts: retries,
	}
}

// createOnce issues a single pm create-user, handling the user-limit
// bypass (at most one eviction per creation attempt to avoid cascading
// deletion). Returns the new user id, or -1 with the failure reason.
func (m *Manager) createOnce(ctx context.Context, deviceID, label string, ephemeral, bypassLimits bool) (int, string, error) {
	evicted := false
	for {
		args := []string{"pm", "create-user"}
		if ephemeral {
			args = append(args, "--ephemeral")
		}
		args = append(args, label)

		result, err := m.runner.Run(ctx, deviceID, m.timeout, args...)
		if err != nil {
			return -1, "", err
		}

		// Some builds require root for create-user when the device is
		// locked or a policy intervenes.
		if !result.Ok() && strings.Contains(result.Stderr+result.Stdout, "SecurityException") {
			result, err = m.runner.RunAsRoot(ctx, deviceID, m.timeout, args...)
			if err != nil {
				return -1, "", err
			}
		}

		output := result.Stdout
		if result.Stderr != "" {
			output = output + "\n" + result.Stderr
		}

		if match := createdUserPattern.FindStringSubmatch(output); match != nil {
			id, _ := strconv.Atoi(match[1])
			return id, "", nil
		}

		if isUserLimitError(output) && bypassLimits && !evicted {
			evicted = true
			if m.evictOldestProfile(ctx, deviceID) {
				continue
			}
		}
		return -1, strings.TrimSpace(output), nil
	}
}

// isUserLimitError reports whether platform output indicates the
// profile-count limit
func isUserLimitError(output string) bool {
	lower := strings.ToLower(output)
	for _, marker := range userLimitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// evictOldestProfile removes the oldest non-essential profile (lowest
// user id above the owner) to free a creation slot
func (m *Manager) evictOldestProfile(ctx context.Context, deviceID string) bool {
	users, err := m.List(ctx, deviceID)
	if err != nil {
		return false
	}

	oldest := -1
	for _, u := range users {
		if u.ID == 0 || u.Running {
			continue
		}
		if oldest == -1 || u.ID < oldest {
			oldest = u.ID
		}
	}
	if oldest == -1 {
		return false
	}

	m.logger.WithFields(logrus.Fields{"device": deviceID, "user_id": oldest}).Warn("Evicting oldest profile to bypass user limit")
	result, err := m.runner.Run(ctx, deviceID, m.timeout, "pm", "remove-user", strconv.Itoa(oldest))
	return err == nil && result.Ok()
}

// switchWithValidation switches to the user and polls until the platform
// confirms the switch took effect, within the timeout budget
func (m *Manager) switchWithValidation(ctx context.Context, deviceID string, userID int, timeout, pollInterval time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	result, err := m.runner.Run(ctx, deviceID, m.timeout, "am", "switch-user", strconv.Itoa(userID))
	if err != nil {
		return err
	}
	if !result.Ok() {
		return fmt.Errorf("am switch-user failed: %s", result.Stderr)
	}

	deadline := time.Now().Add(timeout)
	for {
		current, err := m.runner.Run(ctx, deviceID, m.timeout, "am", "get-current-user")
		if err != nil {
			return err
		}
		if current.Ok() && strings.TrimSpace(current.Stdout) == strconv.Itoa(userID) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("switch to user %d not confirmed within %s", userID, timeout)
		}
		m.sleep(pollInterval)
	}
}

// cleanupFailedCreation best-effort removes a user whose validation failed
func (m *Manager) cleanupFailedCreation(ctx context.Context, deviceID string, userID int) {
	result, err := m.runner.Run(ctx, deviceID, m.timeout, "pm", "remove-user", strconv.Itoa(userID))
	if err != nil || !result.Ok() {
		m.logger.WithFields(logrus.Fields{"device": deviceID, "user_id": userID}).Warn("Could not clean up partially created user")
	}
}

// setRandomAndroidID assigns a random 16-hex-digit android_id to the
// profile, best effort
func (m *Manager) setRandomAndroidID(ctx context.Context, deviceID string, userID int) {
	const hexChars = "0123456789abcdef"
	id := make([]byte, 16)
	for i := range id {
		id[i] = hexChars[m.rng.Intn(len(hexChars))]
	}

	result, err := m.runner.RunAsRoot(ctx, deviceID, m.timeout,
		"settings", "--user", strconv.Itoa(userID), "put", "secure", "android_id", string(id))
	if err != nil || !result.Ok() {
		m.logger.WithFields(logrus.Fields{"device": deviceID, "user_id": userID}).Warn("Could not set random android_id")
		return
	}
	m.logger.WithFields(logrus.Fields{"device": deviceID, "user_id": userID}).Debug("Random android_id assigned")
}

// AssignFingerprint applies a generated identity to the profile's device
// context through the application engine. Individual property failures do
// not fail the assignment; only channel loss propagates.
func (m *Manager) AssignFingerprint(ctx context.Context, rec *Record, profile *fingerprint.Profile, engine *props.Engine, caps *interfaces.DeviceCapabilities, led *ledger.Ledger) ([]interfaces.PropertyResult, error) {
	if rec.State != StateActive {
		return nil, fmt.Errorf("cannot assign fingerprint to profile in state %s", rec.State)
	}

	results, err := engine.Apply(ctx, caps, led, profile.Properties())
	if err != nil {
		return results, err
	}
	rec.Fingerprint = profile
	return results, nil
}

// Delete removes a profile. Valid only from Active or Failed. Ephemeral
// profiles transition to Deleted even when the platform reports a removal
// failure, since they self-delete on reboot anyway.
func (m *Manager) Delete(ctx context.Context, rec *Record) error {
	if err := rec.transition(StateCleaning); err != nil {
		return err
	}

	// Removing the active user fails on most builds; switch back to the
	// owner first when the profile is current.
	current, err := m.runner.Run(ctx, rec.DeviceID, m.timeout, "am", "get-current-user")
	if err == nil && current.Ok() && strings.TrimSpace(current.Stdout) == strconv.Itoa(rec.UserID) {
		if err := m.switchWithValidation(ctx, rec.DeviceID, 0, 30*time.Second, 2*time.Second); err != nil {
			m.logger.WithField("device", rec.DeviceID).Warn("Could not switch back to owner before removal")
		}
	}

	result, err := m.runner.Run(ctx, rec.DeviceID, m.timeout, "pm", "remove-user", strconv.Itoa(rec.UserID))
	if err != nil {
		rec.State = StateFailed
		return err
	}

	removed := result.Ok() || strings.Contains(strings.ToLower(result.Stdout), "user will be removed")
	if !removed && !rec.Ephemeral {
		rec.State = StateFailed
		return fmt.Errorf("pm remove-user %d failed: %s", rec.UserID, result.Stderr)
	}
	if !removed && rec.Ephemeral {
		m.logger.WithFields(logrus.Fields{
			"device": rec.DeviceID, "user_id": rec.UserID,
		}).Warn("Ephemeral profile removal reported failure; it will self-delete on reboot")
	}

	if err := rec.transition(StateDeleted); err != nil {
		return err
	}
	m.logger.WithFields(logrus.Fields{"device": rec.DeviceID, "user_id": rec.UserID}).Info("User profile deleted")
	return nil
}

// List enumerates the device's user profiles. Read-only; no state
// transition.
func (m *Manager) List(ctx context.Context, deviceID string) ([]UserInfo, error) {
	result, err := m.runner.Run(ctx, deviceID, m.timeout, "pm", "list", "users")
	if err != nil {
		return nil, err
	}
	if !result.Ok() {
		return nil, fmt.Errorf("pm list users failed: %s", result.Stderr)
	}

	var users []UserInfo
	for _, match := range userInfoPattern.FindAllStringSubmatch(result.Stdout, -1) {
		id, _ := strconv.Atoi(match[1])
		users = append(users, UserInfo{
			ID:      id,
			Name:    match[2],
			Flags:   match[3],
			Running: strings.TrimSpace(match[4]) == "running",
		})
	}
	return users, nil
}
