/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: interfaces.go
Description: Core interfaces and shared types for the Akaylee Spoofer engine. Defines the
command-execution channel contract, device capability snapshots, resetprop provider
enumeration, and per-property outcome reporting used throughout the spoofing process.
*/

package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrChannelLost indicates total loss of the device command channel
// (device disconnected or adb transport gone). It is the only per-command
// error that aborts a device session; everything else is absorbed.
var ErrChannelLost = errors.New("device command channel lost")

// CommandResult holds the outcome of a single device shell command
type CommandResult struct {
	Stdout   string `json:"stdout"`    // Trimmed standard output
	Stderr   string `json:"stderr"`    // Trimmed standard error
	ExitCode int    `json:"exit_code"` // Shell exit code (-1 on timeout)
	TimedOut bool   `json:"timed_out"` // Whether the command hit its timeout
}

// Ok reports whether the command completed with a zero exit code
func (r *CommandResult) Ok() bool {
	return r != nil && !r.TimedOut && r.ExitCode == 0
}

// CommandRunner is the sole channel through which all device probing,
// property get/set, and profile management commands are issued.
// Implementations must treat the channel as unreliable: commands may time
// out or fail transiently, and exactly-once delivery is never assumed.
// A timeout is reported via CommandResult.TimedOut with a nil error;
// only total channel loss returns ErrChannelLost.
type CommandRunner interface {
	// Run executes a shell command on the device
	Run(ctx context.Context, deviceID string, timeout time.Duration, args ...string) (*CommandResult, error)

	// RunAsRoot executes a shell command on the device under su
	RunAsRoot(ctx context.Context, deviceID string, timeout time.Duration, args ...string) (*CommandResult, error)
}

// ResetpropProvider identifies the privileged property-override mechanism
// detected on a device
type ResetpropProvider string

const (
	ProviderNone     ResetpropProvider = "none"
	ProviderMagisk   ResetpropProvider = "magisk"
	ProviderAPatch   ResetpropProvider = "apatch"
	ProviderKernelSU ResetpropProvider = "kernelsu"
)

// DeviceCapabilities is a point-in-time snapshot of what a device supports.
// Recomputed at the start of each session and never cached across sessions,
// since device state can change between runs.
type DeviceCapabilities struct {
	DeviceID             string            `json:"device_id"`              // ADB serial
	RootAccess           bool              `json:"root_access"`            // su reachable and uid=0
	Provider             ResetpropProvider `json:"provider"`               // Detected resetprop provider
	ResetpropPath        string            `json:"resetprop_path"`         // Path reported by `which resetprop`
	MultiUserSupport     bool              `json:"multiuser_support"`      // Platform allows secondary users
	EphemeralUserSupport bool              `json:"ephemeral_user_support"` // Android 8.0+ (SDK 26)
	SDKVersion           int               `json:"sdk_version"`            // ro.build.version.sdk
	MaxUsers             int               `json:"max_users"`              // pm get-max-users (0 = unknown)
	FreeStorageMB        int64             `json:"free_storage_mb"`        // Free space on /data
	Unlocked             bool              `json:"unlocked"`               // Keyguard not showing (best effort)
	DetectedAt           time.Time         `json:"detected_at"`            // When this snapshot was taken
}

// CanSpoof reports whether property spoofing is possible at all on this device
func (c *DeviceCapabilities) CanSpoof() bool {
	return c.RootAccess && c.Provider != ProviderNone
}

// PropertyOutcome classifies the result of applying one property key
type PropertyOutcome string

const (
	// OutcomeSuccess means the property was set and verified by read-back
	OutcomeSuccess PropertyOutcome = "success"
	// OutcomeUnverified means a set command succeeded but the read-back
	// sample mismatched; recorded as a warning, never silently as success
	OutcomeUnverified PropertyOutcome = "unverified"
	// OutcomeFailed means every strategy for the key failed
	OutcomeFailed PropertyOutcome = "failed"
	// OutcomeUnsupported means no resetprop provider is available
	OutcomeUnsupported PropertyOutcome = "unsupported"
	// OutcomeAborted means the channel was lost before the key was attempted
	OutcomeAborted PropertyOutcome = "aborted"
)

// PropertyResult is the per-key entry of an apply report
type PropertyResult struct {
	Key      string          `json:"key"`                // Property key
	Value    string          `json:"value"`              // Target value
	Outcome  PropertyOutcome `json:"outcome"`            // Outcome classification
	Strategy string          `json:"strategy,omitempty"` // Strategy that succeeded (if any)
	Error    string          `json:"error,omitempty"`    // Last strategy error for failed keys
}
