/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: config.go
Description: Spoofing engine configuration bundle for the Akaylee Spoofer. Mirrors the
options exposed through the CLI and config file, with validation that rejects unsafe
combinations such as disabling original-property backups.
*/

package interfaces

import (
	"fmt"
	"time"
)

// SpoofConfig contains all configuration parameters recognized by the
// spoofing engine. Supports both command-line flags and configuration files.
type SpoofConfig struct {
	// Spoofing configuration
	EnableSpoofing             bool   `json:"enable_spoofing"`                // Master switch for identity spoofing
	Manufacturer               string `json:"manufacturer"`                   // Target manufacturer or "any"
	Model                      string `json:"model"`                          // Target model or "random"
	AndroidVersion             string `json:"android_version"`                // Target Android version key or "any"
	SpoofExtendedProps         bool   `json:"spoof_extended_props"`           // Include extended anti-tracking keys
	BackupOriginalProperties   bool   `json:"backup_original_properties"`     // Must be true; false is rejected as unsafe
	AutoSpoofOnProfileCreation bool   `json:"auto_spoof_on_profile_creation"` // Spoof right after a profile is created

	// Profile configuration
	UseEphemeralUsers      bool `json:"use_ephemeral_users"`        // Prefer ephemeral user profiles
	BypassUserLimits       bool `json:"bypass_user_limits"`         // Evict oldest profile when limit is hit
	AutoSetRandomAndroidID bool `json:"auto_set_random_android_id"` // Randomize android_id for new profiles
	ValidateUserSwitch     bool `json:"validate_user_switch"`       // Confirm switches via am get-current-user

	// Validation configuration
	ValidateRootAccess    bool  `json:"validate_root_access"`    // Require the root probe before spoofing
	CheckMultiuserSupport bool  `json:"check_multiuser_support"` // Require multi-user support for profile ops
	MinStorageMB          int64 `json:"min_storage_mb"`          // Minimum free storage to proceed

	// Retry configuration. Budgets are explicit and bounded; tests inject
	// a zero backoff for determinism.
	UserCreationRetries int           `json:"user_creation_retries"` // Attempts for pm create-user
	RetryBackoff        time.Duration `json:"retry_backoff"`         // Backoff between creation attempts
	UserSwitchTimeout   time.Duration `json:"user_switch_timeout"`   // Poll budget for switch validation
	CommandTimeout      time.Duration `json:"command_timeout"`       // Default per-command timeout
	ProbeTimeout        time.Duration `json:"probe_timeout"`         // Per-probe timeout for capability detection

	// Session configuration
	PoolSize    int           `json:"pool_size"`    // Max concurrent device workers
	AutoCleanup bool          `json:"auto_cleanup"` // Restore unconditionally at session end
	StateDir    string        `json:"state_dir"`    // Directory for durable ledger files
	ADBPath     string        `json:"adb_path"`     // adb binary path
	VerifySleep time.Duration `json:"verify_sleep"` // Pause before read-back verification
}

// DefaultSpoofConfig returns the configuration defaults used when no file
// or flags override them
func DefaultSpoofConfig() *SpoofConfig {
	return &SpoofConfig{
		EnableSpoofing:             true,
		Manufacturer:               "any",
		Model:                      "random",
		AndroidVersion:             "any",
		SpoofExtendedProps:         false,
		BackupOriginalProperties:   true,
		AutoSpoofOnProfileCreation: true,
		UseEphemeralUsers:          true,
		BypassUserLimits:           false,
		AutoSetRandomAndroidID:     true,
		ValidateUserSwitch:         true,
		ValidateRootAccess:         true,
		CheckMultiuserSupport:      true,
		MinStorageMB:               500,
		UserCreationRetries:        3,
		RetryBackoff:               2 * time.Second,
		UserSwitchTimeout:          30 * time.Second,
		CommandTimeout:             30 * time.Second,
		ProbeTimeout:               5 * time.Second,
		PoolSize:                   4,
		AutoCleanup:                false,
		StateDir:                   "./spoof_state",
		ADBPath:                    "adb",
		VerifySleep:                200 * time.Millisecond,
	}
}

// Validate checks the SpoofConfig for invalid or unsafe values.
// Disabling property backups would make restoration impossible after a
// crash, so it is rejected outright rather than warned about.
func (c *SpoofConfig) Validate() error {
	if !c.BackupOriginalProperties {
		return fmt.Errorf("backup_original_properties=false is unsafe: originals would be unrecoverable")
	}
	if c.Manufacturer == "" {
		return fmt.Errorf("manufacturer must not be empty (use \"any\")")
	}
	if c.Model == "" {
		return fmt.Errorf("model must not be empty (use \"random\")")
	}
	if c.AndroidVersion == "" {
		return fmt.Errorf("android_version must not be empty (use \"any\")")
	}
	if c.UserCreationRetries <= 0 {
		return fmt.Errorf("user_creation_retries must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff must not be negative")
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive")
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir must not be empty")
	}
	return nil
}
