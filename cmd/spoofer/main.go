/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: main.go
Description: Main command-line interface for the Akaylee Spoofer. Provides comprehensive
command-line options, configuration management, and beautiful user interface for
controlling device identity spoofing with advanced logging capabilities.
*/

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kleascm/akaylee-spoofer/cmd/spoofer/commands"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Configuration
	configFile string
	logLevel   string
	jsonLogs   bool

	// Identity configuration
	manufacturer   string
	model          string
	androidVersion string
	extendedProps  bool
	patternsFile   string
	seed           int64

	// Profile configuration
	ephemeralUsers  bool
	bypassLimits    bool
	randomAndroidID bool
	skipProfiles    bool

	// Session configuration
	poolSize    int
	autoCleanup bool
	stateDir    string
	adbPath     string

	// Timing configuration
	commandTimeout time.Duration
	probeTimeout   time.Duration
	retryBackoff   time.Duration
	switchTimeout  time.Duration
	retries        int

	// Logging configuration
	logDir      string
	logFormat   string
	logMaxFiles int
	logMaxSize  int64
	logCompress bool
)

func main() {
	// Create root command
	rootCmd := &cobra.Command{
		Use:   "akaylee-spoofer",
		Short: "Akaylee Spoofer - Android device identity spoofing engine",
		Long: `Akaylee Spoofer is a production-level Android device identity engine. It generates
internally consistent device fingerprints, applies them through rooted property
channels with original values backed up before every write, and manages isolated
user profiles so each spoofed identity lives in its own sandbox.`,
		Version: "1.0.0",
	}

	// Add persistent flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Use JSON log format")

	// Add logging-specific flags
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "./logs", "Log output directory")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "custom", "Log format (text, json, custom)")
	rootCmd.PersistentFlags().IntVar(&logMaxFiles, "log-max-files", 10, "Maximum number of log files to keep")
	rootCmd.PersistentFlags().Int64Var(&logMaxSize, "log-max-size", 100*1024*1024, "Maximum log file size in bytes")
	rootCmd.PersistentFlags().BoolVar(&logCompress, "log-compress", false, "Compress rotated log files")

	// Add device-channel flags
	rootCmd.PersistentFlags().StringVar(&adbPath, "adb-path", "adb", "Path to the adb binary")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "./spoof_state", "Directory for durable backup ledgers")
	rootCmd.PersistentFlags().DurationVar(&commandTimeout, "command-timeout", 30*time.Second, "Per-command timeout")
	rootCmd.PersistentFlags().DurationVar(&probeTimeout, "probe-timeout", 5*time.Second, "Per-probe timeout for capability detection")

	// Bind flags to viper
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("json_logs", rootCmd.PersistentFlags().Lookup("json-logs"))
	viper.BindPFlag("log_dir", rootCmd.PersistentFlags().Lookup("log-dir"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("log_max_files", rootCmd.PersistentFlags().Lookup("log-max-files"))
	viper.BindPFlag("log_max_size", rootCmd.PersistentFlags().Lookup("log-max-size"))
	viper.BindPFlag("log_compress", rootCmd.PersistentFlags().Lookup("log-compress"))
	viper.BindPFlag("adb_path", rootCmd.PersistentFlags().Lookup("adb-path"))
	viper.BindPFlag("state_dir", rootCmd.PersistentFlags().Lookup("state-dir"))
	viper.BindPFlag("command_timeout", rootCmd.PersistentFlags().Lookup("command-timeout"))
	viper.BindPFlag("probe_timeout", rootCmd.PersistentFlags().Lookup("probe-timeout"))

	// Add spoof command
	spoofCmd := &cobra.Command{
		Use:   "spoof [device-id...]",
		Short: "Spoof device identities on connected devices",
		Long: `Generate a fresh device identity and apply it to each listed device. Without
device arguments every connected device is spoofed. Original property values are
backed up to the state directory before any write, so a later restore can always
revert the device.`,
		RunE: commands.RunSpoof,
	}

	// Add spoof command flags
	spoofCmd.Flags().StringVar(&manufacturer, "manufacturer", "any", "Target manufacturer (samsung, google, xiaomi, oneplus, any)")
	spoofCmd.Flags().StringVar(&model, "model", "random", "Target model display name or model string")
	spoofCmd.Flags().StringVar(&androidVersion, "android-version", "any", "Target Android version (11-15, any)")
	spoofCmd.Flags().BoolVar(&extendedProps, "extended-props", false, "Spoof extended anti-tracking properties")
	spoofCmd.Flags().StringVar(&patternsFile, "patterns", "", "Manufacturer pattern catalog file (built-in when empty)")
	spoofCmd.Flags().Int64Var(&seed, "seed", 0, "Fingerprint generation seed (0 = random)")

	spoofCmd.Flags().BoolVar(&skipProfiles, "skip-profiles", false, "Spoof in the current user context without creating a profile")
	spoofCmd.Flags().BoolVar(&ephemeralUsers, "ephemeral", true, "Prefer ephemeral user profiles")
	spoofCmd.Flags().BoolVar(&bypassLimits, "bypass-user-limits", false, "Evict the oldest profile when the user limit is hit")
	spoofCmd.Flags().BoolVar(&randomAndroidID, "random-android-id", true, "Assign a random android_id to new profiles")

	spoofCmd.Flags().IntVar(&poolSize, "pool-size", 4, "Maximum concurrent device workers")
	spoofCmd.Flags().BoolVar(&autoCleanup, "auto-cleanup", false, "Restore originals when the session ends")
	spoofCmd.Flags().IntVar(&retries, "retries", 3, "Profile creation attempts")
	spoofCmd.Flags().DurationVar(&retryBackoff, "retry-backoff", 2*time.Second, "Backoff between profile creation attempts")
	spoofCmd.Flags().DurationVar(&switchTimeout, "switch-timeout", 30*time.Second, "Budget for user switch validation")

	// Bind flags to viper
	viper.BindPFlag("manufacturer", spoofCmd.Flags().Lookup("manufacturer"))
	viper.BindPFlag("model", spoofCmd.Flags().Lookup("model"))
	viper.BindPFlag("android_version", spoofCmd.Flags().Lookup("android-version"))
	viper.BindPFlag("spoof_extended_props", spoofCmd.Flags().Lookup("extended-props"))
	viper.BindPFlag("patterns_file", spoofCmd.Flags().Lookup("patterns"))
	viper.BindPFlag("seed", spoofCmd.Flags().Lookup("seed"))
	viper.BindPFlag("skip_profiles", spoofCmd.Flags().Lookup("skip-profiles"))
	viper.BindPFlag("use_ephemeral_users", spoofCmd.Flags().Lookup("ephemeral"))
	viper.BindPFlag("bypass_user_limits", spoofCmd.Flags().Lookup("bypass-user-limits"))
	viper.BindPFlag("auto_set_random_android_id", spoofCmd.Flags().Lookup("random-android-id"))
	viper.BindPFlag("pool_size", spoofCmd.Flags().Lookup("pool-size"))
	viper.BindPFlag("auto_cleanup", spoofCmd.Flags().Lookup("auto-cleanup"))
	viper.BindPFlag("user_creation_retries", spoofCmd.Flags().Lookup("retries"))
	viper.BindPFlag("retry_backoff", spoofCmd.Flags().Lookup("retry-backoff"))
	viper.BindPFlag("user_switch_timeout", spoofCmd.Flags().Lookup("switch-timeout"))

	rootCmd.AddCommand(spoofCmd)

	// Add restore command
	restoreCmd := &cobra.Command{
		Use:   "restore [device-id...]",
		Short: "Restore original property values from backup ledgers",
		Long: `Re-apply the backed-up original values for each listed device and clear its
ledger on full success. Without device arguments every device with a pending
ledger is restored. Running restore on an already-clean device is a no-op.`,
		RunE: commands.RunRestore,
	}
	rootCmd.AddCommand(restoreCmd)

	// Add generate command
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a device fingerprint without touching a device",
		Long: `Generate an internally consistent device identity from the pattern catalog and
print it. Useful for inspecting what a spoof run would apply, and for validating
custom pattern files.`,
		RunE: commands.RunGenerate,
	}
	generateCmd.Flags().StringVar(&manufacturer, "manufacturer", "any", "Target manufacturer")
	generateCmd.Flags().StringVar(&model, "model", "random", "Target model")
	generateCmd.Flags().StringVar(&androidVersion, "android-version", "any", "Target Android version")
	generateCmd.Flags().BoolVar(&extendedProps, "extended-props", false, "Include extended anti-tracking properties")
	generateCmd.Flags().StringVar(&patternsFile, "patterns", "", "Manufacturer pattern catalog file")
	generateCmd.Flags().Int64Var(&seed, "seed", 0, "Generation seed (0 = random)")
	generateCmd.Flags().Bool("json", false, "Print the profile as JSON")

	viper.BindPFlag("generate.json", generateCmd.Flags().Lookup("json"))

	rootCmd.AddCommand(generateCmd)

	// Add profiles command group
	profilesCmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage user profiles on a device",
		Long:  `List, create, and delete Android user profiles through the lifecycle manager.`,
	}
	profilesCmd.PersistentFlags().String("device", "", "ADB device serial (required)")
	profilesCmd.MarkPersistentFlagRequired("device")
	viper.BindPFlag("profiles.device", profilesCmd.PersistentFlags().Lookup("device"))

	profilesListCmd := &cobra.Command{
		Use:   "list",
		Short: "List user profiles on the device",
		Long: `List the user profiles currently present on a device, including their platform
ids, names, flags, and running state.`,
		RunE: commands.RunProfilesList,
	}
	profilesCmd.AddCommand(profilesListCmd)

	profilesCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user profile on the device",
		Long: `Create a new user profile with the configured retry budget. Ephemeral profiles
self-delete on reboot where the platform supports them (SDK 26+).`,
		RunE: commands.RunProfilesCreate,
	}
	profilesCreateCmd.Flags().Bool("ephemeral", true, "Request an ephemeral profile")
	profilesCreateCmd.Flags().String("label", "", "Profile label (timestamp-derived when empty)")
	viper.BindPFlag("profiles.ephemeral", profilesCreateCmd.Flags().Lookup("ephemeral"))
	viper.BindPFlag("profiles.label", profilesCreateCmd.Flags().Lookup("label"))
	profilesCmd.AddCommand(profilesCreateCmd)

	profilesDeleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a user profile from the device",
		Long: `Remove a user profile by id. The owner user (id 0) cannot be removed; the active
user is switched back to the owner first.`,
		RunE: commands.RunProfilesDelete,
	}
	profilesDeleteCmd.Flags().Int("user", 0, "Platform user id to remove (required)")
	profilesDeleteCmd.MarkFlagRequired("user")
	viper.BindPFlag("profiles.user", profilesDeleteCmd.Flags().Lookup("user"))
	profilesCmd.AddCommand(profilesDeleteCmd)

	rootCmd.AddCommand(profilesCmd)

	// Add check command for built-in self-checks
	rootCmd.AddCommand(&cobra.Command{
		Use:   "check [device-id...]",
		Short: "Probe device capabilities and report spoofing readiness",
		Long: `Probe each connected device for root access, resetprop provider, multi-user
support, free storage, and unlock state, and report whether identity spoofing
can proceed. Very useful for validating a device farm before a session.`,
		RunE: commands.RunCheck,
	})

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
