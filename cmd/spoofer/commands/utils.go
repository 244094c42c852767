/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Shared utilities for the Akaylee Spoofer commands. Provides common
configuration loading, logging setup, and component wiring used across all
command implementations.
*/

package commands

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/kleascm/akaylee-spoofer/pkg/interfaces"
	"github.com/kleascm/akaylee-spoofer/pkg/ledger"
	"github.com/kleascm/akaylee-spoofer/pkg/logging"
	"github.com/kleascm/akaylee-spoofer/pkg/patterns"
)

// LoadConfig loads configuration from files and environment
func LoadConfig() error {
	// Set config file if specified
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("AKAYLEE")
	viper.AutomaticEnv()

	return nil
}

// SetupLogging configures the logging system from viper state
func SetupLogging() (*logging.Logger, error) {
	format := logging.LogFormat(viper.GetString("log_format"))
	if format == "" {
		format = logging.LogFormatCustom
	}
	if viper.GetBool("json_logs") {
		format = logging.LogFormatJSON
	}

	config := &logging.LoggerConfig{
		Level:     logging.LogLevel(viper.GetString("log_level")),
		Format:    format,
		OutputDir: viper.GetString("log_dir"),
		MaxFiles:  viper.GetInt("log_max_files"),
		MaxSize:   viper.GetInt64("log_max_size"),
		Timestamp: true,
		Compress:  viper.GetBool("log_compress"),
	}
	if config.Level == "" {
		config.Level = logging.LogLevelInfo
	}
	if config.OutputDir == "" {
		config.OutputDir = "./logs"
	}
	if config.MaxFiles <= 0 {
		config.MaxFiles = 10
	}
	if config.MaxSize <= 0 {
		config.MaxSize = 100 * 1024 * 1024
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}

	return logging.NewLogger(config)
}

// BuildSpoofConfig assembles the engine configuration from viper state
// and validates it
func BuildSpoofConfig() (*interfaces.SpoofConfig, error) {
	config := interfaces.DefaultSpoofConfig()

	if v := viper.GetString("manufacturer"); v != "" {
		config.Manufacturer = v
	}
	if v := viper.GetString("model"); v != "" {
		config.Model = v
	}
	if v := viper.GetString("android_version"); v != "" {
		config.AndroidVersion = v
	}
	config.SpoofExtendedProps = viper.GetBool("spoof_extended_props")
	config.AutoSpoofOnProfileCreation = !viper.GetBool("skip_profiles")
	config.UseEphemeralUsers = viper.GetBool("use_ephemeral_users")
	config.BypassUserLimits = viper.GetBool("bypass_user_limits")
	config.AutoSetRandomAndroidID = viper.GetBool("auto_set_random_android_id")

	if v := viper.GetInt("pool_size"); v > 0 {
		config.PoolSize = v
	}
	config.AutoCleanup = viper.GetBool("auto_cleanup")
	if v := viper.GetInt("user_creation_retries"); v > 0 {
		config.UserCreationRetries = v
	}
	if viper.IsSet("retry_backoff") {
		config.RetryBackoff = viper.GetDuration("retry_backoff")
	}
	if viper.IsSet("user_switch_timeout") {
		config.UserSwitchTimeout = viper.GetDuration("user_switch_timeout")
	}
	if viper.IsSet("command_timeout") {
		config.CommandTimeout = viper.GetDuration("command_timeout")
	}
	if viper.IsSet("probe_timeout") {
		config.ProbeTimeout = viper.GetDuration("probe_timeout")
	}
	if v := viper.GetString("state_dir"); v != "" {
		config.StateDir = v
	}
	if v := viper.GetString("adb_path"); v != "" {
		config.ADBPath = v
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// LoadPatternStore loads the manufacturer pattern catalog, either from a
// custom file or the built-in defaults
func LoadPatternStore() (*patterns.Store, error) {
	if path := viper.GetString("patterns_file"); path != "" {
		store, err := patterns.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load pattern catalog: %w", err)
		}
		return store, nil
	}
	return patterns.DefaultStore(), nil
}

// OpenLedgerStore opens the durable ledger backend under the state
// directory
func OpenLedgerStore(config *interfaces.SpoofConfig) (ledger.Store, error) {
	store, err := ledger.NewFileStore(config.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger store: %w", err)
	}
	return store, nil
}
