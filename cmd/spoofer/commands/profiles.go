/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: profiles.go
Description: Profiles command implementations for the Akaylee Spoofer. Lists, creates,
and deletes user profiles on a device through the lifecycle manager, honoring the
ephemeral, validation, and retry options from configuration.
*/

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kleascm/akaylee-spoofer/pkg/adb"
	"github.com/kleascm/akaylee-spoofer/pkg/device"
	"github.com/kleascm/akaylee-spoofer/pkg/profiles"
)

// RunProfilesList executes the profiles list command
func RunProfilesList(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(); err != nil {
		return err
	}
	logger, err := SetupLogging()
	if err != nil {
		return err
	}
	defer logger.Close()

	config, err := BuildSpoofConfig()
	if err != nil {
		return err
	}

	deviceID := viper.GetString("profiles.device")
	runner := adb.NewRunner(config.ADBPath)
	manager := profiles.NewManager(runner, logger.GetLogger(), config.CommandTimeout)

	users, err := manager.List(context.Background(), deviceID)
	if err != nil {
		return fmt.Errorf("failed to list profiles on %s: %w", deviceID, err)
	}

	fmt.Printf("User profiles on %s (%d):\n", deviceID, len(users))
	for _, u := range users {
		running := ""
		if u.Running {
			running = " (running)"
		}
		fmt.Printf("  %3d  %-24s flags=%s%s\n", u.ID, u.Name, u.Flags, running)
	}
	return nil
}

// RunProfilesCreate executes the profiles create command
func RunProfilesCreate(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(); err != nil {
		return err
	}
	logger, err := SetupLogging()
	if err != nil {
		return err
	}
	defer logger.Close()

	config, err := BuildSpoofConfig()
	if err != nil {
		return err
	}

	deviceID := viper.GetString("profiles.device")
	runner := adb.NewRunner(config.ADBPath)
	ctx := context.Background()

	caps := device.NewDetector(runner, logger.GetLogger(), config.ProbeTimeout).Detect(ctx, deviceID)
	manager := profiles.NewManager(runner, logger.GetLogger(), config.CommandTimeout)

	rec, err := manager.Create(ctx, caps, profiles.CreateOptions{
		Ephemeral:        viper.GetBool("profiles.ephemeral"),
		Label:            viper.GetString("profiles.label"),
		Validate:         config.ValidateUserSwitch,
		Retries:          config.UserCreationRetries,
		Backoff:          config.RetryBackoff,
		SwitchTimeout:    config.UserSwitchTimeout,
		BypassUserLimits: config.BypassUserLimits,
		RandomAndroidID:  config.AutoSetRandomAndroidID,
	})
	if err != nil {
		return fmt.Errorf("failed to create profile on %s: %w", deviceID, err)
	}

	fmt.Printf("[+] Created user %d (%s, ephemeral=%v) on %s\n", rec.UserID, rec.Label, rec.Ephemeral, deviceID)
	return nil
}

// RunProfilesDelete executes the profiles delete command
func RunProfilesDelete(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(); err != nil {
		return err
	}
	logger, err := SetupLogging()
	if err != nil {
		return err
	}
	defer logger.Close()

	config, err := BuildSpoofConfig()
	if err != nil {
		return err
	}

	deviceID := viper.GetString("profiles.device")
	userID := viper.GetInt("profiles.user")
	if userID <= 0 {
		return fmt.Errorf("--user must name a secondary user (id > 0)")
	}

	runner := adb.NewRunner(config.ADBPath)
	manager := profiles.NewManager(runner, logger.GetLogger(), config.CommandTimeout)

	rec := &profiles.Record{DeviceID: deviceID, UserID: userID, State: profiles.StateActive}
	if err := manager.Delete(context.Background(), rec); err != nil {
		return fmt.Errorf("failed to delete user %d on %s: %w", userID, deviceID, err)
	}

	fmt.Printf("[+] Deleted user %d on %s\n", userID, deviceID)
	return nil
}
