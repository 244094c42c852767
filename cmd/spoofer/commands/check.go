/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: check.go
Description: Check command implementation for the Akaylee Spoofer. Probes connected
devices for root access, resetprop provider, multi-user support, storage, and unlock
state, and reports whether identity spoofing can proceed on each.
*/

package commands

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/kleascm/akaylee-spoofer/pkg/adb"
	"github.com/kleascm/akaylee-spoofer/pkg/device"
)

// RunCheck executes the check command
func RunCheck(cmd *cobra.Command, args []string) error {
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

	// Environment self-checks before any device is touched
	fmt.Println("Environment:")
	if path, lookErr := exec.LookPath(config.ADBPath); lookErr != nil {
		return fmt.Errorf("adb binary not found (%s): %w", config.ADBPath, lookErr)
	} else {
		fmt.Printf("  adb:             %s\n", path)
	}
	if _, patErr := LoadPatternStore(); patErr != nil {
		return fmt.Errorf("pattern catalog invalid: %w", patErr)
	}
	fmt.Println("  patterns:        ok")
	if _, storeErr := OpenLedgerStore(config); storeErr != nil {
		return fmt.Errorf("state directory not writable: %w", storeErr)
	}
	fmt.Printf("  state dir:       %s\n", config.StateDir)

	runner := adb.NewRunner(config.ADBPath)
	ctx := context.Background()

	devices := args
	if len(devices) == 0 {
		devices, err = runner.ListDevices(ctx, config.CommandTimeout)
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}
	}
	if len(devices) == 0 {
		return fmt.Errorf("no devices connected")
	}

	detector := device.NewDetector(runner, logger.GetLogger(), config.ProbeTimeout)

	notReady := 0
	for _, deviceID := range devices {
		caps := detector.Detect(ctx, deviceID)

		outcome := "not-ready"
		if caps.CanSpoof() {
			outcome = "ready"
		}
		logger.LogProbe(deviceID, "capabilities", outcome, map[string]interface{}{
			"provider": string(caps.Provider),
			"sdk":      caps.SDKVersion,
		})

		fmt.Printf("\nDevice %s:\n", deviceID)
		fmt.Printf("  SDK version:     %d\n", caps.SDKVersion)
		fmt.Printf("  Root access:     %v\n", caps.RootAccess)
		fmt.Printf("  Provider:        %s\n", caps.Provider)
		if caps.ResetpropPath != "" {
			fmt.Printf("  Resetprop:       %s\n", caps.ResetpropPath)
		}
		fmt.Printf("  Multi-user:      %v (max %d)\n", caps.MultiUserSupport, caps.MaxUsers)
		fmt.Printf("  Ephemeral users: %v\n", caps.EphemeralUserSupport)
		fmt.Printf("  Free storage:    %d MB\n", caps.FreeStorageMB)
		fmt.Printf("  Unlocked:        %v\n", caps.Unlocked)

		if caps.CanSpoof() {
			fmt.Printf("  => ready for spoofing\n")
		} else {
			notReady++
			fmt.Printf("  => NOT ready: needs root and a resetprop provider\n")
		}
	}

	if notReady > 0 {
		return fmt.Errorf("%d of %d device(s) not ready for spoofing", notReady, len(devices))
	}
	return nil
}
