/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: spoof.go
Description: Spoof command implementation for the Akaylee Spoofer. Wires the pattern
catalog, ledger store, and orchestrator together, runs spoof sessions across the
selected devices with graceful interrupt handling, and prints a per-device summary.
*/

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kleascm/akaylee-spoofer/pkg/adb"
	"github.com/kleascm/akaylee-spoofer/pkg/interfaces"
	"github.com/kleascm/akaylee-spoofer/pkg/session"
)

// RunSpoof executes the spoof command
func RunSpoof(cmd *cobra.Command, args []string) error {
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
	patternStore, err := LoadPatternStore()
	if err != nil {
		return err
	}
	ledgerStore, err := OpenLedgerStore(config)
	if err != nil {
		return err
	}

	runner := adb.NewRunner(config.ADBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("\n[!] Interrupt received, stopping spoof sessions...")
		cancel()
	}()

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

	orch := session.NewOrchestrator(config, runner, patternStore, ledgerStore, logger.GetLogger())
	orch.SetEventLog(logger)
	orch.SetSeed(viper.GetInt64("seed"))

	fmt.Printf("[*] Spoofing %d device(s) with pool size %d...\n", len(devices), config.PoolSize)
	sessions := orch.Run(ctx, devices)

	failures := 0
	for _, s := range sessions {
		printSessionSummary(s)
		if s.State != session.StateCompleted {
			failures++
		}
	}

	if err := orch.Finalize(ctx, nil); err != nil {
		return fmt.Errorf("finalization failed: %w", err)
	}

	if failures == len(sessions) {
		return fmt.Errorf("all %d session(s) failed", failures)
	}
	if failures > 0 {
		fmt.Printf("[!] %d of %d session(s) did not complete\n", failures, len(sessions))
	}
	return nil
}

// printSessionSummary prints one device's session outcome
func printSessionSummary(s *session.SpoofSession) {
	fmt.Printf("\n[%s] session %s: %s\n", s.DeviceID, s.ID[:8], s.State)
	if s.Error != "" {
		fmt.Printf("    error: %s\n", s.Error)
	}
	if s.Fingerprint != nil {
		fmt.Printf("    identity: %s %s (Android %s)\n",
			s.Fingerprint.ManufacturerName, s.Fingerprint.Model.DisplayName, s.Fingerprint.Release)
		fmt.Printf("    fingerprint: %s\n", s.Fingerprint.BuildFingerprint)
		fmt.Printf("    serial: %s\n", s.Fingerprint.Serial)
	}
	if s.Profile != nil {
		fmt.Printf("    profile: user %d (%s, ephemeral=%v)\n", s.Profile.UserID, s.Profile.Label, s.Profile.Ephemeral)
	}
	if len(s.Results) > 0 {
		counts := s.OutcomeCounts()
		fmt.Printf("    properties: %d applied, %d failed, %d unverified, %d unsupported, %d aborted\n",
			counts[interfaces.OutcomeSuccess], counts[interfaces.OutcomeFailed],
			counts[interfaces.OutcomeUnverified], counts[interfaces.OutcomeUnsupported],
			counts[interfaces.OutcomeAborted])
	}
	if s.HasPendingLedger() {
		fmt.Printf("    backups: %d original value(s) in the ledger\n", s.Ledger.Len())
	}
}
