/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: restore.go
Description: Restore command implementation for the Akaylee Spoofer. Re-applies
backed-up original property values from the durable ledger store, clearing each
device's ledger only after every key restored cleanly.
*/

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kleascm/akaylee-spoofer/pkg/adb"
	"github.com/kleascm/akaylee-spoofer/pkg/interfaces"
	"github.com/kleascm/akaylee-spoofer/pkg/session"
)

// RunRestore executes the restore command
func RunRestore(cmd *cobra.Command, args []string) error {
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

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("\n[!] Interrupt received, stopping restoration...")
		cancel()
	}()

	devices := args
	if len(devices) == 0 {
		devices, err = ledgerStore.Devices()
		if err != nil {
			return fmt.Errorf("failed to enumerate pending ledgers: %w", err)
		}
	}
	if len(devices) == 0 {
		fmt.Println("[*] No devices with pending backups.")
		return nil
	}

	orch := session.NewOrchestrator(config, runner, patternStore, ledgerStore, logger.GetLogger())
	orch.SetEventLog(logger)

	var failures int
	for _, deviceID := range devices {
		fmt.Printf("[*] Restoring %s...\n", deviceID)
		results, err := orch.RestoreDevice(ctx, deviceID)
		if err != nil {
			failures++
			fmt.Printf("[!] %s: %v\n", deviceID, err)
			continue
		}
		restored := 0
		for _, r := range results {
			if r.Outcome == interfaces.OutcomeSuccess {
				restored++
			}
		}
		fmt.Printf("[+] %s: %d of %d key(s) restored, ledger cleared\n", deviceID, restored, len(results))
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d device(s) could not be fully restored", failures, len(devices))
	}
	return nil
}
