/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: generate.go
Description: Generate command implementation for the Akaylee Spoofer. Produces an
internally consistent device fingerprint from the pattern catalog without touching
any device, for inspection and catalog validation.
*/

package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kleascm/akaylee-spoofer/pkg/fingerprint"
)

// RunGenerate executes the generate command
func RunGenerate(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(); err != nil {
		return err
	}

	patternStore, err := LoadPatternStore()
	if err != nil {
		return err
	}

	generator := fingerprint.NewGenerator(patternStore, viper.GetInt64("seed"))
	profile, err := generator.Generate(fingerprint.Constraints{
		Manufacturer:   viper.GetString("manufacturer"),
		Model:          viper.GetString("model"),
		AndroidVersion: viper.GetString("android_version"),
		ExtendedProps:  viper.GetBool("spoof_extended_props"),
	})
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	if viper.GetBool("generate.json") {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(profile)
	}

	fmt.Printf("Device:       %s %s (%s)\n", profile.ManufacturerName, profile.Model.DisplayName, profile.Model.Model)
	fmt.Printf("Android:      %s (SDK %d)\n", profile.Release, profile.SDK)
	fmt.Printf("Build ID:     %s\n", profile.BuildID)
	fmt.Printf("Incremental:  %s\n", profile.Incremental)
	fmt.Printf("Serial:       %s\n", profile.Serial)
	fmt.Printf("Fingerprint:  %s\n", profile.BuildFingerprint)
	fmt.Printf("\nProperties (%d):\n", len(profile.Properties()))
	for _, p := range profile.Properties() {
		fmt.Printf("  %s=%s\n", p.Key, p.Value)
	}
	return nil
}
