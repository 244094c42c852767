/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: strategies.go
Description: Resetprop application strategies for the Akaylee Spoofer. Models the
provider-specific variants of the set operation as an ordered, polymorphic strategy
list evaluated first-success-wins per property key, instead of branching conditionals
scattered through the apply path.
*/

package props

import (
	"context"
	"time"

	"github.com/kleascm/akaylee-spoofer/pkg/interfaces"
)

// Strategy is one way of setting a property through a privileged channel
type Strategy interface {
	// Apply attempts to set the property. A nil error with a non-OK
	// result means the strategy failed cleanly; an error means the
	// channel itself broke.
	Apply(ctx context.Context, runner interfaces.CommandRunner, deviceID string, timeout time.Duration, key, value string) (*interfaces.CommandResult, error)

	// Name returns the name of this strategy
	Name() string

	// Description returns a description of this strategy
	Description() string
}

// resetpropStrategy invokes resetprop with a fixed flag set
type resetpropStrategy struct {
	name        string
	description string
	flags       []string
}

func (s *resetpropStrategy) Apply(ctx context.Context, runner interfaces.CommandRunner, deviceID string, timeout time.Duration, key, value string) (*interfaces.CommandResult, error) {
	args := append([]string{"resetprop"}, s.flags...)
	args = append(args, key, value)
	return runner.RunAsRoot(ctx, deviceID, timeout, args...)
}

func (s *resetpropStrategy) Name() string        { return s.name }
func (s *resetpropStrategy) Description() string { return s.description }

// deleteThenSetStrategy removes a stubborn property first, then sets it.
// Last resort for keys the property service refuses to overwrite in place.
type deleteThenSetStrategy struct{}

func (s *deleteThenSetStrategy) Apply(ctx context.Context, runner interfaces.CommandRunner, deviceID string, timeout time.Duration, key, value string) (*interfaces.CommandResult, error) {
	if _, err := runner.RunAsRoot(ctx, deviceID, timeout, "resetprop", "--delete", key); err != nil {
		return nil, err
	}
	return runner.RunAsRoot(ctx, deviceID, timeout, "resetprop", key, value)
}

func (s *deleteThenSetStrategy) Name() string { return "DeleteThenSet" }
func (s *deleteThenSetStrategy) Description() string {
	return "Deletes the property before setting it, for keys that refuse in-place overwrite"
}

// DeleteStrategy exposes property deletion for restoring keys that were
// originally unset
type DeleteStrategy struct{}

func (s *DeleteStrategy) Apply(ctx context.Context, runner interfaces.CommandRunner, deviceID string, timeout time.Duration, key, _ string) (*interfaces.CommandResult, error) {
	return runner.RunAsRoot(ctx, deviceID, timeout, "resetprop", "--delete", key)
}

func (s *DeleteStrategy) Name() string        { return "Delete" }
func (s *DeleteStrategy) Description() string { return "Removes a property via resetprop --delete" }

// StrategiesFor returns the ordered strategy list for a detected
// provider. Magisk's resetprop supports --force; the APatch and KernelSU
// builds do not, so their lists skip it.
func StrategiesFor(provider interfaces.ResetpropProvider) []Strategy {
	standard := &resetpropStrategy{
		name:        "Standard",
		description: "Plain resetprop set",
	}
	nonPersistent := &resetpropStrategy{
		name:        "NonPersistent",
		description: "Runtime-only set via resetprop -n",
		flags:       []string{"-n"},
	}
	force := &resetpropStrategy{
		name:        "Force",
		description: "Forced set via resetprop --force",
		flags:       []string{"--force"},
	}

	switch provider {
	case interfaces.ProviderMagisk:
		return []Strategy{standard, nonPersistent, force, &deleteThenSetStrategy{}}
	case interfaces.ProviderAPatch, interfaces.ProviderKernelSU:
		return []Strategy{standard, nonPersistent, &deleteThenSetStrategy{}}
	default:
		return nil
	}
}
