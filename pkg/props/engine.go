/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: engine.go
Description: Property application engine for the Akaylee Spoofer. Applies a generated
fingerprint's property map to a device through the detected provider's strategy list,
recording every original value in the ledger before mutating, verifying a sample of
applied keys by read-back, and reporting a per-key outcome for the whole batch. A
single property failure never fails the batch; only total channel loss aborts.
*/

package props

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/akaylee-spoofer/pkg/fingerprint"
	"github.com/kleascm/akaylee-spoofer/pkg/interfaces"
	"github.com/kleascm/akaylee-spoofer/pkg/ledger"
)

// DefaultVerifySample is how many applied keys are read back after a batch
const DefaultVerifySample = 5

// abortsBatch reports whether an error ends the whole batch rather than
// one key: total channel loss or caller cancellation
func abortsBatch(err error) bool {
	return errors.Is(err, interfaces.ErrChannelLost) || errors.Is(err, context.Canceled)
}

// Engine applies fingerprint property maps and restores originals
type Engine struct {
	runner       interfaces.CommandRunner
	logger       *logrus.Logger
	timeout      time.Duration // Per-command timeout
	verifySleep  time.Duration // Pause before read-back, property service lag
	verifySample int           // Number of applied keys to verify
}

// NewEngine creates a property application engine
func NewEngine(runner interfaces.CommandRunner, logger *logrus.Logger, timeout, verifySleep time.Duration) *Engine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Engine{
		runner:       runner,
		logger:       logger,
		timeout:      timeout,
		verifySleep:  verifySleep,
		verifySample: DefaultVerifySample,
	}
}

// SetVerifySample overrides how many applied keys get read-back
// verification after a batch
func (e *Engine) SetVerifySample(n int) {
	e.verifySample = n
}

// Apply writes a fingerprint's property map to a device.
// Per-key failures are recorded and the batch continues; the returned
// error is non-nil only for total channel loss, in which case remaining
// keys are reported as aborted.
func (e *Engine) Apply(ctx context.Context, caps *interfaces.DeviceCapabilities, led *ledger.Ledger, properties []fingerprint.Property) ([]interfaces.PropertyResult, error) {
	results := make([]interfaces.PropertyResult, 0, len(properties))

	// No provider means nothing can be mutated: report every key as
	// unsupported without touching the ledger or issuing any command.
	if !caps.CanSpoof() {
		for _, p := range properties {
			results = append(results, interfaces.PropertyResult{
				Key: p.Key, Value: p.Value, Outcome: interfaces.OutcomeUnsupported,
			})
		}
		return results, nil
	}

	strategies := StrategiesFor(caps.Provider)
	var applied []int // Indexes of keys that took a set command

	for i, p := range properties {
		result, err := e.applyKey(ctx, caps.DeviceID, led, strategies, p.Key, p.Value)
		if err != nil {
			// Channel lost: mark this key and everything after it aborted.
			results = append(results, interfaces.PropertyResult{
				Key: p.Key, Value: p.Value, Outcome: interfaces.OutcomeAborted, Error: err.Error(),
			})
			for _, rest := range properties[i+1:] {
				results = append(results, interfaces.PropertyResult{
					Key: rest.Key, Value: rest.Value, Outcome: interfaces.OutcomeAborted,
				})
			}
			return results, err
		}
		if result.Outcome == interfaces.OutcomeSuccess {
			applied = append(applied, len(results))
		}
		results = append(results, result)
	}

	if err := e.verifySampleKeys(ctx, caps.DeviceID, results, applied); err != nil {
		return results, err
	}
	return results, nil
}

// applyKey backs up and mutates a single property. The returned error is
// non-nil only for channel loss.
func (e *Engine) applyKey(ctx context.Context, deviceID string, led *ledger.Ledger, strategies []Strategy, key, value string) (interfaces.PropertyResult, error) {
	res := interfaces.PropertyResult{Key: key, Value: value}

	current, err := e.readProperty(ctx, deviceID, key)
	if err != nil {
		if abortsBatch(err) {
			return res, err
		}
		// Cannot establish the original value; mutating now would make
		// restoration impossible, so the key fails without mutation.
		res.Outcome = interfaces.OutcomeFailed
		res.Error = fmt.Sprintf("could not read current value: %v", err)
		return res, nil
	}

	// Backup strictly precedes the mutating command. Record persists the
	// entry before returning; a persistence failure blocks the mutation.
	recorded, err := led.Record(key, current.value, current.unset)
	if err != nil {
		res.Outcome = interfaces.OutcomeFailed
		res.Error = err.Error()
		return res, nil
	}
	if recorded {
		e.logger.WithFields(logrus.Fields{
			"device": deviceID, "key": key, "original": current.value, "was_unset": current.unset,
		}).Debug("Backed up original property")

		// The property service can change a value between the read and the
		// persisted backup; warn so the operator knows the recorded
		// original may be stale.
		recheck, err := e.readProperty(ctx, deviceID, key)
		if err != nil {
			if abortsBatch(err) {
				return res, err
			}
		} else if recheck.value != current.value || recheck.unset != current.unset {
			e.logger.WithFields(logrus.Fields{
				"device": deviceID, "key": key, "recorded": current.value, "now": recheck.value,
			}).Warn("Property changed during backup")
		}
	}

	var lastErr string
	for _, strategy := range strategies {
		result, err := strategy.Apply(ctx, e.runner, deviceID, e.timeout, key, value)
		if err != nil {
			if abortsBatch(err) {
				return res, err
			}
			lastErr = err.Error()
			continue
		}
		if result.Ok() {
			res.Outcome = interfaces.OutcomeSuccess
			res.Strategy = strategy.Name()
			e.logger.WithFields(logrus.Fields{
				"device": deviceID, "key": key, "strategy": strategy.Name(),
			}).Debug("Property set")
			return res, nil
		}
		if result.TimedOut {
			lastErr = "strategy timed out"
		} else if result.Stderr != "" {
			lastErr = result.Stderr
		} else {
			lastErr = fmt.Sprintf("exit code %d", result.ExitCode)
		}
	}

	res.Outcome = interfaces.OutcomeFailed
	res.Error = lastErr
	e.logger.WithFields(logrus.Fields{
		"device": deviceID, "key": key, "error": lastErr,
	}).Warn("All strategies failed for property")
	return res, nil
}

// verifySampleKeys reads back a sample of applied keys and downgrades
// mismatches to Unverified. Never upgrades or silently passes.
func (e *Engine) verifySampleKeys(ctx context.Context, deviceID string, results []interfaces.PropertyResult, applied []int) error {
	if len(applied) == 0 || e.verifySample == 0 {
		return nil
	}
	if e.verifySleep > 0 {
		time.Sleep(e.verifySleep)
	}

	sample := applied
	if e.verifySample > 0 && len(applied) > e.verifySample {
		// Evenly spaced sample across the batch
		sample = make([]int, 0, e.verifySample)
		stride := len(applied) / e.verifySample
		for i := 0; i < len(applied) && len(sample) < e.verifySample; i += stride {
			sample = append(sample, applied[i])
		}
	}

	for _, idx := range sample {
		r := &results[idx]
		current, err := e.readProperty(ctx, deviceID, r.Key)
		if err != nil {
			if abortsBatch(err) {
				return err
			}
			r.Outcome = interfaces.OutcomeUnverified
			r.Error = fmt.Sprintf("verification read failed: %v", err)
			continue
		}
		if current.value != r.Value {
			r.Outcome = interfaces.OutcomeUnverified
			r.Error = fmt.Sprintf("read-back mismatch: got %q", current.value)
			e.logger.WithFields(logrus.Fields{
				"device": deviceID, "key": r.Key, "want": r.Value, "got": current.value,
			}).Warn("Property verification mismatch")
		}
	}
	return nil
}

// propertyValue is a read property with its unset marker
type propertyValue struct {
	value string
	unset bool
}

// readProperty reads the current value of a property. An empty getprop
// response means the property is unset on the device.
func (e *Engine) readProperty(ctx context.Context, deviceID, key string) (propertyValue, error) {
	result, err := e.runner.Run(ctx, deviceID, e.timeout, "getprop", key)
	if err != nil {
		return propertyValue{}, err
	}
	if !result.Ok() {
		return propertyValue{}, fmt.Errorf("getprop %s failed: exit %d", key, result.ExitCode)
	}
	if result.Stdout == "" {
		return propertyValue{unset: true}, nil
	}
	return propertyValue{value: result.Stdout}, nil
}

// Restore re-applies the original values from a restore plan. Keys that
// were originally unset are deleted instead of set. Returns per-key
// results; the batch keeps going through individual failures and the
// boolean reports whether every key was restored.
func (e *Engine) Restore(ctx context.Context, caps *interfaces.DeviceCapabilities, plan []ledger.Entry) ([]interfaces.PropertyResult, bool, error) {
	results := make([]interfaces.PropertyResult, 0, len(plan))

	if !caps.CanSpoof() {
		for _, entry := range plan {
			results = append(results, interfaces.PropertyResult{
				Key: entry.Key, Value: entry.OriginalValue, Outcome: interfaces.OutcomeUnsupported,
			})
		}
		return results, false, nil
	}

	strategies := StrategiesFor(caps.Provider)
	deleter := &DeleteStrategy{}
	allOK := true

	for i, entry := range plan {
		res := interfaces.PropertyResult{Key: entry.Key, Value: entry.OriginalValue}

		var cmdErr error
		if entry.WasUnset {
			var result *interfaces.CommandResult
			result, cmdErr = deleter.Apply(ctx, e.runner, caps.DeviceID, e.timeout, entry.Key, "")
			if cmdErr == nil {
				if result.Ok() {
					res.Outcome = interfaces.OutcomeSuccess
					res.Strategy = deleter.Name()
				} else {
					res.Outcome = interfaces.OutcomeFailed
					res.Error = result.Stderr
				}
			}
		} else {
			res, cmdErr = e.restoreValue(ctx, caps.DeviceID, strategies, entry)
		}

		if cmdErr != nil {
			res.Outcome = interfaces.OutcomeAborted
			res.Error = cmdErr.Error()
			results = append(results, res)
			for _, rest := range plan[i+1:] {
				results = append(results, interfaces.PropertyResult{
					Key: rest.Key, Value: rest.OriginalValue, Outcome: interfaces.OutcomeAborted,
				})
			}
			return results, false, cmdErr
		}

		if res.Outcome != interfaces.OutcomeSuccess {
			allOK = false
		}
		results = append(results, res)
	}
	return results, allOK, nil
}

// restoreValue sets one original value through the strategy list
func (e *Engine) restoreValue(ctx context.Context, deviceID string, strategies []Strategy, entry ledger.Entry) (interfaces.PropertyResult, error) {
	res := interfaces.PropertyResult{Key: entry.Key, Value: entry.OriginalValue}

	var lastErr string
	for _, strategy := range strategies {
		result, err := strategy.Apply(ctx, e.runner, deviceID, e.timeout, entry.Key, entry.OriginalValue)
		if err != nil {
			if abortsBatch(err) {
				return res, err
			}
			lastErr = err.Error()
			continue
		}
		if result.Ok() {
			res.Outcome = interfaces.OutcomeSuccess
			res.Strategy = strategy.Name()
			return res, nil
		}
		lastErr = result.Stderr
	}

	res.Outcome = interfaces.OutcomeFailed
	res.Error = lastErr
	return res, nil
}
