/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: orchestrator.go
Description: Multi-device session orchestrator for the Akaylee Spoofer. Fans devices
out to a bounded worker pool, runs each device's pipeline strictly sequentially
(detect, profile, generate, apply), and finalizes sessions by either persisting the
ledger for a later restore or restoring originals immediately. One device's failure
never blocks another device's session.
*/

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/akaylee-spoofer/pkg/device"
	"github.com/kleascm/akaylee-spoofer/pkg/fingerprint"
	"github.com/kleascm/akaylee-spoofer/pkg/interfaces"
	"github.com/kleascm/akaylee-spoofer/pkg/ledger"
	"github.com/kleascm/akaylee-spoofer/pkg/logging"
	"github.com/kleascm/akaylee-spoofer/pkg/patterns"
	"github.com/kleascm/akaylee-spoofer/pkg/profiles"
	"github.com/kleascm/akaylee-spoofer/pkg/props"
)

// Decision is what Finalize does with a device's pending ledger
type Decision string

const (
	// DecisionPersist keeps the ledger on disk for a later restore
	DecisionPersist Decision = "persist"
	// DecisionRestore re-applies originals now and clears the ledger on
	// full success
	DecisionRestore Decision = "restore"
)

// Orchestrator drives spoof sessions across multiple devices
type Orchestrator struct {
	config   *interfaces.SpoofConfig
	runner   interfaces.CommandRunner
	patterns *patterns.Store
	ledgers  ledger.Store
	detector *device.Detector
	engine   *props.Engine
	manager  *profiles.Manager
	logger   *logrus.Logger
	events   *logging.Logger // Optional structured event sink
	seed     int64

	mu       sync.Mutex
	sessions map[string]*SpoofSession // Keyed by device ID
}

// NewOrchestrator wires a session orchestrator from its collaborators
func NewOrchestrator(config *interfaces.SpoofConfig, runner interfaces.CommandRunner, patternStore *patterns.Store, ledgerStore ledger.Store, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		config:   config,
		runner:   runner,
		patterns: patternStore,
		ledgers:  ledgerStore,
		detector: device.NewDetector(runner, logger, config.ProbeTimeout),
		engine:   props.NewEngine(runner, logger, config.CommandTimeout, config.VerifySleep),
		manager:  profiles.NewManager(runner, logger, config.CommandTimeout),
		logger:   logger,
		sessions: make(map[string]*SpoofSession),
	}
}

// SetSeed fixes the fingerprint generation seed. Zero keeps clock-derived
// seeding; tests pass a fixed value for reproducible identities.
func (o *Orchestrator) SetSeed(seed int64) {
	o.seed = seed
}

// SetEventLog routes session, apply, restore, and profile events through
// the structured spoofer log in addition to the base logger
func (o *Orchestrator) SetEventLog(events *logging.Logger) {
	o.events = events
}

// Engine exposes the property engine for callers that restore outside a
// full session run
func (o *Orchestrator) Engine() *props.Engine {
	return o.engine
}

// Manager exposes the profile lifecycle manager
func (o *Orchestrator) Manager() *profiles.Manager {
	return o.manager
}

// Detector exposes the capability detector
func (o *Orchestrator) Detector() *device.Detector {
	return o.detector
}

// Run spoofs every listed device through a bounded worker pool. Each
// device gets exactly one session; the returned slice preserves input
// order. Run itself never fails, per-device outcomes live in the
// session states.
func (o *Orchestrator) Run(ctx context.Context, devices []string) []*SpoofSession {
	results := make([]*SpoofSession, len(devices))
	pool := make(chan struct{}, o.config.PoolSize)
	var wg sync.WaitGroup

	for i, deviceID := range devices {
		wg.Add(1)
		go func(slot int, id string) {
			defer wg.Done()
			pool <- struct{}{}
			defer func() { <-pool }()

			s := o.runDevice(ctx, id)
			results[slot] = s

			o.mu.Lock()
			o.sessions[id] = s
			o.mu.Unlock()
		}(i, deviceID)
	}
	wg.Wait()

	return results
}

// runDevice executes the sequential pipeline for one device:
// detect capabilities, provision a profile when the platform allows it,
// generate an identity, and apply it with backups.
func (o *Orchestrator) runDevice(ctx context.Context, deviceID string) *SpoofSession {
	s := newSession(deviceID)
	s.State = StateRunning

	log := o.logger.WithFields(logrus.Fields{"session": s.ID, "device": deviceID})
	log.Info("Starting spoof session")

	led, err := ledger.Resume(deviceID, o.ledgers)
	if err != nil {
		return o.fail(s, fmt.Errorf("ledger unavailable: %w", err))
	}
	s.Ledger = led
	if led.Len() > 0 {
		log.WithField("entries", led.Len()).Warn("Resuming with backups from a previous session")
	}

	s.Caps = o.detector.Detect(ctx, deviceID)

	if o.config.ValidateRootAccess && !s.Caps.RootAccess {
		return o.fail(s, fmt.Errorf("device %s has no root access", deviceID))
	}
	if o.config.MinStorageMB > 0 && s.Caps.FreeStorageMB > 0 && s.Caps.FreeStorageMB < o.config.MinStorageMB {
		return o.fail(s, fmt.Errorf("device %s has %dMB free, need %dMB",
			deviceID, s.Caps.FreeStorageMB, o.config.MinStorageMB))
	}

	o.provisionProfile(ctx, s, log)

	if !o.config.EnableSpoofing {
		log.Info("Spoofing disabled, session is profile-only")
		return o.complete(s)
	}

	generator := fingerprint.NewGenerator(o.patterns, o.seed)
	profile, err := generator.Generate(fingerprint.Constraints{
		Manufacturer:   o.config.Manufacturer,
		Model:          o.config.Model,
		AndroidVersion: o.config.AndroidVersion,
		ExtendedProps:  o.config.SpoofExtendedProps,
	})
	if err != nil {
		return o.fail(s, fmt.Errorf("fingerprint generation failed: %w", err))
	}
	s.Fingerprint = profile
	log.WithField("fingerprint", profile.BuildFingerprint).Info("Generated device identity")

	if s.Profile != nil {
		s.Results, err = o.manager.AssignFingerprint(ctx, s.Profile, profile, o.engine, s.Caps, led)
	} else {
		s.Results, err = o.engine.Apply(ctx, s.Caps, led, profile.Properties())
	}
	if err != nil {
		// Cancellation retains the ledger like channel loss does, so an
		// operator abort can be restored later.
		if errors.Is(err, interfaces.ErrChannelLost) || errors.Is(err, context.Canceled) {
			return o.interrupt(s, err)
		}
		return o.fail(s, err)
	}

	counts := s.OutcomeCounts()
	if o.events != nil {
		for _, r := range s.Results {
			o.events.LogPropertyApply(s.DeviceID, r.Key, string(r.Outcome), r.Strategy, nil)
		}
	} else {
		log.WithFields(logrus.Fields{
			"applied":     counts[interfaces.OutcomeSuccess],
			"failed":      counts[interfaces.OutcomeFailed],
			"unverified":  counts[interfaces.OutcomeUnverified],
			"unsupported": counts[interfaces.OutcomeUnsupported],
			"backups":     led.Len(),
		}).Info("Spoof session finished")
	}

	return o.complete(s)
}

// provisionProfile creates a user profile for the session when the
// platform supports it. Creation failure downgrades the session to
// owner-context spoofing instead of failing it.
func (o *Orchestrator) provisionProfile(ctx context.Context, s *SpoofSession, log *logrus.Entry) {
	if o.config.CheckMultiuserSupport && !s.Caps.MultiUserSupport {
		log.Warn("Multi-user unsupported, spoofing in the current user context")
		return
	}
	if !o.config.AutoSpoofOnProfileCreation {
		return
	}

	rec, err := o.manager.Create(ctx, s.Caps, profiles.CreateOptions{
		Ephemeral:        o.config.UseEphemeralUsers,
		Validate:         o.config.ValidateUserSwitch,
		Retries:          o.config.UserCreationRetries,
		Backoff:          o.config.RetryBackoff,
		SwitchTimeout:    o.config.UserSwitchTimeout,
		BypassUserLimits: o.config.BypassUserLimits,
		RandomAndroidID:  o.config.AutoSetRandomAndroidID,
	})
	if err != nil {
		log.WithError(err).Warn("Profile creation failed, spoofing in the current user context")
		return
	}
	s.Profile = rec
	if o.events != nil {
		o.events.LogProfile(s.DeviceID, rec.UserID, "created", map[string]interface{}{"ephemeral": rec.Ephemeral})
	}
	log.WithFields(logrus.Fields{"user_id": rec.UserID, "ephemeral": rec.Ephemeral}).Info("Provisioned user profile")
}

// RestoreDevice re-applies a device's backed-up originals from durable
// storage and clears the ledger when every key was restored. A device
// with no pending ledger is a no-op, which makes restoration idempotent.
func (o *Orchestrator) RestoreDevice(ctx context.Context, deviceID string) ([]interfaces.PropertyResult, error) {
	plan, err := ledger.RestorePlan(o.ledgers, deviceID)
	if err != nil {
		return nil, err
	}
	if len(plan) == 0 {
		o.logger.WithField("device", deviceID).Info("No pending backups to restore")
		return nil, nil
	}

	caps := o.sessionCaps(deviceID)
	if caps == nil {
		caps = o.detector.Detect(ctx, deviceID)
	}

	results, allOK, err := o.engine.Restore(ctx, caps, plan)
	if err != nil {
		return results, fmt.Errorf("restore interrupted on %s: %w", deviceID, err)
	}
	if !allOK {
		// Ledger stays on disk so the unrestored keys can be retried.
		return results, fmt.Errorf("restore incomplete on %s: ledger retained", deviceID)
	}

	if err := o.ledgers.Clear(deviceID); err != nil {
		return results, err
	}
	if o.events != nil {
		o.events.LogRestore(deviceID, len(results), len(plan), nil)
	} else {
		o.logger.WithFields(logrus.Fields{"device": deviceID, "restored": len(results)}).Info("Restored original properties")
	}
	return results, nil
}

// Finalize settles every device with a pending ledger. Per-device
// decisions override the default, which is restore when auto-cleanup is
// configured and persist otherwise. Restored devices also get their
// session profiles torn down.
func (o *Orchestrator) Finalize(ctx context.Context, decisions map[string]Decision) error {
	pending, err := o.ledgers.Devices()
	if err != nil {
		return fmt.Errorf("failed to enumerate pending ledgers: %w", err)
	}

	fallback := DecisionPersist
	if o.config.AutoCleanup {
		fallback = DecisionRestore
	}

	var failures []error
	for _, deviceID := range pending {
		decision, ok := decisions[deviceID]
		if !ok {
			decision = fallback
		}

		if decision == DecisionPersist {
			o.logger.WithField("device", deviceID).Info("Ledger persisted for later restoration")
			continue
		}

		if _, err := o.RestoreDevice(ctx, deviceID); err != nil {
			failures = append(failures, err)
			continue
		}
		if s := o.session(deviceID); s != nil && s.Profile != nil {
			if err := o.manager.Delete(ctx, s.Profile); err != nil {
				failures = append(failures, fmt.Errorf("profile cleanup on %s: %w", deviceID, err))
			}
		}
	}
	return errors.Join(failures...)
}

// Report returns the ordered per-property outcomes for every device
// processed so far, keyed by device ID
func (o *Orchestrator) Report() map[string][]interfaces.PropertyResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string][]interfaces.PropertyResult, len(o.sessions))
	for id, s := range o.sessions {
		out[id] = s.Results
	}
	return out
}

// Sessions returns the sessions recorded so far, keyed by device ID
func (o *Orchestrator) Sessions() map[string]*SpoofSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]*SpoofSession, len(o.sessions))
	for k, v := range o.sessions {
		out[k] = v
	}
	return out
}

func (o *Orchestrator) session(deviceID string) *SpoofSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[deviceID]
}

func (o *Orchestrator) sessionCaps(deviceID string) *interfaces.DeviceCapabilities {
	if s := o.session(deviceID); s != nil {
		return s.Caps
	}
	return nil
}

// emitSession pushes the settled session through the structured event
// sink when one is wired
func (o *Orchestrator) emitSession(s *SpoofSession) {
	if o.events == nil {
		return
	}
	counts := s.OutcomeCounts()
	o.events.LogSession(s.ID, s.DeviceID, string(s.State),
		counts[interfaces.OutcomeSuccess], counts[interfaces.OutcomeFailed], nil)
}

func (o *Orchestrator) complete(s *SpoofSession) *SpoofSession {
	s.State = StateCompleted
	s.FinishedAt = time.Now()
	o.emitSession(s)
	return s
}

func (o *Orchestrator) fail(s *SpoofSession, err error) *SpoofSession {
	s.State = StateFailed
	s.Error = err.Error()
	s.FinishedAt = time.Now()
	o.logger.WithFields(logrus.Fields{"session": s.ID, "device": s.DeviceID}).WithError(err).Error("Spoof session failed")
	o.emitSession(s)
	return s
}

// interrupt marks a session whose device channel was lost mid-batch. The
// partial results and the durable ledger are kept so the device can be
// restored once it reconnects.
func (o *Orchestrator) interrupt(s *SpoofSession, err error) *SpoofSession {
	s.State = StateInterrupted
	s.Error = err.Error()
	s.FinishedAt = time.Now()
	o.logger.WithFields(logrus.Fields{
		"session": s.ID, "device": s.DeviceID, "backups": s.Ledger.Len(),
	}).WithError(err).Warn("Session interrupted, ledger retained for restoration")
	o.emitSession(s)
	return s
}
