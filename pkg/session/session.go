/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: session.go
Description: Spoof session types for the Akaylee Spoofer. A session scopes one device's
capability snapshot, active profile, ledger, and ordered per-property outcomes from
start to finish, and distinguishes interrupted sessions (channel lost, ledger preserved)
from failed ones.
*/

package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/kleascm/akaylee-spoofer/pkg/fingerprint"
	"github.com/kleascm/akaylee-spoofer/pkg/interfaces"
	"github.com/kleascm/akaylee-spoofer/pkg/ledger"
	"github.com/kleascm/akaylee-spoofer/pkg/profiles"
)

// State classifies a session's outcome
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	// StateFailed means the session could not do its work (generation or
	// configuration problems); the device channel was fine
	StateFailed State = "failed"
	// StateInterrupted means the channel was lost mid-run; the partial
	// ledger stays on durable storage for a later restore attempt
	StateInterrupted State = "interrupted"
)

// SpoofSession is the per-device unit of orchestrated work
type SpoofSession struct {
	ID          string                        `json:"id"`                    // Unique session identifier
	DeviceID    string                        `json:"device_id"`             // ADB serial
	Caps        *interfaces.DeviceCapabilities `json:"caps"`                 // Capability snapshot for this run
	Profile     *profiles.Record              `json:"profile,omitempty"`     // Active user profile, if one was created
	Fingerprint *fingerprint.Profile          `json:"fingerprint,omitempty"` // Generated identity, if spoofing ran
	Results     []interfaces.PropertyResult   `json:"results"`               // Ordered per-property outcomes
	State       State                         `json:"state"`                 // Session outcome
	Error       string                        `json:"error,omitempty"`       // Failure/interruption cause
	StartedAt   time.Time                     `json:"started_at"`            // When work began
	FinishedAt  time.Time                     `json:"finished_at"`           // When work ended

	Ledger *ledger.Ledger `json:"-"` // Session-scoped backup ledger
}

// newSession creates a pending session for a device
func newSession(deviceID string) *SpoofSession {
	return &SpoofSession{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		State:     StatePending,
		StartedAt: time.Now(),
	}
}

// OutcomeCounts tallies the per-property outcomes of a session
func (s *SpoofSession) OutcomeCounts() map[interfaces.PropertyOutcome]int {
	counts := make(map[interfaces.PropertyOutcome]int)
	for _, r := range s.Results {
		counts[r.Outcome]++
	}
	return counts
}

// HasPendingLedger reports whether original values still await restoration
func (s *SpoofSession) HasPendingLedger() bool {
	return s.Ledger != nil && s.Ledger.Len() > 0
}
