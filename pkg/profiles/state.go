/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: state.go
Description: User profile lifecycle states for the Akaylee Spoofer. Defines the state
machine governing profile creation, switching, and teardown, with explicit transition
validation so partial failures leave an inspectable state instead of a corrupt one.
*/

package profiles

import (
	"fmt"
	"time"

	"github.com/kleascm/akaylee-spoofer/pkg/fingerprint"
)

// State is a profile's position in its lifecycle
type State string

const (
	StateAbsent        State = "absent"
	StateCreating      State = "creating"
	StateActive        State = "active"
	StateSwitchPending State = "switch_pending"
	StateCleaning      State = "cleaning"
	StateDeleted       State = "deleted"
	// StateFailed is terminal; the partial state is left intact for
	// manual inspection and is never auto-retried past the budget
	StateFailed State = "failed"
)

// validTransitions encodes the lifecycle:
// Absent -> Creating -> Active -> (SwitchPending -> Active)* -> Cleaning -> Deleted,
// with Creating and SwitchPending able to fail
var validTransitions = map[State][]State{
	StateAbsent:        {StateCreating},
	StateCreating:      {StateActive, StateSwitchPending, StateFailed},
	StateSwitchPending: {StateActive, StateFailed},
	StateActive:        {StateSwitchPending, StateCleaning},
	StateFailed:        {StateCleaning},
	StateCleaning:      {StateDeleted, StateFailed},
}

// Record tracks one managed user profile on a device
type Record struct {
	DeviceID    string               `json:"device_id"`             // ADB serial
	UserID      int                  `json:"user_id"`               // Platform-assigned profile identifier
	Label       string               `json:"label"`                 // Custom or timestamp-derived name
	Ephemeral   bool                 `json:"ephemeral"`             // Auto-removed on reboot
	CreatedAt   time.Time            `json:"created_at"`            // Creation timestamp
	State       State                `json:"state"`                 // Lifecycle state
	Fingerprint *fingerprint.Profile `json:"fingerprint,omitempty"` // Associated identity, nil when unspoofed
}

// transition moves the record to a new state, rejecting moves the
// lifecycle does not allow
func (r *Record) transition(to State) error {
	for _, allowed := range validTransitions[r.State] {
		if allowed == to {
			r.State = to
			return nil
		}
	}
	return fmt.Errorf("invalid profile transition %s -> %s for user %d on %s", r.State, to, r.UserID, r.DeviceID)
}

// UserInfo is one entry parsed from `pm list users`
type UserInfo struct {
	ID      int    `json:"id"`      // Platform user id
	Name    string `json:"name"`    // User display name
	Flags   string `json:"flags"`   // Raw flags field
	Running bool   `json:"running"` // Whether the user is currently running
}
