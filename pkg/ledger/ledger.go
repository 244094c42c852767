/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: ledger.go
Description: Property backup ledger for the Akaylee Spoofer. Records the original value
of every property before it is mutated, with first-write-wins semantics per (device, key)
so the true original survives repeated spoof/restore cycles within one session. Entries
are persisted to durable storage on record, before the mutating command is issued.
*/

package ledger

import (
	"fmt"
	"sync"
	"time"
)

// Entry is one backed-up property value. WasUnset marks a property that
// did not exist on the device, which restoration must delete rather than
// set to an empty string.
type Entry struct {
	DeviceID      string    `json:"device_id"`      // ADB serial
	Key           string    `json:"key"`            // Property key
	OriginalValue string    `json:"original_value"` // Value before mutation
	WasUnset      bool      `json:"was_unset"`      // Property was absent on the device
	RecordedAt    time.Time `json:"recorded_at"`    // When the backup was taken
}

// Store is the durable backend for ledger entries, one record list per
// device, readable across process restarts
type Store interface {
	// Save persists the full entry list for a device
	Save(deviceID string, entries []Entry) error

	// Load returns the persisted entries for a device; a device with no
	// ledger returns an empty list, not an error
	Load(deviceID string) ([]Entry, error)

	// Clear discards the persisted ledger for a device
	Clear(deviceID string) error

	// Devices returns device IDs that have pending ledgers
	Devices() ([]string, error)
}

// Ledger is the per-device, per-session backup record. A second Record
// call for an already-backed-up key is a no-op.
type Ledger struct {
	deviceID string
	store    Store

	mu      sync.Mutex
	order   []string         // Keys in record order
	entries map[string]Entry // Keyed by property key
}

// NewLedger creates a session ledger for a device, backed by a store
func NewLedger(deviceID string, store Store) *Ledger {
	return &Ledger{
		deviceID: deviceID,
		store:    store,
		entries:  make(map[string]Entry),
	}
}

// Resume loads any persisted entries for the device into a fresh ledger,
// so an interrupted session's backups keep their first-write-wins
// protection when spoofing resumes
func Resume(deviceID string, store Store) (*Ledger, error) {
	l := NewLedger(deviceID, store)
	persisted, err := store.Load(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger for %s: %w", deviceID, err)
	}
	for _, e := range persisted {
		l.order = append(l.order, e.Key)
		l.entries[e.Key] = e
	}
	return l, nil
}

// Record backs up a property's original value. First write wins: if an
// entry already exists for the key, the call is a no-op and the original
// is preserved. The entry is persisted before Record returns, so the
// backup is durable before the caller issues the mutating command.
func (l *Ledger) Record(key, originalValue string, wasUnset bool) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.entries[key]; exists {
		return false, nil
	}

	l.entries[key] = Entry{
		DeviceID:      l.deviceID,
		Key:           key,
		OriginalValue: originalValue,
		WasUnset:      wasUnset,
		RecordedAt:    time.Now(),
	}
	l.order = append(l.order, key)

	if err := l.store.Save(l.deviceID, l.snapshotLocked()); err != nil {
		// Roll back the in-memory entry: a backup that is not durable
		// must not unblock the mutation.
		delete(l.entries, key)
		l.order = l.order[:len(l.order)-1]
		return false, fmt.Errorf("failed to persist backup for %s/%s: %w", l.deviceID, key, err)
	}
	return true, nil
}

// Has reports whether a key is already backed up
func (l *Ledger) Has(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[key]
	return ok
}

// Entries returns the backed-up entries in record order
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Len returns the number of backed-up keys
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Clear discards the ledger after a confirmed successful restoration
func (l *Ledger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Clear(l.deviceID); err != nil {
		return fmt.Errorf("failed to clear ledger for %s: %w", l.deviceID, err)
	}
	l.entries = make(map[string]Entry)
	l.order = nil
	return nil
}

// snapshotLocked copies the ordered entries; callers hold l.mu
func (l *Ledger) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(l.order))
	for _, key := range l.order {
		out = append(out, l.entries[key])
	}
	return out
}

// RestorePlan returns the persisted (key, original) pairs needed to fully
// revert a device. Restoration order does not matter since each key is
// independent; the record order is kept for readable reporting. A device
// with no ledger yields an empty plan, making repeated restoration a
// safe no-op.
func RestorePlan(store Store, deviceID string) ([]Entry, error) {
	entries, err := store.Load(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load restore plan for %s: %w", deviceID, err)
	}
	return entries, nil
}
