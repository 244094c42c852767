/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: store.go
Description: Durable file-backed ledger store for the Akaylee Spoofer. Keeps one JSON
file per device under a state directory so property backups survive a process crash and
interrupted sessions can be restored on a later run. Writes go through a temp file and
rename so a crash mid-write never corrupts an existing ledger.
*/

package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const ledgerSuffix = ".ledger.json"

// FileStore persists ledgers as one JSON file per device identifier
type FileStore struct {
	dir string
}

// NewFileStore creates the state directory if needed and returns a store
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// path maps a device ID to its ledger file, sanitizing characters that
// are not filesystem safe (network serials contain ':')
func (s *FileStore) path(deviceID string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, deviceID)
	return filepath.Join(s.dir, sanitized+ledgerSuffix)
}

// Save persists the full entry list for a device
func (s *FileStore) Save(deviceID string, entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	target := s.path(deviceID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}
	return nil
}

// Load returns the persisted entries for a device. A missing file means
// no pending ledger and returns an empty list.
func (s *FileStore) Load(deviceID string) ([]Entry, error) {
	data, err := os.ReadFile(s.path(deviceID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse ledger file for %s: %w", deviceID, err)
	}
	return entries, nil
}

// Clear removes a device's ledger file. Clearing an already-cleared
// device is a no-op.
func (s *FileStore) Clear(deviceID string) error {
	err := os.Remove(s.path(deviceID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove ledger file: %w", err)
	}
	return nil
}

// Devices returns the adb serials with pending ledger files. Filenames
// carry the sanitized form, so the true serial is read from the entries
// themselves; network serials contain ':' and would not round-trip
// through the filename. An empty or unreadable entry list falls back to
// the filename form so the ledger still surfaces.
func (s *FileStore) Devices() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+ledgerSuffix))
	if err != nil {
		return nil, err
	}
	devices := make([]string, 0, len(matches))
	for _, m := range matches {
		id := strings.TrimSuffix(filepath.Base(m), ledgerSuffix)
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger file %s: %w", m, err)
		}
		var entries []Entry
		if err := json.Unmarshal(data, &entries); err == nil && len(entries) > 0 && entries[0].DeviceID != "" {
			id = entries[0].DeviceID
		}
		devices = append(devices, id)
	}
	return devices, nil
}
