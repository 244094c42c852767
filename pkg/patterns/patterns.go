/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: patterns.go
Description: Manufacturer pattern store for the Akaylee Spoofer. Loads and validates the
catalog of manufacturer, model, and build-pattern data used for fingerprint generation.
The store is immutable once loaded and safe for concurrent reads across device sessions.
*/

package patterns

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
)

// ModelTemplate describes one device model of a manufacturer
type ModelTemplate struct {
	Product     string `json:"product"`      // ro.product.name value
	Device      string `json:"device"`       // ro.product.device value
	Model       string `json:"model"`        // ro.product.model value (SM-S908B etc.)
	Board       string `json:"board"`        // ro.product.board value
	DisplayName string `json:"display_name"` // Human-readable marketing name
	Hardware    string `json:"hardware"`     // ro.hardware value
}

// ManufacturerPattern holds everything needed to synthesize a plausible
// identity for one manufacturer
type ManufacturerPattern struct {
	Name            string              `json:"name"`              // Catalog key (lowercase)
	Brand           string              `json:"brand"`             // ro.product.brand value
	Manufacturer    string              `json:"manufacturer"`      // ro.product.manufacturer value
	Models          []ModelTemplate     `json:"models"`            // Known model templates
	BuildIDPatterns map[string][]string `json:"build_id_patterns"` // Android version key -> build-ID prefixes
	SerialPattern   string              `json:"serial_pattern"`    // Template like "R{8}" or "{16}"
	SerialChars     string              `json:"serial_chars"`      // Alphabet for serial generation
}

// VersionInfo maps an Android version key to its release string and SDK level
type VersionInfo struct {
	Release string `json:"release"` // ro.build.version.release value
	SDK     int    `json:"sdk"`     // ro.build.version.sdk value
}

// catalog is the on-disk JSON shape of a pattern file
type catalog struct {
	Manufacturers   map[string]ManufacturerPattern `json:"manufacturers"`
	AndroidVersions map[string]VersionInfo         `json:"android_versions"`
}

// Store is the loaded, validated manufacturer catalog. Immutable after
// construction; shared read-only across all sessions.
type Store struct {
	manufacturers map[string]ManufacturerPattern
	versions      map[string]VersionInfo
	names         []string // Sorted manufacturer keys for stable iteration
}

// NewStore builds a Store from raw catalog data, validating it
func NewStore(manufacturers map[string]ManufacturerPattern, versions map[string]VersionInfo) (*Store, error) {
	if len(manufacturers) == 0 {
		return nil, fmt.Errorf("pattern catalog has no manufacturers")
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("pattern catalog has no android version map")
	}

	names := make([]string, 0, len(manufacturers))
	for key, m := range manufacturers {
		if err := validatePattern(key, m); err != nil {
			return nil, err
		}
		m.Name = key
		manufacturers[key] = m
		names = append(names, key)
	}
	sort.Strings(names)

	for key, v := range versions {
		if v.Release == "" || v.SDK <= 0 {
			return nil, fmt.Errorf("android version %q has invalid release/sdk mapping", key)
		}
	}

	return &Store{manufacturers: manufacturers, versions: versions, names: names}, nil
}

// validatePattern checks one manufacturer entry for completeness
func validatePattern(key string, m ManufacturerPattern) error {
	if m.Brand == "" || m.Manufacturer == "" {
		return fmt.Errorf("manufacturer %q is missing brand or manufacturer string", key)
	}
	if len(m.Models) == 0 {
		return fmt.Errorf("manufacturer %q has no model templates", key)
	}
	for _, model := range m.Models {
		if model.Model == "" || model.Product == "" || model.Device == "" {
			return fmt.Errorf("manufacturer %q has an incomplete model template (%+v)", key, model)
		}
	}
	if len(m.BuildIDPatterns) == 0 {
		return fmt.Errorf("manufacturer %q has no build-ID patterns", key)
	}
	if m.SerialPattern == "" {
		return fmt.Errorf("manufacturer %q has no serial pattern", key)
	}
	if m.SerialChars == "" {
		return fmt.Errorf("manufacturer %q has an empty serial alphabet", key)
	}
	return nil
}

// LoadFile reads a JSON pattern catalog from disk. Sections missing from
// the file are filled in from the built-in defaults, matching the
// behavior of a partially customized device_patterns.json.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file: %w", err)
	}

	var cat catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse pattern file %s: %w", path, err)
	}
	if len(cat.Manufacturers) == 0 {
		cat.Manufacturers = defaultManufacturers()
	}
	if len(cat.AndroidVersions) == 0 {
		cat.AndroidVersions = defaultAndroidVersions()
	}
	return NewStore(cat.Manufacturers, cat.AndroidVersions)
}

// DefaultStore returns the built-in catalog
func DefaultStore() *Store {
	store, err := NewStore(defaultManufacturers(), defaultAndroidVersions())
	if err != nil {
		// The built-in catalog is validated by tests; a failure here is a
		// programming error, not a runtime condition.
		panic(fmt.Sprintf("built-in pattern catalog invalid: %v", err))
	}
	return store
}

// Manufacturers returns the sorted manufacturer keys
func (s *Store) Manufacturers() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Get returns the pattern for a manufacturer key
func (s *Store) Get(name string) (ManufacturerPattern, bool) {
	m, ok := s.manufacturers[name]
	return m, ok
}

// Versions returns the sorted Android version keys
func (s *Store) Versions() []string {
	keys := make([]string, 0, len(s.versions))
	for k := range s.versions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	return keys
}

// VersionInfo returns the release/SDK mapping for a version key
func (s *Store) VersionInfo(key string) (VersionInfo, bool) {
	v, ok := s.versions[key]
	return v, ok
}
