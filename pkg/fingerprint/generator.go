/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: generator.go
Description: Fingerprint generator for the Akaylee Spoofer. Produces complete,
internally-consistent device identities from the manufacturer pattern store: build
fingerprint strings in the platform's canonical grammar, serial numbers from
manufacturer templates, and the ordered property map to apply. Generation is
deterministic for a fixed seed and fixed constraints.
*/

package fingerprint

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/kleascm/akaylee-spoofer/pkg/interfaces"
	"github.com/kleascm/akaylee-spoofer/pkg/patterns"
)

// Constraints narrow what the generator may pick. Zero-ish values
// ("any", "random") leave the choice to the randomness source.
type Constraints struct {
	Manufacturer   string `json:"manufacturer"`    // Explicit manufacturer key or "any"
	Model          string `json:"model"`           // Display name / model string or "random"
	AndroidVersion string `json:"android_version"` // Version key or "any"
	ExtendedProps  bool   `json:"extended_props"`  // Include extended anti-tracking keys
}

// Property is one ordered key/value pair of a fingerprint's property map
type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Profile is a fully-resolved device identity. Never mutated after
// creation; callers that need a different identity regenerate.
type Profile struct {
	Manufacturer     string                 `json:"manufacturer"`      // Catalog key
	Brand            string                 `json:"brand"`             // ro.product.brand
	ManufacturerName string                 `json:"manufacturer_name"` // ro.product.manufacturer
	Model            patterns.ModelTemplate `json:"model"`             // Selected model template
	AndroidVersion   string                 `json:"android_version"`   // Version key
	Release          string                 `json:"release"`           // ro.build.version.release
	SDK              int                    `json:"sdk"`               // ro.build.version.sdk
	BuildID          string                 `json:"build_id"`          // Synthesized build ID
	Incremental      string                 `json:"incremental"`       // Synthesized incremental
	BuildFingerprint string                 `json:"build_fingerprint"` // Canonical fingerprint string
	Serial           string                 `json:"serial"`            // Synthesized serial number
	GeneratedAt      time.Time              `json:"generated_at"`      // Creation timestamp

	props []Property // Ordered property map to apply
}

// Properties returns the ordered property-key -> target-value mapping
func (p *Profile) Properties() []Property {
	out := make([]Property, len(p.props))
	copy(out, p.props)
	return out
}

// Generator produces fingerprint profiles from a pattern store and a
// randomness source
type Generator struct {
	store *patterns.Store
	rng   *rand.Rand
}

// NewGenerator creates a generator. A zero seed derives one from the
// clock; tests pass a fixed seed for reproducibility.
func NewGenerator(store *patterns.Store, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		store: store,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Generate resolves the constraints into a complete Profile.
// Returns NotFoundError when an explicit manufacturer or model is absent
// from the store, and UnsupportedVersionError when the chosen
// manufacturer has no build pattern for the requested Android version.
func (g *Generator) Generate(c Constraints) (*Profile, error) {
	pattern, err := g.selectManufacturer(c.Manufacturer)
	if err != nil {
		return nil, err
	}

	model, err := g.selectModel(pattern, c.Model)
	if err != nil {
		return nil, err
	}

	versionKey, info, err := g.selectVersion(pattern, c.AndroidVersion)
	if err != nil {
		return nil, err
	}

	buildID := g.generateBuildID(pattern, versionKey)
	incremental := g.generateIncremental(pattern.Name, buildID)
	serial := g.generateSerial(pattern)

	fingerprint := fmt.Sprintf("%s/%s/%s:%s/%s/%s:user/release-keys",
		pattern.Brand, model.Product, model.Device, info.Release, buildID, incremental)

	profile := &Profile{
		Manufacturer:     pattern.Name,
		Brand:            pattern.Brand,
		ManufacturerName: pattern.Manufacturer,
		Model:            model,
		AndroidVersion:   versionKey,
		Release:          info.Release,
		SDK:              info.SDK,
		BuildID:          buildID,
		Incremental:      incremental,
		BuildFingerprint: fingerprint,
		Serial:           serial,
		GeneratedAt:      time.Now(),
	}
	profile.props = buildPropertyMap(profile, c.ExtendedProps)

	return profile, nil
}

// selectManufacturer picks a pattern uniformly among those matching the
// constraint, or the explicit one
func (g *Generator) selectManufacturer(target string) (patterns.ManufacturerPattern, error) {
	if target != "" && target != "any" {
		m, ok := g.store.Get(strings.ToLower(target))
		if !ok {
			return patterns.ManufacturerPattern{}, &interfaces.NotFoundError{Kind: "manufacturer", Name: target}
		}
		return m, nil
	}

	names := g.store.Manufacturers()
	m, _ := g.store.Get(names[g.rng.Intn(len(names))])
	return m, nil
}

// selectModel picks a model template at random, or the explicit one by
// display name or model string
func (g *Generator) selectModel(pattern patterns.ManufacturerPattern, target string) (patterns.ModelTemplate, error) {
	if target != "" && target != "random" {
		for _, m := range pattern.Models {
			if m.DisplayName == target || m.Model == target {
				return m, nil
			}
		}
		return patterns.ModelTemplate{}, &interfaces.NotFoundError{Kind: "model", Name: target}
	}
	return pattern.Models[g.rng.Intn(len(pattern.Models))], nil
}

// selectVersion resolves the Android version constraint against the
// versions the manufacturer actually has build patterns for
func (g *Generator) selectVersion(pattern patterns.ManufacturerPattern, target string) (string, patterns.VersionInfo, error) {
	if target != "" && target != "any" {
		if len(pattern.BuildIDPatterns[target]) == 0 {
			return "", patterns.VersionInfo{}, &interfaces.UnsupportedVersionError{Manufacturer: pattern.Name, Version: target}
		}
		info, ok := g.store.VersionInfo(target)
		if !ok {
			return "", patterns.VersionInfo{}, &interfaces.UnsupportedVersionError{Manufacturer: pattern.Name, Version: target}
		}
		return target, info, nil
	}

	// "any": intersect the store's version map with the manufacturer's
	// build-ID coverage, keeping the store's sorted order for determinism.
	var candidates []string
	for _, key := range g.store.Versions() {
		if len(pattern.BuildIDPatterns[key]) > 0 {
			candidates = append(candidates, key)
		}
	}
	if len(candidates) == 0 {
		return "", patterns.VersionInfo{}, &interfaces.UnsupportedVersionError{Manufacturer: pattern.Name, Version: "any"}
	}
	key := candidates[g.rng.Intn(len(candidates))]
	info, _ := g.store.VersionInfo(key)
	return key, info, nil
}

// generateBuildID composes a build ID from a manufacturer prefix and a
// date-like suffix
func (g *Generator) generateBuildID(pattern patterns.ManufacturerPattern, versionKey string) string {
	prefixes := pattern.BuildIDPatterns[versionKey]
	prefix := prefixes[g.rng.Intn(len(prefixes))]

	year := 2022 + g.rng.Intn(3)
	month := 1 + g.rng.Intn(12)
	day := 1 + g.rng.Intn(28)
	buildNumber := 1 + g.rng.Intn(999)

	return fmt.Sprintf("%s.%04d%02d%02d.%03d", prefix, year, month, day, buildNumber)
}

// generateIncremental derives the incremental build number from the
// build ID, with a manufacturer-specific prefix when one is known
func (g *Generator) generateIncremental(manufacturer, buildID string) string {
	parts := strings.Split(buildID, ".")
	base := parts[len(parts)-1]

	suffixes := patterns.IncrementalSuffixes(manufacturer)
	if len(suffixes) > 0 {
		return suffixes[g.rng.Intn(len(suffixes))] + base
	}
	return base
}

// generateSerial instantiates the manufacturer's serial template,
// replacing each {N} placeholder with N random characters from the
// declared alphabet
func (g *Generator) generateSerial(pattern patterns.ManufacturerPattern) string {
	var out strings.Builder
	template := pattern.SerialPattern
	chars := pattern.SerialChars

	for i := 0; i < len(template); {
		if template[i] == '{' {
			end := strings.IndexByte(template[i:], '}')
			if end > 1 {
				var length int
				if _, err := fmt.Sscanf(template[i:i+end+1], "{%d}", &length); err == nil {
					for j := 0; j < length; j++ {
						out.WriteByte(chars[g.rng.Intn(len(chars))])
					}
					i += end + 1
					continue
				}
			}
		}
		out.WriteByte(template[i])
		i++
	}
	return out.String()
}
