/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: generator_test.go
Description: Tests for the fingerprint generator. Covers seeded determinism,
constraint resolution, typed errors for unknown manufacturers/models and
unsupported versions, the canonical fingerprint grammar, and property map
consistency.
*/

package fingerprint_test

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleascm/akaylee-spoofer/pkg/fingerprint"
	"github.com/kleascm/akaylee-spoofer/pkg/interfaces"
	"github.com/kleascm/akaylee-spoofer/pkg/patterns"
)

// fingerprintGrammar is the canonical build fingerprint shape:
// brand/product/device:release/buildID/incremental:user/release-keys
var fingerprintGrammar = regexp.MustCompile(`^[^/]+/[^/]+/[^:]+:[^/]+/[^/]+/[^:]+:user/release-keys$`)

// TestGenerateDeterministicWithSeed verifies two generators with the same
// seed produce identical profiles
func TestGenerateDeterministicWithSeed(t *testing.T) {
	store := patterns.DefaultStore()
	constraints := fingerprint.Constraints{Manufacturer: "any", Model: "random", AndroidVersion: "any"}

	a, err := fingerprint.NewGenerator(store, 42).Generate(constraints)
	require.NoError(t, err)
	b, err := fingerprint.NewGenerator(store, 42).Generate(constraints)
	require.NoError(t, err)

	assert.Equal(t, a.BuildFingerprint, b.BuildFingerprint)
	assert.Equal(t, a.Serial, b.Serial)
	assert.Equal(t, a.Properties(), b.Properties())
}

// TestGenerateDifferentSeedsDiffer is a sanity check that seeds matter
func TestGenerateDifferentSeedsDiffer(t *testing.T) {
	store := patterns.DefaultStore()
	constraints := fingerprint.Constraints{Manufacturer: "any", Model: "random", AndroidVersion: "any"}

	a, err := fingerprint.NewGenerator(store, 1).Generate(constraints)
	require.NoError(t, err)
	b, err := fingerprint.NewGenerator(store, 2).Generate(constraints)
	require.NoError(t, err)

	assert.NotEqual(t, a.Serial, b.Serial)
}

// TestGenerateCanonicalGrammar checks the fingerprint string shape and the
// internal consistency of its components
func TestGenerateCanonicalGrammar(t *testing.T) {
	store := patterns.DefaultStore()
	g := fingerprint.NewGenerator(store, 7)

	for i := 0; i < 20; i++ {
		p, err := g.Generate(fingerprint.Constraints{Manufacturer: "any", Model: "random", AndroidVersion: "any"})
		require.NoError(t, err)

		assert.Regexp(t, fingerprintGrammar, p.BuildFingerprint)
		expected := fmt.Sprintf("%s/%s/%s:%s/%s/%s:user/release-keys",
			p.Brand, p.Model.Product, p.Model.Device, p.Release, p.BuildID, p.Incremental)
		assert.Equal(t, expected, p.BuildFingerprint)
	}
}

// TestGenerateExplicitConstraints resolves a fully pinned identity
func TestGenerateExplicitConstraints(t *testing.T) {
	store := patterns.DefaultStore()
	g := fingerprint.NewGenerator(store, 99)

	p, err := g.Generate(fingerprint.Constraints{
		Manufacturer:   "samsung",
		Model:          "Galaxy S22 Ultra",
		AndroidVersion: "14",
	})
	require.NoError(t, err)

	assert.Equal(t, "samsung", p.Manufacturer)
	assert.Equal(t, "SM-S908B", p.Model.Model)
	assert.Equal(t, "14", p.AndroidVersion)
	assert.Equal(t, "14", p.Release)
	assert.Equal(t, 34, p.SDK)
	assert.Regexp(t, `^(UP1A|UQ1A)\.\d{8}\.\d{3}$`, p.BuildID)
	assert.Regexp(t, `^R[A-Z0-9]{8}$`, p.Serial)
}

// TestGenerateModelByModelString selects by the raw model string too
func TestGenerateModelByModelString(t *testing.T) {
	store := patterns.DefaultStore()
	g := fingerprint.NewGenerator(store, 5)

	p, err := g.Generate(fingerprint.Constraints{Manufacturer: "google", Model: "Pixel 6", AndroidVersion: "13"})
	require.NoError(t, err)
	assert.Equal(t, "oriole", p.Model.Product)
}

// TestGenerateUnknownManufacturer returns a typed not-found error
func TestGenerateUnknownManufacturer(t *testing.T) {
	g := fingerprint.NewGenerator(patterns.DefaultStore(), 1)

	_, err := g.Generate(fingerprint.Constraints{Manufacturer: "nokia"})
	require.Error(t, err)

	var notFound *interfaces.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "manufacturer", notFound.Kind)
	assert.Equal(t, "nokia", notFound.Name)
}

// TestGenerateUnknownModel returns a typed not-found error
func TestGenerateUnknownModel(t *testing.T) {
	g := fingerprint.NewGenerator(patterns.DefaultStore(), 1)

	_, err := g.Generate(fingerprint.Constraints{Manufacturer: "samsung", Model: "Galaxy Z Flip"})
	require.Error(t, err)

	var notFound *interfaces.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "model", notFound.Kind)
}

// TestGenerateUnsupportedVersion fails outright instead of silently
// falling back to another version
func TestGenerateUnsupportedVersion(t *testing.T) {
	g := fingerprint.NewGenerator(patterns.DefaultStore(), 1)

	// Samsung's catalog has no Android 15 build patterns
	_, err := g.Generate(fingerprint.Constraints{Manufacturer: "samsung", Model: "random", AndroidVersion: "15"})
	require.Error(t, err)

	var unsupported *interfaces.UnsupportedVersionError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "samsung", unsupported.Manufacturer)
	assert.Equal(t, "15", unsupported.Version)
}

// TestPropertyMapContents checks the core keys and their values
func TestPropertyMapContents(t *testing.T) {
	g := fingerprint.NewGenerator(patterns.DefaultStore(), 11)

	p, err := g.Generate(fingerprint.Constraints{Manufacturer: "google", Model: "Pixel 8 Pro", AndroidVersion: "15"})
	require.NoError(t, err)

	props := p.Properties()
	byKey := make(map[string]string, len(props))
	for _, prop := range props {
		byKey[prop.Key] = prop.Value
	}

	assert.Equal(t, "google", byKey["ro.product.brand"])
	assert.Equal(t, "Google", byKey["ro.product.manufacturer"])
	assert.Equal(t, "Pixel 8 Pro", byKey["ro.product.model"])
	assert.Equal(t, "husky", byKey["ro.product.device"])
	assert.Equal(t, p.BuildFingerprint, byKey["ro.build.fingerprint"])
	assert.Equal(t, p.BuildFingerprint, byKey["ro.vendor.build.fingerprint"])
	assert.Equal(t, p.BuildFingerprint, byKey["ro.system.build.fingerprint"])
	assert.Equal(t, p.BuildFingerprint, byKey["ro.odm.build.fingerprint"])
	assert.Equal(t, "35", byKey["ro.build.version.sdk"])
	assert.Equal(t, "user", byKey["ro.build.type"])
	assert.Equal(t, "release-keys", byKey["ro.build.tags"])
	assert.Equal(t, p.Serial, byKey["ro.serialno"])
	assert.Equal(t, p.Serial, byKey["ro.boot.serialno"])

	// Extended keys absent without the flag
	_, hasExtended := byKey["ro.config.locales"]
	assert.False(t, hasExtended)
}

// TestExtendedPropertiesSuperset verifies the extended set adds the
// anti-tracking keys on top of the core set
func TestExtendedPropertiesSuperset(t *testing.T) {
	g := fingerprint.NewGenerator(patterns.DefaultStore(), 11)

	base, err := g.Generate(fingerprint.Constraints{Manufacturer: "xiaomi", Model: "Mi 11", AndroidVersion: "13"})
	require.NoError(t, err)
	extended, err := g.Generate(fingerprint.Constraints{Manufacturer: "xiaomi", Model: "Mi 11", AndroidVersion: "13", ExtendedProps: true})
	require.NoError(t, err)

	assert.Greater(t, len(extended.Properties()), len(base.Properties()))

	byKey := make(map[string]string)
	for _, prop := range extended.Properties() {
		byKey[prop.Key] = prop.Value
	}
	assert.Equal(t, "en-US", byKey["ro.config.locales"])
	assert.Equal(t, extended.BuildID, byKey["ro.vendor.build.id"])
	assert.Equal(t, "venus", byKey["ro.build.product"])
}

// TestProfileImmutable ensures Properties returns a copy
func TestProfileImmutable(t *testing.T) {
	g := fingerprint.NewGenerator(patterns.DefaultStore(), 3)

	p, err := g.Generate(fingerprint.Constraints{Manufacturer: "any", Model: "random", AndroidVersion: "any"})
	require.NoError(t, err)

	props := p.Properties()
	props[0].Value = "tampered"
	assert.NotEqual(t, "tampered", p.Properties()[0].Value)
}
