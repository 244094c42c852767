/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: properties.go
Description: Property map assembly for generated fingerprints. Builds the ordered
key/value list covering the spoofable property superset, omitting keys the selected
model template does not address.
*/

package fingerprint

import (
	"fmt"
	"strconv"
)

// buildPropertyMap assembles the ordered property mapping for a resolved
// profile. Order is fixed so that repeated generations with the same seed
// produce byte-identical apply plans.
func buildPropertyMap(p *Profile, extended bool) []Property {
	props := []Property{
		{"ro.product.brand", p.Brand},
		{"ro.product.manufacturer", p.ManufacturerName},
		{"ro.product.model", p.Model.Model},
		{"ro.product.name", p.Model.Product},
		{"ro.product.device", p.Model.Device},
	}

	if p.Model.Board != "" {
		props = append(props, Property{"ro.product.board", p.Model.Board})
	}
	if p.Model.Hardware != "" {
		props = append(props, Property{"ro.hardware", p.Model.Hardware})
	}

	description := fmt.Sprintf("%s-user %s %s %s release-keys",
		p.Model.Product, p.Release, p.BuildID, p.Incremental)

	props = append(props,
		Property{"ro.build.fingerprint", p.BuildFingerprint},
		Property{"ro.vendor.build.fingerprint", p.BuildFingerprint},
		Property{"ro.system.build.fingerprint", p.BuildFingerprint},
		Property{"ro.odm.build.fingerprint", p.BuildFingerprint},
		Property{"ro.build.id", p.BuildID},
		Property{"ro.build.display.id", fmt.Sprintf("%s.%s", p.BuildID, p.Incremental)},
		Property{"ro.build.version.incremental", p.Incremental},
		Property{"ro.build.version.release", p.Release},
		Property{"ro.build.version.sdk", strconv.Itoa(p.SDK)},
		Property{"ro.build.description", description},
		Property{"ro.build.type", "user"},
		Property{"ro.build.tags", "release-keys"},
		Property{"ro.serialno", p.Serial},
		Property{"ro.boot.serialno", p.Serial},
		Property{"ro.product.locale.language", "en"},
		Property{"ro.product.locale.region", "US"},
	)

	if extended {
		props = append(props, extendedProperties(p)...)
	}
	return props
}

// extendedProperties covers additional hardware, boot, and vendor keys
// commonly used for cross-profile correlation
func extendedProperties(p *Profile) []Property {
	var props []Property

	if p.Model.Board != "" {
		props = append(props,
			Property{"ro.board.platform", p.Model.Board},
			Property{"ro.build.board", p.Model.Board},
		)
	}
	if p.Model.Hardware != "" {
		props = append(props, Property{"ro.boot.hardware", p.Model.Hardware})
	}

	props = append(props,
		Property{"ro.build.flavor", fmt.Sprintf("%s-user", p.Model.Product)},
		Property{"ro.build.product", p.Model.Device},
		Property{"ro.build.brand", p.Brand},
		Property{"ro.build.device", p.Model.Device},
		Property{"ro.vendor.build.id", p.BuildID},
		Property{"ro.vendor.build.type", "user"},
		Property{"ro.config.locales", "en-US"},
	)
	return props
}
