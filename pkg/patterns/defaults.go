/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: defaults.go
Description: Built-in manufacturer catalog and Android version map for the Akaylee
Spoofer. Used when no external pattern file is configured, or to fill sections a
partial pattern file omits.
*/

package patterns

// defaultManufacturers returns the built-in manufacturer catalog
func defaultManufacturers() map[string]ManufacturerPattern {
	return map[string]ManufacturerPattern{
		"samsung": {
			Brand:        "samsung",
			Manufacturer: "samsung",
			Models: []ModelTemplate{
				{Product: "dm3qxeea", Device: "dm3q", Model: "SM-S908B", Board: "dm3q", DisplayName: "Galaxy S22 Ultra", Hardware: "qcom"},
				{Product: "gts7xlwifi", Device: "gts7xlwifi", Model: "SM-T970", Board: "kona", DisplayName: "Galaxy Tab S7+ Wi-Fi", Hardware: "qcom"},
			},
			BuildIDPatterns: map[string][]string{
				"13": {"TP1A", "TQ1A"},
				"14": {"UP1A", "UQ1A"},
			},
			SerialPattern: "R{8}",
			SerialChars:   "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789",
		},
		"google": {
			Brand:        "google",
			Manufacturer: "Google",
			Models: []ModelTemplate{
				{Product: "husky", Device: "husky", Model: "Pixel 8 Pro", Board: "husky", DisplayName: "Pixel 8 Pro", Hardware: "husky"},
				{Product: "oriole", Device: "oriole", Model: "Pixel 6", Board: "slider", DisplayName: "Pixel 6", Hardware: "slider"},
			},
			BuildIDPatterns: map[string][]string{
				"13": {"TQ1A", "TQ2A"},
				"14": {"UQ1A", "UD1A"},
				"15": {"AP3A", "AP4A"},
			},
			SerialPattern: "{8}{8}",
			SerialChars:   "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789",
		},
		"xiaomi": {
			Brand:        "xiaomi",
			Manufacturer: "Xiaomi",
			Models: []ModelTemplate{
				{Product: "venus", Device: "venus", Model: "M2011K2G", Board: "kona", DisplayName: "Mi 11", Hardware: "qcom"},
				{Product: "marble", Device: "marble", Model: "2211133C", Board: "taro", DisplayName: "13 Pro", Hardware: "qcom"},
			},
			BuildIDPatterns: map[string][]string{
				"13": {"TQ1A", "TQ2A"},
				"14": {"UQ1A", "UD1A"},
			},
			SerialPattern: "{10}",
			SerialChars:   "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789",
		},
		"oneplus": {
			Brand:        "oneplus",
			Manufacturer: "OnePlus",
			Models: []ModelTemplate{
				{Product: "OnePlus11", Device: "OP5915L1", Model: "CPH2449", Board: "kalama", DisplayName: "OnePlus 11", Hardware: "qcom"},
				{Product: "OnePlus10Pro", Device: "OP515BL1", Model: "NE2213", Board: "lahaina", DisplayName: "OnePlus 10 Pro", Hardware: "qcom"},
			},
			BuildIDPatterns: map[string][]string{
				"13": {"TP1A", "TQ1A"},
				"14": {"UP1A", "UQ1A"},
			},
			SerialPattern: "{16}",
			SerialChars:   "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789",
		},
	}
}

// defaultAndroidVersions returns the built-in version/SDK map
func defaultAndroidVersions() map[string]VersionInfo {
	return map[string]VersionInfo{
		"11": {Release: "11", SDK: 30},
		"12": {Release: "12", SDK: 31},
		"13": {Release: "13", SDK: 33},
		"14": {Release: "14", SDK: 34},
		"15": {Release: "15", SDK: 35},
	}
}

// incrementalSuffixes carries manufacturer-specific incremental build
// number prefixes used during fingerprint synthesis
var incrementalSuffixes = map[string][]string{
	"samsung": {"N960FXXS", "G973FXXS", "S908BXXU"},
	"google":  {"factory-", "user-"},
	"xiaomi":  {"V", "MIUI"},
}

// IncrementalSuffixes returns the incremental prefixes for a manufacturer,
// or nil when the manufacturer has none
func IncrementalSuffixes(manufacturer string) []string {
	return incrementalSuffixes[manufacturer]
}
