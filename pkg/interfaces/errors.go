/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: errors.go
Description: Typed error kinds for the Akaylee Spoofer. Fingerprint generation failures
carry the unmet constraint so callers can retry with looser targets; profile creation
failures carry the attempt count and last platform output.
*/

package interfaces

import "fmt"

// NotFoundError reports a constraint naming a manufacturer or model that
// does not exist in the pattern store. Fatal to that generation call only.
type NotFoundError struct {
	Kind string // "manufacturer" or "model"
	Name string // The requested name
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// UnsupportedVersionError reports that a manufacturer pattern has no
// build-ID entry for the requested Android version. Falling back to the
// nearest version silently would produce implausible fingerprints, so
// this is surfaced to the caller instead.
type UnsupportedVersionError struct {
	Manufacturer string
	Version      string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("manufacturer %s has no build pattern for Android %s", e.Manufacturer, e.Version)
}

// ProfileCreateError reports that profile creation exhausted its retry
// budget or was rejected before the platform command was attempted.
type ProfileCreateError struct {
	DeviceID string
	Reason   string
	Attempts int
}

func (e *ProfileCreateError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("profile creation failed on %s after %d attempt(s): %s", e.DeviceID, e.Attempts, e.Reason)
	}
	return fmt.Sprintf("profile creation failed on %s: %s", e.DeviceID, e.Reason)
}
