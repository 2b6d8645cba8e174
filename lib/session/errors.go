package session

import (
	"regexp"

	"github.com/samber/oops"
)

var (
	// error for malformed or missing client identifiers
	ErrValidation = oops.Errorf("validation failed")

	// error for operations on a client with no session in memory or on disk
	ErrNotFound = oops.Errorf("client not found")

	// error for forwarded operations before the session reaches ready
	ErrNotReady = oops.Errorf("client not ready")

	// error for handshake starts beyond the configured rate
	ErrRateLimited = oops.Errorf("session start rate exceeded")
)

// MaxClientIDLength bounds identifier length; identifiers double as
// credential directory names.
const MaxClientIDLength = 64

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidateClientID rejects identifiers that are empty, overlong, or that
// could escape the credential store when used as a directory name.
func ValidateClientID(id string) error {
	if id == "" {
		return oops.Wrapf(ErrValidation, "clientId is required")
	}
	if len(id) > MaxClientIDLength {
		return oops.Wrapf(ErrValidation, "clientId exceeds %d bytes", MaxClientIDLength)
	}
	if !clientIDPattern.MatchString(id) {
		return oops.Wrapf(ErrValidation, "clientId may only contain letters, digits, '-' and '_', and must not start with a separator")
	}
	return nil
}
