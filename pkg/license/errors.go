package license

import "errors"

// Sentinel errors of this package; Verify returns the first four (Sign wraps
// its own failures). Handlers map these to the canonical taxonomy codes of
// SPEC_FULL.md §7 via errors.Is.
var (
	ErrMalformed        = errors.New("malformed license code")
	ErrInvalidSignature = errors.New("license signature verification failed")
	ErrExpired          = errors.New("license code has expired")
	ErrNotYetValid      = errors.New("license code is not yet valid")
	ErrNoActiveKey      = errors.New("no active signing key pair")
)
