package gitsync

import (
	"errors"
	"fmt"
)

// Sentinel errors for the public sync API. All errors returned from Run can
// be checked with errors.Is() for programmatic handling.

// ErrConfiguration is returned when a sync configuration is incomplete or
// inconsistent and the run was refused before touching the network.
var ErrConfiguration = errors.New("invalid configuration")

// ErrAuthFailed is returned when the remote rejected the supplied
// credentials. Authentication failures are never retried.
var ErrAuthFailed = errors.New("authentication failed")

// ErrFingerprintMismatch is returned when the remote's host key or TLS
// certificate does not match the configured fingerprint. The run aborts
// before any credential is sent, and it is never retried.
var ErrFingerprintMismatch = errors.New("remote identity fingerprint mismatch")

// ErrNetwork is returned when the remote could not be reached or the
// connection failed mid-transfer after the retry budget was exhausted.
var ErrNetwork = errors.New("network failure")

// ErrNonFastForward is returned when the remote branch kept moving during
// the run and rebuilding on its new head stayed behind within the retry
// budget.
var ErrNonFastForward = errors.New("remote branch moved")

// ErrSerialization is returned when exported content could not be rendered
// or redacted.
var ErrSerialization = errors.New("content serialization failed")

// ErrAlreadyRunning is returned when a sync for the same remote and branch
// is still in flight. Callers should treat it as "try again later".
var ErrAlreadyRunning = errors.New("sync already running for this remote and branch")

// WrapError wraps an error with additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf wraps an error with formatted additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
