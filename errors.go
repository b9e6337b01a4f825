package twofa

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineNotReady is returned when an Engine method is called before
	// Build wired the required collaborators.
	ErrEngineNotReady = errors.New("twofa engine not ready")
	// ErrProviderNotConfigured is returned when the tenant has not enabled the
	// requested provider type in its two-factor auth settings.
	ErrProviderNotConfigured = errors.New("provider is not configured")
	// ErrProviderNotSupported is returned for provider types the engine knows
	// about but does not implement (currently BACKUP_CODE).
	ErrProviderNotSupported = errors.New("provider type is not supported")
	// ErrIncorrectCode is returned when a submitted verification code does not
	// match the expected one. No state changes on this error.
	ErrIncorrectCode = errors.New("verification code is incorrect")
	// ErrNoPendingChallenge is returned when verification requires a pending
	// dispatched challenge and none exists, or it was already consumed.
	ErrNoPendingChallenge = errors.New("no pending verification challenge")
	// ErrChallengeExpired is returned when the pending challenge outlived its
	// configured TTL, even if the submitted code would have matched.
	ErrChallengeExpired = errors.New("verification challenge expired")
	// ErrChallengeAttemptsExceeded is returned once the bounded attempt budget
	// of a pending challenge is exhausted; the challenge is discarded.
	ErrChallengeAttemptsExceeded = errors.New("verification challenge attempts exceeded")
	// ErrAccountConfigNotFound must be returned by ConfigStore implementations
	// when no account config exists for the requested user and provider type.
	ErrAccountConfigNotFound = errors.New("account two-factor auth config not found")
	// ErrSettingsNotFound must be returned by ConfigStore implementations when
	// the tenant never stored two-factor auth settings. The Engine maps it to
	// an empty provider set.
	ErrSettingsNotFound = errors.New("two-factor auth settings not found")
	// ErrStoreUnavailable wraps backend failures of the persistence and
	// pending-challenge stores.
	ErrStoreUnavailable = errors.New("two-factor auth store unavailable")
	// ErrDeliveryFailed wraps failures of the injected CodeSender. Dispatch
	// failures are propagated, never masked as success.
	ErrDeliveryFailed = errors.New("verification code delivery failed")
	// ErrCodeSenderMissing is returned when a provider requires out-of-band
	// delivery but no CodeSender was registered for it.
	ErrCodeSenderMissing = errors.New("no code sender registered for provider")
)

// ValidationError reports a malformed provider or account configuration.
// Field names the offending field; Reason is the full human-readable message
// surfaced verbatim to the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
