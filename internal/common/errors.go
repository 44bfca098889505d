// Package common defines shared constants and sentinel errors used across
// ClipSmart components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Entitlement gating: a paid-only action was attempted by a free user.
	// Callers turn this into an upgrade prompt, never a crash.
	ErrEntitlementRequired = errors.New("entitlement required")

	// Quota gating: the monthly free ceiling has been reached. Normal
	// rejection path, not a failure.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// Storage: both the propagating and the local tier failed.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Payment polling gave up before the purchase was confirmed.
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")
)
