// Package errors provides custom error types for storefront and checkout operations.
package errors

import "errors"

var (
	// ErrStorefrontNotFound is returned when no storefront exists for a given id.
	ErrStorefrontNotFound = errors.New("storefront not found")

	// ErrCheckoutNotFound is returned when no checkout session exists for a given id.
	ErrCheckoutNotFound = errors.New("checkout session not found")

	// ErrValidation is returned when input to a lifecycle operation is invalid.
	ErrValidation = errors.New("validation failed")

	// ErrCorruptRecord is returned when a stored entry cannot be decoded into a
	// valid storefront record.
	ErrCorruptRecord = errors.New("corrupt storefront record")

	// ErrProviderUnavailable is returned when checkout starts without a ready
	// payment provider session.
	ErrProviderUnavailable = errors.New("payment provider is not available")

	// ErrSubmissionInFlight is returned when a payment submission is attempted
	// while another one is still pending on the same checkout session.
	ErrSubmissionInFlight = errors.New("payment submission already in flight")

	// ErrCheckoutClosed is returned when a payment is attempted on a sold-out
	// or otherwise terminal checkout session.
	ErrCheckoutClosed = errors.New("checkout is closed")
)
