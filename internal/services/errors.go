// Package services implements the business logic: token lifecycle, review
// synchronization, derived-analysis caching, and outreach scheduling.
// This file centralizes common service-level error values so that they can
// be consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed
// at the handler layer.
package services

import "errors"

var (
	// ErrAuthentication indicates an inline bearer credential could not be
	// resolved to an owner identity via introspection.
	ErrAuthentication = errors.New("credential does not resolve to an identity")

	// ErrNotConnected indicates the owner has no stored credential, or the
	// stored one has been soft-revoked.
	ErrNotConnected = errors.New("owner is not connected")

	// ErrCredentialExchange indicates the provider rejected the stored
	// refresh credential. The wrapped error carries the provider response.
	ErrCredentialExchange = errors.New("credential exchange rejected")

	// ErrInvalidJobState indicates a job carries no usable sync target.
	ErrInvalidJobState = errors.New("job has no usable sync target")

	// ErrJobNotFound indicates the requested job does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoLocations indicates the connected account exposes no business
	// locations to sync.
	ErrNoLocations = errors.New("no business locations found")

	// ErrUnresolvedReviewLink indicates no path to a review-submission URL:
	// no stored URL, no place id, and no business name to look one up with.
	ErrUnresolvedReviewLink = errors.New("review link cannot be resolved")

	// ErrRequestNotFound indicates the review request does not exist.
	ErrRequestNotFound = errors.New("review request not found")

	// ErrReviewNotFound indicates the review does not exist.
	ErrReviewNotFound = errors.New("review not found")

	// ErrInvalidPhone is returned when a phone number is not in E.164 form.
	ErrInvalidPhone = errors.New("phone number must be E.164 (+15551234567)")
)
