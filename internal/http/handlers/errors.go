// Package handlers defines the HTTP-layer error codes used across all API
// endpoints. Codes are lowercase snake_case and stable; clients branch on
// them for programmatic error handling, supplementing the HTTP status.
package handlers

import "github.com/tbourn/go-review-backend/internal/http/middleware"

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = middleware.ErrCodeRateLimited
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeNotConnected     = "not_connected"
	ErrCodeTokenExchange    = "token_exchange_failed"
	ErrCodeSyncFailed       = "sync_failed"
	ErrCodeAnalysisFailed   = "analysis_failed"
	ErrCodeNoLocations      = "no_locations"
	ErrCodeInvalidPhone     = "invalid_phone"
	ErrCodeUnresolvedLink   = "review_link_unresolved"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
