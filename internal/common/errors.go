// Package common defines shared constants and sentinel errors used across
// client and server layers of filesoldier. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// File lifecycle errors. Expired and limit-reached are both terminal
	// for a link, but they carry different user-facing reasons.
	ErrFileExpired  = errors.New("file expired")
	ErrLimitReached = errors.New("download limit reached")
	ErrFileGone     = errors.New("file gone")

	// Access-token lifecycle errors.
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenAlreadyUsed = errors.New("token already used")

	// Rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// Human-verification challenge.
	ErrVerificationFailed = errors.New("verification failed")
)
