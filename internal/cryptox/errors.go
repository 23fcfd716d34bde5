package cryptox

import "errors"

var (
	// ErrAuthenticationFailed is returned when an AEAD tag does not verify:
	// wrong key, corrupted ciphertext, or tampering. The three causes are
	// deliberately not distinguished.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrMalformedMetadata is returned when a metadata blob decrypts
	// correctly but does not contain valid JSON, or is too short to carry
	// an IV prefix at all.
	ErrMalformedMetadata = errors.New("malformed metadata")

	// ErrInvalidKeyEncoding is returned when a transport string cannot be
	// decoded back into a key. It indicates a broken link, not wrong
	// credentials, and must never be conflated with ErrAuthenticationFailed.
	ErrInvalidKeyEncoding = errors.New("invalid key encoding")

	// ErrIncorrectPassword is returned when unwrapping a password-wrapped
	// key fails. A single undifferentiated error by design: the caller
	// learns nothing about whether the password, salt or record was wrong.
	ErrIncorrectPassword = errors.New("incorrect password")
)
