// Package models defines client-side views of the protocol's data: the
// decrypted metadata object, the public file record, and the download
// token grant.
package models

import (
	"time"

	"github.com/speakingcat21/filesoldier/internal/cryptox"
)

// Metadata is the secret per-file metadata. It travels only as an
// encrypted blob; the server never sees these fields.
type Metadata struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size,omitempty"`
}

// FileRecord is the public record fetched before any decryption starts.
// Counters here are informational only; the server re-checks them
// authoritatively when a token is requested.
type FileRecord struct {
	ID                   string
	PublicLabel          string
	OriginalName         string
	Size                 int64
	EncMetadata          string
	FileIV               []byte
	Wrapping             *cryptox.PasswordWrapping
	PasswordHint         string
	ExpiresAt            time.Time
	DownloadLimit        int
	DownloadCount        int
	RequiresVerification bool
}

// PasswordProtected reports whether the key must be recovered via
// password unwrap rather than from the URL fragment.
func (r *FileRecord) PasswordProtected() bool {
	return r.Wrapping != nil
}

// Exhausted reports whether the record looks spent as of now: past its
// expiry or at its download limit. A limit of zero means unlimited.
func (r *FileRecord) Exhausted(now time.Time) bool {
	if !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt) {
		return true
	}
	if r.DownloadLimit > 0 && r.DownloadCount >= r.DownloadLimit {
		return true
	}
	return false
}

// TokenGrant is a single-use, time-boxed authorization for one
// ciphertext fetch.
type TokenGrant struct {
	Token         string
	CiphertextURL string
	TTL           time.Duration
}
