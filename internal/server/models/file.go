// Package models defines server-side data models persisted in the
// database. Everything here is either ciphertext or public bookkeeping;
// the server cannot decrypt any of it.
package models

import (
	"time"

	"github.com/speakingcat21/filesoldier/internal/cryptox"
)

// FileRecord is the stored description of one encrypted file. The
// ciphertext itself lives in object storage under StorageKey.
type FileRecord struct {
	// ID is the public identifier used in share links.
	ID string
	// PublicLabel is the generated display name; it has no relationship
	// to the real filename.
	PublicLabel string
	// OriginalName is the plaintext filename, present only when the
	// uploader chose not to mask it. Empty otherwise.
	OriginalName string
	// Size is the ciphertext size in bytes.
	Size int64

	// EncMetadata is the base64(IV || ciphertext) metadata blob.
	EncMetadata string
	// FileIV is the AEAD nonce of the payload envelope.
	FileIV []byte
	// StorageKey is the object-storage key of the ciphertext blob.
	StorageKey string

	// Wrapping is the password key-wrapping record, nil for
	// fragment-only links. Its iteration count is persisted verbatim.
	Wrapping *cryptox.PasswordWrapping
	// PasswordHint is an optional plaintext hint chosen by the uploader.
	PasswordHint string
	// MaskFilename records whether the uploader hid the real name.
	MaskFilename bool

	ExpiresAt     time.Time
	DownloadLimit int
	DownloadCount int
	CreatedAt     time.Time
}

// Expired reports whether the record is past its expiry as of now.
func (r *FileRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// LimitReached reports whether the download count has consumed the
// limit. A limit of zero means unlimited.
func (r *FileRecord) LimitReached() bool {
	return r.DownloadLimit > 0 && r.DownloadCount >= r.DownloadLimit
}
