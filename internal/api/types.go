// Package api defines the JSON wire types of the filesoldier HTTP API,
// shared by the server handlers and the Go client. Everything here is
// ciphertext or public bookkeeping; no field ever carries a key, a
// password, or anything derived from either.
package api

import (
	"time"

	"github.com/speakingcat21/filesoldier/internal/cryptox"
)

// Machine-readable error codes carried in ErrorResponse.Code.
const (
	CodeNotFound           = "not_found"
	CodeExpired            = "expired"
	CodeLimitReached       = "limit_reached"
	CodeRateLimited        = "rate_limited"
	CodeVerificationFailed = "verification_failed"
	CodeInvalidToken       = "invalid_token"
	CodeTokenExpired       = "token_expired"
	CodeTokenAlreadyUsed   = "token_already_used"
	CodeFileGone           = "file_gone"
	CodeInternal           = "internal"
)

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Error             string `json:"error"`
	Code              string `json:"code,omitempty"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds,omitempty"`
}

// CreateFileRequest registers a new encrypted file. EncMetadata is the
// base64(IV || ciphertext) metadata blob; FileIV is the IV of the payload
// envelope, stored so the ciphertext blob itself can stay headerless.
type CreateFileRequest struct {
	PublicLabel      string                    `json:"publicLabel"`
	OriginalName     string                    `json:"originalName,omitempty"`
	Size             int64                     `json:"size"`
	EncMetadata      string                    `json:"encMetadata"`
	FileIV           []byte                    `json:"fileIv"`
	Wrapping         *cryptox.PasswordWrapping `json:"wrapping,omitempty"`
	PasswordHint     string                    `json:"passwordHint,omitempty"`
	MaskFilename     bool                      `json:"maskFilename"`
	ExpiresInSeconds int64                     `json:"expiresInSeconds"`
	DownloadLimit    int                       `json:"downloadLimit"`
}

// CreateFileResponse returns the new file's id and a presigned URL the
// client PUTs the ciphertext to.
type CreateFileResponse struct {
	ID        string `json:"id"`
	UploadURL string `json:"uploadUrl"`
}

// FileRecordResponse is the public record of a file. The download
// counters here are informational; the authoritative check happens when a
// token is requested.
type FileRecordResponse struct {
	ID                   string                    `json:"id"`
	PublicLabel          string                    `json:"publicLabel"`
	OriginalName         string                    `json:"originalName,omitempty"`
	Size                 int64                     `json:"size"`
	EncMetadata          string                    `json:"encMetadata"`
	FileIV               []byte                    `json:"fileIv"`
	Wrapping             *cryptox.PasswordWrapping `json:"wrapping,omitempty"`
	PasswordHint         string                    `json:"passwordHint,omitempty"`
	ExpiresAt            time.Time                 `json:"expiresAt"`
	DownloadLimit        int                       `json:"downloadLimit"`
	DownloadCount        int                       `json:"downloadCount"`
	RequiresVerification bool                      `json:"requiresVerification"`
}

// TokenRequest asks for a single-use download token. Fingerprint is an
// opaque per-session value supplied for password-protected files so the
// server can rate-limit guessing before any ciphertext moves.
type TokenRequest struct {
	Fingerprint       string `json:"fingerprint,omitempty"`
	VerificationToken string `json:"verificationToken,omitempty"`
}

// TokenResponse grants one ciphertext fetch. Issuing it does not touch
// the download counter; only confirmation does.
type TokenResponse struct {
	Token         string `json:"token"`
	CiphertextURL string `json:"ciphertextUrl"`
	TTLSeconds    int64  `json:"ttlSeconds"`
}

// ConfirmRequest redeems a token after the client has decrypted and saved
// the file, committing the download-count increment.
type ConfirmRequest struct {
	Token string `json:"token"`
}

// ConfirmResponse reports the download count after a confirmed download.
type ConfirmResponse struct {
	DownloadCount int `json:"downloadCount"`
}
