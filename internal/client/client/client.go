// Package client defines the interface through which the protocol
// orchestration talks to the server and to blob storage, plus the HTTP
// implementation of that interface. The orchestration in
// internal/client/services depends only on the interface, so tests run
// against in-memory fakes.
package client

import (
	"context"

	"github.com/speakingcat21/filesoldier/internal/api"
	"github.com/speakingcat21/filesoldier/internal/client/models"
)

type Client interface {
	Close() error

	// CreateFile registers an encrypted file and returns its id plus a
	// presigned URL for the ciphertext upload.
	CreateFile(ctx context.Context, req *api.CreateFileRequest) (id string, uploadURL string, err error)

	// UploadBlob PUTs ciphertext to a presigned URL.
	UploadBlob(ctx context.Context, url string, data []byte) error

	// GetFileRecord fetches the public record for a file.
	// Returns ErrNotFound when no such file exists.
	GetFileRecord(ctx context.Context, id string) (*models.FileRecord, error)

	// RequestDownloadToken asks for a single-use download token. Failure
	// modes: a *RateLimitError (wrapping ErrRateLimited), ErrExpired,
	// ErrLimitReached, ErrVerificationFailed, ErrNotFound.
	RequestDownloadToken(ctx context.Context, id string, req *api.TokenRequest) (*models.TokenGrant, error)

	// FetchBlob GETs ciphertext bytes from a presigned URL.
	FetchBlob(ctx context.Context, url string) ([]byte, error)

	// ConfirmDownload redeems a token, committing the download-count
	// increment. Failure modes: ErrInvalidToken, ErrTokenExpired,
	// ErrTokenAlreadyUsed, ErrFileGone, ErrLimitReached.
	ConfirmDownload(ctx context.Context, token string) error
}
