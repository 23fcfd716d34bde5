// Package services contains the client-side protocol orchestration: the
// upload flow and the two-phase download state machine. All encryption
// happens here, before anything leaves the process; the server-facing
// Client interface only ever carries ciphertext and public bookkeeping.
package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/speakingcat21/filesoldier/internal/api"
	"github.com/speakingcat21/filesoldier/internal/client/client"
	"github.com/speakingcat21/filesoldier/internal/client/models"
	"github.com/speakingcat21/filesoldier/internal/cryptox"
	"github.com/speakingcat21/filesoldier/internal/logging"
)

// UploadRequest describes one file share.
type UploadRequest struct {
	Name        string
	ContentType string
	Data        []byte

	// Password enables the wrapped-key path. When set, the key is never
	// placed in the result's fragment; it travels only inside the
	// password wrapping.
	Password     []byte
	PasswordHint string

	// MaskFilename hides the real name from the server entirely; the
	// record then carries only the generated public label.
	MaskFilename bool

	ExpiresIn     time.Duration
	DownloadLimit int
}

// UploadResult is what the uploader needs to build a share link.
type UploadResult struct {
	FileID      string
	PublicLabel string

	// KeyFragment is the URL-fragment encoding of the key, empty for
	// password-protected uploads.
	KeyFragment string
}

type UploadService struct {
	client client.Client
	rand   io.Reader
	log    logging.Logger
}

// NewUploadService builds an UploadService. rand must be a
// cryptographically secure source (crypto/rand.Reader in production).
func NewUploadService(c client.Client, rand io.Reader, log logging.Logger) *UploadService {
	if log == nil {
		log = logging.NewNop()
	}
	return &UploadService{client: c, rand: rand, log: log}
}

// Upload runs the whole upload path: generate key, encrypt payload,
// encrypt metadata under the same key with an independent IV, generate a
// public label, optionally wrap the key with the password, register the
// record, and PUT the ciphertext.
func (s *UploadService) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	key, err := cryptox.GenerateKey(s.rand)
	if err != nil {
		return nil, err
	}
	defer cryptox.WipeBytes(key)

	env, err := cryptox.EncryptPayload(s.rand, key, req.Data)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}

	meta := models.Metadata{Name: req.Name, Type: req.ContentType, Size: int64(len(req.Data))}
	encMeta, err := cryptox.EncryptMetadata(s.rand, key, meta)
	if err != nil {
		return nil, fmt.Errorf("encrypt metadata: %w", err)
	}

	label, err := cryptox.GeneratePublicLabel(s.rand)
	if err != nil {
		return nil, err
	}

	var wrapping *cryptox.PasswordWrapping
	if len(req.Password) > 0 {
		wrapping, err = cryptox.WrapKey(s.rand, key, req.Password)
		if err != nil {
			return nil, fmt.Errorf("wrap key: %w", err)
		}
	}

	originalName := ""
	if !req.MaskFilename {
		originalName = req.Name
	}

	create := &api.CreateFileRequest{
		PublicLabel:      label,
		OriginalName:     originalName,
		Size:             int64(len(req.Data)),
		EncMetadata:      encMeta,
		FileIV:           env.IV,
		Wrapping:         wrapping,
		PasswordHint:     req.PasswordHint,
		MaskFilename:     req.MaskFilename,
		ExpiresInSeconds: int64(req.ExpiresIn / time.Second),
		DownloadLimit:    req.DownloadLimit,
	}

	id, uploadURL, err := s.client.CreateFile(ctx, create)
	if err != nil {
		return nil, fmt.Errorf("create file record: %w", err)
	}

	if err := s.client.UploadBlob(ctx, uploadURL, env.Ciphertext); err != nil {
		return nil, fmt.Errorf("upload ciphertext: %w", err)
	}

	result := &UploadResult{FileID: id, PublicLabel: label}
	if wrapping == nil {
		fragment, err := cryptox.EncodeKeyTransport(key)
		if err != nil {
			return nil, err
		}
		result.KeyFragment = fragment
	}

	s.log.Info(ctx, "file uploaded", "file_id", id, "size", len(req.Data), "password_protected", wrapping != nil)
	return result, nil
}
