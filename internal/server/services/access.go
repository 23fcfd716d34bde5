package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/speakingcat21/filesoldier/internal/api"
	"github.com/speakingcat21/filesoldier/internal/common"
	"github.com/speakingcat21/filesoldier/internal/dbx"
	"github.com/speakingcat21/filesoldier/internal/logging"
	"github.com/speakingcat21/filesoldier/internal/server/auth"
	"github.com/speakingcat21/filesoldier/internal/server/models"
	"github.com/speakingcat21/filesoldier/internal/server/ratelimit"
	"github.com/speakingcat21/filesoldier/internal/server/repositories/repomanager"
	"github.com/speakingcat21/filesoldier/internal/server/verification"

	sc "github.com/speakingcat21/filesoldier/internal/server/config"
)

// RateLimitedError carries the window reset delay alongside the
// common.ErrRateLimited sentinel.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == common.ErrRateLimited
}

// TokenGrant is what a successful token request yields: a signed token,
// a presigned URL for the ciphertext, and the token's lifetime.
type TokenGrant struct {
	Token         string
	CiphertextURL string
	TTL           time.Duration
}

// AccessService implements the two-phase download flow. Issuing a token
// performs every authoritative check but never touches the download
// counter; only confirming a token does, inside one transaction with the
// single-use redeem.
type AccessService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	files       *FileService
	limiter     *ratelimit.Limiter
	verifier    verification.Verifier
	log         logging.Logger
	now         func() time.Time
}

func NewAccessService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config,
	files *FileService, limiter *ratelimit.Limiter, verifier verification.Verifier, log logging.Logger) *AccessService {
	return &AccessService{
		db:          db,
		repomanager: repomanager,
		config:      config,
		files:       files,
		limiter:     limiter,
		verifier:    verifier,
		log:         log,
		now:         time.Now,
	}
}

// VerificationRequired reports whether token requests must carry a
// verification token. Disabled when no endpoint is configured.
func (s *AccessService) VerificationRequired() bool {
	return s.config.VerificationEndpoint != ""
}

// RequestToken runs the authoritative pre-download checks for fileID and,
// if they pass, records a single-use token row and returns a signed grant.
// The file's download counter is not incremented here.
func (s *AccessService) RequestToken(ctx context.Context, fileID string, req *api.TokenRequest) (*TokenGrant, error) {
	key := fileID + "/" + req.Fingerprint
	if allowed, retryAfter := s.limiter.Allow(key); !allowed {
		s.log.Warn(ctx, "token request rate limited", "file_id", fileID)
		return nil, &RateLimitedError{RetryAfter: retryAfter}
	}

	if s.VerificationRequired() {
		if err := s.verifier.Verify(ctx, req.VerificationToken); err != nil {
			if errors.Is(err, common.ErrVerificationFailed) {
				return nil, err
			}
			s.log.Error(ctx, "verification service unavailable", "error", err)
			return nil, fmt.Errorf("verification check: %w", common.ErrorInternal)
		}
	}

	record, err := s.files.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if record.Expired(now) {
		return nil, common.ErrFileExpired
	}
	if record.LimitReached() {
		return nil, common.ErrLimitReached
	}

	tokenID, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, fmt.Errorf("error generating token id: %w", err)
	}

	token := &models.DownloadToken{
		ID:          tokenID,
		FileID:      record.ID,
		Fingerprint: req.Fingerprint,
		ExpiresAt:   now.Add(s.config.DownloadTokenValidity),
		CreatedAt:   now,
	}
	tokenRepo := s.repomanager.Tokens(s.db)
	if err := tokenRepo.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("error creating download token: %w", err)
	}

	signed, err := auth.GenerateDownloadToken(token.ID, record.ID, []byte(s.config.SecretKey), s.config.DownloadTokenValidity)
	if err != nil {
		return nil, fmt.Errorf("error signing download token: %w", err)
	}

	url, err := s.files.GetPresignedGetUrl(ctx, record.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("error presigning download: %w", err)
	}

	s.log.Info(ctx, "download token issued", "file_id", record.ID, "token_id", token.ID)

	return &TokenGrant{
		Token:         signed,
		CiphertextURL: url,
		TTL:           s.config.DownloadTokenValidity,
	}, nil
}

// Confirm redeems a download token after the client decrypted and saved
// the file, committing the download-count increment. Redeeming the token
// row and bumping the counter happen in one transaction, so a token is
// either fully spent or not at all.
func (s *AccessService) Confirm(ctx context.Context, tokenString string) (int, error) {
	tokenID, fileID, err := auth.ParseDownloadToken(tokenString, []byte(s.config.SecretKey))
	if err != nil {
		return 0, err
	}

	var newCount int
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		tokenRepo := s.repomanager.Tokens(tx)
		fileRepo := s.repomanager.Files(tx)

		token, err := tokenRepo.GetByID(ctx, tokenID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return err
		}
		if token.FileID != fileID {
			return common.ErrInvalidToken
		}
		if token.Expired(s.now()) {
			return common.ErrTokenExpired
		}

		if err := tokenRepo.MarkUsed(ctx, tokenID, s.now()); err != nil {
			return err
		}

		count, err := fileRepo.IncrementDownloadCount(ctx, fileID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrFileGone
			}
			return err
		}
		newCount = count
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info(ctx, "download confirmed", "file_id", fileID, "token_id", tokenID, "download_count", newCount)
	return newCount, nil
}
