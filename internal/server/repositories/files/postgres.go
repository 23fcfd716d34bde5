package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/speakingcat21/filesoldier/internal/common"
	"github.com/speakingcat21/filesoldier/internal/cryptox"
	"github.com/speakingcat21/filesoldier/internal/dbx"
	"github.com/speakingcat21/filesoldier/internal/server/models"
)

// PostgresRepository implements file record storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new file record. Wrapping columns stay NULL for
// fragment-only links.
func (r *PostgresRepository) Create(ctx context.Context, record *models.FileRecord) error {
	query := `
		INSERT INTO files (id, public_label, original_name, size, enc_metadata, file_iv, storage_key,
			wrap_salt, wrap_iv, wrapped_key, wrap_iterations, wrap_version,
			password_hint, mask_filename, expires_at, download_limit, download_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 0)
	`

	var wrapSalt, wrapIV, wrappedKey []byte
	var wrapIterations, wrapVersion sql.NullInt64
	if record.Wrapping != nil {
		wrapSalt = record.Wrapping.Salt
		wrapIV = record.Wrapping.IV
		wrappedKey = record.Wrapping.WrappedKey
		wrapIterations = sql.NullInt64{Int64: int64(record.Wrapping.Iterations), Valid: true}
		wrapVersion = sql.NullInt64{Int64: int64(record.Wrapping.Version), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.PublicLabel, record.OriginalName, record.Size, record.EncMetadata,
		record.FileIV, record.StorageKey,
		wrapSalt, wrapIV, wrappedKey, wrapIterations, wrapVersion,
		record.PasswordHint, record.MaskFilename, record.ExpiresAt, record.DownloadLimit)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID loads one record, reassembling the wrapping from its columns.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.FileRecord, error) {
	query := `
		SELECT id, public_label, original_name, size, enc_metadata, file_iv, storage_key,
			wrap_salt, wrap_iv, wrapped_key, wrap_iterations, wrap_version,
			password_hint, mask_filename, expires_at, download_limit, download_count, created_at
		FROM files WHERE id = $1
	`

	record := &models.FileRecord{}
	var wrapSalt, wrapIV, wrappedKey []byte
	var wrapIterations, wrapVersion sql.NullInt64

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID, &record.PublicLabel, &record.OriginalName, &record.Size, &record.EncMetadata,
		&record.FileIV, &record.StorageKey,
		&wrapSalt, &wrapIV, &wrappedKey, &wrapIterations, &wrapVersion,
		&record.PasswordHint, &record.MaskFilename, &record.ExpiresAt, &record.DownloadLimit,
		&record.DownloadCount, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}

	if len(wrappedKey) > 0 {
		record.Wrapping = &cryptox.PasswordWrapping{
			Salt:       wrapSalt,
			IV:         wrapIV,
			WrappedKey: wrappedKey,
			Iterations: int(wrapIterations.Int64),
			Version:    int(wrapVersion.Int64),
		}
	}
	return record, nil
}

// IncrementDownloadCount bumps the counter without ever passing the
// limit; the guard lives in the statement itself so two concurrent
// confirmations cannot both squeeze through.
func (r *PostgresRepository) IncrementDownloadCount(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE files SET download_count = download_count + 1
		WHERE id = $1 AND (download_limit = 0 OR download_count < download_limit)
		RETURNING download_count
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the record is gone or the limit is spent.
		if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, common.ErrorNotFound) {
			return 0, common.ErrorNotFound
		}
		return 0, common.ErrLimitReached
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment download count: %w", err)
	}
	return count, nil
}
