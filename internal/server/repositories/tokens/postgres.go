package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/speakingcat21/filesoldier/internal/common"
	"github.com/speakingcat21/filesoldier/internal/dbx"
	"github.com/speakingcat21/filesoldier/internal/server/models"
)

// PostgresRepository implements download token storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.DownloadToken) error {
	query := `
		INSERT INTO download_tokens (id, file_id, fingerprint, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, token.ID, token.FileID, token.Fingerprint, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.DownloadToken, error) {
	query := `
		SELECT id, file_id, fingerprint, expires_at, used_at, created_at
		FROM download_tokens WHERE id = $1
	`

	token := &models.DownloadToken{}
	var usedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID, &token.FileID, &token.Fingerprint, &token.ExpiresAt, &usedAt, &token.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select token: %w", err)
	}

	if usedAt.Valid {
		token.UsedAt = &usedAt.Time
	}
	return token, nil
}

// MarkUsed flips used_at once; the WHERE clause makes a second redeem of
// the same token fail regardless of interleaving.
func (r *PostgresRepository) MarkUsed(ctx context.Context, id string, when time.Time) error {
	query := `UPDATE download_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id, when)
	if err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrTokenAlreadyUsed
	}
	return nil
}
