package files

import (
	"context"

	"github.com/speakingcat21/filesoldier/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, record *models.FileRecord) error
	GetByID(ctx context.Context, id string) (*models.FileRecord, error)

	// IncrementDownloadCount atomically bumps the counter, refusing to
	// pass the download limit. Returns the new count, or
	// common.ErrLimitReached / common.ErrorNotFound.
	IncrementDownloadCount(ctx context.Context, id string) (int, error)
}
