package tokens

import (
	"context"
	"time"

	"github.com/speakingcat21/filesoldier/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, token *models.DownloadToken) error
	GetByID(ctx context.Context, id string) (*models.DownloadToken, error)

	// MarkUsed redeems the token exactly once. Returns
	// common.ErrTokenAlreadyUsed when it was redeemed before.
	MarkUsed(ctx context.Context, id string, when time.Time) error
}
