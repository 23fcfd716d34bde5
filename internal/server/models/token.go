package models

import "time"

// DownloadToken tracks one issued single-use token. The JWT the client
// holds names this row by its jti; redeeming marks UsedAt so a second
// confirmation of the same token is rejected.
type DownloadToken struct {
	ID          string
	FileID      string
	Fingerprint string
	ExpiresAt   time.Time
	UsedAt      *time.Time
	CreatedAt   time.Time
}

// Expired reports whether the token's validity window has passed.
func (t *DownloadToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Used reports whether the token has already been redeemed.
func (t *DownloadToken) Used() bool {
	return t.UsedAt != nil
}
