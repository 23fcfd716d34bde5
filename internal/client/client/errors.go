package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/speakingcat21/filesoldier/internal/common"
)

// The lifecycle sentinels are the shared ones from internal/common, so
// errors.Is matches across the client and server layers. Only transport
// availability is specific to this package.
var (
	ErrUnavailable = errors.New("server unavailable")

	ErrNotFound           = common.ErrorNotFound
	ErrExpired            = common.ErrFileExpired
	ErrLimitReached       = common.ErrLimitReached
	ErrFileGone           = common.ErrFileGone
	ErrRateLimited        = common.ErrRateLimited
	ErrVerificationFailed = common.ErrVerificationFailed

	ErrInvalidToken     = common.ErrInvalidToken
	ErrTokenExpired     = common.ErrTokenExpired
	ErrTokenAlreadyUsed = common.ErrTokenAlreadyUsed
)

// RateLimitError carries the server's retry-after hint. errors.Is matches
// it against ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
