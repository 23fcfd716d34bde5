// Package auth issues and validates download access tokens: short-lived
// HS256 JWTs naming the file and the single-use token row (jti). The JWT
// proves the token request passed the authoritative checks; the row keeps
// it single-use.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/speakingcat21/filesoldier/internal/common"
)

// Claims carried by a download token.
type Claims struct {
	jwt.RegisteredClaims
	FileID string `json:"file_id"`
}

// GenerateDownloadToken signs a token for one ciphertext fetch of fileID.
// tokenID becomes the jti and refers to the stored DownloadToken row.
func GenerateDownloadToken(tokenID, fileID string, secretKey []byte, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		FileID: fileID,
	})

	signed, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// ParseDownloadToken validates the signature and expiry and returns the
// token id (jti) and file id. Expiry maps to common.ErrTokenExpired,
// everything else to common.ErrInvalidToken.
func ParseDownloadToken(tokenString string, secretKey []byte) (tokenID, fileID string, err error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, common.ErrInvalidToken
		}
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", common.ErrTokenExpired
		}
		return "", "", common.ErrInvalidToken
	}

	if !token.Valid || claims.ID == "" || claims.FileID == "" {
		return "", "", common.ErrInvalidToken
	}
	return claims.ID, claims.FileID, nil
}
