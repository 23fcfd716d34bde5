// Package verification checks human-verification tokens submitted with
// download token requests against an external siteverify endpoint.
package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/speakingcat21/filesoldier/internal/common"
)

// Verifier validates a verification token presented by a client.
type Verifier interface {
	// Verify returns nil if the token passes, common.ErrVerificationFailed
	// if the service rejects it, and a wrapped error on transport failure.
	Verify(ctx context.Context, token string) error
}

// HTTPVerifier checks tokens against a siteverify-style endpoint that
// accepts a form POST and answers {"success": true|false}.
type HTTPVerifier struct {
	endpoint string
	secret   string
	client   *http.Client
}

// NewHTTPVerifier creates a verifier for the given endpoint and shared secret.
func NewHTTPVerifier(endpoint, secret string) *HTTPVerifier {
	return &HTTPVerifier{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type siteverifyResponse struct {
	Success bool `json:"success"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) error {
	if token == "" {
		return common.ErrVerificationFailed
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("verification request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("verification service status %d: %w", resp.StatusCode, common.ErrorInternal)
	}

	var result siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("verification response: %w", err)
	}
	if !result.Success {
		return common.ErrVerificationFailed
	}
	return nil
}

// NopVerifier accepts every token. Used when verification is disabled.
type NopVerifier struct{}

func (NopVerifier) Verify(ctx context.Context, token string) error {
	return nil
}
