package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/speakingcat21/filesoldier/internal/api"
	"github.com/speakingcat21/filesoldier/internal/client/models"
)

// HTTPClient implements Client against the filesoldier HTTP API.
// Presigned blob URLs are absolute and hit object storage directly, not
// the API server.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) CreateFile(ctx context.Context, req *api.CreateFileRequest) (string, string, error) {
	var resp api.CreateFileResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/files", req, &resp); err != nil {
		return "", "", err
	}
	return resp.ID, resp.UploadURL, nil
}

func (c *HTTPClient) GetFileRecord(ctx context.Context, id string) (*models.FileRecord, error) {
	var resp api.FileRecordResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/files/"+id, nil, &resp); err != nil {
		return nil, err
	}

	return &models.FileRecord{
		ID:                   resp.ID,
		PublicLabel:          resp.PublicLabel,
		OriginalName:         resp.OriginalName,
		Size:                 resp.Size,
		EncMetadata:          resp.EncMetadata,
		FileIV:               resp.FileIV,
		Wrapping:             resp.Wrapping,
		PasswordHint:         resp.PasswordHint,
		ExpiresAt:            resp.ExpiresAt,
		DownloadLimit:        resp.DownloadLimit,
		DownloadCount:        resp.DownloadCount,
		RequiresVerification: resp.RequiresVerification,
	}, nil
}

func (c *HTTPClient) RequestDownloadToken(ctx context.Context, id string, req *api.TokenRequest) (*models.TokenGrant, error) {
	var resp api.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/files/"+id+"/token", req, &resp); err != nil {
		return nil, err
	}

	return &models.TokenGrant{
		Token:         resp.Token,
		CiphertextURL: resp.CiphertextURL,
		TTL:           time.Duration(resp.TTLSeconds) * time.Second,
	}, nil
}

func (c *HTTPClient) ConfirmDownload(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/downloads/confirm", &api.ConfirmRequest{Token: token}, nil)
}

// UploadBlob PUTs ciphertext to a presigned URL.
func (c *HTTPClient) UploadBlob(ctx context.Context, url string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}

// FetchBlob GETs ciphertext bytes from a presigned URL.
func (c *HTTPClient) FetchBlob(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch failed: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// doJSON performs one API request. A nil body sends no payload; a nil out
// discards the response body. Non-2xx replies are turned into the typed
// errors of this package.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) apiError(resp *http.Response) error {
	var er api.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&er)

	switch er.Code {
	case api.CodeNotFound:
		return ErrNotFound
	case api.CodeExpired:
		return ErrExpired
	case api.CodeLimitReached:
		return ErrLimitReached
	case api.CodeFileGone:
		return ErrFileGone
	case api.CodeRateLimited:
		return &RateLimitError{RetryAfter: time.Duration(er.RetryAfterSeconds) * time.Second}
	case api.CodeVerificationFailed:
		return ErrVerificationFailed
	case api.CodeInvalidToken:
		return ErrInvalidToken
	case api.CodeTokenExpired:
		return ErrTokenExpired
	case api.CodeTokenAlreadyUsed:
		return ErrTokenAlreadyUsed
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: time.Duration(er.RetryAfterSeconds) * time.Second}
	}
	return fmt.Errorf("server error: %s (%s)", resp.Status, er.Error)
}
