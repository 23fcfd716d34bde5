package services

import (
	"context"
	"fmt"
	"time"

	"github.com/speakingcat21/filesoldier/internal/api"
	"github.com/speakingcat21/filesoldier/internal/client/client"
	"github.com/speakingcat21/filesoldier/internal/client/models"
)

// fakeClient is an in-memory stand-in for the server and blob storage.
// It mimics the two-phase contract: issuing tokens never touches the
// download counter, confirmation increments it exactly once per token.
type fakeClient struct {
	record *models.FileRecord
	blob   []byte

	created *api.CreateFileRequest

	issued       int
	lastTokenReq *api.TokenRequest
	usedTokens   map[string]bool

	tokenErr   error
	fetchErr   error
	confirmErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{usedTokens: map[string]bool{}}
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) CreateFile(ctx context.Context, req *api.CreateFileRequest) (string, string, error) {
	f.created = req
	f.record = &models.FileRecord{
		ID:            "f1",
		PublicLabel:   req.PublicLabel,
		OriginalName:  req.OriginalName,
		Size:          req.Size,
		EncMetadata:   req.EncMetadata,
		FileIV:        req.FileIV,
		Wrapping:      req.Wrapping,
		PasswordHint:  req.PasswordHint,
		ExpiresAt:     time.Now().Add(time.Duration(req.ExpiresInSeconds) * time.Second),
		DownloadLimit: req.DownloadLimit,
	}
	return "f1", "mem://blob/f1", nil
}

func (f *fakeClient) UploadBlob(ctx context.Context, url string, data []byte) error {
	f.blob = append([]byte(nil), data...)
	return nil
}

func (f *fakeClient) GetFileRecord(ctx context.Context, id string) (*models.FileRecord, error) {
	if f.record == nil || f.record.ID != id {
		return nil, client.ErrNotFound
	}
	cp := *f.record
	return &cp, nil
}

func (f *fakeClient) RequestDownloadToken(ctx context.Context, id string, req *api.TokenRequest) (*models.TokenGrant, error) {
	f.lastTokenReq = req
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	f.issued++
	return &models.TokenGrant{
		Token:         fmt.Sprintf("tok-%d", f.issued),
		CiphertextURL: "mem://blob/" + id,
		TTL:           time.Minute,
	}, nil
}

func (f *fakeClient) FetchBlob(ctx context.Context, url string) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]byte(nil), f.blob...), nil
}

func (f *fakeClient) ConfirmDownload(ctx context.Context, token string) error {
	if f.confirmErr != nil {
		return f.confirmErr
	}
	if f.usedTokens[token] {
		return client.ErrTokenAlreadyUsed
	}
	f.usedTokens[token] = true
	f.record.DownloadCount++
	return nil
}

var _ client.Client = (*fakeClient)(nil)
