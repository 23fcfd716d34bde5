package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakingcat21/filesoldier/internal/api"
	"github.com/speakingcat21/filesoldier/internal/common"
	"github.com/speakingcat21/filesoldier/internal/dbx"
	"github.com/speakingcat21/filesoldier/internal/logging"
	"github.com/speakingcat21/filesoldier/internal/server/models"
	"github.com/speakingcat21/filesoldier/internal/server/ratelimit"
	"github.com/speakingcat21/filesoldier/internal/server/repositories/files"
	"github.com/speakingcat21/filesoldier/internal/server/repositories/repomanager"
	"github.com/speakingcat21/filesoldier/internal/server/repositories/tokens"
	"github.com/speakingcat21/filesoldier/internal/server/verification"

	sc "github.com/speakingcat21/filesoldier/internal/server/config"
)

// -------- test fakes --------

type fakeFilesRepo struct {
	files.Repository
	records map[string]*models.FileRecord
	getErr  error
	incErr  error
}

func newFakeFilesRepo() *fakeFilesRepo {
	return &fakeFilesRepo{records: make(map[string]*models.FileRecord)}
}

func (f *fakeFilesRepo) Create(ctx context.Context, record *models.FileRecord) error {
	f.records[record.ID] = record
	return nil
}

func (f *fakeFilesRepo) GetByID(ctx context.Context, id string) (*models.FileRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.records[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r, nil
}

func (f *fakeFilesRepo) IncrementDownloadCount(ctx context.Context, id string) (int, error) {
	if f.incErr != nil {
		return 0, f.incErr
	}
	r, ok := f.records[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	if r.DownloadLimit > 0 && r.DownloadCount >= r.DownloadLimit {
		return 0, common.ErrLimitReached
	}
	r.DownloadCount++
	return r.DownloadCount, nil
}

type fakeTokensRepo struct {
	tokens.Repository
	tokens    map[string]*models.DownloadToken
	createErr error
}

func newFakeTokensRepo() *fakeTokensRepo {
	return &fakeTokensRepo{tokens: make(map[string]*models.DownloadToken)}
}

func (f *fakeTokensRepo) Create(ctx context.Context, token *models.DownloadToken) error {
	if f.createErr != nil {
		return f.createErr
	}
	cp := *token
	f.tokens[token.ID] = &cp
	return nil
}

func (f *fakeTokensRepo) GetByID(ctx context.Context, id string) (*models.DownloadToken, error) {
	tok, ok := f.tokens[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return tok, nil
}

func (f *fakeTokensRepo) MarkUsed(ctx context.Context, id string, when time.Time) error {
	tok, ok := f.tokens[id]
	if !ok {
		return common.ErrorNotFound
	}
	if tok.UsedAt != nil {
		return common.ErrTokenAlreadyUsed
	}
	tok.UsedAt = &when
	return nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	f *fakeFilesRepo
	t *fakeTokensRepo
}

func (m *fakeRepoManager) Files(db dbx.DBTX) files.Repository   { return m.f }
func (m *fakeRepoManager) Tokens(db dbx.DBTX) tokens.Repository { return m.t }

type fakeVerifier struct {
	err   error
	calls int
}

func (v *fakeVerifier) Verify(ctx context.Context, token string) error {
	v.calls++
	return v.err
}

// -------- helpers --------

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

// stubPresign replaces the S3 seams with fixed URLs for the duration of
// the test.
func stubPresign(t *testing.T) {
	t.Helper()

	origLoad := loadDefaultAWSConfig
	origNewClient := newS3ClientFromConfig
	origNewPresign := newS3PresignClient
	origPut := presignPutObject
	origGet := presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewClient
		newS3PresignClient = origNewPresign
		presignPutObject = origPut
		presignGetObject = origGet
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return nil
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return nil
	}
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return &v4.PresignedHTTPRequest{URL: "http://storage.example/put/" + *in.Key}, nil
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return &v4.PresignedHTTPRequest{URL: "http://storage.example/get/" + *in.Key}, nil
	}
}

func testConfig() *sc.Config {
	return &sc.Config{
		SecretKey:             "test-secret",
		DownloadTokenValidity: 2 * time.Minute,
		RateLimitWindow:       time.Minute,
		RateLimitMax:          10,
		S3Region:              "us-east-1",
		S3RootUser:            "x",
		S3RootPassword:        "y",
		S3BaseEndpoint:        "http://127.0.0.1:9000",
		S3Bucket:              "bucket",
	}
}

type accessFixture struct {
	db     *sql.DB
	mock   sqlmock.Sqlmock
	files  *fakeFilesRepo
	tokens *fakeTokensRepo
	cfg    *sc.Config
	svc    *AccessService
}

func newAccessFixture(t *testing.T, verifier verification.Verifier) *accessFixture {
	t.Helper()
	stubPresign(t)

	db, mock := newSQLMockDB(t)
	t.Cleanup(func() { db.Close() })

	f := newFakeFilesRepo()
	tok := newFakeTokensRepo()
	m := &fakeRepoManager{f: f, t: tok}
	cfg := testConfig()
	if verifier == nil {
		verifier = verification.NopVerifier{}
	}

	fileSvc := NewFileService(db, m, cfg)
	limiter := ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow)
	svc := NewAccessService(db, m, cfg, fileSvc, limiter, verifier, logging.NewNop())

	return &accessFixture{db: db, mock: mock, files: f, tokens: tok, cfg: cfg, svc: svc}
}

func addFile(fx *accessFixture, id string, limit int) *models.FileRecord {
	r := &models.FileRecord{
		ID:            id,
		PublicLabel:   "file-abcd1234",
		StorageKey:    "files/2026/1/1/" + id,
		ExpiresAt:     time.Now().Add(time.Hour),
		DownloadLimit: limit,
	}
	fx.files.records[id] = r
	return r
}

// -------- tests --------

func TestRequestToken_Success(t *testing.T) {
	fx := newAccessFixture(t, nil)
	addFile(fx, "f1", 5)

	grant, err := fx.svc.RequestToken(context.Background(), "f1", &api.TokenRequest{Fingerprint: "fp"})
	require.NoError(t, err)

	assert.NotEmpty(t, grant.Token)
	assert.Equal(t, "http://storage.example/get/files/2026/1/1/f1", grant.CiphertextURL)
	assert.Equal(t, fx.cfg.DownloadTokenValidity, grant.TTL)

	// token row recorded, counter untouched
	assert.Len(t, fx.tokens.tokens, 1)
	assert.Equal(t, 0, fx.files.records["f1"].DownloadCount)
}

func TestRequestToken_FileNotFound(t *testing.T) {
	fx := newAccessFixture(t, nil)

	_, err := fx.svc.RequestToken(context.Background(), "nope", &api.TokenRequest{})
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRequestToken_Expired(t *testing.T) {
	fx := newAccessFixture(t, nil)
	r := addFile(fx, "f1", 0)
	r.ExpiresAt = time.Now().Add(-time.Minute)

	_, err := fx.svc.RequestToken(context.Background(), "f1", &api.TokenRequest{})
	require.ErrorIs(t, err, common.ErrFileExpired)
}

func TestRequestToken_LimitReached(t *testing.T) {
	fx := newAccessFixture(t, nil)
	r := addFile(fx, "f1", 3)
	r.DownloadCount = 3

	_, err := fx.svc.RequestToken(context.Background(), "f1", &api.TokenRequest{})
	require.ErrorIs(t, err, common.ErrLimitReached)
}

func TestRequestToken_RateLimited(t *testing.T) {
	fx := newAccessFixture(t, nil)
	addFile(fx, "f1", 0)
	fx.svc.limiter = ratelimit.New(2, time.Minute)

	req := &api.TokenRequest{Fingerprint: "fp"}
	for i := 0; i < 2; i++ {
		_, err := fx.svc.RequestToken(context.Background(), "f1", req)
		require.NoError(t, err)
	}

	_, err := fx.svc.RequestToken(context.Background(), "f1", req)
	require.ErrorIs(t, err, common.ErrRateLimited)

	var rlErr *RateLimitedError
	require.ErrorAs(t, err, &rlErr)
	assert.Greater(t, rlErr.RetryAfter, time.Duration(0))
}

func TestRequestToken_VerificationRejected(t *testing.T) {
	v := &fakeVerifier{err: common.ErrVerificationFailed}
	fx := newAccessFixture(t, v)
	fx.cfg.VerificationEndpoint = "https://verify.example/siteverify"
	addFile(fx, "f1", 0)

	_, err := fx.svc.RequestToken(context.Background(), "f1", &api.TokenRequest{VerificationToken: "bad"})
	require.ErrorIs(t, err, common.ErrVerificationFailed)
	assert.Equal(t, 1, v.calls)
}

func TestRequestToken_VerificationSkippedWhenDisabled(t *testing.T) {
	v := &fakeVerifier{err: common.ErrVerificationFailed}
	fx := newAccessFixture(t, v)
	addFile(fx, "f1", 0)

	_, err := fx.svc.RequestToken(context.Background(), "f1", &api.TokenRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, v.calls)
}

func TestConfirm_Success(t *testing.T) {
	fx := newAccessFixture(t, nil)
	addFile(fx, "f1", 5)

	grant, err := fx.svc.RequestToken(context.Background(), "f1", &api.TokenRequest{})
	require.NoError(t, err)

	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	count, err := fx.svc.Confirm(context.Background(), grant.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, fx.files.records["f1"].DownloadCount)

	require.NoError(t, fx.mock.ExpectationsWereMet())
}

// Requesting tokens repeatedly must never consume the download limit;
// only confirmations do, one each.
func TestConfirm_TokenIssuanceDoesNotConsumeLimit(t *testing.T) {
	fx := newAccessFixture(t, nil)
	addFile(fx, "f1", 3)

	var last *TokenGrant
	for i := 0; i < 5; i++ {
		grant, err := fx.svc.RequestToken(context.Background(), "f1", &api.TokenRequest{})
		require.NoError(t, err)
		last = grant
	}
	assert.Equal(t, 0, fx.files.records["f1"].DownloadCount)

	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	count, err := fx.svc.Confirm(context.Background(), last.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// redeeming the same token again fails and leaves the counter alone
	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	_, err = fx.svc.Confirm(context.Background(), last.Token)
	require.ErrorIs(t, err, common.ErrTokenAlreadyUsed)
	assert.Equal(t, 1, fx.files.records["f1"].DownloadCount)

	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestConfirm_MalformedToken(t *testing.T) {
	fx := newAccessFixture(t, nil)

	_, err := fx.svc.Confirm(context.Background(), "not.a.jwt")
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestConfirm_UnknownTokenRow(t *testing.T) {
	fx := newAccessFixture(t, nil)
	addFile(fx, "f1", 0)

	grant, err := fx.svc.RequestToken(context.Background(), "f1", &api.TokenRequest{})
	require.NoError(t, err)

	// drop the row so the signed token no longer refers to anything
	for id := range fx.tokens.tokens {
		delete(fx.tokens.tokens, id)
	}

	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	_, err = fx.svc.Confirm(context.Background(), grant.Token)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestConfirm_TokenRowExpired(t *testing.T) {
	fx := newAccessFixture(t, nil)
	addFile(fx, "f1", 0)

	grant, err := fx.svc.RequestToken(context.Background(), "f1", &api.TokenRequest{})
	require.NoError(t, err)

	// the row expires even though the JWT is still within its validity
	for _, tok := range fx.tokens.tokens {
		tok.ExpiresAt = time.Now().Add(-time.Second)
	}

	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	_, err = fx.svc.Confirm(context.Background(), grant.Token)
	require.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestConfirm_FileGone(t *testing.T) {
	fx := newAccessFixture(t, nil)
	addFile(fx, "f1", 0)

	grant, err := fx.svc.RequestToken(context.Background(), "f1", &api.TokenRequest{})
	require.NoError(t, err)

	delete(fx.files.records, "f1")

	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	_, err = fx.svc.Confirm(context.Background(), grant.Token)
	require.ErrorIs(t, err, common.ErrFileGone)
}

func TestConfirm_LimitReachedAtConfirm(t *testing.T) {
	fx := newAccessFixture(t, nil)
	r := addFile(fx, "f1", 1)

	grant, err := fx.svc.RequestToken(context.Background(), "f1", &api.TokenRequest{})
	require.NoError(t, err)

	// another download lands between issue and confirm
	r.DownloadCount = 1

	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	_, err = fx.svc.Confirm(context.Background(), grant.Token)
	require.ErrorIs(t, err, common.ErrLimitReached)
}
