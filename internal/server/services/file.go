// Package services implements the server's business logic on top of the
// repositories: registering encrypted files, presigning object storage
// URLs, and the two-phase download token flow.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/speakingcat21/filesoldier/internal/api"
	"github.com/speakingcat21/filesoldier/internal/server/models"
	"github.com/speakingcat21/filesoldier/internal/server/repositories/repomanager"

	sc "github.com/speakingcat21/filesoldier/internal/server/config"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// FileService registers encrypted file records and presigns the object
// storage URLs the ciphertext moves through.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
}

func NewFileService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config) *FileService {
	return &FileService{
		db:          db,
		repomanager: repomanager,
		config:      config,
	}
}

// GetRandomStorageKey builds a date-prefixed object key. The prefix keeps
// storage listable by day; the uuid keeps keys unguessable.
func GetRandomStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("files/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *FileService) getPresignClient() (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,     // MINIO_ROOT_USER
			s.config.S3RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return newS3PresignClient(client), nil
}

func (s *FileService) GetPresignedPutUrl(ctx context.Context) (string, string, error) {

	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key := GetRandomStorageKey()

	// Presigned PUT
	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))

	if err != nil {
		return "", "", err
	}

	return key, req.URL, nil
}

func (s *FileService) GetPresignedGetUrl(ctx context.Context, key string) (string, error) {

	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	// Presigned GET
	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

// Create registers an encrypted file and returns its record together with
// a presigned PUT URL for the ciphertext blob.
func (s *FileService) Create(ctx context.Context, req *api.CreateFileRequest) (*models.FileRecord, string, error) {
	storageKey, uploadURL, err := s.GetPresignedPutUrl(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("error presigning upload: %w", err)
	}

	now := time.Now()
	record := &models.FileRecord{
		ID:            uuid.NewString(),
		PublicLabel:   req.PublicLabel,
		OriginalName:  req.OriginalName,
		Size:          req.Size,
		EncMetadata:   req.EncMetadata,
		FileIV:        req.FileIV,
		StorageKey:    storageKey,
		Wrapping:      req.Wrapping,
		PasswordHint:  req.PasswordHint,
		MaskFilename:  req.MaskFilename,
		DownloadLimit: req.DownloadLimit,
		CreatedAt:     now,
	}
	if req.MaskFilename {
		record.OriginalName = ""
	}
	if req.ExpiresInSeconds > 0 {
		record.ExpiresAt = now.Add(time.Duration(req.ExpiresInSeconds) * time.Second)
	}

	repo := s.repomanager.Files(s.db)
	if err := repo.Create(ctx, record); err != nil {
		return nil, "", fmt.Errorf("error creating file record: %w", err)
	}

	return record, uploadURL, nil
}

// Get loads a file record by its public id.
func (s *FileService) Get(ctx context.Context, id string) (*models.FileRecord, error) {
	repo := s.repomanager.Files(s.db)
	return repo.GetByID(ctx, id)
}
