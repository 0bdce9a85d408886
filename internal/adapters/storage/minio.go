// Package storage hands rendered reports off to an S3-compatible object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/target/policy-analysis-api/config"
)

// ErrNotConfigured is returned when the store has no client or bucket.
var ErrNotConfigured = errors.New("object store not configured")

const defaultPresignExpiry = 15 * time.Minute

// objectAPI is the subset of *minio.Client used by MinioStore.
type objectAPI interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

// MinioOptions groups dependencies for MinioStore.
type MinioOptions struct {
	Client        objectAPI     // Required
	Bucket        string        // Required
	PresignExpiry time.Duration // Optional: defaults to 15m
	Logger        *slog.Logger  // Optional: structured logger
}

// MinioStore implements core.ArtifactStore on top of minio-go.
type MinioStore struct {
	client objectAPI
	bucket string
	expiry time.Duration
	logger *slog.Logger
}

// NewMinioStore constructs a MinioStore from an existing client.
func NewMinioStore(opts MinioOptions) *MinioStore {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	expiry := opts.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &MinioStore{
		client: opts.Client,
		bucket: opts.Bucket,
		expiry: expiry,
		logger: logger.With("component", "artifact_store", "bucket", opts.Bucket),
	}
}

// NewMinioStoreFromConfig dials the configured endpoint with static credentials.
func NewMinioStoreFromConfig(cfg config.StorageConfig, logger *slog.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return NewMinioStore(MinioOptions{
		Client:        client,
		Bucket:        cfg.Bucket,
		PresignExpiry: cfg.PresignExpiry,
		Logger:        logger,
	}), nil
}

// EnsureBucket creates the bucket when it does not exist.
func (s *MinioStore) EnsureBucket(ctx context.Context, region string) error {
	if err := s.ready(); err != nil {
		return err
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	s.logger.InfoContext(ctx, "bucket created")
	return nil
}

// Store uploads the file at localPath under key and returns the stored key.
func (s *MinioStore) Store(ctx context.Context, localPath, key string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	key = cleanKey(key)
	if key == "" {
		return "", errors.New("storage key is required")
	}

	info, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	s.logger.DebugContext(ctx, "object stored", "key", key, "size", info.Size)
	return key, nil
}

// Presign returns a time-limited download URL for key.
func (s *MinioStore) Presign(ctx context.Context, key string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))

	u, err := s.client.PresignedGetObject(ctx, s.bucket, cleanKey(key), s.expiry, params)
	if err != nil {
		return "", fmt.Errorf("presigned get object: %w", err)
	}
	return u.String(), nil
}

func (s *MinioStore) ready() error {
	if s == nil || s.client == nil || s.bucket == "" {
		return ErrNotConfigured
	}
	return nil
}

func cleanKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimLeft(path.Clean("/"+key), "/")
	if key == "." {
		return ""
	}
	return key
}

func contentType(p string) string {
	if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
