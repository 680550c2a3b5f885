// Package archive stores call transcripts in S3-compatible object storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kiranshivaraju/dealerdial/internal/config"
)

// ErrDisabled is returned by New when no endpoint is configured.
var ErrDisabled = errors.New("transcript archive not configured")

const (
	contentType = "text/plain; charset=utf-8"
	region      = "us-east-1"
)

// MinIOArchive writes transcripts to a single bucket.
type MinIOArchive struct {
	client *minio.Client
	bucket string
}

// New creates an archive client. It does not touch the network.
func New(cfg config.ArchiveConfig) (*MinIOArchive, error) {
	if cfg.Endpoint == "" {
		return nil, ErrDisabled
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}
	return &MinIOArchive{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (a *MinIOArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// Archive uploads text under key and returns the stored object key.
func (a *MinIOArchive) Archive(ctx context.Context, key, text string) (string, error) {
	_, err := a.client.PutObject(ctx, a.bucket, key, strings.NewReader(text), int64(len(text)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", key, err)
	}
	return key, nil
}

// Fetch reads an archived transcript back.
func (a *MinIOArchive) Fetch(ctx context.Context, key string) (string, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", key, err)
	}
	defer obj.Close()

	b, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return string(b), nil
}

// TranscriptKey is the object key for one vehicle's transcript in a run.
func TranscriptKey(runID, vehicleID string) string {
	return fmt.Sprintf("runs/%s/%s.txt", runID, vehicleID)
}
