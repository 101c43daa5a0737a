// Package backup uploads database snapshots to S3-compatible storage.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"jarvis/board/internal/config"
)

var ErrNotConfigured = errors.New("backup storage is not configured (set BACKUP_S3_ENDPOINT and BACKUP_S3_BUCKET)")

type snapshotter interface {
	Snapshot(ctx context.Context, path string) error
}

type Uploader struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

func NewUploader(cfg config.BackupConfig, logger *zap.Logger) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Uploader{client: client, bucket: cfg.Bucket, logger: logger.Named("backup")}, nil
}

// ObjectName is the key a snapshot taken at now is stored under.
func ObjectName(now time.Time) string {
	return "jarvis-" + now.UTC().Format("20060102T150405Z") + ".db"
}

// Run snapshots source into a temporary file and uploads it.
func (u *Uploader) Run(ctx context.Context, source snapshotter, now time.Time) (minio.UploadInfo, error) {
	dir, err := os.MkdirTemp("", "jarvis-backup-*")
	if err != nil {
		return minio.UploadInfo{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if err := source.Snapshot(ctx, path); err != nil {
		return minio.UploadInfo{}, err
	}
	if err := u.ensureBucket(ctx); err != nil {
		return minio.UploadInfo{}, err
	}

	info, err := u.client.FPutObject(ctx, u.bucket, ObjectName(now), path, minio.PutObjectOptions{
		ContentType: "application/vnd.sqlite3",
	})
	if err != nil {
		return minio.UploadInfo{}, fmt.Errorf("upload snapshot: %w", err)
	}
	u.logger.Info("snapshot uploaded",
		zap.String("bucket", info.Bucket),
		zap.String("key", info.Key),
		zap.Int64("bytes", info.Size),
	)
	return info, nil
}

func (u *Uploader) ensureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", u.bucket, err)
	}
	return nil
}
