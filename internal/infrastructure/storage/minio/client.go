package minio

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/turtacn/BizAtlas/internal/config"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

const geoJSONContentType = "application/geo+json"

// ObjectAPI is the subset of *minio.Client the snapshot store uses.
type ObjectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

// SnapshotStore writes GeoJSON exports under one bucket prefix and hands
// back presigned download URLs.
type SnapshotStore struct {
	client ObjectAPI
	cfg    config.MinIOConfig
	logger logging.Logger
}

// NewSnapshotStore connects, creates the bucket when missing and installs
// the retention rule.
func NewSnapshotStore(ctx context.Context, cfg config.MinIOConfig, log logging.Logger) (*SnapshotStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create minio client")
	}
	s := NewSnapshotStoreWithClient(client, cfg, log)
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	s.logger.Info("MinIO snapshot store ready",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
		logging.Bool("ssl", cfg.UseSSL))
	return s, nil
}

// NewSnapshotStoreWithClient wraps an existing client (tests use a fake).
func NewSnapshotStoreWithClient(client ObjectAPI, cfg config.MinIOConfig, log logging.Logger) *SnapshotStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = time.Hour
	}
	return &SnapshotStore{client: client, cfg: cfg, logger: log.Named("minio")}
}

// EnsureBucket creates the bucket if needed.  A failed lifecycle update is
// logged, not returned.
func (s *SnapshotStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to check bucket existence")
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create bucket "+s.cfg.Bucket)
		}
		s.logger.Info("Created bucket", logging.String("bucket", s.cfg.Bucket))
	}

	if s.cfg.SnapshotRetentionDays > 0 {
		rules := lifecycle.NewConfiguration()
		rules.Rules = []lifecycle.Rule{{
			ID:         "snapshot-expiry",
			Status:     "Enabled",
			RuleFilter: lifecycle.Filter{Prefix: s.cfg.SnapshotPrefix},
			Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(s.cfg.SnapshotRetentionDays)},
		}}
		if err := s.client.SetBucketLifecycle(ctx, s.cfg.Bucket, rules); err != nil {
			s.logger.Warn("Failed to set snapshot lifecycle", logging.Err(err))
		}
	}
	return nil
}

// PutSnapshot uploads body as name under the snapshot prefix.
func (s *SnapshotStore) PutSnapshot(ctx context.Context, name string, body []byte) (string, string, error) {
	key := objectKey(s.cfg.SnapshotPrefix, name)
	if _, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: geoJSONContentType}); err != nil {
		return "", "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to upload snapshot")
	}

	params := url.Values{}
	params.Set("response-content-disposition", `attachment; filename="`+path.Base(key)+`"`)
	u, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, key, s.cfg.PresignExpiry, params)
	if err != nil {
		return key, "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to presign snapshot")
	}
	s.logger.Debug("Snapshot uploaded", logging.String("key", key), logging.Int("bytes", len(body)))
	return key, u.String(), nil
}

func objectKey(prefix, name string) string {
	name = strings.TrimLeft(name, "/")
	if prefix == "" {
		return name
	}
	return strings.TrimRight(prefix, "/") + "/" + name
}

//Personal.AI order the ending
