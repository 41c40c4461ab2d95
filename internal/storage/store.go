package storage

import (
	"context"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/jobmarket-etl/internal/config"
)

// ObjectInfo describes a listed object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStore is the subset of an S3-compatible bucket API the fetcher needs.
type ObjectStore interface {
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

type minioStore struct {
	cli    *minio.Client
	logger zerolog.Logger
}

// NewMinioStore builds an ObjectStore backed by minio-go, which speaks the S3
// API against AWS or any compatible endpoint.
func NewMinioStore(cfg config.StorageConfig, logger zerolog.Logger) (ObjectStore, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")

	var creds *credentials.Credentials
	if cfg.AccessKeyID != "" {
		creds = credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	} else {
		creds = credentials.NewEnvAWS()
	}

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create object store client for %s", endpoint)
	}

	return &minioStore{
		cli:    cli,
		logger: logger.With().Str("component", "object_store").Logger(),
	}, nil
}

func (s *minioStore) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range s.cli.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrapf(obj.Err, "failed to list s3://%s/%s", bucket, prefix)
		}
		objects = append(objects, ObjectInfo{Key: obj.Key, Size: obj.Size})
	}
	s.logger.Debug().Str("bucket", bucket).Str("prefix", prefix).Int("count", len(objects)).Msg("listed objects")
	return objects, nil
}

func (s *minioStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.cli.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get s3://%s/%s", bucket, key)
	}
	// GetObject is lazy; Stat surfaces missing keys and auth errors up front.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, errors.Wrapf(err, "failed to get s3://%s/%s", bucket, key)
	}
	return obj, nil
}
