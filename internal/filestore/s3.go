package filestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// S3Config addresses an S3 compatible bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
}

// Validate checks the configuration.
func (c S3Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("filestore: s3 endpoint must not be empty")
	}
	if c.Bucket == "" {
		return errors.New("filestore: s3 bucket must not be empty")
	}
	return nil
}

// S3 stores attachments in a bucket.
type S3 struct {
	cl     *minio.Client
	bucket string
	logger *zap.Logger
}

// NewS3 builds an S3 client. It does not contact the server.
func NewS3(cfg S3Config, logger *zap.Logger) (*S3, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	cl, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("filestore: s3 client: %w", err)
	}
	return &S3{cl: cl, bucket: cfg.Bucket, logger: logger.Named("filestore")}, nil
}

// DeleteFiles removes the objects in one multi-object delete. Objects that
// do not exist count as deleted.
func (s *S3) DeleteFiles(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	objects := make(chan minio.ObjectInfo, len(paths))
	for _, p := range paths {
		objects <- minio.ObjectInfo{Key: strings.TrimPrefix(p, "/")}
	}
	close(objects)

	var errs []error
	for rerr := range s.cl.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		errs = append(errs, fmt.Errorf("remove %s: %w", rerr.ObjectName, rerr.Err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.logger.Debug("objects deleted", zap.String("bucket", s.bucket), zap.Int("count", len(paths)))
	return nil
}
