package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const (
	DefaultBucket        = "surfvault"
	DefaultPresignExpiry = time.Hour
)

var ErrInvalidConfig = errors.New("invalid media storage configuration")

type MinioConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	Bucket        string
	PresignExpiry time.Duration
}

// MinioStore stores attachments in an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	log    *zap.Logger
}

// NewMinioStore connects to the object store and creates the bucket when it
// does not exist yet.
func NewMinioStore(ctx context.Context, cfg MinioConfig, log *zap.Logger) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = DefaultPresignExpiry
	}
	if log == nil {
		log = zap.NewNop()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s := &MinioStore{client: client, bucket: cfg.Bucket, expiry: cfg.PresignExpiry, log: log}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", s.bucket, err)
	}
	s.log.Info("created media bucket", zap.String("bucket", s.bucket))
	return nil
}

// Put uploads r under key. Existing objects are never overwritten.
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	} else if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("checking object %s: %w", key, err)
	}

	if size <= 0 {
		size = -1
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("uploading object %s: %w", key, err)
	}
	return nil
}

// ListURLs returns a presigned download link for every object under prefix.
func (s *MinioStore) ListURLs(ctx context.Context, prefix string) ([]FileURL, error) {
	var files []FileURL
	err := s.walk(ctx, minio.ListObjectsOptions{Prefix: prefix, Recursive: true, WithMetadata: true}, func(obj minio.ObjectInfo) error {
		u, err := s.client.PresignedGetObject(ctx, s.bucket, obj.Key, s.expiry, url.Values{})
		if err != nil {
			return fmt.Errorf("presigning object %s: %w", obj.Key, err)
		}
		files = append(files, FileURL{
			Key:         obj.Key,
			FieldName:   FieldName(obj.Key),
			ContentType: obj.ContentType,
			URL:         u.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// DeletePrefix removes every object under prefix.
func (s *MinioStore) DeletePrefix(ctx context.Context, prefix string) error {
	return s.walk(ctx, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}, func(obj minio.ObjectInfo) error {
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("removing object %s: %w", obj.Key, err)
		}
		return nil
	})
}

// walk calls fn for each listed object until fn fails. The listing is
// cancelled and drained before returning so its goroutine always exits.
func (s *MinioStore) walk(ctx context.Context, opts minio.ListObjectsOptions, fn func(minio.ObjectInfo) error) error {
	ctx, cancel := context.WithCancel(ctx)
	objects := s.client.ListObjects(ctx, s.bucket, opts)
	defer func() {
		cancel()
		for range objects {
		}
	}()

	for obj := range objects {
		if obj.Err != nil {
			return fmt.Errorf("listing objects under %s: %w", opts.Prefix, obj.Err)
		}
		if err := fn(obj); err != nil {
			return err
		}
	}
	return nil
}
