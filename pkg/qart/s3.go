package qart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	// Endpoint is host:port without a scheme.
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// S3Store keeps artifacts in a single bucket of a MinIO or S3 endpoint.
type S3Store struct {
	client *minio.Client
	cfg    S3Config
}

var _ Store = (*S3Store)(nil)

func NewS3Store(cfg S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client for %s: %w", cfg.Endpoint, err)
	}
	return &S3Store{client: client, cfg: cfg}, nil
}

func (s *S3Store) EnsureBucket(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	switch {
	case err != nil:
		return fmt.Errorf("checking bucket %s: %w", s.cfg.Bucket, err)
	case ok:
		return nil
	}
	return s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region})
}

func (s *S3Store) Put(ctx context.Context, jobID, name, content string, labels map[string]string) (*Artifact, error) {
	key := JobKey(jobID, name)
	contentType := ContentType(name)

	info, err := s.client.PutObject(ctx, s.cfg.Bucket, key, strings.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: labels,
	})
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", key, err)
	}
	return &Artifact{
		Key:          key,
		JobID:        jobID,
		Size:         info.Size,
		ContentType:  contentType,
		LastModified: time.Now(),
	}, nil
}

func (s *S3Store) ListJob(ctx context.Context, jobID string) ([]*Artifact, error) {
	var out []*Artifact
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: JobPrefix(jobID), Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing artifacts of %s: %w", jobID, obj.Err)
		}
		out = append(out, &Artifact{
			Key:          obj.Key,
			JobID:        jobID,
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
		})
	}
	return out, nil
}

func (s *S3Store) Presign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, err)
	}
	return u.String(), nil
}

// DeleteJob removes every file stored for jobID.
func (s *S3Store) DeleteJob(ctx context.Context, jobID string) error {
	objects := s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: JobPrefix(jobID), Recursive: true})
	for res := range s.client.RemoveObjects(ctx, s.cfg.Bucket, objects, minio.RemoveObjectsOptions{}) {
		if res.Err != nil {
			return fmt.Errorf("removing %s: %w", res.ObjectName, res.Err)
		}
	}
	return nil
}
