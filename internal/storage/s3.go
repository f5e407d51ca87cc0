package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures access to an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"accessKey,omitempty"`
	SecretKey string `json:"secretKey,omitempty"`
	Region    string `json:"region,omitempty"`
	Secure    bool   `json:"secure"`
}

// S3 opens objects addressed as s3://bucket/key.
type S3 struct {
	client *minio.Client
}

// NewS3 creates a client for cfg. No request is made until first use.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}
	return &S3{client: client}, nil
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(path string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(path, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%q is not an s3:// url", path)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%q has no bucket", path)
	}
	return bucket, key, nil
}

type s3Object struct {
	*minio.Object
	size int64
}

func (o *s3Object) Size() int64 { return o.size }

func (s *S3) Open(ctx context.Context, path string) (Object, error) {
	bucket, key, err := ParseS3URL(path)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", path, err)
	}
	// GetObject is lazy; Stat performs the request and surfaces 404s.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("s3 stat %s: %w", path, err)
	}
	return &s3Object{Object: obj, size: info.Size}, nil
}

// Glob lists keys under the pattern's literal prefix and matches them with
// doublestar, so s3://bucket/logs/**/*.parquet works as it does locally.
func (s *S3) Glob(ctx context.Context, pattern string) ([]string, error) {
	bucket, keyPattern, err := ParseS3URL(pattern)
	if err != nil {
		return nil, err
	}
	if !doublestar.ValidatePattern(keyPattern) {
		return nil, fmt.Errorf("glob %q: %w", pattern, doublestar.ErrBadPattern)
	}
	prefix := keyPattern
	if i := strings.IndexAny(keyPattern, "*?[{\\"); i >= 0 {
		prefix = keyPattern[:i]
	}

	var out []string
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", pattern, obj.Err)
		}
		if ok, _ := doublestar.Match(keyPattern, obj.Key); ok {
			out = append(out, "s3://"+bucket+"/"+obj.Key)
		}
	}
	slices.Sort(out)
	return out, nil
}
