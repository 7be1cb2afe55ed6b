package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/field-notes/apiserver/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioBackend keeps the document as one object in a MinIO/S3 bucket.
// Revisions are object ETags; conditional writes use If-Match/If-None-Match.
type MinioBackend struct {
	client *minio.Client
	bucket string
	key    string
}

// NewMinioBackend constructs a MinIO backend from config.
func NewMinioBackend(cfg config.MinioConfig, key string) (*MinioBackend, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("minio access key and secret key are required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("minio bucket is required")
	}
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("minio object key is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	return &MinioBackend{
		client: client,
		bucket: cfg.Bucket,
		key:    key,
	}, nil
}

// EnsureBucket ensures the configured bucket exists.
func (m *MinioBackend) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
}

func (m *MinioBackend) Read(ctx context.Context) ([]byte, string, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, m.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", minioError(err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, "", minioError(err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", minioError(err)
	}
	return data, info.ETag, nil
}

func (m *MinioBackend) Write(ctx context.Context, data []byte, rev string) (string, error) {
	opts := minio.PutObjectOptions{ContentType: "application/json"}
	switch rev {
	case AnyRevision:
	case NoRevision:
		opts.SetMatchETagExcept("*")
	default:
		opts.SetMatchETag(rev)
	}

	info, err := m.client.PutObject(ctx, m.bucket, m.key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return "", minioError(err)
	}
	return info.ETag, nil
}

func (m *MinioBackend) Name() string {
	return "minio"
}

func (m *MinioBackend) Close() error {
	return nil
}

func minioError(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey":
		return ErrNotExist
	case resp.Code == "PreconditionFailed", resp.StatusCode == http.StatusPreconditionFailed:
		return ErrRevisionMismatch
	default:
		return err
	}
}
